package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"microfinance/internal/clock"
	"microfinance/internal/config"
	"microfinance/internal/domain"
	"microfinance/internal/handler"
	"microfinance/internal/repository"
	"microfinance/internal/repository/memory"
	"microfinance/internal/service"
	"microfinance/migrations"
)

// Server represents the HTTP server
type Server struct {
	router    *mux.Router
	handler   http.Handler
	server    *http.Server
	db        *sql.DB
	store     domain.Store
	scheduler *service.TariffScheduler
	logger    *slog.Logger
	port      string
}

type pinger interface {
	Ping(ctx context.Context) error
}

// NewServer wires the store, services and routes described by cfg.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.LedgerPolicy()
	if err != nil {
		return nil, err
	}

	s := &Server{logger: logger}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		s.store = memory.NewStore(logger)
		logger.Warn("Using in-memory store, intended for tests and demos only: data is lost on shutdown")
	default:
		db, err := openPostgres(cfg, logger)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.store = repository.NewStore(db, logger)
	}

	clk := clock.NewSystem(loc)

	accountService := service.NewAccountService(s.store, clk, logger)
	transactionService := service.NewTransactionService(s.store, clk, policy, logger)
	loanService := service.NewLoanService(s.store, clk, policy, logger)
	sourceService := service.NewSourceService(s.store, clk, policy, logger)
	tariffService := service.NewTariffService(s.store, clk, policy, cfg.Tariff.Workers, logger)
	directoryService := service.NewDirectoryService(s.store, clk, logger)

	if cfg.Tariff.SchedulerEnabled {
		s.scheduler = service.NewTariffScheduler(tariffService, clk, cfg.Tariff.Interval, logger)
	}

	router := mux.NewRouter()
	router.Use(handler.NewAuthenticator(cfg.JWTSecret, logger).Middleware)

	handler.NewDirectoryHandler(directoryService, logger).RegisterRoutes(router)
	handler.NewAccountHandler(accountService, logger).RegisterRoutes(router)
	handler.NewTransactionHandler(transactionService, logger).RegisterRoutes(router)
	handler.NewLoanHandler(loanService, logger).RegisterRoutes(router)
	handler.NewSourceHandler(sourceService, logger).RegisterRoutes(router)
	handler.NewTariffHandler(tariffService, logger).RegisterRoutes(router)

	router.HandleFunc("/health", s.health).Methods(http.MethodGet)

	// Outermost first: request id, client ip, access log, panic recovery, CORS.
	var h http.Handler = router
	h = cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", handler.UserIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	})(h)
	h = middleware.Recoverer(h)
	h = loggingMiddleware(logger)(h)
	h = middleware.RealIP(h)
	h = middleware.RequestID(h)

	s.router = router
	s.handler = h
	return s, nil
}

func openPostgres(cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("Successfully connected to database")

	if cfg.AutoMigrate {
		if err := migrations.Up(db, logger); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start listens on port ("0" picks a free one), starts the tariff scheduler
// when enabled and serves in the background.
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	if s.scheduler != nil {
		s.scheduler.Start()
	}

	return s.port, nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(context.Background())
		return nil, "", err
	}

	return server, port, nil
}
