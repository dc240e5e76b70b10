package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microfinance/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		ServerPort:  "0",
		StoreDriver: config.StoreDriverMemory,
		CORSOrigins: []string{"*"},
		Tariff: config.TariffConfig{
			SchedulerEnabled: true,
			Interval:         time.Hour,
			Workers:          2,
		},
	}
}

func TestNewServer_MemoryStore(t *testing.T) {
	srv, err := NewServer(memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/zones", strings.NewReader(`{"name":"Central"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestNewServer_WarnsAboutMemoryStore(t *testing.T) {
	var logs bytes.Buffer
	_, err := NewServer(memoryConfig(), slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "tests and demos only")
}

func TestNewServer_CORSPreflight(t *testing.T) {
	srv, err := NewServer(memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/transactions/deposit", nil)
	req.Header.Set("Origin", "http://backoffice.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartServer_ServesAndStops(t *testing.T) {
	srv, port, err := StartServer(memoryConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, port)
	assert.Equal(t, "http://localhost:"+port, srv.GetBaseURL())

	resp, err := http.Get(srv.GetBaseURL() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
