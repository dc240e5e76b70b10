package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"microfinance/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Timezone    string `envconfig:"TIMEZONE" default:"UTC"`

	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      string `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD" default:"password"`
	DBName      string `envconfig:"DB_NAME" default:"microfinance"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	JWTSecret   string   `envconfig:"AUTH_JWT_SECRET"`
	CORSOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	Tariff TariffConfig `envconfig:"TARIFF"`
	Ledger LedgerConfig `envconfig:"LEDGER"`
}

type TariffConfig struct {
	SchedulerEnabled bool          `envconfig:"SCHEDULER_ENABLED" default:"false"`
	Interval         time.Duration `envconfig:"INTERVAL" default:"1h"`
	Workers          int           `envconfig:"WORKERS" default:"4"`
}

// LedgerConfig overrides domain.DefaultPolicy. Unset fields keep the default.
type LedgerConfig struct {
	MinDeposit          *int64 `envconfig:"MIN_DEPOSIT"`
	MaxDeposit          *int64 `envconfig:"MAX_DEPOSIT"`
	MaxTransfer         *int64 `envconfig:"MAX_TRANSFER"`
	MinLoan             *int64 `envconfig:"MIN_LOAN"`
	MaxLoan             *int64 `envconfig:"MAX_LOAN"`
	MaxInterestRate     string `envconfig:"MAX_INTEREST_RATE"`
	InterestRateDivisor string `envconfig:"INTEREST_RATE_DIVISOR"`
	Tariffs             string `envconfig:"TARIFFS"`
}

// Load reads the given .env files (or ./.env) when present, then decodes the
// process environment. The ledger policy is validated eagerly.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Debug("No .env file loaded, using process environment", "error", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.Tariff.Workers < 1 {
		return nil, fmt.Errorf("TARIFF_WORKERS must be positive, got %d", cfg.Tariff.Workers)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.LedgerPolicy(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	sslMode := c.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, sslMode)
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LedgerPolicy applies the LEDGER_* overrides on top of the default policy.
func (c *Config) LedgerPolicy() (domain.Policy, error) {
	p := domain.DefaultPolicy()
	l := c.Ledger

	if l.MinDeposit != nil {
		p.MinimumDeposit = *l.MinDeposit
	}
	if l.MaxDeposit != nil {
		p.MaximumDeposit = *l.MaxDeposit
	}
	if l.MaxTransfer != nil {
		p.MaximumTransfer = *l.MaxTransfer
	}
	if l.MinLoan != nil {
		p.MinimumLoan = *l.MinLoan
	}
	if l.MaxLoan != nil {
		p.MaximumLoan = *l.MaxLoan
	}
	if l.MaxInterestRate != "" {
		rate, err := decimal.NewFromString(l.MaxInterestRate)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("invalid LEDGER_MAX_INTEREST_RATE: %w", err)
		}
		p.MaxInterest = rate
	}
	if l.InterestRateDivisor != "" {
		divisor, err := decimal.NewFromString(l.InterestRateDivisor)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("invalid LEDGER_INTEREST_RATE_DIVISOR: %w", err)
		}
		p.InterestRateDivisor = divisor
	}
	if l.Tariffs != "" {
		table, err := domain.ParseTariffTable(l.Tariffs)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("invalid LEDGER_TARIFFS: %w", err)
		}
		p.Tariffs = table
	}

	if err := p.Validate(); err != nil {
		return domain.Policy{}, fmt.Errorf("invalid ledger policy: %w", err)
	}
	return p, nil
}
