package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full configuration surface of the engine. Values come from
// the environment, optionally seeded from a .env file.
type Config struct {
	HTTPAddr      string        `env:"HTTP_ADDR" envDefault:":8080"`
	LedgerBackend string        `env:"LEDGER_BACKEND" envDefault:"simulated"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	KafkaBrokers  []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Currency      string        `env:"CURRENCY" envDefault:"USDT"`
	Precision     int32         `env:"CURRENCY_PRECISION" envDefault:"6"`
	FeePercentRaw string        `env:"FEE_PERCENT" envDefault:"5"`
	RetryMax      uint64        `env:"TRANSFER_MAX_RETRIES" envDefault:"3"`
	RetryInterval time.Duration `env:"TRANSFER_RETRY_INTERVAL" envDefault:"600ms"`
	RetryTimeout  time.Duration `env:"TRANSFER_TIMEOUT" envDefault:"30s"`

	FeePercent decimal.Decimal `env:"-"`
}

const (
	BackendSimulated = "simulated"
	BackendPostgres  = "postgres"
)

// Load reads .env when present, parses the environment and validates the
// fee/backend settings.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	fee, err := decimal.NewFromString(cfg.FeePercentRaw)
	if err != nil {
		return Config{}, fmt.Errorf("FEE_PERCENT %q is not a number: %w", cfg.FeePercentRaw, err)
	}
	if fee.IsNegative() {
		return Config{}, fmt.Errorf("FEE_PERCENT must not be negative, got %s", fee)
	}
	cfg.FeePercent = fee

	switch cfg.LedgerBackend {
	case BackendSimulated:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("LEDGER_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
	if cfg.Precision < 0 {
		return Config{}, fmt.Errorf("CURRENCY_PRECISION must not be negative, got %d", cfg.Precision)
	}
	return cfg, nil
}
