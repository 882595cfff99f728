package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, BackendSimulated, cfg.LedgerBackend)
	require.Equal(t, "USDT", cfg.Currency)
	require.Equal(t, int32(6), cfg.Precision)
	require.True(t, cfg.FeePercent.Equal(decimal.NewFromInt(5)))
}

func TestLoadFractionalFeePercent(t *testing.T) {
	t.Setenv("FEE_PERCENT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	expected, _ := decimal.NewFromString("2.5")
	require.True(t, cfg.FeePercent.Equal(expected))
}

func TestLoadRejectsBadFeePercent(t *testing.T) {
	t.Setenv("FEE_PERCENT", "lots")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNegativeFeePercent(t *testing.T) {
	t.Setenv("FEE_PERCENT", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/escrow?sslmode=disable")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendPostgres, cfg.LedgerBackend)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "mongo")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}
