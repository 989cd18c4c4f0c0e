package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "RATE_RPS", "PLATFORM_FEE_PERCENT", "USD_EXCHANGE_RATE", "MIN_WITHDRAWAL", "KAFKA_BROKERS", "APP_STORE"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.True(t, cfg.IsDev())
	assert.Equal(t, 100, cfg.RateRPS)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, "1", cfg.PlatformFeePercent.String())
	assert.Equal(t, "83", cfg.USDExchangeRate.String())
	assert.Equal(t, "10", cfg.MinWithdrawal.String())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_OverridesAndFallbacks(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_STORE", "Memory")
	t.Setenv("RATE_RPS", "many")
	t.Setenv("PLATFORM_FEE_PERCENT", "2.5")
	t.Setenv("USD_EXCHANGE_RATE", "-1")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("APP_MIGRATE", "true")

	cfg := Load()

	assert.False(t, cfg.IsDev())
	assert.Equal(t, "memory", cfg.Store)
	assert.True(t, cfg.Migrate)
	assert.Equal(t, 100, cfg.RateRPS)
	assert.Equal(t, "2.5", cfg.PlatformFeePercent.String())
	assert.Equal(t, "83", cfg.USDExchangeRate.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Len(t, cfg.Warnings, 2)
}
