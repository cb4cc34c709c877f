package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, 300*time.Second, cfg.AcceptanceTimeout)
	assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "0.11", cfg.TaxRate.String())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ACCEPTANCE_TIMEOUT", "45s")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("SWEEP_BATCH", "25")
	t.Setenv("TAX_RATE", "0.075")

	cfg := Load()

	assert.Equal(t, 45*time.Second, cfg.AcceptanceTimeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 25, cfg.SweepBatch)
	assert.Equal(t, "0.075", cfg.TaxRate.String())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HOLD_TTL", "ten minutes")
	t.Setenv("SWEEP_BATCH", "-3")
	t.Setenv("TAX_RATE", "-1")

	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 100, cfg.SweepBatch)
	assert.Equal(t, "0.11", cfg.TaxRate.String())
}
