package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "direct", cfg.Order.SagaMode)
	assert.False(t, cfg.Order.AbortOnDegraded)
	assert.False(t, cfg.Reconciler.Strict)
	assert.Zero(t, cfg.Publisher.SweepInterval)
	assert.Equal(t, 10, cfg.Breaker.WindowSize)
	assert.Equal(t, 5, cfg.Breaker.MinimumCalls)
	assert.Equal(t, 5*time.Second, cfg.Breaker.CallTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
repository: memory
order:
  saga_mode: reservation
  abort_on_degraded: true
breaker:
  window_size: 20
  open_timeout: 30s
reconciler:
  strict: true
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("BREAKER_OPEN_TIMEOUT", "15s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, RepositoryMemory, cfg.Repository)
	assert.Equal(t, "reservation", cfg.Order.SagaMode)
	assert.True(t, cfg.Order.AbortOnDegraded)
	assert.True(t, cfg.Reconciler.Strict)
	assert.Equal(t, 20, cfg.Breaker.WindowSize)
	assert.Equal(t, 5, cfg.Breaker.MinimumCalls, "unset fields keep defaults")
	assert.Equal(t, 15*time.Second, cfg.Breaker.OpenTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_UnknownRepository(t *testing.T) {
	t.Setenv("ORDER_REPOSITORY", "mongo")
	_, err := Load()
	assert.Error(t, err)
}
