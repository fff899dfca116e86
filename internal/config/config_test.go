package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"goflare.io/punchclock/internal/retrier"
	"goflare.io/punchclock/pkg/serialization"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.CacheConfig.DefaultExpiration)
	assert.Equal(t, 50, cfg.CacheConfig.MaxEntries)
	assert.Equal(t, "cache_", cfg.CacheConfig.Namespace)
	assert.Equal(t, 3, cfg.QueueConfig.MaxAttempts)
	assert.Equal(t, 2, cfg.ResilienceConfig.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.IdentityConfig.MaxAge)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeouts.Request)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeouts.Verify)
	assert.Equal(t, 2*time.Second, cfg.HTTPTimeouts.Quote)
	assert.Equal(t, serialization.JSONType, cfg.Serialization.Type)
	assert.Equal(t, retrier.ExponentialBackoff, cfg.ResilienceConfig.Backoff)
	assert.NotNil(t, cfg.Logger)
}

func TestNewConfigOptions(t *testing.T) {
	fixed := time.Date(2025, 10, 28, 9, 0, 0, 0, time.UTC)
	cfg, err := NewConfig(
		WithMaxEntries(10),
		WithDefaultExpiration(time.Minute),
		WithClock(func() time.Time { return fixed }),
		WithSerialization(serialization.GobType),
		WithReplayRate(5, 0),
	)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.CacheConfig.MaxEntries)
	assert.Equal(t, time.Minute, cfg.CacheConfig.DefaultExpiration)
	assert.Equal(t, fixed, cfg.Now())
	assert.Equal(t, serialization.GobType, cfg.Serialization.Type)
	assert.Equal(t, rate.Limit(5), cfg.QueueConfig.ReplayRate)
	assert.Equal(t, 1, cfg.QueueConfig.ReplayBurst)
}

func TestNewConfigRejectsInvalid(t *testing.T) {
	_, err := NewConfig(WithMaxEntries(0))
	assert.ErrorIs(t, err, ErrMaxEntriesZero)

	_, err = NewConfig(WithTimeouts(0, time.Second, time.Second))
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	_, err = NewConfig(WithSerialization("xml"))
	assert.Error(t, err)

	_, err = NewConfig(WithBackoff("random"))
	assert.ErrorIs(t, err, retrier.ErrUnknownStrategy)
}

func TestWithBackoff(t *testing.T) {
	cfg, err := NewConfig(WithBackoff("fibonacci"))
	require.NoError(t, err)
	assert.Equal(t, retrier.FibonacciBackoff, cfg.ResilienceConfig.Backoff)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "punchclock.yaml")
	content := `
api:
  base_url: https://attendance.example.com
  timeout: 10s
cache:
  default_ttl: 2m
  max_entries: 20
  hot_cache: false
retry:
  attempts: 4
  backoff: linear
queue:
  replay_per_second: 2
  replay_burst: 3
timezone: Asia/Kolkata
store:
  type: sqlite
  sqlite_path: ./data/punchclock.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", f.Store.Type)

	opts, err := f.Options()
	require.NoError(t, err)

	cfg, err := NewConfig(opts...)
	require.NoError(t, err)
	assert.Equal(t, "https://attendance.example.com", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeouts.Request)
	assert.Equal(t, 2*time.Minute, cfg.CacheConfig.DefaultExpiration)
	assert.Equal(t, 20, cfg.CacheConfig.MaxEntries)
	assert.False(t, cfg.CacheConfig.EnableHotCache)
	assert.Equal(t, rate.Limit(2), cfg.QueueConfig.ReplayRate)
	assert.Equal(t, 3, cfg.QueueConfig.ReplayBurst)
	assert.Equal(t, "Asia/Kolkata", cfg.Location.String())
	assert.Equal(t, 4, cfg.ResilienceConfig.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.ResilienceConfig.InitialInterval)
	assert.Equal(t, retrier.LinearBackoff, cfg.ResilienceConfig.Backoff)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
