package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "M1", c.Ingest.Period)
	assert.Equal(t, "4w", c.Ingest.CalendarStep)
	assert.Equal(t, int64(10000), c.Ingest.IndexStep)
	assert.Equal(t, "2012-01-01", c.Ingest.DefaultFrom)
	assert.Equal(t, 6, c.Ingest.Concurrency)
	assert.Equal(t, 10*time.Millisecond, c.Ingest.Throttle)
	assert.Equal(t, 5, c.Ingest.FetchAttempts)
	assert.Equal(t, time.Second, c.Ingest.FetchInterval)
	assert.Equal(t, "rest-api", c.Ingest.Table.Schema)
	assert.Equal(t, "candles", c.Ingest.Table.Name)
	assert.Equal(t, "postgres", c.Storage.Driver)
	assert.Equal(t, time.Minute, c.Terminal.InclusiveEndOffset)
	assert.Equal(t, 3*time.Second, c.Discovery.Timeout)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
ingest:
  period: H1
  concurrency: 2
  instruments: [EURUSD, usdjpy]
storage:
  driver: clickhouse
registry:
  instruments:
    - {name: XAUUSD, index: 7, digits: 2}
`))
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, "H1", c.Ingest.Period)
	assert.Equal(t, 2, c.Ingest.Concurrency)
	assert.Equal(t, []string{"EURUSD", "usdjpy"}, c.Ingest.Instruments)
	assert.Equal(t, "clickhouse", c.Storage.Driver)
	require.Len(t, c.Registry.Instruments, 1)
	assert.Equal(t, 7, c.Registry.Instruments[0].Index)
	assert.Equal(t, "4w", c.Ingest.CalendarStep, "untouched keys keep defaults")
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"driver":      "storage: {driver: sqlite}",
		"concurrency": "ingest: {concurrency: 0}",
		"queue":       "queue: {driver: redis}",
		"registry":    "registry: {instruments: [{name: '', index: 9}]}",
		"yaml":        "ingest: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o600))

	t.Setenv("LOGGER_LVL", "DEBUG")
	t.Setenv("DB_URL", "postgres://u:p@db:5432/candles")
	t.Setenv("TERMINAL_PATH", `C:\terminal64.exe`)
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("DISCOVERY_URL", "http://api/symbols")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "postgres://u:p@db:5432/candles", c.Postgres.URL)
	assert.Equal(t, `C:\terminal64.exe`, c.Terminal.Path)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.True(t, c.Redis.Enabled)
	assert.True(t, c.Discovery.Enabled)
	assert.Equal(t, "http://api/symbols", c.Discovery.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
