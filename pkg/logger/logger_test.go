package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu       sync.Mutex
	topic    string
	payloads []interface{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("instrument", "EURUSD"), Int("batch", 2))

	l.Info("batch written", Int64("rows", 40))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "EURUSD", entry["instrument"])
	assert.Equal(t, float64(2), entry["batch"])
	assert.Equal(t, float64(40), entry["rows"])
	assert.Equal(t, "batch written", entry["message"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestCollectorAggregatesErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := NewWriter(&bytes.Buffer{}, "info")
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "candlepull.logs", Publisher: pub})

	child := l.With(String("instrument", "GBPUSD"))
	for i := 0; i < 3; i++ {
		child.Error("insert failed", Error(errors.New("boom")))
	}
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "candlepull.logs", pub.topic)
	entries := pub.payloads[0].([]AggregatedLogEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Count)
	assert.Equal(t, "GBPUSD", entries[0].Fields["instrument"])
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", map[string]interface{}{"instrument": "EURUSD"}, "x.go:2")

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.payloads) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFieldKinds(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "info").Info("m",
		Error(errors.New("boom")),
		Bool("dry", true),
		Duration("took", 1500*time.Millisecond),
		Any("ids", []int{1, 2}),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, true, entry["dry"])
	assert.Equal(t, float64(1500), entry["took"])
	assert.Equal(t, []interface{}{float64(1), float64(2)}, entry["ids"])
}
