package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishBatchEncodes(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "snappy")

	err := p.PublishBatch(context.Background(), "candles.ingested", []Message{
		{Key: []byte("EURUSD"), Value: map[string]int{"rows": 40}},
		{Key: []byte("GBPUSD"), Value: "raw"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "candles.ingested", w.msgs[0].Topic)
	assert.Equal(t, []byte("EURUSD"), w.msgs[0].Key)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &payload))
	assert.Equal(t, 40, payload["rows"])
	assert.Equal(t, []byte("raw"), w.msgs[1].Value)
}

func TestPublishMessageIsUnkeyed(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, newProducer(w, "snappy").PublishMessage(context.Background(), "log.collect.error", []string{"x"}))
	require.Len(t, w.msgs, 1)
	assert.Nil(t, w.msgs[0].Key)
}

func TestPublishErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := newProducer(w, "snappy")

	assert.ErrorContains(t, p.Publish(context.Background(), "t", nil, 1), "leader not available")
	assert.NoError(t, p.PublishBatch(context.Background(), "t", nil))

	err := p.Publish(context.Background(), "t", nil, func() {})
	assert.ErrorContains(t, err, "marshal value")
}

func TestNewProducerNeedsBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestProducerOptions(t *testing.T) {
	w := &kafka.Writer{}
	for _, opt := range []ProducerOption{
		WithBrokers([]string{"k1:9092", "k2:9092"}),
		WithCompression("zstd"),
		WithBatching(0, 0),
		WithHashByKey(false),
		WithMaxAttempts(5),
	} {
		opt(w)
	}
	require.NotNil(t, w.Addr)
	assert.Contains(t, w.Addr.String(), "k2:9092")
	assert.Equal(t, kafka.Zstd, w.Compression)
	assert.Zero(t, w.BatchSize)
	assert.IsType(t, &kafka.LeastBytes{}, w.Balancer)
	assert.Equal(t, 5, w.MaxAttempts)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
