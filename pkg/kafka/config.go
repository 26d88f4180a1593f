package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption adjusts the writer built by NewProducer.
type ProducerOption func(*kafka.Writer)

func WithBrokers(brokers []string) ProducerOption {
	return func(w *kafka.Writer) {
		if len(brokers) > 0 {
			w.Addr = kafka.TCP(brokers...)
		}
	}
}

// WithCompression accepts gzip, lz4, zstd or snappy. Anything else means snappy.
func WithCompression(name string) ProducerOption {
	return func(w *kafka.Writer) { w.Compression = parseCompression(name) }
}

// WithRequiredAcks takes -1 for all replicas.
func WithRequiredAcks(acks int) ProducerOption {
	return func(w *kafka.Writer) { w.RequiredAcks = kafka.RequiredAcks(acks) }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(w *kafka.Writer) {
		if n > 0 {
			w.MaxAttempts = n
		}
	}
}

// WithBatching ignores zero values.
func WithBatching(size int, linger time.Duration) ProducerOption {
	return func(w *kafka.Writer) {
		if size > 0 {
			w.BatchSize = size
		}
		if linger > 0 {
			w.BatchTimeout = linger
		}
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(w *kafka.Writer) {
		w.WriteTimeout, w.ReadTimeout = write, read
	}
}

func WithAsync(async bool) ProducerOption {
	return func(w *kafka.Writer) { w.Async = async }
}

func WithAutoCreateTopics(on bool) ProducerOption {
	return func(w *kafka.Writer) { w.AllowAutoTopicCreation = on }
}

// WithHashByKey keeps one instrument's events on one partition.
func WithHashByKey(hash bool) ProducerOption {
	return func(w *kafka.Writer) {
		if hash {
			w.Balancer = &kafka.Hash{}
		} else {
			w.Balancer = &kafka.LeastBytes{}
		}
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}
