package repository

import (
	"context"

	"CandlePull/internal/domain/models"
	domrepo "CandlePull/internal/domain/repository"
	pkgkafka "CandlePull/pkg/kafka"
)

type batchProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher announces written batches keyed by instrument, so one
// instrument's events stay ordered on a partition.
type KafkaEventPublisher struct {
	producer batchProducer
	topic    string
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishBatch(ctx context.Context, ev models.BatchEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Instrument), ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopEventPublisher drops every event. Used when Kafka is not configured.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishBatch(context.Context, models.BatchEvent) error { return nil }
func (NopEventPublisher) Close() error                                          { return nil }
