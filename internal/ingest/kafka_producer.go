package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/tracking"
)

const publishTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes provider position updates and tracking snapshots.
// It is a tracking.Sink.
type KafkaProducer struct {
	positions messageWriter
	tracking  messageWriter
}

func NewKafkaProducer(brokers []string, positionsTopic, trackingTopic string) *KafkaProducer {
	return &KafkaProducer{
		positions: kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: positionsTopic, Balancer: &kafka.Hash{}}),
		tracking:  kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: trackingTopic, Balancer: &kafka.Hash{}}),
	}
}

// PublishProvider publishes p keyed by provider id so updates for one
// provider stay ordered.
func (k *KafkaProducer) PublishProvider(ctx context.Context, p models.ProviderRecord) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return k.positions.WriteMessages(ctx, kafka.Message{Key: []byte(p.ID), Value: b})
}

func (k *KafkaProducer) Publish(ctx context.Context, snap tracking.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return k.tracking.WriteMessages(ctx, kafka.Message{Key: []byte(snap.BookingID), Value: b, Time: snap.At})
}

func (k *KafkaProducer) Close() error {
	var errs []error
	for _, w := range []messageWriter{k.positions, k.tracking} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	return errors.Join(errs...)
}
