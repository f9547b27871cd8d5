// Package notification publishes customer and admin alerts.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/internal/infrastructure/metrics"
	"verifyflow.backend/pkg/crypto"
	"verifyflow.backend/pkg/logger"
)

// Message is the JSON document written to the notifications topic
type Message struct {
	CustomerID string                    `json:"customerId"`
	Kind       entities.NotificationKind `json:"kind"`
	Payload    any                       `json:"payload,omitempty"`
	OccurredAt time.Time                 `json:"occurredAt"`
}

// Producer is the subset of *kgo.Client the notifier needs
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaNotifier publishes notifications keyed by customer id
type KafkaNotifier struct {
	producer Producer
	topic    string
	now      func() time.Time
}

// NewKafkaNotifier connects a franz-go client to brokers
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return NewKafkaNotifierWithProducer(client, topic), nil
}

// NewKafkaNotifierWithProducer wraps an existing producer
func NewKafkaNotifierWithProducer(producer Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, now: time.Now}
}

// Notify enqueues the message and returns without waiting for the broker.
// Delivery failures are logged and counted.
func (n *KafkaNotifier) Notify(ctx context.Context, customerID string, kind entities.NotificationKind, payload map[string]any) error {
	value, err := json.Marshal(Message{
		CustomerID: customerID,
		Kind:       kind,
		Payload:    crypto.Redact(payload),
		OccurredAt: n.now().UTC(),
	})
	if err != nil {
		metrics.Notifications.WithLabelValues(string(kind), "error").Inc()
		return fmt.Errorf("encode notification: %w", err)
	}

	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(customerID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(kind)},
		},
	}
	// the record outlives the caller's request
	n.producer.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			metrics.Notifications.WithLabelValues(string(kind), "error").Inc()
			logger.Error(ctx, "Failed to publish notification",
				zap.String("kind", string(kind)),
				zap.String("customer_id", customerID),
				zap.Error(err),
			)
			return
		}
		metrics.Notifications.WithLabelValues(string(kind), "sent").Inc()
	})
	return nil
}

// Close flushes buffered records and closes the client
func (n *KafkaNotifier) Close(ctx context.Context) error {
	err := n.producer.Flush(ctx)
	n.producer.Close()
	return err
}

// LogNotifier writes notifications to the log when no broker is configured
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, customerID string, kind entities.NotificationKind, payload map[string]any) error {
	logger.Info(ctx, "Notification",
		zap.String("kind", string(kind)),
		zap.String("customer_id", customerID),
		zap.Any("payload", crypto.Redact(payload)),
	)
	metrics.Notifications.WithLabelValues(string(kind), "logged").Inc()
	return nil
}

func (n *LogNotifier) Close(context.Context) error { return nil }
