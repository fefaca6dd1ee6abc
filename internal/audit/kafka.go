package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaRecorder publishes audit events to a Kafka topic for the
// analytics collaborator. Publishing is fire-and-forget: a broker
// failure must never abort the ledger call that emitted the event.
type KafkaRecorder struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaRecorder creates a recorder publishing to the given brokers and topic
func NewKafkaRecorder(brokers []string, topic string, logger *zap.Logger) *KafkaRecorder {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	return &KafkaRecorder{writer: writer, logger: logger.Named("audit-kafka")}
}

// Record implements Recorder
func (r *KafkaRecorder) Record(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to encode audit event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: payload,
	}); err != nil {
		r.logger.Warn("failed to publish audit event",
			zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

// Close flushes and closes the underlying writer
func (r *KafkaRecorder) Close() error {
	return r.writer.Close()
}
