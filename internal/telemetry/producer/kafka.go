package producer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"courier-auth/backend/internal/telemetry"
)

const kafkaWriteTimeout = 5 * time.Second

// messageWriter is the subset of *kafka.Writer used by KafkaProducer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

// NewKafkaProducer creates a Kafka producer that writes auth events to the given topic.
// Returns nil, nil when brokers or topic are empty so callers can treat Kafka as optional.
func NewKafkaProducer(brokers []string, topic string, log *zap.Logger) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaProducer(writer, topic, log), nil
}

func newKafkaProducer(w messageWriter, topic string, log *zap.Logger) *KafkaProducer {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaProducer{writer: w, topic: topic, log: log}
}

// Emit writes the event as JSON keyed by user ID, so one user's events stay on one partition.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		p.log.Warn("telemetry: kafka emit failed", zap.String("topic", p.topic), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call on a nil producer.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
