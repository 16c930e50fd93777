package producer

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"courier-auth/backend/internal/telemetry"
)

// WatermillProducer publishes auth events through a watermill Publisher (Redis Streams in production).
type WatermillProducer struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillProducer wraps publisher. topic must be non-empty.
func NewWatermillProducer(publisher message.Publisher, topic string) (*WatermillProducer, error) {
	if publisher == nil {
		return nil, errors.New("producer: nil publisher")
	}
	if topic == "" {
		return nil, errors.New("producer: empty topic")
	}
	return &WatermillProducer{publisher: publisher, topic: topic}, nil
}

// NewRedisStreamProducer publishes to a Redis stream named topic using client.
func NewRedisStreamProducer(client redis.UniversalClient, topic string, logger watermill.LoggerAdapter) (*WatermillProducer, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, logger)
	if err != nil {
		return nil, err
	}
	return NewWatermillProducer(pub, topic)
}

// Emit publishes the event as JSON. The message UUID is the event ID.
func (p *WatermillProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || event == nil {
		return nil
	}
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("type", event.Type)
	msg.Metadata.Set("source", event.Source)
	msg.SetContext(ctx)
	return p.publisher.Publish(p.topic, msg)
}

// Close closes the underlying publisher.
func (p *WatermillProducer) Close() error {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.Close()
}
