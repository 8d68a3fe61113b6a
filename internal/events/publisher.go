package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// PubSubConfig selects the transport. Without brokers an in-process channel is used.
type PubSubConfig struct {
	KafkaBrokers  []string
	ConsumerGroup string
}

// PubSub bundles a publisher and subscriber on the same transport
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Transport  string
}

// NewPubSub builds Kafka or gochannel pub/sub
func NewPubSub(cfg PubSubConfig, logger *slog.Logger) (*PubSub, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if len(cfg.KafkaBrokers) == 0 {
		channel := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, wmLogger)
		return &PubSub{Publisher: channel, Subscriber: channel, Transport: "gochannel"}, nil
	}

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.KafkaBrokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		ConsumerGroup:         cfg.ConsumerGroup,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
	}

	return &PubSub{Publisher: publisher, Subscriber: subscriber, Transport: "kafka"}, nil
}

// Close closes both sides; gochannel shares one instance
func (p *PubSub) Close() error {
	err := p.Publisher.Close()
	if p.Transport == "gochannel" {
		return err
	}
	if subErr := p.Subscriber.Close(); subErr != nil && err == nil {
		err = subErr
	}
	return err
}

// WatermillPublisher publishes Events as JSON messages
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewWatermillPublisher(publisher message.Publisher, logger *slog.Logger) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *WatermillPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("source", event.Source)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("Event published", "topic", topic, "event_id", event.ID, "event_type", event.Type)
	return nil
}

// Close is a no-op; the PubSub owner closes the transport
func (p *WatermillPublisher) Close() error {
	return nil
}
