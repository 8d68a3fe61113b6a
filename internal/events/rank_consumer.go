package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// RankRecalculator rebuilds one user's rank metric from their submitted attempts
type RankRecalculator interface {
	Recalculate(ctx context.Context, userID string) error
}

type ConsumerConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MaxRetries:      5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// RankConsumer recomputes rank metrics for every attempt.submitted event.
// Recalculation is a full rebuild, so redelivery is harmless.
type RankConsumer struct {
	router       *message.Router
	recalculator RankRecalculator
	logger       *slog.Logger
}

func NewRankConsumer(subscriber message.Subscriber, recalculator RankRecalculator, cfg ConsumerConfig, logger *slog.Logger) (*RankConsumer, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	consumer := &RankConsumer{
		router:       router,
		recalculator: recalculator,
		logger:       logger,
	}

	retry := middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      2,
		Logger:          wmLogger,
	}

	// outermost first: give up after retries, retry, turn panics into errors
	router.AddMiddleware(consumer.dropAfterRetries, retry.Middleware, middleware.Recoverer)

	router.AddNoPublisherHandler(
		"rank_recalculation",
		TopicAttemptSubmitted,
		subscriber,
		consumer.handle,
	)

	return consumer, nil
}

func (c *RankConsumer) handle(msg *message.Message) error {
	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.Error("Dropping malformed event", "message_uuid", msg.UUID, "error", err)
		return nil
	}

	var data AttemptSubmittedData
	if err := event.Decode(&data); err != nil || data.UserID == "" {
		c.logger.Error("Dropping attempt.submitted event without user", "event_id", event.ID, "error", err)
		return nil
	}

	if err := c.recalculator.Recalculate(msg.Context(), data.UserID); err != nil {
		return fmt.Errorf("rank recalculation for user %s: %w", data.UserID, err)
	}

	c.logger.Info("Rank recalculated", "user_id", data.UserID, "attempt_id", data.AttemptID)
	return nil
}

// dropAfterRetries acks messages whose retries are exhausted so they are not redelivered forever
func (c *RankConsumer) dropAfterRetries(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		produced, err := h(msg)
		if err != nil {
			c.logger.Error("Rank recalculation failed after retries", "message_uuid", msg.UUID, "error", err)
			return nil, nil
		}
		return produced, nil
	}
}

// Run blocks until ctx is cancelled or the router is closed
func (c *RankConsumer) Run(ctx context.Context) error {
	return c.router.Run(ctx)
}

// Running is closed once handlers are subscribed
func (c *RankConsumer) Running() chan struct{} {
	return c.router.Running()
}

// WaitRunning blocks until the subscription exists. Events published on a
// non-persistent transport before that point are lost.
func (c *RankConsumer) WaitRunning(ctx context.Context) error {
	select {
	case <-c.Running():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rank consumer did not start: %w", ctx.Err())
	}
}

func (c *RankConsumer) Close() error {
	return c.router.Close()
}
