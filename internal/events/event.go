package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TopicAttemptSubmitted = "attempt.submitted"
	TopicReviewSubmitted  = "review.submitted"

	EventSource  = "mocktest-service"
	EventVersion = "1.0"
)

// Event is the envelope every message on the bus carries
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// AttemptSubmittedData is published once per attempt, after the submission commits
type AttemptSubmittedData struct {
	AttemptID uint    `json:"attempt_id"`
	UserID    string  `json:"user_id"`
	TestID    uint    `json:"test_id"`
	Score     float64 `json:"score"`
	Trigger   string  `json:"trigger"`
}

// ReviewSubmittedData is the optional testimonial attached to a submission
type ReviewSubmittedData struct {
	AttemptID uint   `json:"attempt_id"`
	UserID    string `json:"user_id"`
	TestID    uint   `json:"test_id"`
	Rating    int    `json:"rating"`
	Text      string `json:"text"`
}

// NewEvent wraps data in an envelope with a fresh id
func NewEvent(eventType string, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Decode unmarshals the payload into dest
func (e *Event) Decode(dest interface{}) error {
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", e.Type, err)
	}
	return nil
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}
