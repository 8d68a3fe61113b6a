package events

import (
	"context"
	"log/slog"
	"sync"
)

// PublishedEvent is a record kept by MockEventPublisher
type PublishedEvent struct {
	Topic string
	Event *Event
}

// MockEventPublisher records events in memory. Used by tests and when no bus is wanted.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	err    error
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (m *MockEventPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, PublishedEvent{Topic: topic, Event: event})
	if m.logger != nil {
		m.logger.Debug("Mock event published", "topic", topic, "event_type", event.Type)
	}
	return nil
}

func (m *MockEventPublisher) Close() error {
	return nil
}

// SetError makes subsequent Publish calls fail with err
func (m *MockEventPublisher) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MockEventPublisher) GetPublishedEvents() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsForTopic returns the recorded events of one topic
func (m *MockEventPublisher) EventsForTopic(topic string) []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, e := range m.events {
		if e.Topic == topic {
			out = append(out, e.Event)
		}
	}
	return out
}

func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}
