package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/mocktest-service/internal/events"
)

// eventReviewSink forwards reviews to the testimonial store through the event bus
type eventReviewSink struct {
	publisher events.EventPublisher
}

func NewEventReviewSink(publisher events.EventPublisher) ReviewSink {
	return &eventReviewSink{publisher: publisher}
}

func (s *eventReviewSink) SubmitReview(ctx context.Context, review Review) error {
	event, err := events.NewEvent(events.TopicReviewSubmitted, events.ReviewSubmittedData{
		AttemptID: review.AttemptID,
		UserID:    review.UserID,
		TestID:    review.TestID,
		Rating:    review.Rating,
		Text:      review.Text,
	})
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, events.TopicReviewSubmitted, event); err != nil {
		return fmt.Errorf("failed to forward review: %w", err)
	}
	return nil
}
