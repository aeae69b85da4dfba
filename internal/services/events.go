package services

import (
	"context"
	"log/slog"
)

// Event types published after a transaction commits.
const (
	EventSolutionAccepted       = "solution.accepted"
	EventChallengeStatusChanged = "challenge.status_changed"
)

// EventPublisher delivers committed domain events to other processes.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error {
	return nil
}

// publish sends an event after commit. Delivery failures are logged and do
// not fail the operation that produced the event.
func publish(ctx context.Context, publisher EventPublisher, logger *slog.Logger, eventType string, payload any) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, eventType, payload); err != nil {
		logger.WarnContext(ctx, "publish event failed", "event", eventType, "error", err)
	}
}
