// Package events carries committed domain events over the message broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/thinkstack/apiserver/internal/mq"
)

// Channel is the broker channel every domain event is published on.
const Channel = "thinkstack.events"

// AttrType is the message attribute holding the event type, so consumers
// can filter without decoding the body.
const AttrType = "type"

// Envelope is the wire format of a domain event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher wraps domain events in an Envelope and sends them to a broker.
type Publisher struct {
	backend mq.Backend
	channel string
	now     func() time.Time
}

func NewPublisher(backend mq.Backend, now func() time.Time) *Publisher {
	if now == nil {
		now = time.Now
	}
	return &Publisher{backend: backend, channel: Channel, now: now}
}

// Publish encodes payload as JSON and sends it.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) error {
	body, err := Encode(eventType, payload, p.now())
	if err != nil {
		return err
	}
	if _, err := p.backend.Publish(ctx, p.channel, body, map[string]string{AttrType: eventType}); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Encode builds the envelope bytes for an event.
func Encode(eventType string, payload any, occurredAt time.Time) ([]byte, error) {
	if eventType == "" {
		return nil, errors.New("event type is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Payload:    raw,
	})
}

// Decode parses a broker message into an Envelope. The type attribute wins
// over an envelope without one.
func Decode(msg mq.Message) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if envelope.Type == "" {
		envelope.Type = msg.Attributes[AttrType]
	}
	if envelope.Type == "" {
		return Envelope{}, fmt.Errorf("decode event %s: missing type", msg.ID)
	}
	if _, err := uuid.Parse(envelope.ID); err != nil {
		envelope.ID = msg.ID
	}
	return envelope, nil
}

// Watch consumes events until ctx is done, handing each decoded envelope to
// fn. Undecodable messages are logged and acknowledged.
func Watch(ctx context.Context, backend mq.Backend, logger *slog.Logger, fn func(context.Context, Envelope) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	return backend.Subscribe(ctx, Channel, func(ctx context.Context, msg mq.Message) error {
		envelope, err := Decode(msg)
		if err != nil {
			logger.WarnContext(ctx, "dropping malformed event", "message_id", msg.ID, "error", err)
			return nil
		}
		return fn(ctx, envelope)
	})
}
