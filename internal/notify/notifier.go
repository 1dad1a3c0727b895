// Package notify delivers member change events to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/team-hours/internal/application"
)

// Message is the JSON body published for an event.
type Message struct {
	Scope      string    `json:"scope"`
	Kind       string    `json:"kind"`
	MemberID   string    `json:"memberId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewMessage converts an application event to its wire form.
func NewMessage(event application.Event) Message {
	return Message{
		Scope:      event.Scope,
		Kind:       string(event.Kind),
		MemberID:   event.MemberID,
		OccurredAt: event.OccurredAt.UTC(),
	}
}

// AMQPNotifier publishes events as JSON to an exchange. The event kind
// is used as the routing key.
type AMQPNotifier struct {
	publisher Publisher
	exchange  string
	logger    *slog.Logger
}

var _ application.Notifier = (*AMQPNotifier)(nil)

// NewAMQPNotifier returns a notifier publishing through publisher.
func NewAMQPNotifier(publisher Publisher, exchange string, logger *slog.Logger) *AMQPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPNotifier{publisher: publisher, exchange: exchange, logger: logger}
}

// Publish encodes and sends event.
func (n *AMQPNotifier) Publish(ctx context.Context, event application.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(NewMessage(event))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.publisher.Publish(n.exchange, string(event.Kind), body); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Kind, n.exchange, err)
	}
	n.logger.DebugContext(ctx, "event published", "exchange", n.exchange, "kind", string(event.Kind), "scope", event.Scope)
	return nil
}

// LogNotifier writes events to a logger. It is used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs at info level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Publish logs the event.
func (n *LogNotifier) Publish(ctx context.Context, event application.Event) error {
	n.logger.InfoContext(ctx, "change event",
		"scope", event.Scope,
		"kind", string(event.Kind),
		"member_id", event.MemberID,
		"occurred_at", event.OccurredAt,
	)
	return nil
}
