// Package notify delivers operational events to external channels
// (Telegram, Discord). Delivery is best-effort: a notification failure is
// logged and never propagates into the trading cycle.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs (e.g. "telegram").
	Name() string
}

// eventTitles maps engine event names to human-readable titles.
var eventTitles = map[string]string{
	"entry_executed":  "Entry Executed",
	"position_closed": "Position Closed",
	"cycle_error":     "Cycle Error",
}

// Notifier fans one event out to all configured senders, filtered by the
// allowed event set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With("component", "notifier"),
	}
}

// Notify forwards the event to every sender if its type is allowed.
// Individual sender failures are logged; one failing channel never blocks
// the others.
func (n *Notifier) Notify(ctx context.Context, event, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("event filtered out", "event", event)
		return
	}

	title, ok := eventTitles[event]
	if !ok {
		title = event
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("sender failed", "sender", s.Name(), "event", event, "error", err)
			continue
		}
		n.logger.Debug("notification sent", "sender", s.Name(), "event", event)
	}
}
