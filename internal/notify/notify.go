// Package notify delivers email and push notices triggered by domain events.
// Delivery never affects the outcome of the request that caused it.
package notify

import (
	"context"
	"strings"
)

// Event names a notification trigger.
type Event string

const (
	EventUploadSucceeded Event = "upload_succeeded"
	EventUploadFailed    Event = "upload_failed"
	EventReportOpened    Event = "report_opened"
	EventReportResolved  Event = "report_resolved"
	EventUserValidated   Event = "user_validated"
)

// Message is a rendered notification.
type Message struct {
	Event   Event
	To      []string
	Subject string
	Body    string
}

// Recipients returns the trimmed, de-duplicated, non-empty addresses of m.
func (m Message) Recipients() []string {
	seen := make(map[string]struct{}, len(m.To))
	out := make([]string, 0, len(m.To))
	for _, to := range m.To {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		key := strings.ToLower(to)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, to)
	}
	return out
}

// Dispatcher delivers one message synchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg Message) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Notifier hands a message off without waiting for delivery.
type Notifier interface {
	Fire(msg Message)
}

// Discard is a Notifier that drops everything.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Fire(Message) {}
