package despertador

import (
	"context"
	"time"
)

// NotificationBackend is the OS-level primitive that wakes the device at an
// absolute instant. Implementations may or may not replace an existing
// trigger with the same id; the Scheduler always cancels first.
type NotificationBackend interface {
	// CreateTrigger arms a trigger identified by ticketID at the given
	// instant and returns the backend's own identifier for it.
	CreateTrigger(ctx context.Context, ticketID string, at time.Time, payload Payload) (string, error)

	// Cancel disarms a trigger. Cancelling an unknown id is a no-op.
	Cancel(ctx context.Context, ticketID string) error

	// CancelAll disarms every trigger.
	CancelAll(ctx context.Context) error
}

// EventSource yields the asynchronous events of a NotificationBackend.
type EventSource interface {
	Subscribe(context.Context) Subscription
}

type Subscription interface {
	// C returns the event channel.
	//
	// If the subscriber can't keep up with the events coming from this
	// channel, the source unsubscribes it and closes its channel; in this
	// case, the subscription holder will need to subscribe again.
	C() <-chan Event

	// Close closes the subscription.
	Close() error
}

type EventType int

const (
	// Delivered means the trigger's instant was reached.
	Delivered EventType = iota + 1
	// Pressed means the user opened the notification itself.
	Pressed
	// ActionPressed means the user chose one of the notification actions.
	ActionPressed
)

func (t EventType) String() string {
	switch t {
	case Delivered:
		return "delivered"
	case Pressed:
		return "pressed"
	case ActionPressed:
		return "action"
	}
	return "unknown"
}

type Action string

const (
	ActionSnooze  Action = "snooze"
	ActionDismiss Action = "dismiss"
)

// Event is one backend event. Payload is whatever the backend got when the
// trigger was created; an empty Payload.AlarmID marks it as unusable.
type Event struct {
	Type     EventType `json:"type"`
	Action   Action    `json:"action,omitempty"`
	TicketID string    `json:"ticket_id"`
	At       time.Time `json:"at"`
	Payload  Payload   `json:"payload"`
}
