package despertador

import (
	"context"
	"strings"
)

// Display is opaque presentation metadata echoed into notification
// payloads.
type Display struct {
	Label string `json:"label,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Alarm is a user-defined wake-up request. Alarms are owned by an
// AlarmStore; the scheduling core only reads them.
type Alarm struct {
	ID         string     `json:"id"`
	Time       WallTime   `json:"time"`
	Recurrence Recurrence `json:"recurrence"`
	Enabled    bool       `json:"enabled"`

	SnoozeEnabled    bool `json:"snooze_enabled"`
	WakeCheckEnabled bool `json:"wake_check_enabled"`

	Display Display `json:"display"`
}

func (a *Alarm) Validate() error {
	if a.ID == "" {
		return Errorf(ErrInvalid, "alarm id is required")
	}
	for _, kind := range []TicketKind{Snooze, WakeCheck} {
		if strings.HasSuffix(a.ID, kind.suffix()) {
			return Errorf(ErrInvalid, "alarm id %q collides with the %s ticket namespace", a.ID, kind)
		}
	}
	if err := a.Time.Validate(); err != nil {
		return err
	}
	return a.Recurrence.Validate()
}

// AlarmLister lists every alarm definition, enabled or not.
type AlarmLister interface {
	List(ctx context.Context) ([]Alarm, error)
}

// AlarmStore persists alarm definitions. Implementations must call the
// Scheduler (or let a reconciliation pass run) after every change.
type AlarmStore interface {
	AlarmLister

	// Get returns the alarm with the given id, or an ErrNotFound error.
	Get(ctx context.Context, id string) (Alarm, error)

	// Put creates or replaces an alarm. An empty ID is assigned a fresh
	// one; the stored alarm is returned.
	Put(ctx context.Context, alarm Alarm) (Alarm, error)

	// Delete removes an alarm. Deleting a missing alarm is not an error.
	Delete(ctx context.Context, id string) error

	SetEnabled(ctx context.Context, id string, enabled bool) error
}
