package despertador

import (
	"strings"
	"time"
)

// TicketKind distinguishes the triggers a single alarm may have pending.
type TicketKind int

const (
	Main TicketKind = iota
	Snooze
	WakeCheck
)

// TicketKinds lists every kind, in cancellation order.
var TicketKinds = []TicketKind{Main, Snooze, WakeCheck}

func (k TicketKind) String() string {
	switch k {
	case Main:
		return "main"
	case Snooze:
		return "snooze"
	case WakeCheck:
		return "wake-check"
	}
	return "unknown"
}

func (k TicketKind) suffix() string {
	if k == Main {
		return ""
	}
	return "-" + k.String()
}

// TicketID maps an (alarm, kind) pair to the identifier used with the
// notification backend. The mapping is deterministic, so any ticket can be
// cancelled without a lookup.
func TicketID(alarmID string, kind TicketKind) string {
	return alarmID + kind.suffix()
}

// ParseTicketID is the inverse of TicketID.
func ParseTicketID(id string) (alarmID string, kind TicketKind) {
	for _, k := range []TicketKind{Snooze, WakeCheck} {
		if s := k.suffix(); strings.HasSuffix(id, s) && len(id) > len(s) {
			return strings.TrimSuffix(id, s), k
		}
	}
	return id, Main
}

// Payload travels with a scheduled trigger and comes back with its delivery
// events, so handlers never need to read the alarm store.
type Payload struct {
	AlarmID   string     `json:"alarm_id"`
	Kind      TicketKind `json:"kind"`
	Recurring bool       `json:"recurring"`
	IsSnooze  bool       `json:"is_snooze"`

	Time             WallTime   `json:"time"`
	Recurrence       Recurrence `json:"recurrence"`
	SnoozeEnabled    bool       `json:"snooze_enabled"`
	WakeCheckEnabled bool       `json:"wake_check_enabled"`
	Display          Display    `json:"display"`

	// Nonce is unique per created ticket. It tells a delivery of the
	// current ticket apart from one of a ticket already superseded under
	// the same id. Epoch counts explicit cancellations of the alarm at
	// creation time.
	Nonce        string    `json:"nonce"`
	Epoch        uint64    `json:"epoch"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func newPayload(alarm *Alarm, kind TicketKind, nonce string, at time.Time) Payload {
	return Payload{
		AlarmID:          alarm.ID,
		Kind:             kind,
		Recurring:        IsRecurring(alarm.Recurrence),
		IsSnooze:         kind == Snooze,
		Time:             alarm.Time,
		Recurrence:       alarm.Recurrence,
		SnoozeEnabled:    alarm.SnoozeEnabled,
		WakeCheckEnabled: alarm.WakeCheckEnabled,
		Display:          alarm.Display,
		Nonce:            nonce,
		ScheduledFor:     at,
	}
}

// Alarm rebuilds the alarm definition the payload was created from.
func (p *Payload) Alarm() Alarm {
	return Alarm{
		ID:               p.AlarmID,
		Time:             p.Time,
		Recurrence:       p.Recurrence,
		Enabled:          true,
		SnoozeEnabled:    p.SnoozeEnabled,
		WakeCheckEnabled: p.WakeCheckEnabled,
		Display:          p.Display,
	}
}

// Ticket is the record of one trigger scheduled with the backend.
type Ticket struct {
	ID      string     `json:"id"`
	AlarmID string     `json:"alarm_id"`
	Kind    TicketKind `json:"kind"`
	At      time.Time  `json:"at"`
	Payload Payload    `json:"payload"`
}
