package despertador

import (
	"context"
	"fmt"
)

// ReconcileReport counts what a reconciliation pass did.
type ReconcileReport struct {
	Scheduled   int
	Rescheduled int
	Cancelled   int
	Kept        int
	Denied      int
	Failed      int
}

// Reconcile brings the live tickets in line with the alarm definitions:
// tickets of deleted or disabled alarms are cancelled (except the
// follow-ups of a one-shot alarm that already rang), edited alarms are
// rescheduled, and enabled alarms left without a pending ticket are
// scheduled again. The last case covers a process killed between a
// dismissal and the delivery that would have re-armed the alarm. A Main
// ticket overdue by more than DeliveryGrace is taken for lost and armed
// again. Occurrences count from the last delivered one, as the dispatcher
// re-arms, so a delivery arriving early does not ring twice.
//
// Per-alarm failures are counted and logged; only a failure to list the
// alarms is returned.
func (s *Scheduler) Reconcile(ctx context.Context, alarms AlarmLister) (ReconcileReport, error) {
	var report ReconcileReport

	list, err := alarms.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list alarms: %w", err)
	}
	byID := make(map[string]*Alarm, len(list))
	for i := range list {
		byID[list[i].ID] = &list[i]
	}

	cancelled := make(map[string]bool)
	for _, t := range s.Pending() {
		a, ok := byID[t.AlarmID]
		if ok && a.Enabled {
			continue
		}
		// A one-shot alarm is disabled once it rang; its snooze and wake
		// check still run.
		if ok && !IsRecurring(a.Recurrence) && t.Kind != Main {
			continue
		}
		if cancelled[t.AlarmID] {
			continue
		}
		cancelled[t.AlarmID] = true
		s.Cancel(ctx, t.AlarmID)
		report.Cancelled++
	}

	now := s.Now()
	for i := range list {
		a := &list[i]
		if !a.Enabled {
			continue
		}
		if err := a.Validate(); err != nil {
			s.Logger.Warn("invalid alarm skipped", "alarm", a.ID, "error", err)
			report.Failed++
			continue
		}

		// A snoozed alarm is still pending; a Main ticket whose instant
		// passed is about to be delivered, unless it is overdue by more
		// than the grace and the backend lost it.
		if _, ok := s.Lookup(TicketID(a.ID, Snooze)); ok {
			report.Kept++
			continue
		}
		from := s.rearmFrom(a.ID, now)
		main, ok := s.Lookup(TicketID(a.ID, Main))
		if ok && !main.At.After(now) {
			if !s.lost(&main, now) {
				report.Kept++
				continue
			}
			s.Logger.Warn("undelivered ticket rearmed", "ticket", main.ID, "at", main.At)
		} else if ok {
			want, err := NextTrigger(a.Time, a.Recurrence, from)
			if err == nil && want.Equal(main.At) && matches(&main.Payload, a) {
				report.Kept++
				continue
			}
		}

		if ok {
			s.Cancel(ctx, a.ID)
		}
		switch _, err := s.ScheduleAfter(ctx, *a, from); {
		case err == nil && ok:
			report.Rescheduled++
		case err == nil:
			report.Scheduled++
		case ErrorCode(err) == ErrPermissionDenied:
			report.Denied++
		default:
			s.Logger.Error("reconcile schedule failed", "alarm", a.ID, "error", err)
			report.Failed++
		}
	}

	s.Logger.Info("reconciled",
		"scheduled", report.Scheduled,
		"rescheduled", report.Rescheduled,
		"cancelled", report.Cancelled,
		"kept", report.Kept,
		"denied", report.Denied,
		"failed", report.Failed,
	)
	return report, nil
}

func matches(p *Payload, a *Alarm) bool {
	return p.Time == a.Time &&
		p.Recurrence == a.Recurrence &&
		p.SnoozeEnabled == a.SnoozeEnabled &&
		p.WakeCheckEnabled == a.WakeCheckEnabled &&
		p.Display == a.Display
}
