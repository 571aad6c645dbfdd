package despertador

import (
	"context"
	"io"
	"log/slog"
)

// Trigger asks the UI layer to open the challenge (or, for a wake check,
// the confirmation) screen of an alarm.
type Trigger struct {
	AlarmID string
	Kind    TicketKind
	Event   EventType
	Payload Payload
}

// Dispatcher consumes backend events and drives the Scheduler from them.
// It is the only component that arms the next occurrence of a recurring
// alarm.
//
// Handle never fails: it may run while the host is in a constrained
// background context, so every error is logged and dropped.
type Dispatcher struct {
	Scheduler     *Scheduler
	Events        EventSource
	SnoozeMinutes int
	Logger        *slog.Logger
	Metrics       *Metrics

	OnTrigger   func(context.Context, Trigger)
	OnSnoozed   func(ctx context.Context, alarmID, ticketID string)
	OnDismissed func(ctx context.Context, alarmID string)

	sub    Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(scheduler *Scheduler, events EventSource) *Dispatcher {
	return &Dispatcher{
		Scheduler:     scheduler,
		Events:        events,
		SnoozeMinutes: DefaultSnoozeMinutes,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		cancel:        func() {},
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)
	d.sub = d.Events.Subscribe(ctx)
	d.done = make(chan struct{})
	go d.run(ctx)
	return nil
}

// Interrupt stops the event loop and waits for the event in flight.
func (d *Dispatcher) Interrupt() error {
	d.cancel()
	if d.done != nil {
		<-d.done
	}
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.sub.Close()
			return

		case ev, ok := <-d.sub.C():
			if !ok {
				d.Logger.Warn("event subscription dropped, resubscribing")
				d.sub = d.Events.Subscribe(ctx)
				continue
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle processes one event.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error("event handler panicked",
				"ticket", ev.TicketID,
				"type", ev.Type.String(),
				"panic", r,
			)
		}
	}()

	p := &ev.Payload
	if p.AlarmID == "" {
		d.Metrics.event(ev.Type, "malformed")
		d.Logger.Debug("event without alarm id ignored", "ticket", ev.TicketID)
		return
	}

	if ev.Type == Delivered {
		d.delivered(ctx, &ev)
		return
	}

	if d.Scheduler.stale(p) {
		d.Metrics.event(ev.Type, "stale")
		d.Logger.Info("event for cancelled ticket ignored",
			"ticket", ev.TicketID,
			"type", ev.Type.String(),
		)
		return
	}

	switch {
	case ev.Type == Pressed:
		d.Metrics.event(ev.Type, "handled")
		d.trigger(ctx, &ev)
	case ev.Type == ActionPressed && ev.Action == ActionSnooze:
		d.Metrics.event(ev.Type, "handled")
		d.snooze(ctx, p)
	case ev.Type == ActionPressed && ev.Action == ActionDismiss:
		d.Metrics.event(ev.Type, "handled")
		d.dismiss(ctx, p)
	default:
		d.Metrics.event(ev.Type, "unknown")
		d.Logger.Debug("unknown event ignored",
			"ticket", ev.TicketID,
			"type", ev.Type.String(),
			"action", string(ev.Action),
		)
	}
}

func (d *Dispatcher) delivered(ctx context.Context, ev *Event) {
	p := &ev.Payload
	if !d.Scheduler.settleDelivery(ev) {
		d.Metrics.event(ev.Type, "stale")
		d.Logger.Info("stale delivery ignored", "ticket", ev.TicketID, "nonce", p.Nonce)
		return
	}
	d.Metrics.event(ev.Type, "handled")
	d.trigger(ctx, ev)

	// Snooze deliveries must not re-arm: the snooze already replaced the
	// Main ticket, and re-arming here would leave two future occurrences.
	if p.Kind != Main || p.IsSnooze || !p.Recurring {
		return
	}
	if _, err := d.Scheduler.ScheduleAfter(ctx, p.Alarm(), p.ScheduledFor); err != nil {
		d.Logger.Error("auto-reschedule failed", "alarm", p.AlarmID, "error", err)
	}
}

func (d *Dispatcher) trigger(ctx context.Context, ev *Event) {
	if d.OnTrigger == nil {
		return
	}
	d.OnTrigger(ctx, Trigger{
		AlarmID: ev.Payload.AlarmID,
		Kind:    ev.Payload.Kind,
		Event:   ev.Type,
		Payload: ev.Payload,
	})
}

func (d *Dispatcher) snooze(ctx context.Context, p *Payload) {
	if p.Kind == WakeCheck {
		d.Logger.Debug("snooze on wake check ignored", "alarm", p.AlarmID)
		return
	}
	if !p.SnoozeEnabled {
		d.Logger.Info("snooze of an alarm without snooze ignored", "alarm", p.AlarmID)
		return
	}
	minutes := d.SnoozeMinutes
	if minutes <= 0 {
		minutes = DefaultSnoozeMinutes
	}
	id, err := d.Scheduler.Snooze(ctx, p.Alarm(), minutes)
	if err != nil {
		d.Logger.Error("snooze failed", "alarm", p.AlarmID, "error", err)
		return
	}
	if d.OnSnoozed != nil {
		d.OnSnoozed(ctx, p.AlarmID, id)
	}
}

func (d *Dispatcher) dismiss(ctx context.Context, p *Payload) {
	alarm := p.Alarm()

	// Confirming a wake check only retires the check itself.
	if p.Kind == WakeCheck {
		d.Scheduler.cancel(ctx, alarm.ID, WakeCheck)
		if d.OnDismissed != nil {
			d.OnDismissed(ctx, alarm.ID)
		}
		return
	}

	d.Scheduler.Dismiss(ctx, alarm.ID)
	if p.Recurring {
		if _, err := d.Scheduler.ScheduleAfter(ctx, alarm, p.ScheduledFor); err != nil {
			d.Logger.Error("re-arm after dismiss failed", "alarm", alarm.ID, "error", err)
		}
	}
	if alarm.WakeCheckEnabled {
		if _, err := d.Scheduler.ScheduleWakeCheck(ctx, alarm); err != nil {
			d.Logger.Error("wake check failed", "alarm", alarm.ID, "error", err)
		}
	}
	if d.OnDismissed != nil {
		d.OnDismissed(ctx, alarm.ID)
	}
}
