package despertador_test

import (
	"context"
	"testing"
	"time"

	"bsid.es/despertador"
)

type hooks struct {
	triggers  []despertador.Trigger
	snoozed   []string
	dismissed []string
}

func newDispatcher(f *fixture) (*despertador.Dispatcher, *hooks) {
	h := &hooks{}
	d := despertador.NewDispatcher(f.s, f.backend)
	d.Metrics = f.s.Metrics
	d.OnTrigger = func(ctx context.Context, t despertador.Trigger) {
		h.triggers = append(h.triggers, t)
	}
	d.OnSnoozed = func(ctx context.Context, alarmID, ticketID string) {
		h.snoozed = append(h.snoozed, ticketID)
	}
	d.OnDismissed = func(ctx context.Context, alarmID string) {
		h.dismissed = append(h.dismissed, alarmID)
	}
	return d, h
}

func delivered(t despertador.Ticket) despertador.Event {
	return despertador.Event{Type: despertador.Delivered, TicketID: t.ID, At: t.At, Payload: t.Payload}
}

func acted(t despertador.Ticket, action despertador.Action) despertador.Event {
	return despertador.Event{Type: despertador.ActionPressed, Action: action, TicketID: t.ID, At: t.At, Payload: t.Payload}
}

// ring moves the clock to the ticket's instant and delivers it. The
// backend forgets a trigger once it fired.
func ring(f *fixture, d *despertador.Dispatcher, id string) despertador.Ticket {
	ctx := context.Background()
	t := f.armed()[id]
	f.now = t.At
	f.backend.Cancel(ctx, id)
	d.Handle(ctx, delivered(t))
	return t
}

func TestDispatcherReschedulesRecurringAlarm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	if _, err := f.s.Schedule(ctx, gymAlarm()); err != nil {
		t.Fatal(err)
	}
	wednesday := ring(f, d, "gym")

	if got, want := len(h.triggers), 1; got != want {
		t.Fatalf("wrong number of triggers\ngot:  %d\nwant: %d", got, want)
	}
	if tr := h.triggers[0]; tr.AlarmID != "gym" || tr.Kind != despertador.Main || tr.Event != despertador.Delivered {
		t.Errorf("wrong trigger %+v", tr)
	}

	f.assertArmed(t, "gym")
	if got, want := f.armed()["gym"].At, wednesday.At.AddDate(0, 0, 2); !got.Equal(want) {
		t.Errorf("wrong next occurrence\ngot:  %v\nwant: %v", got, want)
	}

	// The same delivery reported twice rings once.
	d.Handle(ctx, delivered(wednesday))
	if got, want := len(h.triggers), 1; got != want {
		t.Errorf("wrong number of triggers after duplicate\ngot:  %d\nwant: %d", got, want)
	}
	f.assertArmed(t, "gym")
}

func TestDispatcherOnceAlarmIsNotRescheduled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	a := gymAlarm()
	a.Recurrence = despertador.Once
	if _, err := f.s.Schedule(ctx, a); err != nil {
		t.Fatal(err)
	}
	ring(f, d, "gym")

	if got, want := len(h.triggers), 1; got != want {
		t.Errorf("wrong number of triggers\ngot:  %d\nwant: %d", got, want)
	}
	f.assertArmed(t)
}

func TestDispatcherSnoozeDeliveryDoesNotReschedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)
	d.SnoozeMinutes = 7

	if _, err := f.s.Schedule(ctx, gymAlarm()); err != nil {
		t.Fatal(err)
	}
	main := ring(f, d, "gym")

	d.Handle(ctx, acted(main, despertador.ActionSnooze))
	f.assertArmed(t, "gym-snooze")
	if got, want := f.armed()["gym-snooze"].At, main.At.Add(7*time.Minute); !got.Equal(want) {
		t.Errorf("wrong snooze instant\ngot:  %v\nwant: %v", got, want)
	}
	if len(h.snoozed) != 1 || h.snoozed[0] != "gym-snooze" {
		t.Errorf("wrong snooze notifications %v", h.snoozed)
	}

	snooze := ring(f, d, "gym-snooze")
	if got, want := len(h.triggers), 2; got != want {
		t.Fatalf("wrong number of triggers\ngot:  %d\nwant: %d", got, want)
	}
	if got := h.triggers[1].Kind; got != despertador.Snooze {
		t.Errorf("wrong trigger kind %v", got)
	}
	// No Main ticket appears until the snoozed alarm is dismissed.
	f.assertArmed(t)

	d.Handle(ctx, acted(snooze, despertador.ActionDismiss))
	f.assertArmed(t, "gym")
	if got, want := f.armed()["gym"].At, main.At.AddDate(0, 0, 2); !got.Equal(want) {
		t.Errorf("wrong next occurrence\ngot:  %v\nwant: %v", got, want)
	}
}

func TestDispatcherIgnoresDeliveryOfCancelledTicket(t *testing.T) {
	for _, name := range []string{"dismiss", "cancel"} {
		name := name
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			d, h := newDispatcher(f)

			if _, err := f.s.Schedule(ctx, gymAlarm()); err != nil {
				t.Fatal(err)
			}
			ticket := f.armed()["gym"]
			if name == "dismiss" {
				f.s.Dismiss(ctx, "gym")
			} else {
				f.s.Cancel(ctx, "gym")
			}

			// The backend raced the cancellation.
			f.now = ticket.At
			d.Handle(ctx, delivered(ticket))

			if len(h.triggers) != 0 {
				t.Errorf("stale delivery surfaced: %+v", h.triggers)
			}
			f.assertArmed(t)
		})
	}
}

func TestDispatcherIgnoresSupersededDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	if _, err := f.s.Schedule(ctx, gymAlarm()); err != nil {
		t.Fatal(err)
	}
	old := f.armed()["gym"]
	edited := gymAlarm()
	edited.Time = despertador.WallTime{Hour: 9}
	if _, err := f.s.Schedule(ctx, edited); err != nil {
		t.Fatal(err)
	}

	d.Handle(ctx, delivered(old))
	if len(h.triggers) != 0 {
		t.Errorf("superseded delivery surfaced: %+v", h.triggers)
	}
	f.assertArmed(t, "gym")
	if got := f.armed()["gym"].Payload.Time; got != edited.Time {
		t.Errorf("wrong live ticket time %v", got)
	}
}

func TestDispatcherIgnoresActionsAfterCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	if _, err := f.s.Schedule(ctx, gymAlarm()); err != nil {
		t.Fatal(err)
	}
	main := ring(f, d, "gym")

	// Deleting the alarm while its notification is still on screen.
	f.s.Cancel(ctx, "gym")
	d.Handle(ctx, acted(main, despertador.ActionSnooze))
	d.Handle(ctx, acted(main, despertador.ActionDismiss))

	f.assertArmed(t)
	if len(h.snoozed) != 0 || len(h.dismissed) != 0 {
		t.Errorf("stale actions handled: snoozed %v, dismissed %v", h.snoozed, h.dismissed)
	}
}

func TestDispatcherIgnoresActionsAfterDismiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	if _, err := f.s.Schedule(ctx, gymAlarm()); err != nil {
		t.Fatal(err)
	}
	main := ring(f, d, "gym")
	d.Handle(ctx, acted(main, despertador.ActionDismiss))
	f.assertArmed(t, "gym")
	next := f.armed()["gym"]

	// Late taps on the notification that was just dismissed.
	d.Handle(ctx, acted(main, despertador.ActionSnooze))
	d.Handle(ctx, despertador.Event{Type: despertador.Pressed, TicketID: main.ID, Payload: main.Payload})
	d.Handle(ctx, acted(main, despertador.ActionDismiss))

	f.assertArmed(t, "gym")
	if got := f.armed()["gym"].Payload.Nonce; got != next.Payload.Nonce {
		t.Errorf("next occurrence was replaced\ngot:  %s\nwant: %s", got, next.Payload.Nonce)
	}
	if len(h.snoozed) != 0 {
		t.Errorf("late snooze handled: %v", h.snoozed)
	}
	if got, want := len(h.triggers), 1; got != want {
		t.Errorf("wrong number of triggers\ngot:  %d\nwant: %d", got, want)
	}
	if got, want := len(h.dismissed), 1; got != want {
		t.Errorf("wrong number of dismiss notifications\ngot:  %d\nwant: %d", got, want)
	}
}

func TestDispatcherIgnoresSnoozeWhenDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	a := gymAlarm()
	a.SnoozeEnabled = false
	if _, err := f.s.Schedule(ctx, a); err != nil {
		t.Fatal(err)
	}
	main := ring(f, d, "gym")
	next := f.armed()["gym"]

	d.Handle(ctx, acted(main, despertador.ActionSnooze))
	f.assertArmed(t, "gym")
	if got := f.armed()["gym"].Payload.Nonce; got != next.Payload.Nonce {
		t.Errorf("next occurrence was replaced\ngot:  %s\nwant: %s", got, next.Payload.Nonce)
	}
	if len(h.snoozed) != 0 {
		t.Errorf("snooze handled: %v", h.snoozed)
	}
}

func TestDispatcherDismissSchedulesWakeCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	a := gymAlarm()
	a.WakeCheckEnabled = true
	if _, err := f.s.Schedule(ctx, a); err != nil {
		t.Fatal(err)
	}
	main := ring(f, d, "gym")

	d.Handle(ctx, acted(main, despertador.ActionDismiss))
	f.assertArmed(t, "gym", "gym-wake-check")
	if got, want := f.armed()["gym-wake-check"].At, main.At.Add(despertador.DefaultWakeCheckDelay); !got.Equal(want) {
		t.Errorf("wrong wake check instant\ngot:  %v\nwant: %v", got, want)
	}
	if len(h.dismissed) != 1 {
		t.Errorf("wrong dismiss notifications %v", h.dismissed)
	}

	// The wake check rings; snoozing it does nothing and confirming it
	// only retires the check.
	check := ring(f, d, "gym-wake-check")
	if got := h.triggers[len(h.triggers)-1].Kind; got != despertador.WakeCheck {
		t.Errorf("wrong trigger kind %v", got)
	}
	d.Handle(ctx, acted(check, despertador.ActionSnooze))
	f.assertArmed(t, "gym")
	d.Handle(ctx, acted(check, despertador.ActionDismiss))
	f.assertArmed(t, "gym")
	if got, want := len(h.dismissed), 2; got != want {
		t.Errorf("wrong number of dismiss notifications\ngot:  %d\nwant: %d", got, want)
	}
}

func TestDispatcherPressed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	if _, err := f.s.Schedule(ctx, gymAlarm()); err != nil {
		t.Fatal(err)
	}
	main := ring(f, d, "gym")
	before := f.armed()["gym"]

	d.Handle(ctx, despertador.Event{Type: despertador.Pressed, TicketID: main.ID, Payload: main.Payload})
	if got, want := len(h.triggers), 2; got != want {
		t.Fatalf("wrong number of triggers\ngot:  %d\nwant: %d", got, want)
	}
	if got := h.triggers[1].Event; got != despertador.Pressed {
		t.Errorf("wrong trigger event %v", got)
	}
	if after := f.armed()["gym"]; after.Payload.Nonce != before.Payload.Nonce {
		t.Error("pressing a notification rescheduled the alarm")
	}
}

func TestDispatcherIgnoresMalformedEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, h := newDispatcher(f)

	d.Handle(ctx, despertador.Event{Type: despertador.Delivered, TicketID: "gym"})
	d.Handle(ctx, despertador.Event{Type: despertador.ActionPressed, Action: despertador.ActionSnooze, TicketID: "gym"})
	d.Handle(ctx, despertador.Event{
		Type:     despertador.ActionPressed,
		Action:   "open-settings",
		TicketID: "gym",
		Payload:  despertador.Payload{AlarmID: "gym"},
	})

	if len(h.triggers)+len(h.snoozed)+len(h.dismissed) != 0 {
		t.Errorf("malformed events handled: %+v", h)
	}
	f.assertArmed(t)
}

func TestDispatcherRecoversFromPanickingHook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, _ := newDispatcher(f)
	d.OnTrigger = func(context.Context, despertador.Trigger) {
		panic("ui crashed")
	}

	if _, err := f.s.Schedule(ctx, gymAlarm()); err != nil {
		t.Fatal(err)
	}
	ring(f, d, "gym")
}

func TestDispatcherRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFixture(t)
	f.backend.Now = time.Now
	f.s.Now = time.Now
	f.s.WakeCheckDelay = 10 * time.Millisecond

	triggers := make(chan despertador.Trigger, 1)
	dismissed := make(chan string, 1)
	d := despertador.NewDispatcher(f.s, f.backend)
	d.OnTrigger = func(ctx context.Context, t despertador.Trigger) {
		triggers <- t
	}
	d.OnDismissed = func(ctx context.Context, alarmID string) {
		dismissed <- alarmID
	}

	d.Run(ctx)
	defer d.Interrupt()
	f.backend.Run(ctx)
	defer f.backend.Interrupt()

	a := gymAlarm()
	a.WakeCheckEnabled = true
	id, err := f.s.ScheduleWakeCheck(ctx, a)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case tr := <-triggers:
		if tr.Kind != despertador.WakeCheck || tr.AlarmID != "gym" {
			t.Fatalf("wrong trigger %+v", tr)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the wake check")
	}

	if !f.backend.Act(id, despertador.ActionDismiss) {
		t.Fatal("wake check notification not delivered")
	}
	select {
	case alarmID := <-dismissed:
		if alarmID != "gym" {
			t.Errorf("wrong dismissed alarm %s", alarmID)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the dismissal")
	}
	if _, ok := f.s.Lookup(id); ok {
		t.Error("wake check still live")
	}
}
