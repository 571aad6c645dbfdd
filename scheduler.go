package despertador

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultWakeCheckDelay = 5 * time.Minute
	DefaultSnoozeMinutes  = 5
	DefaultDeliveryGrace  = time.Minute

	// retiredCap bounds how many settled nonces are remembered for
	// staleness checks.
	retiredCap = 1024
)

type nonceState uint8

const (
	nonceDelivered nonceState = iota + 1
	nonceCancelled
)

// Scheduler is the alarm lifecycle controller. It turns alarm definitions
// into backend triggers and keeps at most one live trigger per
// (alarm, kind): every operation cancels before it creates, so calling any
// of them again is harmless.
//
// The mutex only guards bookkeeping and is never held across a backend
// call. Backend calls on one ticket id are serialized by a per-ticket lock,
// so the backend and the live tickets always agree on which trigger an id
// stands for.
type Scheduler struct {
	Backend NotificationBackend
	Gate    PermissionGate
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *Metrics

	WakeCheckDelay time.Duration

	// DeliveryGrace is how long after its instant a live Main ticket may
	// stay undelivered before Reconcile takes it for lost.
	DeliveryGrace time.Duration

	// NewNonce returns a unique token for every created ticket.
	NewNonce func() string

	// all is held shared by every per-ticket operation and exclusively
	// by CancelAll.
	all   sync.RWMutex
	locks map[string]*sync.Mutex

	mu      sync.Mutex
	live    map[string]Ticket
	armedAt map[string]time.Time
	rang    map[string]time.Time
	epochs  map[string]uint64
	retired map[string]nonceState
	order   []string
}

func NewScheduler(backend NotificationBackend) *Scheduler {
	return &Scheduler{
		Backend:        backend,
		Gate:           AlwaysReady,
		Now:            time.Now,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		WakeCheckDelay: DefaultWakeCheckDelay,
		DeliveryGrace:  DefaultDeliveryGrace,
		NewNonce:       uuid.NewString,
		locks:          make(map[string]*sync.Mutex),
		live:           make(map[string]Ticket),
		armedAt:        make(map[string]time.Time),
		rang:           make(map[string]time.Time),
		epochs:         make(map[string]uint64),
		retired:        make(map[string]nonceState),
	}
}

// Schedule arms the alarm's next occurrence and returns the Main ticket id.
//
// The permission gate runs first; when it fails, nothing is touched and an
// ErrPermissionDenied error is returned so the caller can undo whatever it
// persisted. A disabled alarm is cancelled instead.
func (s *Scheduler) Schedule(ctx context.Context, alarm Alarm) (string, error) {
	return s.ScheduleAfter(ctx, alarm, time.Time{})
}

// ScheduleAfter is Schedule for the first occurrence after both now and
// after. Re-arming a recurring alarm from a delivered ticket passes the
// ticket's instant so the occurrence it stood for is skipped.
func (s *Scheduler) ScheduleAfter(ctx context.Context, alarm Alarm, after time.Time) (string, error) {
	if err := alarm.Validate(); err != nil {
		return "", err
	}
	if !alarm.Enabled {
		s.Cancel(ctx, alarm.ID)
		return "", nil
	}

	if err := s.Gate.EnsureReady(ctx); err != nil {
		s.Metrics.scheduleDenied()
		s.Logger.Warn("schedule refused", "alarm", alarm.ID, "error", err)
		if ErrorCode(err) != ErrPermissionDenied {
			err = Errorf(ErrPermissionDenied, "%v", err)
		}
		return "", err
	}

	s.cancel(ctx, alarm.ID, TicketKinds...)

	from := s.Now()
	if after.After(from) {
		from = after.In(from.Location())
	}
	at, err := NextTrigger(alarm.Time, alarm.Recurrence, from)
	if err != nil {
		return "", err
	}
	return s.create(ctx, &alarm, Main, at)
}

// Cancel disarms every ticket of the alarm. Backend failures are logged
// and swallowed; a stale trigger that still fires is recognized and
// ignored by the dispatcher. Notification actions of tickets created
// before the call are ignored from then on.
func (s *Scheduler) Cancel(ctx context.Context, alarmID string) {
	s.mu.Lock()
	s.epochs[alarmID]++
	s.mu.Unlock()
	s.cancel(ctx, alarmID, TicketKinds...)
}

// Reschedule is Cancel followed by Schedule, for edits.
func (s *Scheduler) Reschedule(ctx context.Context, alarm Alarm) (string, error) {
	s.Cancel(ctx, alarm.ID)
	return s.Schedule(ctx, alarm)
}

// Snooze replaces every ticket of the alarm with a Snooze ticket the given
// number of minutes from now. Snooze tickets never re-arm the alarm when
// delivered.
func (s *Scheduler) Snooze(ctx context.Context, alarm Alarm, minutes int) (string, error) {
	if alarm.ID == "" {
		return "", Errorf(ErrInvalid, "alarm id is required")
	}
	if minutes <= 0 {
		return "", Errorf(ErrInvalid, "snooze of %d minutes", minutes)
	}
	s.cancel(ctx, alarm.ID, TicketKinds...)
	at := s.Now().Add(time.Duration(minutes) * time.Minute)
	return s.create(ctx, &alarm, Snooze, at)
}

// Dismiss cancels every ticket of the alarm. Like Cancel, it makes actions
// on notifications shown before the call stale, so a late snooze tap on a
// dismissed alarm is ignored. It never arms the next occurrence of a
// recurring alarm; only delivery handling does.
func (s *Scheduler) Dismiss(ctx context.Context, alarmID string) {
	s.Cancel(ctx, alarmID)
}

// ScheduleWakeCheck arms the follow-up that asks whether the user is really
// awake. It is a no-op for alarms without wake checks.
func (s *Scheduler) ScheduleWakeCheck(ctx context.Context, alarm Alarm) (string, error) {
	if !alarm.WakeCheckEnabled {
		return "", nil
	}
	if alarm.ID == "" {
		return "", Errorf(ErrInvalid, "alarm id is required")
	}
	s.cancel(ctx, alarm.ID, WakeCheck)
	return s.create(ctx, &alarm, WakeCheck, s.Now().Add(s.WakeCheckDelay))
}

// CancelAll disarms every ticket, used on a full data reset.
func (s *Scheduler) CancelAll(ctx context.Context) {
	s.all.Lock()
	defer s.all.Unlock()

	if err := s.Backend.CancelAll(ctx); err != nil {
		s.Metrics.backendFailed("cancel_all")
		s.Logger.Warn("cancel all failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.live {
		s.retireLocked(t.Payload.Nonce, nonceCancelled)
		s.epochs[t.AlarmID]++
		delete(s.live, id)
		delete(s.armedAt, id)
		s.Metrics.ticketCancelled(t.Kind)
	}
}

// Pending returns the live tickets ordered by trigger instant.
func (s *Scheduler) Pending() []Ticket {
	s.mu.Lock()
	tickets := make([]Ticket, 0, len(s.live))
	for _, t := range s.live {
		tickets = append(tickets, t)
	}
	s.mu.Unlock()

	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].At.Equal(tickets[j].At) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].At.Before(tickets[j].At)
	})
	return tickets
}

// Lookup returns the live ticket with the given id.
func (s *Scheduler) Lookup(ticketID string) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.live[ticketID]
	return t, ok
}

// Adopt records tickets armed by a previous process, such as the ones a
// durable ledger restored, as live.
func (s *Scheduler) Adopt(tickets []Ticket) {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tickets {
		s.live[t.ID] = t
		s.armedAt[t.ID] = now
		if t.Payload.Epoch > s.epochs[t.AlarmID] {
			s.epochs[t.AlarmID] = t.Payload.Epoch
		}
	}
}

// lockTicket serializes backend calls on ticket id and returns the unlock
// function.
func (s *Scheduler) lockTicket(id string) func() {
	s.all.RLock()
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = new(sync.Mutex)
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.all.RUnlock()
	}
}

func (s *Scheduler) cancel(ctx context.Context, alarmID string, kinds ...TicketKind) {
	for _, kind := range kinds {
		id := TicketID(alarmID, kind)
		unlock := s.lockTicket(id)
		if err := s.Backend.Cancel(ctx, id); err != nil {
			s.Metrics.backendFailed("cancel")
			s.Logger.Warn("cancel failed", "ticket", id, "error", err)
		}

		s.mu.Lock()
		t, ok := s.live[id]
		if ok {
			delete(s.live, id)
			delete(s.armedAt, id)
			s.retireLocked(t.Payload.Nonce, nonceCancelled)
		}
		s.mu.Unlock()
		unlock()

		if ok {
			s.Metrics.ticketCancelled(kind)
			s.Logger.Debug("ticket cancelled", "ticket", id, "at", t.At)
		}
	}
}

func (s *Scheduler) create(ctx context.Context, alarm *Alarm, kind TicketKind, at time.Time) (string, error) {
	id := TicketID(alarm.ID, kind)
	unlock := s.lockTicket(id)
	defer unlock()

	s.mu.Lock()
	epoch := s.epochs[alarm.ID]
	s.mu.Unlock()

	payload := newPayload(alarm, kind, s.NewNonce(), at)
	payload.Epoch = epoch

	backendID, err := s.Backend.CreateTrigger(ctx, id, at, payload)
	if err != nil {
		s.Metrics.backendFailed("create")
		return "", Errorf(ErrBackendUnavailable, "arm %s: %v", id, err)
	}

	now := s.Now()
	s.mu.Lock()
	// A concurrent call may have armed id since our cancel; the backend
	// just replaced its trigger.
	prev, replaced := s.live[id]
	if replaced {
		s.retireLocked(prev.Payload.Nonce, nonceCancelled)
	}
	s.live[id] = Ticket{ID: id, AlarmID: alarm.ID, Kind: kind, At: at, Payload: payload}
	s.armedAt[id] = now
	s.mu.Unlock()

	if replaced {
		s.Metrics.ticketCancelled(kind)
	}
	s.Metrics.ticketCreated(kind)
	s.Logger.Info("ticket armed",
		"ticket", id,
		"backend_id", backendID,
		"kind", kind.String(),
		"at", at,
	)
	return id, nil
}

// lost reports whether the live ticket t should have been delivered more
// than DeliveryGrace ago. A ticket adopted after its instant gets the grace
// from its adoption.
func (s *Scheduler) lost(t *Ticket, now time.Time) bool {
	s.mu.Lock()
	since := s.armedAt[t.ID]
	s.mu.Unlock()
	if t.At.After(since) {
		since = t.At
	}
	return now.Sub(since) > s.DeliveryGrace
}

// rearmFrom returns the instant after which the alarm's next occurrence
// lies: now, or the last delivered occurrence when that is later.
func (s *Scheduler) rearmFrom(alarmID string, now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.rang[alarmID]; r.After(now) {
		return r.In(now.Location())
	}
	return now
}

// settleDelivery records that a Delivered event arrived and reports
// whether it stands for a genuine firing: a ticket that was not cancelled,
// superseded, or already delivered.
func (s *Scheduler) settleDelivery(ev *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &ev.Payload
	if s.staleLocked(p) {
		return false
	}
	if _, seen := s.retired[p.Nonce]; seen && p.Nonce != "" {
		return false
	}
	if t, ok := s.live[ev.TicketID]; ok {
		if t.Payload.Nonce != p.Nonce {
			return false
		}
		delete(s.live, ev.TicketID)
		delete(s.armedAt, ev.TicketID)
	}
	s.retireLocked(p.Nonce, nonceDelivered)
	if p.Kind == Main && !p.IsSnooze && p.ScheduledFor.After(s.rang[p.AlarmID]) {
		s.rang[p.AlarmID] = p.ScheduledFor
	}
	return true
}

// stale reports whether actions on the ticket that produced p must be
// ignored.
func (s *Scheduler) stale(p *Payload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked(p)
}

func (s *Scheduler) staleLocked(p *Payload) bool {
	if p.Epoch < s.epochs[p.AlarmID] {
		return true
	}
	return p.Nonce != "" && s.retired[p.Nonce] == nonceCancelled
}

func (s *Scheduler) retireLocked(nonce string, state nonceState) {
	if nonce == "" {
		return
	}
	if _, ok := s.retired[nonce]; !ok {
		s.order = append(s.order, nonce)
	}
	s.retired[nonce] = state
	for len(s.order) > retiredCap {
		delete(s.retired, s.order[0])
		s.order = s.order[1:]
	}
}
