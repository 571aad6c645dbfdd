package mem

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"bsid.es/despertador"
)

// Backend is an in-process notification backend. Triggers live in a
// deadline-ordered queue and produce Delivered events when their instant
// is reached. Press and Act stand in for the user touching a notification.
//
// Like most OS backends, creating a trigger under an existing id silently
// replaces it.
type Backend struct {
	Now func() time.Time

	wake chan struct{}

	mu        sync.Mutex
	pending   map[string]*trigger
	delivered map[string]despertador.Payload
	seq       uint64
	q         schedQueue
	subs      map[*Subscription]struct{}

	cancel context.CancelFunc
}

type trigger struct {
	id      string
	at      time.Time
	payload despertador.Payload
	seq     uint64
}

func NewBackend() *Backend {
	return &Backend{
		Now:       time.Now,
		wake:      make(chan struct{}, 1),
		pending:   make(map[string]*trigger),
		delivered: make(map[string]despertador.Payload),
		subs:      make(map[*Subscription]struct{}),
		cancel:    func() {},
	}
}

var (
	_ despertador.NotificationBackend = (*Backend)(nil)
	_ despertador.EventSource         = (*Backend)(nil)
)

func (b *Backend) Run(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx)
	return nil
}

func (b *Backend) Interrupt() error {
	b.cancel()
	return nil
}

func (b *Backend) CreateTrigger(ctx context.Context, ticketID string, at time.Time, payload despertador.Payload) (string, error) {
	b.mu.Lock()
	b.seq++
	t := &trigger{id: ticketID, at: at, payload: payload, seq: b.seq}
	b.pending[ticketID] = t
	heap.Push(&b.q, schedQueueEntry{at: at, id: ticketID, seq: t.seq})
	b.mu.Unlock()

	b.poke()
	return ticketID, nil
}

// Cancel drops a pending trigger and forgets a delivered one, so later
// Press and Act calls on it do nothing.
func (b *Backend) Cancel(ctx context.Context, ticketID string) error {
	b.mu.Lock()
	delete(b.pending, ticketID)
	delete(b.delivered, ticketID)
	b.mu.Unlock()

	b.poke()
	return nil
}

func (b *Backend) CancelAll(ctx context.Context) error {
	b.mu.Lock()
	b.pending = make(map[string]*trigger)
	b.delivered = make(map[string]despertador.Payload)
	b.q = nil
	b.mu.Unlock()

	b.poke()
	return nil
}

// Pending returns the armed triggers as tickets, earliest first.
func (b *Backend) Pending() []despertador.Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	tickets := make([]despertador.Ticket, 0, len(b.pending))
	for _, t := range b.pending {
		tickets = append(tickets, despertador.Ticket{
			ID:      t.id,
			AlarmID: t.payload.AlarmID,
			Kind:    t.payload.Kind,
			At:      t.at,
			Payload: t.payload,
		})
	}
	sortTickets(tickets)
	return tickets
}

// Press publishes a Pressed event for a delivered trigger. It reports
// false if there is no such notification.
func (b *Backend) Press(ticketID string) bool {
	return b.interact(ticketID, despertador.Pressed, "")
}

// Act publishes an ActionPressed event for a delivered trigger.
func (b *Backend) Act(ticketID string, action despertador.Action) bool {
	return b.interact(ticketID, despertador.ActionPressed, action)
}

func (b *Backend) interact(ticketID string, typ despertador.EventType, action despertador.Action) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	payload, ok := b.delivered[ticketID]
	if !ok {
		return false
	}
	b.publishLocked(despertador.Event{
		Type:     typ,
		Action:   action,
		TicketID: ticketID,
		At:       b.Now(),
		Payload:  payload,
	})
	return true
}

const subBufferSize = 16

func (b *Backend) Subscribe(ctx context.Context) despertador.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{
		backend: b,
		c:       make(chan despertador.Event, subBufferSize),
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *Backend) poke() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Backend) run(ctx context.Context) {
	timer := time.NewTimer(1<<63 - 1)
	timer.Stop()

	for {
		select {
		case <-ctx.Done(): // Operation was canceled.
			timer.Stop()
			return

		case <-b.wake:
		case <-timer.C:
		}

		// Deliver everything that is due, then sleep until the next
		// deadline. Entries whose trigger was cancelled or replaced are
		// dropped on the way.
		b.mu.Lock()
		now := b.Now()
		for len(b.q) > 0 {
			next := b.q[0]
			t, ok := b.pending[next.id]
			if !ok || t.seq != next.seq {
				heap.Pop(&b.q)
				continue
			}
			if now.Before(next.at) {
				break
			}
			heap.Pop(&b.q)
			delete(b.pending, t.id)
			b.delivered[t.id] = t.payload
			b.publishLocked(despertador.Event{
				Type:     despertador.Delivered,
				TicketID: t.id,
				At:       now,
				Payload:  t.payload,
			})
		}
		var sleep time.Duration = -1
		if len(b.q) > 0 {
			sleep = b.q[0].at.Sub(now)
		}
		b.mu.Unlock()

		timer.Stop()
		select {
		case <-timer.C:
		default:
		}
		if sleep >= 0 {
			timer.Reset(sleep)
		}
	}
}

func (b *Backend) publishLocked(ev despertador.Event) {
	for sub := range b.subs {
		select {
		case sub.c <- ev:
		default:
			// Slow subscribers are dropped rather than blocking
			// delivery; they resubscribe when they see the close.
			sub.close()
		}
	}
}

type schedQueueEntry struct {
	at  time.Time
	id  string
	seq uint64
}

type schedQueue []schedQueueEntry

var _ heap.Interface = (*schedQueue)(nil)

func (q schedQueue) Len() int {
	return len(q)
}

func (q schedQueue) Less(i, j int) bool {
	ti, tj := q[i].at, q[j].at
	return ti.Before(tj)
}

func (q schedQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *schedQueue) Push(x any) {
	*q = append(*q, x.(schedQueueEntry))
}

func (q *schedQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = schedQueueEntry{}
	*q = old[:n-1]
	return it
}

var _ despertador.Subscription = (*Subscription)(nil)

type Subscription struct {
	backend *Backend
	c       chan despertador.Event
	once    sync.Once
}

func (sub *Subscription) C() <-chan despertador.Event {
	return sub.c
}

func (sub *Subscription) Close() error {
	sub.backend.mu.Lock()
	defer sub.backend.mu.Unlock()
	sub.close()
	return nil
}

func (sub *Subscription) close() {
	sub.once.Do(func() {
		close(sub.c)
	})
	delete(sub.backend.subs, sub)
}

func sortTickets(tickets []despertador.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].At.Equal(tickets[j].At) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].At.Before(tickets[j].At)
	})
}
