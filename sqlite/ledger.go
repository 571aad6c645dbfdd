package sqlite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"bsid.es/despertador"
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Ledger is a NotificationBackend that records every armed trigger before
// passing it on to the wrapped backend. Rows disappear when the trigger is
// cancelled or delivered, so after a relaunch Restore can re-arm exactly
// what was outstanding when the previous process died.
type Ledger struct {
	db      *DB
	backend despertador.NotificationBackend
	source  despertador.EventSource
	Logger  *slog.Logger
}

func NewLedger(db *DB, backend despertador.NotificationBackend, source despertador.EventSource) *Ledger {
	return &Ledger{
		db:      db,
		backend: backend,
		source:  source,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

var (
	_ despertador.NotificationBackend = (*Ledger)(nil)
	_ despertador.EventSource         = (*Ledger)(nil)
)

func (l *Ledger) CreateTrigger(ctx context.Context, ticketID string, at time.Time, payload despertador.Payload) (string, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload of %s: %v", ticketID, err)
	}
	err = l.db.with(func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn, `insert or replace into tickets (id, alarm_id, kind, at, nonce, payload)
			values (?, ?, ?, ?, ?, ?)`,
			nil, ticketID, payload.AlarmID, int64(payload.Kind), at.UnixNano(), payload.Nonce, data)
	})
	if err != nil {
		return "", fmt.Errorf("record %s: %v", ticketID, err)
	}

	id, err := l.backend.CreateTrigger(ctx, ticketID, at, payload)
	if err != nil {
		l.forget(ticketID, payload.Nonce)
		return "", err
	}
	return id, nil
}

func (l *Ledger) Cancel(ctx context.Context, ticketID string) error {
	err := l.backend.Cancel(ctx, ticketID)
	l.forget(ticketID, "")
	return err
}

func (l *Ledger) CancelAll(ctx context.Context) error {
	err := l.backend.CancelAll(ctx)
	if dbErr := l.db.with(func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn, "delete from tickets", nil)
	}); dbErr != nil {
		l.Logger.Warn("ledger clear failed", "error", dbErr)
	}
	return err
}

// Pending returns the recorded tickets, earliest first.
func (l *Ledger) Pending(ctx context.Context) ([]despertador.Ticket, error) {
	var tickets []despertador.Ticket
	err := l.db.with(func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn, "select id, at, payload from tickets order by at, id", func(stmt *sqlite.Stmt) error {
			id := stmt.ColumnText(0)
			buf := make([]byte, stmt.ColumnLen(2))
			stmt.ColumnBytes(2, buf)
			payload, err := decodePayload(buf)
			if err != nil {
				l.Logger.Warn("unreadable ticket skipped", "ticket", id, "error", err)
				return nil
			}
			tickets = append(tickets, despertador.Ticket{
				ID:      id,
				AlarmID: payload.AlarmID,
				Kind:    payload.Kind,
				At:      time.Unix(0, stmt.ColumnInt64(1)),
				Payload: payload,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %v", err)
	}
	return tickets, nil
}

// Restore re-arms every recorded ticket on the wrapped backend and returns
// them, ready for Scheduler.Adopt. Tickets whose instant passed while no
// process was running are armed as is and fire right away.
func (l *Ledger) Restore(ctx context.Context) ([]despertador.Ticket, error) {
	tickets, err := l.Pending(ctx)
	if err != nil {
		return nil, err
	}
	restored := tickets[:0]
	for _, t := range tickets {
		if _, err := l.backend.CreateTrigger(ctx, t.ID, t.At, t.Payload); err != nil {
			l.Logger.Error("restore failed", "ticket", t.ID, "error", err)
			continue
		}
		restored = append(restored, t)
	}
	l.Logger.Info("tickets restored", "count", len(restored))
	return restored, nil
}

// forget deletes the row of ticketID. A non-empty nonce restricts the
// delete to that exact ticket, leaving a replacement armed under the same
// id alone.
func (l *Ledger) forget(ticketID, nonce string) {
	err := l.db.with(func(conn *sqlite.Conn) error {
		if nonce == "" {
			return sqlitex.Exec(conn, "delete from tickets where id = ?", nil, ticketID)
		}
		return sqlitex.Exec(conn, "delete from tickets where id = ? and nonce = ?", nil, ticketID, nonce)
	})
	if err != nil {
		l.Logger.Warn("ledger delete failed", "ticket", ticketID, "error", err)
	}
}

// Subscribe relays the wrapped source's events, dropping the row of every
// delivered ticket on the way.
func (l *Ledger) Subscribe(ctx context.Context) despertador.Subscription {
	sub := &ledgerSubscription{
		inner: l.source.Subscribe(ctx),
		c:     make(chan despertador.Event, 16),
		done:  make(chan struct{}),
	}
	go l.relay(ctx, sub)
	return sub
}

func (l *Ledger) relay(ctx context.Context, sub *ledgerSubscription) {
	defer close(sub.c)
	defer sub.inner.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case ev, ok := <-sub.inner.C():
			if !ok {
				return
			}
			if ev.Type == despertador.Delivered {
				l.forget(ev.TicketID, ev.Payload.Nonce)
			}
			select {
			case sub.c <- ev:
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			}
		}
	}
}

type ledgerSubscription struct {
	inner despertador.Subscription
	c     chan despertador.Event
	done  chan struct{}
	once  sync.Once
}

func (sub *ledgerSubscription) C() <-chan despertador.Event {
	return sub.c
}

func (sub *ledgerSubscription) Close() error {
	sub.once.Do(func() {
		close(sub.done)
	})
	return nil
}
