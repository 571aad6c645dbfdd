package sqlite

import (
	"context"
	"fmt"
	"time"

	"bsid.es/despertador"
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/google/uuid"
)

// Store is the durable AlarmStore.
type Store struct {
	db  *DB
	Now func() time.Time
}

func NewStore(db *DB) *Store {
	return &Store{db: db, Now: time.Now}
}

var _ despertador.AlarmStore = (*Store)(nil)

const alarmColumns = "id, hour, minute, weekly, days, enabled, snooze_enabled, wake_check_enabled, label, icon"

func scanAlarm(stmt *sqlite.Stmt) despertador.Alarm {
	return despertador.Alarm{
		ID: stmt.ColumnText(0),
		Time: despertador.WallTime{
			Hour:   stmt.ColumnInt(1),
			Minute: stmt.ColumnInt(2),
		},
		Recurrence: despertador.Recurrence{
			Weekly: stmt.ColumnInt(3) != 0,
			Days:   despertador.WeekdaySet(stmt.ColumnInt(4)),
		},
		Enabled:          stmt.ColumnInt(5) != 0,
		SnoozeEnabled:    stmt.ColumnInt(6) != 0,
		WakeCheckEnabled: stmt.ColumnInt(7) != 0,
		Display: despertador.Display{
			Label: stmt.ColumnText(8),
			Icon:  stmt.ColumnText(9),
		},
	}
}

func (s *Store) Get(ctx context.Context, id string) (despertador.Alarm, error) {
	var (
		alarm despertador.Alarm
		found bool
	)
	err := s.db.with(func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn, "select "+alarmColumns+" from alarms where id = ?", func(stmt *sqlite.Stmt) error {
			alarm, found = scanAlarm(stmt), true
			return nil
		}, id)
	})
	if err != nil {
		return despertador.Alarm{}, fmt.Errorf("get alarm %s: %v", id, err)
	}
	if !found {
		return despertador.Alarm{}, despertador.Errorf(despertador.ErrNotFound, "alarm %q not found", id)
	}
	return alarm, nil
}

func (s *Store) List(ctx context.Context) ([]despertador.Alarm, error) {
	var alarms []despertador.Alarm
	err := s.db.with(func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn, "select "+alarmColumns+" from alarms order by hour, minute, id", func(stmt *sqlite.Stmt) error {
			alarms = append(alarms, scanAlarm(stmt))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list alarms: %v", err)
	}
	return alarms, nil
}

func (s *Store) Put(ctx context.Context, alarm despertador.Alarm) (despertador.Alarm, error) {
	if alarm.ID == "" {
		alarm.ID = uuid.NewString()
	}
	if err := alarm.Validate(); err != nil {
		return despertador.Alarm{}, err
	}

	err := s.db.with(func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn, `insert or replace into alarms (`+alarmColumns+`, created_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
				coalesce((select created_at from alarms where id = ?), ?))`,
			nil,
			alarm.ID,
			int64(alarm.Time.Hour),
			int64(alarm.Time.Minute),
			boolInt(alarm.Recurrence.Weekly),
			int64(alarm.Recurrence.Days),
			boolInt(alarm.Enabled),
			boolInt(alarm.SnoozeEnabled),
			boolInt(alarm.WakeCheckEnabled),
			alarm.Display.Label,
			alarm.Display.Icon,
			alarm.ID,
			s.Now().Unix(),
		)
	})
	if err != nil {
		return despertador.Alarm{}, fmt.Errorf("put alarm %s: %v", alarm.ID, err)
	}
	return alarm, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.with(func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn, "delete from alarms where id = ?", nil, id)
	})
	if err != nil {
		return fmt.Errorf("delete alarm %s: %v", id, err)
	}
	return nil
}

func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	var changed int
	err := s.db.with(func(conn *sqlite.Conn) error {
		if err := sqlitex.Exec(conn, "update alarms set enabled = ? where id = ?", nil, boolInt(enabled), id); err != nil {
			return err
		}
		changed = conn.Changes()
		return nil
	})
	if err != nil {
		return fmt.Errorf("set alarm %s enabled: %v", id, err)
	}
	if changed == 0 {
		return despertador.Errorf(despertador.ErrNotFound, "alarm %q not found", id)
	}
	return nil
}
