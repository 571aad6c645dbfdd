package sqlite_test

import (
	"context"
	"testing"
	"time"

	"bsid.es/despertador"
	dsqlite "bsid.es/despertador/sqlite"
)

func mustOpenDB(tb testing.TB) *dsqlite.DB {
	tb.Helper()
	db, err := dsqlite.Open(":memory:")
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := db.Close(); err != nil {
			tb.Error(err)
		}
	})
	return db
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := dsqlite.NewStore(mustOpenDB(t))

	gym := despertador.Alarm{
		ID:               "gym",
		Time:             despertador.WallTime{Hour: 7},
		Recurrence:       despertador.Weekly(time.Monday, time.Wednesday, time.Friday),
		Enabled:          true,
		SnoozeEnabled:    true,
		WakeCheckEnabled: true,
		Display:          despertador.Display{Label: "Gym", Icon: "dumbbell"},
	}
	if _, err := store.Put(ctx, gym); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "gym")
	if err != nil {
		t.Fatal(err)
	}
	if got != gym {
		t.Errorf("wrong alarm\ngot:  %+v\nwant: %+v", got, gym)
	}

	// An empty id is assigned.
	flight, err := store.Put(ctx, despertador.Alarm{
		Time:    despertador.WallTime{Hour: 4, Minute: 15},
		Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if flight.ID == "" {
		t.Fatal("expected generated id")
	}

	alarms, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(alarms), 2; got != want {
		t.Fatalf("wrong number of alarms\ngot:  %d\nwant: %d", got, want)
	}
	if got, want := alarms[0].ID, flight.ID; got != want {
		t.Errorf("wrong order\ngot:  %s\nwant: %s first", got, want)
	}

	// Replacing keeps a single row.
	gym.Time = despertador.WallTime{Hour: 6, Minute: 30}
	if _, err := store.Put(ctx, gym); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Get(ctx, "gym"); got.Time != gym.Time {
		t.Errorf("wrong time after replace\ngot:  %v\nwant: %v", got.Time, gym.Time)
	}
	if alarms, _ := store.List(ctx); len(alarms) != 2 {
		t.Errorf("wrong number of alarms after replace: %d", len(alarms))
	}

	if err := store.SetEnabled(ctx, "gym", false); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Get(ctx, "gym"); got.Enabled {
		t.Error("alarm still enabled")
	}

	if err := store.Delete(ctx, "gym"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "gym"); despertador.ErrorCode(err) != despertador.ErrNotFound {
		t.Errorf("wrong error code\ngot:  %s\nwant: %s", despertador.ErrorCode(err), despertador.ErrNotFound)
	}
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := dsqlite.NewStore(mustOpenDB(t))

	if err := store.SetEnabled(ctx, "missing", true); despertador.ErrorCode(err) != despertador.ErrNotFound {
		t.Errorf("wrong error code\ngot:  %s\nwant: %s", despertador.ErrorCode(err), despertador.ErrNotFound)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("unexpected error deleting a missing alarm\n%v", err)
	}

	_, err := store.Put(ctx, despertador.Alarm{
		ID:   "x-snooze",
		Time: despertador.WallTime{Hour: 7},
	})
	if got, want := despertador.ErrorCode(err), despertador.ErrInvalid; got != want {
		t.Errorf("wrong error code\ngot:  %s\nwant: %s", got, want)
	}
}
