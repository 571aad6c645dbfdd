package despertador_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"bsid.es/despertador"
	"github.com/teambition/rrule-go"
)

// 2024-01-01 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2024, time.January, 1, hour, minute, 0, 0, time.UTC)
}

func TestNextTrigger(t *testing.T) {
	seven := despertador.WallTime{Hour: 7}
	tests := []struct {
		name string
		t    despertador.WallTime
		r    despertador.Recurrence
		now  time.Time
		want time.Time
	}{{
		name: "once later today",
		t:    seven,
		r:    despertador.Once,
		now:  monday(6, 0),
		want: monday(7, 0),
	}, {
		name: "once already passed",
		t:    seven,
		r:    despertador.Once,
		now:  monday(7, 30),
		want: monday(7, 0).AddDate(0, 0, 1),
	}, {
		name: "once exactly now",
		t:    seven,
		r:    despertador.Once,
		now:  monday(7, 0),
		want: monday(7, 0).AddDate(0, 0, 1),
	}, {
		name: "once across the year end",
		t:    despertador.WallTime{Hour: 0, Minute: 5},
		r:    despertador.Once,
		now:  time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC),
		want: time.Date(2024, time.January, 1, 0, 5, 0, 0, time.UTC),
	}, {
		name: "next member of the set",
		t:    seven,
		r:    despertador.Weekly(time.Monday, time.Wednesday, time.Friday),
		now:  monday(8, 0).AddDate(0, 0, 1),
		want: monday(7, 0).AddDate(0, 0, 2),
	}, {
		name: "today before the time",
		t:    seven,
		r:    despertador.Weekly(time.Monday),
		now:  monday(6, 0),
		want: monday(7, 0),
	}, {
		name: "today after the time",
		t:    seven,
		r:    despertador.Weekly(time.Monday),
		now:  monday(7, 30),
		want: monday(7, 0).AddDate(0, 0, 7),
	}, {
		name: "weekend from friday",
		t:    despertador.WallTime{Hour: 9, Minute: 30},
		r:    despertador.Recurrence{Weekly: true, Days: despertador.Weekends},
		now:  monday(12, 0).AddDate(0, 0, 4),
		want: time.Date(2024, time.January, 6, 9, 30, 0, 0, time.UTC),
	}, {
		name: "daily late evening",
		t:    despertador.WallTime{Hour: 23, Minute: 59},
		r:    despertador.Recurrence{Weekly: true, Days: despertador.AllDays},
		now:  monday(23, 59),
		want: time.Date(2024, time.January, 2, 23, 59, 0, 0, time.UTC),
	}}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := despertador.NextTrigger(tt.t, tt.r, tt.now)
			if err != nil {
				t.Fatalf("unexpected error\n%v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("wrong next trigger\ngot:  %v\nwant: %v", got, tt.want)
			}
		})
	}
}

func TestNextTriggerInvalid(t *testing.T) {
	tests := []struct {
		name string
		t    despertador.WallTime
		r    despertador.Recurrence
	}{{
		name: "hour out of range",
		t:    despertador.WallTime{Hour: 24},
	}, {
		name: "negative minute",
		t:    despertador.WallTime{Hour: 7, Minute: -1},
	}, {
		name: "empty weekday set",
		t:    despertador.WallTime{Hour: 7},
		r:    despertador.Recurrence{Weekly: true},
	}}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := despertador.NextTrigger(tt.t, tt.r, monday(0, 0))
			if err == nil {
				t.Fatal("expected error")
			}
			if got, want := despertador.ErrorCode(err), despertador.ErrInvalid; got != want {
				t.Errorf("wrong error code\ngot:  %s\nwant: %s", got, want)
			}
		})
	}
}

func TestNextTriggerOnceWithinADay(t *testing.T) {
	start := monday(0, 0)
	for now := start; now.Before(start.Add(48 * time.Hour)); now = now.Add(17 * time.Minute) {
		for _, wt := range []despertador.WallTime{{Hour: 0}, {Hour: 7, Minute: 30}, {Hour: 23, Minute: 59}} {
			got, err := despertador.NextTrigger(wt, despertador.Once, now)
			if err != nil {
				t.Fatal(err)
			}
			if !got.After(now) || got.After(now.Add(24*time.Hour)) {
				t.Errorf("%v from %v: %v outside (now, now+24h]", wt, now, got)
			}
			if got.Hour() != wt.Hour || got.Minute() != wt.Minute {
				t.Errorf("%v from %v: wrong time of day %v", wt, now, got)
			}
		}
	}
}

// The weekly computation is checked against an independent RFC 5545
// implementation for every non-empty weekday set.
func TestNextTriggerWeeklyMatchesRRule(t *testing.T) {
	wt := despertador.WallTime{Hour: 6, Minute: 45}
	byDay := map[time.Weekday]rrule.Weekday{
		time.Monday: rrule.MO, time.Tuesday: rrule.TU, time.Wednesday: rrule.WE,
		time.Thursday: rrule.TH, time.Friday: rrule.FR, time.Saturday: rrule.SA,
		time.Sunday: rrule.SU,
	}

	for set := despertador.WeekdaySet(1); set <= despertador.AllDays; set++ {
		r := despertador.Recurrence{Weekly: true, Days: set}
		var weekdays []rrule.Weekday
		for _, d := range set.Days() {
			weekdays = append(weekdays, byDay[d])
		}
		oracle, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: weekdays,
			Byhour:    []int{wt.Hour},
			Byminute:  []int{wt.Minute},
			Bysecond:  []int{0},
			Dtstart:   monday(0, 0).AddDate(0, 0, -7),
		})
		if err != nil {
			t.Fatal(err)
		}

		for now := monday(0, 0); now.Before(monday(0, 0).AddDate(0, 0, 14)); now = now.Add(5*time.Hour + 15*time.Minute) {
			got, err := despertador.NextTrigger(wt, r, now)
			if err != nil {
				t.Fatalf("%v from %v: unexpected error\n%v", r, now, err)
			}
			if want := oracle.After(now, false); !got.Equal(want) {
				t.Errorf("wrong next trigger for %v from %v\ngot:  %v\nwant: %v", r, now, got, want)
			}
			if !set.Has(got.Weekday()) {
				t.Errorf("%v from %v: %v is not in the set", r, now, got)
			}
			if got.Sub(now) > 7*24*time.Hour {
				t.Errorf("%v from %v: %v is more than a week away", r, now, got)
			}
		}
	}
}

func TestNextTriggerKeepsLocalTimeAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip(err)
	}
	daily := despertador.Recurrence{Weekly: true, Days: despertador.AllDays}

	// Clocks jump from 02:00 to 03:00 on 2024-03-10.
	now := time.Date(2024, time.March, 9, 8, 0, 0, 0, loc)
	got, err := despertador.NextTrigger(despertador.WallTime{Hour: 7}, daily, now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, time.March, 10, 7, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("wrong next trigger\ngot:  %v\nwant: %v", got, want)
	}
	if got, want := got.Sub(now), 22*time.Hour; got != want {
		t.Errorf("wrong distance\ngot:  %v\nwant: %v", got, want)
	}
}

func BenchmarkNextTrigger(b *testing.B) {
	tests := []struct {
		name string
		r    despertador.Recurrence
	}{{
		name: "once",
		r:    despertador.Once,
	}, {
		name: "weekly single day",
		r:    despertador.Weekly(time.Sunday),
	}, {
		name: "weekdays",
		r:    despertador.Recurrence{Weekly: true, Days: despertador.Weekdays},
	}}
	now := monday(8, 0)
	for _, tt := range tests {
		tt := tt
		b.Run(tt.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				despertador.NextTrigger(despertador.WallTime{Hour: 7}, tt.r, now)
			}
		})
	}
}
