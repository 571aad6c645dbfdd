package despertador

import (
	"strings"
	"time"
)

// WeekdaySet is a compact set of weekdays, bit i set for time.Weekday(i).
type WeekdaySet uint8

const (
	AllDays  WeekdaySet = 1<<7 - 1
	Weekdays WeekdaySet = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday
	Weekends WeekdaySet = 1<<time.Saturday | 1<<time.Sunday
)

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

func (s WeekdaySet) Add(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

func (s WeekdaySet) Empty() bool { return s&AllDays == 0 }

// Days lists the members of s starting on Monday, the order used for
// display.
func (s WeekdaySet) Days() []time.Weekday {
	var days []time.Weekday
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// Recurrence is either Once (the zero value) or a non-empty weekly set of
// days.
type Recurrence struct {
	Weekly bool       `json:"weekly"`
	Days   WeekdaySet `json:"days"`
}

var Once = Recurrence{}

func Weekly(days ...time.Weekday) Recurrence {
	return Recurrence{Weekly: true, Days: NewWeekdaySet(days...)}
}

// IsRecurring reports whether r repeats.
func IsRecurring(r Recurrence) bool {
	return r.Weekly
}

func (r Recurrence) Validate() error {
	if r.Weekly && r.Days.Empty() {
		return Errorf(ErrInvalid, "invalid recurrence: empty weekday set")
	}
	return nil
}

var shortDayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// String returns the display label of r: "Once", "Daily", "Weekdays",
// "Weekends" or a list such as "Mon, Wed, Fri".
func (r Recurrence) String() string {
	if !r.Weekly {
		return "Once"
	}
	switch r.Days & AllDays {
	case 0:
		return "Never"
	case AllDays:
		return "Daily"
	case Weekdays:
		return "Weekdays"
	case Weekends:
		return "Weekends"
	}
	days := r.Days.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = shortDayNames[d]
	}
	return strings.Join(names, ", ")
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseRecurrence is the inverse of Recurrence.String. It also accepts full
// day names and any mix of commas and spaces between days.
func ParseRecurrence(s string) (Recurrence, error) {
	label := strings.ToLower(strings.TrimSpace(s))
	switch label {
	case "", "once":
		return Once, nil
	case "daily", "every day":
		return Recurrence{Weekly: true, Days: AllDays}, nil
	case "weekdays":
		return Recurrence{Weekly: true, Days: Weekdays}, nil
	case "weekends":
		return Recurrence{Weekly: true, Days: Weekends}, nil
	}

	fields := strings.FieldsFunc(label, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	var days WeekdaySet
	for _, f := range fields {
		d, ok := dayNames[f]
		if !ok {
			return Recurrence{}, Errorf(ErrInvalid, "unknown day %q in recurrence %q", f, s)
		}
		days = days.Add(d)
	}
	r := Recurrence{Weekly: true, Days: days}
	return r, r.Validate()
}
