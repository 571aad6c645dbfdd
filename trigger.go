package despertador

import "time"

// NextTrigger returns the first instant strictly after now at which an alarm
// ringing at t with recurrence r must fire.
//
// The computation happens in now's location: the wall time is applied to
// the destination date, so across a DST transition the absolute instant
// moves while the local time of day stays put.
func NextTrigger(t WallTime, r Recurrence, now time.Time) (time.Time, error) {
	if err := t.Validate(); err != nil {
		return time.Time{}, err
	}
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}

	year, month, day := now.Date()
	at := func(offset int) time.Time {
		return time.Date(year, month, day+offset, t.Hour, t.Minute, 0, 0, now.Location())
	}

	if !r.Weekly {
		if next := at(0); next.After(now) {
			return next, nil
		}
		return at(1), nil
	}

	// Offset 7 is today's weekday again, for when the only member of the
	// set is today and the time already passed.
	for offset := 0; offset <= 7; offset++ {
		next := at(offset)
		if r.Days.Has(next.Weekday()) && next.After(now) {
			return next, nil
		}
	}

	// Unreachable with a validated, non-empty set.
	return time.Time{}, Errorf(ErrInternal, "no trigger within a week for %v %v", t, r)
}
