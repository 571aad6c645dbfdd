package despertador

import (
	"fmt"
	"strconv"
	"strings"
)

// WallTime is a local time of day with minute precision, always stored in
// 24-hour form.
type WallTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Period is the half of the day for 12-hour clock input.
type Period int

const (
	AM Period = iota
	PM
)

func (p Period) String() string {
	if p == PM {
		return "PM"
	}
	return "AM"
}

// NewWallTime12 converts a 12-hour clock reading into a WallTime. 12 AM is
// midnight and 12 PM is noon.
func NewWallTime12(hour, minute int, period Period) (WallTime, error) {
	if hour < 1 || hour > 12 {
		return WallTime{}, Errorf(ErrInvalid, "hour %d out of range [1-12]", hour)
	}
	if period != AM && period != PM {
		return WallTime{}, Errorf(ErrInvalid, "unknown period %d", period)
	}
	h := hour % 12
	if period == PM {
		h += 12
	}
	t := WallTime{Hour: h, Minute: minute}
	return t, t.Validate()
}

func (t WallTime) Validate() error {
	switch {
	case t.Hour < 0 || t.Hour > 23:
		return Errorf(ErrInvalid, "hour %d out of range [0-23]", t.Hour)
	case t.Minute < 0 || t.Minute > 59:
		return Errorf(ErrInvalid, "minute %d out of range [0-59]", t.Minute)
	}
	return nil
}

// Clock12 returns the 12-hour clock reading of t.
func (t WallTime) Clock12() (hour, minute int, period Period) {
	period = AM
	if t.Hour >= 12 {
		period = PM
	}
	hour = t.Hour % 12
	if hour == 0 {
		hour = 12
	}
	return hour, t.Minute, period
}

func (t WallTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseWallTime accepts "07:30", "7:30", "7:30 PM", "7:30pm" and "7 am".
func ParseWallTime(s string) (WallTime, error) {
	in := strings.ToLower(strings.TrimSpace(s))

	period := -1
	switch {
	case strings.HasSuffix(in, "am"):
		period = int(AM)
		in = strings.TrimSpace(strings.TrimSuffix(in, "am"))
	case strings.HasSuffix(in, "pm"):
		period = int(PM)
		in = strings.TrimSpace(strings.TrimSuffix(in, "pm"))
	}

	hourStr, minuteStr, found := strings.Cut(in, ":")
	if !found {
		if period < 0 {
			return WallTime{}, Errorf(ErrInvalid, "malformed time %q", s)
		}
		minuteStr = "0"
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return WallTime{}, Errorf(ErrInvalid, "malformed hour in %q", s)
	}
	minute, err := strconv.Atoi(minuteStr)
	if err != nil || len(minuteStr) > 2 {
		return WallTime{}, Errorf(ErrInvalid, "malformed minute in %q", s)
	}

	if period >= 0 {
		return NewWallTime12(hour, minute, Period(period))
	}
	t := WallTime{Hour: hour, Minute: minute}
	return t, t.Validate()
}
