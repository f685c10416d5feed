package daytime

import (
	"errors"
	"fmt"
	"time"
)

// Time is a wall-clock time of day with minute resolution.
//
// The zero value is midnight. Values are compared by (hour, minute).
type Time struct {
	Hour   uint8
	Minute uint8
}

// New returns the time hour:minute, or an error if either component is out of
// range (hour 0-23, minute 0-59).
func New(hour, minute int) (Time, error) {
	if hour < 0 || hour > 23 {
		return Time{}, fmt.Errorf("daytime: hour %d out of range", hour)
	}
	if minute < 0 || minute > 59 {
		return Time{}, fmt.Errorf("daytime: minute %d out of range", minute)
	}
	return Time{Hour: uint8(hour), Minute: uint8(minute)}, nil
}

// MustNew is like New but panics on invalid input. Intended for constants
// and tests.
func MustNew(hour, minute int) Time {
	t, err := New(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

// FromClock takes the wall clock of t. Callers convert t into the reference
// zone first.
func FromClock(t time.Time) Time {
	return Time{Hour: uint8(t.Hour()), Minute: uint8(t.Minute())}
}

func (t Time) minutes() int {
	return int(t.Hour)*60 + int(t.Minute)
}

// Compare returns -1, 0 or +1.
func (t Time) Compare(o Time) int {
	switch a, b := t.minutes(), o.minutes(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (t Time) Before(o Time) bool { return t.Compare(o) < 0 }
func (t Time) After(o Time) bool  { return t.Compare(o) > 0 }

// IsBefore reports whether t is strictly before the period starts.
func (t Time) IsBefore(p Period) bool { return t.Before(p.Start) }

// IsAfter reports whether t is strictly after the period ends.
func (t Time) IsAfter(p Period) bool { return t.After(p.End) }

// IsInside reports whether p.Start <= t <= p.End. Both boundaries are
// inclusive.
func (t Time) IsInside(p Period) bool {
	return !t.IsBefore(p) && !t.IsAfter(p)
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Period is a closed interval of the day, Start strictly before End.
type Period struct {
	Start Time
	End   Time
}

// ErrEmptyPeriod is returned when a period does not end after it starts.
var ErrEmptyPeriod = errors.New("daytime: period must end after it starts")

// NewPeriod validates start < end.
func NewPeriod(start, end Time) (Period, error) {
	if !start.Before(end) {
		return Period{}, fmt.Errorf("%w: %s-%s", ErrEmptyPeriod, start, end)
	}
	return Period{Start: start, End: end}, nil
}

// Contains is the period-side view of Time.IsInside.
func (p Period) Contains(t Time) bool { return t.IsInside(p) }

// Duration returns the length of the period.
func (p Period) Duration() time.Duration {
	return time.Duration(p.End.minutes()-p.Start.minutes()) * time.Minute
}

func (p Period) String() string {
	return p.Start.String() + "-" + p.End.String()
}
