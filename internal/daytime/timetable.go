package daytime

import (
	"errors"
	"fmt"
)

// Default bounds of a school day whose timetable is empty.
var (
	DefaultDayStart = Time{Hour: 7, Minute: 44}
	DefaultDayEnd   = Time{Hour: 14, Minute: 5}
)

// ErrOverlap is returned by Validate when periods overlap or are out of order.
var ErrOverlap = errors.New("daytime: periods overlap or are out of order")

// Timetable is the ordered list of periods of one kind of day.
type Timetable []Period

// Validate checks that starts are strictly increasing and that no period
// begins before the previous one ends. Touching periods (end == next start)
// are allowed; containment then resolves to the earlier one.
func (tt Timetable) Validate() error {
	for i, p := range tt {
		if !p.Start.Before(p.End) {
			return fmt.Errorf("%w: period %d is %s", ErrEmptyPeriod, i, p)
		}
		if i == 0 {
			continue
		}
		prev := tt[i-1]
		if !prev.Start.Before(p.Start) || p.Start.Before(prev.End) {
			return fmt.Errorf("%w: %s then %s", ErrOverlap, prev, p)
		}
	}
	return nil
}

// Start is the start of the first period.
func (tt Timetable) Start() Time {
	if len(tt) == 0 {
		return DefaultDayStart
	}
	return tt[0].Start
}

// End is the end of the last period.
func (tt Timetable) End() Time {
	if len(tt) == 0 {
		return DefaultDayEnd
	}
	return tt[len(tt)-1].End
}

// Span is the period from Start to End.
func (tt Timetable) Span() Period {
	return Period{Start: tt.Start(), End: tt.End()}
}

// IndexAt returns the index of the first period containing t.
func (tt Timetable) IndexAt(t Time) (int, bool) {
	for i, p := range tt {
		if t.IsInside(p) {
			return i, true
		}
	}
	return 0, false
}

// NextIndex returns the index of the first period starting strictly after t.
func (tt Timetable) NextIndex(t Time) (int, bool) {
	for i, p := range tt {
		if t.IsBefore(p) {
			return i, true
		}
	}
	return 0, false
}
