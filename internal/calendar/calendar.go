package calendar

import (
	"time"

	"github.com/teambition/rrule-go"

	"sphcal/internal/daytime"
)

// Calendar resolves dates against a Definition. It is immutable and safe
// for concurrent use.
type Calendar struct {
	def *Definition
	// positions maps every cycle-driven school day to its 1-indexed
	// position in the rotation.
	positions map[Date]int
}

// New builds a resolver for def, precomputing the rotation.
func New(def *Definition) *Calendar {
	return &Calendar{def: def, positions: cyclePositions(def)}
}

// cyclePositions walks the weekdays of the academic year in order and
// numbers those that neither are excluded nor overridden.
func cyclePositions(def *Definition) map[Date]int {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   def.start.utc(),
		Until:     def.end.utc(),
		Byweekday: []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR},
	})
	if err != nil {
		// Only reachable with an invalid option set, which is constant here.
		panic(err)
	}

	positions := make(map[Date]int)
	count := 0
	for _, t := range rule.All() {
		d := dateFromUTC(t)
		if _, ok := def.exclusions[d]; ok {
			continue
		}
		if _, ok := def.overrides[d]; ok {
			continue
		}
		positions[d] = count%def.cycleSize + 1
		count++
	}
	return positions
}

func (c *Calendar) Definition() *Definition { return c.def }

// Location is the reference zone of the definition.
func (c *Calendar) Location() *time.Location { return c.def.loc }

// Today returns the reference-zone date and wall-clock time of instant t.
func (c *Calendar) Today(t time.Time) (Date, daytime.Time) {
	local := t.In(c.def.loc)
	return DateOf(local, c.def.loc), daytime.FromClock(local)
}

// Includes reports whether date is in the academic year.
func (c *Calendar) Includes(date Date) bool { return c.def.Includes(date) }

// Day classifies date. ok is false when date is outside the academic year;
// that is a normal outcome, distinct from weekends and holidays.
func (c *Calendar) Day(date Date) (day Day, ok bool) {
	if !c.def.Includes(date) {
		return nil, false
	}
	base := dayBase{date: date, def: c.def}

	if date.IsWeekend() {
		return Weekend{dayBase: base}, true
	}
	if desc, excluded := c.def.exclusions[date]; excluded {
		return Holiday{dayBase: base, description: desc}, true
	}
	if o, overridden := c.def.overrides[date]; overridden {
		return c.overrideDay(base, o), true
	}
	if n, found := c.positions[date]; found {
		return StandardDay{dayBase: base, Number: n}, true
	}
	return UnknownDay{dayBase: base}, true
}

func (c *Calendar) overrideDay(base dayBase, o Override) Day {
	switch o.Kind {
	case OverrideHalfDay:
		return HalfDay{dayBase: base, blocks: o.Blocks}
	case OverrideExamDay:
		return ExamDay{dayBase: base, blocks: o.Blocks}
	case OverrideStandardDay:
		if o.DayNumber != 0 {
			return StandardDay{dayBase: base, Number: o.DayNumber}
		}
		return StandardDay{dayBase: base, blocks: o.Blocks}
	default:
		return UnknownDay{dayBase: base, description: o.Description}
	}
}

// IsSchoolDay reports whether date resolves to a StandardDay, HalfDay or
// ExamDay.
func (c *Calendar) IsSchoolDay(date Date) bool {
	day, ok := c.Day(date)
	return ok && IsSchoolDay(day)
}

// SchoolDay resolves date and returns it only when it is a school day.
func (c *Calendar) SchoolDay(date Date) (SchoolDay, bool) {
	day, ok := c.Day(date)
	if !ok || !IsSchoolDay(day) {
		return nil, false
	}
	return day.(SchoolDay), true
}

// CyclePosition returns the rotation position of a cycle-driven school day.
func (c *Calendar) CyclePosition(date Date) (int, bool) {
	n, ok := c.positions[date]
	return n, ok
}

// StandardBlocks returns the block order of a standard day.
func (c *Calendar) StandardBlocks(d StandardDay) []string {
	if d.def == nil {
		d.def = c.def
	}
	return StandardBlocks(d)
}

// NextSchoolDay scans forward from the day after date and returns the first
// school day, or false if the academic year ends first.
func (c *Calendar) NextSchoolDay(after Date) (SchoolDay, bool) {
	return c.scan(after, 1)
}

// NextSchoolDate is NextSchoolDay's date.
func (c *Calendar) NextSchoolDate(after Date) (Date, bool) {
	day, ok := c.NextSchoolDay(after)
	if !ok {
		return Date{}, false
	}
	return day.Date(), true
}

// PreviousSchoolDay scans backward from the day before date.
func (c *Calendar) PreviousSchoolDay(before Date) (SchoolDay, bool) {
	return c.scan(before, -1)
}

func (c *Calendar) scan(from Date, step int) (SchoolDay, bool) {
	d := from.AddDays(step)
	// Jump into the year when starting outside of it.
	if step > 0 && d.Before(c.def.start) {
		d = c.def.start
	}
	if step < 0 && d.After(c.def.end) {
		d = c.def.end
	}
	for c.def.Includes(d) {
		if day, ok := c.SchoolDay(d); ok {
			return day, true
		}
		d = d.AddDays(step)
	}
	return nil, false
}

// SemesterOf returns the 1-indexed semester of date.
func (c *Calendar) SemesterOf(date Date) int { return c.def.SemesterOf(date) }
