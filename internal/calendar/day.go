package calendar

import (
	"fmt"
	"slices"

	"sphcal/internal/daytime"
)

// Day is the classification of one date inside the academic year. The set of
// implementations is closed: StandardDay, HalfDay, ExamDay, UnknownDay,
// Holiday and Weekend. Consumers switch on the concrete type.
type Day interface {
	Date() Date
	Description() string
	// Definition is the definition the day was resolved against. The day
	// does not own it.
	Definition() *Definition
	isDay()
}

// SchoolDay is a Day that has blocks placed into a period timetable.
type SchoolDay interface {
	Day
	Blocks() []string
	Periods() daytime.Timetable
}

type dayBase struct {
	date Date
	def  *Definition
}

func (b dayBase) Date() Date              { return b.date }
func (b dayBase) Definition() *Definition { return b.def }
func (dayBase) isDay()                    {}

// StandardDay is a regular day of the rotation. Number is its 1-indexed
// cycle position; it is 0 for an override that lists its blocks explicitly.
type StandardDay struct {
	dayBase
	Number int
	blocks []string
}

func (d StandardDay) Description() string {
	if d.Number == 0 {
		return "a school day"
	}
	return fmt.Sprintf("a Day %d", d.Number)
}

func (d StandardDay) Blocks() []string {
	if d.def == nil {
		return nil
	}
	return StandardBlocks(d)
}

func (d StandardDay) Periods() daytime.Timetable {
	if d.def == nil {
		return nil
	}
	return d.def.StandardPeriods()
}

// StandardBlocks returns the authored block order for the day's cycle
// position, or the explicit override blocks.
func StandardBlocks(d StandardDay) []string {
	if d.blocks != nil {
		return slices.Clone(d.blocks)
	}
	blocks, _ := d.def.DayBlocks(d.Number)
	return blocks
}

type HalfDay struct {
	dayBase
	blocks []string
}

func (HalfDay) Description() string          { return "a half-day" }
func (d HalfDay) Blocks() []string           { return slices.Clone(d.blocks) }
func (d HalfDay) Periods() daytime.Timetable { return d.def.HalfDayPeriods() }

type ExamDay struct {
	dayBase
	blocks []string
}

func (ExamDay) Description() string          { return "an exam day" }
func (d ExamDay) Blocks() []string           { return slices.Clone(d.blocks) }
func (d ExamDay) Periods() daytime.Timetable { return d.def.ExamPeriods() }

// UnknownDay is a school day whose schedule could not be determined. It has
// no blocks and no periods.
type UnknownDay struct {
	dayBase
	description string
}

func (d UnknownDay) Description() string {
	if d.description == "" {
		return "a school day with an unknown schedule"
	}
	return d.description
}

func (UnknownDay) Blocks() []string           { return nil }
func (UnknownDay) Periods() daytime.Timetable { return nil }

type Holiday struct {
	dayBase
	description string
}

func (d Holiday) Description() string {
	if d.description == "" {
		return "a holiday"
	}
	return d.description
}

type Weekend struct {
	dayBase
}

// Description is e.g. "a Saturday".
func (d Weekend) Description() string {
	return "a " + d.date.Weekday().String()
}

// IsSchoolDay reports whether day has a known timetable, i.e. is a
// StandardDay, HalfDay or ExamDay.
func IsSchoolDay(day Day) bool {
	switch day.(type) {
	case StandardDay, HalfDay, ExamDay:
		return true
	default:
		return false
	}
}

// Start is the start of the day's first period.
func Start(d SchoolDay) daytime.Time { return d.Periods().Start() }

// End is the end of the day's last period.
func End(d SchoolDay) daytime.Time { return d.Periods().End() }

// PeriodIndex returns the index of the first period containing t.
func PeriodIndex(d SchoolDay, t daytime.Time) (int, bool) {
	return d.Periods().IndexAt(t)
}

// Period returns the first period containing t.
func Period(d SchoolDay, t daytime.Time) (daytime.Period, bool) {
	periods := d.Periods()
	i, ok := periods.IndexAt(t)
	if !ok {
		return daytime.Period{}, false
	}
	return periods[i], true
}

// NextPeriodIndex returns the index of the first period starting after t.
func NextPeriodIndex(d SchoolDay, t daytime.Time) (int, bool) {
	return d.Periods().NextIndex(t)
}

// NextPeriod returns the first period starting after t.
func NextPeriod(d SchoolDay, t daytime.Time) (daytime.Period, bool) {
	periods := d.Periods()
	i, ok := periods.NextIndex(t)
	if !ok {
		return daytime.Period{}, false
	}
	return periods[i], true
}

// BlockAt returns the block placed into period index i.
func BlockAt(d SchoolDay, i int) (string, bool) {
	blocks := d.Blocks()
	if i < 0 || i >= len(blocks) {
		return "", false
	}
	return blocks[i], true
}

// Block returns the block running at t.
func Block(d SchoolDay, t daytime.Time) (string, bool) {
	i, ok := PeriodIndex(d, t)
	if !ok {
		return "", false
	}
	return BlockAt(d, i)
}
