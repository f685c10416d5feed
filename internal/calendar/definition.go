package calendar

import (
	"maps"
	"slices"
	"time"

	"sphcal/internal/daytime"
)

// OverrideKind selects how an overridden date is classified.
type OverrideKind string

const (
	OverrideHalfDay     OverrideKind = "half_day"
	OverrideExamDay     OverrideKind = "exam_day"
	OverrideStandardDay OverrideKind = "standard_day"
	OverrideUnknown     OverrideKind = "unknown"
)

func (k OverrideKind) valid() bool {
	switch k {
	case OverrideHalfDay, OverrideExamDay, OverrideStandardDay, OverrideUnknown:
		return true
	}
	return false
}

// Override is the explicit classification of one school day.
//
// For OverrideStandardDay either DayNumber (1-indexed cycle position) or
// Blocks is set.
type Override struct {
	Kind        OverrideKind
	Blocks      []string
	DayNumber   int
	Description string
}

// Definition is a validated, immutable academic calendar. Build one with
// Parse; the zero value is not usable.
type Definition struct {
	name      string
	version   float64
	blocks    []string
	cycleSize int
	start     Date
	end       Date

	exclusions map[Date]string
	overrides  map[Date]Override

	standardPeriods daytime.Timetable
	halfDayPeriods  daytime.Timetable
	examPeriods     daytime.Timetable

	dayBlocks      [][]string
	semesterStarts []Date
	loc            *time.Location
}

func (d *Definition) Name() string             { return d.name }
func (d *Definition) Version() float64         { return d.version }
func (d *Definition) CycleSize() int           { return d.cycleSize }
func (d *Definition) Start() Date              { return d.start }
func (d *Definition) End() Date                { return d.end }
func (d *Definition) Location() *time.Location { return d.loc }

// Blocks returns the universe of block labels in authored order.
func (d *Definition) Blocks() []string { return slices.Clone(d.blocks) }

// HasBlock reports whether label is one of the definition's blocks.
func (d *Definition) HasBlock(label string) bool {
	return slices.Contains(d.blocks, label)
}

// Includes reports whether date lies within the academic year.
func (d *Definition) Includes(date Date) bool {
	return date.Between(d.start, d.end)
}

// Exclusion returns the description of an excluded date.
func (d *Definition) Exclusion(date Date) (string, bool) {
	desc, ok := d.exclusions[date]
	return desc, ok
}

// Exclusions returns all excluded dates in ascending order.
func (d *Definition) Exclusions() []Date {
	return sortedDates(d.exclusions)
}

// Override returns the override entry for date.
func (d *Definition) Override(date Date) (Override, bool) {
	o, ok := d.overrides[date]
	if ok {
		o.Blocks = slices.Clone(o.Blocks)
	}
	return o, ok
}

// Overrides returns all overridden dates in ascending order.
func (d *Definition) Overrides() []Date {
	return sortedDates(d.overrides)
}

func (d *Definition) StandardPeriods() daytime.Timetable { return slices.Clone(d.standardPeriods) }
func (d *Definition) HalfDayPeriods() daytime.Timetable  { return slices.Clone(d.halfDayPeriods) }
func (d *Definition) ExamPeriods() daytime.Timetable     { return slices.Clone(d.examPeriods) }

// DayBlocks returns the block order of cycle position n (1-indexed).
func (d *Definition) DayBlocks(n int) ([]string, bool) {
	if n < 1 || n > len(d.dayBlocks) {
		return nil, false
	}
	return slices.Clone(d.dayBlocks[n-1]), true
}

// SemesterStarts returns the start dates of semesters after the first.
func (d *Definition) SemesterStarts() []Date { return slices.Clone(d.semesterStarts) }

// SemesterOf returns the 1-indexed semester date falls in. Dates before the
// first semester start are in semester 1.
func (d *Definition) SemesterOf(date Date) int {
	n := 1
	for _, s := range d.semesterStarts {
		if !date.Before(s) {
			n++
		}
	}
	return n
}

// WithExclusions returns a copy of d with extra excluded dates, e.g. closures
// published through a separate feed. Dates outside the year, already
// excluded, or overridden are skipped and returned.
func (d *Definition) WithExclusions(extra map[Date]string) (*Definition, []Date) {
	cp := *d
	cp.exclusions = maps.Clone(d.exclusions)

	var skipped []Date
	for _, date := range sortedDates(extra) {
		_, excluded := cp.exclusions[date]
		_, overridden := d.overrides[date]
		if !d.Includes(date) || excluded || overridden {
			skipped = append(skipped, date)
			continue
		}
		cp.exclusions[date] = extra[date]
	}
	return &cp, skipped
}

func sortedDates[V any](m map[Date]V) []Date {
	out := slices.Collect(maps.Keys(m))
	slices.SortFunc(out, Date.Compare)
	return out
}
