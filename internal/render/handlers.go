package render

import (
	"sphcal/internal/calendar"
	"sphcal/internal/daytime"
	"sphcal/internal/schedule"
)

// State is one of the mutually exclusive things the widget can show.
type State string

const (
	StateOutsideYear  State = "outside_year"
	StateHoliday      State = "holiday"
	StateBeforeSchool State = "before_school"
	StateAfterSchool  State = "after_school"
	StateDuringSchool State = "during_school"
)

// Fallback labels.
const (
	unavailableReason = "Not in current school year"
	unknownTeacher    = "Unknown"
	noScheduleTeacher = "Someone unknown"
	freeBlockTeacher  = "H-block"
	unknownBlock      = "?"
	endOfYearInfo     = "No more school days this year"
)

type query struct {
	cal   *calendar.Calendar
	sched *schedule.Schedule
	date  calendar.Date
	now   daytime.Time
}

func (q query) schoolDay() (calendar.SchoolDay, bool) {
	return q.cal.SchoolDay(q.date)
}

// teacher looks block up for the semester of the query date.
func (q query) teacher(block string) (string, bool) {
	if q.sched == nil {
		return "", false
	}
	t, err := q.sched.Teacher(block, q.cal.SemesterOf(q.date))
	if err != nil {
		return "", false
	}
	return t, true
}

type handler struct {
	state      State
	applicable func(q query) bool
	apply      func(q query, v View)
}

// handlers in dispatch order. Weekends and unknown-schedule days are not
// school days and go through the holiday handler.
func handlers() []handler {
	return []handler{
		{StateOutsideYear, outsideYearApplicable, outsideYear},
		{StateHoliday, holidayApplicable, holiday},
		{StateBeforeSchool, beforeSchoolApplicable, beforeSchool},
		{StateAfterSchool, afterSchoolApplicable, afterSchool},
		{StateDuringSchool, duringSchoolApplicable, duringSchool},
	}
}

func outsideYearApplicable(q query) bool {
	return !q.cal.Includes(q.date)
}

func outsideYear(_ query, v View) {
	v.ShowUnavailable(unavailableReason)
}

func holidayApplicable(q query) bool {
	return q.cal.Includes(q.date) && !q.cal.IsSchoolDay(q.date)
}

func holiday(q query, v View) {
	today, _ := q.cal.Day(q.date)
	title := "Today is " + today.Description()

	next, ok := q.cal.NextSchoolDay(q.date)
	if !ok {
		v.Show(title, endOfYearInfo)
		return
	}
	v.Show(title, "Showing next school day\n"+Format(next.Date(), true))
	v.ShowSchoolDay(next, false)
}

func beforeSchoolApplicable(q query) bool {
	day, ok := q.schoolDay()
	return ok && q.now.Before(calendar.Start(day))
}

func beforeSchool(q query, v View) {
	day, _ := q.schoolDay()
	block, hasBlock := calendar.BlockAt(day, 0)

	teacher := noScheduleTeacher
	if hasBlock && q.sched != nil {
		teacher = freeBlockTeacher
		if t, ok := q.teacher(block); ok {
			teacher = t
		}
	}
	if !hasBlock {
		block = unknownBlock
	}

	v.Show("Next: "+teacher, "Block "+block+"\nGood morning")
	v.ShowSchoolDay(day, true)
}

func afterSchoolApplicable(q query) bool {
	day, ok := q.schoolDay()
	return ok && q.now.After(calendar.End(day))
}

func afterSchool(q query, v View) {
	today, _ := q.schoolDay()
	title := "Today was " + today.Description()

	next, ok := q.cal.NextSchoolDay(q.date)
	if !ok {
		v.Show(title, endOfYearInfo)
		return
	}
	v.Show(title, "Showing next school day\n"+describeNext(next.Date(), q.date))
	v.ShowSchoolDay(next, false)
}

func duringSchoolApplicable(q query) bool {
	day, ok := q.schoolDay()
	return ok && q.now.IsInside(daytime.Period{Start: calendar.Start(day), End: calendar.End(day)})
}

func duringSchool(q query, v View) {
	day, _ := q.schoolDay()
	periods := day.Periods()

	current, inPeriod := calendar.PeriodIndex(day, q.now)
	currentBlock, hasCurrent := unknownBlock, false
	if inPeriod {
		currentBlock, hasCurrent = blockOrUnknown(day, current)
	}
	currentTeacher := q.teacherOrUnknown(currentBlock, hasCurrent)

	v.ShowSchoolDay(day, true)

	// Touching periods both contain the boundary instant, so the next
	// period while in one is always the following index.
	next, hasNext := current+1, current+1 < len(periods)
	if !inPeriod {
		next, hasNext = calendar.NextPeriodIndex(day, q.now)
	}
	if !hasNext {
		v.Show("Now: "+currentTeacher, "Block "+currentBlock+"\nThis is the last block!")
		return
	}

	nextBlock, hasNextBlock := blockOrUnknown(day, next)
	nextTeacher := q.teacherOrUnknown(nextBlock, hasNextBlock)

	if !inPeriod {
		v.Show("Go to "+nextTeacher, "Block "+nextBlock)
		return
	}
	v.Show("Now: "+currentTeacher,
		"Block "+currentBlock+"\nNext: Block "+nextBlock+" with "+nextTeacher)
}

func blockOrUnknown(day calendar.SchoolDay, i int) (string, bool) {
	if b, ok := calendar.BlockAt(day, i); ok {
		return b, true
	}
	return unknownBlock, false
}

func (q query) teacherOrUnknown(block string, known bool) string {
	if !known {
		return unknownTeacher
	}
	if t, ok := q.teacher(block); ok {
		return t
	}
	return unknownTeacher
}
