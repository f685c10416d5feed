// Package model holds the JSON-friendly views of resolved days and of what
// the widget shows. The HTTP API and the CLI share them.
package model

import (
	"sphcal/internal/calendar"
	"sphcal/internal/schedule"
)

// Day kinds.
const (
	KindStandard = "standard"
	KindHalfDay  = "half_day"
	KindExamDay  = "exam_day"
	KindUnknown  = "unknown"
	KindHoliday  = "holiday"
	KindWeekend  = "weekend"
)

// Day is one resolved date.
type Day struct {
	Date        calendar.Date `json:"date"`
	Kind        string        `json:"kind"`
	Description string        `json:"description"`
	SchoolDay   bool          `json:"school_day"`

	// Number is the cycle position of a standard day, 0 otherwise.
	Number   int      `json:"number,omitempty"`
	Semester int      `json:"semester,omitempty"`
	Periods  []Period `json:"periods,omitempty"`
}

// Period is one block of a school day.
type Period struct {
	Block string `json:"block"`
	// Teacher is empty when no schedule is loaded or it has no mapping.
	Teacher string `json:"teacher,omitempty"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// DayOf converts a resolved day. sched may be nil.
func DayOf(day calendar.Day, sched *schedule.Schedule) Day {
	out := Day{
		Date:        day.Date(),
		Kind:        KindOf(day),
		Description: day.Description(),
		SchoolDay:   calendar.IsSchoolDay(day),
	}
	if sd, ok := day.(calendar.StandardDay); ok {
		out.Number = sd.Number
	}

	sd, ok := day.(calendar.SchoolDay)
	if !ok || !out.SchoolDay {
		return out
	}
	if def := day.Definition(); def != nil {
		out.Semester = def.SemesterOf(day.Date())
	}
	for i, p := range sd.Periods() {
		period := Period{Block: "?", Start: p.Start.String(), End: p.End.String()}
		block, ok := calendar.BlockAt(sd, i)
		if ok {
			period.Block = block
		}
		if ok && sched != nil && out.Semester > 0 {
			if t, err := sched.Teacher(block, out.Semester); err == nil {
				period.Teacher = t
			}
		}
		out.Periods = append(out.Periods, period)
	}
	return out
}

// KindOf names the variant of day.
func KindOf(day calendar.Day) string {
	switch day.(type) {
	case calendar.StandardDay:
		return KindStandard
	case calendar.HalfDay:
		return KindHalfDay
	case calendar.ExamDay:
		return KindExamDay
	case calendar.UnknownDay:
		return KindUnknown
	case calendar.Holiday:
		return KindHoliday
	case calendar.Weekend:
		return KindWeekend
	}
	return ""
}

// Frame records one render. It satisfies render.View.
type Frame struct {
	State string `json:"state,omitempty"`

	Title string `json:"title,omitempty"`
	Info  string `json:"info,omitempty"`

	// Day is set when the render showed a whole school day.
	Day     *Day `json:"day,omitempty"`
	IsToday bool `json:"is_today,omitempty"`

	Unavailable string `json:"unavailable,omitempty"`

	sched *schedule.Schedule
}

// NewFrame returns an empty frame. sched labels the periods of a shown
// school day and may be nil.
func NewFrame(sched *schedule.Schedule) *Frame {
	return &Frame{sched: sched}
}

func (f *Frame) Show(title, info string) {
	f.Title, f.Info = title, info
}

func (f *Frame) ShowSchoolDay(day calendar.SchoolDay, isToday bool) {
	d := DayOf(day, f.sched)
	f.Day, f.IsToday = &d, isToday
}

func (f *Frame) ShowUnavailable(reason string) {
	f.Unavailable = reason
}
