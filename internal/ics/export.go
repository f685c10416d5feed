package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"sphcal/internal/calendar"
	"sphcal/internal/schedule"
)

const productID = "-//sphcal//school days//EN"

// uidNamespace seeds the name-based UIDs of exported events so that
// re-exports of the same day keep the same UID.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://sphcal/export"))

// ExportOptions bounds and stamps an export.
type ExportOptions struct {
	From, To calendar.Date
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

// Export builds an iCalendar with one all-day event per school day or
// holiday in [From, To] and one timed event per period of each school day.
// Periods are labelled with their block and, when sched is non-nil, the
// teacher for the date's semester. Weekends are omitted.
func Export(cal *calendar.Calendar, sched *schedule.Schedule, opts ExportOptions) *ical.Calendar {
	out := ical.NewCalendar()
	out.SetMethod(ical.MethodPublish)
	out.SetProductId(productID)
	out.SetXWRCalName(cal.Definition().Name())
	out.SetXWRTimezone(cal.Location().String())

	from, to := opts.From, opts.To
	if from.Before(cal.Definition().Start()) {
		from = cal.Definition().Start()
	}
	if to.After(cal.Definition().End()) {
		to = cal.Definition().End()
	}

	for d := from; !d.After(to); d = d.AddDays(1) {
		day, ok := cal.Day(d)
		if !ok {
			continue
		}
		if _, weekend := day.(calendar.Weekend); weekend {
			continue
		}

		ev := out.AddEvent(eventUID(d, "day"))
		ev.SetDtStampTime(opts.Stamp)
		ev.SetSummary(dayTitle(day))
		ev.SetAllDayStartAt(d.In(time.UTC))
		ev.SetAllDayEndAt(d.AddDays(1).In(time.UTC))
		ev.SetTimeTransparency(ical.TransparencyTransparent)

		switch day.(type) {
		case calendar.Holiday:
			ev.AddCategory("HOLIDAY")
		case calendar.UnknownDay:
			ev.AddCategory("UNKNOWN-SCHEDULE")
		default:
			ev.AddCategory("SCHOOL-DAY")
			if sd, ok := day.(calendar.SchoolDay); ok {
				addPeriods(out, cal, sched, sd, opts.Stamp)
			}
		}
	}
	return out
}

func addPeriods(out *ical.Calendar, cal *calendar.Calendar, sched *schedule.Schedule, day calendar.SchoolDay, stamp time.Time) {
	loc := cal.Location()
	semester := cal.SemesterOf(day.Date())
	for i, p := range day.Periods() {
		block, ok := calendar.BlockAt(day, i)
		if !ok {
			continue
		}
		summary := "Block " + block
		if sched != nil {
			if teacher, err := sched.Teacher(block, semester); err == nil {
				summary += ": " + teacher
			}
		}

		ev := out.AddEvent(eventUID(day.Date(), fmt.Sprintf("period-%d", i)))
		ev.SetDtStampTime(stamp)
		ev.SetSummary(summary)
		ev.SetStartAt(at(day.Date(), p.Start.Hour, p.Start.Minute, loc))
		ev.SetEndAt(at(day.Date(), p.End.Hour, p.End.Minute, loc))
		ev.AddCategory("BLOCK-" + block)
	}
}

func dayTitle(day calendar.Day) string {
	if sd, ok := day.(calendar.StandardDay); ok && sd.Number > 0 {
		return fmt.Sprintf("Day %d", sd.Number)
	}
	return day.Description()
}

func eventUID(d calendar.Date, part string) string {
	return uuid.NewSHA1(uidNamespace, []byte(d.String()+"/"+part)).String()
}

func at(d calendar.Date, hour, minute uint8, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, int(hour), int(minute), 0, 0, loc)
}
