package render

import "sphcal/internal/calendar"

const (
	shortLayout = "Jan 2, 2006"
	longLayout  = "Monday, Jan 2, 2006"
)

// Format renders a date as "Jan 2, 2006", or "Monday, Jan 2, 2006" when long
// is set.
func Format(d calendar.Date, long bool) string {
	if long {
		return d.Format(longLayout)
	}
	return d.Format(shortLayout)
}

// RelativeExpression phrases target relative to today: "tomorrow" for the
// next calendar day, "next Monday" (etc.) for a day in the following ISO
// week. ok is false when neither applies.
func RelativeExpression(target, today calendar.Date) (expr string, ok bool) {
	if target == today.AddDays(1) {
		return "tomorrow", true
	}
	if target.WeekStart() == today.WeekStart().AddDays(7) {
		return "next " + target.Weekday().String(), true
	}
	return "", false
}

// describeNext is the relative expression or, failing that, the long date.
func describeNext(target, today calendar.Date) string {
	if expr, ok := RelativeExpression(target, today); ok {
		return expr
	}
	return Format(target, true)
}
