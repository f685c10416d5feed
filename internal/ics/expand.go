package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"sphcal/internal/calendar"
	appLog "sphcal/internal/log"
)

const (
	defaultMaxOccurrencesPerEvent = 500

	// defaultClosureDescription is used for closures without a SUMMARY.
	defaultClosureDescription = "School closed"
)

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// Location is the zone occurrences are cut into civil dates in.
	Location *time.Location

	// From and To bound the civil dates produced, inclusive.
	From, To calendar.Date

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means 500.
	MaxOccurrencesPerEvent int
}

// ConfigFor covers the academic year of def in its reference zone.
func ConfigFor(def *calendar.Definition) ExpandConfig {
	return ExpandConfig{Location: def.Location(), From: def.Start(), To: def.End()}
}

// ClosureResult maps each closed date to the first summary that covers it.
type ClosureResult struct {
	Dates map[calendar.Date]string
	// TruncatedEvents lists UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// Closures expands events into the civil dates they cover. Recurring
// events honor EXDATE and RECURRENCE-ID overrides; cancelled overrides
// drop their instance.
func Closures(events []Event, cfg ExpandConfig) (ClosureResult, error) {
	result := ClosureResult{Dates: make(map[calendar.Date]string)}

	if cfg.To.Before(cfg.From) {
		return result, errors.New("expand: To is before From")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]Event)
	overridesByUID := make(map[string][]Event)
	for _, ev := range events {
		if ev.IsOverride() {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	uids := make([]string, 0, len(baseByUID))
	for uid := range baseByUID {
		uids = append(uids, uid)
	}
	slices.Sort(uids)

	for _, uid := range uids {
		truncated := false
		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, overridesByUID[uid], cfg)
			truncated = truncated || hitCap
			for _, o := range occ {
				for _, d := range datesOf(o, cfg) {
					if _, seen := result.Dates[d]; !seen {
						result.Dates[d] = summaryOf(o)
					}
				}
			}
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}
	return result, nil
}

func expandEvent(ev Event, overrides []Event, cfg ExpandConfig) ([]Event, bool) {
	if ev.RawRRule == "" {
		if ev.Cancelled {
			return nil, false
		}
		return []Event{ev}, false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandRecurringEvent(ev Event, overrides []Event, cfg ExpandConfig) ([]Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the window by the event length so an occurrence starting before
	// From but still running on it is kept.
	dur := ev.End.Sub(ev.Start)
	rangeStart := cfg.From.In(cfg.Location).Add(-dur)
	rangeEnd := cfg.To.AddDays(1).In(cfg.Location)
	starts := set.Between(rangeStart, rangeEnd, true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]Event, 0, len(starts))
	for _, start := range starts {
		occ := ev
		occ.RawRRule = ""
		occ.Start = start
		occ.End = start.Add(dur)
		if o, ok := findOverrideForStart(overrides, start); ok {
			if o.Cancelled {
				continue
			}
			occ = o
		}
		out = append(out, occ)
	}
	return out, hitCap
}

// findOverrideForStart matches RECURRENCE-ID against an instance start.
func findOverrideForStart(overrides []Event, start time.Time) (Event, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return Event{}, false
}

// datesOf lists the civil dates an occurrence touches within the window.
// An end at exactly midnight does not touch the following date.
func datesOf(ev Event, cfg ExpandConfig) []calendar.Date {
	first := calendar.DateOf(ev.Start, cfg.Location)
	last := first
	if ev.End.After(ev.Start) {
		end := ev.End.In(cfg.Location)
		last = calendar.DateOf(end, cfg.Location)
		if end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 {
			last = last.AddDays(-1)
		}
	}

	var out []calendar.Date
	for d := first; !d.After(last); d = d.AddDays(1) {
		if d.Between(cfg.From, cfg.To) {
			out = append(out, d)
		}
	}
	return out
}

func summaryOf(ev Event) string {
	if ev.Summary == "" {
		return defaultClosureDescription
	}
	return ev.Summary
}
