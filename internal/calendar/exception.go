package calendar

import (
	"encoding/json"
	"fmt"
)

// exceptionEntry is the object form of an exclusions/overrides element.
// A bare ISO date string is also accepted and means a plain exclusion.
type exceptionEntry struct {
	Date        string   `json:"date"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Description string   `json:"description"`
	Kind        string   `json:"kind"`
	Blocks      []string `json:"blocks"`
	DayNumber   int      `json:"day_number"`
}

// exceptions parses both exception arrays with the same grammar: an entry
// carrying a kind is an override, anything else is an exclusion.
func exceptions(root map[string]json.RawMessage, def *Definition) error {
	def.exclusions = make(map[Date]string)
	def.overrides = make(map[Date]Override)

	for _, field := range []string{"exclusions", "overrides"} {
		raw, err := required(root, field)
		if err != nil {
			return err
		}
		items, err := arrayValue(raw, field)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := exception(item, def); err != nil {
				return err
			}
		}
	}

	for date := range def.overrides {
		if _, ok := def.exclusions[date]; ok {
			return outOfRange("exception date", fmt.Sprintf("%s is both excluded and overridden", date))
		}
	}
	return nil
}

func exception(raw json.RawMessage, def *Definition) error {
	var entry exceptionEntry

	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		entry.Date = bare
	} else if err := json.Unmarshal(raw, &entry); err != nil {
		return invalid("exception entry", raw)
	}

	dates, err := entryDates(entry, def)
	if err != nil {
		return err
	}

	if entry.Kind == "" {
		for _, d := range dates {
			if _, dup := def.exclusions[d]; !dup {
				def.exclusions[d] = entry.Description
			}
		}
		return nil
	}

	o, err := override(entry, def)
	if err != nil {
		return err
	}
	for _, d := range dates {
		if _, dup := def.overrides[d]; dup {
			return outOfRange("exception date", fmt.Sprintf("%s is overridden twice", d))
		}
		def.overrides[d] = o
	}
	return nil
}

// entryDates resolves either a single date or an inclusive start/end range.
func entryDates(entry exceptionEntry, def *Definition) ([]Date, error) {
	var from, to Date
	var err error

	switch {
	case entry.Date != "":
		if from, err = parseDateField(entry.Date, "exception date"); err != nil {
			return nil, err
		}
		to = from
	case entry.Start != "" && entry.End != "":
		if from, err = parseDateField(entry.Start, "exception start"); err != nil {
			return nil, err
		}
		if to, err = parseDateField(entry.End, "exception end"); err != nil {
			return nil, err
		}
		if to.Before(from) {
			return nil, outOfRange("exception range", entry.Start+".."+entry.End)
		}
	default:
		return nil, missing("exception date")
	}

	if !def.Includes(from) {
		return nil, outOfRange("exception date", from.String())
	}
	if !def.Includes(to) {
		return nil, outOfRange("exception date", to.String())
	}

	dates := make([]Date, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates, nil
}

func override(entry exceptionEntry, def *Definition) (Override, error) {
	kind := OverrideKind(entry.Kind)
	if !kind.valid() {
		return Override{}, invalid("override kind", entry.Kind)
	}
	if err := checkBlocks(def, entry.Blocks); err != nil {
		return Override{}, err
	}

	o := Override{
		Kind:        kind,
		Blocks:      entry.Blocks,
		DayNumber:   entry.DayNumber,
		Description: entry.Description,
	}

	switch kind {
	case OverrideHalfDay, OverrideExamDay:
		if len(o.Blocks) == 0 {
			return Override{}, missing("override blocks")
		}
	case OverrideStandardDay:
		if o.DayNumber == 0 && len(o.Blocks) == 0 {
			return Override{}, missing("override day_number")
		}
		if o.DayNumber != 0 && (o.DayNumber < 1 || o.DayNumber > def.cycleSize) {
			return Override{}, outOfRange("override day_number", o.DayNumber)
		}
	}
	return o, nil
}
