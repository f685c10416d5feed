package calendar

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"sphcal/internal/daytime"
)

// maxYearSpanDays bounds end_date - start_date.
const maxYearSpanDays = 731

// Parse turns a calendar definition document into a Definition. Every field
// is validated before anything is built; on error the returned *ParseError
// describes the first problem found.
//
// loc is the reference zone used to map instants to dates; nil selects
// DefaultZone.
func Parse(doc []byte, loc *time.Location) (*Definition, error) {
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation(DefaultZone); err != nil {
			return nil, err
		}
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, invalid("document", truncate(doc))
	}

	def := &Definition{loc: loc}
	var err error

	if def.name, err = stringField(root, "name"); err != nil {
		return nil, err
	}
	if def.version, err = numberField(root, "version"); err != nil {
		return nil, err
	}
	if def.blocks, err = blockList(root); err != nil {
		return nil, err
	}
	if def.cycleSize, err = cycleSize(root); err != nil {
		return nil, err
	}
	if def.start, err = dateField(root, "start_date"); err != nil {
		return nil, err
	}
	if def.end, err = dateField(root, "end_date"); err != nil {
		return nil, err
	}
	if def.end.Before(def.start) || def.end.After(def.start.AddDays(maxYearSpanDays)) {
		return nil, outOfRange("end_date", def.end.String())
	}
	if def.dayBlocks, err = dayBlocks(root, def); err != nil {
		return nil, err
	}
	if def.standardPeriods, err = timetableField(root, "periods"); err != nil {
		return nil, err
	}
	if def.halfDayPeriods, err = timetableField(root, "half_day_periods"); err != nil {
		return nil, err
	}
	if def.examPeriods, err = timetableField(root, "exam_day_periods"); err != nil {
		return nil, err
	}
	if err := exceptions(root, def); err != nil {
		return nil, err
	}
	if def.semesterStarts, err = semesterStarts(root, def); err != nil {
		return nil, err
	}
	return def, nil
}

func required(root map[string]json.RawMessage, field string) (json.RawMessage, error) {
	raw, ok := root[field]
	if !ok || isNull(raw) {
		return nil, missing(field)
	}
	return raw, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringField(root map[string]json.RawMessage, field string) (string, error) {
	raw, err := required(root, field)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(field, raw)
	}
	return s, nil
}

func numberField(root map[string]json.RawMessage, field string) (float64, error) {
	raw, err := required(root, field)
	if err != nil {
		return 0, err
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, invalid(field, raw)
	}
	return f, nil
}

// intValue decodes a JSON number that must be integral.
func intValue(raw json.RawMessage, field string) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f != math.Trunc(f) {
		return 0, invalid(field, raw)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, outOfRange(field, raw)
	}
	return int(f), nil
}

func arrayValue(raw json.RawMessage, field string) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || arr == nil {
		return nil, invalid(field, raw)
	}
	return arr, nil
}

func stringsValue(raw json.RawMessage, field string) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, invalid(field, raw)
	}
	return out, nil
}

func dateValue(raw json.RawMessage, field string) (Date, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Date{}, invalid(field, raw)
	}
	return parseDateField(s, field)
}

func parseDateField(s, field string) (Date, error) {
	d, err := ParseDate(s)
	if err != nil {
		return Date{}, invalid(field, s)
	}
	return d, nil
}

func dateField(root map[string]json.RawMessage, field string) (Date, error) {
	raw, err := required(root, field)
	if err != nil {
		return Date{}, err
	}
	return dateValue(raw, field)
}

func blockList(root map[string]json.RawMessage) ([]string, error) {
	raw, err := required(root, "blocks")
	if err != nil {
		return nil, err
	}
	blocks, err := stringsValue(raw, "blocks")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		if b == "" || seen[b] {
			return nil, outOfRange("block", b)
		}
		seen[b] = true
	}
	return blocks, nil
}

func cycleSize(root map[string]json.RawMessage) (int, error) {
	raw, err := required(root, "cycle_size")
	if err != nil {
		return 0, err
	}
	n, err := intValue(raw, "cycle_size")
	if err != nil {
		return 0, err
	}
	if n < 1 || n > math.MaxUint8 {
		return 0, outOfRange("cycle_size", raw)
	}
	return n, nil
}

func dayBlocks(root map[string]json.RawMessage, def *Definition) ([][]string, error) {
	raw, err := required(root, "day_blocks")
	if err != nil {
		return nil, err
	}
	days, err := arrayValue(raw, "day_blocks")
	if err != nil {
		return nil, err
	}
	if len(days) != def.cycleSize {
		return nil, outOfRange("day_blocks", len(days))
	}
	out := make([][]string, 0, len(days))
	for _, day := range days {
		blocks, err := stringsValue(day, "day block array")
		if err != nil {
			return nil, err
		}
		if err := checkBlocks(def, blocks); err != nil {
			return nil, err
		}
		out = append(out, blocks)
	}
	return out, nil
}

func checkBlocks(def *Definition, blocks []string) error {
	for _, b := range blocks {
		if !def.HasBlock(b) {
			return outOfRange("block", b)
		}
	}
	return nil
}

// timeValue parses [hour, minute].
func timeValue(raw json.RawMessage) (daytime.Time, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return daytime.Time{}, invalid("time", raw)
	}
	h, err := intValue(pair[0], "time")
	if err != nil {
		return daytime.Time{}, invalid("time", raw)
	}
	m, err := intValue(pair[1], "time")
	if err != nil {
		return daytime.Time{}, invalid("time", raw)
	}
	t, err := daytime.New(h, m)
	if err != nil {
		return daytime.Time{}, outOfRange("time", raw)
	}
	return t, nil
}

// periodValue parses [[h, m], [h, m]].
func periodValue(raw json.RawMessage) (daytime.Period, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return daytime.Period{}, invalid("period", raw)
	}
	start, err := timeValue(pair[0])
	if err != nil {
		return daytime.Period{}, err
	}
	end, err := timeValue(pair[1])
	if err != nil {
		return daytime.Period{}, err
	}
	p, err := daytime.NewPeriod(start, end)
	if err != nil {
		return daytime.Period{}, outOfRange("period", raw)
	}
	return p, nil
}

func timetableField(root map[string]json.RawMessage, field string) (daytime.Timetable, error) {
	raw, err := required(root, field)
	if err != nil {
		return nil, err
	}
	items, err := arrayValue(raw, field)
	if err != nil {
		return nil, err
	}
	tt := make(daytime.Timetable, 0, len(items))
	for _, item := range items {
		p, err := periodValue(item)
		if err != nil {
			return nil, err
		}
		tt = append(tt, p)
	}
	if err := tt.Validate(); err != nil {
		return nil, outOfRange(field, raw)
	}
	return tt, nil
}

func semesterStarts(root map[string]json.RawMessage, def *Definition) ([]Date, error) {
	raw, ok := root["semester_starts"]
	if !ok || isNull(raw) {
		return nil, nil
	}
	items, err := arrayValue(raw, "semester_starts")
	if err != nil {
		return nil, err
	}
	out := make([]Date, 0, len(items))
	for _, item := range items {
		d, err := dateValue(item, "semester start")
		if err != nil {
			return nil, err
		}
		if !d.After(def.start) || d.After(def.end) {
			return nil, outOfRange("semester start", d.String())
		}
		if n := len(out); n > 0 && !d.After(out[n-1]) {
			return nil, outOfRange("semester start", d.String())
		}
		out = append(out, d)
	}
	return out, nil
}

func truncate(b []byte) string {
	const maxLen = 64
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}
