// Package testutil provides shared calendar and schedule documents for tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// CalendarJSON is a 2018-19 definition with a six-day rotation.
//
// 2018-09-04 is a Tuesday and Day 1. Columbus Day (2018-10-08) and the
// winter recess are excluded. 2018-10-10 is forced to Day 1, 2018-10-11 has
// an unknown schedule, 2018-11-21 is a half day and 2019-01-22 an exam day.
const CalendarJSON = `{
  "name": "AHS 2018-19",
  "version": 1.2,
  "blocks": ["A", "B", "C", "D", "E", "F", "G", "H"],
  "cycle_size": 6,
  "start_date": "2018-09-04",
  "end_date": "2019-06-14",
  "exclusions": [
    {"date": "2018-10-08", "description": "Columbus Day"},
    {"start": "2018-12-24", "end": "2019-01-01", "description": "Winter recess"},
    "2019-02-18"
  ],
  "overrides": [
    {"date": "2018-10-10", "kind": "standard_day", "day_number": 1},
    {"date": "2018-10-11", "kind": "unknown", "description": "a delayed opening"},
    {"date": "2018-11-21", "kind": "half_day", "blocks": ["A", "B", "C"]},
    {"date": "2019-01-22", "kind": "exam_day", "blocks": ["A", "B"]}
  ],
  "periods": [
    [[7, 44], [8, 44]],
    [[8, 49], [9, 49]],
    [[9, 54], [10, 54]],
    [[10, 59], [12, 24]],
    [[12, 29], [13, 15]],
    [[13, 20], [14, 5]]
  ],
  "half_day_periods": [
    [[7, 44], [8, 34]],
    [[8, 39], [9, 29]],
    [[9, 34], [10, 24]]
  ],
  "exam_day_periods": [
    [[7, 44], [9, 44]],
    [[10, 0], [12, 0]]
  ],
  "day_blocks": [
    ["A", "B", "C", "D", "E", "F"],
    ["G", "H", "A", "B", "C", "D"],
    ["C", "D", "E", "F", "G", "H"],
    ["E", "F", "G", "H", "A", "B"],
    ["A", "B", "C", "D", "G", "H"],
    ["E", "F", "G", "H", "C", "D"]
  ],
  "semester_starts": ["2019-01-28"]
}`

// ScheduleJSON maps blocks to teachers for both semesters. Block H has no
// teacher in semester 1.
const ScheduleJSON = `{
  "handle": "jdoe",
  "blocks": {
    "A": ["Smith", "Jones"],
    "B": "Lee",
    "C": ["Garcia", "Garcia"],
    "D": "Nguyen",
    "E": ["Brown", "Klein"],
    "F": "Wilson",
    "G": ["Moore", null],
    "H": [null, "Taylor"]
  }
}`

// Doc decodes base, applies mutators to the top-level object and encodes it
// again.
func Doc(t testing.TB, base string, mutators ...func(map[string]any)) []byte {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(base), &m); err != nil {
		t.Fatalf("testutil: decode fixture: %v", err)
	}
	for _, mut := range mutators {
		mut(m)
	}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("testutil: encode fixture: %v", err)
	}
	return out
}

// Without removes a top-level field.
func Without(field string) func(map[string]any) {
	return func(m map[string]any) { delete(m, field) }
}

// With replaces a top-level field.
func With(field string, v any) func(map[string]any) {
	return func(m map[string]any) { m[field] = v }
}

// WriteFile writes content into dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("testutil: write %s: %v", path, err)
	}
	return path
}
