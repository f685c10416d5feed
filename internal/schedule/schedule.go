// Package schedule holds a student's block-to-teacher mapping. It is built
// from its own document and joined with calendar days by block label only
// when something is displayed.
package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"sphcal/internal/calendar"
)

// ErrNoSuchMapping is returned by Teacher when no teacher is known for the
// block in the semester. It is a normal outcome.
var ErrNoSuchMapping = errors.New("schedule: no such mapping")

type key struct {
	block    string
	semester int
}

// Schedule is immutable after Parse and safe for concurrent reads.
type Schedule struct {
	handle    string
	teachers  map[key]string
	semesters int
}

// Handle is the owner of the schedule (e.g. a school account name).
func (s *Schedule) Handle() string { return s.handle }

// Teacher returns who teaches block in the 1-indexed semester.
func (s *Schedule) Teacher(block string, semester int) (string, error) {
	if t, ok := s.teachers[key{block, semester}]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: block %s, semester %d", ErrNoSuchMapping, block, semester)
}

// Blocks returns the blocks that have a teacher in any semester, sorted.
func (s *Schedule) Blocks() []string {
	seen := make(map[string]bool)
	for k := range s.teachers {
		seen[k.block] = true
	}
	return slices.Sorted(maps.Keys(seen))
}

// Semesters is the number of semesters the document describes.
func (s *Schedule) Semesters() int { return s.semesters }

func (s *Schedule) String() string {
	return fmt.Sprintf("schedule of %s: %d mappings over %d semesters", s.handle, len(s.teachers), s.semesters)
}

type document struct {
	Handle json.RawMessage            `json:"handle"`
	Blocks map[string]json.RawMessage `json:"blocks"`
}

// Parse builds a Schedule from a schedule document:
//
//	{"handle": "jdoe", "blocks": {"A": ["Smith", "Jones"], "B": "Lee"}}
//
// An array gives one teacher per semester, a string applies to every
// semester, null or "" leaves the slot unmapped. When def is non-nil every
// block label must exist in it. Errors use the calendar ParseError taxonomy.
func Parse(doc []byte, def *calendar.Definition) (*Schedule, error) {
	var raw document
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, calendar.NewInvalidFormat("schedule document", string(doc))
	}
	if isNull(raw.Handle) {
		return nil, calendar.NewMissingField("handle")
	}
	var handle string
	if err := json.Unmarshal(raw.Handle, &handle); err != nil {
		return nil, calendar.NewInvalidFormat("handle", raw.Handle)
	}
	if raw.Blocks == nil {
		return nil, calendar.NewMissingField("blocks")
	}

	// First pass decides the semester count, so a plain string can fill
	// every semester.
	semesters := 1
	entries := make(map[string]entry, len(raw.Blocks))
	for _, block := range slices.Sorted(maps.Keys(raw.Blocks)) {
		if def != nil && !def.HasBlock(block) {
			return nil, calendar.NewOutOfRange("block", block)
		}
		e, err := teacherEntry(raw.Blocks[block])
		if err != nil {
			return nil, err
		}
		if len(e.perSemester) > semesters {
			semesters = len(e.perSemester)
		}
		entries[block] = e
	}

	s := &Schedule{handle: handle, teachers: make(map[key]string), semesters: semesters}
	for block, e := range entries {
		if e.every != "" {
			for sem := 1; sem <= semesters; sem++ {
				s.teachers[key{block, sem}] = e.every
			}
			continue
		}
		for i, t := range e.perSemester {
			if t != nil && *t != "" {
				s.teachers[key{block, i + 1}] = *t
			}
		}
	}
	return s, nil
}

// entry is one block's teachers: either the same teacher every semester or
// one slot per semester.
type entry struct {
	every       string
	perSemester []*string
}

// teacherEntry accepts "name", null or an array of names/nulls.
func teacherEntry(raw json.RawMessage) (entry, error) {
	if isNull(raw) {
		return entry{}, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return entry{every: single}, nil
	}
	var many []*string
	if err := json.Unmarshal(raw, &many); err != nil {
		return entry{}, calendar.NewInvalidFormat("teacher", raw)
	}
	return entry{perSemester: many}, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
