// Package provider owns the current calendar and schedule: it persists their
// documents in a data directory, rebuilds the resolver when either changes
// and reloads them when the files are replaced from outside the process.
package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sphcal/internal/calendar"
	"sphcal/internal/config"
	appLog "sphcal/internal/log"
	"sphcal/internal/schedule"
)

const (
	CalendarFile = "calendar.json"
	ScheduleFile = "schedule.json"
	ClosuresFile = "closures.json"
)

// ErrNoCalendar is returned by StoreSchedule before any calendar is stored.
var ErrNoCalendar = errors.New("provider: no calendar stored")

// Store is safe for concurrent use. Readers get immutable snapshots; writers
// swap them under the lock.
type Store struct {
	dir string
	loc *time.Location

	mu          sync.RWMutex
	def         *calendar.Definition // as parsed, without closures
	calDoc      []byte
	closures    map[calendar.Date]string
	closuresDoc []byte
	cal         *calendar.Calendar
	sched       *schedule.Schedule
	schedDoc    []byte
}

// New creates an empty store over dir. loc is the reference zone passed to
// calendar.Parse; nil means the default zone.
func New(dir string, loc *time.Location) *Store {
	return &Store{dir: dir, loc: loc, closures: map[calendar.Date]string{}}
}

// Dir is the data directory.
func (s *Store) Dir() string { return s.dir }

// Calendar returns the current resolver, closures applied, or nil.
func (s *Store) Calendar() *calendar.Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal
}

// Schedule returns the current schedule or nil.
func (s *Store) Schedule() *schedule.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched
}

// StoreCalendar parses doc, persists it and makes it current. A stored
// schedule that no longer fits the new calendar is dropped.
func (s *Store) StoreCalendar(doc []byte) error {
	def, err := calendar.Parse(doc, s.loc)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(s.path(CalendarFile), doc); err != nil {
		return fmt.Errorf("provider: persist calendar: %w", err)
	}
	s.setCalendar(def, doc)
	return nil
}

// StoreSchedule parses doc against the current calendar, persists it and
// makes it current.
func (s *Store) StoreSchedule(doc []byte) error {
	s.mu.RLock()
	def := s.def
	s.mu.RUnlock()
	if def == nil {
		return ErrNoCalendar
	}

	sched, err := schedule.Parse(doc, def)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(s.path(ScheduleFile), doc); err != nil {
		return fmt.Errorf("provider: persist schedule: %w", err)
	}

	s.mu.Lock()
	s.sched, s.schedDoc = sched, bytes.Clone(doc)
	s.mu.Unlock()
	appLog.Info("provider: schedule stored", "handle", sched.Handle())
	return nil
}

// AddClosures merges extra exclusion dates into the closure set, persists
// the set as closures.json and rebuilds the resolver. It returns the dates
// the definition skipped (outside the year, already excluded or
// overridden).
func (s *Store) AddClosures(dates map[calendar.Date]string) []calendar.Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d, desc := range dates {
		if _, ok := s.closures[d]; !ok {
			s.closures[d] = desc
		}
	}
	s.persistClosuresLocked()
	return s.rebuildLocked()
}

// SetClosures replaces and persists the closure set.
func (s *Store) SetClosures(dates map[calendar.Date]string) []calendar.Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closures = maps.Clone(dates)
	if s.closures == nil {
		s.closures = map[calendar.Date]string{}
	}
	s.persistClosuresLocked()
	return s.rebuildLocked()
}

// persistClosuresLocked writes the closure set. A failed write is logged:
// the in-memory set stays current and the next refresh writes it again.
func (s *Store) persistClosuresLocked() {
	doc, err := json.MarshalIndent(s.closures, "", "  ")
	if err != nil {
		appLog.Error("provider: encode closures failed", err)
		return
	}
	if bytes.Equal(doc, s.closuresDoc) {
		return
	}
	if err := config.WriteFileAtomic(s.path(ClosuresFile), doc); err != nil {
		appLog.Error("provider: persist closures failed", err, "dir", s.dir)
		return
	}
	s.closuresDoc = doc
}

// Load reads the persisted documents. Missing files are not an error; a
// corrupt calendar is. A corrupt closure set is logged and left empty
// until the next refresh.
func (s *Store) Load() error {
	if err := s.loadClosures(); err != nil {
		appLog.Warn("provider: ignoring stored closures", "err", err)
	}

	doc, err := os.ReadFile(s.path(CalendarFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		appLog.Info("provider: no stored calendar", "dir", s.dir)
		return nil
	case err != nil:
		return err
	}
	def, err := calendar.Parse(doc, s.loc)
	if err != nil {
		return fmt.Errorf("provider: stored calendar: %w", err)
	}
	s.setCalendar(def, doc)

	return s.loadSchedule()
}

func (s *Store) loadSchedule() error {
	doc, err := os.ReadFile(s.path(ScheduleFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sched, err := schedule.Parse(doc, s.def)
	if err != nil {
		return fmt.Errorf("provider: stored schedule: %w", err)
	}
	s.sched, s.schedDoc = sched, doc
	return nil
}

func (s *Store) loadClosures() error {
	doc, err := os.ReadFile(s.path(ClosuresFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	}

	var dates map[calendar.Date]string
	if err := json.Unmarshal(doc, &dates); err != nil {
		return fmt.Errorf("provider: stored closures: %w", err)
	}
	if dates == nil {
		dates = map[calendar.Date]string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closures, s.closuresDoc = dates, doc
	s.rebuildLocked()
	appLog.Debug("provider: closures loaded", "count", len(dates))
	return nil
}

func (s *Store) setCalendar(def *calendar.Definition, doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.def, s.calDoc = def, bytes.Clone(doc)
	s.rebuildLocked()

	if s.schedDoc != nil {
		sched, err := schedule.Parse(s.schedDoc, def)
		if err != nil {
			appLog.Warn("provider: dropping schedule that no longer fits the calendar", "err", err)
			sched, s.schedDoc = nil, nil
		}
		s.sched = sched
	}
	appLog.Info("provider: calendar stored", "name", def.Name(), "start", def.Start(), "end", def.End())
}

func (s *Store) rebuildLocked() []calendar.Date {
	if s.def == nil {
		return nil
	}
	def, skipped := s.def.WithExclusions(s.closures)
	s.cal = calendar.New(def)
	return skipped
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// current reports whether doc equals what the store last held for name.
func (s *Store) current(name string, doc []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch name {
	case CalendarFile:
		return bytes.Equal(s.calDoc, doc)
	case ScheduleFile:
		return bytes.Equal(s.schedDoc, doc)
	case ClosuresFile:
		return bytes.Equal(s.closuresDoc, doc)
	}
	return false
}
