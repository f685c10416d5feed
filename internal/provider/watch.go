package provider

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"sphcal/internal/calendar"
	appLog "sphcal/internal/log"
)

const reloadDebounce = 200 * time.Millisecond

// watched is also the reload order.
var watched = []string{CalendarFile, ClosuresFile, ScheduleFile}

// Watch reloads the stored documents when they are written or replaced in
// the data directory until ctx is cancelled. Events are
// debounced; a file whose content matches what the store already holds is
// ignored, so the store's own writes do not trigger reloads. onReload, if
// non-nil, is called with the file name after each successful reload.
func (s *Store) Watch(ctx context.Context, onReload func(name string)) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory, not the files: atomic replaces swap the inode.
	if err := w.Add(s.dir); err != nil {
		return err
	}
	appLog.Info("provider: watching", "dir", s.dir)

	pending := make(map[string]bool)
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			appLog.Info("provider: watcher stopped")
			return nil

		case <-timer.C:
			// Calendar first so the schedule is checked against it.
			for _, name := range watched {
				if !pending[name] {
					continue
				}
				delete(pending, name)
				if s.reload(name) && onReload != nil {
					onReload(name)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !slices.Contains(watched, name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[name] = true
			timer.Reset(reloadDebounce)

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("provider: watcher error", werr)
		}
	}
}

// reload re-reads one document. Unreadable or invalid files are logged and
// leave the current data in place.
func (s *Store) reload(name string) bool {
	doc, err := os.ReadFile(s.path(name))
	if err != nil {
		appLog.Warn("provider: reload read failed", "file", name, "err", err)
		return false
	}
	if s.current(name, doc) {
		return false
	}

	switch name {
	case CalendarFile:
		def, err := calendar.Parse(doc, s.loc)
		if err != nil {
			appLog.Warn("provider: reloaded calendar is invalid; keeping current", "err", err)
			return false
		}
		s.setCalendar(def, doc)
	case ClosuresFile:
		if err := s.loadClosures(); err != nil {
			appLog.Warn("provider: reloaded closures are invalid; keeping current", "err", err)
			return false
		}
	case ScheduleFile:
		if err := s.loadSchedule(); err != nil {
			appLog.Warn("provider: reloaded schedule is invalid; keeping current", "err", err)
			return false
		}
	}
	appLog.Info("provider: reloaded", "file", name)
	return true
}
