// Package render picks what a "right now" widget shows for an instant and
// hands it to a View.
package render

import (
	"errors"
	"time"

	"sphcal/internal/calendar"
	appLog "sphcal/internal/log"
	"sphcal/internal/schedule"
)

// ErrNoCalendar is returned by New when the source has no calendar yet.
var ErrNoCalendar = errors.New("render: no calendar available")

// View receives exactly one Show* combination per render.
type View interface {
	Show(title, info string)
	ShowSchoolDay(day calendar.SchoolDay, isToday bool)
	ShowUnavailable(reason string)
}

// Source supplies the current calendar and schedule. Schedule may be nil.
type Source interface {
	Calendar() *calendar.Calendar
	Schedule() *schedule.Schedule
}

// Snapshot is a Source pinned to one calendar and schedule, so a renderer
// and a view built from the same snapshot agree.
type Snapshot struct {
	Cal   *calendar.Calendar
	Sched *schedule.Schedule
}

// Capture reads src once.
func Capture(src Source) Snapshot {
	return Snapshot{Cal: src.Calendar(), Sched: src.Schedule()}
}

func (s Snapshot) Calendar() *calendar.Calendar { return s.Cal }
func (s Snapshot) Schedule() *schedule.Schedule { return s.Sched }

// Renderer dispatches an instant to the first applicable handler. The
// calendar and schedule are captured at construction.
type Renderer struct {
	calendar *calendar.Calendar
	schedule *schedule.Schedule
	view     View
	now      func() time.Time
	handlers []handler
}

type Option func(*Renderer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// New builds a renderer over the source's current data.
func New(src Source, view View, opts ...Option) (*Renderer, error) {
	cal := src.Calendar()
	if cal == nil {
		return nil, ErrNoCalendar
	}
	r := &Renderer{
		calendar: cal,
		schedule: src.Schedule(),
		view:     view,
		now:      time.Now,
		handlers: handlers(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Render shows the state for the current instant. It reports false only if
// no handler applied, which does not happen with valid calendar data.
func (r *Renderer) Render() bool {
	return r.RenderAt(r.now())
}

// RenderAt shows the state for instant t.
func (r *Renderer) RenderAt(t time.Time) bool {
	q := r.query(t)
	for _, h := range r.handlers {
		if h.applicable(q) {
			appLog.Debug("render", "state", h.state, "date", q.date, "time", q.now)
			h.apply(q, r.view)
			return true
		}
	}
	appLog.Warn("render: no applicable handler", "date", q.date, "time", q.now)
	return false
}

// State returns the state RenderAt would show for t without rendering.
func (r *Renderer) State(t time.Time) (State, bool) {
	q := r.query(t)
	for _, h := range r.handlers {
		if h.applicable(q) {
			return h.state, true
		}
	}
	return "", false
}

func (r *Renderer) query(t time.Time) query {
	date, now := r.calendar.Today(t)
	return query{cal: r.calendar, sched: r.schedule, date: date, now: now}
}

// Applicable lists every state whose predicate holds for instant t. With
// valid calendar data it always has exactly one element.
func Applicable(cal *calendar.Calendar, t time.Time) []State {
	date, now := cal.Today(t)
	q := query{cal: cal, date: date, now: now}
	var out []State
	for _, h := range handlers() {
		if h.applicable(q) {
			out = append(out, h.state)
		}
	}
	return out
}
