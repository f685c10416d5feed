package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sphcal/internal/calendar"
	"sphcal/internal/config"
	"sphcal/internal/model"
	"sphcal/internal/refresh"
	"sphcal/internal/schedule"
	"sphcal/internal/testutil"
)

type staticSource struct {
	cal   *calendar.Calendar
	sched *schedule.Schedule
}

func (s staticSource) Calendar() *calendar.Calendar { return s.cal }
func (s staticSource) Schedule() *schedule.Schedule { return s.sched }

func fixture(t *testing.T) staticSource {
	t.Helper()
	def, err := calendar.Parse([]byte(testutil.CalendarJSON), nil)
	require.NoError(t, err)
	sched, err := schedule.Parse([]byte(testutil.ScheduleJSON), def)
	require.NoError(t, err)
	return staticSource{cal: calendar.New(def), sched: sched}
}

// 2018-09-06 09:00 New York, a Day 3.
var fixedNow = time.Date(2018, time.September, 6, 13, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, src staticSource, opts ...Option) http.Handler {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewServer(config.DefaultConfig(), src, opts...).Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, staticSource{}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := NewServer(cfg, fixture(t)).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/api/calendar")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/calendar", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNoCalendar(t *testing.T) {
	h := newTestServer(t, staticSource{})
	for _, target := range []string{"/api/calendar", "/api/day", "/api/next", "/api/now", "/api/teacher?block=A", "/api/calendar.ics"} {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, http.StatusServiceUnavailable, get(t, h, target).Code)
		})
	}
}

func TestCalendar(t *testing.T) {
	rec := get(t, newTestServer(t, fixture(t)), "/api/calendar")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[calendarResponse](t, rec)
	assert.Equal(t, "AHS 2018-19", resp.Name)
	assert.Equal(t, calendar.NewDate(2018, time.September, 4), resp.Start)
	assert.Equal(t, "America/New_York", resp.Timezone)
	assert.Equal(t, 6, resp.CycleSize)
	assert.Equal(t, "jdoe", resp.Handle)
}

func TestDay(t *testing.T) {
	h := newTestServer(t, fixture(t))

	t.Run("today", func(t *testing.T) {
		rec := get(t, h, "/api/day")
		require.Equal(t, http.StatusOK, rec.Code)
		day := decode[model.Day](t, rec)

		assert.Equal(t, calendar.NewDate(2018, time.September, 6), day.Date)
		assert.Equal(t, model.KindStandard, day.Kind)
		assert.Equal(t, 3, day.Number)
		assert.Equal(t, 1, day.Semester)
		require.Len(t, day.Periods, 6)
		assert.Equal(t, model.Period{Block: "C", Teacher: "Garcia", Start: "07:44", End: "08:44"}, day.Periods[0])
		assert.Equal(t, model.Period{Block: "H", Start: "13:20", End: "14:05"}, day.Periods[5])
	})

	t.Run("holiday", func(t *testing.T) {
		day := decode[model.Day](t, get(t, h, "/api/day?date=2018-10-08"))
		assert.Equal(t, model.KindHoliday, day.Kind)
		assert.Equal(t, "Columbus Day", day.Description)
		assert.False(t, day.SchoolDay)
		assert.Empty(t, day.Periods)
	})

	t.Run("half day", func(t *testing.T) {
		day := decode[model.Day](t, get(t, h, "/api/day?date=2018-11-21"))
		assert.Equal(t, model.KindHalfDay, day.Kind)
		assert.Len(t, day.Periods, 3)
	})

	t.Run("outside year", func(t *testing.T) {
		rec := get(t, h, "/api/day?date=2019-07-01")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Not in current school year")
	})

	t.Run("malformed", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/day?date=09/06/2018").Code)
	})
}

func TestNext(t *testing.T) {
	h := newTestServer(t, fixture(t))

	day := decode[model.Day](t, get(t, h, "/api/next?after=2018-09-07"))
	assert.Equal(t, calendar.NewDate(2018, time.September, 10), day.Date)

	rec := get(t, h, "/api/next?after=2019-06-14")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No more school days this year")
}

func TestNow(t *testing.T) {
	h := newTestServer(t, fixture(t))

	t.Run("clock", func(t *testing.T) {
		frame := decode[model.Frame](t, get(t, h, "/api/now"))
		assert.Equal(t, "during_school", frame.State)
		assert.Equal(t, "Now: Nguyen", frame.Title)
		assert.Equal(t, "Block D\nNext: Block E with Brown", frame.Info)
		require.NotNil(t, frame.Day)
		assert.True(t, frame.IsToday)
		assert.Equal(t, calendar.NewDate(2018, time.September, 6), frame.Day.Date)
	})

	t.Run("at", func(t *testing.T) {
		frame := decode[model.Frame](t, get(t, h, "/api/now?at=2018-09-08T12:00:00-04:00"))
		assert.Equal(t, "holiday", frame.State)
		assert.Equal(t, "Today is a Saturday", frame.Title)
		require.NotNil(t, frame.Day)
		assert.False(t, frame.IsToday)
		assert.Equal(t, calendar.NewDate(2018, time.September, 10), frame.Day.Date)
	})

	t.Run("outside year", func(t *testing.T) {
		frame := decode[model.Frame](t, get(t, h, "/api/now?at=2019-08-01T12:00:00Z"))
		assert.Equal(t, "outside_year", frame.State)
		assert.Equal(t, "Not in current school year", frame.Unavailable)
		assert.Nil(t, frame.Day)
	})

	t.Run("malformed", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/now?at=tomorrow").Code)
	})
}

// swappingSource drops the schedule on every second read, as a refresh
// landing between reads would.
type swappingSource struct {
	staticSource
	reads int
}

func (s *swappingSource) Schedule() *schedule.Schedule {
	s.reads++
	if s.reads%2 == 0 {
		return nil
	}
	return s.sched
}

func TestNow_SingleScheduleRead(t *testing.T) {
	src := &swappingSource{staticSource: fixture(t)}
	h := NewServer(config.DefaultConfig(), src, WithClock(func() time.Time { return fixedNow })).Handler()

	frame := decode[model.Frame](t, get(t, h, "/api/now"))
	assert.Equal(t, 1, src.reads)
	assert.Equal(t, "Now: Nguyen", frame.Title)
	require.NotNil(t, frame.Day)
	assert.Equal(t, "Garcia", frame.Day.Periods[0].Teacher)

	frame = decode[model.Frame](t, get(t, h, "/api/now"))
	assert.Equal(t, 2, src.reads)
	assert.Equal(t, "Now: Unknown", frame.Title)
	require.NotNil(t, frame.Day)
	assert.Empty(t, frame.Day.Periods[0].Teacher)
}

func TestTeacher(t *testing.T) {
	h := newTestServer(t, fixture(t))

	resp := decode[teacherResponse](t, get(t, h, "/api/teacher?block=E"))
	assert.Equal(t, teacherResponse{Block: "E", Semester: 1, Teacher: "Brown"}, resp)

	resp = decode[teacherResponse](t, get(t, h, "/api/teacher?block=E&semester=2"))
	assert.Equal(t, "Klein", resp.Teacher)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/teacher?block=H&semester=1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/teacher").Code)

	noSched := fixture(t)
	noSched.sched = nil
	assert.Equal(t, http.StatusServiceUnavailable, get(t, newTestServer(t, noSched), "/api/teacher?block=E").Code)
}

func TestExport(t *testing.T) {
	h := newTestServer(t, fixture(t))

	rec := get(t, h, "/api/calendar.ics?from=2018-09-06&to=2018-09-06")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "SUMMARY:Day 3")
	assert.Contains(t, body, "SUMMARY:Block C: Garcia")
	assert.Equal(t, 7, strings.Count(body, "BEGIN:VEVENT"))

	again := get(t, h, "/api/calendar.ics?from=2018-09-06&to=2018-09-06")
	assert.Equal(t, body, again.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/calendar.ics?from=2018-09-07&to=2018-09-06").Code)
}

type fakeRefresher struct {
	report refresh.Report
	err    error
}

func (f fakeRefresher) Run(context.Context) (refresh.Report, error) { return f.report, f.err }

func post(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRefresh(t *testing.T) {
	src := fixture(t)
	assert.Equal(t, http.StatusNotImplemented, post(t, newTestServer(t, src), "/api/refresh").Code)

	ok := fakeRefresher{report: refresh.Report{ScheduleStored: true, Closures: 2, FeedErrors: []error{errors.New("district: timeout")}}}
	rec := post(t, newTestServer(t, src, WithRefresher(ok)), "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[refreshResponse](t, rec)
	assert.Equal(t, refreshResponse{ScheduleStored: true, Closures: 2, FeedErrors: []string{"district: timeout"}}, resp)

	failing := fakeRefresher{err: errors.New("refresh: calendar: boom")}
	rec = post(t, newTestServer(t, src, WithRefresher(failing)), "/api/refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "boom")
}
