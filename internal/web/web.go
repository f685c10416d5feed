package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sphcal/internal/calendar"
	"sphcal/internal/config"
	"sphcal/internal/ics"
	appLog "sphcal/internal/log"
	"sphcal/internal/model"
	"sphcal/internal/refresh"
	"sphcal/internal/render"
	"sphcal/internal/schedule"
)

// Refresher runs one refresh pass. *refresh.Job satisfies it.
type Refresher interface {
	Run(ctx context.Context) (refresh.Report, error)
}

// Server provides the HTTP API over the current calendar and schedule.
type Server struct {
	cfg     *config.Config
	src     render.Source
	refresh Refresher
	now     func() time.Time
	router  chi.Router

	// In-memory cache for /api/calendar.ics. Exports are rebuilt only when
	// the calendar, the schedule or the range changes.
	exportMu    sync.RWMutex
	exportCache *exportCache
}

type Option func(*Server)

// WithRefresher enables POST /api/refresh.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresh = r }
}

// WithClock replaces time.Now for "today" and "now".
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer constructs a new Server. src is usually the provider store.
func NewServer(cfg *config.Config, src render.Source, opts ...Option) *Server {
	s := &Server{
		cfg: cfg,
		src: src,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// /health is always unauthenticated.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			r.Use(middleware.BasicAuth("sphcal", map[string]string{
				s.cfg.BasicAuth.Username: s.cfg.BasicAuth.Password,
			}))
		}
		r.Get("/api/calendar", s.handleCalendar)
		r.Get("/api/calendar.ics", s.handleExport)
		r.Get("/api/day", s.handleDay)
		r.Get("/api/next", s.handleNext)
		r.Get("/api/now", s.handleNow)
		r.Get("/api/teacher", s.handleTeacher)
		r.Post("/api/refresh", s.handleRefresh)
	})

	s.router = r
}

// requestLogger logs one line per request through appLog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// calendarResponse is the JSON response shape for /api/calendar.
type calendarResponse struct {
	Name           string          `json:"name"`
	Version        float64         `json:"version"`
	Start          calendar.Date   `json:"start"`
	End            calendar.Date   `json:"end"`
	Timezone       string          `json:"timezone"`
	CycleSize      int             `json:"cycle_size"`
	Blocks         []string        `json:"blocks"`
	SemesterStarts []calendar.Date `json:"semester_starts"`
	Handle         string          `json:"handle,omitempty"`
}

// handleCalendar describes the loaded calendar.
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	cal, ok := s.calendar(w)
	if !ok {
		return
	}
	def := cal.Definition()
	resp := calendarResponse{
		Name:           def.Name(),
		Version:        def.Version(),
		Start:          def.Start(),
		End:            def.End(),
		Timezone:       cal.Location().String(),
		CycleSize:      def.CycleSize(),
		Blocks:         def.Blocks(),
		SemesterStarts: def.SemesterStarts(),
	}
	if sched := s.src.Schedule(); sched != nil {
		resp.Handle = sched.Handle()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDay resolves one date.
//
// GET /api/day?date=2018-09-06
//   - date: ISO date, today in the calendar zone if omitted
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.calendar(w)
	if !ok {
		return
	}
	date, ok := s.dateParam(w, r, cal, "date")
	if !ok {
		return
	}
	day, ok := cal.Day(date)
	if !ok {
		writeError(w, http.StatusNotFound, "Not in current school year")
		return
	}
	writeJSON(w, http.StatusOK, model.DayOf(day, s.src.Schedule()))
}

// handleNext returns the first school day strictly after a date.
//
// GET /api/next?after=2018-09-06
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.calendar(w)
	if !ok {
		return
	}
	after, ok := s.dateParam(w, r, cal, "after")
	if !ok {
		return
	}
	day, ok := cal.NextSchoolDay(after)
	if !ok {
		writeError(w, http.StatusNotFound, "No more school days this year")
		return
	}
	writeJSON(w, http.StatusOK, model.DayOf(day, s.src.Schedule()))
}

// handleNow renders what the widget shows at an instant.
//
// GET /api/now?at=2018-09-06T09:00:00-04:00
//   - at: RFC 3339 instant, now if omitted
func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	at := s.now()
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at: expected RFC 3339")
			return
		}
		at = t
	}

	snap := render.Capture(s.src)
	frame := model.NewFrame(snap.Sched)
	rd, err := render.New(snap, frame)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "no calendar loaded")
		return
	}
	if state, ok := rd.State(at); ok {
		frame.State = string(state)
	}
	if !rd.RenderAt(at) {
		writeError(w, http.StatusInternalServerError, "nothing to show")
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

type teacherResponse struct {
	Block    string `json:"block"`
	Semester int    `json:"semester"`
	Teacher  string `json:"teacher"`
}

// handleTeacher looks up who teaches a block.
//
// GET /api/teacher?block=C&semester=2
//   - semester: 1-indexed, the semester of today if omitted
func (s *Server) handleTeacher(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.calendar(w)
	if !ok {
		return
	}
	sched := s.src.Schedule()
	if sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no schedule loaded")
		return
	}

	q := r.URL.Query()
	block := q.Get("block")
	if block == "" {
		writeError(w, http.StatusBadRequest, "block is required")
		return
	}
	semester := parseIntDefault(q.Get("semester"), 0)
	if semester <= 0 {
		today, _ := cal.Today(s.now())
		semester = cal.SemesterOf(today)
	}

	teacher, err := sched.Teacher(block, semester)
	if errors.Is(err, schedule.ErrNoSuchMapping) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, teacherResponse{Block: block, Semester: semester, Teacher: teacher})
}

// exportCache holds the last /api/calendar.ics body and what it was built
// from.
type exportCache struct {
	cal      *calendar.Calendar
	sched    *schedule.Schedule
	from, to calendar.Date
	body     []byte
}

// handleExport serves school days as iCalendar.
//
// GET /api/calendar.ics?from=2018-09-01&to=2018-12-31
//   - from, to: ISO dates, the whole academic year if omitted
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.calendar(w)
	if !ok {
		return
	}
	sched := s.src.Schedule()

	from, to := cal.Definition().Start(), cal.Definition().End()
	q := r.URL.Query()
	if q.Get("from") != "" {
		if from, ok = s.dateParam(w, r, cal, "from"); !ok {
			return
		}
	}
	if q.Get("to") != "" {
		if to, ok = s.dateParam(w, r, cal, "to"); !ok {
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	s.exportMu.RLock()
	ec := s.exportCache
	s.exportMu.RUnlock()
	if ec != nil && ec.cal == cal && ec.sched == sched && ec.from == from && ec.to == to {
		writeICS(w, ec.body)
		return
	}

	var buf bytes.Buffer
	out := ics.Export(cal, sched, ics.ExportOptions{From: from, To: to, Stamp: s.now()})
	if err := out.SerializeTo(&buf); err != nil {
		appLog.Error("api export: serialize failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}

	s.exportMu.Lock()
	s.exportCache = &exportCache{cal: cal, sched: sched, from: from, to: to, body: buf.Bytes()}
	s.exportMu.Unlock()

	writeICS(w, buf.Bytes())
}

type refreshResponse struct {
	ScheduleStored bool     `json:"schedule_stored"`
	Closures       int      `json:"closures"`
	FeedErrors     []string `json:"feed_errors,omitempty"`
}

// handleRefresh runs one refresh pass synchronously.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusNotImplemented, "refresh is not configured")
		return
	}
	report, err := s.refresh.Run(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	resp := refreshResponse{ScheduleStored: report.ScheduleStored, Closures: report.Closures}
	for _, e := range report.FeedErrors {
		resp.FeedErrors = append(resp.FeedErrors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// calendar returns the current calendar or writes 503.
func (s *Server) calendar(w http.ResponseWriter) (*calendar.Calendar, bool) {
	cal := s.src.Calendar()
	if cal == nil {
		writeError(w, http.StatusServiceUnavailable, "no calendar loaded")
		return nil, false
	}
	return cal, true
}

// dateParam parses an ISO date query parameter, defaulting to today in the
// calendar zone. It writes 400 on a malformed value.
func (s *Server) dateParam(w http.ResponseWriter, r *http.Request, cal *calendar.Calendar, name string) (calendar.Date, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		today, _ := cal.Today(s.now())
		return today, true
	}
	d, err := calendar.ParseDate(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+": expected YYYY-MM-DD")
		return calendar.Date{}, false
	}
	return d, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeICS(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
