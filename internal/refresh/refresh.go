// Package refresh downloads the calendar, the schedule and the closure
// feeds and hands them to the provider, once or on a cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"sphcal/internal/calendar"
	"sphcal/internal/download"
	"sphcal/internal/ics"
	appLog "sphcal/internal/log"
	"sphcal/internal/schedule"
)

// Downloader is satisfied by *download.Downloader.
type Downloader interface {
	Calendar(ctx context.Context) ([]byte, *calendar.Definition, error)
	Schedule(ctx context.Context, handle string, def *calendar.Definition) ([]byte, *schedule.Schedule, error)
	FetchAll(ctx context.Context, sources []download.Source) ([]download.Result, []error)
}

// Store is satisfied by *provider.Store.
type Store interface {
	StoreCalendar(doc []byte) error
	StoreSchedule(doc []byte) error
	SetClosures(dates map[calendar.Date]string) []calendar.Date
}

// Job is one refresh pass.
type Job struct {
	dl     Downloader
	store  Store
	handle string
	feeds  []download.Source
}

// NewJob builds a refresh job. An empty handle skips the schedule.
func NewJob(dl Downloader, store Store, handle string, feeds []download.Source) *Job {
	return &Job{dl: dl, store: store, handle: handle, feeds: feeds}
}

// Report summarizes a pass.
type Report struct {
	ScheduleStored bool
	Closures       int
	// FeedErrors are per-feed failures; they do not fail the pass.
	FeedErrors []error
}

// Run downloads the calendar (then the schedule) and the closure feeds
// concurrently, then stores them. A calendar failure fails the pass and
// stores nothing; a schedule failure is returned after the calendar and
// closures have been stored.
func (j *Job) Run(ctx context.Context) (Report, error) {
	var (
		report   Report
		calDoc   []byte
		def      *calendar.Definition
		schedDoc []byte
		schedErr error
		feeds    []download.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		calDoc, def, err = j.dl.Calendar(gctx)
		if err != nil {
			return fmt.Errorf("refresh: calendar: %w", err)
		}
		if j.handle != "" {
			schedDoc, _, schedErr = j.dl.Schedule(gctx, j.handle, def)
		}
		return nil
	})
	if len(j.feeds) > 0 {
		g.Go(func() error {
			feeds, report.FeedErrors = j.dl.FetchAll(gctx, j.feeds)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	if err := j.store.StoreCalendar(calDoc); err != nil {
		return report, fmt.Errorf("refresh: store calendar: %w", err)
	}

	closures := make(map[calendar.Date]string)
	for _, res := range feeds {
		events, err := ics.Parse(res.Source.ID, res.Body, def.Location())
		if err != nil {
			report.FeedErrors = append(report.FeedErrors, fmt.Errorf("%s: %w", res.Source.ID, err))
			continue
		}
		cr, err := ics.Closures(events, ics.ConfigFor(def))
		if err != nil {
			report.FeedErrors = append(report.FeedErrors, fmt.Errorf("%s: %w", res.Source.ID, err))
			continue
		}
		for d, desc := range cr.Dates {
			if _, ok := closures[d]; !ok {
				closures[d] = desc
			}
		}
	}
	skipped := j.store.SetClosures(closures)
	report.Closures = len(closures) - len(skipped)

	if schedErr != nil {
		return report, fmt.Errorf("refresh: schedule: %w", schedErr)
	}
	if schedDoc != nil {
		if err := j.store.StoreSchedule(schedDoc); err != nil {
			return report, fmt.Errorf("refresh: store schedule: %w", err)
		}
		report.ScheduleStored = true
	}

	appLog.Info("refresh: done",
		"schedule", report.ScheduleStored,
		"closures", report.Closures,
		"feed_errors", len(report.FeedErrors),
	)
	return report, nil
}

// Scheduler runs a Job on a cron spec.
type Scheduler struct {
	cron *cron.Cron
	job  *Job
	ctx  context.Context
}

// NewScheduler validates spec (standard 5-field form) and prepares the
// scheduler. Overlapping runs are skipped.
func NewScheduler(spec string, loc *time.Location, job *Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		job: job,
		ctx: context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("refresh: cron spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	_, err := s.job.Run(s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		appLog.Info("refresh: run cancelled")
	default:
		appLog.Error("refresh: run failed", err, "kind", download.KindOf(err))
	}
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	appLog.Info("refresh: scheduler started", "next", s.Next())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("refresh: scheduler stopped")
}

// Next is the next scheduled run, or the zero time before Run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes cron's own logging through appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
