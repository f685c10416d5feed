package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sphcal/internal/calendar"
	"sphcal/internal/config"
	"sphcal/internal/download"
	"sphcal/internal/ics"
	appLog "sphcal/internal/log"
	"sphcal/internal/model"
	"sphcal/internal/refresh"
	"sphcal/internal/render"
	"sphcal/internal/schedule"
	"sphcal/internal/web"
)

var errNoCalendar = errors.New("no calendar stored yet; run `sphcal refresh` first")

func newServeCmd(app *App) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and refresh on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				app.Config.Listen = listen
			}
			return runServe(cmd.Context(), app)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func runServe(ctx context.Context, app *App) error {
	job := app.job()
	sched, err := refresh.NewScheduler(app.Config.RefreshCron, app.Location, job)
	if err != nil {
		return err
	}

	if app.Store.Calendar() == nil {
		appLog.Info("no stored calendar; refreshing before serving")
		if _, err := job.Run(ctx); err != nil {
			appLog.Error("initial refresh failed", err, "kind", download.KindOf(err))
		}
	}

	srv := web.NewServer(app.Config, app.Store, web.WithRefresher(job))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Store.Watch(gctx, nil)
	})
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	return g.Wait()
}

func newRefreshCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Download the calendar, schedule and closure feeds once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.job().Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("%w (%s)", err, download.KindOf(err))
			}
			fmt.Fprintf(app.Out, "calendar stored; schedule stored: %t; closures: %d\n", report.ScheduleStored, report.Closures)
			for _, e := range report.FeedErrors {
				fmt.Fprintf(app.Out, "feed error: %v\n", e)
			}
			return nil
		},
	}
}

func newDayCmd(app *App) *cobra.Command {
	var next bool
	cmd := &cobra.Command{
		Use:   "day [DATE]",
		Short: "Show what kind of day a date is (today if omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cal := app.Store.Calendar()
			if cal == nil {
				return errNoCalendar
			}
			date, _ := cal.Today(app.Now())
			if len(args) == 1 {
				d, err := calendar.ParseDate(args[0])
				if err != nil {
					return err
				}
				date = d
			}

			var (
				day calendar.Day
				ok  bool
			)
			if next {
				day, ok = cal.NextSchoolDay(date)
				if !ok {
					return errors.New("no more school days this year")
				}
			} else if day, ok = cal.Day(date); !ok {
				return fmt.Errorf("%s: not in current school year", date)
			}
			fmt.Fprint(app.Out, app.formatter().Day(model.DayOf(day, app.Store.Schedule()), false, ""))
			return nil
		},
	}
	cmd.Flags().BoolVar(&next, "next", false, "Show the first school day after DATE instead")
	return cmd
}

func newNowCmd(app *App) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Show what is happening now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			instant := app.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				instant = t
			}

			snap := render.Capture(app.Store)
			frame := model.NewFrame(snap.Sched)
			r, err := render.New(snap, frame)
			if errors.Is(err, render.ErrNoCalendar) {
				return errNoCalendar
			} else if err != nil {
				return err
			}
			if state, ok := r.State(instant); ok {
				frame.State = string(state)
			}
			r.RenderAt(instant)
			fmt.Fprint(app.Out, app.formatter().Frame(frame))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 instant to render instead of now")
	return cmd
}

func newTeacherCmd(app *App) *cobra.Command {
	var semester int
	cmd := &cobra.Command{
		Use:   "teacher BLOCK",
		Short: "Show who teaches a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, sched := app.Store.Calendar(), app.Store.Schedule()
			if cal == nil {
				return errNoCalendar
			}
			if sched == nil {
				return errors.New("no schedule stored; set handle in the config and refresh")
			}
			if semester <= 0 {
				today, _ := cal.Today(app.Now())
				semester = cal.SemesterOf(today)
			}
			teacher, err := sched.Teacher(args[0], semester)
			if errors.Is(err, schedule.ErrNoSuchMapping) {
				fmt.Fprintf(app.Out, "Block %s, semester %d: no teacher\n", args[0], semester)
				return nil
			}
			fmt.Fprintf(app.Out, "Block %s, semester %d: %s\n", args[0], semester, teacher)
			return nil
		},
	}
	cmd.Flags().IntVar(&semester, "semester", 0, "1-indexed semester (current if omitted)")
	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	var from, to, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export school days and blocks as iCalendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cal := app.Store.Calendar()
			if cal == nil {
				return errNoCalendar
			}
			opts := ics.ExportOptions{
				From:  cal.Definition().Start(),
				To:    cal.Definition().End(),
				Stamp: app.Now(),
			}
			var err error
			if from != "" {
				if opts.From, err = calendar.ParseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			if to != "" {
				if opts.To, err = calendar.ParseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			body := ics.Export(cal, app.Store.Schedule(), opts).Serialize()
			if out == "" || out == "-" {
				_, err := fmt.Fprint(app.Out, body)
				return err
			}
			if err := config.WriteFileAtomic(out, []byte(body)); err != nil {
				return err
			}
			appLog.Info("export written", "path", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD), start of year if omitted")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD), end of year if omitted")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	return cmd
}
