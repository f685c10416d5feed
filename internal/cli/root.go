// Package cli implements the sphcal command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"sphcal/internal/config"
	"sphcal/internal/download"
	appLog "sphcal/internal/log"
	"sphcal/internal/provider"
	"sphcal/internal/refresh"
)

// App holds what the subcommands share. It is filled in by the root
// command's pre-run hook.
type App struct {
	ConfigPath string
	Config     *config.Config
	Location   *time.Location
	Store      *provider.Store

	Out   io.Writer
	Now   func() time.Time
	Plain bool
}

// NewRootCmd creates the top-level "sphcal" command and registers all
// subcommands against app.
func NewRootCmd(app *App) *cobra.Command {
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Now == nil {
		app.Now = time.Now
	}
	if app.ConfigPath == "" {
		app.ConfigPath = config.PathFromEnv()
	}

	root := &cobra.Command{
		Use:           "sphcal",
		Short:         "School day, block and teacher lookup",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}
	root.PersistentFlags().StringVar(&app.ConfigPath, "config", app.ConfigPath, "Path to config file (env "+config.PathEnv+")")
	root.PersistentFlags().BoolVar(&app.Plain, "plain", !isTerminal(app.Out), "Disable terminal styling")

	root.AddCommand(
		newServeCmd(app),
		newRefreshCmd(app),
		newDayCmd(app),
		newNowCmd(app),
		newTeacherCmd(app),
		newExportCmd(app),
	)
	return root
}

func (a *App) setup() error {
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return err
	}
	level, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	appLog.SetLevel(level)

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}

	a.Config, a.Location = cfg, loc
	a.Store = provider.New(cfg.DataDir, loc)
	if err := a.Store.Load(); err != nil {
		return err
	}
	appLog.Debug("effective config",
		"config_path", a.ConfigPath,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"data_dir", cfg.DataDir,
		"handle", cfg.Handle,
		"refresh", cfg.RefreshCron,
		"closure_feeds", len(cfg.ClosureFeeds),
	)
	return nil
}

// job builds a refresh pass from the config.
func (a *App) job() *refresh.Job {
	cfg := a.Config
	dl := download.New(cfg.CacheDir, cfg.CalendarURL, cfg.ScheduleURL, download.WithLocation(a.Location))
	feeds := make([]download.Source, 0, len(cfg.ClosureFeeds))
	for _, f := range cfg.ClosureFeeds {
		feeds = append(feeds, download.Source{ID: f.ID, URL: f.URL})
	}
	return refresh.NewJob(dl, a.Store, cfg.Handle, feeds)
}

func (a *App) formatter() formatter {
	return formatter{plain: a.Plain}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
