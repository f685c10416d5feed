package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "sphcal/internal/log"
)

const (
	// DefaultPath is used when neither --config nor SPHCAL_CONFIG is set.
	DefaultPath = "/etc/sphcal/config.yaml"
	// PathEnv overrides DefaultPath.
	PathEnv = "SPHCAL_CONFIG"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "America/New_York"
	defaultDataDir     = "/var/lib/sphcal"
	defaultCalendarURL = "https://prematch.org/static/calendar.json"
	defaultScheduleURL = "https://prematch.org/api/schedule"
	defaultRefresh     = "0 */6 * * *"
	defaultLogLevel    = "info"
)

// ClosureFeed is an iCalendar feed whose events close school.
type ClosureFeed struct {
	// ID names the feed in logs.
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
}

func (f ClosureFeed) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.ID, validation.Required),
		validation.Field(&f.URL, validation.Required, validation.By(httpURL)),
	)
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

func (b BasicAuthConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Username, validation.Required),
		validation.Field(&b.Password, validation.Required),
	)
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the reference zone of the calendar (IANA name).
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir holds the persisted calendar.json and schedule.json.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// CacheDir holds the HTTP download cache. Defaults to DataDir/cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	CalendarURL string `yaml:"calendar_url" json:"calendar_url"`
	// ScheduleURL receives the handle as a query parameter. Leave Handle
	// empty to run without a schedule.
	ScheduleURL string `yaml:"schedule_url" json:"schedule_url"`
	Handle      string `yaml:"handle" json:"handle"`

	// RefreshCron is a standard 5-field cron spec for background refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	ClosureFeeds []ClosureFeed `yaml:"closure_feeds" json:"closure_feeds"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing values with defaults so that partially-filled
// configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	if c.CalendarURL == "" {
		c.CalendarURL = defaultCalendarURL
	}
	if c.ScheduleURL == "" {
		c.ScheduleURL = defaultScheduleURL
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.ClosureFeeds == nil {
		c.ClosureFeeds = []ClosureFeed{}
	}
}

// Validate checks a normalized config.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Listen, validation.Required),
		validation.Field(&c.Timezone, validation.Required, validation.By(timezone)),
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.CalendarURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.ScheduleURL, validation.When(c.Handle != "", validation.Required, validation.By(httpURL))),
		validation.Field(&c.RefreshCron, validation.Required, validation.By(cronSpec)),
		validation.Field(&c.LogLevel, validation.By(logLevel)),
		validation.Field(&c.ClosureFeeds),
		validation.Field(&c.BasicAuth),
	); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.ClosureFeeds))
	for _, f := range c.ClosureFeeds {
		if seen[f.ID] {
			return fmt.Errorf("closure_feeds: duplicate id %q", f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

// Location loads Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func timezone(value any) error {
	s, _ := value.(string)
	if _, err := time.LoadLocation(s); err != nil {
		return errors.New("unknown time zone")
	}
	return nil
}

func cronSpec(value any) error {
	s, _ := value.(string)
	if _, err := cron.ParseStandard(s); err != nil {
		return fmt.Errorf("invalid cron spec: %v", err)
	}
	return nil
}

func logLevel(value any) error {
	s, _ := value.(string)
	_, err := appLog.ParseLevel(s)
	return err
}

// PathFromEnv returns $SPHCAL_CONFIG or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist a default config is written there with 0600
// permissions and returned. Otherwise the file is decoded, normalized and
// validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
				return cfg, err
			}
			appLog.Info("config: wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Save normalizes cfg and writes it atomically (temp file + rename) with
// 0600 permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data to a temp file in path's directory, syncs,
// sets 0600 and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
