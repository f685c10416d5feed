package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultTimezone, cfg.Timezone)
	assert.Equal(t, filepath.Join(defaultDataDir, "cache"), cfg.CacheDir)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/sphcal
handle: jdoe
closure_feeds:
  - id: district
    url: https://example.com/closures.ics
basic_auth:
  username: admin
  password: secret
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/sphcal/cache", cfg.CacheDir)
	assert.Equal(t, "jdoe", cfg.Handle)
	assert.Equal(t, defaultRefresh, cfg.RefreshCron)
	require.Len(t, cfg.ClosureFeeds, 1)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, defaultTimezone, loc.String())
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("refresh: every day\n"), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "refresh")

	require.NoError(t, os.WriteFile(path, []byte("listen: [\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad zone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad calendar url", func(c *Config) { c.CalendarURL = "ftp://example.com/c.json" }, "calendar_url"},
		{"bad cron", func(c *Config) { c.RefreshCron = "* * *" }, "refresh"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"handle without schedule url", func(c *Config) { c.Handle = "jdoe"; c.ScheduleURL = "" }, "schedule_url"},
		{"feed without id", func(c *Config) {
			c.ClosureFeeds = []ClosureFeed{{URL: "https://example.com/a.ics"}}
		}, "closure_feeds"},
		{"duplicate feed", func(c *Config) {
			c.ClosureFeeds = []ClosureFeed{
				{ID: "a", URL: "https://example.com/a.ics"},
				{ID: "a", URL: "https://example.com/b.ics"},
			}
		}, "duplicate"},
		{"empty password", func(c *Config) { c.BasicAuth = &BasicAuthConfig{Username: "admin"} }, "basic_auth"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(PathEnv, "")
	assert.Equal(t, DefaultPath, PathFromEnv())
	t.Setenv(PathEnv, "/tmp/x.yaml")
	assert.Equal(t, "/tmp/x.yaml", PathFromEnv())
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
