// Package download fetches calendar, schedule and closure-feed documents
// over HTTP with a disk-backed conditional-request cache.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sphcal/internal/calendar"
	appLog "sphcal/internal/log"
	"sphcal/internal/schedule"
)

// Source is a single document endpoint.
type Source struct {
	// ID names the source in logs (e.g. "calendar" or a closure feed ID).
	ID  string
	URL string
}

// Result is the outcome of fetching one Source.
type Result struct {
	Source    Source
	Body      []byte
	FromCache bool // body came from the disk cache (304 or fallback)
}

type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	cacheMetaFile = "meta.json"
	cacheBodyFile = "body"

	defaultTimeout = 15 * time.Second
	feedWorkers    = 4
)

// Downloader fetches documents, keeping the last good body of every URL on
// disk for conditional requests and offline fallback.
type Downloader struct {
	client      *http.Client
	cacheDir    string
	calendarURL string
	scheduleURL string
	loc         *time.Location

	// mu serializes cache writes for the same URL.
	mu sync.Mutex
}

type Option func(*Downloader)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.client = c }
}

// WithLocation sets the reference zone passed to calendar.Parse.
func WithLocation(loc *time.Location) Option {
	return func(d *Downloader) { d.loc = loc }
}

// New creates a Downloader. cacheDir holds one subdirectory per URL; an
// empty value falls back to "./var/cache" for development runs.
func New(cacheDir, calendarURL, scheduleURL string, opts ...Option) *Downloader {
	if cacheDir == "" {
		cacheDir = "./var/cache"
	}
	d := &Downloader{
		client:      &http.Client{Timeout: defaultTimeout},
		cacheDir:    cacheDir,
		calendarURL: calendarURL,
		scheduleURL: scheduleURL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Calendar downloads and parses the calendar document. doc is the raw body
// suitable for provider persistence.
func (d *Downloader) Calendar(ctx context.Context) (doc []byte, def *calendar.Definition, err error) {
	res, err := d.Fetch(ctx, Source{ID: "calendar", URL: d.calendarURL})
	if err != nil {
		return nil, nil, classify(err, KindOther)
	}
	def, err = calendar.Parse(res.Body, d.loc)
	if err != nil {
		return nil, nil, &DownloadError{Kind: KindMalformedCalendar, Err: err}
	}
	return res.Body, def, nil
}

// Schedule downloads and parses handle's schedule, validating block labels
// against def.
func (d *Downloader) Schedule(ctx context.Context, handle string, def *calendar.Definition) (doc []byte, sched *schedule.Schedule, err error) {
	u, err := url.Parse(d.scheduleURL)
	if err != nil {
		return nil, nil, &DownloadError{Kind: KindOther, Err: err}
	}
	q := u.Query()
	q.Set("handle", handle)
	u.RawQuery = q.Encode()

	res, err := d.Fetch(ctx, Source{ID: "schedule", URL: u.String()})
	if err != nil {
		return nil, nil, classify(err, KindNoSuchSchedule)
	}
	sched, err = schedule.Parse(res.Body, def)
	if err != nil {
		return nil, nil, &DownloadError{Kind: KindMalformedSchedule, Err: err}
	}
	return res.Body, sched, nil
}

// FetchAll fetches sources concurrently. Failed sources are logged and
// reported in the error slice; results keep the order of sources.
func (d *Downloader) FetchAll(ctx context.Context, sources []Source) ([]Result, []error) {
	results := make([]*Result, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(feedWorkers)
	for i, src := range sources {
		g.Go(func() error {
			res, err := d.Fetch(ctx, src)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", src.ID, err)
				appLog.Error("fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	var (
		out    []Result
		failed []error
	)
	for i := range sources {
		if results[i] != nil {
			out = append(out, *results[i])
		}
		if errs[i] != nil {
			failed = append(failed, errs[i])
		}
	}
	return out, failed
}

// Fetch downloads one source, honoring ETag and Last-Modified. Network
// errors and server errors fall back to the cached body when there is one;
// client errors (4xx) never do.
func (d *Downloader) Fetch(ctx context.Context, src Source) (Result, error) {
	if src.URL == "" {
		return Result{}, errors.New("source URL is empty")
	}

	cachePath := d.cachePathForURL(src.URL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return Result{}, err
	}

	meta, _ := loadCacheMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, cacheBodyFile))
	cached := Result{Source: src, Body: cachedBody, FromCache: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, err
	}
	if meta.URL == src.URL && len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := d.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("fetch network error, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return cached, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Result{}, err
		}
		newMeta := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := d.saveCache(cachePath, newMeta, body); err != nil {
			appLog.Error("cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return Result{Source: src, Body: body}, nil

	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Result{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return cached, nil

	case resp.StatusCode >= 500 && len(cachedBody) > 0:
		appLog.Error("fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "url", redactURL(src.URL))
		return cached, nil

	default:
		return Result{}, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
}

func (d *Downloader) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(d.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, cacheMetaFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (d *Downloader) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, cacheBodyFile), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, cacheMetaFile), data, 0o600)
}

// redactURL keeps scheme and host only; paths and queries may carry tokens
// or handles.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "url://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
