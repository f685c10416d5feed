package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sphcal/internal/calendar"
	"sphcal/internal/download"
	"sphcal/internal/provider"
	"sphcal/internal/schedule"
	"sphcal/internal/testutil"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//district//closures//EN
BEGIN:VEVENT
UID:thanksgiving
DTSTAMP:20180901T000000Z
DTSTART;VALUE=DATE:20181122
DTEND;VALUE=DATE:20181124
SUMMARY:Thanksgiving recess
END:VEVENT
END:VCALENDAR
`

type fakeDownloader struct {
	calendarErr error
	scheduleErr error
	feeds       map[string]string
	calls       atomic.Int32
}

func (f *fakeDownloader) Calendar(ctx context.Context) ([]byte, *calendar.Definition, error) {
	f.calls.Add(1)
	if f.calendarErr != nil {
		return nil, nil, f.calendarErr
	}
	doc := []byte(testutil.CalendarJSON)
	def, err := calendar.Parse(doc, nil)
	return doc, def, err
}

func (f *fakeDownloader) Schedule(ctx context.Context, handle string, def *calendar.Definition) ([]byte, *schedule.Schedule, error) {
	if f.scheduleErr != nil {
		return nil, nil, f.scheduleErr
	}
	doc := []byte(testutil.ScheduleJSON)
	sched, err := schedule.Parse(doc, def)
	return doc, sched, err
}

func (f *fakeDownloader) FetchAll(ctx context.Context, sources []download.Source) ([]download.Result, []error) {
	var (
		out  []download.Result
		errs []error
	)
	for _, src := range sources {
		body, ok := f.feeds[src.ID]
		if !ok {
			errs = append(errs, errors.New(src.ID+": not found"))
			continue
		}
		out = append(out, download.Result{Source: src, Body: []byte(body)})
	}
	return out, errs
}

var sources = []download.Source{
	{ID: "district", URL: "https://example.com/district.ics"},
	{ID: "broken", URL: "https://example.com/broken.ics"},
	{ID: "missing", URL: "https://example.com/missing.ics"},
}

func TestJob_Run(t *testing.T) {
	dl := &fakeDownloader{feeds: map[string]string{"district": feed, "broken": ""}}
	store := provider.New(t.TempDir(), nil)

	report, err := NewJob(dl, store, "jdoe", sources).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.ScheduleStored)
	assert.Equal(t, 2, report.Closures)
	assert.Len(t, report.FeedErrors, 2)

	require.NotNil(t, store.Calendar())
	require.NotNil(t, store.Schedule())
	assert.False(t, store.Calendar().IsSchoolDay(calendar.NewDate(2018, time.November, 22)))
}

func TestJob_NoHandle(t *testing.T) {
	store := provider.New(t.TempDir(), nil)
	report, err := NewJob(&fakeDownloader{}, store, "", nil).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.ScheduleStored)
	assert.Nil(t, store.Schedule())
	assert.NotNil(t, store.Calendar())
}

func TestJob_CalendarFailureStoresNothing(t *testing.T) {
	dl := &fakeDownloader{calendarErr: &download.DownloadError{Kind: download.KindBadConnection}}
	store := provider.New(t.TempDir(), nil)

	_, err := NewJob(dl, store, "jdoe", nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, download.KindBadConnection, download.KindOf(err))
	assert.Nil(t, store.Calendar())
}

func TestJob_ScheduleFailureKeepsCalendar(t *testing.T) {
	dl := &fakeDownloader{scheduleErr: &download.DownloadError{Kind: download.KindUnauthorized}}
	store := provider.New(t.TempDir(), nil)

	_, err := NewJob(dl, store, "jdoe", nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, download.KindUnauthorized, download.KindOf(err))
	assert.NotNil(t, store.Calendar())
	assert.Nil(t, store.Schedule())
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler("every day", nil, NewJob(&fakeDownloader{}, nil, "", nil))
	assert.Error(t, err)
}

func TestScheduler_Run(t *testing.T) {
	dl := &fakeDownloader{}
	store := provider.New(t.TempDir(), nil)
	s, err := NewScheduler("@every 1s", time.UTC, NewJob(dl, store, "", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, dl.calls.Load(), int32(1))
	assert.NotNil(t, store.Calendar())
}
