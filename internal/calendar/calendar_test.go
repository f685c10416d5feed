package calendar

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sphcal/internal/daytime"
)

func fixtureCalendar(t *testing.T) *Calendar {
	t.Helper()
	return New(mustParse(t))
}

func date(y int, m time.Month, d int) Date { return NewDate(y, m, d) }

func TestDay_OutsideYear(t *testing.T) {
	cal := fixtureCalendar(t)

	for _, d := range []Date{
		date(2018, time.July, 1),
		date(2018, time.September, 3),
		date(2019, time.June, 15),
	} {
		day, ok := cal.Day(d)
		assert.False(t, ok, "%s", d)
		assert.Nil(t, day)
		assert.False(t, cal.IsSchoolDay(d))
	}

	for d := cal.Definition().Start(); !d.After(cal.Definition().End()); d = d.AddDays(1) {
		_, ok := cal.Day(d)
		require.True(t, ok, "%s is inside the year", d)
	}
}

func TestDay_Variants(t *testing.T) {
	cal := fixtureCalendar(t)

	cases := []struct {
		date Date
		want string
		desc string
	}{
		{date(2018, time.September, 8), "Weekend", "a Saturday"},
		{date(2018, time.September, 9), "Weekend", "a Sunday"},
		{date(2018, time.October, 8), "Holiday", "Columbus Day"},
		{date(2019, time.February, 18), "Holiday", "a holiday"},
		{date(2018, time.December, 26), "Holiday", "Winter recess"},
		{date(2018, time.November, 21), "HalfDay", "a half-day"},
		{date(2019, time.January, 22), "ExamDay", "an exam day"},
		{date(2018, time.October, 11), "UnknownDay", "a delayed opening"},
		{date(2018, time.October, 10), "StandardDay", "a Day 1"},
		{date(2018, time.September, 6), "StandardDay", "a Day 3"},
	}
	for _, tc := range cases {
		day, ok := cal.Day(tc.date)
		require.True(t, ok)
		assert.Equal(t, tc.date, day.Date())
		assert.Same(t, cal.Definition(), day.Definition())
		assert.Equal(t, tc.desc, day.Description(), "%s", tc.date)

		var kind string
		switch day.(type) {
		case StandardDay:
			kind = "StandardDay"
		case HalfDay:
			kind = "HalfDay"
		case ExamDay:
			kind = "ExamDay"
		case UnknownDay:
			kind = "UnknownDay"
		case Holiday:
			kind = "Holiday"
		case Weekend:
			kind = "Weekend"
		}
		assert.Equal(t, tc.want, kind, "%s", tc.date)
	}
}

func TestDay_ExcludedWeekendIsWeekend(t *testing.T) {
	// 2018-12-29 is a Saturday inside the winter recess range.
	cal := fixtureCalendar(t)
	day, ok := cal.Day(date(2018, time.December, 29))
	require.True(t, ok)
	assert.IsType(t, Weekend{}, day)
}

func TestCyclePosition_Fixture(t *testing.T) {
	cal := fixtureCalendar(t)

	cases := []struct {
		date Date
		pos  int
	}{
		{date(2018, time.September, 4), 1},
		{date(2018, time.September, 6), 3},
		{date(2018, time.September, 7), 4},
		{date(2018, time.September, 10), 5},
		{date(2018, time.September, 11), 6},
		{date(2018, time.September, 12), 1},
		{date(2018, time.October, 5), 6},
		// Columbus Day is skipped.
		{date(2018, time.October, 9), 1},
		// The overrides on Oct 10 and 11 do not consume positions.
		{date(2018, time.October, 12), 2},
		{date(2018, time.October, 15), 3},
	}
	for _, tc := range cases {
		pos, ok := cal.CyclePosition(tc.date)
		require.True(t, ok, "%s", tc.date)
		assert.Equal(t, tc.pos, pos, "%s", tc.date)

		day, _ := cal.Day(tc.date)
		std, ok := day.(StandardDay)
		require.True(t, ok)
		assert.Equal(t, tc.pos, std.Number)
	}

	_, ok := cal.CyclePosition(date(2018, time.October, 8))
	assert.False(t, ok)
	_, ok = cal.CyclePosition(date(2018, time.October, 10))
	assert.False(t, ok, "override days are not part of the rotation")
}

func TestCyclePosition_Periodic(t *testing.T) {
	cal := fixtureCalendar(t)
	def := cal.Definition()

	prev := 0
	count := 0
	for d := def.Start(); !d.After(def.End()); d = d.AddDays(1) {
		pos, ok := cal.CyclePosition(d)
		if !ok {
			continue
		}
		count++
		if prev != 0 {
			assert.Equal(t, prev%def.CycleSize()+1, pos, "%s", d)
		}
		prev = pos
	}
	assert.Greater(t, count, 150)
}

func TestStandardDay_BlocksFromCycle(t *testing.T) {
	cal := fixtureCalendar(t)

	day, ok := cal.SchoolDay(date(2018, time.September, 6))
	require.True(t, ok)
	std := day.(StandardDay)
	assert.Equal(t, 3, std.Number)
	assert.Equal(t, []string{"C", "D", "E", "F", "G", "H"}, std.Blocks())
	assert.Equal(t, std.Blocks(), cal.StandardBlocks(std))
	assert.Equal(t, cal.Definition().StandardPeriods(), std.Periods())
}

func TestOverrideDays_Payload(t *testing.T) {
	cal := fixtureCalendar(t)

	half, ok := cal.SchoolDay(date(2018, time.November, 21))
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, half.Blocks())
	assert.Equal(t, cal.Definition().HalfDayPeriods(), half.Periods())

	exam, ok := cal.SchoolDay(date(2019, time.January, 22))
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, exam.Blocks())
	assert.Equal(t, daytime.MustNew(12, 0), End(exam))

	forced, ok := cal.SchoolDay(date(2018, time.October, 10))
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, forced.Blocks())

	unknown, ok := cal.Day(date(2018, time.October, 11))
	require.True(t, ok)
	assert.False(t, IsSchoolDay(unknown))
	assert.Empty(t, unknown.(UnknownDay).Blocks())
	assert.Empty(t, unknown.(UnknownDay).Periods())
	_, ok = cal.SchoolDay(date(2018, time.October, 11))
	assert.False(t, ok)
}

func TestExplicitBlockOverride(t *testing.T) {
	def := mustParse(t)
	def.overrides[date(2018, time.October, 16)] = Override{Kind: OverrideStandardDay, Blocks: []string{"H", "G"}}
	cal := New(def)

	day, ok := cal.SchoolDay(date(2018, time.October, 16))
	require.True(t, ok)
	std := day.(StandardDay)
	assert.Equal(t, 0, std.Number)
	assert.Equal(t, "a school day", std.Description())
	assert.Equal(t, []string{"H", "G"}, std.Blocks())
}

func TestNextSchoolDay(t *testing.T) {
	cal := fixtureCalendar(t)

	cases := []struct {
		after Date
		want  Date
	}{
		// Friday -> Monday.
		{date(2018, time.September, 7), date(2018, time.September, 10)},
		// Across Columbus Day weekend.
		{date(2018, time.October, 5), date(2018, time.October, 9)},
		// Skips the unknown day.
		{date(2018, time.October, 10), date(2018, time.October, 12)},
		// Across winter recess.
		{date(2018, time.December, 21), date(2019, time.January, 2)},
		// From before the year.
		{date(2018, time.August, 1), date(2018, time.September, 4)},
	}
	for _, tc := range cases {
		got, ok := cal.NextSchoolDate(tc.after)
		require.True(t, ok, "after %s", tc.after)
		assert.Equal(t, tc.want, got, "after %s", tc.after)

		again, _ := cal.NextSchoolDate(tc.after)
		assert.Equal(t, got, again, "re-query is idempotent")

		day, ok := cal.NextSchoolDay(tc.after)
		require.True(t, ok)
		assert.True(t, IsSchoolDay(day))
	}

	_, ok := cal.NextSchoolDay(date(2019, time.June, 14))
	assert.False(t, ok)
	_, ok = cal.NextSchoolDate(date(2019, time.July, 1))
	assert.False(t, ok)
}

func TestNextSchoolDay_Monotonic(t *testing.T) {
	cal := fixtureCalendar(t)
	def := cal.Definition()

	var last Date
	for d := def.Start(); d.Before(def.End()); d = d.AddDays(1) {
		next, ok := cal.NextSchoolDate(d)
		if !ok {
			break
		}
		assert.True(t, next.After(d))
		if !last.IsZero() {
			assert.False(t, next.Before(last), "after %s", d)
		}
		last = next
	}
}

func TestPreviousSchoolDay(t *testing.T) {
	cal := fixtureCalendar(t)

	day, ok := cal.PreviousSchoolDay(date(2019, time.January, 2))
	require.True(t, ok)
	assert.Equal(t, date(2018, time.December, 21), day.Date())

	day, ok = cal.PreviousSchoolDay(date(2019, time.August, 1))
	require.True(t, ok)
	assert.Equal(t, date(2019, time.June, 14), day.Date())

	_, ok = cal.PreviousSchoolDay(date(2018, time.September, 4))
	assert.False(t, ok)
}

func TestToday_UsesReferenceZone(t *testing.T) {
	cal := fixtureCalendar(t)

	// 02:30 UTC on Sep 7 is still Sep 6 in New York.
	d, tm := cal.Today(time.Date(2018, time.September, 7, 2, 30, 0, 0, time.UTC))
	assert.Equal(t, date(2018, time.September, 6), d)
	assert.Equal(t, daytime.MustNew(22, 30), tm)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	d, tm = cal.Today(time.Date(2018, time.September, 7, 21, 0, 0, 0, tokyo))
	assert.Equal(t, date(2018, time.September, 7), d)
	assert.Equal(t, daytime.MustNew(8, 0), tm)
}

func TestSchoolDayLookups(t *testing.T) {
	cal := fixtureCalendar(t)
	day, ok := cal.SchoolDay(date(2018, time.September, 6))
	require.True(t, ok)

	assert.Equal(t, daytime.MustNew(7, 44), Start(day))
	assert.Equal(t, daytime.MustNew(14, 5), End(day))

	i, ok := PeriodIndex(day, daytime.MustNew(9, 0))
	require.True(t, ok)
	assert.Equal(t, 1, i)
	block, ok := Block(day, daytime.MustNew(9, 0))
	require.True(t, ok)
	assert.Equal(t, "D", block)
	p, ok := Period(day, daytime.MustNew(9, 0))
	require.True(t, ok)
	assert.Equal(t, daytime.MustNew(8, 49), p.Start)

	_, ok = Block(day, daytime.MustNew(8, 46))
	assert.False(t, ok, "passing time has no block")
	next, ok := NextPeriod(day, daytime.MustNew(8, 46))
	require.True(t, ok)
	assert.Equal(t, daytime.MustNew(8, 49), next.Start)
	ni, ok := NextPeriodIndex(day, daytime.MustNew(8, 46))
	require.True(t, ok)
	assert.Equal(t, 1, ni)

	_, ok = NextPeriod(day, daytime.MustNew(13, 30))
	assert.False(t, ok)

	_, ok = BlockAt(day, 6)
	assert.False(t, ok)
}

func TestCalendar_ConcurrentReads(t *testing.T) {
	cal := fixtureCalendar(t)
	want, _ := cal.NextSchoolDate(date(2018, time.December, 21))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := cal.Definition().Start(); d.Before(cal.Definition().End()); d = d.AddDays(1) {
				cal.Day(d)
			}
			got, _ := cal.NextSchoolDate(date(2018, time.December, 21))
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}
