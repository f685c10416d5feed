package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sphcal/internal/calendar"
	"sphcal/internal/schedule"
	"sphcal/internal/testutil"
)

func fixture(t *testing.T) (*calendar.Calendar, *schedule.Schedule) {
	t.Helper()
	def, err := calendar.Parse([]byte(testutil.CalendarJSON), nil)
	require.NoError(t, err)
	sched, err := schedule.Parse([]byte(testutil.ScheduleJSON), def)
	require.NoError(t, err)
	return calendar.New(def), sched
}

func TestDayOf(t *testing.T) {
	cal, sched := fixture(t)

	tests := []struct {
		name     string
		date     calendar.Date
		kind     string
		school   bool
		number   int
		semester int
		periods  int
	}{
		{"standard", calendar.NewDate(2018, time.September, 4), KindStandard, true, 1, 1, 6},
		{"forced number", calendar.NewDate(2018, time.October, 10), KindStandard, true, 1, 1, 6},
		{"half day", calendar.NewDate(2018, time.November, 21), KindHalfDay, true, 0, 1, 3},
		{"exam day", calendar.NewDate(2019, time.January, 22), KindExamDay, true, 0, 1, 2},
		{"unknown", calendar.NewDate(2018, time.October, 11), KindUnknown, false, 0, 0, 0},
		{"holiday", calendar.NewDate(2018, time.December, 24), KindHoliday, false, 0, 0, 0},
		{"weekend", calendar.NewDate(2018, time.September, 8), KindWeekend, false, 0, 0, 0},
		{"second semester", calendar.NewDate(2019, time.January, 28), KindStandard, true, 3, 2, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day, ok := cal.Day(tt.date)
			require.True(t, ok)
			got := DayOf(day, sched)
			assert.Equal(t, tt.date, got.Date)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.school, got.SchoolDay)
			assert.Equal(t, tt.number, got.Number)
			assert.Equal(t, tt.semester, got.Semester)
			assert.Len(t, got.Periods, tt.periods)
			assert.Equal(t, day.Description(), got.Description)
		})
	}
}

func TestDayOf_Teachers(t *testing.T) {
	cal, sched := fixture(t)
	day, _ := cal.Day(calendar.NewDate(2019, time.January, 28))

	got := DayOf(day, sched)
	// Day 3: C D E F G H, semester 2.
	assert.Equal(t, Period{Block: "E", Teacher: "Klein", Start: "09:54", End: "10:54"}, got.Periods[2])
	assert.Equal(t, Period{Block: "G", Start: "12:29", End: "13:15"}, got.Periods[4])
	assert.Equal(t, "Taylor", got.Periods[5].Teacher)

	bare := DayOf(day, nil)
	for _, p := range bare.Periods {
		assert.Empty(t, p.Teacher)
	}
}

func TestFrame(t *testing.T) {
	cal, sched := fixture(t)
	sd, ok := cal.SchoolDay(calendar.NewDate(2018, time.September, 6))
	require.True(t, ok)

	f := NewFrame(sched)
	f.Show("Now: Garcia", "Block C")
	f.ShowSchoolDay(sd, true)

	assert.Equal(t, "Now: Garcia", f.Title)
	require.NotNil(t, f.Day)
	assert.True(t, f.IsToday)
	assert.Equal(t, "Garcia", f.Day.Periods[0].Teacher)
	assert.Empty(t, f.Unavailable)

	f = NewFrame(nil)
	f.ShowUnavailable("Not in current school year")
	assert.Equal(t, "Not in current school year", f.Unavailable)
	assert.Nil(t, f.Day)
}
