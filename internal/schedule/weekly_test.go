package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"wakeuplight/internal/clock"
	"wakeuplight/internal/config"
	"wakeuplight/internal/wakeup"

	"github.com/nathan-osman/go-sunrise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var berlin = config.LocationConfig{Latitude: 52.52, Longitude: 13.405}

func testProfiles() wakeup.Profiles {
	return wakeup.Profiles{
		Weekday: wakeup.Profile{Enabled: true, Start: config.Start{Hour: 6, Minute: 15}, Duration: 20, Brightness: 70},
		Weekend: wakeup.Profile{Enabled: true, Start: config.Start{Sunrise: true, Offset: -30 * time.Minute}, Duration: 45, Brightness: 40},
	}
}

func newTestSchedule(t *testing.T, now time.Time, profiles wakeup.Profiles, trigger Trigger) *Schedule {
	t.Helper()
	if trigger == nil {
		trigger = func(context.Context, Name) error { return nil }
	}
	s, err := New(profiles, berlin, time.UTC, clock.NewMockClock(now), trigger, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestSchedule_Entries(t *testing.T) {
	// Friday 10:00
	now := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	s := newTestSchedule(t, now, testProfiles(), nil)

	entries := s.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, NameWeekday, entries[0].Name)
	assert.Equal(t, "06:15", entries[0].Start)
	// Next weekday is Monday
	assert.WithinDuration(t, time.Date(2024, 3, 11, 6, 15, 0, 0, time.UTC), entries[0].Next, 0)

	assert.Equal(t, NameWeekend, entries[1].Name)
	assert.Equal(t, "sunrise -30m0s", entries[1].Start)
	rise, _ := sunrise.SunriseSunset(berlin.Latitude, berlin.Longitude, 2024, time.March, 9)
	assert.WithinDuration(t, rise.Add(-30*time.Minute), entries[1].Next, 0)
}

func TestSchedule_DisabledProfiles(t *testing.T) {
	profiles := testProfiles()
	profiles.Weekend.Enabled = false
	now := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	s := newTestSchedule(t, now, profiles, nil)

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, NameWeekday, entries[0].Name)

	profiles.Weekday.Enabled = false
	require.NoError(t, s.Update(profiles))
	assert.Empty(t, s.Entries())
}

func TestSchedule_Update(t *testing.T) {
	now := time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC)
	s := newTestSchedule(t, now, testProfiles(), nil)

	profiles := testProfiles()
	profiles.Weekday.Start = config.Start{Hour: 5, Minute: 30}
	require.NoError(t, s.Update(profiles))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.WithinDuration(t, time.Date(2024, 3, 4, 5, 30, 0, 0, time.UTC), entries[0].Next, 0)
	assert.Len(t, s.cron.Entries(), 2)

	profiles.Weekday.Start = config.Start{Hour: 25}
	assert.Error(t, s.Update(profiles))
	// The previous entries stay in place
	assert.Len(t, s.cron.Entries(), 2)
}

func TestSchedule_DetermineAction(t *testing.T) {
	profiles := testProfiles()
	profiles.Weekend.Enabled = false
	s := newTestSchedule(t, time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC), profiles, nil)

	testCases := []struct {
		name    string
		day     time.Time
		want    Name
		enabled bool
	}{
		{"monday", time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), NameWeekday, true},
		{"friday", time.Date(2024, 3, 8, 6, 0, 0, 0, time.UTC), NameWeekday, true},
		{"saturday", time.Date(2024, 3, 9, 6, 0, 0, 0, time.UTC), NameWeekend, false},
		{"sunday", time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC), NameWeekend, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			action := s.DetermineAction(tc.day)
			assert.Equal(t, tc.want, action.Name)
			assert.Equal(t, tc.enabled, action.Enabled)
		})
	}
	assert.Equal(t, 70, s.DetermineAction(time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)).Profile.Brightness)
}

func TestSchedule_Run(t *testing.T) {
	var got []Name
	trigger := func(ctx context.Context, name Name) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		got = append(got, name)
		return errors.New("lamp already on")
	}
	s := newTestSchedule(t, time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC), testProfiles(), trigger)

	// Errors are logged, not propagated
	s.run(NameWeekday)
	s.run(NameWeekend)
	assert.Equal(t, []Name{NameWeekday, NameWeekend}, got)
}

func TestSchedule_StartStop(t *testing.T) {
	s := newTestSchedule(t, time.Now(), testProfiles(), nil)

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSunriseSchedule_Next(t *testing.T) {
	schedule := SunriseSchedule{
		Latitude:  berlin.Latitude,
		Longitude: berlin.Longitude,
		Offset:    -20 * time.Minute,
		Days:      Weekdays,
	}

	// Monday before sunrise: today
	now := time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)
	rise, _ := sunrise.SunriseSunset(berlin.Latitude, berlin.Longitude, 2024, time.March, 4)
	assert.WithinDuration(t, rise.Add(-20*time.Minute), schedule.Next(now), 0)

	// Monday after sunrise: Tuesday
	now = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	rise, _ = sunrise.SunriseSunset(berlin.Latitude, berlin.Longitude, 2024, time.March, 5)
	assert.WithinDuration(t, rise.Add(-20*time.Minute), schedule.Next(now), 0)

	// Friday afternoon: Monday
	now = time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	rise, _ = sunrise.SunriseSunset(berlin.Latitude, berlin.Longitude, 2024, time.March, 11)
	assert.WithinDuration(t, rise.Add(-20*time.Minute), schedule.Next(now), 0)
}

func TestSunriseSchedule_PolarNight(t *testing.T) {
	schedule := SunriseSchedule{Latitude: 89, Longitude: 0, Days: Weekdays}
	now := time.Date(2024, 12, 20, 12, 0, 0, 0, time.UTC)
	assert.True(t, schedule.Next(now).IsZero())
}

func TestDays_Contains(t *testing.T) {
	assert.True(t, Weekdays.Contains(time.Monday))
	assert.False(t, Weekdays.Contains(time.Sunday))
	assert.True(t, Weekend.Contains(time.Saturday))
	assert.False(t, Weekend.Contains(time.Friday))
}
