package schedule

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// searchDays bounds the look-ahead for the next matching sunrise
const searchDays = 8

// Days is a set of weekdays
type Days [7]bool

var (
	// Weekdays is Monday to Friday
	Weekdays = Days{false, true, true, true, true, true, false}
	// Weekend is Saturday and Sunday
	Weekend = Days{true, false, false, false, false, false, true}
)

// Contains reports whether d includes the weekday
func (d Days) Contains(day time.Weekday) bool {
	return d[day]
}

// SunriseSchedule fires at local sunrise plus Offset on the given days.
//
// This implements robfig/cron.Schedule
type SunriseSchedule struct {
	Latitude  float64
	Longitude float64
	Offset    time.Duration
	Days      Days
}

// Next returns the first sunrise plus offset after now, or the zero time
// when the sun does not rise within the next week
func (s SunriseSchedule) Next(now time.Time) time.Time {
	for i := 0; i < searchDays; i++ {
		day := now.AddDate(0, 0, i)
		if !s.Days.Contains(day.Weekday()) {
			continue
		}

		rise, _ := sunrise.SunriseSunset(s.Latitude, s.Longitude, day.Year(), day.Month(), day.Day())
		if rise.IsZero() {
			continue
		}

		start := rise.Add(s.Offset).In(now.Location())
		if start.After(now) {
			return start
		}
	}
	return time.Time{}
}
