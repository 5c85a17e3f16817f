// Package schedule starts the wake-up light automatically: the weekday
// profile on Monday to Friday and the weekend profile on Saturday and
// Sunday, at a fixed time or relative to sunrise.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wakeuplight/internal/clock"
	"wakeuplight/internal/config"
	"wakeuplight/internal/wakeup"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const triggerTimeout = time.Minute

// Name identifies a schedule profile
type Name string

const (
	NameWeekday Name = "weekday"
	NameWeekend Name = "weekend"
)

// Trigger is called when a profile's start time is reached
type Trigger func(ctx context.Context, name Name) error

// Entry describes the next run of an enabled profile
type Entry struct {
	Name  Name      `json:"name"`
	Start string    `json:"start"`
	Next  time.Time `json:"next"`
}

// Action is the profile that applies on a given day
type Action struct {
	Name    Name           `json:"name"`
	Enabled bool           `json:"enabled"`
	Profile wakeup.Profile `json:"profile"`
}

type job struct {
	id       cron.EntryID
	schedule cron.Schedule
	start    config.Start
}

// Schedule runs the weekly wake-up triggers on a cron
type Schedule struct {
	cron     *cron.Cron
	location config.LocationConfig
	tz       *time.Location
	clock    clock.Clock
	trigger  Trigger
	logger   *zap.Logger

	mu       sync.Mutex
	profiles wakeup.Profiles
	jobs     map[Name]job
	running  bool
}

// New creates a schedule for profiles. Nothing fires until Start.
func New(profiles wakeup.Profiles, location config.LocationConfig, tz *time.Location, clk clock.Clock, trigger Trigger, logger *zap.Logger) (*Schedule, error) {
	if tz == nil {
		tz = time.Local
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	logger = logger.Named("schedule")

	s := &Schedule{
		cron: cron.New(
			cron.WithLocation(tz),
			cron.WithLogger(cronLogger{logger.Sugar()}),
			cron.WithChain(cron.Recover(cronLogger{logger.Sugar()})),
		),
		location: location,
		tz:       tz,
		clock:    clk,
		trigger:  trigger,
		logger:   logger,
		jobs:     make(map[Name]job),
	}
	if err := s.Update(profiles); err != nil {
		return nil, err
	}
	return s, nil
}

// Update replaces the profiles and their cron entries
func (s *Schedule) Update(profiles wakeup.Profiles) error {
	weekday, err := s.scheduleFor(profiles.Weekday.Start, Weekdays)
	if err != nil {
		return fmt.Errorf("weekday schedule: %w", err)
	}
	weekend, err := s.scheduleFor(profiles.Weekend.Start, Weekend)
	if err != nil {
		return fmt.Errorf("weekend schedule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, j := range s.jobs {
		s.cron.Remove(j.id)
		delete(s.jobs, name)
	}
	s.profiles = profiles

	if profiles.Weekday.Enabled {
		s.add(NameWeekday, weekday, profiles.Weekday.Start)
	}
	if profiles.Weekend.Enabled {
		s.add(NameWeekend, weekend, profiles.Weekend.Start)
	}
	return nil
}

func (s *Schedule) add(name Name, schedule cron.Schedule, start config.Start) {
	id := s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(name) }))
	s.jobs[name] = job{id: id, schedule: schedule, start: start}

	s.logger.Info("Scheduled wake-up",
		zap.String("profile", string(name)),
		zap.String("start", start.String()),
		zap.Time("next", schedule.Next(s.clock.Now().In(s.tz))))
}

// scheduleFor turns a profile start into a cron schedule limited to days
func (s *Schedule) scheduleFor(start config.Start, days Days) (cron.Schedule, error) {
	if start.Sunrise {
		return SunriseSchedule{
			Latitude:  s.location.Latitude,
			Longitude: s.location.Longitude,
			Offset:    start.Offset,
			Days:      days,
		}, nil
	}

	dow := "1-5"
	if days == Weekend {
		dow = "0,6"
	}
	return cron.ParseStandard(fmt.Sprintf("%d %d * * %s", start.Minute, start.Hour, dow))
}

// run is the cron job of a profile
func (s *Schedule) run(name Name) {
	s.logger.Info("Schedule triggered", zap.String("profile", string(name)))

	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()
	if err := s.trigger(ctx, name); err != nil {
		s.logger.Warn("Scheduled wake-up not started",
			zap.String("profile", string(name)),
			zap.Error(err))
	}
}

// Start runs the cron in its own goroutine
func (s *Schedule) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
}

// Stop stops the cron and waits for a running trigger to return
func (s *Schedule) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// Entries returns the next run of each enabled profile, weekday first
func (s *Schedule) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().In(s.tz)
	entries := make([]Entry, 0, len(s.jobs))
	for _, name := range []Name{NameWeekday, NameWeekend} {
		j, ok := s.jobs[name]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Name:  name,
			Start: j.start.String(),
			Next:  j.schedule.Next(now),
		})
	}
	return entries
}

// DetermineAction returns the profile that applies on the day of now
func (s *Schedule) DetermineAction(now time.Time) Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.tz)
	if wakeup.IsWeekday(now) {
		return Action{Name: NameWeekday, Enabled: s.profiles.Weekday.Enabled, Profile: s.profiles.Weekday}
	}
	return Action{Name: NameWeekend, Enabled: s.profiles.Weekend.Enabled, Profile: s.profiles.Weekend}
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
