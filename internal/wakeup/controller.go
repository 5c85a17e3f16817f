package wakeup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wakeuplight/internal/clock"
	"wakeuplight/internal/device"

	"github.com/qmuntal/stateless"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	triggerStart  = "start"
	triggerHold   = "hold"
	triggerFinish = "finish"
	triggerAbort  = "abort"
	triggerStop   = "stop"
)

const (
	// every lamp request is tried a second time before giving up
	deviceAttempts = 2
	timerTimeout   = 30 * time.Second
)

// Observer receives a status snapshot after every operation
type Observer func(Status)

// Options configure a Controller
type Options struct {
	Light    device.Light
	Store    Store
	Clock    clock.Clock
	Logger   *zap.Logger
	Settings Settings
	Profiles Profiles
	Pacing   Pacing
	// Location decides weekday or weekend and formats the finish time
	Location *time.Location
}

type observerEntry struct {
	id       int
	observer Observer
}

// Controller runs the wake-up sequence for one lamp.
//
// All operations are serialized. At most one timer is armed: the next
// brightness step while ramping, or the automatic power off while holding.
type Controller struct {
	light    device.Light
	store    Store
	clock    clock.Clock
	logger   *zap.Logger
	pacing   Pacing
	location *time.Location
	machine  *stateless.StateMachine

	mu        sync.Mutex
	attrs     Attributes
	settings  Settings
	profiles  Profiles
	timer     clock.Timer
	timerGen  uint64
	nextCycle time.Time
	reason    string

	observerMu     sync.Mutex
	observers      []observerEntry
	nextObserverID int
}

// NewController creates a controller in phase off. Call Restore to resume a
// persisted sequence.
func NewController(opts Options) (*Controller, error) {
	if opts.Light == nil {
		return nil, fmt.Errorf("wake-up controller needs a light")
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore(Attributes{Phase: PhaseOff})
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Settings == (Settings{}) {
		opts.Settings = DefaultSettings()
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	switch opts.Pacing {
	case "":
		opts.Pacing = PacingAdaptive
	case PacingAdaptive, PacingFixed:
	default:
		return nil, fmt.Errorf("unknown pacing %q", opts.Pacing)
	}

	c := &Controller{
		light:    opts.Light,
		store:    opts.Store,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("wakeup"),
		pacing:   opts.Pacing,
		location: opts.Location,
		attrs:    Attributes{Phase: PhaseOff},
		settings: opts.Settings,
		profiles: opts.Profiles,
	}
	c.machine = c.newMachine()
	return c, nil
}

func (c *Controller) newMachine() *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return c.attrs.Phase, nil
		},
		func(_ context.Context, state stateless.State) error {
			c.attrs.Phase = state.(Phase)
			return nil
		},
		stateless.FiringImmediate,
	)

	sm.Configure(PhaseOff).
		OnEntry(c.enterOff).
		Permit(triggerStart, PhaseRamping).
		Ignore(triggerFinish).
		Ignore(triggerAbort).
		Ignore(triggerStop)

	sm.Configure(PhaseRamping).
		Permit(triggerHold, PhaseHolding).
		Permit(triggerFinish, PhaseOff).
		Permit(triggerAbort, PhaseOff).
		Permit(triggerStop, PhaseOff)

	sm.Configure(PhaseHolding).
		OnEntry(c.enterHolding).
		Permit(triggerFinish, PhaseOff).
		Permit(triggerAbort, PhaseOff).
		Permit(triggerStop, PhaseOff)

	sm.OnTransitioned(c.onTransitioned)
	return sm
}

// Toggle starts (on) or stops the sequence. Stopping resets the attributes
// and timers but leaves the lamp as it is.
func (c *Controller) Toggle(ctx context.Context, on bool, mode Mode) error {
	c.mu.Lock()
	var err error
	if on {
		err = c.start(ctx, mode)
	} else {
		err = c.stop(ctx, "toggled off")
	}
	status := c.statusLocked()
	c.mu.Unlock()

	c.publish(status)
	return err
}

// IncreaseBrightness performs one ramp step. It is what the step timer runs.
func (c *Controller) IncreaseBrightness(ctx context.Context) error {
	return c.do(ctx, c.step)
}

// PowerOff switches the lamp off at the end of the holding phase. It is
// what the power off timer runs.
func (c *Controller) PowerOff(ctx context.Context) error {
	return c.do(ctx, c.powerOff)
}

// PowerDevice switches the lamp without touching the sequence
func (c *Controller) PowerDevice(ctx context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.retry(ctx, func(ctx context.Context) error {
		return c.light.SetPower(ctx, on)
	}); err != nil {
		return fmt.Errorf("power lamp: %w", err)
	}
	c.logger.Info("Lamp powered", zap.Bool("on", on))
	return nil
}

// HandleLightChange reacts to a lamp change made by someone else. The
// sequence stops when the lamp is switched off, or when it reaches the
// target brightness before the ramp did.
func (c *Controller) HandleLightChange(ctx context.Context, lamp device.State) {
	c.mu.Lock()
	var err error
	switch {
	case c.attrs.Phase == PhaseOff:
		c.mu.Unlock()
		return
	case !lamp.On:
		err = c.fire(ctx, triggerAbort, "lamp switched off")
	case c.attrs.Phase == PhaseRamping && lamp.Brightness >= c.attrs.TargetBrightness:
		err = c.fire(ctx, triggerAbort, "target brightness reached externally")
	default:
		c.mu.Unlock()
		return
	}
	status := c.statusLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Failed to handle lamp change", zap.Error(err))
	}
	c.publish(status)
}

// UpdateSettings replaces the manual settings. Settings are locked while a
// sequence runs.
func (c *Controller) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.attrs.Phase != PhaseOff {
		c.mu.Unlock()
		return ErrSettingsLocked
	}
	changed := c.settings != settings
	c.settings = settings
	status := c.statusLocked()
	c.mu.Unlock()

	if changed {
		c.logger.Info("Settings updated",
			zap.Int("brightness", settings.Brightness),
			zap.Int("duration", settings.Duration),
			zap.Int("auto_off", settings.AutoOff),
			zap.String("color", device.HexColor(settings.Color)),
			zap.Bool("color_enabled", settings.ColorEnabled))
		c.publish(status)
	}
	return nil
}

// Settings returns the manual settings
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetProfiles replaces the schedule profiles used by the next scheduled start
func (c *Controller) SetProfiles(profiles Profiles) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = profiles
}

// Profiles returns the schedule profiles
func (c *Controller) Profiles() Profiles {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profiles
}

// Restore resumes a persisted sequence. A ramp whose end time or a hold
// whose power off time has passed is reset instead.
func (c *Controller) Restore(ctx context.Context) error {
	return c.do(ctx, c.restore)
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers observer for status snapshots. The returned func
// removes it.
func (c *Controller) Subscribe(observer Observer) func() {
	c.observerMu.Lock()
	id := c.nextObserverID
	c.nextObserverID++
	c.observers = append(c.observers, observerEntry{id: id, observer: observer})
	c.observerMu.Unlock()

	return func() {
		c.observerMu.Lock()
		defer c.observerMu.Unlock()
		for i, entry := range c.observers {
			if entry.id == id {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Close stops the armed timer without changing the persisted attributes, so
// that Restore can resume after a restart
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimer()
}

func (c *Controller) do(ctx context.Context, fn func(context.Context) error) error {
	c.mu.Lock()
	err := fn(ctx)
	status := c.statusLocked()
	c.mu.Unlock()

	c.publish(status)
	return err
}

func (c *Controller) start(ctx context.Context, mode Mode) error {
	if c.attrs.Phase != PhaseOff {
		return ErrAlreadyActive
	}
	c.cancelTimer()

	lamp, err := c.light.State(ctx)
	if err != nil && !errors.Is(err, device.ErrStateUnknown) {
		return fmt.Errorf("read lamp state: %w", err)
	}
	if lamp.On {
		c.logger.Info("Not starting, lamp is already on", zap.Int("brightness", lamp.Brightness))
		return ErrLampAlreadyOn
	}

	now := c.clock.Now()
	run := c.resolve(mode, now)

	if err := c.retry(ctx, func(ctx context.Context) error {
		return c.light.SetBrightness(ctx, 1)
	}); err != nil {
		return fmt.Errorf("set initial brightness: %w", err)
	}
	if run.ColorEnabled {
		if err := c.retry(ctx, func(ctx context.Context) error {
			return c.light.SetColor(ctx, run.Color)
		}); err != nil {
			c.logger.Warn("Failed to set lamp color", zap.String("color", device.HexColor(run.Color)), zap.Error(err))
		}
	}
	if err := c.retry(ctx, func(ctx context.Context) error {
		return c.light.SetPower(ctx, true)
	}); err != nil {
		return fmt.Errorf("power on lamp: %w", err)
	}

	duration := time.Duration(run.Duration) * time.Minute
	c.attrs.Mode = mode
	c.attrs.TargetBrightness = run.Brightness
	c.attrs.CyclingBrightness = 1
	c.attrs.EndTime = now.Add(duration)
	c.attrs.PowerOffAt = time.Time{}
	c.attrs.Interval = 0
	if c.pacing == PacingFixed {
		c.attrs.Interval, _ = FixedInterval(duration, run.Brightness)
	}

	c.logger.Info("Starting wake-up light",
		zap.String("mode", string(mode)),
		zap.Int("target", run.Brightness),
		zap.Duration("duration", duration),
		zap.Time("end", c.attrs.EndTime))

	if err := c.fire(ctx, triggerStart, "started"); err != nil {
		return fmt.Errorf("start wake-up light: %w", err)
	}
	if !c.scheduleNext(now) {
		return multierr.Append(ErrRampNotPossible, c.fire(ctx, triggerAbort, "ramp not possible"))
	}
	return nil
}

// resolve picks the run parameters for mode
func (c *Controller) resolve(mode Mode, now time.Time) Profile {
	if mode == ModeSchedule {
		return c.profiles.For(now.In(c.location))
	}
	return Profile{
		Enabled:      true,
		Duration:     c.settings.Duration,
		Brightness:   c.settings.Brightness,
		Color:        c.settings.Color,
		ColorEnabled: c.settings.ColorEnabled,
	}
}

func (c *Controller) stop(ctx context.Context, reason string) error {
	if c.attrs.Phase == PhaseOff {
		c.cancelTimer()
		c.resetAttributes()
		return nil
	}
	return c.fire(ctx, triggerStop, reason)
}

func (c *Controller) step(ctx context.Context) error {
	if c.attrs.Phase != PhaseRamping {
		return nil
	}
	c.nextCycle = time.Time{}

	lamp, err := c.light.State(ctx)
	if err != nil {
		return multierr.Append(
			fmt.Errorf("read lamp state: %w", err),
			c.fire(ctx, triggerAbort, "lamp state unavailable"))
	}
	if !lamp.On || lamp.Brightness == 0 {
		return c.fire(ctx, triggerAbort, "lamp switched off")
	}
	if lamp.Brightness >= c.attrs.CyclingBrightness+1 {
		return c.fire(ctx, triggerAbort, "brightness changed manually")
	}

	next := c.attrs.CyclingBrightness + 1
	var stepErr error
	if err := c.retry(ctx, func(ctx context.Context) error {
		return c.light.SetBrightness(ctx, next)
	}); err != nil {
		stepErr = fmt.Errorf("set brightness %d: %w", next, err)
	}
	c.attrs.CyclingBrightness = next
	c.logger.Debug("Brightness increased",
		zap.Int("brightness", next),
		zap.Int("target", c.attrs.TargetBrightness))

	if next >= c.attrs.TargetBrightness {
		return multierr.Append(stepErr, c.reachTarget(ctx))
	}

	c.persist()
	if !c.scheduleNext(c.clock.Now()) {
		return multierr.Append(stepErr, c.fire(ctx, triggerAbort, "ramp time elapsed"))
	}
	return stepErr
}

func (c *Controller) reachTarget(ctx context.Context) error {
	if c.settings.AutoOff > 0 {
		c.attrs.PowerOffAt = c.clock.Now().Add(time.Duration(c.settings.AutoOff) * time.Minute)
		return c.fire(ctx, triggerHold, "target brightness reached")
	}
	return c.fire(ctx, triggerFinish, "target brightness reached")
}

func (c *Controller) powerOff(ctx context.Context) error {
	if c.attrs.Phase != PhaseHolding {
		return nil
	}

	var err error
	if perr := c.retry(ctx, func(ctx context.Context) error {
		return c.light.SetPower(ctx, false)
	}); perr != nil {
		err = fmt.Errorf("power off lamp: %w", perr)
	}
	return multierr.Append(err, c.fire(ctx, triggerFinish, "automatic power off"))
}

func (c *Controller) restore(ctx context.Context) error {
	attrs, err := c.store.Load()
	if err != nil {
		c.cancelTimer()
		c.resetAttributes()
		return fmt.Errorf("load attributes: %w", err)
	}

	c.cancelTimer()
	c.attrs = attrs
	if c.attrs.Phase == "" {
		c.attrs.Phase = PhaseOff
	}
	now := c.clock.Now()

	switch c.attrs.Phase {
	case PhaseRamping:
		valid := c.attrs.EndTime.After(now) &&
			c.attrs.CyclingBrightness >= 1 &&
			c.attrs.CyclingBrightness < c.attrs.TargetBrightness
		if valid && c.scheduleNext(now) {
			c.logger.Info("Resumed ramp",
				zap.Int("brightness", c.attrs.CyclingBrightness),
				zap.Int("target", c.attrs.TargetBrightness),
				zap.Time("end", c.attrs.EndTime))
			return nil
		}
		return c.fire(ctx, triggerAbort, "ramp expired while stopped")
	case PhaseHolding:
		if c.attrs.PowerOffAt.After(now) {
			c.arm(c.clock.Until(c.attrs.PowerOffAt), c.powerOff)
			c.logger.Info("Resumed hold", zap.Time("power_off_at", c.attrs.PowerOffAt))
			return nil
		}
		return c.fire(ctx, triggerAbort, "power off time passed while stopped")
	default:
		c.resetAttributes()
		return nil
	}
}

// scheduleNext arms the step timer; false means no further step fits
func (c *Controller) scheduleNext(now time.Time) bool {
	delay, ok := c.attrs.Interval, c.attrs.Interval > 0 && c.attrs.CyclingBrightness < c.attrs.TargetBrightness
	if c.attrs.Interval == 0 {
		delay, ok = NextCycle(c.attrs.EndTime, now, c.attrs.TargetBrightness, c.attrs.CyclingBrightness)
	}
	if !ok {
		return false
	}

	c.nextCycle = now.Add(delay)
	c.arm(delay, c.step)
	c.logger.Debug("Next cycle scheduled",
		zap.Duration("in", delay),
		zap.Int("brightness", c.attrs.CyclingBrightness))
	return true
}

func (c *Controller) fire(ctx context.Context, trigger string, reason string) error {
	c.reason = reason
	if err := c.machine.FireCtx(ctx, trigger); err != nil {
		return fmt.Errorf("%s in phase %s: %w", trigger, c.attrs.Phase, err)
	}
	return nil
}

func (c *Controller) enterOff(_ context.Context, _ ...any) error {
	c.cancelTimer()
	c.resetAttributes()
	return nil
}

func (c *Controller) enterHolding(_ context.Context, _ ...any) error {
	c.nextCycle = time.Time{}
	c.arm(c.clock.Until(c.attrs.PowerOffAt), c.powerOff)
	return nil
}

func (c *Controller) onTransitioned(_ context.Context, tr stateless.Transition) {
	c.logger.Info("Wake-up phase changed",
		zap.Any("from", tr.Source),
		zap.Any("to", tr.Destination),
		zap.Any("trigger", tr.Trigger),
		zap.String("reason", c.reason))
	c.persist()
}

func (c *Controller) resetAttributes() {
	c.attrs = Attributes{Phase: PhaseOff}
	c.nextCycle = time.Time{}
}

func (c *Controller) persist() {
	if err := c.store.Save(c.attrs); err != nil {
		c.logger.Warn("Failed to persist attributes", zap.Error(err))
	}
}

func (c *Controller) retry(ctx context.Context, fn func(context.Context) error) error {
	return device.Retry(ctx, deviceAttempts, fn)
}

// arm replaces the armed timer
func (c *Controller) arm(delay time.Duration, fn func(context.Context) error) {
	c.cancelTimer()
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(delay, func() {
		c.runTimer(gen, fn)
	})
}

// cancelTimer also invalidates a timer callback that is already running
func (c *Controller) cancelTimer() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) runTimer(gen uint64, fn func(context.Context) error) {
	c.mu.Lock()
	if gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), timerTimeout)
	err := fn(ctx)
	cancel()
	status := c.statusLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Wake-up timer failed", zap.Error(err))
	}
	c.publish(status)
}

func (c *Controller) statusLocked() Status {
	status := Status{
		Phase:             c.attrs.Phase,
		Mode:              c.attrs.Mode,
		TargetBrightness:  c.attrs.TargetBrightness,
		CyclingBrightness: c.attrs.CyclingBrightness,
		EndTime:           c.attrs.EndTime,
		NextCycle:         c.nextCycle,
		PowerOffAt:        c.attrs.PowerOffAt,
		Reason:            c.reason,
		Settings:          c.settings,
	}
	switch c.attrs.Phase {
	case PhaseRamping:
		status.ProcessFinished = c.attrs.EndTime.In(c.location).Format(ProcessFinishedLayout)
	case PhaseHolding:
		status.ProcessFinished = c.attrs.PowerOffAt.In(c.location).Format(ProcessFinishedLayout)
	}
	return status
}

func (c *Controller) publish(status Status) {
	c.observerMu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, entry := range c.observers {
		observers = append(observers, entry.observer)
	}
	c.observerMu.Unlock()

	for _, observer := range observers {
		observer(status)
	}
}
