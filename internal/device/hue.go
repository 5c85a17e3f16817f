package device

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"wakeuplight/internal/clock"
	"wakeuplight/internal/config"

	"github.com/amimof/huego"
	"go.uber.org/zap"
)

const hueMaxBri = 254

// HueLight drives a single light on a Hue bridge. The bridge has no push
// channel here, so the light is polled and changes are reported to watchers.
type HueLight struct {
	bridge   *huego.Bridge
	lightID  int
	name     string
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	notify   *notifier

	mu      sync.Mutex
	last    State
	hasLast bool
	timer   clock.Timer
	polling bool

	// commands is bumped when a command starts and when it ends; a poll that
	// sees it move is stale
	commands uint64
}

// ConnectHue connects to the bridge and checks that the light exists
func ConnectHue(ctx context.Context, cfg config.HueConfig, interval time.Duration, clk clock.Clock, logger *zap.Logger) (*HueLight, error) {
	bridge := huego.New(cfg.Host, cfg.User)

	light, err := bridge.GetLightContext(ctx, cfg.LightID)
	if err != nil {
		return nil, fmt.Errorf("get hue light %d: %w", cfg.LightID, err)
	}

	if clk == nil {
		clk = clock.NewRealClock()
	}

	logger.Info("Connected to Hue light",
		zap.String("bridge", cfg.Host),
		zap.Int("light_id", cfg.LightID),
		zap.String("name", light.Name))

	return &HueLight{
		bridge:   bridge,
		lightID:  cfg.LightID,
		name:     light.Name,
		interval: interval,
		clock:    clk,
		logger:   logger.With(zap.Int("light_id", cfg.LightID)),
		notify:   newNotifier(),
	}, nil
}

func (h *HueLight) Name() string {
	return h.name
}

func (h *HueLight) light(ctx context.Context) (*huego.Light, error) {
	light, err := h.bridge.GetLightContext(ctx, h.lightID)
	if err != nil {
		return nil, fmt.Errorf("get hue light %d: %w", h.lightID, err)
	}
	return light, nil
}

func (h *HueLight) State(ctx context.Context) (State, error) {
	light, err := h.light(ctx)
	if err != nil {
		return State{}, err
	}
	return stateFromHue(light.State), nil
}

func (h *HueLight) SetPower(ctx context.Context, on bool) error {
	h.commandIssued()
	defer h.commandIssued()
	light, err := h.light(ctx)
	if err != nil {
		return err
	}
	if on {
		err = light.OnContext(ctx)
	} else {
		err = light.OffContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("set hue power: %w", err)
	}
	return nil
}

// SetBrightness turns the light on at the given level; Hue rejects brightness
// changes while a light is off.
func (h *HueLight) SetBrightness(ctx context.Context, percent int) error {
	h.commandIssued()
	defer h.commandIssued()
	light, err := h.light(ctx)
	if err != nil {
		return err
	}
	percent = clampPercent(percent)
	if percent == 0 {
		return h.SetPower(ctx, false)
	}
	if err := light.BriContext(ctx, percentToBri(percent)); err != nil {
		return fmt.Errorf("set hue brightness: %w", err)
	}
	return nil
}

func (h *HueLight) SetColor(ctx context.Context, rgb int) error {
	h.commandIssued()
	defer h.commandIssued()
	light, err := h.light(ctx)
	if err != nil {
		return err
	}
	x, y := XY(rgb)
	if err := light.XyContext(ctx, []float32{x, y}); err != nil {
		return fmt.Errorf("set hue color: %w", err)
	}
	return nil
}

func (h *HueLight) commandIssued() {
	h.mu.Lock()
	h.commands++
	h.mu.Unlock()
}

// Watch starts polling on the first watcher
func (h *HueLight) Watch(handler ChangeHandler) (func(), error) {
	stop := h.notify.add(handler)

	h.mu.Lock()
	if !h.polling {
		h.polling = true
		h.timer = h.clock.AfterFunc(h.interval, h.poll)
	}
	h.mu.Unlock()

	return func() {
		stop()
		h.mu.Lock()
		h.polling = false
		if h.timer != nil {
			h.timer.Stop()
			h.timer = nil
		}
		h.mu.Unlock()
	}, nil
}

// poll reads the light and reports a change, then re-arms itself. A reading
// taken while a command was in flight is dropped.
func (h *HueLight) poll() {
	h.mu.Lock()
	commands := h.commands
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	state, err := h.State(ctx)
	cancel()

	h.mu.Lock()
	if !h.polling {
		h.mu.Unlock()
		return
	}
	changed := false
	switch {
	case err != nil:
		h.logger.Warn("Failed to poll hue light", zap.Error(err))
	case h.commands != commands:
		h.logger.Debug("Dropped hue poll overlapping a command")
	default:
		changed = !h.hasLast || state != h.last
		h.last = state
		h.hasLast = true
	}
	h.timer = h.clock.AfterFunc(h.interval, h.poll)
	h.mu.Unlock()

	if changed {
		h.notify.emit(state)
	}
}

func stateFromHue(s *huego.State) State {
	if s == nil || !s.On {
		return State{}
	}
	return State{On: true, Brightness: briToPercent(s.Bri)}
}

func percentToBri(percent int) uint8 {
	bri := math.Round(float64(percent) * hueMaxBri / 100)
	if bri < 1 {
		bri = 1
	}
	return uint8(bri)
}

func briToPercent(bri uint8) int {
	return clampPercent(int(math.Round(float64(bri) * 100 / hueMaxBri)))
}
