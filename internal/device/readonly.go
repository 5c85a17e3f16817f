package device

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// readOnlyLight logs commands instead of sending them and answers State
// from a simulated lamp, so a sequence runs to its end without touching the
// real one.
type readOnlyLight struct {
	Light
	logger *zap.Logger
	notify *notifier

	mu sync.Mutex
	// simulated is false until the first command; until then State reads
	// the real lamp
	simulated bool
	state     State
}

// ReadOnly wraps light so that commands are logged instead of sent. Once a
// command was issued, State reports the commanded lamp state and watchers
// are told about it. A change reported by the real lamp replaces the
// simulated state.
func ReadOnly(light Light, logger *zap.Logger) Light {
	return &readOnlyLight{
		Light:  light,
		logger: logger.With(zap.String("light", light.Name())),
		notify: newNotifier(),
	}
}

func (l *readOnlyLight) State(ctx context.Context) (State, error) {
	l.mu.Lock()
	if l.simulated {
		state := l.state
		l.mu.Unlock()
		return state, nil
	}
	l.mu.Unlock()
	return l.Light.State(ctx)
}

func (l *readOnlyLight) SetPower(ctx context.Context, on bool) error {
	l.logger.Info("READ-ONLY: would set lamp power", zap.Bool("on", on))
	l.apply(ctx, func(s *State) {
		s.On = on
		switch {
		case !on:
			s.Brightness = 0
		case s.Brightness == 0:
			s.Brightness = 100
		}
	})
	return nil
}

func (l *readOnlyLight) SetBrightness(ctx context.Context, percent int) error {
	l.logger.Info("READ-ONLY: would set lamp brightness", zap.Int("percent", percent))
	percent = clampPercent(percent)
	l.apply(ctx, func(s *State) {
		s.Brightness = percent
		s.On = percent > 0
	})
	return nil
}

func (l *readOnlyLight) SetColor(ctx context.Context, rgb int) error {
	l.logger.Info("READ-ONLY: would set lamp color", zap.String("color", HexColor(rgb)))
	return nil
}

// Watch reports simulated changes as well as changes of the real lamp
func (l *readOnlyLight) Watch(handler ChangeHandler) (func(), error) {
	stopReal, err := l.Light.Watch(func(state State) {
		l.mu.Lock()
		l.simulated = false
		l.state = State{}
		l.mu.Unlock()
		l.notify.emit(state)
	})
	if err != nil {
		return nil, err
	}
	stopSimulated := l.notify.add(handler)
	return func() {
		stopSimulated()
		stopReal()
	}, nil
}

// apply changes the simulated state, starting from the real lamp on the
// first command
func (l *readOnlyLight) apply(ctx context.Context, change func(*State)) {
	l.mu.Lock()
	simulated := l.simulated
	l.mu.Unlock()

	var base State
	if !simulated {
		if actual, err := l.Light.State(ctx); err == nil {
			base = actual
		} else {
			l.logger.Debug("READ-ONLY: real lamp state unavailable, simulating from off", zap.Error(err))
		}
	}

	l.mu.Lock()
	if !l.simulated {
		l.state = base
		l.simulated = true
	}
	change(&l.state)
	state := l.state
	l.mu.Unlock()

	l.notify.emit(state)
}
