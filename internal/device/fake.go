package device

import (
	"context"
	"sync"
)

// Call records a command sent to a Fake
type Call struct {
	Op    string
	Value int
}

// Fake is an in-memory Light for tests. Commands update its state without
// emitting notifications; SetExternal simulates another actor and notifies
// watchers synchronously.
type Fake struct {
	mu       sync.Mutex
	name     string
	state    State
	color    int
	calls    []Call
	failures map[string][]error
	readErr  error
	handlers map[int]ChangeHandler
	nextID   int
}

// NewFake creates a switched off Fake
func NewFake(name string) *Fake {
	return &Fake{
		name:     name,
		failures: make(map[string][]error),
		handlers: make(map[int]ChangeHandler),
	}
}

func (f *Fake) Name() string {
	return f.name
}

func (f *Fake) State(ctx context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return State{}, f.readErr
	}
	return f.state, nil
}

func (f *Fake) SetPower(ctx context.Context, on bool) error {
	value := 0
	if on {
		value = 1
	}
	return f.command("power", value, func() {
		f.state.On = on
		if on && f.state.Brightness == 0 {
			f.state.Brightness = 100
		}
		if !on {
			f.state.Brightness = 0
		}
	})
}

func (f *Fake) SetBrightness(ctx context.Context, percent int) error {
	percent = clampPercent(percent)
	return f.command("brightness", percent, func() {
		f.state.Brightness = percent
		f.state.On = percent > 0
	})
}

func (f *Fake) SetColor(ctx context.Context, rgb int) error {
	return f.command("color", rgb, func() {
		f.color = rgb
	})
}

func (f *Fake) command(op string, value int, apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: op, Value: value})
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		if errs[0] != nil {
			return errs[0]
		}
	}
	apply()
	return nil
}

func (f *Fake) Watch(handler ChangeHandler) (func(), error) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}, nil
}

// SetExternal changes the lamp state as another actor would and notifies
// watchers
func (f *Fake) SetExternal(state State) {
	f.mu.Lock()
	f.state = state
	handlers := make([]ChangeHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(state)
	}
}

// FailNext makes the next commands of op ("power", "brightness", "color")
// return the given errors in order
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// FailReads makes State return err until cleared with nil
func (f *Fake) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// Calls returns the recorded commands
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// ResetCalls clears the recorded commands
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Color returns the last color set
func (f *Fake) Color() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.color
}
