package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wakeuplight/internal/ha"
	"wakeuplight/internal/schedule"
	"wakeuplight/internal/shadowstate"
	"wakeuplight/internal/state"
	"wakeuplight/internal/wakeup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type toggleCall struct {
	on   bool
	mode wakeup.Mode
}

// fakeWakeUp records calls and returns canned results
type fakeWakeUp struct {
	status    wakeup.Status
	entries   []schedule.Entry
	toggleErr error
	powerErr  error
	toggles   []toggleCall
	powers    []bool
}

func (f *fakeWakeUp) Status() wakeup.Status { return f.status }

func (f *fakeWakeUp) Toggle(_ context.Context, on bool, mode wakeup.Mode) error {
	f.toggles = append(f.toggles, toggleCall{on: on, mode: mode})
	if f.toggleErr != nil {
		return f.toggleErr
	}
	if on {
		f.status.Phase = wakeup.PhaseRamping
		f.status.Mode = mode
	} else {
		f.status.Phase = wakeup.PhaseOff
	}
	return nil
}

func (f *fakeWakeUp) PowerDevice(_ context.Context, on bool) error {
	f.powers = append(f.powers, on)
	return f.powerErr
}

func (f *fakeWakeUp) ScheduleEntries() []schedule.Entry { return f.entries }

func newTestServer(t *testing.T, wakeUp *fakeWakeUp) (*Server, *state.Manager) {
	t.Helper()
	client := ha.NewMockClient()
	client.SetState("input_boolean.wakeup_light", "on", nil)
	client.SetState("input_number.wakeup_brightness", "75", nil)
	client.SetState("input_text.wakeup_phase", "ramping", nil)
	require.NoError(t, client.Connect())

	stateManager := state.NewManager(client, zap.NewNop(), false)
	require.NoError(t, stateManager.SyncFromHA())

	tracker := shadowstate.NewTracker()
	shadow := shadowstate.NewWakeUpShadowState(time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC))
	shadow.Outputs.LastActionType = "toggle"
	tracker.RegisterPlugin("wakeuplight", shadow)

	return NewServer(stateManager, wakeUp, tracker, zap.NewNop(), 8081), stateManager
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleGetState(t *testing.T) {
	server, _ := newTestServer(t, &fakeWakeUp{})

	w := serve(server, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response StateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	assert.True(t, response.Booleans[state.KeyWakeUpLight])
	assert.False(t, response.Booleans[state.KeyReset])
	assert.Equal(t, 75.0, response.Numbers[state.KeyWakeUpBrightness])
	assert.Equal(t, "ramping", response.Strings[state.KeyWakeUpPhase])
	assert.Len(t, response.Booleans, 2)
	assert.Len(t, response.Numbers, 3)
	assert.Len(t, response.Strings, 3)
}

func TestHandleGetState_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t, &fakeWakeUp{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/state"},
		{http.MethodGet, "/api/wakeup/power"},
		{http.MethodDelete, "/api/wakeup"},
		{http.MethodPost, "/api/schedule"},
		{http.MethodPut, "/api/shadow/wakeuplight"},
		{http.MethodPost, "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(server, tt.method, tt.path, "{}")
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestHandleGetWakeUp(t *testing.T) {
	wakeUp := &fakeWakeUp{status: wakeup.Status{
		Phase:            wakeup.PhaseHolding,
		TargetBrightness: 60,
		ProcessFinished:  "04.03.2024, 06:30:00",
	}}
	server, _ := newTestServer(t, wakeUp)

	w := serve(server, http.MethodGet, "/api/wakeup", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status wakeup.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, wakeup.PhaseHolding, status.Phase)
	assert.Equal(t, 60, status.TargetBrightness)
	assert.Equal(t, "04.03.2024, 06:30:00", status.ProcessFinished)
}

func TestHandleToggleWakeUp(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		toggleErr  error
		wantCode   int
		wantToggle *toggleCall
	}{
		{
			name:       "start manual",
			body:       `{"state": true}`,
			wantCode:   http.StatusOK,
			wantToggle: &toggleCall{on: true, mode: wakeup.ModeManual},
		},
		{
			name:       "start schedule",
			body:       `{"state": true, "mode": "schedule"}`,
			wantCode:   http.StatusOK,
			wantToggle: &toggleCall{on: true, mode: wakeup.ModeSchedule},
		},
		{
			name:       "stop",
			body:       `{"state": false}`,
			wantCode:   http.StatusOK,
			wantToggle: &toggleCall{on: false, mode: wakeup.ModeManual},
		},
		{
			name:     "missing state",
			body:     `{"mode": "manual"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown mode",
			body:     `{"state": true, "mode": "sometimes"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			body:     `{"state": tru`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown field",
			body:     `{"state": true, "brightness": 50}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:       "already active",
			body:       `{"state": true}`,
			toggleErr:  wakeup.ErrAlreadyActive,
			wantCode:   http.StatusConflict,
			wantToggle: &toggleCall{on: true, mode: wakeup.ModeManual},
		},
		{
			name:       "lamp already on",
			body:       `{"state": true}`,
			toggleErr:  wakeup.ErrLampAlreadyOn,
			wantCode:   http.StatusConflict,
			wantToggle: &toggleCall{on: true, mode: wakeup.ModeManual},
		},
		{
			name:       "ramp not possible",
			body:       `{"state": true}`,
			toggleErr:  wakeup.ErrRampNotPossible,
			wantCode:   http.StatusUnprocessableEntity,
			wantToggle: &toggleCall{on: true, mode: wakeup.ModeManual},
		},
		{
			name:       "device failure",
			body:       `{"state": true}`,
			toggleErr:  errors.New("bridge unreachable"),
			wantCode:   http.StatusBadGateway,
			wantToggle: &toggleCall{on: true, mode: wakeup.ModeManual},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wakeUp := &fakeWakeUp{toggleErr: tt.toggleErr}
			server, _ := newTestServer(t, wakeUp)

			w := serve(server, http.MethodPost, "/api/wakeup", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			if tt.wantToggle == nil {
				assert.Empty(t, wakeUp.toggles)
			} else {
				require.Len(t, wakeUp.toggles, 1)
				assert.Equal(t, *tt.wantToggle, wakeUp.toggles[0])
			}

			if tt.wantCode != http.StatusOK {
				var response ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.NotEmpty(t, response.Error)
			}
		})
	}
}

func TestHandleToggleWakeUp_ReturnsNewStatus(t *testing.T) {
	server, _ := newTestServer(t, &fakeWakeUp{})

	w := serve(server, http.MethodPost, "/api/wakeup", `{"state": true, "mode": "schedule"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var status wakeup.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, wakeup.PhaseRamping, status.Phase)
	assert.Equal(t, wakeup.ModeSchedule, status.Mode)
}

func TestHandlePowerDevice(t *testing.T) {
	wakeUp := &fakeWakeUp{}
	server, _ := newTestServer(t, wakeUp)

	w := serve(server, http.MethodPost, "/api/wakeup/power", `{"state": false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []bool{false}, wakeUp.powers)

	w = serve(server, http.MethodPost, "/api/wakeup/power", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, wakeUp.powers, 1)

	wakeUp.powerErr = errors.New("bridge unreachable")
	w = serve(server, http.MethodPost, "/api/wakeup/power", `{"state": true}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleGetSchedule(t *testing.T) {
	next := time.Date(2024, 3, 5, 6, 30, 0, 0, time.UTC)
	wakeUp := &fakeWakeUp{entries: []schedule.Entry{
		{Name: "weekday", Start: "06:30", Next: next},
	}}
	server, _ := newTestServer(t, wakeUp)

	w := serve(server, http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []schedule.Entry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, schedule.Name("weekday"), entries[0].Name)
	assert.True(t, next.Equal(entries[0].Next))
}

func TestHandleGetShadow(t *testing.T) {
	server, _ := newTestServer(t, &fakeWakeUp{})

	w := serve(server, http.MethodGet, "/api/shadow", "")
	require.Equal(t, http.StatusOK, w.Code)

	var states map[string]shadowstate.WakeUpShadowState
	require.NoError(t, json.NewDecoder(w.Body).Decode(&states))
	require.Contains(t, states, "wakeuplight")
	assert.Equal(t, "toggle", states["wakeuplight"].Outputs.LastActionType)

	w = serve(server, http.MethodGet, "/api/shadow/wakeuplight", "")
	require.Equal(t, http.StatusOK, w.Code)
	var single shadowstate.WakeUpShadowState
	require.NoError(t, json.NewDecoder(w.Body).Decode(&single))
	assert.Equal(t, "toggle", single.Outputs.LastActionType)

	w = serve(server, http.MethodGet, "/api/shadow/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t, &fakeWakeUp{})

	w := serve(server, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ok", response["status"])
}

func TestHandleSitemap(t *testing.T) {
	server, _ := newTestServer(t, &fakeWakeUp{})

	t.Run("plain text", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		body := w.Body.String()
		for _, ep := range endpoints {
			assert.Contains(t, body, ep.Path)
		}
	})

	t.Run("html", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "<title>Wake-up Light API</title>")
		assert.Contains(t, w.Body.String(), "/api/wakeup/power")
	})
}

func TestUnknownPath(t *testing.T) {
	server, _ := newTestServer(t, &fakeWakeUp{})

	w := serve(server, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(wakeup.ErrAlreadyActive))
	assert.Equal(t, http.StatusConflict, statusFor(errors.Join(errors.New("start"), wakeup.ErrLampAlreadyOn)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(wakeup.ErrInvalidSettings))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusBadGateway, statusFor(errors.New("boom")))
}
