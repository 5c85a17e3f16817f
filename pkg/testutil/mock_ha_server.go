// Package testutil provides a mock Home Assistant websocket hub and a test
// environment that runs the wake-up light against it.
package testutil

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"wakeuplight/internal/state"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultLightEntity is the lamp entity created by InitializeStates
const DefaultLightEntity = "light.bedroom"

// EntityState is an entity as the mock hub reports it
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// request covers every client message the hub understands
type request struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	AccessToken string                 `json:"access_token"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data"`
}

type response struct {
	ID      int          `json:"id,omitempty"`
	Type    string       `json:"type"`
	Success *bool        `json:"success,omitempty"`
	Result  interface{}  `json:"result"`
	Error   *resultError `json:"error,omitempty"`
	Event   *event       `json:"event,omitempty"`
}

type resultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type event struct {
	EventType string           `json:"event_type"`
	Data      stateChangedData `json:"data"`
	Origin    string           `json:"origin"`
	TimeFired time.Time        `json:"time_fired"`
}

type stateChangedData struct {
	EntityID string       `json:"entity_id"`
	NewState *EntityState `json:"new_state"`
	OldState *EntityState `json:"old_state"`
}

// peer is one authenticated client connection. Writes are serialized
// because events and results are sent from different goroutines.
type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) send(msg response) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(msg)
}

func (p *peer) result(id int, result interface{}) error {
	ok := true
	return p.send(response{ID: id, Type: "result", Success: &ok, Result: result})
}

func (p *peer) failure(id int, code, message string) error {
	ok := false
	return p.send(response{ID: id, Type: "result", Success: &ok, Error: &resultError{Code: code, Message: message}})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MockHAServer is an in-process Home Assistant websocket hub. It keeps
// entity states, applies helper and light service calls the way Home
// Assistant does and broadcasts state_changed events to every client.
type MockHAServer struct {
	addr   string
	token  string
	logger *zap.Logger
	server *http.Server

	statesMu sync.RWMutex
	states   map[string]*EntityState

	peersMu sync.Mutex
	peers   map[*peer]struct{}

	callsMu sync.Mutex
	calls   []ServiceCall
	failing map[string]int
}

// NewMockHAServer creates a hub that accepts token on addr
func NewMockHAServer(addr, token string) *MockHAServer {
	return &MockHAServer{
		addr:    addr,
		token:   token,
		logger:  zap.NewNop(),
		states:  make(map[string]*EntityState),
		peers:   make(map[*peer]struct{}),
		failing: make(map[string]int),
	}
}

// SetLogger replaces the server's no-op logger
func (s *MockHAServer) SetLogger(logger *zap.Logger) {
	s.logger = logger.Named("mock_ha")
}

// FailServiceCalls makes the next count calls to domain.service fail
func (s *MockHAServer) FailServiceCalls(domain, service string, count int) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.failing[domain+"."+service] = count
}

// Start listens on the configured address. The listener is bound when
// Start returns.
func (s *MockHAServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/websocket", s.serveWebSocket)
	s.server = &http.Server{Handler: router}

	go func() {
		if err := s.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Mock HA server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop drops every client and closes the listener
func (s *MockHAServer) Stop() error {
	s.peersMu.Lock()
	for p := range s.peers {
		p.conn.Close()
	}
	s.peers = make(map[*peer]struct{})
	s.peersMu.Unlock()

	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// SetState stores an entity and broadcasts the change
func (s *MockHAServer) SetState(entityID, value string, attributes map[string]interface{}) {
	now := time.Now()
	next := &EntityState{
		EntityID:    entityID,
		State:       value,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}

	s.statesMu.Lock()
	prev := s.states[entityID]
	s.states[entityID] = next
	s.statesMu.Unlock()

	s.broadcast(response{
		Type: "event",
		Event: &event{
			EventType: "state_changed",
			Data:      stateChangedData{EntityID: entityID, NewState: next, OldState: prev},
			Origin:    "LOCAL",
			TimeFired: now,
		},
	})
}

// GetState returns the stored entity, or nil
func (s *MockHAServer) GetState(entityID string) *EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

// InitializeStates creates every helper entity with its default value and
// a switched-off lamp
func (s *MockHAServer) InitializeStates() {
	for _, variable := range state.AllVariables {
		var value string
		switch v := variable.Default.(type) {
		case bool:
			value = onOff(v)
		case float64:
			value = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			value = v
		}
		s.SetState(variable.EntityID, value, map[string]interface{}{"friendly_name": variable.Key})
	}

	s.SetState(DefaultLightEntity, "off", map[string]interface{}{
		"friendly_name":         "Bedroom",
		"supported_color_modes": []string{"rgb"},
	})
}

func (s *MockHAServer) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	p := &peer{conn: conn}
	if !s.authenticate(p) {
		return
	}

	s.peersMu.Lock()
	s.peers[p] = struct{}{}
	s.peersMu.Unlock()
	defer func() {
		s.peersMu.Lock()
		delete(s.peers, p)
		s.peersMu.Unlock()
	}()

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			s.logger.Debug("Client disconnected", zap.Error(err))
			return
		}

		switch req.Type {
		case "subscribe_events":
			err = p.result(req.ID, nil)
		case "get_states":
			err = p.result(req.ID, s.snapshot())
		case "call_service":
			err = s.callService(p, req)
		default:
			err = p.failure(req.ID, "unknown_command", "unknown command "+req.Type)
		}
		if err != nil {
			s.logger.Debug("Failed to answer client", zap.String("type", req.Type), zap.Error(err))
			return
		}
	}
}

func (s *MockHAServer) authenticate(p *peer) bool {
	if err := p.send(response{Type: "auth_required"}); err != nil {
		return false
	}

	var req request
	if err := p.conn.ReadJSON(&req); err != nil {
		s.logger.Warn("Failed to read auth", zap.Error(err))
		return false
	}
	if req.Type != "auth" || req.AccessToken != s.token {
		p.send(response{Type: "auth_invalid"})
		return false
	}
	return p.send(response{Type: "auth_ok"}) == nil
}

func (s *MockHAServer) snapshot() []*EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	states := make([]*EntityState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	return states
}

func (s *MockHAServer) callService(p *peer, req request) error {
	key := req.Domain + "." + req.Service

	s.callsMu.Lock()
	s.calls = append(s.calls, ServiceCall{
		Timestamp:   time.Now(),
		Domain:      req.Domain,
		Service:     req.Service,
		ServiceData: req.ServiceData,
	})
	fail := s.failing[key] > 0
	if fail {
		s.failing[key]--
	}
	s.callsMu.Unlock()

	if fail {
		return p.failure(req.ID, "service_failed", key+" failed")
	}

	entityID, _ := req.ServiceData["entity_id"].(string)
	if prev := s.GetState(entityID); prev != nil {
		if value, attrs, changed := applyService(req.Domain, req.Service, req.ServiceData, prev); changed {
			s.SetState(entityID, value, attrs)
		}
	}
	return p.result(req.ID, nil)
}

// applyService computes the entity state after a service call. Unknown
// domains leave the entity untouched but are still acknowledged.
func applyService(domain, service string, data map[string]interface{}, prev *EntityState) (string, map[string]interface{}, bool) {
	switch domain {
	case "input_boolean":
		return onOff(service == "turn_on"), prev.Attributes, true
	case "input_number":
		if value, ok := data["value"].(float64); ok {
			return strconv.FormatFloat(value, 'f', -1, 64), prev.Attributes, true
		}
	case "input_text":
		if value, ok := data["value"].(string); ok {
			return value, prev.Attributes, true
		}
	case "light":
		value := lightState(service, prev.State)
		return value, lightAttributes(value, prev.Attributes, data), true
	}
	return "", nil, false
}

func lightState(service, prev string) string {
	switch service {
	case "turn_on":
		return "on"
	case "turn_off":
		return "off"
	case "toggle":
		return onOff(prev != "on")
	}
	return prev
}

// lightAttributes applies brightness_pct and rgb_color the way Home
// Assistant reports them: brightness on a 0..255 scale, absent while off
func lightAttributes(value string, prev, data map[string]interface{}) map[string]interface{} {
	attrs := make(map[string]interface{}, len(prev)+2)
	for k, v := range prev {
		attrs[k] = v
	}
	if value == "off" {
		delete(attrs, "brightness")
		return attrs
	}
	if pct, ok := data["brightness_pct"].(float64); ok {
		attrs["brightness"] = math.Round(pct * 255 / 100)
	} else if _, ok := attrs["brightness"]; !ok {
		attrs["brightness"] = 255.0
	}
	if rgb, ok := data["rgb_color"]; ok {
		attrs["rgb_color"] = rgb
	}
	return attrs
}

func (s *MockHAServer) broadcast(msg response) {
	s.peersMu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.peersMu.Unlock()

	for _, p := range peers {
		if err := p.send(msg); err != nil {
			s.logger.Debug("Failed to send event", zap.Error(err))
		}
	}
}

// GetServiceCalls returns all service calls since the last clear
func (s *MockHAServer) GetServiceCalls() []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	return append([]ServiceCall(nil), s.calls...)
}

// ClearServiceCalls resets the service call log
func (s *MockHAServer) ClearServiceCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.calls = nil
}

// FindServiceCall returns the latest call to domain.service for entityID,
// or for any entity when entityID is empty
func (s *MockHAServer) FindServiceCall(domain, service string, entityID string) *ServiceCall {
	calls := FilterServiceCalls(s.GetServiceCalls(), domain, service)
	for i := len(calls) - 1; i >= 0; i-- {
		if entityID == "" || calls[i].EntityID() == entityID {
			return &calls[i]
		}
	}
	return nil
}

// CountServiceCalls counts the calls to domain.service
func (s *MockHAServer) CountServiceCalls(domain, service string) int {
	return len(FilterServiceCalls(s.GetServiceCalls(), domain, service))
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
