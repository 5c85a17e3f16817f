package state

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"wakeuplight/internal/ha"

	"go.uber.org/zap"
)

// StateChangeHandler is called when a state variable changes
type StateChangeHandler func(key string, oldValue, newValue interface{})

// Subscription represents an active state change subscription
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	key     string
	id      uint64
	manager *Manager
}

func (s *subscription) Unsubscribe() {
	s.manager.unsubscribe(s.key, s.id)
}

// Manager keeps a typed cache of the wake-up helper entities in sync with
// Home Assistant. Subscribers are notified synchronously, and only when a
// value actually changes.
type Manager struct {
	client      ha.HAClient
	logger      *zap.Logger
	readOnly    bool
	cache       map[string]interface{}
	cacheMu     sync.RWMutex
	variables   map[string]StateVariable
	entityToKey map[string]string
	subscribers map[string]map[uint64]StateChangeHandler
	nextSubID   uint64
	subsMu      sync.RWMutex
	haSubs      map[string]ha.Subscription
	haSubsMu    sync.Mutex
}

// NewManager creates a new state manager. In read-only mode writes only
// update the local cache and are logged instead of sent to HA.
func NewManager(client ha.HAClient, logger *zap.Logger, readOnly bool) *Manager {
	variables := VariablesByKey()
	entityToKey := make(map[string]string)

	for key, v := range variables {
		entityToKey[v.EntityID] = key
	}

	return &Manager{
		client:      client,
		logger:      logger.Named("state"),
		readOnly:    readOnly,
		cache:       make(map[string]interface{}),
		variables:   variables,
		entityToKey: entityToKey,
		subscribers: make(map[string]map[uint64]StateChangeHandler),
		haSubs:      make(map[string]ha.Subscription),
	}
}

// IsReadOnly reports whether writes are suppressed
func (m *Manager) IsReadOnly() bool {
	return m.readOnly
}

// SyncFromHA reads all state variables from Home Assistant and subscribes
// to their changes
func (m *Manager) SyncFromHA() error {
	m.logger.Info("Syncing state from Home Assistant...")

	states, err := m.client.GetAllStates()
	if err != nil {
		return fmt.Errorf("failed to get states: %w", err)
	}

	stateMap := make(map[string]*ha.State)
	for _, state := range states {
		stateMap[state.EntityID] = state
	}

	syncCount := 0
	for _, variable := range AllVariables {
		if err := m.subscribeToEntity(variable.EntityID, variable.Key); err != nil {
			m.logger.Warn("Failed to subscribe to entity",
				zap.String("entity_id", variable.EntityID),
				zap.Error(err))
		}

		state, ok := stateMap[variable.EntityID]
		if !ok {
			m.logger.Warn("Entity not found in HA, using default",
				zap.String("entity_id", variable.EntityID),
				zap.String("key", variable.Key))
			m.storeValue(variable.Key, variable.Default)
			continue
		}

		value, err := parseStateValue(state.State, variable.Type)
		if err != nil {
			m.logger.Error("Failed to parse state value",
				zap.String("entity_id", variable.EntityID),
				zap.String("key", variable.Key),
				zap.Error(err))
			m.storeValue(variable.Key, variable.Default)
			continue
		}

		m.storeValue(variable.Key, value)
		syncCount++
	}

	m.logger.Info("State sync complete",
		zap.Int("synced", syncCount),
		zap.Int("total", len(AllVariables)))

	return nil
}

func (m *Manager) storeValue(key string, value interface{}) {
	m.cacheMu.Lock()
	m.cache[key] = value
	m.cacheMu.Unlock()
}

// parseStateValue parses a state string into the appropriate type
func parseStateValue(stateStr string, varType StateType) (interface{}, error) {
	switch varType {
	case TypeBool:
		return stateStr == "on", nil
	case TypeNumber:
		return strconv.ParseFloat(stateStr, 64)
	case TypeString:
		return stateStr, nil
	default:
		return nil, fmt.Errorf("unknown type: %s", varType)
	}
}

// subscribeToEntity subscribes to state changes for an entity
func (m *Manager) subscribeToEntity(entityID, key string) error {
	m.haSubsMu.Lock()
	defer m.haSubsMu.Unlock()

	if _, ok := m.haSubs[entityID]; ok {
		return nil
	}

	sub, err := m.client.SubscribeStateChanges(entityID, func(entity string, oldState, newState *ha.State) {
		if newState == nil {
			return
		}

		variable, ok := m.variables[key]
		if !ok {
			return
		}

		newValue, err := parseStateValue(newState.State, variable.Type)
		if err != nil {
			m.logger.Error("Failed to parse state change",
				zap.String("entity_id", entityID),
				zap.String("key", key),
				zap.Error(err))
			return
		}

		m.cacheMu.Lock()
		oldValue, had := m.cache[key]
		m.cache[key] = newValue
		m.cacheMu.Unlock()

		if had && oldValue == newValue {
			return
		}

		m.logger.Debug("State changed",
			zap.String("key", key),
			zap.Any("old", oldValue),
			zap.Any("new", newValue))

		m.notifySubscribers(key, oldValue, newValue)
	})
	if err != nil {
		return err
	}

	m.haSubs[entityID] = sub
	return nil
}

// notifySubscribers calls every handler for key in turn. A panicking
// handler is logged and does not stop the others.
func (m *Manager) notifySubscribers(key string, oldValue, newValue interface{}) {
	m.subsMu.RLock()
	handlers := make([]StateChangeHandler, 0, len(m.subscribers[key]))
	for _, handler := range m.subscribers[key] {
		handlers = append(handlers, handler)
	}
	m.subsMu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("State change handler panicked",
						zap.String("key", key),
						zap.Any("panic", r))
				}
			}()
			handler(key, oldValue, newValue)
		}()
	}
}

func (m *Manager) lookup(key string, want StateType, kind string) (StateVariable, error) {
	variable, ok := m.variables[key]
	if !ok {
		return StateVariable{}, fmt.Errorf("variable %s not found", key)
	}
	if variable.Type != want {
		return StateVariable{}, fmt.Errorf("variable %s is not a %s", key, kind)
	}
	return variable, nil
}

func (m *Manager) cached(variable StateVariable) interface{} {
	m.cacheMu.RLock()
	value, ok := m.cache[variable.Key]
	m.cacheMu.RUnlock()
	if !ok {
		return variable.Default
	}
	return value
}

// write updates the cache, pushes the value to HA and notifies subscribers
// on change. The cache is rolled back if HA rejects the write.
func (m *Manager) write(variable StateVariable, value interface{}, push func(name string) error) error {
	m.cacheMu.Lock()
	oldValue, had := m.cache[variable.Key]
	m.cache[variable.Key] = value
	m.cacheMu.Unlock()
	if !had {
		oldValue = variable.Default
	}

	if m.readOnly {
		m.logger.Info("READ-ONLY: would update HA helper",
			zap.String("entity_id", variable.EntityID),
			zap.Any("value", value))
	} else if err := push(extractEntityName(variable.EntityID)); err != nil {
		m.cacheMu.Lock()
		if had {
			m.cache[variable.Key] = oldValue
		} else {
			delete(m.cache, variable.Key)
		}
		m.cacheMu.Unlock()
		return fmt.Errorf("failed to set HA value: %w", err)
	}

	if oldValue != value {
		m.notifySubscribers(variable.Key, oldValue, value)
	}
	return nil
}

// GetBool retrieves a boolean state variable
func (m *Manager) GetBool(key string) (bool, error) {
	variable, err := m.lookup(key, TypeBool, "boolean")
	if err != nil {
		return false, err
	}

	boolValue, ok := m.cached(variable).(bool)
	if !ok {
		return false, fmt.Errorf("cached value for %s is not a boolean", key)
	}
	return boolValue, nil
}

// SetBool sets a boolean state variable
func (m *Manager) SetBool(key string, value bool) error {
	variable, err := m.lookup(key, TypeBool, "boolean")
	if err != nil {
		return err
	}
	return m.write(variable, value, func(name string) error {
		return m.client.SetInputBoolean(name, value)
	})
}

// GetString retrieves a string state variable
func (m *Manager) GetString(key string) (string, error) {
	variable, err := m.lookup(key, TypeString, "string")
	if err != nil {
		return "", err
	}

	strValue, ok := m.cached(variable).(string)
	if !ok {
		return "", fmt.Errorf("cached value for %s is not a string", key)
	}
	return strValue, nil
}

// SetString sets a string state variable
func (m *Manager) SetString(key string, value string) error {
	variable, err := m.lookup(key, TypeString, "string")
	if err != nil {
		return err
	}
	return m.write(variable, value, func(name string) error {
		return m.client.SetInputText(name, value)
	})
}

// GetNumber retrieves a number state variable
func (m *Manager) GetNumber(key string) (float64, error) {
	variable, err := m.lookup(key, TypeNumber, "number")
	if err != nil {
		return 0, err
	}

	numValue, ok := m.cached(variable).(float64)
	if !ok {
		return 0, fmt.Errorf("cached value for %s is not a number", key)
	}
	return numValue, nil
}

// SetNumber sets a number state variable
func (m *Manager) SetNumber(key string, value float64) error {
	variable, err := m.lookup(key, TypeNumber, "number")
	if err != nil {
		return err
	}
	return m.write(variable, value, func(name string) error {
		return m.client.SetInputNumber(name, value)
	})
}

// CompareAndSwapBool atomically compares and swaps a boolean value
func (m *Manager) CompareAndSwapBool(key string, old, new bool) (bool, error) {
	variable, err := m.lookup(key, TypeBool, "boolean")
	if err != nil {
		return false, err
	}

	m.cacheMu.Lock()
	currentValue, ok := m.cache[key]
	if !ok {
		currentValue = variable.Default
	}
	currentBool, ok := currentValue.(bool)
	if !ok {
		m.cacheMu.Unlock()
		return false, fmt.Errorf("cached value for %s is not a boolean", key)
	}
	if currentBool != old {
		m.cacheMu.Unlock()
		return false, nil
	}
	m.cache[key] = new

	// Release lock before calling HA client to avoid deadlock
	m.cacheMu.Unlock()

	if m.readOnly {
		m.logger.Info("READ-ONLY: would update HA helper",
			zap.String("entity_id", variable.EntityID),
			zap.Bool("value", new))
	} else if err := m.client.SetInputBoolean(extractEntityName(variable.EntityID), new); err != nil {
		m.cacheMu.Lock()
		m.cache[key] = old
		m.cacheMu.Unlock()
		return false, fmt.Errorf("failed to set HA value: %w", err)
	}

	if old != new {
		m.notifySubscribers(key, old, new)
	}
	return true, nil
}

// Subscribe subscribes to state changes for a variable
func (m *Manager) Subscribe(key string, handler StateChangeHandler) (Subscription, error) {
	if _, ok := m.variables[key]; !ok {
		return nil, fmt.Errorf("variable %s not found", key)
	}

	m.subsMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	if m.subscribers[key] == nil {
		m.subscribers[key] = make(map[uint64]StateChangeHandler)
	}
	m.subscribers[key][id] = handler
	m.subsMu.Unlock()

	return &subscription{key: key, id: id, manager: m}, nil
}

func (m *Manager) unsubscribe(key string, id uint64) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	delete(m.subscribers[key], id)
	if len(m.subscribers[key]) == 0 {
		delete(m.subscribers, key)
	}
}

// GetAllValues returns all cached values, defaults included
func (m *Manager) GetAllValues() map[string]interface{} {
	values := make(map[string]interface{}, len(m.variables))
	for key, variable := range m.variables {
		values[key] = variable.Default
	}

	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	for k, v := range m.cache {
		values[k] = v
	}
	return values
}

// extractEntityName extracts the entity name from full entity ID
// e.g., "input_boolean.wakeup_light" -> "wakeup_light"
func extractEntityName(entityID string) string {
	if i := strings.LastIndexByte(entityID, '.'); i >= 0 {
		return entityID[i+1:]
	}
	return entityID
}
