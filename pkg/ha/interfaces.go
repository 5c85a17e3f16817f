// Package ha is the public view of the Home Assistant connection handed to
// plugins. The connection lifecycle stays with the application; plugins get
// reads, service calls and entity subscriptions.
package ha

import (
	"time"
)

// State is an entity as reported by Home Assistant
type State struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// StateChangeHandler receives entity changes. oldState is nil for an entity
// seen for the first time.
type StateChangeHandler func(entityID string, oldState, newState *State)

// Subscription is an active entity subscription
type Subscription interface {
	Unsubscribe() error
}

// Client is what a plugin may do with the hub connection
type Client interface {
	IsConnected() bool
	GetState(entityID string) (*State, error)
	CallService(domain, service string, data map[string]interface{}) error
	SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error)
}
