// Package state is the public view of the helper entities handed to
// plugins. Syncing with Home Assistant stays with the application.
package state

// StateChangeHandler receives the old and new value of a helper
type StateChangeHandler func(key string, oldValue, newValue interface{})

// Subscription is an active helper subscription
type Subscription interface {
	Unsubscribe()
}

// Manager reads, writes and watches helpers by key
type Manager interface {
	GetBool(key string) (bool, error)
	SetBool(key string, value bool) error
	CompareAndSwapBool(key string, old, new bool) (bool, error)

	GetString(key string) (string, error)
	SetString(key string, value string) error

	GetNumber(key string) (float64, error)
	SetNumber(key string, value float64) error

	// IsReadOnly reports whether writes only update the local cache
	IsReadOnly() bool

	Subscribe(key string, handler StateChangeHandler) (Subscription, error)
	GetAllValues() map[string]interface{}
}
