package shadowstate

import (
	"sort"
	"sync"
)

// SubscriptionRegistry records which helpers each plugin listens to. The
// shadow state of a plugin captures the values of exactly these helpers.
type SubscriptionRegistry struct {
	mu   sync.RWMutex
	keys map[string][]string
}

// NewSubscriptionRegistry creates an empty registry
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{keys: make(map[string][]string)}
}

// Add records that plugin listens to key. Duplicates are ignored.
func (r *SubscriptionRegistry) Add(plugin, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys[plugin] {
		if k == key {
			return
		}
	}
	r.keys[plugin] = append(r.keys[plugin], key)
}

// Keys returns the helpers plugin listens to, in registration order
func (r *SubscriptionRegistry) Keys(plugin string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.keys[plugin]...)
}

// Remove forgets every registration of plugin
func (r *SubscriptionRegistry) Remove(plugin string) {
	r.mu.Lock()
	delete(r.keys, plugin)
	r.mu.Unlock()
}

// Plugins returns the sorted names of plugins with at least one registration
func (r *SubscriptionRegistry) Plugins() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.keys))
	for name := range r.keys {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
