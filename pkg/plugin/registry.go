package plugin

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registration priorities. A registration only replaces an existing one of
// the same name when its priority is at least as high.
const (
	PriorityDefault  = 0
	PriorityOverride = 100
)

// DefaultOrder is the startup order of a plugin that does not set one
const DefaultOrder = 50

// PluginInfo describes a registered plugin
type PluginInfo struct {
	Name        string
	Description string
	Priority    int
	Factory     Factory

	// Order sorts plugins for creation and startup, lower first. Stopping
	// runs in reverse.
	Order int
}

// Registry holds plugin registrations. Packages register from init(), and
// a build that links a private package registering the same name with
// PriorityOverride replaces the public plugin.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]PluginInfo
	logger  *zap.Logger
}

// NewRegistry creates an empty registry that logs nothing until SetLogger
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]PluginInfo),
		logger:  zap.NewNop(),
	}
}

// SetLogger replaces the registry logger
func (r *Registry) SetLogger(logger *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger.Named("plugin")
}

// Register adds info, or replaces a registration of the same name with a
// priority no higher than info's
func (r *Registry) Register(info PluginInfo) error {
	if info.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if info.Factory == nil {
		return fmt.Errorf("plugin %s: factory cannot be nil", info.Name)
	}
	if info.Order == 0 {
		info.Order = DefaultOrder
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.plugins[info.Name]; ok {
		if info.Priority < existing.Priority {
			r.logger.Info("Plugin registration skipped",
				zap.String("plugin", info.Name),
				zap.Int("priority", info.Priority),
				zap.Int("existing_priority", existing.Priority))
			return nil
		}
		r.logger.Info("Plugin being overridden",
			zap.String("plugin", info.Name),
			zap.Int("from_priority", existing.Priority),
			zap.Int("to_priority", info.Priority))
	}

	r.plugins[info.Name] = info
	r.logger.Debug("Plugin registered",
		zap.String("plugin", info.Name),
		zap.Int("priority", info.Priority),
		zap.Int("order", info.Order),
		zap.String("description", info.Description))
	return nil
}

// Get returns the registration for name, or nil
func (r *Registry) Get(name string) *PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.plugins[name]
	if !ok {
		return nil
	}
	return &info
}

// List returns the registrations sorted by Order, then by name
func (r *Registry) List() []PluginInfo {
	r.mu.RLock()
	result := make([]PluginInfo, 0, len(r.plugins))
	for _, info := range r.plugins {
		result = append(result, info)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// CreateAll runs every factory in List order. When one fails, the plugins
// created so far are stopped and nothing is returned.
func (r *Registry) CreateAll(ctx *Context) ([]Plugin, error) {
	infos := r.List()
	created := make([]Plugin, 0, len(infos))

	for _, info := range infos {
		p, err := info.Factory(ctx)
		if err != nil {
			StopAll(created)
			return nil, fmt.Errorf("failed to create plugin %s: %w", info.Name, err)
		}
		created = append(created, p)
	}
	return created, nil
}

// StartAll starts plugins in order. When one fails, the ones already
// started are stopped again.
func (r *Registry) StartAll(plugins []Plugin) error {
	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()

	for i, p := range plugins {
		if err := p.Start(); err != nil {
			StopAll(plugins[:i])
			return fmt.Errorf("failed to start plugin %s: %w", p.Name(), err)
		}
		logger.Info("Plugin started", zap.String("plugin", p.Name()))
	}
	return nil
}

// StopAll stops plugins in reverse order
func StopAll(plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		plugins[i].Stop()
	}
}

// ResetAll resets every Resettable plugin and keeps going after a failure
func ResetAll(plugins []Plugin) error {
	var errs error
	for _, p := range plugins {
		if r, ok := p.(Resettable); ok {
			if err := r.Reset(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reset %s: %w", p.Name(), err))
			}
		}
	}
	return errs
}

// Clear removes every registration
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]PluginInfo)
}

var globalRegistry = NewRegistry()

// SetLogger sets the logger of the global registry
func SetLogger(logger *zap.Logger) {
	globalRegistry.SetLogger(logger)
}

// Register adds a plugin to the global registry. Plugin packages call it
// from init().
func Register(info PluginInfo) error {
	return globalRegistry.Register(info)
}

// Get returns a registration from the global registry
func Get(name string) *PluginInfo {
	return globalRegistry.Get(name)
}

// List returns the global registrations in startup order
func List() []PluginInfo {
	return globalRegistry.List()
}

// CreateAll creates every plugin of the global registry
func CreateAll(ctx *Context) ([]Plugin, error) {
	return globalRegistry.CreateAll(ctx)
}

// StartAll starts plugins, logging through the global registry
func StartAll(plugins []Plugin) error {
	return globalRegistry.StartAll(plugins)
}

// ClearGlobal removes every registration from the global registry
func ClearGlobal() {
	globalRegistry.Clear()
}
