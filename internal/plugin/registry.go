package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/config"
)

// Registry errors returned by Reload.
var (
	ErrNotEnabled    = errors.New("plugin not enabled")
	ErrNotReloadable = errors.New("plugin cannot reload")
)

// entry is one registered plugin and its lifecycle state. started is only
// touched under Registry.lifecycle.
type entry struct {
	name    string
	plugin  Plugin
	enabled bool
	started bool
}

// Registry owns the plugins of one process. Plugins are initialized and
// started in registration order and stopped in reverse.
//
// Start and Stop run without mu held so a starting plugin may call back into
// the registry (Reload, Enabled).
type Registry struct {
	mu        sync.RWMutex
	lifecycle sync.Mutex
	entries   []*entry
	logger    *zap.Logger
}

// NewRegistry returns an empty registry. A nil logger discards output.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

func (r *Registry) find(name string) *entry {
	for _, e := range r.entries {
		if e.name == name {
			return e
		}
	}
	return nil
}

// Register appends p. Names must be unique and non-empty since they become
// route prefixes.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	switch {
	case info.Name == "":
		return errors.New("plugin has empty name")
	case r.find(info.Name) != nil:
		return fmt.Errorf("plugin %q already registered", info.Name)
	}
	r.entries = append(r.entries, &entry{name: info.Name, plugin: p})
	r.logger.Debug("plugin registered", zap.String("name", info.Name), zap.String("version", info.Version))
	return nil
}

// InitAll initializes every plugin whose plugins.{name}.enabled is true,
// handing it its own config section and a logger named after it.
func (r *Registry) InitAll(ctx context.Context, cfg config.Config, deps Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if deps.Logger == nil {
		deps.Logger = r.logger
	}
	for _, e := range r.entries {
		section := "plugins." + e.name
		if !cfg.GetBool(section + ".enabled") {
			r.logger.Info("plugin disabled", zap.String("name", e.name))
			continue
		}
		pd := deps
		pd.Config = cfg.Sub(section)
		pd.Logger = deps.Logger.Named(e.name)
		if err := e.plugin.Init(ctx, pd); err != nil {
			return fmt.Errorf("init plugin %q: %w", e.name, err)
		}
		e.enabled = true
		r.logger.Info("plugin initialized", zap.String("name", e.name))
	}
	return nil
}

// StartAll starts enabled plugins. When one fails, those already started are
// stopped again before the error is returned.
func (r *Registry) StartAll(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	for _, e := range r.snapshot() {
		if !e.enabled || e.started {
			continue
		}
		if err := e.plugin.Start(ctx); err != nil {
			r.stopLocked()
			return fmt.Errorf("start plugin %q: %w", e.name, err)
		}
		e.started = true
	}
	return nil
}

// StopAll stops started plugins in reverse order. Stop errors are logged.
func (r *Registry) StopAll() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.stopLocked()
}

func (r *Registry) stopLocked() {
	entries := r.snapshot()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.started {
			continue
		}
		if err := e.plugin.Stop(); err != nil {
			r.logger.Error("stop plugin", zap.String("name", e.name), zap.Error(err))
		}
		e.started = false
	}
}

// snapshot copies the entry list so lifecycle calls can run unlocked.
func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*entry(nil), r.entries...)
}

// Enabled reports whether the named plugin was initialized.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.find(name)
	return e != nil && e.enabled
}

// Reload asks the named plugin to refresh its data.
func (r *Registry) Reload(ctx context.Context, name string) error {
	r.mu.RLock()
	e := r.find(name)
	r.mu.RUnlock()

	if e == nil || !e.enabled {
		return fmt.Errorf("%w: %s", ErrNotEnabled, name)
	}
	rl, ok := e.plugin.(Reloadable)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotReloadable, name)
	}
	return rl.Reload(ctx)
}

// All returns the enabled plugins in registration order.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(r.entries))
	for _, e := range r.entries {
		if e.enabled {
			out = append(out, e.plugin)
		}
	}
	return out
}

// AllRoutes returns the routes of enabled plugins keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]Route {
	routes := make(map[string][]Route)
	for _, p := range r.All() {
		if pr := p.Routes(); len(pr) > 0 {
			routes[p.Info().Name] = pr
		}
	}
	return routes
}

// Health collects the status of enabled plugins that implement
// HealthChecker.
func (r *Registry) Health(ctx context.Context) map[string]HealthStatus {
	out := make(map[string]HealthStatus)
	for _, p := range r.All() {
		if hc, ok := p.(HealthChecker); ok {
			out[p.Info().Name] = hc.Health(ctx)
		}
	}
	return out
}
