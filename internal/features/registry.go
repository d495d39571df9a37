// Package features resolves the optional capabilities of a session once, at
// startup, so call sites ask the registry instead of probing for components.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Names of the optional capabilities a session may wire.
const (
	OfflineQueue   = "offline-queue"
	AssetCache     = "asset-cache"
	BackgroundSync = "background-sync"
	LivenessProbe  = "liveness-probe"
)

var (
	// ErrResolved is returned when registering after Resolve.
	ErrResolved = errors.New("features already resolved")

	// ErrDuplicate is returned when a name is registered twice.
	ErrDuplicate = errors.New("feature already registered")
)

// Initializer prepares a capability. A nil Initializer marks a capability
// that is always available once registered.
type Initializer func(ctx context.Context) error

// Registry maps feature names to optional initializers.
type Registry struct {
	mu       sync.Mutex
	inits    map[string]Initializer
	enabled  map[string]bool
	failures map[string]error
	resolved bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inits:    map[string]Initializer{},
		enabled:  map[string]bool{},
		failures: map[string]error{},
	}
}

// Register adds a capability.
func (r *Registry) Register(name string, init Initializer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return fmt.Errorf("register %q: %w", name, ErrResolved)
	}
	if _, ok := r.inits[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrDuplicate)
	}
	r.inits[name] = init
	return nil
}

// Resolve runs every initializer once, in name order. A failing initializer
// disables its capability without stopping the others. Calling Resolve again
// is a no-op.
func (r *Registry) Resolve(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return
	}
	r.resolved = true

	names := make([]string, 0, len(r.inits))
	for name := range r.inits {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		init := r.inits[name]
		if init == nil {
			r.enabled[name] = true
			continue
		}
		if err := init(ctx); err != nil {
			slog.Warn("feature disabled", "feature", name, "error", err)
			r.failures[name] = err
			continue
		}
		r.enabled[name] = true
	}
	slog.Debug("features resolved", "enabled", len(r.enabled), "disabled", len(r.failures))
}

// Enabled reports whether name was registered and initialized successfully.
// Always false before Resolve.
func (r *Registry) Enabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled[name]
}

// Err returns the initializer error that disabled name, if any.
func (r *Registry) Err(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[name]
}

// Names returns the enabled capabilities, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.enabled))
	for name := range r.enabled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
