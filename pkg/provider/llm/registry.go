package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("llm: provider not registered")

// Settings is the common configuration block handed to provider factories.
type Settings struct {
	// APIKey is the provider credential.
	APIKey string

	// Model selects a specific model within the provider
	// (e.g., "gemini-2.0-flash", "gpt-4o-mini").
	Model string

	// BaseURL overrides the provider's default API endpoint. Optional.
	BaseURL string

	// Timeout is the per-request timeout applied by the adapter's HTTP
	// transport. Zero means the adapter default.
	Timeout time.Duration
}

// Factory constructs a concrete Gateway from settings.
type Factory func(ctx context.Context, s Settings) (Gateway, error)

// Registry maps provider names to Gateway factories, so the process can
// select the adapter by configuration without the orchestrator ever knowing
// a concrete type. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Subsequent calls with the same name
// overwrite the previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create builds the Gateway registered under name.
func (r *Registry) Create(ctx context.Context, name string, s Settings) (Gateway, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrProviderNotRegistered, name, r.Names())
	}
	return f(ctx, s)
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
