package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/Checker-Finance/execution-core/pkg/model"
)

// Adapter is the four-operation trading contract every platform integration
// must satisfy. Auth, balances and market data are adapter internals and do
// not cross this boundary.
type Adapter interface {
	PlaceOrder(ctx context.Context, req model.ExecutionRequest) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	IsReady() bool
}

// Config carries adapter construction parameters. Adapters pick out what
// they understand and ignore the rest.
type Config map[string]any

// Factory produces an adapter instance for a platform.
type Factory func(cfg Config) (Adapter, error)

// ErrPlatformNotRegistered is returned when no factory exists for a platform.
var ErrPlatformNotRegistered = fmt.Errorf("platform not registered")

// Registry maps platform identifiers to adapter factories and caches
// constructed instances by key. It holds no retry or network logic.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]Adapter
	defaults  map[string]Config
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Adapter),
		defaults:  make(map[string]Config),
	}
}

// Register installs a factory for the platform, replacing any previous one.
func (r *Registry) Register(platform string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[platform] = factory
}

// Get returns the factory for the platform, or false if none is registered.
func (r *Registry) Get(platform string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[platform]
	return f, ok
}

// SetDefaultConfig installs the construction config used when GetOrCreate is
// called without one, typically credentials resolved at startup.
func (r *Registry) SetDefaultConfig(platform string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[platform] = cfg
}

// GetOrCreate returns a cached adapter instance for the platform, creating it
// via the registered factory on first use. A nil cfg falls back to the
// platform's default config. The cache key defaults to "<platform>:default";
// pass an explicit key to hold multiple instances of the same platform
// (e.g. per account).
func (r *Registry) GetOrCreate(platform string, cfg Config, key ...string) (Adapter, error) {
	cacheKey := platform + ":default"
	if len(key) > 0 && key[0] != "" {
		cacheKey = key[0]
	}

	r.mu.RLock()
	if inst, ok := r.instances[cacheKey]; ok {
		r.mu.RUnlock()
		return inst, nil
	}
	factory, ok := r.factories[platform]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlatformNotRegistered, platform)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[cacheKey]; ok {
		return inst, nil
	}
	if cfg == nil {
		cfg = r.defaults[platform]
	}

	inst, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create adapter for %q: %w", platform, err)
	}
	r.instances[cacheKey] = inst
	return inst, nil
}

// IsRegistered reports whether a factory exists for the platform.
func (r *Registry) IsRegistered(platform string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[platform]
	return ok
}

// AvailablePlatforms returns the registered platform identifiers.
func (r *Registry) AvailablePlatforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	platforms := make([]string, 0, len(r.factories))
	for p := range r.factories {
		platforms = append(platforms, p)
	}
	return platforms
}

// RemoveInstance evicts one cached adapter instance.
func (r *Registry) RemoveInstance(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, key)
}

// ClearInstances evicts every cached adapter instance. Factories stay
// registered.
func (r *Registry) ClearInstances() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]Adapter)
}
