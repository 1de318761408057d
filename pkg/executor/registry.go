package executor

import (
	"fmt"
	"sync"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/version"
	"go.uber.org/zap"
)

// CapabilityKey identifies a registered executor implementation.
type CapabilityKey struct {
	Platform string
	Type     string
	Version  version.Version
}

// String renders the key for diagnostics.
func (k CapabilityKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Platform, k.Type, k.Version)
}

// Registry maps (platform, executor type, version) to executor
// implementations. Like the version registry it is an explicit service:
// populated at process start, read-only during compilation and execution,
// replaced wholesale through the audited Reload.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[CapabilityKey]Executor
	logger       *zap.Logger
}

// NewRegistry creates an empty capability registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		capabilities: make(map[CapabilityKey]Executor),
		logger:       logger,
	}
}

// Register binds an executor implementation to a capability key.
func (r *Registry) Register(key CapabilityKey, impl Executor) error {
	if key.Platform == "" || key.Type == "" {
		return fmt.Errorf("capability key needs platform and type")
	}
	if impl == nil {
		return fmt.Errorf("executor implementation cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.capabilities[key]; exists {
		return fmt.Errorf("capability %s is already registered", key)
	}
	r.capabilities[key] = impl
	return nil
}

// Has reports whether a capability is registered. The compiler uses this to
// reject plans whose resolved executors have no implementation.
func (r *Registry) Has(key CapabilityKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.capabilities[key]
	return ok
}

// Lookup returns the executor bound to a capability key.
func (r *Registry) Lookup(key CapabilityKey) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.capabilities[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sdkerrors.ErrCapabilityNotRegistered, key)
	}
	return impl, nil
}

// Reload replaces the registered capabilities atomically and records the change.
func (r *Registry) Reload(capabilities map[CapabilityKey]Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities = make(map[CapabilityKey]Executor, len(capabilities))
	for key, impl := range capabilities {
		r.capabilities[key] = impl
	}
	r.logger.Info("Executor capability registry reloaded",
		zap.Int("capabilities", len(capabilities)))
}
