package version

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the registered versions of every known component (subgraph
// templates and executor adapters alike). It is an explicitly constructed
// service: loaded once at startup, read-only for the duration of any single
// resolution, and replaced wholesale through the audited Reload operation.
type Registry struct {
	mu         sync.RWMutex
	components map[string][]Version
	generation int
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		components: make(map[string][]Version),
		logger:     logger,
	}
}

// Register adds a version for a component. Registering the same version twice
// is an error; registry contents must stay unambiguous for resolution to be
// deterministic.
func (r *Registry) Register(name string, v Version) error {
	if name == "" {
		return fmt.Errorf("component name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.components[name] {
		if existing.Compare(v) == 0 {
			return fmt.Errorf("component '%s' version %s is already registered", name, v)
		}
	}
	versions := append(r.components[name], v)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Compare(versions[j]) < 0 })
	r.components[name] = versions

	return nil
}

// MustRegister registers a version string and panics on failure.
// Intended for process-start loading and tests.
func (r *Registry) MustRegister(name, v string) {
	if err := r.Register(name, MustParse(v)); err != nil {
		panic(err)
	}
}

// Versions returns the registered versions of a component in ascending order.
// The returned slice is a copy.
func (r *Registry) Versions(name string) []Version {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.components[name]
	if len(versions) == 0 {
		return nil
	}
	out := make([]Version, len(versions))
	copy(out, versions)
	return out
}

// Generation returns the current reload generation, starting at 0.
func (r *Registry) Generation() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Reload replaces the registry contents atomically and records the change.
// Executions that already resolved their versions are unaffected: resolved
// pairs are snapshotted into the execution record and never re-resolved.
func (r *Registry) Reload(snapshot map[string][]string) error {
	parsed := make(map[string][]Version, len(snapshot))
	for name, raw := range snapshot {
		versions := make([]Version, 0, len(raw))
		seen := make(map[Version]bool, len(raw))
		for _, s := range raw {
			v, err := Parse(s)
			if err != nil {
				return fmt.Errorf("reload rejected: component '%s': %w", name, err)
			}
			if seen[v] {
				return fmt.Errorf("reload rejected: component '%s' lists version %s twice", name, v)
			}
			seen[v] = true
			versions = append(versions, v)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i].Compare(versions[j]) < 0 })
		parsed[name] = versions
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = parsed
	r.generation++
	r.logger.Info("Version registry reloaded",
		zap.Int("generation", r.generation),
		zap.Int("components", len(parsed)))

	return nil
}
