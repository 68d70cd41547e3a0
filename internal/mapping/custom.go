package mapping

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/assetgraph/internal/partition"
)

// UpstreamFunc resolves the forward direction of a custom mapping.
type UpstreamFunc func(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error)

// DownstreamFunc resolves the backward direction of a custom mapping.
type DownstreamFunc func(upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error)

// NewFunc wraps user functions as a Mapping. The result implements Inverse
// only when down is non-nil.
func NewFunc(kind string, up UpstreamFunc, down DownstreamFunc) Mapping {
	f := funcMapping{kind: kind, up: up}
	if down == nil {
		return f
	}
	return invertibleFunc{funcMapping: f, down: down}
}

type funcMapping struct {
	kind string
	up   UpstreamFunc
}

func (f funcMapping) Kind() string { return f.kind }

func (f funcMapping) UpstreamRange(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	return f.up(downstream, downstreamDef, upstreamDef, asOf)
}

type invertibleFunc struct {
	funcMapping
	down DownstreamFunc
}

func (f invertibleFunc) DownstreamRange(upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	return f.down(upstream, downstreamDef, upstreamDef, asOf)
}

// Registry holds named custom mappings that declarations refer to by name.
// A Registry is an explicit value passed to the compiler; there is no
// process-wide default.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Mapping
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Mapping)}
}

// Register adds m under name. Names are unique.
func (r *Registry) Register(name string, m Mapping) error {
	if name == "" {
		return fmt.Errorf("mapping registry: name is required")
	}
	if m == nil {
		return fmt.Errorf("mapping registry: %q: mapping is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("mapping registry: %q already registered", name)
	}
	r.byName[name] = m
	return nil
}

// Lookup returns the mapping registered under name.
func (r *Registry) Lookup(name string) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
