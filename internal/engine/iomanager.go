package engine

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/resolution"
)

// IOManager persists asset values. The Runner calls Load for every input of a
// step before computing it and Store once the value is computed.
//
// A context whose HasPartitions is false addresses the whole asset. Otherwise
// it addresses the contiguous partitions of its range, and an implementation
// that cannot serve a multi-key range must return an error.
type IOManager interface {
	Store(ctx context.Context, out *resolution.OutputContext, value any) error
	Load(ctx context.Context, in *resolution.InputContext) (any, error)
}

// MissingValueError reports a load of a value that was never stored.
type MissingValueError struct {
	Asset        ir.AssetKey
	PartitionKey string
}

// Error implements the error interface.
func (e *MissingValueError) Error() string {
	if e.PartitionKey == "" {
		return fmt.Sprintf("no stored value for asset %s", e.Asset)
	}
	return fmt.Sprintf("no stored value for asset %s partition %q", e.Asset, e.PartitionKey)
}

// wholeKey addresses the value of an unpartitioned store.
const wholeKey = ""

// MemoryIOManager keeps values in memory, keyed by asset and partition key.
//
// Loads of a single key return that key's value. Loads of a multi-key range
// return a map[string]any of the stored partitions in the range, and whole
// loads of a partitioned asset return every stored partition the same way.
// Missing values are skipped unless strict loads are enabled.
//
// Safe for concurrent use.
type MemoryIOManager struct {
	mu     sync.RWMutex
	values map[ir.AssetKey]map[string]any
	strict bool
}

// MemoryOption configures a MemoryIOManager.
type MemoryOption func(*MemoryIOManager)

// WithStrictLoads makes loads fail with *MissingValueError when a requested
// partition was never stored.
func WithStrictLoads() MemoryOption {
	return func(m *MemoryIOManager) {
		m.strict = true
	}
}

// NewMemoryIOManager creates an empty in-memory IOManager.
func NewMemoryIOManager(opts ...MemoryOption) *MemoryIOManager {
	m := &MemoryIOManager{values: make(map[ir.AssetKey]map[string]any)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store implements IOManager. A range store writes value under every key of
// the range.
func (m *MemoryIOManager) Store(_ context.Context, out *resolution.OutputContext, value any) error {
	keys := []string{wholeKey}
	if out.HasPartitions() {
		var err error
		if keys, err = out.PartitionKeys(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	byKey := m.values[out.AssetKey()]
	if byKey == nil {
		byKey = make(map[string]any)
		m.values[out.AssetKey()] = byKey
	}
	for _, k := range keys {
		byKey[k] = value
	}
	return nil
}

// Load implements IOManager.
func (m *MemoryIOManager) Load(_ context.Context, in *resolution.InputContext) (any, error) {
	asset := in.AssetKey()

	m.mu.RLock()
	defer m.mu.RUnlock()
	byKey := m.values[asset]

	if !in.HasPartitions() {
		if v, ok := byKey[wholeKey]; ok {
			return v, nil
		}
		parts := maps.Clone(byKey)
		delete(parts, wholeKey)
		if len(parts) == 0 {
			if m.strict {
				return nil, &MissingValueError{Asset: asset}
			}
			return nil, nil
		}
		return parts, nil
	}

	keys, err := in.PartitionKeys()
	if err != nil {
		return nil, err
	}
	if len(keys) == 1 {
		v, ok := byKey[keys[0]]
		if !ok && m.strict {
			return nil, &MissingValueError{Asset: asset, PartitionKey: keys[0]}
		}
		return v, nil
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok := byKey[k]
		if !ok {
			if m.strict {
				return nil, &MissingValueError{Asset: asset, PartitionKey: k}
			}
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Value returns the stored value of one partition; use "" for the whole
// asset.
func (m *MemoryIOManager) Value(asset ir.AssetKey, partitionKey string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[asset][partitionKey]
	return v, ok
}
