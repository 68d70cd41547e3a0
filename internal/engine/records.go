package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/assetgraph/internal/ir"
)

// RecordSink receives materialization records as steps succeed.
// *store.Store and *MemoryLog implement it.
type RecordSink interface {
	AppendMaterialization(ctx context.Context, rec ir.MaterializationRecord) error
}

// MemoryLog is an append-only in-memory RecordSink. Appending a record whose
// ID is already present is a no-op. Safe for concurrent use.
type MemoryLog struct {
	mu      sync.Mutex
	records []ir.MaterializationRecord
	ids     map[string]struct{}
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{ids: make(map[string]struct{})}
}

// AppendMaterialization implements RecordSink.
func (l *MemoryLog) AppendMaterialization(_ context.Context, rec ir.MaterializationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.ids[rec.ID]; dup {
		return nil
	}
	l.ids[rec.ID] = struct{}{}
	l.records = append(l.records, rec)
	return nil
}

// Records returns every record in append order.
func (l *MemoryLog) Records() []ir.MaterializationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

// ForAsset returns the records of one asset in append order.
func (l *MemoryLog) ForAsset(asset ir.AssetKey) []ir.MaterializationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ir.MaterializationRecord
	for _, r := range l.records {
		if r.AssetKey == asset {
			out = append(out, r)
		}
	}
	return out
}
