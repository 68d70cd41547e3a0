package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/assetgraph/internal/ir"
)

var testTime = time.Date(2024, 3, 1, 9, 30, 0, 123456789, time.UTC)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord builds a record with a real content-addressed ID.
func createTestRecord(asset ir.AssetKey, partitionKey, runID string, seq int64) ir.MaterializationRecord {
	rec, err := ir.NewMaterializationRecord(asset, partitionKey, runID, "1.0.0", seq, testTime)
	if err != nil {
		panic(err)
	}
	return rec
}
