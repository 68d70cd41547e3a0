package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/assetgraph/internal/ir"
)

// timestampLayout is how record timestamps are stored. Timestamps are
// informational; nothing orders by them.
const timestampLayout = time.RFC3339Nano

// AppendMaterialization inserts a record. Uses ON CONFLICT(id) DO NOTHING, so
// appending the same record twice is a no-op. Other constraint violations
// still return errors.
func (s *Store) AppendMaterialization(ctx context.Context, rec ir.MaterializationRecord) error {
	if err := rec.AssetKey.Validate(); err != nil {
		return fmt.Errorf("append materialization: %w", err)
	}
	if rec.ID == "" {
		return fmt.Errorf("append materialization: record for %s has no ID", rec.AssetKey)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materializations
		(id, asset_key, partition_key, run_id, code_version, seq, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		string(rec.AssetKey),
		rec.PartitionKey,
		rec.RunID,
		rec.CodeVersion,
		rec.Seq,
		rec.Timestamp.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("append materialization: %w", err)
	}
	return nil
}
