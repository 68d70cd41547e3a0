package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/assetgraph/internal/ir"
)

const selectMaterializations = `
	SELECT id, asset_key, partition_key, run_id, code_version, seq, timestamp
	FROM materializations`

// ReadAssetHistory returns every record of asset, oldest first.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadAssetHistory(ctx context.Context, asset ir.AssetKey) ([]ir.MaterializationRecord, error) {
	return s.queryRecords(ctx, selectMaterializations+`
		WHERE asset_key = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, string(asset))
}

// ReadPartitionHistory returns the records of one partition of asset, oldest
// first. Use "" for an unpartitioned asset.
func (s *Store) ReadPartitionHistory(ctx context.Context, asset ir.AssetKey, partitionKey string) ([]ir.MaterializationRecord, error) {
	return s.queryRecords(ctx, selectMaterializations+`
		WHERE asset_key = ? AND partition_key = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, string(asset), partitionKey)
}

// ReadRun returns the records emitted by one run, in emission order.
func (s *Store) ReadRun(ctx context.Context, runID string) ([]ir.MaterializationRecord, error) {
	return s.queryRecords(ctx, selectMaterializations+`
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
}

// LatestPerPartition returns the newest record of each partition of asset,
// ordered by seq.
func (s *Store) LatestPerPartition(ctx context.Context, asset ir.AssetKey) ([]ir.MaterializationRecord, error) {
	return s.queryRecords(ctx, selectMaterializations+` m
		WHERE m.asset_key = ?
		  AND m.seq = (
			SELECT MAX(seq) FROM materializations
			WHERE asset_key = m.asset_key AND partition_key = m.partition_key
		  )
		ORDER BY m.seq ASC, m.id COLLATE BINARY ASC
	`, string(asset))
}

// LastSeq returns the highest seq in the log, or 0 when it is empty.
// A clock created with engine.NewClockAt(LastSeq) continues the log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM materializations`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]ir.MaterializationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query materializations: %w", err)
	}
	defer rows.Close()

	records := []ir.MaterializationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materializations: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (ir.MaterializationRecord, error) {
	var (
		rec   ir.MaterializationRecord
		asset string
		ts    string
	)
	if err := rows.Scan(&rec.ID, &asset, &rec.PartitionKey, &rec.RunID, &rec.CodeVersion, &rec.Seq, &ts); err != nil {
		return ir.MaterializationRecord{}, fmt.Errorf("scan materialization: %w", err)
	}
	rec.AssetKey = ir.AssetKey(asset)

	parsed, err := time.Parse(timestampLayout, ts)
	if err != nil {
		return ir.MaterializationRecord{}, fmt.Errorf("materialization %s: bad timestamp %q: %w", rec.ID, ts, err)
	}
	rec.Timestamp = parsed.UTC()
	return rec, nil
}
