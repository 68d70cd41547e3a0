package ir

import (
	"fmt"
	"time"
)

// MaterializationRecord is emitted after an asset's output is successfully stored.
//
// Records are immutable and append-only. A partitioned asset produces one record
// per stored partition key; an unpartitioned asset produces a single record with
// an empty PartitionKey.
//
// Seq is the logical clock value used for ordering. Timestamp is informational
// and is excluded from the content-addressed ID.
type MaterializationRecord struct {
	ID           string    `json:"id"`
	AssetKey     AssetKey  `json:"asset_key"`
	PartitionKey string    `json:"partition_key,omitempty"`
	RunID        string    `json:"run_id"`
	CodeVersion  string    `json:"code_version,omitempty"`
	Seq          int64     `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
}

// Partitioned reports whether the record covers a single partition.
func (r MaterializationRecord) Partitioned() bool {
	return r.PartitionKey != ""
}

// NewMaterializationRecord builds a record and computes its ID.
func NewMaterializationRecord(asset AssetKey, partitionKey, runID, codeVersion string, seq int64, ts time.Time) (MaterializationRecord, error) {
	id, err := MaterializationID(runID, asset, partitionKey, codeVersion, seq)
	if err != nil {
		return MaterializationRecord{}, fmt.Errorf("materialization %s: %w", asset, err)
	}
	return MaterializationRecord{
		ID:           id,
		AssetKey:     asset,
		PartitionKey: partitionKey,
		RunID:        runID,
		CodeVersion:  codeVersion,
		Seq:          seq,
		Timestamp:    ts.UTC(),
	}, nil
}
