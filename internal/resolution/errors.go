package resolution

import (
	"fmt"
	"strings"

	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
)

// MissingPartitionKeyError reports a run that selects partitioned assets
// without naming a partition key or range.
type MissingPartitionKeyError struct {
	// Assets are the partitioned assets in the selection.
	Assets []ir.AssetKey
}

// Error implements the error interface.
func (e *MissingPartitionKeyError) Error() string {
	names := make([]string, len(e.Assets))
	for i, a := range e.Assets {
		names[i] = string(a)
	}
	return fmt.Sprintf("no partition key given for partitioned assets: %s", strings.Join(names, ", "))
}

// NotAPartitionKeyError reports a request for a single partition key when the
// step targets a multi-key range.
type NotAPartitionKeyError struct {
	Asset ir.AssetKey
	Range partition.KeyRange
}

// Error implements the error interface.
func (e *NotAPartitionKeyError) Error() string {
	return fmt.Sprintf("asset %s targets partition range %s, not a single partition key", e.Asset, e.Range)
}

// NoPartitionsError reports a partition query on something that has no
// partitions: an unpartitioned asset, or an input read in full.
type NoPartitionsError struct {
	Asset ir.AssetKey

	// Consumer is set when the error comes from an input read whole by
	// another asset.
	Consumer ir.AssetKey
}

// Error implements the error interface.
func (e *NoPartitionsError) Error() string {
	if e.Consumer != "" {
		return fmt.Sprintf("asset %s is read in full by %s; no partition key or range applies", e.Asset, e.Consumer)
	}
	return fmt.Sprintf("asset %s is not partitioned", e.Asset)
}
