package mapping

import (
	"time"

	"github.com/roach88/assetgraph/internal/partition"
)

// Identity maps every partition to the partition with the same key.
// Both definitions must contain exactly the same keys; their order may differ,
// in which case the result is the smallest covering range in the target order.
type Identity struct{}

// Kind implements Mapping.
func (Identity) Kind() string { return "identity" }

// UpstreamRange implements Mapping.
func (m Identity) UpstreamRange(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	return m.translate(downstream, downstreamDef, upstreamDef, downstreamDef, upstreamDef, asOf)
}

// DownstreamRange implements Inverse.
func (m Identity) DownstreamRange(upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	return m.translate(upstream, upstreamDef, downstreamDef, downstreamDef, upstreamDef, asOf)
}

func (m Identity) translate(r partition.KeyRange, from, to, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	if !partition.SameKeys(downstreamDef, upstreamDef, asOf) {
		return partition.KeyRange{}, unsupported(m.Kind(), downstreamDef, upstreamDef, "partition key sets differ")
	}
	keys, err := partition.KeysInRange(from, r, asOf)
	if err != nil {
		return partition.KeyRange{}, err
	}
	return partition.Cover(to, keys, asOf)
}

// AllPartitions makes every downstream partition depend on every upstream
// partition.
type AllPartitions struct{}

// Kind implements Mapping.
func (AllPartitions) Kind() string { return "all_partitions" }

// UpstreamRange implements Mapping.
func (m AllPartitions) UpstreamRange(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	if err := partition.ValidateRange(downstreamDef, downstream, asOf); err != nil {
		return partition.KeyRange{}, err
	}
	return partition.FullRange(upstreamDef, asOf)
}

// DownstreamRange implements Inverse.
func (m AllPartitions) DownstreamRange(upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	if err := partition.ValidateRange(upstreamDef, upstream, asOf); err != nil {
		return partition.KeyRange{}, err
	}
	return partition.FullRange(downstreamDef, asOf)
}
