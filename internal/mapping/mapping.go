// Package mapping translates partition key ranges across a dependency edge.
//
// Every Mapping resolves the forward direction: given the downstream range
// about to be computed, which upstream range must be read. The backward
// direction, used for impact analysis, is an optional capability expressed by
// the Inverse interface. Mappings that do not implement it make Downstream
// return a NotSupportedError instead of guessing.
//
// Mappings are stateless values. Anything time-dependent is delegated to the
// partition definitions through the asOf argument; no mapping reads the clock.
package mapping

import (
	"time"

	"github.com/roach88/assetgraph/internal/partition"
)

// Mapping resolves the upstream partitions a downstream range depends on.
//
// Implementations must be monotonic: if range A is contained in range B, the
// upstream range for A must be contained in the upstream range for B.
type Mapping interface {
	// Kind names the mapping in diagnostics and declarations.
	Kind() string

	// UpstreamRange returns the upstream range that must be read to compute
	// the downstream range.
	UpstreamRange(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error)
}

// Inverse is implemented by mappings that can also answer which downstream
// partitions are affected by an upstream range.
type Inverse interface {
	Mapping

	// DownstreamRange returns the downstream range that depends on any key in
	// the upstream range.
	DownstreamRange(upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error)
}

// Upstream applies m in the forward direction. A nil m is identity.
func Upstream(m Mapping, downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	if m == nil {
		m = Identity{}
	}
	return m.UpstreamRange(downstream, downstreamDef, upstreamDef, asOf)
}

// Downstream applies m in the backward direction. A nil m is identity.
// It returns a *NotSupportedError if m does not implement Inverse.
func Downstream(m Mapping, upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	if m == nil {
		m = Identity{}
	}
	inv, ok := m.(Inverse)
	if !ok {
		return partition.KeyRange{}, &NotSupportedError{Kind: m.Kind(), Direction: Backward}
	}
	return inv.DownstreamRange(upstream, downstreamDef, upstreamDef, asOf)
}

// KindOf returns m's kind, treating nil as identity.
func KindOf(m Mapping) string {
	if m == nil {
		return Identity{}.Kind()
	}
	return m.Kind()
}

// Invertible reports whether Downstream can succeed for m.
func Invertible(m Mapping) bool {
	if m == nil {
		return true
	}
	_, ok := m.(Inverse)
	return ok
}
