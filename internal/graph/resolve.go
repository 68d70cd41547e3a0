package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/mapping"
	"github.com/roach88/assetgraph/internal/partition"
)

// edge looks up both ends of a declared dependency.
func (g *Graph) edge(downstream, upstream ir.AssetKey) (Dependency, Node, Node, error) {
	down, err := g.mustNode(downstream)
	if err != nil {
		return Dependency{}, Node{}, Node{}, err
	}
	dep, ok := down.Dependency(upstream)
	if !ok {
		return Dependency{}, Node{}, Node{}, &UnknownDependencyError{Asset: downstream, Upstream: upstream}
	}
	up, err := g.mustNode(upstream)
	if err != nil {
		return Dependency{}, Node{}, Node{}, err
	}
	return dep, down, up, nil
}

// UpstreamSelection returns the part of upstream that downstream needs to
// compute the downstream range r.
//
// Errors name the asset they concern: an invalid r names downstream, a
// mapping result outside the upstream definition names upstream, and mapping
// failures name both.
func (g *Graph) UpstreamSelection(downstream, upstream ir.AssetKey, r partition.KeyRange, asOf time.Time) (partition.Selection, error) {
	dep, down, up, err := g.edge(downstream, upstream)
	if err != nil {
		return partition.Selection{}, err
	}
	if !down.Partitioned() || !up.Partitioned() {
		return partition.Whole(), nil
	}

	if err := partition.ValidateRange(down.Partitions, r, asOf); err != nil {
		return partition.Selection{}, annotate(err, downstream, downstream, upstream)
	}
	ur, err := mapping.Upstream(dep.Mapping, r, down.Partitions, up.Partitions, asOf)
	if err != nil {
		return partition.Selection{}, annotate(err, upstream, downstream, upstream)
	}
	if err := partition.ValidateRange(up.Partitions, ur, asOf); err != nil {
		return partition.Selection{}, annotate(err, upstream, downstream, upstream)
	}
	return partition.Of(ur), nil
}

// DownstreamSelection returns the part of downstream that depends on the
// upstream range r. It fails with an error matching mapping.ErrNotSupported
// when the edge's mapping only resolves the forward direction, and with one
// matching mapping.ErrNoPartitions when r feeds no downstream partition.
func (g *Graph) DownstreamSelection(downstream, upstream ir.AssetKey, r partition.KeyRange, asOf time.Time) (partition.Selection, error) {
	dep, down, up, err := g.edge(downstream, upstream)
	if err != nil {
		return partition.Selection{}, err
	}
	if !down.Partitioned() || !up.Partitioned() {
		return partition.Whole(), nil
	}

	if err := partition.ValidateRange(up.Partitions, r, asOf); err != nil {
		return partition.Selection{}, annotate(err, upstream, downstream, upstream)
	}
	dr, err := mapping.Downstream(dep.Mapping, r, down.Partitions, up.Partitions, asOf)
	if err != nil {
		return partition.Selection{}, annotate(err, downstream, downstream, upstream)
	}
	if err := partition.ValidateRange(down.Partitions, dr, asOf); err != nil {
		return partition.Selection{}, annotate(err, downstream, downstream, upstream)
	}
	return partition.Of(dr), nil
}

// annotate attaches asset keys to resolution errors. Range errors without an
// asset are attributed to target; mapping errors get both edge ends.
func annotate(err error, target, downstream, upstream ir.AssetKey) error {
	var ire *partition.InvalidRangeError
	if errors.As(err, &ire) && ire.Asset == "" {
		return ire.WithAsset(target)
	}
	var ume *mapping.UnsupportedMappingError
	if errors.As(err, &ume) {
		return ume.WithAssets(downstream, upstream)
	}
	var nse *mapping.NotSupportedError
	if errors.As(err, &nse) {
		return nse.WithAssets(downstream, upstream)
	}
	var ere *mapping.EmptyRangeError
	if errors.As(err, &ere) {
		return ere.WithAssets(downstream, upstream)
	}
	return fmt.Errorf("resolve %s -> %s: %w", upstream, downstream, err)
}

// Check dry-runs every edge between partitioned assets over the downstream's
// full key range and reports mappings that cannot translate between the two
// definitions, such as identity across different key sets.
//
// Definitions with no keys as of asOf are skipped.
func (g *Graph) Check(asOf time.Time) error {
	var result *multierror.Error
	for _, n := range g.nodes {
		if !n.Partitioned() {
			continue
		}
		for _, d := range n.Deps {
			up := g.nodes[g.index[d.Upstream]]
			if !up.Partitioned() {
				continue
			}
			full, err := partition.FullRange(n.Partitions, asOf)
			if err != nil {
				continue
			}
			if _, err := g.UpstreamSelection(n.Key, d.Upstream, full, asOf); err != nil {
				var ume *mapping.UnsupportedMappingError
				if errors.As(err, &ume) {
					result = multierror.Append(result, err)
				}
			}
		}
	}
	return result.ErrorOrNil()
}
