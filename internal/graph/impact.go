package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/mapping"
	"github.com/roach88/assetgraph/internal/partition"
)

// ImpactPolicy decides what Impact does when an edge's mapping cannot resolve
// downstream partitions.
type ImpactPolicy int

const (
	// ImpactConservative assumes every partition of the downstream asset is
	// affected and marks the result inexact.
	ImpactConservative ImpactPolicy = iota

	// ImpactStrict refuses the analysis and returns the mapping's error.
	ImpactStrict
)

func (p ImpactPolicy) String() string {
	if p == ImpactStrict {
		return "strict"
	}
	return "conservative"
}

// Impacted is one downstream asset invalidated by a rerun.
type Impacted struct {
	Asset ir.AssetKey

	// Selection is the affected part of Asset. Whole for unpartitioned assets
	// and for partitioned assets where every partition is affected.
	Selection partition.Selection

	// Exact is false when a conservative fallback was applied on some path
	// leading to Asset.
	Exact bool
}

// Impact computes which downstream partitions a rerun of sel on source
// invalidates, following edges transitively. Results are in topological
// order and exclude source itself.
//
// When several paths reach the same asset, their selections are merged into
// the smallest covering range. Edges whose mapping gives the selection no
// downstream image contribute nothing, so an asset reached only through such
// edges is left out along with its own descendants.
func (g *Graph) Impact(source ir.AssetKey, sel partition.Selection, asOf time.Time, policy ImpactPolicy) ([]Impacted, error) {
	src, err := g.mustNode(source)
	if err != nil {
		return nil, err
	}
	if r, ok := sel.KeyRange(); ok {
		if !src.Partitioned() {
			return nil, &partition.InvalidRangeError{Asset: source, Range: r, Reason: "asset is not partitioned"}
		}
		if err := partition.ValidateRange(src.Partitions, r, asOf); err != nil {
			return nil, annotate(err, source, source, source)
		}
	}

	order, err := g.WithDownstream(source)
	if err != nil {
		return nil, err
	}

	state := map[ir.AssetKey]Impacted{source: {Asset: source, Selection: sel, Exact: true}}
	var out []Impacted
	for _, key := range order[1:] {
		node := g.nodes[g.index[key]]
		var merged *Impacted
		for _, dep := range node.Deps {
			from, ok := state[dep.Upstream]
			if !ok {
				continue
			}
			contrib, ok, err := g.impactAlong(node, dep.Upstream, from, asOf, policy)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if merged == nil {
				merged = &contrib
				continue
			}
			if merged, err = g.mergeImpact(node, *merged, contrib, asOf); err != nil {
				return nil, err
			}
		}
		if merged == nil {
			continue
		}
		state[key] = *merged
		out = append(out, *merged)
	}
	return out, nil
}

// impactAlong resolves one edge of the impact walk. It reports false when the
// upstream selection feeds no partition of node.
func (g *Graph) impactAlong(node Node, upstream ir.AssetKey, from Impacted, asOf time.Time, policy ImpactPolicy) (Impacted, bool, error) {
	whole := Impacted{Asset: node.Key, Selection: partition.Whole(), Exact: from.Exact}
	up := g.nodes[g.index[upstream]]
	if !node.Partitioned() || !up.Partitioned() {
		return whole, true, nil
	}

	r, ok := from.Selection.KeyRange()
	if !ok {
		full, err := partition.FullRange(up.Partitions, asOf)
		if err != nil {
			return Impacted{}, false, annotate(err, upstream, node.Key, upstream)
		}
		r = full
	}

	sel, err := g.DownstreamSelection(node.Key, upstream, r, asOf)
	switch {
	case err == nil:
		return Impacted{Asset: node.Key, Selection: sel, Exact: from.Exact}, true, nil
	case errors.Is(err, mapping.ErrNoPartitions):
		return Impacted{}, false, nil
	case errors.Is(err, mapping.ErrNotSupported) && policy == ImpactConservative:
		whole.Exact = false
		return whole, true, nil
	default:
		return Impacted{}, false, fmt.Errorf("impact of %s on %s: %w", upstream, node.Key, err)
	}
}

func (g *Graph) mergeImpact(node Node, a, b Impacted, asOf time.Time) (*Impacted, error) {
	out := Impacted{Asset: node.Key, Exact: a.Exact && b.Exact}
	ar, aok := a.Selection.KeyRange()
	br, bok := b.Selection.KeyRange()
	if !aok || !bok {
		out.Selection = partition.Whole()
		return &out, nil
	}
	u, err := partition.Union(node.Partitions, ar, br, asOf)
	if err != nil {
		return nil, annotate(err, node.Key, node.Key, node.Key)
	}
	out.Selection = partition.Of(u)
	return &out, nil
}
