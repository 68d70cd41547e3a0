// Package resolution turns a run request into per-step resolution contexts.
//
// A Plan fixes the steps of one run, their order and the target partition
// range. Each executing step gets its own Context, which resolves the
// upstream selections that step needs lazily and remembers them.
//
// Nothing here executes assets or touches storage.
package resolution

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/mapping"
	"github.com/roach88/assetgraph/internal/partition"
)

// ErrEmptySelection is returned when a plan selects no assets.
var ErrEmptySelection = errors.New("run selects no assets")

// Plan is the resolved shape of one run. It is immutable and may be shared
// between goroutines; the Contexts it creates may not.
type Plan struct {
	graph  *graph.Graph
	steps  []ir.AssetKey
	target *partition.KeyRange
	asOf   time.Time
}

// NewPlan orders selection topologically and checks the target against every
// partitioned asset in it. target may be nil only when no selected asset is
// partitioned.
//
// The error is returned before any step runs:
//   - *graph.UnknownAssetError for keys not in g
//   - *MissingPartitionKeyError for a partitioned selection without target
//   - *partition.InvalidRangeError naming the asset the target is invalid for
func NewPlan(g *graph.Graph, selection []ir.AssetKey, target *partition.KeyRange, asOf time.Time) (*Plan, error) {
	if len(selection) == 0 {
		return nil, ErrEmptySelection
	}
	steps, err := g.TopoOrder(selection)
	if err != nil {
		return nil, err
	}

	var partitioned []ir.AssetKey
	for _, key := range steps {
		if n, _ := g.Node(key); n.Partitioned() {
			partitioned = append(partitioned, key)
		}
	}
	if target == nil && len(partitioned) > 0 {
		return nil, &MissingPartitionKeyError{Assets: partitioned}
	}
	if target != nil {
		for _, key := range partitioned {
			n, _ := g.Node(key)
			if err := partition.ValidateRange(n.Partitions, *target, asOf); err != nil {
				var ire *partition.InvalidRangeError
				if errors.As(err, &ire) {
					return nil, ire.WithAsset(key)
				}
				return nil, err
			}
		}
	}

	p := &Plan{graph: g, steps: steps, asOf: asOf}
	if target != nil {
		t := *target
		p.target = &t
	}
	return p, nil
}

// Graph returns the graph the plan was built from.
func (p *Plan) Graph() *graph.Graph { return p.graph }

// AsOf returns the evaluation instant for time-derived definitions.
func (p *Plan) AsOf() time.Time { return p.asOf }

// Steps returns the assets to execute, dependencies first.
func (p *Plan) Steps() []ir.AssetKey {
	return slices.Clone(p.steps)
}

// Target returns the run's partition range, if one was given.
func (p *Plan) Target() (partition.KeyRange, bool) {
	if p.target == nil {
		return partition.KeyRange{}, false
	}
	return *p.target, true
}

// NewContext creates a fresh resolution context for one step of the plan.
func (p *Plan) NewContext(asset ir.AssetKey) (*Context, error) {
	if !slices.Contains(p.steps, asset) {
		if _, ok := p.graph.Node(asset); !ok {
			return nil, &graph.UnknownAssetError{Asset: asset}
		}
		return nil, fmt.Errorf("asset %s is not a step of this run", asset)
	}
	n, _ := p.graph.Node(asset)
	c := &Context{
		plan:   p,
		node:   n,
		inputs: make(map[ir.AssetKey]resolved, len(n.Deps)),
	}
	if n.Partitioned() {
		c.target = partition.Of(*p.target)
	}
	return c, nil
}

// StepPlan describes what one step stores and what it loads.
type StepPlan struct {
	Asset  ir.AssetKey `json:"asset"`
	Target string      `json:"target"`
	Inputs []InputPlan `json:"inputs,omitempty"`
}

// InputPlan describes the selection one step reads from an upstream asset.
type InputPlan struct {
	Upstream  ir.AssetKey `json:"upstream"`
	Mapping   string      `json:"mapping"`
	Selection string      `json:"selection"`
}

// Explain resolves every edge of every step without executing anything.
// It stops at the first resolution error.
func (p *Plan) Explain() ([]StepPlan, error) {
	out := make([]StepPlan, 0, len(p.steps))
	for _, key := range p.steps {
		c, err := p.NewContext(key)
		if err != nil {
			return nil, err
		}
		sp := StepPlan{Asset: key, Target: c.target.String()}
		for _, d := range c.node.Deps {
			sel, err := c.UpstreamSelection(d.Upstream)
			if err != nil {
				return nil, err
			}
			sp.Inputs = append(sp.Inputs, InputPlan{
				Upstream:  d.Upstream,
				Mapping:   mapping.KindOf(d.Mapping),
				Selection: sel.String(),
			})
		}
		out = append(out, sp)
	}
	return out, nil
}
