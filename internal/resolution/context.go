package resolution

import (
	"time"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
)

type resolved struct {
	sel partition.Selection
	err error
}

// Context is the resolution state of one asset's step within one run.
//
// A Context belongs to the step that created it and is not safe for
// concurrent use. Upstream selections are computed on first request and
// remembered for the context's lifetime, failures included: a context whose
// resolution failed keeps returning the same error and is never retried.
type Context struct {
	plan   *Plan
	node   graph.Node
	target partition.Selection
	inputs map[ir.AssetKey]resolved
	err    error
}

// AssetKey returns the asset this step computes.
func (c *Context) AssetKey() ir.AssetKey { return c.node.Key }

// AsOf returns the evaluation instant of the run.
func (c *Context) AsOf() time.Time { return c.plan.asOf }

// HasPartitions reports whether the asset has a partitions definition.
func (c *Context) HasPartitions() bool { return c.node.Partitioned() }

// Partitions returns the asset's definition, or nil if unpartitioned.
func (c *Context) Partitions() partition.Definition { return c.node.Partitions }

// Target returns the selection this step writes.
func (c *Context) Target() partition.Selection { return c.target }

// PartitionKey returns the single key this step targets.
func (c *Context) PartitionKey() (string, error) {
	r, err := c.PartitionKeyRange()
	if err != nil {
		return "", err
	}
	if !r.IsSingle() {
		return "", &NotAPartitionKeyError{Asset: c.node.Key, Range: r}
	}
	return r.Start, nil
}

// PartitionKeyRange returns the range this step targets. For a single key
// the range is degenerate.
func (c *Context) PartitionKeyRange() (partition.KeyRange, error) {
	r, ok := c.target.KeyRange()
	if !ok {
		return partition.KeyRange{}, &NoPartitionsError{Asset: c.node.Key}
	}
	return r, nil
}

// PartitionKeys expands the targeted range into its keys.
func (c *Context) PartitionKeys() ([]string, error) {
	r, err := c.PartitionKeyRange()
	if err != nil {
		return nil, err
	}
	return partition.KeysInRange(c.node.Partitions, r, c.plan.asOf)
}

// UpstreamSelection returns the part of upstream this step reads. The result
// is computed once per upstream and then reused.
//
// It fails with *graph.UnknownDependencyError if upstream is not a declared
// dependency of the asset.
func (c *Context) UpstreamSelection(upstream ir.AssetKey) (partition.Selection, error) {
	if r, ok := c.inputs[upstream]; ok {
		return r.sel, r.err
	}
	if _, ok := c.node.Dependency(upstream); !ok {
		return partition.Selection{}, &graph.UnknownDependencyError{Asset: c.node.Key, Upstream: upstream}
	}

	var r resolved
	if rng, ok := c.target.KeyRange(); ok {
		r.sel, r.err = c.plan.graph.UpstreamSelection(c.node.Key, upstream, rng, c.plan.asOf)
	} else {
		r.sel = partition.Whole()
	}
	if r.err != nil && c.err == nil {
		c.err = r.err
	}
	c.inputs[upstream] = r
	return r.sel, r.err
}

// Err returns the first resolution failure recorded by this context.
func (c *Context) Err() error { return c.err }

// InputContext returns the storage-facing view of one dependency.
func (c *Context) InputContext(upstream ir.AssetKey) (*InputContext, error) {
	sel, err := c.UpstreamSelection(upstream)
	if err != nil {
		return nil, err
	}
	up, _ := c.plan.graph.Node(upstream)
	return &InputContext{
		view: view{asset: upstream, def: up.Partitions, sel: sel, asOf: c.plan.asOf, consumer: c.node.Key},
	}, nil
}

// OutputContext returns the storage-facing view of this step's output.
func (c *Context) OutputContext() *OutputContext {
	return &OutputContext{
		view: view{asset: c.node.Key, def: c.node.Partitions, sel: c.target, asOf: c.plan.asOf},
	}
}

// view is what storage sees of one asset: which asset and which partitions.
type view struct {
	asset    ir.AssetKey
	def      partition.Definition
	sel      partition.Selection
	asOf     time.Time
	consumer ir.AssetKey
}

// AssetKey returns the asset being read or written.
func (v view) AssetKey() ir.AssetKey { return v.asset }

// Selection returns the selected partitions, or Whole.
func (v view) Selection() partition.Selection { return v.sel }

// HasPartitions reports whether a partition range applies. It is false when
// the whole asset is read or written.
func (v view) HasPartitions() bool { return !v.sel.IsWhole() }

// PartitionKey returns the single selected key.
func (v view) PartitionKey() (string, error) {
	r, err := v.PartitionKeyRange()
	if err != nil {
		return "", err
	}
	if !r.IsSingle() {
		return "", &NotAPartitionKeyError{Asset: v.asset, Range: r}
	}
	return r.Start, nil
}

// PartitionKeyRange returns the selected range.
func (v view) PartitionKeyRange() (partition.KeyRange, error) {
	r, ok := v.sel.KeyRange()
	if !ok {
		return partition.KeyRange{}, &NoPartitionsError{Asset: v.asset, Consumer: v.consumer}
	}
	return r, nil
}

// PartitionKeys expands the selected range into keys.
func (v view) PartitionKeys() ([]string, error) {
	r, err := v.PartitionKeyRange()
	if err != nil {
		return nil, err
	}
	return partition.KeysInRange(v.def, r, v.asOf)
}

// InputContext is passed to storage when a step loads a dependency.
// A whole selection means "read the entire asset".
type InputContext struct {
	view
}

// Consumer returns the asset whose step is loading the input.
func (i *InputContext) Consumer() ir.AssetKey { return i.view.consumer }

// OutputContext is passed to storage when a step stores its value.
// A whole selection means "write the entire asset".
type OutputContext struct {
	view
}
