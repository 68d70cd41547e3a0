package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
	"github.com/roach88/assetgraph/internal/resolution"
)

// ComputeFunc produces an asset's value from its loaded inputs, keyed by
// upstream asset.
type ComputeFunc func(ctx context.Context, step *resolution.Context, inputs map[ir.AssetKey]any) (any, error)

// Request describes one run.
type Request struct {
	// Assets to execute. Their dependencies are not added implicitly.
	Assets []ir.AssetKey

	// Partition is the target key or range. Required when any selected asset
	// is partitioned.
	Partition *partition.KeyRange

	// AsOf fixes the evaluation instant for time-derived definitions.
	// Zero means the runner's current time.
	AsOf time.Time
}

// Result summarizes a run. On failure it holds what happened before the
// failing step.
type Result struct {
	RunID   string
	AsOf    time.Time
	Steps   []ir.AssetKey
	Records []ir.MaterializationRecord
}

// Runner executes plans against an IOManager and a RecordSink.
type Runner struct {
	graph   *graph.Graph
	io      IOManager
	sink    RecordSink
	clock   *Clock
	runIDs  RunIDGenerator
	now     func() time.Time
	logger  *slog.Logger
	compute map[ir.AssetKey]ComputeFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the logical clock. Use NewClockAt to continue after records
// already in a store.
func WithClock(c *Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithRunIDs sets the run ID generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(r *Runner) {
		r.runIDs = g
	}
}

// WithTimeSource sets the wall clock used for record timestamps and for
// requests without AsOf. Default: time.Now.
func WithTimeSource(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithCompute registers the compute function of one asset. Assets without
// one get a compute function that describes the step and its inputs.
func WithCompute(asset ir.AssetKey, fn ComputeFunc) Option {
	return func(r *Runner) {
		r.compute[asset] = fn
	}
}

// NewRunner creates a runner over g.
func NewRunner(g *graph.Graph, io IOManager, sink RecordSink, opts ...Option) *Runner {
	r := &Runner{
		graph:   g,
		io:      io,
		sink:    sink,
		clock:   NewClock(),
		runIDs:  UUIDv7Generator{},
		now:     time.Now,
		logger:  slog.Default(),
		compute: make(map[ir.AssetKey]ComputeFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one request.
//
// The plan is built first; selection and partition errors are returned before
// a run ID is assigned or any step runs. Steps then run in dependency order
// and the run stops at the first failure with a *StepError. ctx is checked
// between steps.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = r.now()
	}
	plan, err := resolution.NewPlan(r.graph, req.Assets, req.Partition, asOf)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: r.runIDs.Generate(), AsOf: asOf}
	target := "none"
	if t, ok := plan.Target(); ok {
		target = t.String()
	}
	r.logger.Info("run starting",
		"run_id", res.RunID,
		"steps", len(plan.Steps()),
		"partition", target,
	)

	for _, key := range plan.Steps() {
		if err := ctx.Err(); err != nil {
			r.logger.Info("run cancelled", "run_id", res.RunID, "asset", key)
			return res, fmt.Errorf("run %s cancelled before %s: %w", res.RunID, key, err)
		}
		records, err := r.executeStep(ctx, plan, res.RunID, key)
		res.Records = append(res.Records, records...)
		if err != nil {
			r.logger.Error("step failed", "run_id", res.RunID, "asset", key, "error", err)
			return res, err
		}
		res.Steps = append(res.Steps, key)
	}

	r.logger.Info("run finished",
		"run_id", res.RunID,
		"records", len(res.Records),
	)
	return res, nil
}

// executeStep runs one asset: load inputs, compute, store, record.
func (r *Runner) executeStep(ctx context.Context, plan *resolution.Plan, runID string, key ir.AssetKey) ([]ir.MaterializationRecord, error) {
	fail := func(code StepErrorCode, upstream ir.AssetKey, err error) error {
		return &StepError{Code: code, Asset: key, RunID: runID, Upstream: upstream, Err: err}
	}

	step, err := plan.NewContext(key)
	if err != nil {
		return nil, fail(ErrCodeResolution, "", err)
	}

	inputs := make(map[ir.AssetKey]any)
	for _, d := range r.graph.Dependencies(key) {
		in, err := step.InputContext(d.Upstream)
		if err != nil {
			return nil, fail(ErrCodeResolution, d.Upstream, err)
		}
		r.logger.Debug("loading input",
			"run_id", runID,
			"asset", key,
			"upstream", d.Upstream,
			"selection", in.Selection().String(),
		)
		v, err := r.io.Load(ctx, in)
		if err != nil {
			return nil, fail(ErrCodeLoad, d.Upstream, err)
		}
		inputs[d.Upstream] = v
	}

	fn, ok := r.compute[key]
	if !ok {
		fn = describeStep
	}
	value, err := fn(ctx, step, inputs)
	if err != nil {
		return nil, fail(ErrCodeCompute, "", err)
	}

	if err := r.io.Store(ctx, step.OutputContext(), value); err != nil {
		return nil, fail(ErrCodeStore, "", err)
	}

	partitionKeys := []string{""}
	if step.HasPartitions() {
		if partitionKeys, err = step.PartitionKeys(); err != nil {
			return nil, fail(ErrCodeResolution, "", err)
		}
	}

	node, _ := r.graph.Node(key)
	records := make([]ir.MaterializationRecord, 0, len(partitionKeys))
	for _, pk := range partitionKeys {
		rec, err := ir.NewMaterializationRecord(key, pk, runID, node.Version, r.clock.Next(), r.now())
		if err != nil {
			return records, fail(ErrCodeRecord, "", err)
		}
		if err := r.sink.AppendMaterialization(ctx, rec); err != nil {
			return records, fail(ErrCodeRecord, "", err)
		}
		records = append(records, rec)
	}

	r.logger.Info("asset materialized",
		"run_id", runID,
		"asset", key,
		"partition", step.Target().String(),
		"records", len(records),
	)
	return records, nil
}

// describeStep is the default compute function. Its value names the asset,
// the stored selection and the inputs that were loaded.
func describeStep(_ context.Context, step *resolution.Context, inputs map[ir.AssetKey]any) (any, error) {
	ups := slices.Sorted(maps.Keys(inputs))
	names := make([]string, len(ups))
	for i, u := range ups {
		names[i] = string(u)
	}
	return map[string]any{
		"asset":     string(step.AssetKey()),
		"partition": step.Target().String(),
		"inputs":    names,
	}, nil
}
