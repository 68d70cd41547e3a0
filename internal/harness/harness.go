package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/assetgraph/internal/compiler"
	"github.com/roach88/assetgraph/internal/engine"
	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/resolution"
	"github.com/roach88/assetgraph/internal/store"
	"github.com/roach88/assetgraph/internal/testutil"
)

// errInjected is returned by the compute function of assets a run step lists
// under fail.
var errInjected = errors.New("injected failure")

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and run IDs.
type Harness struct {
	store  *store.Store
	graph  *graph.Graph
	rec    *recorder
	asOf   time.Time
	clock  *engine.Clock
	runIDs *testutil.SequentialRunIDs
	wall   *testutil.DeterministicClock
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store and IO manager shared by
// all of its runs, so later runs load what earlier runs stored.
//
// Execution flow:
// 1. Load and compile the CUE declarations in scenario.Specs
// 2. Seed dynamic partitions through the store and build the graph
// 3. Execute run steps in order, checking each against its expect_error
// 4. Evaluate assertions against the trace, the store and the graph
//
// An error is returned only when the scenario cannot be set up; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	asOf, err := ParseAsOf(scenario.AsOf)
	if err != nil {
		return nil, err
	}

	loaded, errs := compiler.LoadDir(scenario.Specs, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load specs: %w", multierror.Append(nil, errs...))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts, err := seedDynamic(ctx, st, scenario.DynamicPartitions)
	if err != nil {
		return nil, err
	}
	g, err := compiler.Build(loaded.Assets, opts...)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	var iomOpts []engine.MemoryOption
	if scenario.StrictLoads {
		iomOpts = append(iomOpts, engine.WithStrictLoads())
	}

	h := &Harness{
		store:  st,
		graph:  g,
		rec:    newRecorder(engine.NewMemoryIOManager(iomOpts...), st),
		asOf:   asOf,
		clock:  engine.NewClock(),
		runIDs: testutil.NewSequentialRunIDs("run"),
		wall:   testutil.NewDeterministicClock(asOf, time.Second),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		h.runStep(ctx, i, step, result)
	}
	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

// seedDynamic adds the scenario's dynamic partitions to the store and reads
// them back as build options, the way a persisted deployment starts up.
func seedDynamic(ctx context.Context, st *store.Store, seeds map[string][]string) ([]compiler.Option, error) {
	for _, name := range slices.Sorted(maps.Keys(seeds)) {
		if _, err := st.AddDynamicPartitions(ctx, name, seeds[name]...); err != nil {
			return nil, fmt.Errorf("seed dynamic partitions %q: %w", name, err)
		}
	}
	names, err := st.DynamicPartitionNames(ctx)
	if err != nil {
		return nil, err
	}
	opts := make([]compiler.Option, 0, len(names))
	for _, name := range names {
		keys, err := st.ReadDynamicPartitions(ctx, name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, compiler.WithDynamicPartitions(name, keys...))
	}
	return opts, nil
}

func (h *Harness) runStep(ctx context.Context, index int, step RunStep, result *Result) {
	run := &RunTrace{RunID: "-", Assets: step.Assets, Partition: "none", Events: []TraceEvent{}}
	target := step.Target()
	if target != nil {
		run.Partition = target.String()
	}

	opts := []engine.Option{
		engine.WithClock(h.clock),
		engine.WithRunIDs(h.runIDs),
		engine.WithTimeSource(h.wall.Now),
		engine.WithLogger(h.logger),
	}
	for _, asset := range step.Fail {
		opts = append(opts, engine.WithCompute(ir.AssetKey(asset), injectFailure))
	}
	runner := engine.NewRunner(h.graph, h.rec, h.rec, opts...)

	h.rec.begin(run)
	res, err := runner.Run(ctx, engine.Request{
		Assets:    assetKeys(step.Assets),
		Partition: target,
		AsOf:      h.asOf,
	})
	h.rec.begin(nil)

	if res != nil {
		run.RunID = res.RunID
		run.Steps = len(res.Steps)
		run.Records = len(res.Records)
	}
	if err != nil {
		run.Error = describeError(err)
	}
	result.Runs = append(result.Runs, *run)

	h.logger.Info("run step completed", "step", index, "run_id", run.RunID, "error", err)

	switch {
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("runs[%d]: unexpected error: %v", index, err))
	case step.ExpectError != "" && err == nil:
		result.AddError(fmt.Sprintf("runs[%d]: expected error containing %q, run succeeded", index, step.ExpectError))
	case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
		result.AddError(fmt.Sprintf("runs[%d]: expected error containing %q, got: %v", index, step.ExpectError, err))
	}
}

func injectFailure(context.Context, *resolution.Context, map[ir.AssetKey]any) (any, error) {
	return nil, errInjected
}

// describeError names a run error by what failed, leaving out run IDs and
// free-form messages.
func describeError(err error) string {
	var se *engine.StepError
	if errors.As(err, &se) {
		s := fmt.Sprintf("%s asset=%s", se.Code, se.Asset)
		if se.Upstream != "" {
			s += " input=" + string(se.Upstream)
		}
		return s
	}
	return fmt.Sprintf("%T", err)
}
