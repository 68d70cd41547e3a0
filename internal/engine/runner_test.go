package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/mapping"
	"github.com/roach88/assetgraph/internal/partition"
	"github.com/roach88/assetgraph/internal/resolution"
)

var (
	asOf    = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fixedTS = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func single(key string) *partition.KeyRange {
	r := partition.Single(key)
	return &r
}

// call is one IOManager invocation as seen by storage.
type call struct {
	Op        string
	Asset     ir.AssetKey
	Partition string
}

// recordingIO wraps MemoryIOManager and records what storage was asked for.
type recordingIO struct {
	*MemoryIOManager
	mu    sync.Mutex
	calls []call
}

func newRecordingIO() *recordingIO {
	return &recordingIO{MemoryIOManager: NewMemoryIOManager()}
}

func (r *recordingIO) Store(ctx context.Context, out *resolution.OutputContext, value any) error {
	r.mu.Lock()
	r.calls = append(r.calls, call{Op: "store", Asset: out.AssetKey(), Partition: out.Selection().String()})
	r.mu.Unlock()
	return r.MemoryIOManager.Store(ctx, out, value)
}

func (r *recordingIO) Load(ctx context.Context, in *resolution.InputContext) (any, error) {
	r.mu.Lock()
	r.calls = append(r.calls, call{Op: "load", Asset: in.AssetKey(), Partition: in.Selection().String()})
	r.mu.Unlock()
	return r.MemoryIOManager.Load(ctx, in)
}

func newTestRunner(g *graph.Graph, iom IOManager, sink RecordSink, opts ...Option) *Runner {
	base := []Option{
		WithRunIDs(NewFixedGenerator("run-1", "run-2", "run-3")),
		WithTimeSource(func() time.Time { return fixedTS }),
		WithLogger(quietLogger()),
	}
	return NewRunner(g, iom, sink, append(base, opts...)...)
}

func partitionsOf(records []ir.MaterializationRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = fmt.Sprintf("%s[%s]", r.AssetKey, r.PartitionKey)
	}
	return out
}

func TestRunSingleAssetWithPartitionKey(t *testing.T) {
	g := graph.MustNew(graph.Node{Key: "my_asset", Partitions: partition.MustStatic("a", "b", "c", "d")})
	iom := newRecordingIO()
	log := NewMemoryLog()

	res, err := newTestRunner(g, iom, log).Run(context.Background(), Request{
		Assets:    []ir.AssetKey{"my_asset"},
		Partition: single("b"),
		AsOf:      asOf,
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, []call{{Op: "store", Asset: "my_asset", Partition: "b"}}, iom.calls)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, ir.AssetKey("my_asset"), rec.AssetKey)
	assert.Equal(t, "b", rec.PartitionKey)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, fixedTS, rec.Timestamp)
	assert.Equal(t, ir.MustMaterializationID("run-1", "my_asset", "b", "", 1), rec.ID)
	assert.Equal(t, res.Records, log.Records())

	v, ok := iom.Value("my_asset", "b")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"asset": "my_asset", "partition": "b", "inputs": []string{}}, v)
}

func TestRunTrailingWindow(t *testing.T) {
	keys := []string{"1", "2", "3"}
	g := graph.MustNew(
		graph.Node{Key: "upstream_asset", Partitions: partition.MustStatic(keys...)},
		graph.Node{
			Key:        "downstream_asset",
			Partitions: partition.MustStatic(keys...),
			Deps:       []graph.Dependency{{Upstream: "upstream_asset", Mapping: mapping.TrailingWindow{Size: 2}}},
		},
	)
	iom := newRecordingIO()

	res, err := newTestRunner(g, iom, NewMemoryLog()).Run(context.Background(), Request{
		Assets:    []ir.AssetKey{"downstream_asset", "upstream_asset"},
		Partition: single("2"),
		AsOf:      asOf,
	})
	require.NoError(t, err)

	want := []call{
		{Op: "store", Asset: "upstream_asset", Partition: "2"},
		{Op: "load", Asset: "upstream_asset", Partition: "1..2"},
		{Op: "store", Asset: "downstream_asset", Partition: "2"},
	}
	if diff := cmp.Diff(want, iom.calls); diff != "" {
		t.Errorf("IO calls mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"upstream_asset[2]", "downstream_asset[2]"}, partitionsOf(res.Records))
}

func TestRunOnlyUpstreamPartitioned(t *testing.T) {
	g := graph.MustNew(
		graph.Node{Key: "upstream_asset", Partitions: partition.MustStatic("a", "b", "c")},
		graph.Node{Key: "downstream_asset", Deps: []graph.Dependency{{Upstream: "upstream_asset"}}},
	)
	iom := newRecordingIO()

	var sawPartitions bool
	var keyErr error
	compute := func(_ context.Context, step *resolution.Context, inputs map[ir.AssetKey]any) (any, error) {
		sawPartitions = step.HasPartitions()
		_, keyErr = step.PartitionKey()
		return len(inputs), nil
	}

	res, err := newTestRunner(g, iom, NewMemoryLog(), WithCompute("downstream_asset", compute)).Run(context.Background(), Request{
		Assets:    []ir.AssetKey{"upstream_asset", "downstream_asset"},
		Partition: single("b"),
		AsOf:      asOf,
	})
	require.NoError(t, err)

	assert.False(t, sawPartitions)
	var npe *resolution.NoPartitionsError
	assert.True(t, errors.As(keyErr, &npe))

	want := []call{
		{Op: "store", Asset: "upstream_asset", Partition: "b"},
		{Op: "load", Asset: "upstream_asset", Partition: "all"},
		{Op: "store", Asset: "downstream_asset", Partition: "all"},
	}
	if diff := cmp.Diff(want, iom.calls); diff != "" {
		t.Errorf("IO calls mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"upstream_asset[b]", "downstream_asset[]"}, partitionsOf(res.Records))

	v, ok := iom.Value("downstream_asset", "")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestRunRangeEmitsRecordPerKey(t *testing.T) {
	g := graph.MustNew(graph.Node{Key: "letters", Partitions: partition.MustStatic("a", "b", "c", "d"), Version: "1.0.0"})
	log := NewMemoryLog()

	res, err := newTestRunner(g, NewMemoryIOManager(), log, WithClock(NewClockAt(10))).Run(context.Background(), Request{
		Assets:    []ir.AssetKey{"letters"},
		Partition: &partition.KeyRange{Start: "a", End: "c"},
		AsOf:      asOf,
	})
	require.NoError(t, err)

	require.Len(t, res.Records, 3)
	for i, rec := range res.Records {
		assert.Equal(t, int64(11+i), rec.Seq)
		assert.Equal(t, "1.0.0", rec.CodeVersion)
	}
	assert.Equal(t, []string{"letters[a]", "letters[b]", "letters[c]"}, partitionsOf(log.ForAsset("letters")))
}

func TestRunPassesLoadedInputs(t *testing.T) {
	g := graph.MustNew(
		graph.Node{Key: "numbers", Partitions: partition.MustStatic("1", "2", "3")},
		graph.Node{
			Key:        "sums",
			Partitions: partition.MustStatic("1", "2", "3"),
			Deps:       []graph.Dependency{{Upstream: "numbers", Mapping: mapping.TrailingWindow{Size: 3}}},
		},
	)
	iom := NewMemoryIOManager()
	values := map[string]int{"1": 10, "2": 20, "3": 30}
	number := func(_ context.Context, step *resolution.Context, _ map[ir.AssetKey]any) (any, error) {
		k, err := step.PartitionKey()
		return values[k], err
	}
	var got any
	sum := func(_ context.Context, _ *resolution.Context, inputs map[ir.AssetKey]any) (any, error) {
		got = inputs["numbers"]
		return nil, nil
	}
	runner := newTestRunner(g, iom, NewMemoryLog(), WithCompute("numbers", number), WithCompute("sums", sum))

	for _, k := range []string{"1", "2"} {
		_, err := runner.Run(context.Background(), Request{Assets: []ir.AssetKey{"numbers"}, Partition: single(k), AsOf: asOf})
		require.NoError(t, err)
	}
	_, err := runner.Run(context.Background(), Request{Assets: []ir.AssetKey{"sums"}, Partition: single("3"), AsOf: asOf})
	require.NoError(t, err)

	// Partition 3 of numbers was never stored; non-strict loads skip it.
	assert.Equal(t, map[string]any{"1": 10, "2": 20}, got)
}

func TestRunMissingPartitionKeyFailsFast(t *testing.T) {
	g := graph.MustNew(graph.Node{Key: "parts", Partitions: partition.MustStatic("a")})
	iom := newRecordingIO()
	log := NewMemoryLog()
	// No run IDs: generating one would panic.
	runner := NewRunner(g, iom, log, WithRunIDs(NewFixedGenerator()), WithLogger(quietLogger()))

	res, err := runner.Run(context.Background(), Request{Assets: []ir.AssetKey{"parts"}, AsOf: asOf})
	var mpk *resolution.MissingPartitionKeyError
	require.True(t, errors.As(err, &mpk))
	assert.Nil(t, res)
	assert.Empty(t, iom.calls)
	assert.Empty(t, log.Records())
}

func TestRunStopsAtFailingStep(t *testing.T) {
	g := graph.MustNew(
		graph.Node{Key: "first"},
		graph.Node{Key: "second", Deps: []graph.Dependency{{Upstream: "first"}}},
		graph.Node{Key: "third", Deps: []graph.Dependency{{Upstream: "second"}}},
	)
	boom := errors.New("boom")
	failing := func(context.Context, *resolution.Context, map[ir.AssetKey]any) (any, error) {
		return nil, boom
	}
	log := NewMemoryLog()

	res, err := newTestRunner(g, NewMemoryIOManager(), log, WithCompute("second", failing)).Run(context.Background(), Request{
		Assets: []ir.AssetKey{"first", "second", "third"},
		AsOf:   asOf,
	})
	require.Error(t, err)
	assert.True(t, IsStepError(err, ErrCodeCompute))
	assert.False(t, IsStepError(err, ErrCodeLoad))
	assert.ErrorIs(t, err, boom)

	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ir.AssetKey("second"), se.Asset)
	assert.Equal(t, "run-1", se.RunID)
	assert.Equal(t, "COMPUTE_FAILED: asset second (run=run-1): boom", se.Error())

	assert.Equal(t, []ir.AssetKey{"first"}, res.Steps)
	assert.Equal(t, []string{"first[]"}, partitionsOf(log.Records()))
}

func TestRunStrictLoadFailure(t *testing.T) {
	g := graph.MustNew(
		graph.Node{Key: "up", Partitions: partition.MustStatic("a", "b")},
		graph.Node{Key: "down", Partitions: partition.MustStatic("a", "b"), Deps: []graph.Dependency{{Upstream: "up"}}},
	)

	_, err := newTestRunner(g, NewMemoryIOManager(WithStrictLoads()), NewMemoryLog()).Run(context.Background(), Request{
		Assets:    []ir.AssetKey{"down"},
		Partition: single("a"),
		AsOf:      asOf,
	})
	assert.True(t, IsStepError(err, ErrCodeLoad))

	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ir.AssetKey("up"), se.Upstream)
	var mve *MissingValueError
	assert.True(t, errors.As(err, &mve))
}

func TestRunResolutionFailure(t *testing.T) {
	g := graph.MustNew(
		graph.Node{Key: "wide", Partitions: partition.MustStatic("a", "b", "c")},
		graph.Node{Key: "narrow", Partitions: partition.MustStatic("a", "b"), Deps: []graph.Dependency{{Upstream: "wide"}}},
	)

	_, err := newTestRunner(g, NewMemoryIOManager(), NewMemoryLog()).Run(context.Background(), Request{
		Assets:    []ir.AssetKey{"narrow"},
		Partition: single("a"),
		AsOf:      asOf,
	})
	assert.True(t, IsStepError(err, ErrCodeResolution))
	var ume *mapping.UnsupportedMappingError
	assert.True(t, errors.As(err, &ume))
}

func TestRunCancelled(t *testing.T) {
	g := graph.MustNew(graph.Node{Key: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestRunner(g, NewMemoryIOManager(), NewMemoryLog()).Run(ctx, Request{Assets: []ir.AssetKey{"a"}, AsOf: asOf})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Records)
}

func TestRunDefaultsAsOfToTimeSource(t *testing.T) {
	g := graph.MustNew(graph.Node{Key: "a"})
	res, err := newTestRunner(g, NewMemoryIOManager(), NewMemoryLog()).Run(context.Background(), Request{Assets: []ir.AssetKey{"a"}})
	require.NoError(t, err)
	assert.Equal(t, fixedTS, res.AsOf)
}

func TestRunConcurrentBackfill(t *testing.T) {
	defer goleak.VerifyNone(t)

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	g := graph.MustNew(
		graph.Node{Key: "up", Partitions: partition.MustStatic(keys...)},
		graph.Node{Key: "down", Partitions: partition.MustStatic(keys...), Deps: []graph.Dependency{{Upstream: "up"}}},
	)
	iom := NewMemoryIOManager(WithStrictLoads())
	log := NewMemoryLog()
	runner := NewRunner(g, iom, log, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	errs := make(chan error, len(keys))
	for _, k := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := runner.Run(context.Background(), Request{
				Assets:    []ir.AssetKey{"up", "down"},
				Partition: single(k),
				AsOf:      asOf,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records := log.Records()
	require.Len(t, records, 2*len(keys))
	seqs := make(map[int64]bool)
	for _, r := range records {
		assert.False(t, seqs[r.Seq], "seq %d reused", r.Seq)
		seqs[r.Seq] = true
	}
	for _, k := range keys {
		_, ok := iom.Value("down", k)
		assert.True(t, ok, "down[%s] not stored", k)
	}
}
