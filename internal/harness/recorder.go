package harness

import (
	"context"
	"sync"

	"github.com/roach88/assetgraph/internal/engine"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/resolution"
)

// recorder sits between the runner and storage and appends every load, store
// and record to the current run's trace. Loads are traced before they are
// attempted; stores and records only once they succeed.
type recorder struct {
	io   engine.IOManager
	sink engine.RecordSink

	mu  sync.Mutex
	run *RunTrace
}

var (
	_ engine.IOManager  = (*recorder)(nil)
	_ engine.RecordSink = (*recorder)(nil)
)

func newRecorder(io engine.IOManager, sink engine.RecordSink) *recorder {
	return &recorder{io: io, sink: sink}
}

// begin directs subsequent events to run.
func (r *recorder) begin(run *RunTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run = run
}

func (r *recorder) add(e TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		r.run.Events = append(r.run.Events, e)
	}
}

func (r *recorder) Load(ctx context.Context, in *resolution.InputContext) (any, error) {
	r.add(TraceEvent{
		Op:        OpLoad,
		Asset:     in.Consumer(),
		Upstream:  in.AssetKey(),
		Selection: in.Selection().String(),
	})
	return r.io.Load(ctx, in)
}

func (r *recorder) Store(ctx context.Context, out *resolution.OutputContext, value any) error {
	if err := r.io.Store(ctx, out, value); err != nil {
		return err
	}
	r.add(TraceEvent{Op: OpStore, Asset: out.AssetKey(), Selection: out.Selection().String()})
	return nil
}

func (r *recorder) AppendMaterialization(ctx context.Context, rec ir.MaterializationRecord) error {
	if err := r.sink.AppendMaterialization(ctx, rec); err != nil {
		return err
	}
	r.add(TraceEvent{Op: OpRecord, Asset: rec.AssetKey, Selection: partitionLabel(rec.PartitionKey), Seq: rec.Seq})
	return nil
}

// partitionLabel renders the partition key of a record; unpartitioned
// records are "all".
func partitionLabel(key string) string {
	if key == "" {
		return "all"
	}
	return key
}
