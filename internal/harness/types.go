package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/assetgraph/internal/ir"
)

// Trace event operations.
const (
	OpLoad   = "load"
	OpStore  = "store"
	OpRecord = "record"
)

// TraceEvent is one storage interaction observed during a run.
type TraceEvent struct {
	Op    string      `json:"op"`
	Asset ir.AssetKey `json:"asset"`

	// Upstream is the loaded asset of a load event; Asset is the consumer.
	Upstream ir.AssetKey `json:"upstream,omitempty"`

	// Selection is "all", a key or a "start..end" range.
	Selection string `json:"selection"`

	// Seq is set on record events.
	Seq int64 `json:"seq,omitempty"`
}

// RunTrace is everything one run step did, in order.
type RunTrace struct {
	// RunID is "-" when the run was rejected before a run ID was assigned.
	RunID     string       `json:"run_id"`
	Assets    []string     `json:"assets"`
	Partition string       `json:"partition"`
	Events    []TraceEvent `json:"events"`
	Steps     int          `json:"steps"`
	Records   int          `json:"records"`

	// Error summarizes the run's error, if any. It excludes run IDs and
	// messages so traces stay stable when wording changes.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every run met its expectation and every assertion held.
	Pass bool `json:"pass"`

	Runs []RunTrace `json:"runs"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []RunTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the events of every run, in order.
func (r *Result) Events() []TraceEvent {
	var out []TraceEvent
	for _, run := range r.Runs {
		out = append(out, run.Events...)
	}
	return out
}

func (e TraceEvent) String() string {
	switch e.Op {
	case OpLoad:
		return fmt.Sprintf("load %s <- %s %s", e.Asset, e.Upstream, e.Selection)
	case OpRecord:
		return fmt.Sprintf("record %s %s seq=%d", e.Asset, e.Selection, e.Seq)
	}
	return fmt.Sprintf("%s %s %s", e.Op, e.Asset, e.Selection)
}

// RenderTrace renders the runs of a scenario as stable text for golden
// comparison.
func RenderTrace(name string, runs []RunTrace) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	for _, run := range runs {
		fmt.Fprintf(&b, "run %s assets=%s partition=%s\n", run.RunID, strings.Join(run.Assets, ","), run.Partition)
		for _, e := range run.Events {
			fmt.Fprintf(&b, "  %s\n", e)
		}
		if run.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", run.Error)
			continue
		}
		fmt.Fprintf(&b, "  ok steps=%d records=%d\n", run.Steps, run.Records)
	}
	return b.String()
}
