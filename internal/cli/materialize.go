package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgraph/internal/engine"
	"github.com/roach88/assetgraph/internal/ir"
)

// MaterializeOptions holds flags for the materialize command.
type MaterializeOptions struct {
	*RootOptions
	Assets   []string
	Upstream bool
	AsOf     string
	Database string
	Target   targetFlags
}

// MaterializeResult summarizes one run.
type MaterializeResult struct {
	RunID   string                     `json:"run_id"`
	AsOf    time.Time                  `json:"as_of"`
	Steps   []ir.AssetKey              `json:"steps"`
	Records []ir.MaterializationRecord `json:"records"`
}

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MaterializeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "materialize <defs-dir>",
		Short: "Run assets and record their materializations",
		Long: `Execute a run and append one materialization record per stored partition
to the SQLite log.

Values are kept in memory for the duration of the command, so an upstream
asset is only loadable when it runs in the same invocation (use --upstream).
Records are durable; sequence numbers continue after the last one in the log.

Exit codes:
  0 - Run succeeded
  1 - Resolution or a step failed (records written before the failure remain)
  2 - Command error (bad flags, unreadable definitions, database errors)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterialize(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Assets, "asset", nil, "asset to run (repeatable)")
	cmd.Flags().BoolVar(&opts.Upstream, "upstream", false, "include every transitive upstream asset")
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "evaluation instant (RFC 3339 or YYYY-MM-DD, default now)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for materialization records")
	opts.Target.register(cmd)
	_ = cmd.MarkFlagRequired("asset")

	return cmd
}

func runMaterialize(opts *MaterializeOptions, defsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	target, err := opts.Target.keyRange()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	asOf, err := parseAsOf(opts.AsOf)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	g, err := loadGraph(ctx, defsDir, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err), err)
	}

	assets := assetKeys(opts.Assets)
	if opts.Upstream {
		if assets, err = g.WithUpstream(assets...); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeResolve, err)
		}
	}

	last, err := st.LastSeq(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	formatter.VerboseLog("Resuming after seq %d", last)

	runner := engine.NewRunner(g, engine.NewMemoryIOManager(), st,
		engine.WithClock(engine.NewClockAt(last)),
		engine.WithLogger(opts.Logger(cmd.ErrOrStderr())),
	)
	res, err := runner.Run(ctx, engine.Request{Assets: assets, Partition: target, AsOf: asOf})
	if res == nil {
		// Rejected before a run ID was assigned.
		return formatter.Fail(ExitFailure, ErrCodeResolve, err)
	}

	result := MaterializeResult{RunID: res.RunID, AsOf: res.AsOf, Steps: res.Steps, Records: res.Records}
	if result.Steps == nil {
		result.Steps = []ir.AssetKey{}
	}
	if result.Records == nil {
		result.Records = []ir.MaterializationRecord{}
	}
	if err != nil {
		return outputRunFailure(formatter, result, err)
	}
	return formatter.Emit(result, func(w io.Writer) {
		writeRunText(w, result)
		fmt.Fprintf(w, "✓ %d step(s), %d record(s)\n", len(result.Steps), len(result.Records))
	})
}

func writeRunText(w io.Writer, result MaterializeResult) {
	fmt.Fprintf(w, "run %s as_of=%s\n", result.RunID, result.AsOf.Format(time.RFC3339))
	for _, rec := range result.Records {
		fmt.Fprintf(w, "  seq=%d %s %s\n", rec.Seq, rec.AssetKey, recordPartition(rec))
	}
}

// outputRunFailure reports a failed run with whatever it recorded first.
func outputRunFailure(formatter *OutputFormatter, result MaterializeResult, err error) error {
	cliErr := &CLIError{Code: ErrCodeRunFailed, Message: err.Error()}
	var se *engine.StepError
	if errors.As(err, &se) {
		cliErr.Details = map[string]string{"step_code": string(se.Code), "asset": string(se.Asset)}
	}

	if formatter.Format == "json" {
		if encErr := formatter.encode(CLIResponse{Status: "error", Data: result, Error: cliErr}); encErr != nil {
			return encErr
		}
	} else {
		w := formatter.Writer
		writeRunText(w, result)
		fmt.Fprintf(w, "✗ Run failed: %v\n", err)
	}
	return WrapExitError(ExitFailure, ErrCodeRunFailed, err)
}

func recordPartition(rec ir.MaterializationRecord) string {
	if rec.Partitioned() {
		return rec.PartitionKey
	}
	return "-"
}
