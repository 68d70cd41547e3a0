package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database  string
	Asset     string
	Partition string
	Run       string
	Latest    bool
}

// HistoryResult lists materialization records oldest first.
type HistoryResult struct {
	Records []ir.MaterializationRecord `json:"records"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the materialization log",
		Long: `List materialization records from the SQLite log in seq order.

Select records of one asset (optionally one partition, or only the newest
record of each partition with --latest) or every record of one run.

Examples:
  assetgraph history --db runs.db --asset daily_summary
  assetgraph history --db runs.db --asset daily_summary --partition 2024-01-05
  assetgraph history --db runs.db --asset daily_summary --latest
  assetgraph history --db runs.db --run 0192f3c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for materialization records")
	cmd.Flags().StringVar(&opts.Asset, "asset", "", "asset to list")
	cmd.Flags().StringVar(&opts.Partition, "partition", "", "partition key (with --asset)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run ID to list")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "only the newest record per partition (with --asset)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if err := opts.check(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := opts.query(ctx, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}

	return formatter.Emit(HistoryResult{Records: records}, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintln(w, "No records.")
			return
		}
		for _, rec := range records {
			fmt.Fprintf(w, "%6d  %-20s %-12s %s %s\n",
				rec.Seq, rec.AssetKey, recordPartition(rec), rec.RunID, rec.Timestamp.Format("2006-01-02T15:04:05Z"))
		}
	})
}

func (o *HistoryOptions) check() error {
	switch {
	case o.Asset == "" && o.Run == "":
		return errors.New("one of --asset or --run is required")
	case o.Asset != "" && o.Run != "":
		return errors.New("--asset and --run are mutually exclusive")
	case o.Run != "" && (o.Partition != "" || o.Latest):
		return errors.New("--partition and --latest require --asset")
	case o.Partition != "" && o.Latest:
		return errors.New("--partition and --latest are mutually exclusive")
	}
	return nil
}

func (o *HistoryOptions) query(ctx context.Context, st *store.Store) ([]ir.MaterializationRecord, error) {
	asset := ir.AssetKey(o.Asset)
	switch {
	case o.Run != "":
		return st.ReadRun(ctx, o.Run)
	case o.Latest:
		return st.LatestPerPartition(ctx, asset)
	case o.Partition != "":
		return st.ReadPartitionHistory(ctx, asset, o.Partition)
	}
	return st.ReadAssetHistory(ctx, asset)
}
