package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgraph/internal/resolution"
	"github.com/roach88/assetgraph/internal/store"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Assets   []string
	Upstream bool
	AsOf     string
	Database string
	Target   targetFlags
}

// PlanResult is what a run would read and write.
type PlanResult struct {
	AsOf      time.Time             `json:"as_of"`
	Partition string                `json:"partition"`
	Steps     []resolution.StepPlan `json:"steps"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <defs-dir>",
		Short: "Explain what a run would read and write",
		Long: `Resolve a run without executing it.

Prints the steps in dependency order with the selection each step stores and,
for every dependency, the mapping and the upstream selection it loads.

Examples:
  assetgraph plan ./assets --asset daily_summary --partition 2024-01-05
  assetgraph plan ./assets --asset daily_summary --upstream --from 2024-01-01 --to 2024-01-07
  assetgraph plan ./assets --asset regions --partition eu --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Assets, "asset", nil, "asset to run (repeatable)")
	cmd.Flags().BoolVar(&opts.Upstream, "upstream", false, "include every transitive upstream asset")
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "evaluation instant (RFC 3339 or YYYY-MM-DD, default now)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database holding dynamic partitions (optional)")
	opts.Target.register(cmd)
	_ = cmd.MarkFlagRequired("asset")

	return cmd
}

func runPlan(opts *PlanOptions, defsDir string, cmd *cobra.Command) error {
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

	var st *store.Store
	if opts.Database != "" {
		if st, err = openStore(formatter, opts.Database); err != nil {
			return err
		}
		defer st.Close()
	}

	g, err := loadGraph(ctx, defsDir, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err), err)
	}

	selection := assetKeys(opts.Assets)
	if opts.Upstream {
		if selection, err = g.WithUpstream(selection...); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeResolve, err)
		}
	}

	plan, err := resolution.NewPlan(g, selection, target, asOf)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeResolve, err)
	}
	steps, err := plan.Explain()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeResolve, err)
	}

	result := PlanResult{AsOf: asOf, Partition: "none", Steps: steps}
	if target != nil {
		result.Partition = target.String()
	}
	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "plan as_of=%s partition=%s\n", asOf.Format(time.RFC3339), result.Partition)
		for _, step := range steps {
			fmt.Fprintf(w, "  %s %s\n", step.Asset, step.Target)
			for _, in := range step.Inputs {
				fmt.Fprintf(w, "    <- %s [%s] %s\n", in.Upstream, in.Mapping, in.Selection)
			}
		}
	})
}
