package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
	"github.com/roach88/assetgraph/internal/store"
)

// ImpactOptions holds flags for the impact command.
type ImpactOptions struct {
	*RootOptions
	Asset    string
	Strict   bool
	AsOf     string
	Database string
	Target   targetFlags
}

// ImpactResult lists the downstream partitions a rerun invalidates.
type ImpactResult struct {
	Source    string         `json:"source"`
	Selection string         `json:"selection"`
	Policy    string         `json:"policy"`
	AsOf      time.Time      `json:"as_of"`
	Impacted  []ImpactedItem `json:"impacted"`
}

// ImpactedItem is one invalidated asset.
type ImpactedItem struct {
	Asset     string `json:"asset"`
	Selection string `json:"selection"`
	Exact     bool   `json:"exact"`
}

// NewImpactCommand creates the impact command.
func NewImpactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImpactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "impact <defs-dir>",
		Short: "Show downstream partitions invalidated by a rerun",
		Long: `Walk the graph downstream from an asset and resolve, edge by edge, which
partitions depend on the rerun selection.

Mappings that only resolve upstream (trailing windows, most custom mappings)
cannot answer this. By default every partition of such a downstream asset is
assumed affected and the result is marked inexact; --strict fails instead.

Without --partition or --from/--to the whole asset is rerun.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpact(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Asset, "asset", "", "asset being rerun")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on mappings that cannot resolve downstream partitions")
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "evaluation instant (RFC 3339 or YYYY-MM-DD, default now)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database holding dynamic partitions (optional)")
	opts.Target.register(cmd)
	_ = cmd.MarkFlagRequired("asset")

	return cmd
}

func runImpact(opts *ImpactOptions, defsDir string, cmd *cobra.Command) error {
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

	sel := partition.Whole()
	if target != nil {
		sel = partition.Of(*target)
	}
	policy := graph.ImpactConservative
	if opts.Strict {
		policy = graph.ImpactStrict
	}

	impacted, err := g.Impact(ir.AssetKey(opts.Asset), sel, asOf, policy)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeResolve, err)
	}

	result := ImpactResult{
		Source:    opts.Asset,
		Selection: sel.String(),
		Policy:    policy.String(),
		AsOf:      asOf,
		Impacted:  make([]ImpactedItem, len(impacted)),
	}
	for i, imp := range impacted {
		result.Impacted[i] = ImpactedItem{Asset: string(imp.Asset), Selection: imp.Selection.String(), Exact: imp.Exact}
	}

	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "impact of %s %s (%s)\n", result.Source, result.Selection, result.Policy)
		if len(result.Impacted) == 0 {
			fmt.Fprintln(w, "  no downstream assets")
			return
		}
		for _, item := range result.Impacted {
			line := fmt.Sprintf("  %s %s", item.Asset, item.Selection)
			if !item.Exact {
				line += " (inexact)"
			}
			fmt.Fprintln(w, line)
		}
	})
}
