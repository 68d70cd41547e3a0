package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgraph/internal/store"
)

// PartitionsOptions holds flags shared by the partitions subcommands.
type PartitionsOptions struct {
	*RootOptions
	Database string
}

// DynamicPartitions is the key list of one dynamic definition.
type DynamicPartitions struct {
	Name  string   `json:"name"`
	Keys  []string `json:"keys"`
	Added []string `json:"added,omitempty"`
}

// NewPartitionsCommand creates the partitions command and its subcommands.
func NewPartitionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PartitionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "Manage dynamic partition keys",
		Long: `Add and list the keys of dynamic partition definitions.

Keys are stored in the SQLite log and keep the order they were first added.
Commands given the same --db see them when building the graph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database holding dynamic partitions")

	cmd.AddCommand(&cobra.Command{
		Use:           "add <name> <key>...",
		Short:         "Append keys to a dynamic definition",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartitionsAdd(opts, args[0], args[1:], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "list [name]",
		Short:         "List dynamic definitions and their keys",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return runPartitionsList(opts, name, cmd)
		},
	})

	return cmd
}

func runPartitionsAdd(opts *PartitionsOptions, name string, keys []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	added, err := st.AddDynamicPartitions(ctx, name, keys...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	all, err := st.ReadDynamicPartitions(ctx, name)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}

	result := DynamicPartitions{Name: name, Keys: all, Added: added}
	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Added %d key(s) to %s (%d total)\n", len(added), name, len(all))
		if skipped := len(keys) - len(added); skipped > 0 {
			fmt.Fprintf(w, "  %d key(s) already present\n", skipped)
		}
	})
}

func runPartitionsList(opts *PartitionsOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	defs, err := listDynamic(cmd, st, name)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}

	return formatter.Emit(defs, func(w io.Writer) {
		if len(defs) == 0 {
			fmt.Fprintln(w, "No dynamic partitions.")
			return
		}
		for _, d := range defs {
			fmt.Fprintf(w, "%s: %s\n", d.Name, strings.Join(d.Keys, ", "))
		}
	})
}

// listDynamic reads one definition, or every definition when name is empty.
func listDynamic(cmd *cobra.Command, st *store.Store, name string) ([]DynamicPartitions, error) {
	ctx := cmd.Context()
	names := []string{name}
	if name == "" {
		var err error
		if names, err = st.DynamicPartitionNames(ctx); err != nil {
			return nil, err
		}
	}

	defs := make([]DynamicPartitions, 0, len(names))
	for _, n := range names {
		keys, err := st.ReadDynamicPartitions(ctx, n)
		if err != nil {
			return nil, err
		}
		defs = append(defs, DynamicPartitions{Name: n, Keys: keys})
	}
	return defs, nil
}
