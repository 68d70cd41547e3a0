package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/assetgraph/internal/compiler"
	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/harness"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
	"github.com/roach88/assetgraph/internal/store"
)

// targetFlags selects a partition key or range.
type targetFlags struct {
	Partition string
	From      string
	To        string
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.Partition, "partition", "", "partition key")
	cmd.Flags().StringVar(&t.From, "from", "", "first partition key of a range (with --to)")
	cmd.Flags().StringVar(&t.To, "to", "", "last partition key of a range (with --from)")
}

// keyRange returns the selected range, or nil when no flag was given.
func (t *targetFlags) keyRange() (*partition.KeyRange, error) {
	if t.Partition != "" && (t.From != "" || t.To != "") {
		return nil, fmt.Errorf("--partition and --from/--to are mutually exclusive")
	}
	if (t.From == "") != (t.To == "") {
		return nil, fmt.Errorf("--from and --to must be given together")
	}
	switch {
	case t.Partition != "":
		r := partition.Single(t.Partition)
		return &r, nil
	case t.From != "":
		return &partition.KeyRange{Start: t.From, End: t.To}, nil
	}
	return nil, nil
}

// parseAsOf parses --as-of. Empty means now.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	return harness.ParseAsOf(s)
}

func assetKeys(names []string) []ir.AssetKey {
	keys := make([]ir.AssetKey, len(names))
	for i, n := range names {
		keys[i] = ir.AssetKey(n)
	}
	return keys
}

// loadGraph compiles the declarations in dir and builds the graph. Dynamic
// partitions are seeded from st when it is not nil.
//
// Load errors are reported together as a *multierror.Error.
func loadGraph(ctx context.Context, dir string, st *store.Store) (*graph.Graph, error) {
	loaded, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, multierror.Append(nil, errs...)
	}

	var opts []compiler.Option
	if st != nil {
		names, err := st.DynamicPartitionNames(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			keys, err := st.ReadDynamicPartitions(ctx, name)
			if err != nil {
				return nil, err
			}
			opts = append(opts, compiler.WithDynamicPartitions(name, keys...))
		}
	}
	return compiler.Build(loaded.Assets, opts...)
}

// loadErrorCode returns the code of the first load error in err, or
// ErrCodeGraph when err is not a load failure.
func loadErrorCode(err error) string {
	var le *compiler.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ErrCodeGraph
}

// openStore opens the database at path, reporting failures as command errors.
func openStore(f *OutputFormatter, path string) (*store.Store, error) {
	if path == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeUsage, errors.New("--db is required"))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	return st, nil
}
