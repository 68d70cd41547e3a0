package mapping

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/assetgraph/internal/partition"
)

// Static maps partitions through an explicit table keyed by upstream key,
// listing the downstream keys each upstream partition feeds.
type Static struct {
	table map[string][]string
}

// NewStatic builds a static mapping from upstream key to downstream keys.
func NewStatic(table map[string][]string) (*Static, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("static mapping: table is empty")
	}
	cp := make(map[string][]string, len(table))
	for up, downs := range table {
		if up == "" {
			return nil, fmt.Errorf("static mapping: empty upstream key")
		}
		if len(downs) == 0 {
			return nil, fmt.Errorf("static mapping: upstream key %q maps to nothing", up)
		}
		cp[up] = slices.Clone(downs)
	}
	return &Static{table: cp}, nil
}

// Kind implements Mapping.
func (*Static) Kind() string { return "static" }

// UpstreamRange implements Mapping.
func (m *Static) UpstreamRange(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	keys, err := partition.KeysInRange(downstreamDef, downstream, asOf)
	if err != nil {
		return partition.KeyRange{}, err
	}
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}

	var ups []string
	for _, up := range slices.Sorted(maps.Keys(m.table)) {
		for _, down := range m.table[up] {
			if _, ok := wanted[down]; ok {
				ups = append(ups, up)
				break
			}
		}
	}
	if len(ups) == 0 {
		return partition.KeyRange{}, unsupported(m.Kind(), downstreamDef, upstreamDef,
			"no upstream partition feeds %s", downstream)
	}
	return partition.Cover(upstreamDef, ups, asOf)
}

// DownstreamRange implements Inverse.
func (m *Static) DownstreamRange(upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	keys, err := partition.KeysInRange(upstreamDef, upstream, asOf)
	if err != nil {
		return partition.KeyRange{}, err
	}
	var downs []string
	for _, k := range keys {
		downs = append(downs, m.table[k]...)
	}
	if len(downs) == 0 {
		return partition.KeyRange{}, empty(m.Kind(), Backward, upstream)
	}
	return partition.Cover(downstreamDef, downs, asOf)
}

// DefaultSeparator joins the filter value and the downstream key.
const DefaultSeparator = "|"

// Filter maps a downstream key k to the composite upstream key
// Value + Separator + k. Upstream keys carrying any other prefix are ignored.
//
// With Value "southern", downstream "ringo" reads upstream "southern|ringo".
type Filter struct {
	Value     string
	Separator string
}

// Kind implements Mapping.
func (Filter) Kind() string { return "filter" }

func (m Filter) prefix() string {
	sep := m.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	return m.Value + sep
}

// UpstreamRange implements Mapping.
func (m Filter) UpstreamRange(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	keys, err := partition.KeysInRange(downstreamDef, downstream, asOf)
	if err != nil {
		return partition.KeyRange{}, err
	}
	ups := make([]string, len(keys))
	for i, k := range keys {
		ups[i] = m.prefix() + k
	}
	r, err := partition.Cover(upstreamDef, ups, asOf)
	if err != nil {
		return partition.KeyRange{}, unsupported(m.Kind(), downstreamDef, upstreamDef,
			"filter %q does not match the upstream keys: %v", m.Value, err)
	}
	return r, nil
}

// DownstreamRange implements Inverse.
func (m Filter) DownstreamRange(upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	keys, err := partition.KeysInRange(upstreamDef, upstream, asOf)
	if err != nil {
		return partition.KeyRange{}, err
	}
	var downs []string
	for _, k := range keys {
		if rest, ok := strings.CutPrefix(k, m.prefix()); ok {
			downs = append(downs, rest)
		}
	}
	if len(downs) == 0 {
		return partition.KeyRange{}, empty(m.Kind(), Backward, upstream)
	}
	return partition.Cover(downstreamDef, downs, asOf)
}
