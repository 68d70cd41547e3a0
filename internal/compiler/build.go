package compiler

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/mapping"
	"github.com/roach88/assetgraph/internal/partition"
)

// Option configures Build.
type Option func(*builder)

// WithRegistry resolves custom mappings by name in r.
func WithRegistry(r *mapping.Registry) Option {
	return func(b *builder) {
		b.registry = r
	}
}

// WithDynamicPartitions seeds the dynamic definition name with keys. Keys of
// repeated calls for the same name are appended.
func WithDynamicPartitions(name string, keys ...string) Option {
	return func(b *builder) {
		b.seeds[name] = append(b.seeds[name], keys...)
	}
}

type builder struct {
	registry *mapping.Registry
	seeds    map[string][]string
	dynamic  map[string]*partition.Dynamic
}

// Build validates specs and assembles them into a graph.
//
// Every declaration is validated first and all problems are returned
// together as a *multierror.Error. Assets declaring dynamic partitions with
// the same name share one *partition.Dynamic, so keys added to it are seen
// by all of them.
func Build(specs []*ir.AssetSpec, opts ...Option) (*graph.Graph, error) {
	b := &builder{
		seeds:   make(map[string][]string),
		dynamic: make(map[string]*partition.Dynamic),
	}
	for _, opt := range opts {
		opt(b)
	}

	var result *multierror.Error
	for _, spec := range specs {
		for _, verr := range Validate(spec) {
			result = multierror.Append(result, verr)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	nodes := make([]graph.Node, 0, len(specs))
	for _, spec := range specs {
		node, err := b.node(spec)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		nodes = append(nodes, node)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return graph.New(nodes...)
}

func (b *builder) node(spec *ir.AssetSpec) (graph.Node, error) {
	node := graph.Node{
		Key:         spec.Key,
		Version:     spec.Version,
		Description: spec.Description,
	}
	if spec.Partitions != nil {
		def, err := b.definition(spec.Partitions)
		if err != nil {
			return graph.Node{}, fmt.Errorf("asset %s: %w", spec.Key, err)
		}
		node.Partitions = def
	}
	for _, d := range spec.Deps {
		dep := graph.Dependency{Upstream: d.Asset}
		if d.Mapping != nil {
			m, err := b.mapping(d.Mapping)
			if err != nil {
				return graph.Node{}, fmt.Errorf("asset %s: dependency on %s: %w", spec.Key, d.Asset, err)
			}
			dep.Mapping = m
		}
		node.Deps = append(node.Deps, dep)
	}
	return node, nil
}

func (b *builder) definition(p *ir.PartitionsSpec) (partition.Definition, error) {
	switch p.Kind {
	case ir.PartitionsStatic:
		return partition.NewStatic(p.Keys...)
	case ir.PartitionsTimeWindow:
		return newTimeWindow(p)
	case ir.PartitionsDynamic:
		if d, ok := b.dynamic[p.Name]; ok {
			return d, nil
		}
		d, err := partition.NewDynamic(p.Name, b.seeds[p.Name]...)
		if err != nil {
			return nil, err
		}
		b.dynamic[p.Name] = d
		return d, nil
	}
	return nil, fmt.Errorf("unknown partitions kind %q", p.Kind)
}

func (b *builder) mapping(m *ir.MappingSpec) (mapping.Mapping, error) {
	switch m.Kind {
	case ir.MappingIdentity:
		return mapping.Identity{}, nil
	case ir.MappingAllPartitions:
		return mapping.AllPartitions{}, nil
	case ir.MappingStatic:
		return mapping.NewStatic(m.Map)
	case ir.MappingFilter:
		return mapping.Filter{Value: m.Value, Separator: m.Separator}, nil
	case ir.MappingTrailingWindow:
		return mapping.TrailingWindow{Size: m.Size}, nil
	case ir.MappingTimeWindow:
		return mapping.TimeWindow{StartOffset: m.StartOffset, EndOffset: m.EndOffset}, nil
	case ir.MappingCustom:
		if b.registry == nil {
			return nil, fmt.Errorf("custom mapping %q: no mapping registry configured", m.Name)
		}
		cm, ok := b.registry.Lookup(m.Name)
		if !ok {
			return nil, fmt.Errorf("custom mapping %q is not registered", m.Name)
		}
		return cm, nil
	}
	return nil, fmt.Errorf("unknown mapping kind %q", m.Kind)
}

// Accepted layouts for time window start and end, tried in order.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02-15:04",
	time.DateOnly,
}

func newTimeWindow(p *ir.PartitionsSpec) (*partition.TimeWindow, error) {
	loc := time.UTC
	if p.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(p.Timezone); err != nil {
			return nil, fmt.Errorf("timezone %q: %w", p.Timezone, err)
		}
	}
	start, err := parseInstant(p.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	var end time.Time
	if p.End != "" {
		if end, err = parseInstant(p.End, loc); err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
	}
	return partition.NewTimeWindow(partition.TimeWindowConfig{
		Cadence:   partition.Cadence(p.Cadence),
		Start:     start,
		End:       end,
		Format:    p.Format,
		Location:  loc,
		EndOffset: p.EndOffset,
	})
}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("value is required")
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date or RFC 3339 time", s)
}
