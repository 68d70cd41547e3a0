package compiler

import (
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/mapping"
	"github.com/roach88/assetgraph/internal/partition"
)

var asOf = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func TestBuildPipeline(t *testing.T) {
	specs, err := CompileAssets(compileString(t, pipelineCUE))
	require.NoError(t, err)

	g, err := Build(specs)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	node, ok := g.Node("raw/events")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", node.Version)
	assert.Equal(t, "Event log, one partition per day", node.Description)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, node.Partitions.Keys(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))

	sel, err := g.UpstreamSelection("daily_summary", "raw/events", partition.Single("2024-01-05"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-04..2024-01-05", sel.String())

	sel, err = g.UpstreamSelection("regions", "daily_summary", partition.Single("eu"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01..2024-01-09", sel.String())

	sel, err = g.UpstreamSelection("regions", "config", partition.Single("eu"), asOf)
	require.NoError(t, err)
	assert.True(t, sel.IsWhole())
}

func TestBuildCollectsValidationErrors(t *testing.T) {
	_, err := Build([]*ir.AssetSpec{
		{Key: "a", Version: "one"},
		{Key: "b", Partitions: &ir.PartitionsSpec{Kind: ir.PartitionsStatic}},
	})
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)

	var verr ValidationError
	require.True(t, errors.As(merr.Errors[0], &verr))
	assert.Equal(t, ir.AssetKey("a"), verr.Asset)
	assert.Equal(t, ErrInvalidVersion, verr.Code)
	require.True(t, errors.As(merr.Errors[1], &verr))
	assert.Equal(t, ErrInvalidPartitions, verr.Code)
}

func TestBuildReportsGraphErrors(t *testing.T) {
	_, err := Build([]*ir.AssetSpec{
		{Key: "a", Deps: []ir.DependencySpec{{Asset: "ghost"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildSharesDynamicDefinitions(t *testing.T) {
	dyn := &ir.PartitionsSpec{Kind: ir.PartitionsDynamic, Name: "customers"}
	g, err := Build([]*ir.AssetSpec{
		{Key: "orders", Partitions: dyn},
		{Key: "invoices", Partitions: dyn, Deps: []ir.DependencySpec{{Asset: "orders"}}},
	}, WithDynamicPartitions("customers", "acme"), WithDynamicPartitions("customers", "globex"))
	require.NoError(t, err)

	orders, _ := g.Node("orders")
	invoices, _ := g.Node("invoices")
	require.Same(t, orders.Partitions, invoices.Partitions)
	assert.Equal(t, []string{"acme", "globex"}, invoices.Partitions.Keys(asOf))

	d := orders.Partitions.(*partition.Dynamic)
	_, err = d.Add("initech")
	require.NoError(t, err)
	sel, err := g.UpstreamSelection("invoices", "orders", partition.Single("initech"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "initech", sel.String())
}

func TestBuildCustomMappings(t *testing.T) {
	specs := []*ir.AssetSpec{
		{Key: "up", Partitions: &ir.PartitionsSpec{Kind: ir.PartitionsStatic, Keys: []string{"x", "y"}}},
		{
			Key:        "down",
			Partitions: &ir.PartitionsSpec{Kind: ir.PartitionsStatic, Keys: []string{"x", "y"}},
			Deps:       []ir.DependencySpec{{Asset: "up", Mapping: &ir.MappingSpec{Kind: ir.MappingCustom, Name: "everything"}}},
		},
	}

	_, err := Build(specs)
	assert.ErrorContains(t, err, `custom mapping "everything": no mapping registry configured`)

	reg := mapping.NewRegistry()
	_, err = Build(specs, WithRegistry(reg))
	assert.ErrorContains(t, err, `custom mapping "everything" is not registered`)

	require.NoError(t, reg.Register("everything", mapping.AllPartitions{}))
	g, err := Build(specs, WithRegistry(reg))
	require.NoError(t, err)
	sel, err := g.UpstreamSelection("down", "up", partition.Single("x"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "x..y", sel.String())
}

func TestBuildMappingKinds(t *testing.T) {
	static := func(keys ...string) *ir.PartitionsSpec {
		return &ir.PartitionsSpec{Kind: ir.PartitionsStatic, Keys: keys}
	}
	g, err := Build([]*ir.AssetSpec{
		{Key: "hemisphere_country", Partitions: static("north|no", "north|se", "south|za")},
		{Key: "countries", Partitions: static("no", "se", "za"), Deps: []ir.DependencySpec{
			{Asset: "hemisphere_country", Mapping: &ir.MappingSpec{Kind: ir.MappingFilter, Value: "north"}},
		}},
		{Key: "numbers", Partitions: static("1", "2", "3", "4")},
		{Key: "rolling", Partitions: static("1", "2", "3", "4"), Deps: []ir.DependencySpec{
			{Asset: "numbers", Mapping: &ir.MappingSpec{Kind: ir.MappingTrailingWindow, Size: 2}},
		}},
		{Key: "by_hemisphere", Partitions: static("north", "south"), Deps: []ir.DependencySpec{
			{Asset: "countries", Mapping: &ir.MappingSpec{Kind: ir.MappingStatic, Map: map[string][]string{
				"no": {"north"}, "se": {"north"}, "za": {"south"},
			}}},
		}},
	})
	require.NoError(t, err)

	sel, err := g.UpstreamSelection("countries", "hemisphere_country", partition.Single("se"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "north|se", sel.String())

	sel, err = g.UpstreamSelection("rolling", "numbers", partition.Single("3"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "2..3", sel.String())

	sel, err = g.UpstreamSelection("by_hemisphere", "countries", partition.Single("north"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "no..se", sel.String())
}

func TestParseInstant(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, ny)},
		{"2024-01-01-13:00", time.Date(2024, 1, 1, 13, 0, 0, 0, ny)},
		{"2024-01-01T13:00", time.Date(2024, 1, 1, 13, 0, 0, 0, ny)},
		{"2024-01-01T13:00:00Z", time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseInstant(tt.in, ny)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err = parseInstant("", ny)
	assert.Error(t, err)
}
