package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgraph/internal/ir"
)

const pipelineCUE = `
asset: "raw/events": {
	description: "Event log, one partition per day"
	version:     "1.2.0"
	partitions: {kind: "time_window", cadence: "daily", start: "2024-01-01"}
}
asset: daily_summary: {
	partitions: {kind: "time_window", cadence: "daily", start: "2024-01-01"}
	deps: "raw/events": mapping: {kind: "time_window", start_offset: -1}
}
asset: regions: {
	partitions: {kind: "static", keys: ["eu", "us"]}
	deps: daily_summary: mapping: {kind: "all_partitions"}
	deps: config: {}
}
asset: config: {}
`

func compileString(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

func TestCompileAssetsPipeline(t *testing.T) {
	specs, err := CompileAssets(compileString(t, pipelineCUE))
	require.NoError(t, err)

	want := []*ir.AssetSpec{
		{
			Key:         "raw/events",
			Description: "Event log, one partition per day",
			Version:     "1.2.0",
			Partitions:  &ir.PartitionsSpec{Kind: "time_window", Cadence: "daily", Start: "2024-01-01"},
		},
		{
			Key:        "daily_summary",
			Partitions: &ir.PartitionsSpec{Kind: "time_window", Cadence: "daily", Start: "2024-01-01"},
			Deps: []ir.DependencySpec{
				{Asset: "raw/events", Mapping: &ir.MappingSpec{Kind: "time_window", StartOffset: -1}},
			},
		},
		{
			Key:        "regions",
			Partitions: &ir.PartitionsSpec{Kind: "static", Keys: []string{"eu", "us"}},
			Deps: []ir.DependencySpec{
				{Asset: "daily_summary", Mapping: &ir.MappingSpec{Kind: "all_partitions"}},
				{Asset: "config"},
			},
		},
		{Key: "config"},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Errorf("CompileAssets() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileAssetsNone(t *testing.T) {
	specs, err := CompileAssets(compileString(t, `other: 1`))
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestCompileAssetKeyFromPath(t *testing.T) {
	v := compileString(t, pipelineCUE)

	spec, err := CompileAsset(v.LookupPath(cue.MakePath(cue.Str("asset"), cue.Str("raw/events"))))
	require.NoError(t, err)
	assert.Equal(t, ir.AssetKey("raw/events"), spec.Key)
	assert.True(t, spec.Partitioned())

	spec, err = CompileAsset(v.LookupPath(cue.ParsePath("asset.config")))
	require.NoError(t, err)
	assert.Equal(t, ir.AssetKey("config"), spec.Key)
	assert.False(t, spec.Partitioned())
}

func TestCompileStaticMappingTable(t *testing.T) {
	specs, err := CompileAssets(compileString(t, `
asset: hemispheres: partitions: {kind: "static", keys: ["north", "south"]}
asset: countries: {
	partitions: {kind: "static", keys: ["no", "se", "za"]}
	deps: hemispheres: mapping: {
		kind: "static"
		map: {north: ["no", "se"], south: ["za"]}
	}
}
`))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, map[string][]string{"north": {"no", "se"}, "south": {"za"}}, specs[1].Deps[0].Mapping.Map)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "unknown asset field",
			src:   `asset: a: {purpose: "x"}`,
			field: "asset.a.purpose",
		},
		{
			name:  "unknown partitions field",
			src:   `asset: a: partitions: {kind: "static", keys: ["x"], cadense: "daily"}`,
			field: "asset.a.partitions.cadense",
		},
		{
			name:  "unknown mapping field",
			src:   `asset: a: {}, asset: b: deps: a: mapping: {kind: "identity", offset: 1}`,
			field: "asset.b.deps.a.mapping.offset",
		},
		{
			name:  "unknown dependency field",
			src:   `asset: a: {}, asset: b: deps: a: {partitions: 1}`,
			field: "asset.b.deps.a.partitions",
		},
		{
			name:  "deps not a struct",
			src:   `asset: b: deps: ["a"]`,
			field: "asset.b.deps",
		},
		{
			name:  "description not a string",
			src:   `asset: a: description: 3`,
			field: "asset.a.description",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileAssets(compileString(t, tt.src))
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "asset.a.version", Message: "must be a string"}
	assert.Equal(t, "asset.a.version: must be a string", err.Error())
}
