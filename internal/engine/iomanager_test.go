package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
	"github.com/roach88/assetgraph/internal/resolution"
)

func ioGraph() *graph.Graph {
	keys := []string{"a", "b", "c"}
	return graph.MustNew(
		graph.Node{Key: "parts", Partitions: partition.MustStatic(keys...)},
		graph.Node{Key: "copy", Partitions: partition.MustStatic(keys...), Deps: []graph.Dependency{{Upstream: "parts"}}},
		graph.Node{Key: "whole", Deps: []graph.Dependency{{Upstream: "parts"}}},
	)
}

func stepContext(t *testing.T, asset ir.AssetKey, target *partition.KeyRange) *resolution.Context {
	t.Helper()
	p, err := resolution.NewPlan(ioGraph(), []ir.AssetKey{asset}, target, asOf)
	require.NoError(t, err)
	c, err := p.NewContext(asset)
	require.NoError(t, err)
	return c
}

func storeParts(t *testing.T, m *MemoryIOManager, target *partition.KeyRange, value any) {
	t.Helper()
	require.NoError(t, m.Store(context.Background(), stepContext(t, "parts", target).OutputContext(), value))
}

func loadParts(t *testing.T, m *MemoryIOManager, consumer ir.AssetKey, target *partition.KeyRange) (any, error) {
	t.Helper()
	in, err := stepContext(t, consumer, target).InputContext("parts")
	require.NoError(t, err)
	return m.Load(context.Background(), in)
}

func TestMemoryIOManagerSingleKey(t *testing.T) {
	m := NewMemoryIOManager()
	storeParts(t, m, single("b"), "B")

	v, err := loadParts(t, m, "copy", single("b"))
	require.NoError(t, err)
	assert.Equal(t, "B", v)

	v, err = loadParts(t, m, "copy", single("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMemoryIOManagerRangeStoreAndLoad(t *testing.T) {
	m := NewMemoryIOManager()
	storeParts(t, m, &partition.KeyRange{Start: "a", End: "b"}, 1)

	for _, k := range []string{"a", "b"} {
		v, ok := m.Value("parts", k)
		require.True(t, ok)
		assert.Equal(t, 1, v)
	}
	_, ok := m.Value("parts", "c")
	assert.False(t, ok)

	v, err := loadParts(t, m, "copy", &partition.KeyRange{Start: "a", End: "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 1}, v)
}

func TestMemoryIOManagerWholeLoadOfPartitionedAsset(t *testing.T) {
	m := NewMemoryIOManager()

	v, err := loadParts(t, m, "whole", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	storeParts(t, m, single("a"), "A")
	storeParts(t, m, single("c"), "C")

	v, err = loadParts(t, m, "whole", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "A", "c": "C"}, v)
}

func TestMemoryIOManagerWholeStore(t *testing.T) {
	m := NewMemoryIOManager()
	require.NoError(t, m.Store(context.Background(), stepContext(t, "whole", nil).OutputContext(), 42))

	v, ok := m.Value("whole", "")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestMemoryIOManagerStrict(t *testing.T) {
	m := NewMemoryIOManager(WithStrictLoads())
	storeParts(t, m, single("a"), "A")

	_, err := loadParts(t, m, "copy", single("b"))
	var mve *MissingValueError
	require.True(t, errors.As(err, &mve))
	assert.Equal(t, `no stored value for asset parts partition "b"`, mve.Error())

	_, err = loadParts(t, m, "copy", &partition.KeyRange{Start: "a", End: "b"})
	require.True(t, errors.As(err, &mve))
	assert.Equal(t, "b", mve.PartitionKey)

	empty := NewMemoryIOManager(WithStrictLoads())
	_, err = loadParts(t, empty, "whole", nil)
	require.True(t, errors.As(err, &mve))
	assert.Equal(t, "no stored value for asset parts", mve.Error())
}
