// Package graph holds the asset dependency graph and resolves partition
// ranges across its edges.
//
// A Graph is immutable once built. New validates the whole declaration set at
// once and reports every problem it finds, not just the first.
//
// Resolution follows three rules per edge:
//  1. If the downstream asset is unpartitioned, the upstream is read whole
//  2. Else if the upstream asset is unpartitioned, it is read whole
//  3. Else the edge's mapping (identity when none) translates the range
package graph

import (
	"container/heap"
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-multierror"

	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/mapping"
	"github.com/roach88/assetgraph/internal/partition"
)

// Dependency is an edge from the owning node to an upstream asset.
type Dependency struct {
	Upstream ir.AssetKey

	// Mapping translates partition ranges across the edge. Nil means identity.
	Mapping mapping.Mapping
}

// Node is one asset in the graph.
type Node struct {
	Key ir.AssetKey

	// Partitions is nil for unpartitioned assets.
	Partitions partition.Definition

	Deps []Dependency

	// Version is the asset's code version in semver form. Optional.
	Version string

	Description string
}

// Partitioned reports whether the node has a partitions definition.
func (n Node) Partitioned() bool {
	return n.Partitions != nil
}

// Dependency returns the edge to upstream, if declared.
func (n Node) Dependency(upstream ir.AssetKey) (Dependency, bool) {
	for _, d := range n.Deps {
		if d.Upstream == upstream {
			return d, true
		}
	}
	return Dependency{}, false
}

// Graph is a validated, acyclic set of asset nodes.
type Graph struct {
	nodes      []Node
	index      map[ir.AssetKey]int
	downstream map[ir.AssetKey][]ir.AssetKey
	rank       map[ir.AssetKey]int
}

// New validates nodes and builds a graph.
//
// All problems are collected into a single *multierror.Error: invalid or
// duplicate keys, invalid versions, unknown upstreams, self and duplicate
// dependencies, and cycles.
func New(nodes ...Node) (*Graph, error) {
	var result *multierror.Error

	index := make(map[ir.AssetKey]int, len(nodes))
	for i, n := range nodes {
		if err := n.Key.Validate(); err != nil {
			result = multierror.Append(result, &DefinitionError{Asset: n.Key, Field: "key", Message: err.Error()})
			continue
		}
		if _, dup := index[n.Key]; dup {
			result = multierror.Append(result, &DefinitionError{Asset: n.Key, Message: "declared more than once"})
			continue
		}
		index[n.Key] = i
		if n.Version != "" {
			if _, err := semver.NewVersion(n.Version); err != nil {
				result = multierror.Append(result, &DefinitionError{
					Asset:   n.Key,
					Field:   "version",
					Message: fmt.Sprintf("%q is not a semantic version: %v", n.Version, err),
				})
			}
		}
	}

	for _, n := range nodes {
		seen := make(map[ir.AssetKey]bool, len(n.Deps))
		for _, d := range n.Deps {
			switch {
			case d.Upstream == n.Key:
				result = multierror.Append(result, &DefinitionError{Asset: n.Key, Field: "deps", Message: "asset depends on itself"})
			case seen[d.Upstream]:
				result = multierror.Append(result, &DefinitionError{
					Asset: n.Key, Field: "deps", Message: fmt.Sprintf("dependency on %s declared more than once", d.Upstream),
				})
			default:
				if _, ok := index[d.Upstream]; !ok {
					result = multierror.Append(result, &DefinitionError{
						Asset: n.Key, Field: "deps", Message: fmt.Sprintf("unknown upstream asset %s", d.Upstream),
					})
				}
			}
			seen[d.Upstream] = true
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	for _, c := range findCycles(nodes) {
		result = multierror.Append(result, c)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	g := &Graph{
		nodes:      make([]Node, len(nodes)),
		index:      index,
		downstream: make(map[ir.AssetKey][]ir.AssetKey),
	}
	for i, n := range nodes {
		n.Deps = slices.Clone(n.Deps)
		g.nodes[i] = n
		for _, d := range n.Deps {
			g.downstream[d.Upstream] = append(g.downstream[d.Upstream], n.Key)
		}
	}
	g.rank = g.topoRank()
	return g, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when nodes are known to be valid.
func MustNew(nodes ...Node) *Graph {
	g, err := New(nodes...)
	if err != nil {
		panic(err)
	}
	return g
}

// declHeap orders ready nodes by declaration index.
type declHeap []int

func (h declHeap) Len() int           { return len(h) }
func (h declHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h declHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *declHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *declHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// topoRank assigns each node its position in a topological order. Among
// nodes that are ready at the same time, the one declared first goes first.
func (g *Graph) topoRank() map[ir.AssetKey]int {
	pending := make([]int, len(g.nodes))
	ready := &declHeap{}
	for i, n := range g.nodes {
		pending[i] = len(n.Deps)
		if pending[i] == 0 {
			heap.Push(ready, i)
		}
	}

	rank := make(map[ir.AssetKey]int, len(g.nodes))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		key := g.nodes[i].Key
		rank[key] = len(rank)
		for _, down := range g.downstream[key] {
			j := g.index[down]
			pending[j]--
			if pending[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}
	return rank
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node for key.
func (g *Graph) Node(key ir.AssetKey) (Node, bool) {
	i, ok := g.index[key]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

func (g *Graph) mustNode(key ir.AssetKey) (Node, error) {
	n, ok := g.Node(key)
	if !ok {
		return Node{}, &UnknownAssetError{Asset: key}
	}
	return n, nil
}

// Keys returns every asset key in declaration order.
func (g *Graph) Keys() []ir.AssetKey {
	keys := make([]ir.AssetKey, len(g.nodes))
	for i, n := range g.nodes {
		keys[i] = n.Key
	}
	return keys
}

// Dependencies returns the upstream edges of key in declaration order.
func (g *Graph) Dependencies(key ir.AssetKey) []Dependency {
	n, ok := g.Node(key)
	if !ok {
		return nil
	}
	return slices.Clone(n.Deps)
}

// Downstream returns the assets that directly depend on key.
func (g *Graph) Downstream(key ir.AssetKey) []ir.AssetKey {
	return slices.Clone(g.downstream[key])
}

// TopoOrder sorts keys so that every asset comes after its dependencies.
// The order is deterministic.
func (g *Graph) TopoOrder(keys []ir.AssetKey) ([]ir.AssetKey, error) {
	out := make([]ir.AssetKey, 0, len(keys))
	seen := make(map[ir.AssetKey]bool, len(keys))
	for _, k := range keys {
		if _, ok := g.index[k]; !ok {
			return nil, &UnknownAssetError{Asset: k}
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	slices.SortFunc(out, func(a, b ir.AssetKey) int {
		return g.rank[a] - g.rank[b]
	})
	return out, nil
}

// WithUpstream returns targets plus all of their transitive dependencies,
// in topological order.
func (g *Graph) WithUpstream(targets ...ir.AssetKey) ([]ir.AssetKey, error) {
	seen := make(map[ir.AssetKey]bool)
	var visit func(ir.AssetKey)
	visit = func(k ir.AssetKey) {
		if seen[k] {
			return
		}
		seen[k] = true
		for _, d := range g.nodes[g.index[k]].Deps {
			visit(d.Upstream)
		}
	}
	for _, t := range targets {
		if _, ok := g.index[t]; !ok {
			return nil, &UnknownAssetError{Asset: t}
		}
		visit(t)
	}
	keys := make([]ir.AssetKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return g.TopoOrder(keys)
}

// WithDownstream returns source plus every asset that transitively depends
// on it, in topological order.
func (g *Graph) WithDownstream(source ir.AssetKey) ([]ir.AssetKey, error) {
	if _, ok := g.index[source]; !ok {
		return nil, &UnknownAssetError{Asset: source}
	}
	seen := map[ir.AssetKey]bool{}
	queue := []ir.AssetKey{source}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if seen[k] {
			continue
		}
		seen[k] = true
		queue = append(queue, g.downstream[k]...)
	}
	keys := make([]ir.AssetKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return g.TopoOrder(keys)
}
