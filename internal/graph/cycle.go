package graph

import (
	"github.com/roach88/assetgraph/internal/ir"
)

// findCycles returns one CycleError per strongly connected component that
// contains a cycle. Self-dependencies are reported separately by New and are
// skipped here.
//
// The algorithm:
//  1. Walk nodes in declaration order with Tarjan's algorithm
//  2. Keep every SCC with more than one member
//  3. Reconstruct a readable path through each SCC
func findCycles(nodes []Node) []*CycleError {
	edges := make(map[ir.AssetKey][]ir.AssetKey, len(nodes))
	for _, n := range nodes {
		for _, d := range n.Deps {
			if d.Upstream != n.Key {
				edges[n.Key] = append(edges[n.Key], d.Upstream)
			}
		}
	}

	var cycles []*CycleError
	for _, scc := range tarjanSCC(nodes, edges) {
		if len(scc) > 1 {
			cycles = append(cycles, &CycleError{Path: cyclePath(scc, nodes, edges)})
		}
	}
	return cycles
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Visiting nodes and edges in declaration order keeps the output stable.
func tarjanSCC(nodes []Node, edges map[ir.AssetKey][]ir.AssetKey) [][]ir.AssetKey {
	var (
		index   = 0
		stack   []ir.AssetKey
		indices = make(map[ir.AssetKey]int)
		lowlink = make(map[ir.AssetKey]int)
		onStack = make(map[ir.AssetKey]bool)
		sccs    [][]ir.AssetKey
	)

	var strongConnect func(ir.AssetKey)
	strongConnect = func(v ir.AssetKey) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component.
		if lowlink[v] == indices[v] {
			var scc []ir.AssetKey
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, n := range nodes {
		if _, visited := indices[n.Key]; !visited {
			strongConnect(n.Key)
		}
	}
	return sccs
}

// cyclePath finds a path through the SCC that starts and ends at the member
// declared first, following dependency edges depth-first.
func cyclePath(scc []ir.AssetKey, nodes []Node, edges map[ir.AssetKey][]ir.AssetKey) []ir.AssetKey {
	members := make(map[ir.AssetKey]bool, len(scc))
	for _, k := range scc {
		members[k] = true
	}

	var start ir.AssetKey
	for _, n := range nodes {
		if members[n.Key] {
			start = n.Key
			break
		}
	}

	path := []ir.AssetKey{start}
	visited := map[ir.AssetKey]bool{start: true}

	var walk func(ir.AssetKey) bool
	walk = func(v ir.AssetKey) bool {
		for _, w := range edges[v] {
			if !members[w] {
				continue
			}
			if w == start {
				path = append(path, w)
				return true
			}
			if visited[w] {
				continue
			}
			visited[w] = true
			path = append(path, w)
			if walk(w) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	walk(start)
	return path
}
