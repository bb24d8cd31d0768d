package registry

import (
	"strings"
)

// Cycle is a dependency loop found in the upstream graph.
type Cycle struct {
	Path []StageID // e.g. [canvas, strategy-summary, canvas]
}

func (c Cycle) String() string {
	parts := make([]string, len(c.Path))
	for i, id := range c.Path {
		parts[i] = string(id)
	}
	return strings.Join(parts, " -> ")
}

// findCycles runs Tarjan's strongly connected components algorithm over the
// stage -> upstream edges. Every SCC with more than one member, or a single
// member that lists itself as upstream, is a cycle.
//
// Nodes are visited in declaration order so the reported cycles are stable.
func findCycles(r *Registry) []Cycle {
	edges := make(map[StageID][]StageID, len(r.order))
	for _, id := range r.order {
		edges[id] = r.stages[id].Upstream
	}

	var (
		index   = 0
		stack   []StageID
		indices = make(map[StageID]int)
		lowlink = make(map[StageID]int)
		onStack = make(map[StageID]bool)
		sccs    [][]StageID
	)

	var strongConnect func(StageID)
	strongConnect = func(v StageID) {
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

		if lowlink[v] == indices[v] {
			var scc []StageID
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

	for _, id := range r.order {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}

	var cycles []Cycle
	for _, scc := range sccs {
		if len(scc) == 1 && !hasSelfLoop(scc[0], edges) {
			continue
		}
		cycles = append(cycles, Cycle{Path: cyclePath(scc, edges)})
	}
	return cycles
}

func hasSelfLoop(id StageID, edges map[StageID][]StageID) bool {
	for _, up := range edges[id] {
		if up == id {
			return true
		}
	}
	return false
}

// cyclePath walks edges inside the SCC from its first member until it
// returns to the start, producing a readable loop like a -> b -> a.
func cyclePath(scc []StageID, edges map[StageID][]StageID) []StageID {
	members := make(map[StageID]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	start := scc[0]
	path := []StageID{start}
	visited := map[StageID]bool{start: true}
	current := start
	for {
		var next StageID
		for _, w := range edges[current] {
			if members[w] && (w == start || !visited[w]) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
