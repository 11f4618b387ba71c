package graph

import "sort"

// EnumerateCycles returns every simple cycle in the graph, each
// canonicalized as the rotation starting at its lexicographically smallest
// member and deduplicated.
func (g *Graph) EnumerateCycles() [][]string {
	seen := make(map[string]bool)
	var cycles [][]string

	nodes := make([]string, 0, len(g.edges))
	for n := range g.edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	for _, start := range nodes {
		var path []string
		onPath := make(map[string]bool)
		var dfs func(node string)
		dfs = func(node string) {
			path = append(path, node)
			onPath[node] = true
			for next := range g.edges[node] {
				if next == start {
					cycle := canonicalRotation(append(append([]string{}, path...)))
					key := cycleKey(cycle)
					if !seen[key] {
						seen[key] = true
						cycles = append(cycles, cycle)
					}
				} else if !onPath[next] && next > start {
					// only explore nodes > start to avoid re-deriving cycles
					// already found from a smaller starting node
					dfs(next)
				}
			}
			path = path[:len(path)-1]
			onPath[node] = false
		}
		dfs(start)
	}
	return cycles
}

// canonicalRotation rotates cycle so its lexicographically smallest member
// is first, giving every discovery order of the same cycle the same key.
func canonicalRotation(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	minIdx := 0
	for i, n := range cycle {
		if n < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, len(cycle))
	for i := range cycle {
		out[i] = cycle[(minIdx+i)%len(cycle)]
	}
	return out
}

func cycleKey(cycle []string) string {
	key := ""
	for _, n := range cycle {
		key += n + "\x00"
	}
	return key
}
