// Package graph is the Graph Analyzer: cycle detection, near-cycle
// warnings, resolution scoring and transitive-dependency enumeration over
// the depends_on subgraph of task relationships. It operates on an
// in-memory adjacency view supplied by the caller (internal/store owns
// persistence) so it stays easy to unit test in isolation, following the
// observed source's habit of keeping the DAG walk (dag_engine.go buildDAG)
// free of storage concerns.
package graph

import (
	"sort"

	"github.com/taskmesh/pto/internal/model"
)

// MaxProbeDepth bounds the cycle probe so a pathological graph cannot stall
// it. internal/platform/config has a CycleProbeDepth tunable, but the probe
// does not read it and always uses this constant.
const MaxProbeDepth = 20

// Graph is an adjacency view of the depends_on relation: edges[s] is the
// set of tasks s depends on.
type Graph struct {
	edges map[string]map[string]bool
	tasks map[string]*model.Task
}

// New builds a Graph from the depends_on relationships and the task set
// they range over.
func New(tasks map[string]*model.Task, rels []*model.Relationship) *Graph {
	g := &Graph{
		edges: make(map[string]map[string]bool, len(tasks)),
		tasks: tasks,
	}
	for id := range tasks {
		g.edges[id] = make(map[string]bool)
	}
	for _, r := range rels {
		if r.Type != model.RelDependsOn {
			continue
		}
		if g.edges[r.SourceTaskID] == nil {
			g.edges[r.SourceTaskID] = make(map[string]bool)
		}
		g.edges[r.SourceTaskID][r.TargetTaskID] = true
	}
	return g
}

// DependsOn returns s's direct dependency set restricted to the graph's
// task universe.
func (g *Graph) DependsOn(s string) map[string]bool {
	return g.edges[s]
}

// reaches reports whether from can reach to within maxDepth hops, via DFS.
func (g *Graph) reaches(from, to string, maxDepth int) bool {
	if maxDepth <= 0 {
		return false
	}
	visited := make(map[string]bool)
	var dfs func(node string, depth int) bool
	dfs = func(node string, depth int) bool {
		if node == to {
			return true
		}
		if depth >= maxDepth || visited[node] {
			return false
		}
		visited[node] = true
		for next := range g.edges[node] {
			if dfs(next, depth+1) {
				return true
			}
		}
		return false
	}
	return dfs(from, 0)
}

// WouldCycle answers whether adding the edge s -> t would create a cycle,
// by testing whether t already transitively reaches s.
func (g *Graph) WouldCycle(s, t string) bool {
	return g.reaches(t, s, MaxProbeDepth)
}

// SafeAddDependency adds s -> t if it would not close a cycle, returning
// ErrCycleWouldForm with the full candidate cycle otherwise. No edge is
// added on failure.
func (g *Graph) SafeAddDependency(s, t string) error {
	if g.WouldCycle(s, t) {
		cycle := append([]string{s}, g.pathBetween(t, s)...)
		return &model.ErrCycleWouldForm{Cycle: cycle}
	}
	if g.edges[s] == nil {
		g.edges[s] = make(map[string]bool)
	}
	g.edges[s][t] = true
	return nil
}

// pathBetween returns one DFS path from -> to (inclusive of from), used to
// render the candidate cycle for display.
func (g *Graph) pathBetween(from, to string) []string {
	visited := make(map[string]bool)
	var path []string
	var dfs func(node string) bool
	dfs = func(node string) bool {
		path = append(path, node)
		if node == to {
			return true
		}
		if visited[node] {
			path = path[:len(path)-1]
			return false
		}
		visited[node] = true
		for next := range g.edges[node] {
			if dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	dfs(from)
	return path
}

// NearCycles reports every task u such that a single additional edge
// task -> u (at hops 1) or via one intermediate (hops 2) would close a
// cycle back to task, i.e. u already reaches task within 2 hops.
func (g *Graph) NearCycles(task string) []string {
	var out []string
	for u := range g.tasks {
		if u == task {
			continue
		}
		if g.reaches(u, task, 2) {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// Transitive holds the three disjoint dependency sets for a task.
type Transitive struct {
	Direct      []string
	Blockees    []string
	Transitive  []string
}

// TransitiveFor enumerates task's direct dependencies, direct blockees
// (tasks that depend on it), and transitive (non-direct) dependencies.
func (g *Graph) TransitiveFor(task string) Transitive {
	direct := g.edges[task]
	directSet := make(map[string]bool, len(direct))
	for d := range direct {
		directSet[d] = true
	}

	allDeps := make(map[string]bool)
	var walk func(node string, depth int)
	walk = func(node string, depth int) {
		if depth >= MaxProbeDepth {
			return
		}
		for next := range g.edges[node] {
			if !allDeps[next] {
				allDeps[next] = true
				walk(next, depth+1)
			}
		}
	}
	walk(task, 0)

	var transitiveOnly []string
	for d := range allDeps {
		if !directSet[d] {
			transitiveOnly = append(transitiveOnly, d)
		}
	}

	var blockees []string
	for id, deps := range g.edges {
		if deps[task] {
			blockees = append(blockees, id)
		}
	}

	directList := make([]string, 0, len(directSet))
	for d := range directSet {
		directList = append(directList, d)
	}

	sort.Strings(directList)
	sort.Strings(blockees)
	sort.Strings(transitiveOnly)
	return Transitive{Direct: directList, Blockees: blockees, Transitive: transitiveOnly}
}
