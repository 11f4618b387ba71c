package graph

import (
	"fmt"

	"github.com/taskmesh/pto/internal/model"
)

// EdgeCandidate is one edge of a detected cycle, scored for removal.
type EdgeCandidate struct {
	Source string
	Target string
	Score  int
	Reason string
}

// RecommendRemoval scores every edge in cycle for removal and returns the
// highest-scoring candidate with a human-readable reason. cycle is a
// rotation returned by EnumerateCycles (first element repeats as the last
// edge's target).
func (g *Graph) RecommendRemoval(cycle []string, tasks map[string]*model.Task) *EdgeCandidate {
	if len(cycle) < 2 {
		return nil
	}
	var best *EdgeCandidate
	for i := 0; i < len(cycle); i++ {
		source := cycle[i]
		target := cycle[(i+1)%len(cycle)]
		cand := g.scoreEdge(source, target, tasks)
		if best == nil || cand.Score > best.Score {
			best = cand
		}
	}
	return best
}

func (g *Graph) scoreEdge(source, target string, tasks map[string]*model.Task) *EdgeCandidate {
	score := 0
	srcTask := tasks[source]
	tgtTask := tasks[target]

	if srcTask != nil && tgtTask != nil && srcTask.CreatedAt.After(tgtTask.CreatedAt) {
		score += 2
	}
	if srcTask != nil {
		score += srcTask.Priority.Rank()
	}
	if len(g.edges[source]) > 1 {
		score++
	}

	srcDisplay, tgtDisplay := source, target
	if srcTask != nil && srcTask.DisplayID != "" {
		srcDisplay = srcTask.DisplayID
	}
	if tgtTask != nil && tgtTask.DisplayID != "" {
		tgtDisplay = tgtTask.DisplayID
	}

	return &EdgeCandidate{
		Source: source,
		Target: target,
		Score:  score,
		Reason: fmt.Sprintf("removing %s -> %s breaks the cycle; removal score %d (newer source +2, source priority rank, other outgoing dependencies +1)", srcDisplay, tgtDisplay, score),
	}
}
