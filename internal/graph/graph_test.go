package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/pto/internal/model"
)

func rel(src, tgt string) *model.Relationship {
	return &model.Relationship{SourceTaskID: src, TargetTaskID: tgt, Type: model.RelDependsOn}
}

func TestWouldCycleDetectsTransitiveReach(t *testing.T) {
	tasks := map[string]*model.Task{"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}}
	g := New(tasks, []*model.Relationship{rel("a", "b"), rel("b", "c")})

	require.True(t, g.WouldCycle("c", "a"), "c -> a would close a->b->c->a")
	require.False(t, g.WouldCycle("a", "c"), "a -> c does not close a cycle")
}

func TestSafeAddDependencyRejectsCycle(t *testing.T) {
	tasks := map[string]*model.Task{"a": {ID: "a"}, "b": {ID: "b"}}
	g := New(tasks, []*model.Relationship{rel("a", "b")})

	err := g.SafeAddDependency("b", "a")
	require.Error(t, err)
	var cycleErr *model.ErrCycleWouldForm
	require.ErrorAs(t, err, &cycleErr)
	require.NotEmpty(t, cycleErr.Cycle)
}

func TestEnumerateCyclesDedupesRotations(t *testing.T) {
	tasks := map[string]*model.Task{"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}}
	g := New(tasks, []*model.Relationship{rel("a", "b"), rel("b", "c"), rel("c", "a")})

	cycles := g.EnumerateCycles()
	require.Len(t, cycles, 1)
	require.Equal(t, "a", cycles[0][0], "canonicalized to start at lexicographically smallest member")
}

func TestTransitiveForSeparatesDirectFromTransitive(t *testing.T) {
	tasks := map[string]*model.Task{"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}, "d": {ID: "d"}}
	g := New(tasks, []*model.Relationship{rel("a", "b"), rel("b", "c"), rel("d", "a")})

	tr := g.TransitiveFor("a")
	require.Equal(t, []string{"b"}, tr.Direct)
	require.Equal(t, []string{"c"}, tr.Transitive)
	require.Equal(t, []string{"d"}, tr.Blockees)
}

func TestRecommendRemovalPrefersNewerLowerPrioritySource(t *testing.T) {
	now := time.Now()
	tasks := map[string]*model.Task{
		"a": {ID: "a", DisplayID: "T-1", Priority: model.PriorityP1, CreatedAt: now},
		"b": {ID: "b", DisplayID: "T-2", Priority: model.PriorityP4, CreatedAt: now.Add(time.Hour)},
	}
	g := New(tasks, []*model.Relationship{rel("a", "b"), rel("b", "a")})

	cycle := []string{"a", "b"}
	best := g.RecommendRemoval(cycle, tasks)
	require.NotNil(t, best)
	require.Equal(t, "b", best.Source, "b is newer and lower priority, scores higher for removal")
}
