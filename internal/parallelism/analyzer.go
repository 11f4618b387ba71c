// Package parallelism is the Parallelism Calculator, the densest component
// in the system: it produces the pairwise conflict verdict for every task
// pair in a list and assembles them into ordered execution waves. Grounded
// on the observed source's DAGEngine.buildDAG and ResultCache
// (services/orchestrator/dag_engine.go), reshaped around persisted
// analyses instead of an in-memory-only cache.
package parallelism

import (
	"context"
	"time"

	"github.com/taskmesh/pto/internal/conflict"
	"github.com/taskmesh/pto/internal/graph"
	"github.com/taskmesh/pto/internal/model"
)

// Store is the slice of the Store Gateway the calculator depends on.
type Store interface {
	ListTasksByList(ctx context.Context, taskListID string) ([]*model.Task, error)
	ListFileImpacts(ctx context.Context, taskID string) ([]*model.FileImpact, error)
	ListRelationshipsForTasks(ctx context.Context, taskIDs map[string]bool) ([]*model.Relationship, error)
	GetParallelismAnalysis(ctx context.Context, a, b string) (*model.ParallelismAnalysis, bool, error)
	PutParallelismAnalysis(ctx context.Context, a *model.ParallelismAnalysis) error
	ListValidAnalysesForList(ctx context.Context, taskIDs map[string]bool) ([]*model.ParallelismAnalysis, error)
	PutWave(ctx context.Context, w *model.ExecutionWave) error
	DeleteWavesForList(ctx context.Context, taskListID string) error
}

// Calculator produces {waves, analyses} for a task list.
type Calculator struct {
	store    Store
	detector *conflict.Detector
}

// New builds a Calculator against store, using detector's confidence
// threshold for file-conflict significance.
func New(store Store, detector *conflict.Detector) *Calculator {
	return &Calculator{store: store, detector: detector}
}

// eligible reports the task states the calculator schedules over; a
// task in any other status has already left the pending pipeline.
func eligible(t *model.Task) bool {
	return t.Status == model.TaskPending || t.Status == model.TaskEvaluating
}

// Analyze computes the pairwise verdict for (a, b), consulting the cache
// unless forceReanalyze is set or the cached row was invalidated.
func (c *Calculator) Analyze(ctx context.Context, a, b *model.Task, g *graph.Graph, forceReanalyze bool) (*model.ParallelismAnalysis, error) {
	aid, bid := model.PairKey(a.ID, b.ID)
	ta, tb := a, b
	if a.ID != aid {
		ta, tb = b, a
	}

	if !forceReanalyze {
		if cached, ok, err := c.store.GetParallelismAnalysis(ctx, aid, bid); err != nil {
			return nil, err
		} else if ok && cached.InvalidatedAt == nil {
			return cached, nil
		}
	}

	verdict := c.computeVerdict(ctx, ta, tb, g)
	if err := c.store.PutParallelismAnalysis(ctx, verdict); err != nil {
		return nil, err
	}
	return verdict, nil
}

func (c *Calculator) computeVerdict(ctx context.Context, a, b *model.Task, g *graph.Graph) *model.ParallelismAnalysis {
	now := time.Now().UTC()
	base := &model.ParallelismAnalysis{
		ID:         a.ID + ":" + b.ID,
		TaskAID:    a.ID,
		TaskBID:    b.ID,
		AnalyzedAt: now,
	}

	// Dependency dominates file conflict when both are present.
	if g.DependsOn(a.ID)[b.ID] {
		base.CanParallel = false
		base.ConflictType = model.ConflictDependency
		base.Details = model.ConflictDetails{Direction: &model.DependencyDirection{Source: a.ID, Target: b.ID}}
		return base
	}
	if g.DependsOn(b.ID)[a.ID] {
		base.CanParallel = false
		base.ConflictType = model.ConflictDependency
		base.Details = model.ConflictDetails{Direction: &model.DependencyDirection{Source: b.ID, Target: a.ID}}
		return base
	}

	implA, _ := c.store.ListFileImpacts(ctx, a.ID)
	implB, _ := c.store.ListFileImpacts(ctx, b.ID)
	res := c.detector.Detect(implA, implB)
	if !res.InConflict {
		base.CanParallel = true
		base.ConflictType = model.ConflictNone
		return base
	}

	base.CanParallel = false
	base.ConflictType = model.ConflictFile
	base.Details = model.ConflictDetails{Files: res.Files}
	return base
}
