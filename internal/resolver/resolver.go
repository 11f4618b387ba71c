// Package resolver is the Conflict Resolver: it auto-repairs file
// conflicts by inserting depends_on edges, encoding "the later task in
// list order depends on the earlier task's work."
package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/pto/internal/graph"
	"github.com/taskmesh/pto/internal/model"
	"github.com/taskmesh/pto/internal/parallelism"
)

// Store is the slice of the Store Gateway the resolver depends on.
type Store interface {
	ListTasksByList(ctx context.Context, taskListID string) ([]*model.Task, error)
	ListRelationshipsForTasks(ctx context.Context, taskIDs map[string]bool) ([]*model.Relationship, error)
	PutRelationship(ctx context.Context, r *model.Relationship) error
	PutParallelismAnalysis(ctx context.Context, a *model.ParallelismAnalysis) error
	InvalidateAnalysesForTask(ctx context.Context, taskID string) (int, error)
}

// ReadinessInvalidator drops a task's cached readiness verdict; implemented
// by internal/readiness.Engine. Satisfies the mutation contract: inserting a
// depends_on edge changes the source task's dependency count, which feeds
// the independent readiness rule.
type ReadinessInvalidator interface {
	Invalidate(taskID string)
}

// Outcome is one pair's resolution result.
type Outcome string

const (
	OutcomeDependencyAdded Outcome = "dependency_added"
	OutcomeAlreadyResolved Outcome = "already_resolved"
	OutcomeSkipped         Outcome = "skipped"
)

// PairResult reports how one conflicting pair was handled.
type PairResult struct {
	TaskAID   string
	TaskBID   string
	Outcome   Outcome
	Direction *model.DependencyDirection
	Reason    string
}

// Resolver converts file_conflict pairs into depends_on edges.
type Resolver struct {
	store     Store
	calc      *parallelism.Calculator
	readiness ReadinessInvalidator
}

// New builds a Resolver around store and calc; calc re-derives waves after
// every resolution pass. readiness may be nil, in which case readiness
// caches are left untouched by resolutions (tests that don't care about
// cache freshness can pass nil).
func New(store Store, calc *parallelism.Calculator, readiness ReadinessInvalidator) *Resolver {
	return &Resolver{store: store, calc: calc, readiness: readiness}
}

// Resolve processes every file-conflict pair in analyses, inserting
// dependency edges where safe, then asks the Parallelism Calculator to
// re-derive waves for taskListID. Idempotent: a second run over the same
// input inserts nothing new.
func (r *Resolver) Resolve(ctx context.Context, taskListID string, analyses map[string]*model.ParallelismAnalysis) ([]PairResult, error) {
	tasks, err := r.store.ListTasksByList(ctx, taskListID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Task, len(tasks))
	taskIDs := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		taskIDs[t.ID] = true
	}

	rels, err := r.store.ListRelationshipsForTasks(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	g := graph.New(byID, rels)

	var results []PairResult
	for _, a := range analyses {
		if a.ConflictType != model.ConflictFile {
			continue
		}
		results = append(results, r.resolvePair(ctx, g, byID, a)...)
	}

	if len(results) > 0 {
		if _, err := r.calc.ComputeWaves(ctx, taskListID, true); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (r *Resolver) resolvePair(ctx context.Context, g *graph.Graph, byID map[string]*model.Task, a *model.ParallelismAnalysis) []PairResult {
	res := func(outcome Outcome, dir *model.DependencyDirection, reason string) []PairResult {
		return []PairResult{{TaskAID: a.TaskAID, TaskBID: a.TaskBID, Outcome: outcome, Direction: dir, Reason: reason}}
	}

	if g.DependsOn(a.TaskAID)[a.TaskBID] || g.DependsOn(a.TaskBID)[a.TaskAID] {
		return res(OutcomeAlreadyResolved, nil, "dependency edge already present")
	}

	ta, tb := byID[a.TaskAID], byID[a.TaskBID]
	if ta == nil || tb == nil {
		return res(OutcomeSkipped, nil, "task no longer present")
	}

	// Later position depends on earlier position's work.
	source, target := ta, tb
	if source.Position < target.Position {
		source, target = tb, ta
	}

	if err := g.SafeAddDependency(source.ID, target.ID); err != nil {
		return res(OutcomeSkipped, nil, "cycle-risk")
	}

	rel := &model.Relationship{
		ID:           uuid.NewString(),
		SourceTaskID: source.ID,
		TargetTaskID: target.ID,
		Type:         model.RelDependsOn,
		AutoResolved: true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.PutRelationship(ctx, rel); err != nil {
		return res(OutcomeSkipped, nil, "store error inserting dependency")
	}

	direction := &model.DependencyDirection{Source: source.ID, Target: target.ID, AutoResolved: true}
	aid, bid := model.PairKey(source.ID, target.ID)
	_ = r.store.PutParallelismAnalysis(ctx, &model.ParallelismAnalysis{
		ID:           aid + ":" + bid,
		TaskAID:      aid,
		TaskBID:      bid,
		CanParallel:  false,
		ConflictType: model.ConflictDependency,
		Details:      model.ConflictDetails{Direction: direction},
		AnalyzedAt:   time.Now().UTC(),
	})
	_, _ = r.store.InvalidateAnalysesForTask(ctx, source.ID)
	_, _ = r.store.InvalidateAnalysesForTask(ctx, target.ID)
	if r.readiness != nil {
		r.readiness.Invalidate(source.ID)
		r.readiness.Invalidate(target.ID)
	}

	return res(OutcomeDependencyAdded, direction, "inserted depends_on from the later-position task to the earlier one")
}
