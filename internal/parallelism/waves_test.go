package parallelism

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/pto/internal/conflict"
	"github.com/taskmesh/pto/internal/model"
)

type fakeStore struct {
	tasks     []*model.Task
	impacts   map[string][]*model.FileImpact
	rels      []*model.Relationship
	analyses  map[string]*model.ParallelismAnalysis
}

func newFakeStore() *fakeStore {
	return &fakeStore{impacts: map[string][]*model.FileImpact{}, analyses: map[string]*model.ParallelismAnalysis{}}
}

func (f *fakeStore) ListTasksByList(ctx context.Context, taskListID string) ([]*model.Task, error) {
	return f.tasks, nil
}
func (f *fakeStore) ListFileImpacts(ctx context.Context, taskID string) ([]*model.FileImpact, error) {
	return f.impacts[taskID], nil
}
func (f *fakeStore) ListRelationshipsForTasks(ctx context.Context, taskIDs map[string]bool) ([]*model.Relationship, error) {
	return f.rels, nil
}
func (f *fakeStore) GetParallelismAnalysis(ctx context.Context, a, b string) (*model.ParallelismAnalysis, bool, error) {
	x, y := model.PairKey(a, b)
	v, ok := f.analyses[x+":"+y]
	return v, ok, nil
}
func (f *fakeStore) PutParallelismAnalysis(ctx context.Context, a *model.ParallelismAnalysis) error {
	f.analyses[a.TaskAID+":"+a.TaskBID] = a
	return nil
}
func (f *fakeStore) ListValidAnalysesForList(ctx context.Context, taskIDs map[string]bool) ([]*model.ParallelismAnalysis, error) {
	return nil, nil
}
func (f *fakeStore) PutWave(ctx context.Context, w *model.ExecutionWave) error         { return nil }
func (f *fakeStore) DeleteWavesForList(ctx context.Context, taskListID string) error   { return nil }

func TestComputeWavesEmptyList(t *testing.T) {
	store := newFakeStore()
	calc := New(store, conflict.NewDetector(0))
	ws, err := calc.ComputeWaves(context.Background(), "l1", false)
	require.NoError(t, err)
	require.Empty(t, ws.Waves)
}

func TestComputeWavesSingleTask(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*model.Task{{ID: "a", Status: model.TaskPending, Position: 0}}
	calc := New(store, conflict.NewDetector(0))
	ws, err := calc.ComputeWaves(context.Background(), "l1", false)
	require.NoError(t, err)
	require.Len(t, ws.Waves, 1)
	require.Equal(t, []string{"a"}, ws.Waves[0].TaskIDs)
	require.Equal(t, 1, ws.MaxParallelism)
}

func TestComputeWavesLinearChainIsFullySequential(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*model.Task{
		{ID: "a", Status: model.TaskPending, Position: 0},
		{ID: "b", Status: model.TaskPending, Position: 1},
		{ID: "c", Status: model.TaskPending, Position: 2},
	}
	store.rels = []*model.Relationship{
		{SourceTaskID: "b", TargetTaskID: "a", Type: model.RelDependsOn},
		{SourceTaskID: "c", TargetTaskID: "b", Type: model.RelDependsOn},
	}
	calc := New(store, conflict.NewDetector(0))
	ws, err := calc.ComputeWaves(context.Background(), "l1", false)
	require.NoError(t, err)
	require.Len(t, ws.Waves, 3)
	require.Equal(t, 1, ws.MaxParallelism)
}

func TestComputeWavesFanOutParallelizes(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*model.Task{
		{ID: "a", Status: model.TaskPending, Position: 0},
		{ID: "b", Status: model.TaskPending, Position: 1},
		{ID: "c", Status: model.TaskPending, Position: 2},
		{ID: "d", Status: model.TaskPending, Position: 3},
	}
	store.rels = []*model.Relationship{
		{SourceTaskID: "b", TargetTaskID: "a", Type: model.RelDependsOn},
		{SourceTaskID: "c", TargetTaskID: "a", Type: model.RelDependsOn},
		{SourceTaskID: "d", TargetTaskID: "a", Type: model.RelDependsOn},
	}
	calc := New(store, conflict.NewDetector(0))
	ws, err := calc.ComputeWaves(context.Background(), "l1", false)
	require.NoError(t, err)
	require.Len(t, ws.Waves, 2)
	require.Len(t, ws.Waves[1].TaskIDs, 3)
	require.Equal(t, 3, ws.MaxParallelism)
}

func TestComputeWavesFileConflictSplitsWave(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*model.Task{
		{ID: "a", Status: model.TaskPending, Position: 0},
		{ID: "b", Status: model.TaskPending, Position: 1},
	}
	store.impacts["a"] = []*model.FileImpact{{TaskID: "a", FilePath: "shared.go", Operation: model.OpUpdate, Confidence: 0.9}}
	store.impacts["b"] = []*model.FileImpact{{TaskID: "b", FilePath: "shared.go", Operation: model.OpUpdate, Confidence: 0.9}}

	calc := New(store, conflict.NewDetector(0))
	ws, err := calc.ComputeWaves(context.Background(), "l1", false)
	require.NoError(t, err)
	require.Len(t, ws.Waves, 2, "conflicting pair must not share a wave despite no dependency")
}

func TestComputeWavesDeterministicTieBreakByPosition(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*model.Task{
		{ID: "z", Status: model.TaskPending, Position: 0},
		{ID: "a", Status: model.TaskPending, Position: 1},
	}
	store.impacts["z"] = []*model.FileImpact{{TaskID: "z", FilePath: "shared.go", Operation: model.OpUpdate, Confidence: 0.9}}
	store.impacts["a"] = []*model.FileImpact{{TaskID: "a", FilePath: "shared.go", Operation: model.OpUpdate, Confidence: 0.9}}

	calc := New(store, conflict.NewDetector(0))
	ws, err := calc.ComputeWaves(context.Background(), "l1", false)
	require.NoError(t, err)
	require.Equal(t, "z", ws.Waves[0].TaskIDs[0], "earlier position wins the first wave slot")
}
