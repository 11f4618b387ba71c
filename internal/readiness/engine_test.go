package readiness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/pto/internal/model"
)

func TestEvaluateWellFormedTaskIsReady(t *testing.T) {
	e, err := NewEngine(context.Background())
	require.NoError(t, err)

	task := &model.Task{
		ID: "t1", Category: "backend", Title: "add retry to client", Effort: model.EffortSmall,
		AcceptanceCriteria: []string{"Given a failed call, when retried, then it succeeds within 3 attempts"},
		TestCommands:       []string{"go test ./..."},
	}
	verdict, err := e.Evaluate(context.Background(), TaskInput{Task: task})
	require.NoError(t, err)
	require.True(t, verdict.IsReady)
	require.GreaterOrEqual(t, verdict.Overall, model.ReadinessThreshold)
}

func TestEvaluateMissingAcceptanceCriteriaIsNotReady(t *testing.T) {
	e, err := NewEngine(context.Background())
	require.NoError(t, err)

	task := &model.Task{ID: "t2", Category: "backend", Title: "fix bug", Effort: model.EffortEpic}
	verdict, err := e.Evaluate(context.Background(), TaskInput{Task: task})
	require.NoError(t, err)
	require.False(t, verdict.IsReady)
	require.NotEmpty(t, verdict.MissingItems)
}

func TestInvalidateDropsCachedVerdict(t *testing.T) {
	e, err := NewEngine(context.Background())
	require.NoError(t, err)

	task := &model.Task{ID: "t3", Category: "backend", Title: "x", Effort: model.EffortSmall}
	first, err := e.Evaluate(context.Background(), TaskInput{Task: task})
	require.NoError(t, err)
	require.False(t, first.IsReady)

	task.AcceptanceCriteria = []string{"Given x, then y"}
	task.TestCommands = []string{"go test"}
	e.Invalidate(task.ID)

	second, err := e.Evaluate(context.Background(), TaskInput{Task: task})
	require.NoError(t, err)
	require.NotEqual(t, first.Overall, second.Overall)
}

func TestEvaluateListSummary(t *testing.T) {
	e, err := NewEngine(context.Background())
	require.NoError(t, err)

	ready := &model.Task{ID: "r1", Category: "backend", Title: "x", Effort: model.EffortSmall,
		AcceptanceCriteria: []string{"Given a, then b"}, TestCommands: []string{"go test"}}
	notReady := &model.Task{ID: "r2", Category: "backend", Title: "y", Effort: model.EffortEpic}

	summary, err := e.EvaluateList(context.Background(), "l1", []TaskInput{{Task: ready}, {Task: notReady}})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Ready)
	require.Equal(t, 1, summary.NotReady)
}
