package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/pto/internal/conflict"
	"github.com/taskmesh/pto/internal/model"
	"github.com/taskmesh/pto/internal/parallelism"
	"github.com/taskmesh/pto/internal/readiness"
)

func readyTask(id, listID string, pos int) *model.Task {
	return &model.Task{
		ID: id, DisplayID: id, TaskListID: listID, Position: pos,
		Title: "do " + id, Category: "backend", Status: model.TaskPending,
		Priority: model.PriorityP2, Effort: model.EffortSmall,
		AcceptanceCriteria: []string{"Given a, when b, then c"},
		TestCommands:       []string{"go test ./..."},
		CreatedAt:          time.Now(),
	}
}

func newTestOrchestrator(t *testing.T, store *fakeStore, dispatcher Dispatcher, emitter Emitter, signer *OverrideSigner) *Orchestrator {
	t.Helper()
	calc := parallelism.New(store, conflict.NewDetector(0))
	engine, err := readiness.NewEngine(context.Background())
	require.NoError(t, err)
	return New(store, calc, engine, dispatcher, emitter, signer, nil)
}

func TestStartExecutionBlockedWithoutOverride(t *testing.T) {
	store := newFakeStore()
	listID := "list-1"
	store.lists[listID] = &model.TaskList{ID: listID, Status: model.ListReady}
	notReady := &model.Task{ID: "t1", TaskListID: listID, Position: 1, Status: model.TaskPending, Category: "backend", Effort: model.EffortEpic}
	store.tasks[notReady.ID] = notReady

	o := newTestOrchestrator(t, store, newAutoCompleteDispatcher(), &fakeEmitter{}, nil)

	_, err := o.StartExecution(context.Background(), StartOptions{TaskListID: listID})
	require.Error(t, err)
	var blocked *model.ErrExecutionBlocked
	require.ErrorAs(t, err, &blocked)
	require.Len(t, blocked.IncompleteTasks, 1)
	require.Empty(t, store.overrides)
}

func TestStartExecutionSucceedsWithValidOverride(t *testing.T) {
	store := newFakeStore()
	listID := "list-2"
	store.lists[listID] = &model.TaskList{ID: listID, Status: model.ListReady}
	notReady := &model.Task{ID: "t1", TaskListID: listID, Position: 1, Status: model.TaskPending, Category: "backend", Effort: model.EffortEpic}
	store.tasks[notReady.ID] = notReady

	signer := NewOverrideSigner([]byte("test-secret"))
	token, err := signer.Sign("alice", listID, 1)
	require.NoError(t, err)

	emitter := &fakeEmitter{}
	o := newTestOrchestrator(t, store, newAutoCompleteDispatcher(), emitter, signer)

	sess, err := o.StartExecution(context.Background(), StartOptions{TaskListID: listID, OverrideToken: token})
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, store.overrides, 1)
	require.Equal(t, "alice", store.overrides[0].AuthorizedBy)
	require.Equal(t, 1, emitter.count(model.EventExecutionBlocked))
}

func TestStartExecutionRejectsOverrideForWrongList(t *testing.T) {
	store := newFakeStore()
	listID := "list-3"
	store.lists[listID] = &model.TaskList{ID: listID, Status: model.ListReady}
	notReady := &model.Task{ID: "t1", TaskListID: listID, Position: 1, Status: model.TaskPending, Category: "backend", Effort: model.EffortEpic}
	store.tasks[notReady.ID] = notReady

	signer := NewOverrideSigner([]byte("test-secret"))
	token, err := signer.Sign("alice", "some-other-list", 1)
	require.NoError(t, err)

	o := newTestOrchestrator(t, store, newAutoCompleteDispatcher(), &fakeEmitter{}, signer)

	_, err = o.StartExecution(context.Background(), StartOptions{TaskListID: listID, OverrideToken: token})
	require.Error(t, err)
	var blocked *model.ErrExecutionBlocked
	require.ErrorAs(t, err, &blocked)
}

func TestStartExecutionNoGateNeededWhenAllReady(t *testing.T) {
	store := newFakeStore()
	listID := "list-4"
	store.lists[listID] = &model.TaskList{ID: listID, Status: model.ListReady}
	store.tasks["t1"] = readyTask("t1", listID, 1)

	o := newTestOrchestrator(t, store, newAutoCompleteDispatcher(), &fakeEmitter{}, nil)

	sess, err := o.StartExecution(context.Background(), StartOptions{TaskListID: listID})
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Empty(t, store.overrides)
}
