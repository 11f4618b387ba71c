package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/pto/internal/model"
)

func waitDone(t *testing.T, sess *Session, timeout time.Duration) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(timeout):
		t.Fatal("session did not finish in time")
	}
}

func TestSessionRunsIndependentTasksToCompletion(t *testing.T) {
	store := newFakeStore()
	listID := "list-run-1"
	store.lists[listID] = &model.TaskList{ID: listID, Status: model.ListReady}
	for i, id := range []string{"a", "b", "c"} {
		store.tasks[id] = readyTask(id, listID, i+1)
	}

	emitter := &fakeEmitter{}
	o := newTestOrchestrator(t, store, newAutoCompleteDispatcher(), emitter, nil)

	sess, err := o.StartExecution(context.Background(), StartOptions{TaskListID: listID, ConcurrencyCap: 8})
	require.NoError(t, err)

	waitDone(t, sess, 5*time.Second)

	for _, id := range []string{"a", "b", "c"} {
		task, ok, err := store.GetTask(context.Background(), id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, model.TaskComplete, task.Status)
	}

	run, ok, err := store.GetExecutionRun(context.Background(), sess.run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.RunComplete, run.Status)

	list, ok, err := store.GetTaskList(context.Background(), listID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.ListComplete, list.Status)

	require.GreaterOrEqual(t, emitter.count(model.EventTaskCompleted), 3)
	require.GreaterOrEqual(t, emitter.count(model.EventWaveCompleted), 1)
}

func TestSessionRetriesRetryableFailureThenSucceeds(t *testing.T) {
	store := newFakeStore()
	listID := "list-run-2"
	store.lists[listID] = &model.TaskList{ID: listID, Status: model.ListReady}
	store.tasks["a"] = readyTask("a", listID, 1)

	dispatcher := newAutoCompleteDispatcher()
	dispatcher.failIDs["a"] = true

	emitter := &fakeEmitter{}
	o := newTestOrchestrator(t, store, dispatcher, emitter, nil)

	sess, err := o.StartExecution(context.Background(), StartOptions{TaskListID: listID, ConcurrencyCap: 8})
	require.NoError(t, err)

	// the default 2s backoff plus dispatch overhead comfortably fits under 10s
	waitDone(t, sess, 10*time.Second)

	task, ok, err := store.GetTask(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.TaskComplete, task.Status)
	require.Equal(t, 1, task.AttemptCount)
	require.GreaterOrEqual(t, emitter.count(model.EventTaskFailed), 1)
}

func TestSessionCancelStopsRunningWork(t *testing.T) {
	store := newFakeStore()
	listID := "list-run-3"
	store.lists[listID] = &model.TaskList{ID: listID, Status: model.ListReady}
	store.tasks["a"] = readyTask("a", listID, 1)

	dispatcher := newAutoCompleteDispatcher()
	dispatcher.delay = 500 * time.Millisecond

	o := newTestOrchestrator(t, store, dispatcher, &fakeEmitter{}, nil)

	sess, err := o.StartExecution(context.Background(), StartOptions{TaskListID: listID, ConcurrencyCap: 8})
	require.NoError(t, err)

	sess.Cancel()
	waitDone(t, sess, 5*time.Second)

	run, ok, err := store.GetExecutionRun(context.Background(), sess.run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.RunCancelled, run.Status)

	task, ok, err := store.GetTask(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.TaskCancelled, task.Status)
}
