package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/pto/internal/model"
)

func TestMaintainerReapsOrphanedStalledWorker(t *testing.T) {
	store := newFakeStore()
	store.tasks["t1"] = &model.Task{ID: "t1", Status: model.TaskRunning}
	store.workers["w1"] = &model.Worker{ID: "w1", Status: model.WorkerWorking, CurrentTaskID: "t1", LastHeartbeat: time.Now().Add(-time.Hour)}

	o := newTestOrchestrator(t, store, newAutoCompleteDispatcher(), &fakeEmitter{}, nil)
	m := NewMaintainer(o)

	m.sweepStalledWorkers(context.Background())

	_, stillPresent := store.workers["w1"]
	require.False(t, stillPresent)

	task, ok, err := store.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.TaskBlocked, task.Status)
}

func TestMaintainerSkipsWorkerOwnedByLiveSession(t *testing.T) {
	store := newFakeStore()
	store.tasks["t1"] = &model.Task{ID: "t1", Status: model.TaskRunning}
	store.workers["w1"] = &model.Worker{ID: "w1", Status: model.WorkerWorking, CurrentTaskID: "t1", LastHeartbeat: time.Now().Add(-time.Hour)}

	o := newTestOrchestrator(t, store, newAutoCompleteDispatcher(), &fakeEmitter{}, nil)
	run := &model.ExecutionRun{ID: "run-1", TaskListID: "list-1"}
	sess := o.newSession(run, &model.WaveSet{}, 4)
	sess.workerTask["w1"] = "t1"
	o.registerSession(sess)

	m := NewMaintainer(o)
	m.sweepStalledWorkers(context.Background())

	_, stillPresent := store.workers["w1"]
	require.True(t, stillPresent)
}

func TestMaintainerEvictsTerminatedWorkerRecords(t *testing.T) {
	store := newFakeStore()
	store.workers["w1"] = &model.Worker{ID: "w1", Status: model.WorkerTerminated}

	o := newTestOrchestrator(t, store, newAutoCompleteDispatcher(), &fakeEmitter{}, nil)
	m := NewMaintainer(o)

	m.evictOrphanedWorkerRecords(context.Background())

	_, stillPresent := store.workers["w1"]
	require.False(t, stillPresent)
}
