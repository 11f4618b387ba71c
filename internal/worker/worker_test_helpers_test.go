package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/taskmesh/pto/internal/model"
)

// TestMain guards the Worker Orchestrator's goroutine lifecycle: every
// session's control loop, heartbeat ticker, and dispatch forwarder must exit
// when the session ends, or this package's tests leak goroutines across runs.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore is an in-memory stand-in for the Store Gateway, satisfying both
// worker.Store and parallelism.Store so a Calculator and an Orchestrator can
// share one backing map in tests.
type fakeStore struct {
	mu        sync.Mutex
	tasks     map[string]*model.Task
	lists     map[string]*model.TaskList
	impacts   map[string][]*model.FileImpact
	rels      []*model.Relationship
	analyses  map[string]*model.ParallelismAnalysis
	waves     map[string][]*model.ExecutionWave
	runs      map[string]*model.ExecutionRun
	workers   map[string]*model.Worker
	overrides []*model.OverrideLogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:    make(map[string]*model.Task),
		lists:    make(map[string]*model.TaskList),
		impacts:  make(map[string][]*model.FileImpact),
		analyses: make(map[string]*model.ParallelismAnalysis),
		waves:    make(map[string][]*model.ExecutionWave),
		runs:     make(map[string]*model.ExecutionRun),
		workers:  make(map[string]*model.Worker),
	}
}

func (f *fakeStore) ListTasksByList(ctx context.Context, taskListID string) ([]*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Task
	for _, t := range f.tasks {
		if t.TaskListID == taskListID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListFileImpacts(ctx context.Context, taskID string) ([]*model.FileImpact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.impacts[taskID], nil
}

func (f *fakeStore) ListRelationshipsForTasks(ctx context.Context, taskIDs map[string]bool) ([]*model.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Relationship
	for _, r := range f.rels {
		if taskIDs[r.SourceTaskID] && taskIDs[r.TargetTaskID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetParallelismAnalysis(ctx context.Context, a, b string) (*model.ParallelismAnalysis, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.analyses[a+"\x00"+b]
	return v, ok, nil
}

func (f *fakeStore) PutParallelismAnalysis(ctx context.Context, a *model.ParallelismAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses[a.TaskAID+"\x00"+a.TaskBID] = a
	return nil
}

func (f *fakeStore) ListValidAnalysesForList(ctx context.Context, taskIDs map[string]bool) ([]*model.ParallelismAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ParallelismAnalysis
	for _, a := range f.analyses {
		if taskIDs[a.TaskAID] && taskIDs[a.TaskBID] && a.InvalidatedAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) PutWave(ctx context.Context, w *model.ExecutionWave) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waves[w.TaskListID] = append(f.waves[w.TaskListID], w)
	return nil
}

func (f *fakeStore) DeleteWavesForList(ctx context.Context, taskListID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.waves, taskListID)
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*model.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok, nil
}

func (f *fakeStore) PutTask(ctx context.Context, t *model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) GetTaskList(ctx context.Context, id string) (*model.TaskList, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	return l, ok, nil
}

func (f *fakeStore) PutTaskList(ctx context.Context, l *model.TaskList) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[l.ID] = l
	return nil
}

func (f *fakeStore) PutExecutionRun(ctx context.Context, r *model.ExecutionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[r.ID] = r
	return nil
}

func (f *fakeStore) GetExecutionRun(ctx context.Context, id string) (*model.ExecutionRun, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	return r, ok, nil
}

func (f *fakeStore) PutWorker(ctx context.Context, w *model.Worker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers[w.ID] = w
	return nil
}

func (f *fakeStore) DeleteWorker(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.workers, id)
	return nil
}

func (f *fakeStore) ListWorkers(ctx context.Context) ([]*model.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Worker
	for _, w := range f.workers {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeStore) PutOverrideLogEntry(ctx context.Context, e *model.OverrideLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = append(f.overrides, e)
	return nil
}

// fakeEmitter records every published event for assertion.
type fakeEmitter struct {
	mu     sync.Mutex
	events []model.EventType
}

func (e *fakeEmitter) Publish(eventType model.EventType, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, eventType)
}

func (e *fakeEmitter) count(t model.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == t {
			n++
		}
	}
	return n
}

// autoCompleteDispatcher reports every dispatched task as complete on its
// own goroutine, after delay when one is set; a task listed in failIDs first
// fails once with a retryable failure. It exercises the execution loop
// without a real build-agent transport.
type autoCompleteDispatcher struct {
	mu      sync.Mutex
	nextID  int
	delay   time.Duration
	failIDs map[string]bool // task IDs to fail once before succeeding
	failed  map[string]bool
}

func newAutoCompleteDispatcher() *autoCompleteDispatcher {
	return &autoCompleteDispatcher{failIDs: map[string]bool{}, failed: map[string]bool{}}
}

func (d *autoCompleteDispatcher) Dispatch(ctx context.Context, task *model.Task, diagnosis *DiagnosisContext) (string, <-chan WorkerEvent) {
	d.mu.Lock()
	d.nextID++
	workerID := "w" + time.Now().Format("150405.000000") + "-" + task.ID
	d.mu.Unlock()

	events := make(chan WorkerEvent, 2)
	go func() {
		defer close(events)
		if d.delay > 0 {
			time.Sleep(d.delay)
		}
		d.mu.Lock()
		shouldFail := d.failIDs[task.ID] && !d.failed[task.ID]
		if shouldFail {
			d.failed[task.ID] = true
		}
		d.mu.Unlock()

		if shouldFail {
			events <- WorkerEvent{Kind: EventFail, WorkerID: workerID, TaskID: task.ID, Reason: "transient", Class: FailureRetryable, At: time.Now()}
			return
		}
		events <- WorkerEvent{Kind: EventComplete, WorkerID: workerID, TaskID: task.ID, At: time.Now()}
	}()
	return workerID, events
}

func (d *autoCompleteDispatcher) Cancel(ctx context.Context, workerID string) {}
