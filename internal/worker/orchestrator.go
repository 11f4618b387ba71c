// Package worker is the Worker Orchestrator: it owns one session per
// executing task list, supervises external build-agent workers, and
// serializes its own state mutation behind a single control goroutine fed
// by a channel of worker events — the same shape as the observed source's
// DAGEngine.executeDAG coordinator (services/orchestrator/dag_engine.go).
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/taskmesh/pto/internal/model"
	"github.com/taskmesh/pto/internal/parallelism"
	"github.com/taskmesh/pto/internal/platform/config"
	"github.com/taskmesh/pto/internal/platform/resilience"
	"github.com/taskmesh/pto/internal/readiness"
)

// Store is the slice of the Store Gateway the orchestrator depends on.
type Store interface {
	ListTasksByList(ctx context.Context, taskListID string) ([]*model.Task, error)
	ListFileImpacts(ctx context.Context, taskID string) ([]*model.FileImpact, error)
	ListRelationshipsForTasks(ctx context.Context, taskIDs map[string]bool) ([]*model.Relationship, error)
	GetTask(ctx context.Context, id string) (*model.Task, bool, error)
	PutTask(ctx context.Context, t *model.Task) error
	GetTaskList(ctx context.Context, id string) (*model.TaskList, bool, error)
	PutTaskList(ctx context.Context, l *model.TaskList) error
	PutExecutionRun(ctx context.Context, r *model.ExecutionRun) error
	GetExecutionRun(ctx context.Context, id string) (*model.ExecutionRun, bool, error)
	PutWorker(ctx context.Context, w *model.Worker) error
	DeleteWorker(ctx context.Context, id string) error
	ListWorkers(ctx context.Context) ([]*model.Worker, error)
	PutOverrideLogEntry(ctx context.Context, e *model.OverrideLogEntry) error
	PutWave(ctx context.Context, w *model.ExecutionWave) error
}

// Emitter publishes orchestrator lifecycle events; internal/events
// implements this over NATS with an in-process fallback.
type Emitter interface {
	Publish(eventType model.EventType, payload interface{})
}

// Dispatcher hands a task to an external build-agent worker and receives
// its lifecycle events back on the returned channel. Production
// deployments implement this over whatever transport fronts the worker
// pool; tests supply a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *model.Task, diagnosis *DiagnosisContext) (workerID string, events <-chan WorkerEvent)
	Cancel(ctx context.Context, workerID string)
}

// Orchestrator is the top-level handle injected into cmd/orchestrator; it
// constructs and tracks Sessions.
type Orchestrator struct {
	store          Store
	calc           *parallelism.Calculator
	readiness      *readiness.Engine
	dispatcher     Dispatcher
	emitter        Emitter
	overrideSigner *OverrideSigner
	cfg            *config.Store
	breaker        *resilience.CircuitBreaker

	mu       sync.Mutex
	sessions map[string]*Session
}

// New wires an Orchestrator from its collaborators. emitter may be nil, in
// which case events are dropped; overrideSigner may be nil, in which case
// allowIncomplete overrides are always rejected.
func New(store Store, calc *parallelism.Calculator, r *readiness.Engine, dispatcher Dispatcher, emitter Emitter, overrideSigner *OverrideSigner, cfg *config.Store) *Orchestrator {
	return &Orchestrator{
		store:          store,
		calc:           calc,
		readiness:      r,
		dispatcher:     dispatcher,
		emitter:        emitter,
		overrideSigner: overrideSigner,
		cfg:            cfg,
		// Guards dispatch against a worker transport that is failing
		// consistently: trips after 5+ samples with a >=50% failure rate in
		// a 30s window, probes again after 10s half-open.
		breaker:  resilience.NewCircuitBreakerAdaptive(30*time.Second, 6, 5, 0.5, 10*time.Second, 2),
		sessions: make(map[string]*Session),
	}
}

func (o *Orchestrator) tunables() config.Tunables {
	if o.cfg == nil {
		return config.Defaults()
	}
	return o.cfg.Get()
}

func (o *Orchestrator) emit(eventType model.EventType, payload interface{}) {
	if o.emitter == nil {
		return
	}
	o.emitter.Publish(eventType, payload)
}

func (o *Orchestrator) registerSession(s *Session) {
	o.mu.Lock()
	o.sessions[s.run.ID] = s
	o.mu.Unlock()
}

// Session returns the tracked session for a run id, if any.
func (o *Orchestrator) Session(runID string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[runID]
	return s, ok
}
