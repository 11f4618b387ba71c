package worker

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/taskmesh/pto/internal/model"
)

// SimDispatcher is the default Dispatcher when no real build-agent transport
// is wired in: it simulates execution cost and reports completion, the same
// "simulate execution cost" placeholder the observed source's execute()
// used before a real worker pool existed. cmd/orchestrator uses this so the
// admission and execution contract can be exercised end to end without a
// build-agent process.
type SimDispatcher struct {
	Delay time.Duration

	mu      sync.Mutex
	counter int
	cancels map[string]context.CancelFunc
}

// NewSimDispatcher returns a dispatcher that completes every task after
// delay. A zero delay still yields to the scheduler once.
func NewSimDispatcher(delay time.Duration) *SimDispatcher {
	return &SimDispatcher{Delay: delay, cancels: make(map[string]context.CancelFunc)}
}

func (d *SimDispatcher) Dispatch(ctx context.Context, task *model.Task, diagnosis *DiagnosisContext) (string, <-chan WorkerEvent) {
	d.mu.Lock()
	d.counter++
	workerID := "sim-" + task.ID + "-" + strconv.Itoa(d.counter)
	workCtx, cancel := context.WithCancel(ctx)
	d.cancels[workerID] = cancel
	d.mu.Unlock()

	events := make(chan WorkerEvent, 1)
	go func() {
		defer close(events)
		if diagnosis != nil {
			slog.Info("sim dispatch with diagnosis", "task", task.ID, "attempts", len(diagnosis.Attempts))
		}
		select {
		case <-time.After(d.Delay):
		case <-workCtx.Done():
			return
		}
		events <- WorkerEvent{Kind: EventComplete, WorkerID: workerID, TaskID: task.ID, At: time.Now()}
	}()
	return workerID, events
}

func (d *SimDispatcher) Cancel(ctx context.Context, workerID string) {
	d.mu.Lock()
	cancel, ok := d.cancels[workerID]
	delete(d.cancels, workerID)
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

