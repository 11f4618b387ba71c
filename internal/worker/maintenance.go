package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskmesh/pto/internal/model"
)

// Maintainer runs the periodic housekeeping jobs the orchestrator needs
// outside any single session: orphaned stalled-worker reaping and
// terminated-worker-record eviction, on the same cron.New(cron.WithSeconds())/AddFunc/Stop(ctx) shape
// as the observed source's Scheduler.
type Maintainer struct {
	o    *Orchestrator
	cron *cron.Cron
}

// NewMaintainer builds a Maintainer bound to o. Call Start to begin running
// jobs on the interval in o's tunables.
func NewMaintainer(o *Orchestrator) *Maintainer {
	return &Maintainer{
		o:    o,
		cron: cron.New(cron.WithSeconds()),
	}
}

// Start registers and begins the housekeeping jobs. The interval is read
// once at startup; changing MaintenanceInterval at runtime requires
// restarting the Maintainer.
func (m *Maintainer) Start(ctx context.Context) error {
	interval := m.o.tunables().MaintenanceInterval
	spec := "@every " + interval.String()

	if _, err := m.cron.AddFunc(spec, func() {
		m.sweepStalledWorkers(ctx)
	}); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(spec, func() {
		m.evictOrphanedWorkerRecords(ctx)
	}); err != nil {
		return err
	}

	m.cron.Start()
	slog.Info("maintenance scheduler started", "interval", interval)
	return nil
}

// Stop gracefully waits for in-flight jobs to finish, bounded by ctx.
func (m *Maintainer) Stop(ctx context.Context) error {
	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweepStalledWorkers catches workers whose heartbeat went quiet without an
// active session noticing — e.g. after a crash-restart where in-memory
// session state was lost but the worker row survived in the store.
func (m *Maintainer) sweepStalledWorkers(ctx context.Context) {
	workers, err := m.o.store.ListWorkers(ctx)
	if err != nil {
		slog.Error("maintenance: list workers failed", "error", err)
		return
	}
	timeout := m.o.tunables().HeartbeatTimeout
	now := time.Now()
	for _, w := range workers {
		if w.Status != model.WorkerWorking {
			continue
		}
		if now.Sub(w.LastHeartbeat) <= timeout {
			continue
		}
		if _, tracked := m.sessionForWorker(w); tracked {
			continue // an active session's own ticker owns this worker
		}
		slog.Warn("maintenance: reaping orphaned stalled worker", "worker", w.ID, "task", w.CurrentTaskID)
		if task, ok, err := m.o.store.GetTask(ctx, w.CurrentTaskID); err == nil && ok {
			task.Status = model.TaskBlocked
			_ = m.o.store.PutTask(ctx, task)
		}
		_ = m.o.store.DeleteWorker(ctx, w.ID)
	}
}

// sessionForWorker reports whether a live session already owns worker w,
// so the maintenance sweep doesn't race an active control loop.
func (m *Maintainer) sessionForWorker(w *model.Worker) (*Session, bool) {
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	for _, s := range m.o.sessions {
		s.mu.Lock()
		_, owned := s.workerTask[w.ID]
		s.mu.Unlock()
		if owned {
			return s, true
		}
	}
	return nil, false
}

// evictOrphanedWorkerRecords removes worker rows whose status is
// terminated. Rows still marked working are left to sweepStalledWorkers.
func (m *Maintainer) evictOrphanedWorkerRecords(ctx context.Context) {
	workers, err := m.o.store.ListWorkers(ctx)
	if err != nil {
		return
	}
	for _, w := range workers {
		if w.Status == model.WorkerTerminated {
			_ = m.o.store.DeleteWorker(ctx, w.ID)
		}
	}
}
