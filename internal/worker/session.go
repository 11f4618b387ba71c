package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/taskmesh/pto/internal/model"
	"github.com/taskmesh/pto/internal/platform/resilience"
)

type controlMsg int

const (
	cmdPause controlMsg = iota
	cmdResume
	cmdCancel
)

// Session is one execution of a task list: the control loop, the
// runningTasks map, and the idle-worker bag bounded by the concurrency cap.
type Session struct {
	o    *Orchestrator
	run  *model.ExecutionRun
	cap  int

	waves      []*model.ExecutionWave
	activeWave int

	events  chan WorkerEvent
	control chan controlMsg
	retries chan retryItem
	done    chan struct{}

	limiter *resilience.RateLimiter

	mu            sync.Mutex
	runningTasks  map[string]string // taskID -> workerID
	workerTask    map[string]string // workerID -> taskID
	lastHeartbeat map[string]time.Time
	attempts      map[string][]Attempt
	retrying      map[string]bool // taskID -> awaiting backoff/redispatch, not yet running
	paused        bool
	cancelled     bool
}

func (o *Orchestrator) newSession(run *model.ExecutionRun, ws *model.WaveSet, cap int) *Session {
	rateCap := cap
	if rateCap <= 0 {
		rateCap = 1
	}
	return &Session{
		o:             o,
		run:           run,
		cap:           cap,
		waves:         ws.Waves,
		events:        make(chan WorkerEvent, 64),
		control:       make(chan controlMsg, 4),
		retries:       make(chan retryItem, 16),
		done:          make(chan struct{}),
		limiter:       resilience.NewRateLimiter(int64(rateCap), float64(rateCap), time.Second, int64(rateCap)*4),
		runningTasks:  make(map[string]string),
		workerTask:    make(map[string]string),
		lastHeartbeat: make(map[string]time.Time),
		attempts:      make(map[string][]Attempt),
		retrying:      make(map[string]bool),
	}
}

// start launches the control loop in its own goroutine. All session state
// mutation happens exclusively inside this loop.
func (s *Session) start(ctx context.Context) {
	go s.loop(ctx)
}

// Pause sets the session to paused: no new task assignment, running tasks
// complete or fail naturally.
func (s *Session) Pause() { s.control <- cmdPause }

// Resume moves a paused session back to active assignment.
func (s *Session) Resume() { s.control <- cmdResume }

// Cancel terminates all workers and transitions running tasks to
// cancelled.
func (s *Session) Cancel() { s.control <- cmdCancel }

// Done reports when the session's control loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// RunID returns the execution run id this session is driving.
func (s *Session) RunID() string { return s.run.ID }

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	heartbeatTimeout := s.o.tunables().HeartbeatTimeout
	ticker := time.NewTicker(heartbeatTimeout / 4)
	defer ticker.Stop()

	if len(s.waves) == 0 {
		s.finish(ctx, model.RunComplete)
		return
	}

	s.o.emit(model.EventWaveStarted, model.WaveStartedPayload{
		ExecutionID: s.run.ID, WaveNumber: s.waves[0].WaveNumber, TaskCount: s.waves[0].TotalCount,
	})
	s.dispatchReady(ctx)

	for {
		select {
		case <-ctx.Done():
			s.finish(ctx, model.RunCancelled)
			return

		case cmd := <-s.control:
			switch cmd {
			case cmdPause:
				s.mu.Lock()
				s.paused = true
				s.mu.Unlock()
			case cmdResume:
				s.mu.Lock()
				s.paused = false
				s.mu.Unlock()
				s.dispatchReady(ctx)
			case cmdCancel:
				s.mu.Lock()
				s.cancelled = true
				running := make(map[string]string, len(s.runningTasks))
				for t, w := range s.runningTasks {
					running[t] = w
				}
				s.mu.Unlock()
				for taskID, workerID := range running {
					s.o.dispatcher.Cancel(ctx, workerID)
					s.transitionTask(ctx, taskID, model.TaskCancelled)
				}
				s.finish(ctx, model.RunCancelled)
				return
			}

		case ev := <-s.events:
			s.handleEvent(ctx, ev)
			if s.waveDone() {
				if s.advanceWave(ctx) {
					return
				}
			}

		case <-ticker.C:
			s.checkStalled(ctx)
			if s.waveDone() {
				if s.advanceWave(ctx) {
					return
				}
			} else {
				// retries denied a dispatch slot by the breaker or rate
				// limiter stay pending; give them another chance each tick.
				s.dispatchReady(ctx)
			}

		case r := <-s.retries:
			s.mu.Lock()
			slotAvailable := s.cap-len(s.runningTasks) > 0 && !s.paused && !s.cancelled
			s.mu.Unlock()
			if slotAvailable {
				s.dispatchTask(ctx, r.task, r.diag)
			} else {
				// no free slot yet; the next dispatchReady pass (triggered by a
				// completing task) will pick this task up since its status is
				// already back to pending.
			}
		}
	}
}

func (s *Session) currentWave() *model.ExecutionWave {
	if s.activeWave >= len(s.waves) {
		return nil
	}
	return s.waves[s.activeWave]
}

// dispatchReady hands tasks from the current wave to idle workers, in
// position order, up to the concurrency cap.
func (s *Session) dispatchReady(ctx context.Context) {
	s.mu.Lock()
	if s.paused || s.cancelled {
		s.mu.Unlock()
		return
	}
	wave := s.currentWave()
	if wave == nil {
		s.mu.Unlock()
		return
	}
	slotsFree := s.cap - len(s.runningTasks)
	s.mu.Unlock()
	if slotsFree <= 0 {
		return
	}

	ids := append([]string{}, wave.TaskIDs...)

	for _, taskID := range ids {
		if slotsFree <= 0 {
			break
		}
		s.mu.Lock()
		_, running := s.runningTasks[taskID]
		s.mu.Unlock()
		if running {
			continue
		}
		task, ok, err := s.o.store.GetTask(ctx, taskID)
		if err != nil || !ok || task.Status != model.TaskPending {
			continue
		}
		s.dispatchTask(ctx, task, nil)
		slotsFree--
	}
}

// dispatchTask hands one task to the dispatcher, gated by the orchestrator's
// circuit breaker (fail-fast while the worker transport is unhealthy) and
// the session's rate limiter (bound dispatch bursts). Neither gate alters
// task status on denial: the task is left pending for the next
// dispatchReady pass to retry.
func (s *Session) dispatchTask(ctx context.Context, task *model.Task, diag *DiagnosisContext) {
	if !s.o.breaker.Allow() {
		slog.Warn("dispatch circuit open, deferring task", "task", task.ID)
		return
	}
	if !s.limiter.Allow() {
		return
	}

	s.transitionTask(ctx, task.ID, model.TaskRunning)
	workerID, events := s.o.dispatcher.Dispatch(ctx, task, diag)

	s.mu.Lock()
	s.runningTasks[task.ID] = workerID
	s.workerTask[workerID] = task.ID
	s.lastHeartbeat[workerID] = time.Now()
	delete(s.retrying, task.ID)
	s.mu.Unlock()

	_ = s.o.store.PutWorker(ctx, &model.Worker{ID: workerID, Status: model.WorkerWorking, CurrentTaskID: task.ID, LastHeartbeat: time.Now()})
	waveNumber := 0
	if w := s.currentWave(); w != nil {
		waveNumber = w.WaveNumber
	}
	s.o.emit(model.EventTaskStarted, model.TaskStartedPayload{TaskID: task.ID, WorkerID: workerID, WaveNumber: waveNumber})

	go func() {
		for ev := range events {
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

func (s *Session) handleEvent(ctx context.Context, ev WorkerEvent) {
	switch ev.Kind {
	case EventHeartbeat:
		s.mu.Lock()
		s.lastHeartbeat[ev.WorkerID] = time.Now()
		s.mu.Unlock()
		s.o.emit(model.EventWorkerHeartbeat, model.WorkerHeartbeatPayload{WorkerID: ev.WorkerID, TaskID: ev.TaskID, Progress: ev.Progress})
	case EventComplete:
		s.completeTask(ctx, ev)
	case EventFail:
		s.failTask(ctx, ev)
	}
}

func (s *Session) completeTask(ctx context.Context, ev WorkerEvent) {
	s.o.breaker.RecordResult(true)
	s.releaseWorker(ctx, ev.WorkerID, ev.TaskID)
	s.transitionTask(ctx, ev.TaskID, model.TaskComplete)
	s.o.emit(model.EventTaskCompleted, model.TaskCompletedPayload{TaskID: ev.TaskID})
	s.dispatchReady(ctx)
}

func (s *Session) failTask(ctx context.Context, ev WorkerEvent) {
	s.o.breaker.RecordResult(false)
	s.releaseWorker(ctx, ev.WorkerID, ev.TaskID)
	attemptCount := s.recordFailureAttempt(ev.TaskID, ev.Reason)

	maxAttempts := s.o.tunables().RetryMaxAttempts
	if ev.Class == FailureRetryable && attemptCount <= maxAttempts {
		s.o.emit(model.EventTaskFailed, model.TaskFailedPayload{TaskID: ev.TaskID, Reason: ev.Reason, Attempt: attemptCount})
		s.scheduleRetry(ctx, ev.TaskID)
		return
	}

	s.transitionTask(ctx, ev.TaskID, model.TaskFailed)
	s.o.emit(model.EventTaskFailed, model.TaskFailedPayload{TaskID: ev.TaskID, Reason: ev.Reason, Attempt: attemptCount})
}

// recordFailureAttempt appends a failure to a task's attempt history and
// returns the new attempt count, shared by worker-reported failures and
// heartbeat-stall detection so both paths are bound by the same retry
// budget.
func (s *Session) recordFailureAttempt(taskID, reason string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[taskID] = append(s.attempts[taskID], Attempt{Number: len(s.attempts[taskID]) + 1, Error: reason, FailedAt: time.Now()})
	return len(s.attempts[taskID])
}

// scheduleRetry gathers diagnosis context and respawns the task after a
// backoff delay, incrementing its attempt counter.
func (s *Session) scheduleRetry(ctx context.Context, taskID string) {
	task, ok, err := s.o.store.GetTask(ctx, taskID)
	if err != nil || !ok {
		return
	}
	task.Status = model.TaskPending
	task.AttemptCount++
	_ = s.o.store.PutTask(ctx, task)

	s.mu.Lock()
	s.retrying[taskID] = true
	history := append([]Attempt{}, s.attempts[taskID]...)
	s.mu.Unlock()

	knownFix, _ := resilience.Retry(ctx, 3, 100*time.Millisecond, func() (string, error) {
		return knowledgeBaseLookup(fingerprint(history))
	})

	diag := &DiagnosisContext{
		Task:     &taskSnapshot{ID: task.ID, Title: task.Title, Description: task.Description},
		Attempts: history,
		KnownFix: knownFix,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.o.tunables().RetryBaseDelay
	bo.MaxElapsedTime = 0
	delay := bo.NextBackOff()
	for i := 1; i < len(history); i++ {
		delay = bo.NextBackOff()
	}

	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
		select {
		case s.retries <- retryItem{task: task, diag: diag}:
		case <-ctx.Done():
		case <-s.done:
		}
	}()
}

// retryItem is handed back to the control loop once a retry's backoff delay
// elapses, so dispatch stays serialized through the single control goroutine.
type retryItem struct {
	task *model.Task
	diag *DiagnosisContext
}

func (s *Session) releaseWorker(ctx context.Context, workerID, taskID string) {
	s.mu.Lock()
	delete(s.runningTasks, taskID)
	delete(s.workerTask, workerID)
	delete(s.lastHeartbeat, workerID)
	s.mu.Unlock()
	_ = s.o.store.DeleteWorker(ctx, workerID)
}

func (s *Session) transitionTask(ctx context.Context, taskID string, status model.TaskStatus) {
	task, ok, err := s.o.store.GetTask(ctx, taskID)
	if err != nil || !ok {
		return
	}
	task.Status = status
	now := time.Now().UTC()
	switch status {
	case model.TaskRunning:
		task.StartedAt = &now
	case model.TaskComplete, model.TaskFailed, model.TaskCancelled:
		task.CompletedAt = &now
	}
	_ = s.o.store.PutTask(ctx, task)
}

// checkStalled terminates any worker whose last heartbeat exceeds the
// configured timeout, blocking its task and emitting worker:stalled. A
// stalled task follows the same retry budget as a worker-reported failure:
// running → blocked, then back to pending for re-dispatch while the attempt
// counter is within budget, or to terminal failed once it is exhausted.
func (s *Session) checkStalled(ctx context.Context) {
	timeout := s.o.tunables().HeartbeatTimeout
	now := time.Now()

	s.mu.Lock()
	var stalled []string
	for workerID, last := range s.lastHeartbeat {
		if now.Sub(last) > timeout {
			stalled = append(stalled, workerID)
		}
	}
	s.mu.Unlock()

	maxAttempts := s.o.tunables().RetryMaxAttempts
	for _, workerID := range stalled {
		s.mu.Lock()
		taskID := s.workerTask[workerID]
		lastAt := s.lastHeartbeat[workerID]
		s.mu.Unlock()

		s.o.breaker.RecordResult(false)
		s.o.dispatcher.Cancel(ctx, workerID)
		s.releaseWorker(ctx, workerID, taskID)
		s.transitionTask(ctx, taskID, model.TaskBlocked)
		s.o.emit(model.EventWorkerStalled, model.WorkerStalledPayload{WorkerID: workerID, TaskID: taskID, LastHeartbeatAt: lastAt.Unix()})
		slog.Warn("worker stalled", "worker", workerID, "task", taskID)

		attemptCount := s.recordFailureAttempt(taskID, "worker heartbeat stalled")
		if attemptCount <= maxAttempts {
			s.scheduleRetry(ctx, taskID)
			continue
		}
		s.transitionTask(ctx, taskID, model.TaskFailed)
		s.o.emit(model.EventTaskFailed, model.TaskFailedPayload{TaskID: taskID, Reason: "worker heartbeat stalled", Attempt: attemptCount})
	}
}

// waveDone reports whether the current wave's tasks are all settled: none
// still running and none awaiting a retry redispatch.
func (s *Session) waveDone() bool {
	wave := s.currentWave()
	if wave == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range wave.TaskIDs {
		if _, running := s.runningTasks[id]; running {
			return false
		}
		if s.retrying[id] {
			return false
		}
	}
	return true
}

// advanceWave closes the current wave and either starts the next one or
// finishes the run. Returns true if the run finished (success or failure).
func (s *Session) advanceWave(ctx context.Context) bool {
	wave := s.currentWave()
	completed, failed := 0, 0
	for _, id := range wave.TaskIDs {
		task, ok, _ := s.o.store.GetTask(ctx, id)
		if !ok {
			continue
		}
		if task.Status == model.TaskComplete {
			completed++
		} else if task.Status == model.TaskFailed || task.Status == model.TaskBlocked {
			failed++
		}
	}
	wave.Status = model.WaveComplete
	wave.CompletedCount = completed
	wave.FailedCount = failed
	_ = s.o.store.PutWave(ctx, wave)
	s.o.emit(model.EventWaveCompleted, model.WaveCompletedPayload{ExecutionID: s.run.ID, WaveNumber: wave.WaveNumber, Completed: completed, Failed: failed})

	if failed > 0 {
		s.finish(ctx, model.RunFailed)
		return true
	}

	s.activeWave++
	next := s.currentWave()
	if next == nil {
		s.finish(ctx, model.RunComplete)
		return true
	}
	s.o.emit(model.EventWaveStarted, model.WaveStartedPayload{ExecutionID: s.run.ID, WaveNumber: next.WaveNumber, TaskCount: next.TotalCount})
	s.dispatchReady(ctx)
	return false
}

func (s *Session) finish(ctx context.Context, status model.ExecutionRunStatus) {
	now := time.Now().UTC()
	s.run.Status = status
	s.run.CompletedAt = &now
	_ = s.o.store.PutExecutionRun(ctx, s.run)

	listStatus := model.ListComplete
	if status == model.RunFailed {
		listStatus = model.ListFailed
	} else if status == model.RunCancelled {
		listStatus = model.ListFailed
	}
	if list, ok, err := s.o.store.GetTaskList(ctx, s.run.TaskListID); err == nil && ok {
		list.Status = listStatus
		_ = s.o.store.PutTaskList(ctx, list)
	}
}

func fingerprint(attempts []Attempt) string {
	if len(attempts) == 0 {
		return ""
	}
	return attempts[len(attempts)-1].Error
}

var knownFixes = map[string]string{}

// knowledgeBaseLookup matches an error fingerprint against known fixes. The
// in-memory stub never errors, but the signature matches a real
// network-backed knowledge base so resilience.Retry in scheduleRetry is
// exercised the same way it would be against a flaky remote call.
func knowledgeBaseLookup(errFingerprint string) (string, error) {
	if fix, ok := knownFixes[errFingerprint]; ok {
		return fix, nil
	}
	return "", nil
}
