package worker

import "time"

// WorkerEventKind names the three things a dispatched worker can report.
type WorkerEventKind string

const (
	EventComplete  WorkerEventKind = "complete"
	EventFail      WorkerEventKind = "fail"
	EventHeartbeat WorkerEventKind = "heartbeat"
)

// FailureClass distinguishes a retryable failure from a terminal one, per
// the worker contract.
type FailureClass string

const (
	FailureRetryable FailureClass = "retryable"
	FailureTerminal  FailureClass = "terminal"
)

// WorkerEvent is one lifecycle message from a dispatched worker.
type WorkerEvent struct {
	Kind      WorkerEventKind
	WorkerID  string
	TaskID    string
	Progress  float64
	Reason    string
	Class     FailureClass
	CPUPercent float64
	MemoryMB   float64
	At        time.Time
}

// Attempt records one prior try at a task, used to build diagnosis context
// for the next retry.
type Attempt struct {
	Number    int
	Error     string
	FailedAt  time.Time
}

// DiagnosisContext is handed to a worker spawned as a retry so it can see
// what went wrong before.
type DiagnosisContext struct {
	Task     *taskSnapshot
	Attempts []Attempt
	KnownFix string
}

type taskSnapshot struct {
	ID          string
	Title       string
	Description string
}
