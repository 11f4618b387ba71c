package model

import "time"

// WorkerStatus is the lifecycle state of a build agent instance.
type WorkerStatus string

const (
	WorkerIdle       WorkerStatus = "idle"
	WorkerWorking    WorkerStatus = "working"
	WorkerBlocked    WorkerStatus = "blocked"
	WorkerError      WorkerStatus = "error"
	WorkerTerminated WorkerStatus = "terminated"
)

// Worker is an external build-agent process admitted to execute one task at
// a time under orchestrator supervision.
type Worker struct {
	ID            string       `json:"id"`
	SessionID     string       `json:"session_id"`
	Status        WorkerStatus `json:"status"`
	CurrentTaskID string       `json:"current_task_id,omitempty"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	Progress      float64      `json:"progress"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryMB      float64      `json:"memory_mb"`
}

// ExecutionRunStatus mirrors TaskListStatus for a single run record.
type ExecutionRunStatus string

const (
	RunRunning   ExecutionRunStatus = "running"
	RunPaused    ExecutionRunStatus = "paused"
	RunComplete  ExecutionRunStatus = "complete"
	RunFailed    ExecutionRunStatus = "failed"
	RunCancelled ExecutionRunStatus = "cancelled"
)

// ExecutionRun is one invocation of the Worker Orchestrator over a task list.
type ExecutionRun struct {
	ID         string             `json:"id"`
	TaskListID string             `json:"task_list_id"`
	RunNumber  int                `json:"run_number"`
	Status     ExecutionRunStatus `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// OverrideLogEntry records an allowIncomplete admission override for audit.
type OverrideLogEntry struct {
	ID              string    `json:"id"`
	TaskListID      string    `json:"task_list_id"`
	IncompleteCount int       `json:"incomplete_count"`
	OverrideType    string    `json:"override_type"`
	AuthorizedBy    string    `json:"authorized_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
