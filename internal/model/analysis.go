package model

import "time"

// ConflictType classifies why a task pair cannot run in parallel.
type ConflictType string

const (
	ConflictNone       ConflictType = "none"
	ConflictDependency ConflictType = "dependency"
	ConflictFile       ConflictType = "file_conflict"
)

// ConflictKind is the fine-grained classification from the 4x4 operation
// matrix in spec.md §4.B.
type ConflictKind string

const (
	KindNoConflict    ConflictKind = "no_conflict"
	KindCreateCreate  ConflictKind = "create_create"
	KindCreateDelete  ConflictKind = "create_delete"
	KindWriteWrite    ConflictKind = "write_write"
	KindReadDelete    ConflictKind = "read_delete"
)

// FileConflict names one colliding path and the two operations claimed on it.
type FileConflict struct {
	Path string    `json:"path"`
	OpA  Operation `json:"op_a"`
	OpB  Operation `json:"op_b"`
	Kind ConflictKind `json:"kind"`
}

// ConflictDetails is a tagged variant: exactly one of Direction or Files is
// populated, selected by the owning ParallelismAnalysis.ConflictType. This
// replaces the observed source's untyped JSON blob per spec.md §9.
type ConflictDetails struct {
	// Direction is set when ConflictType == ConflictDependency.
	Direction *DependencyDirection `json:"direction,omitempty"`
	// Files is set when ConflictType == ConflictFile.
	Files []FileConflict `json:"files,omitempty"`
}

// DependencyDirection records which task depends on which, and whether the
// edge was authored by a human or synthesized by the Conflict Resolver.
type DependencyDirection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	AutoResolved bool   `json:"auto_resolved"`
}

// ParallelismAnalysis is the cached pairwise verdict for an unordered task
// pair. TaskAID is always lexicographically less than TaskBID.
type ParallelismAnalysis struct {
	ID            string          `json:"id"`
	TaskAID       string          `json:"task_a_id"`
	TaskBID       string          `json:"task_b_id"`
	CanParallel   bool            `json:"can_parallel"`
	ConflictType  ConflictType    `json:"conflict_type"`
	Details       ConflictDetails `json:"conflict_details"`
	AnalyzedAt    time.Time       `json:"analyzed_at"`
	InvalidatedAt *time.Time      `json:"invalidated_at,omitempty"`
}

// PairKey returns the canonical (a, b) key with a < b lexicographically, per
// the ordering constraint in spec.md §6.
func PairKey(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// WaveStatus is the lifecycle state of an ExecutionWave.
type WaveStatus string

const (
	WavePending  WaveStatus = "pending"
	WaveActive   WaveStatus = "active"
	WaveComplete WaveStatus = "complete"
	WaveFailed   WaveStatus = "failed"
)

// ExecutionWave is a batch of tasks scheduled to run concurrently.
type ExecutionWave struct {
	ID         string     `json:"id"`
	TaskListID string     `json:"task_list_id"`
	WaveNumber int        `json:"wave_number"`
	Status     WaveStatus `json:"status"`

	TaskIDs []string `json:"task_ids"`

	TotalCount     int `json:"total_count"`
	CompletedCount int `json:"completed_count"`
	RunningCount   int `json:"running_count"`
	FailedCount    int `json:"failed_count"`
	BlockedCount   int `json:"blocked_count"`

	MaxParallelism    int `json:"max_parallelism"`
	ActualParallelism int `json:"actual_parallelism"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// WaveSet is the full output of the Parallelism Calculator for one task list.
type WaveSet struct {
	TaskListID     string                          `json:"task_list_id"`
	Waves          []*ExecutionWave                `json:"waves"`
	Analyses       map[string]*ParallelismAnalysis `json:"-"`
	MaxParallelism int                              `json:"max_parallelism"`
}
