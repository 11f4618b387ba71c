// Package model holds the shared types that flow between every PTO component:
// tasks, task lists, relationships, file impacts, and the tagged-variant
// payloads that used to be opaque JSON blobs in the observed source.
package model

import "time"

// TaskStatus is the lifecycle state of a Task. Transitions are monotonic per
// the state machine in spec.md §4.G.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskEvaluating TaskStatus = "evaluating"
	TaskRunning    TaskStatus = "running"
	TaskComplete   TaskStatus = "complete"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
	TaskSkipped    TaskStatus = "skipped"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether status can never transition further.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskComplete, TaskFailed, TaskCancelled, TaskSkipped:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// Rank returns 0 for P1 (highest) through 3 for P4, matching the Graph
// Analyzer's edge-removal scoring in spec.md §4.C.
func (p Priority) Rank() int {
	switch p {
	case PriorityP1:
		return 0
	case PriorityP2:
		return 1
	case PriorityP3:
		return 2
	case PriorityP4:
		return 3
	default:
		return 3
	}
}

type Effort string

const (
	EffortTrivial Effort = "trivial"
	EffortSmall   Effort = "small"
	EffortMedium  Effort = "medium"
	EffortLarge   Effort = "large"
	EffortEpic    Effort = "epic"
)

// Task is the unit of work scheduled by the PTO.
type Task struct {
	ID          string     `json:"id"`
	DisplayID   string     `json:"display_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	Effort      Effort     `json:"effort"`
	TaskListID  string     `json:"task_list_id,omitempty"`
	ProjectID   string     `json:"project_id,omitempty"`
	Position    int        `json:"position"`

	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	TestCommands       []string `json:"test_commands,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AttemptCount int `json:"attempt_count"`
}

// TaskListStatus is the lifecycle state of a TaskList.
type TaskListStatus string

const (
	ListDraft    TaskListStatus = "draft"
	ListReady    TaskListStatus = "ready"
	ListRunning  TaskListStatus = "running"
	ListPaused   TaskListStatus = "paused"
	ListComplete TaskListStatus = "complete"
	ListFailed   TaskListStatus = "failed"
)

// TaskList is an ordered, named collection of tasks to execute together.
type TaskList struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ProjectID string         `json:"project_id,omitempty"`
	Status    TaskListStatus `json:"status"`

	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Operation is the effect a task claims on a file.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpRead   Operation = "READ"
)

// Provenance tags how a FileImpact was discovered.
type Provenance string

const (
	ProvenanceAI       Provenance = "ai-inferred"
	ProvenanceUser     Provenance = "user"
	ProvenanceActual   Provenance = "actual-after-run"
)

// FileImpact is a claimed effect of a task on a file path.
type FileImpact struct {
	TaskID     string     `json:"task_id"`
	FilePath   string     `json:"file_path"`
	Operation  Operation  `json:"operation"`
	Confidence float64    `json:"confidence"`
	Source     Provenance `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RelationshipType enumerates the directed edge kinds between tasks. Only
// DependsOn affects scheduling; the rest are informational.
type RelationshipType string

const (
	RelDependsOn   RelationshipType = "depends_on"
	RelBlocks      RelationshipType = "blocks"
	RelParentOf    RelationshipType = "parent_of"
	RelChildOf     RelationshipType = "child_of"
	RelRelatedTo   RelationshipType = "related_to"
	RelDuplicateOf RelationshipType = "duplicate_of"
	RelSupersedes  RelationshipType = "supersedes"
	RelImplements  RelationshipType = "implements"
	RelConflicts   RelationshipType = "conflicts_with"
	RelEnables     RelationshipType = "enables"
	RelInspiredBy  RelationshipType = "inspired_by"
	RelTests       RelationshipType = "tests"
)

// Relationship is a directed edge between two tasks.
type Relationship struct {
	ID             string           `json:"id"`
	SourceTaskID   string           `json:"source_task_id"`
	TargetTaskID   string           `json:"target_task_id"`
	Type           RelationshipType `json:"relationship_type"`
	AutoResolved   bool             `json:"auto_resolved"`
	CreatedAt      time.Time        `json:"created_at"`
}
