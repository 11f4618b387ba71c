package model

// RuleName identifies one of the six readiness rules in spec.md §4.F.
type RuleName string

const (
	RuleSingleConcern   RuleName = "singleConcern"
	RuleBoundedFiles    RuleName = "boundedFiles"
	RuleTimeBounded     RuleName = "timeBounded"
	RuleTestable        RuleName = "testable"
	RuleIndependent     RuleName = "independent"
	RuleClearCompletion RuleName = "clearCompletion"
)

// RuleWeights gives each rule's contribution to the 100-point composite.
var RuleWeights = map[RuleName]float64{
	RuleSingleConcern:   15,
	RuleBoundedFiles:    20,
	RuleTimeBounded:     10,
	RuleTestable:        20,
	RuleIndependent:     15,
	RuleClearCompletion: 20,
}

// ReadinessThreshold is the overall score at or above which a task is ready.
const ReadinessThreshold = 70.0

// RuleScore is one rule's pass/fail verdict and the fraction of its weight earned.
type RuleScore struct {
	Rule    RuleName `json:"rule"`
	Weight  float64  `json:"weight"`
	Earned  float64  `json:"earned"`
	Passed  bool     `json:"passed"`
	Comment string   `json:"comment,omitempty"`
}

// TaskReadiness is the derived, cacheable readiness verdict for one task.
type TaskReadiness struct {
	TaskID       string      `json:"task_id"`
	Rules        []RuleScore `json:"rules"`
	Overall      float64     `json:"overall"`
	IsReady      bool        `json:"is_ready"`
	MissingItems []string    `json:"missing_items"`
}

// ListReadiness aggregates per-task readiness for an entire task list.
type ListReadiness struct {
	TaskListID string                    `json:"task_list_id"`
	Total      int                       `json:"total"`
	Ready      int                       `json:"ready"`
	NotReady   int                       `json:"not_ready"`
	PerTask    map[string]*TaskReadiness `json:"per_task"`
}
