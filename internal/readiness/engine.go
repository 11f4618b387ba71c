// Package readiness is the Readiness Evaluator: it scores a task against
// six weighted rules, delegating the two language-sensitive rules
// (testable, clearCompletion) to an embedded Rego policy so the verifiable-
// phrasing heuristic can be tuned without a rebuild, the way policy-service
// (services/policy-service/opa_engine.go) delegates allow/deny decisions to
// OPA rather than hand-rolled Go conditionals.
package readiness

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/rego"

	"github.com/taskmesh/pto/internal/model"
)

//go:embed readiness.rego
var readinessPolicy string

// Engine evaluates task readiness and caches verdicts per task id.
type Engine struct {
	mu      sync.RWMutex
	cache   map[string]*model.TaskReadiness
	query   rego.PreparedEvalQuery
}

// NewEngine compiles the embedded readiness policy once and returns an
// Engine ready to evaluate tasks.
func NewEngine(ctx context.Context) (*Engine, error) {
	prepared, err := rego.New(
		rego.Query("data.pto.readiness"),
		rego.Module("readiness.rego", readinessPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare readiness policy: %w", err)
	}
	return &Engine{cache: make(map[string]*model.TaskReadiness), query: prepared}, nil
}

// TaskInput is the full context the evaluator needs for one task; callers
// assemble it from the Store Gateway (task, impacts, relationships).
type TaskInput struct {
	Task          *model.Task
	FileImpacts   []*model.FileImpact
	DependsOnSize int
}

// Invalidate drops the cached verdict for taskID, per the mutation contract
// that any change to a task's description, category, impacts, acceptance
// criteria, test commands, effort, or dependencies must invalidate its
// readiness score.
func (e *Engine) Invalidate(taskID string) {
	e.mu.Lock()
	delete(e.cache, taskID)
	e.mu.Unlock()
}

// InvalidateList drops every cached verdict for tasks in taskIDs.
func (e *Engine) InvalidateList(taskIDs []string) {
	e.mu.Lock()
	for _, id := range taskIDs {
		delete(e.cache, id)
	}
	e.mu.Unlock()
}

// Evaluate scores in, consulting the cache unless it was invalidated.
func (e *Engine) Evaluate(ctx context.Context, in TaskInput) (*model.TaskReadiness, error) {
	e.mu.RLock()
	if cached, ok := e.cache[in.Task.ID]; ok {
		e.mu.RUnlock()
		return cached, nil
	}
	e.mu.RUnlock()

	verdict, err := e.score(ctx, in)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[in.Task.ID] = verdict
	e.mu.Unlock()
	return verdict, nil
}

// EvaluateList bulk-evaluates every input and returns the aggregate summary
// alongside per-task verdicts.
func (e *Engine) EvaluateList(ctx context.Context, taskListID string, inputs []TaskInput) (*model.ListReadiness, error) {
	summary := &model.ListReadiness{TaskListID: taskListID, PerTask: make(map[string]*model.TaskReadiness, len(inputs))}
	for _, in := range inputs {
		verdict, err := e.Evaluate(ctx, in)
		if err != nil {
			return nil, err
		}
		summary.PerTask[in.Task.ID] = verdict
		summary.Total++
		if verdict.IsReady {
			summary.Ready++
		} else {
			summary.NotReady++
		}
	}
	return summary, nil
}

func (e *Engine) score(ctx context.Context, in TaskInput) (*model.TaskReadiness, error) {
	var rules []model.RuleScore
	var missing []string

	addRule := func(name model.RuleName, passed bool, comment string) {
		weight := model.RuleWeights[name]
		earned := 0.0
		if passed {
			earned = weight
		} else if comment != "" {
			missing = append(missing, comment)
		}
		rules = append(rules, model.RuleScore{Rule: name, Weight: weight, Earned: earned, Passed: passed, Comment: comment})
	}

	addRule(model.RuleSingleConcern, singleConcernPasses(in.Task), "spans more than one concern")
	addRule(model.RuleBoundedFiles, boundedFilesPasses(in), "file footprint too large or unbounded ('all'/'many' language)")
	addRule(model.RuleTimeBounded, timeBoundedPasses(in.Task), fmt.Sprintf("effort bucket '%s' too large", in.Task.Effort))
	addRule(model.RuleIndependent, independentPasses(in), "has implicit multi-step ('and then') phrasing or too many dependencies")

	testablePass, clearCompletionPass, err := e.evalRego(ctx, in.Task)
	if err != nil {
		return nil, err
	}
	addRule(model.RuleTestable, testablePass, "acceptance criteria or test commands missing")
	addRule(model.RuleClearCompletion, clearCompletionPass, "acceptance criteria missing or not verifiable-phrased")

	overall := 0.0
	for _, r := range rules {
		overall += r.Earned
	}

	return &model.TaskReadiness{
		TaskID:       in.Task.ID,
		Rules:        rules,
		Overall:      overall,
		IsReady:      overall >= model.ReadinessThreshold,
		MissingItems: missing,
	}, nil
}

func (e *Engine) evalRego(ctx context.Context, t *model.Task) (testable, clearCompletion bool, err error) {
	input := map[string]interface{}{
		"acceptance_criteria": t.AcceptanceCriteria,
		"test_commands":       t.TestCommands,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, false, fmt.Errorf("eval readiness policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, false, nil
	}
	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return false, false, nil
	}
	testable, _ = obj["testable_pass"].(bool)
	clearCompletion, _ = obj["clear_completion_pass"].(bool)
	return testable, clearCompletion, nil
}

func singleConcernPasses(t *model.Task) bool {
	return t.Category != "" && !strings.Contains(strings.ToLower(t.Title), " and ")
}

func boundedFilesPasses(in TaskInput) bool {
	if len(in.FileImpacts) > 5 {
		return false
	}
	desc := strings.ToLower(in.Task.Description)
	for _, word := range []string{"all files", "everything", "many files", "*"} {
		if strings.Contains(desc, word) {
			return false
		}
	}
	return true
}

func timeBoundedPasses(t *model.Task) bool {
	switch t.Effort {
	case model.EffortTrivial, model.EffortSmall, model.EffortMedium:
		return true
	default:
		return false
	}
}

func independentPasses(in TaskInput) bool {
	if in.DependsOnSize > 3 {
		return false
	}
	return !strings.Contains(strings.ToLower(in.Task.Description), "and then")
}
