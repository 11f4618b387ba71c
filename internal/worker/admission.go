package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/pto/internal/model"
	"github.com/taskmesh/pto/internal/readiness"
)

// StartOptions carries the inputs to startExecution.
type StartOptions struct {
	TaskListID      string
	ConcurrencyCap  int
	OverrideToken   string // allowIncomplete, verified against TaskListID
}

// StartExecution runs the admission contract: readiness gate, optional
// audited override, wave request, and session creation. It never mutates
// state before the gate decision is final.
func (o *Orchestrator) StartExecution(ctx context.Context, opts StartOptions) (*Session, error) {
	tasks, err := o.store.ListTasksByList(ctx, opts.TaskListID)
	if err != nil {
		return nil, err
	}

	taskIDs := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		taskIDs[t.ID] = true
	}
	rels, err := o.store.ListRelationshipsForTasks(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	dependsOnCount := make(map[string]int, len(tasks))
	for _, r := range rels {
		if r.Type == model.RelDependsOn {
			dependsOnCount[r.SourceTaskID]++
		}
	}

	inputs := make([]readiness.TaskInput, 0, len(tasks))
	for _, t := range tasks {
		impacts, _ := o.store.ListFileImpacts(ctx, t.ID)
		inputs = append(inputs, readiness.TaskInput{Task: t, FileImpacts: impacts, DependsOnSize: dependsOnCount[t.ID]})
	}
	listReadiness, err := o.readiness.EvaluateList(ctx, opts.TaskListID, inputs)
	if err != nil {
		return nil, err
	}

	var incomplete []model.IncompleteTask
	for id, r := range listReadiness.PerTask {
		if !r.IsReady {
			incomplete = append(incomplete, model.IncompleteTask{TaskID: id, Readiness: r.Overall, MissingItems: r.MissingItems})
		}
	}

	if len(incomplete) > 0 {
		authorizedBy := ""
		if opts.OverrideToken != "" && o.overrideSigner != nil {
			by, _, err := o.overrideSigner.Verify(opts.OverrideToken, opts.TaskListID)
			if err != nil {
				return nil, &model.ErrExecutionBlocked{
					Threshold:       model.ReadinessThreshold,
					IncompleteTasks: incomplete,
					Suggestion:      "present a valid allowIncomplete override token to bypass the readiness gate",
				}
			}
			authorizedBy = by
		} else {
			return nil, &model.ErrExecutionBlocked{
				Threshold:       model.ReadinessThreshold,
				IncompleteTasks: incomplete,
				Suggestion:      "raise readiness above 70 or present an allowIncomplete override",
			}
		}

		if err := o.store.PutOverrideLogEntry(ctx, &model.OverrideLogEntry{
			ID:              uuid.NewString(),
			TaskListID:      opts.TaskListID,
			IncompleteCount: len(incomplete),
			OverrideType:    "allowIncomplete",
			AuthorizedBy:    authorizedBy,
			CreatedAt:       time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
		o.emit(model.EventExecutionBlocked, model.ExecutionBlockedPayload{
			TaskListID: opts.TaskListID, IncompleteCount: len(incomplete), Threshold: model.ReadinessThreshold,
		})
	}

	waves, err := o.calc.ComputeWaves(ctx, opts.TaskListID, false)
	if err != nil {
		return nil, err
	}

	cap := opts.ConcurrencyCap
	if cap <= 0 {
		cap = o.tunables().ConcurrencyCap
	}

	run := &model.ExecutionRun{
		ID:         uuid.NewString(),
		TaskListID: opts.TaskListID,
		Status:     model.RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := o.store.PutExecutionRun(ctx, run); err != nil {
		return nil, err
	}

	list, _, err := o.store.GetTaskList(ctx, opts.TaskListID)
	if err == nil && list != nil {
		list.Status = model.ListRunning
		_ = o.store.PutTaskList(ctx, list)
	}

	sess := o.newSession(run, waves, cap)
	o.registerSession(sess)
	sess.start(ctx)
	return sess, nil
}
