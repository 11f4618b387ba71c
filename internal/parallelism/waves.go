package parallelism

import (
	"context"
	"sort"
	"strconv"

	"github.com/taskmesh/pto/internal/graph"
	"github.com/taskmesh/pto/internal/model"
)

// ComputeWaves implements the scheduling algorithm from the calculator
// contract: it assigns eligible tasks to waves such that each wave's
// members have no depends_on edge and no significant file conflict between
// them, greedily admitting candidates in (position, id) order for
// determinism.
func (c *Calculator) ComputeWaves(ctx context.Context, taskListID string, forceReanalyze bool) (*model.WaveSet, error) {
	allTasks, err := c.store.ListTasksByList(ctx, taskListID)
	if err != nil {
		return nil, err
	}

	tasks := make([]*model.Task, 0, len(allTasks))
	taskIDs := make(map[string]bool)
	byID := make(map[string]*model.Task)
	for _, t := range allTasks {
		if !eligible(t) {
			continue
		}
		tasks = append(tasks, t)
		taskIDs[t.ID] = true
		byID[t.ID] = t
	}

	if len(tasks) == 0 {
		return &model.WaveSet{TaskListID: taskListID, Waves: nil, Analyses: map[string]*model.ParallelismAnalysis{}}, nil
	}

	rels, err := c.store.ListRelationshipsForTasks(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	g := graph.New(byID, rels)

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		return tasks[i].ID < tasks[j].ID
	})

	analyses := make(map[string]*model.ParallelismAnalysis)
	verdict := func(a, b *model.Task) (*model.ParallelismAnalysis, error) {
		x, y := model.PairKey(a.ID, b.ID)
		key := x + ":" + y
		if v, ok := analyses[key]; ok {
			return v, nil
		}
		v, err := c.Analyze(ctx, a, b, g, forceReanalyze)
		if err != nil {
			return nil, err
		}
		analyses[key] = v
		return v, nil
	}

	assigned := make(map[string]bool, len(tasks))
	var waves []*model.ExecutionWave
	waveNum := 0
	maxParallelism := 1

	for len(assigned) < len(tasks) {
		waveNum++
		var candidates []*model.Task
		for _, t := range tasks {
			if assigned[t.ID] {
				continue
			}
			if dependsAllAssigned(g, t.ID, assigned) {
				candidates = append(candidates, t)
			}
		}

		var selected []*model.Task
		for _, t := range candidates {
			compatible := true
			for _, s := range selected {
				v, err := verdict(t, s)
				if err != nil {
					return nil, err
				}
				if !v.CanParallel {
					compatible = false
					break
				}
			}
			if compatible {
				selected = append(selected, t)
			}
		}

		if len(selected) == 0 {
			remaining := make([]string, 0, len(tasks)-len(assigned))
			for _, t := range tasks {
				if !assigned[t.ID] {
					remaining = append(remaining, t.ID)
				}
			}
			return nil, &model.ErrCycleOrDeadlock{Remaining: remaining}
		}

		taskIDList := make([]string, len(selected))
		for i, t := range selected {
			taskIDList[i] = t.ID
			assigned[t.ID] = true
		}
		if len(selected) > maxParallelism {
			maxParallelism = len(selected)
		}

		waves = append(waves, &model.ExecutionWave{
			ID:             taskListID + ":wave:" + strconv.Itoa(waveNum),
			TaskListID:     taskListID,
			WaveNumber:     waveNum,
			Status:         model.WavePending,
			TaskIDs:        taskIDList,
			TotalCount:     len(taskIDList),
			MaxParallelism: len(taskIDList),
		})
	}

	return &model.WaveSet{TaskListID: taskListID, Waves: waves, Analyses: analyses, MaxParallelism: maxParallelism}, nil
}

func dependsAllAssigned(g *graph.Graph, taskID string, assigned map[string]bool) bool {
	for dep := range g.DependsOn(taskID) {
		if !assigned[dep] {
			return false
		}
	}
	return true
}
