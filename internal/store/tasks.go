package store

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskmesh/pto/internal/model"
)

// PutTask inserts or replaces a task row.
func (g *Gateway) PutTask(ctx context.Context, t *model.Task) error {
	start := time.Now()
	defer g.recordLatency(ctx, g.writeLatency, "put_task", start)

	t.UpdatedAt = time.Now().UTC()
	data, err := jsonMarshal(t)
	if err != nil {
		return &model.ErrStore{Op: "put_task", Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTasks).Put([]byte(t.ID), data)
	})
	if err != nil {
		return &model.ErrStore{Op: "put_task", Err: err}
	}
	cp := *t
	g.tasks[t.ID] = &cp
	return nil
}

// GetTask returns a task by id, serving from cache when warm.
func (g *Gateway) GetTask(ctx context.Context, id string) (*model.Task, bool, error) {
	start := time.Now()
	defer g.recordLatency(ctx, g.readLatency, "get_task", start)

	g.mu.RLock()
	if t, ok := g.tasks[id]; ok {
		g.mu.RUnlock()
		g.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "task")))
		cp := *t
		return &cp, true, nil
	}
	g.mu.RUnlock()
	g.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "task")))

	var t model.Task
	found := false
	err := g.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return jsonUnmarshal(data, &t)
	})
	if err != nil {
		return nil, false, &model.ErrStore{Op: "get_task", Err: err}
	}
	if !found {
		return nil, false, nil
	}
	return &t, true, nil
}

// ListTasksByList returns every task belonging to taskListID, ordered by
// position. Callers needing freshest state must call Reload first.
func (g *Gateway) ListTasksByList(ctx context.Context, taskListID string) ([]*model.Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*model.Task, 0)
	for _, t := range g.tasks {
		if t.TaskListID == taskListID {
			cp := *t
			out = append(out, &cp)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Position < out[j-1].Position; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// DeleteTask removes a task row.
func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTasks).Delete([]byte(id))
	})
	if err != nil {
		return &model.ErrStore{Op: "delete_task", Err: err}
	}
	delete(g.tasks, id)
	return nil
}

// PutTaskList inserts or replaces a task list row.
func (g *Gateway) PutTaskList(ctx context.Context, l *model.TaskList) error {
	start := time.Now()
	defer g.recordLatency(ctx, g.writeLatency, "put_task_list", start)

	l.UpdatedAt = time.Now().UTC()
	data, err := jsonMarshal(l)
	if err != nil {
		return &model.ErrStore{Op: "put_task_list", Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTaskLists).Put([]byte(l.ID), data)
	})
	if err != nil {
		return &model.ErrStore{Op: "put_task_list", Err: err}
	}
	cp := *l
	g.taskLists[l.ID] = &cp
	return nil
}

// GetTaskList returns a task list by id.
func (g *Gateway) GetTaskList(ctx context.Context, id string) (*model.TaskList, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.taskLists[id]
	if !ok {
		return nil, false, nil
	}
	cp := *l
	return &cp, true, nil
}

// ValidateOrdering is a defensive check PutParallelismAnalysis runs before
// every write; a violation is a programmer bug.
func (g *Gateway) ValidateOrdering(a, b string) error {
	if a >= b {
		return &model.ErrConfig{Reason: fmt.Sprintf("pair stored out of order: %s >= %s", a, b)}
	}
	return nil
}
