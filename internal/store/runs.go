package store

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/taskmesh/pto/internal/model"
)

// PutExecutionRun upserts a task-list execution run record.
func (g *Gateway) PutExecutionRun(ctx context.Context, r *model.ExecutionRun) error {
	data, err := jsonMarshal(r)
	if err != nil {
		return &model.ErrStore{Op: "put_run", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketExecutionRuns).Put([]byte(r.ID), data)
	})
	if err != nil {
		return &model.ErrStore{Op: "put_run", Err: err}
	}
	return nil
}

// GetExecutionRun returns a run by id.
func (g *Gateway) GetExecutionRun(ctx context.Context, id string) (*model.ExecutionRun, bool, error) {
	var r model.ExecutionRun
	found := false
	err := g.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketExecutionRuns).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return jsonUnmarshal(data, &r)
	})
	if err != nil {
		return nil, false, &model.ErrStore{Op: "get_run", Err: err}
	}
	if !found {
		return nil, false, nil
	}
	return &r, true, nil
}

// PutWorker upserts a build-agent instance row.
func (g *Gateway) PutWorker(ctx context.Context, w *model.Worker) error {
	data, err := jsonMarshal(w)
	if err != nil {
		return &model.ErrStore{Op: "put_worker", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWorkers).Put([]byte(w.ID), data)
	})
	if err != nil {
		return &model.ErrStore{Op: "put_worker", Err: err}
	}
	return nil
}

// DeleteWorker removes a build-agent instance row once its session ends.
func (g *Gateway) DeleteWorker(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWorkers).Delete([]byte(id))
	})
	if err != nil {
		return &model.ErrStore{Op: "delete_worker", Err: err}
	}
	return nil
}

// ListWorkers returns every currently tracked build-agent instance.
func (g *Gateway) ListWorkers(ctx context.Context) ([]*model.Worker, error) {
	out := make([]*model.Worker, 0)
	err := g.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWorkers).ForEach(func(k, v []byte) error {
			var w model.Worker
			if err := jsonUnmarshal(v, &w); err != nil {
				return err
			}
			out = append(out, &w)
			return nil
		})
	})
	if err != nil {
		return nil, &model.ErrStore{Op: "list_workers", Err: err}
	}
	return out, nil
}

// PutOverrideLogEntry appends an audit record for an allowIncomplete
// admission override.
func (g *Gateway) PutOverrideLogEntry(ctx context.Context, e *model.OverrideLogEntry) error {
	data, err := jsonMarshal(e)
	if err != nil {
		return &model.ErrStore{Op: "put_override_log", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOverrideLog).Put([]byte(e.ID), data)
	})
	if err != nil {
		return &model.ErrStore{Op: "put_override_log", Err: err}
	}
	g.Sync("override_logged")
	return nil
}
