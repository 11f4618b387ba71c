package store

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/taskmesh/pto/internal/model"
)

// PutWave upserts an execution wave and its task assignment ordering in one
// durable boundary, matching the "completion of a wave" sync point named in
// the gateway contract.
func (g *Gateway) PutWave(ctx context.Context, w *model.ExecutionWave) error {
	data, err := jsonMarshal(w)
	if err != nil {
		return &model.ErrStore{Op: "put_wave", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketWaves).Put([]byte(w.ID), data); err != nil {
			return err
		}
		assignments := tx.Bucket(bucketWaveAssignments)
		for pos, taskID := range w.TaskIDs {
			key := []byte(fmt.Sprintf("%s:%05d", w.ID, pos))
			if err := assignments.Put(key, []byte(taskID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &model.ErrStore{Op: "put_wave", Err: err}
	}
	g.Sync("wave_completed")
	return nil
}

// ListWavesForList returns every wave belonging to taskListID in wave order.
func (g *Gateway) ListWavesForList(ctx context.Context, taskListID string) ([]*model.ExecutionWave, error) {
	out := make([]*model.ExecutionWave, 0)
	err := g.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWaves).ForEach(func(k, v []byte) error {
			var w model.ExecutionWave
			if err := jsonUnmarshal(v, &w); err != nil {
				return err
			}
			if w.TaskListID == taskListID {
				out = append(out, &w)
			}
			return nil
		})
	})
	if err != nil {
		return nil, &model.ErrStore{Op: "list_waves", Err: err}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].WaveNumber < out[j-1].WaveNumber; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// DeleteWavesForList clears every wave and assignment for a task list. No
// component of the orchestrator calls it; the Parallelism Calculator does
// not write or clear stored waves.
func (g *Gateway) DeleteWavesForList(ctx context.Context, taskListID string) error {
	existing, err := g.ListWavesForList(ctx, taskListID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.db.Update(func(tx *bbolt.Tx) error {
		waves := tx.Bucket(bucketWaves)
		assignments := tx.Bucket(bucketWaveAssignments)
		for _, w := range existing {
			if err := waves.Delete([]byte(w.ID)); err != nil {
				return err
			}
			prefix := []byte(w.ID + ":")
			var keys [][]byte
			c := assignments.Cursor()
			for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
				keys = append(keys, append([]byte(nil), k...))
			}
			for _, k := range keys {
				if err := assignments.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
