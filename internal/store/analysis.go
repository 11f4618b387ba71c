package store

import (
	"context"
	"time"

	"go.etcd.io/bbolt"

	"github.com/taskmesh/pto/internal/model"
)

func analysisKey(a, b string) []byte {
	return []byte(a + "\x00" + b)
}

// PutParallelismAnalysis upserts the canonical row for a task pair. Callers
// must have already ordered TaskAID < TaskBID; an out-of-order pair is
// rejected with ErrConfig by ValidateOrdering.
func (g *Gateway) PutParallelismAnalysis(ctx context.Context, a *model.ParallelismAnalysis) error {
	if err := g.ValidateOrdering(a.TaskAID, a.TaskBID); err != nil {
		return err
	}
	data, err := jsonMarshal(a)
	if err != nil {
		return &model.ErrStore{Op: "put_analysis", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketParallelism).Put(analysisKey(a.TaskAID, a.TaskBID), data)
	})
	if err != nil {
		return &model.ErrStore{Op: "put_analysis", Err: err}
	}
	return nil
}

// GetParallelismAnalysis returns the cached verdict for (a, b) regardless of
// argument order.
func (g *Gateway) GetParallelismAnalysis(ctx context.Context, a, b string) (*model.ParallelismAnalysis, bool, error) {
	a, b = model.PairKey(a, b)
	var pa model.ParallelismAnalysis
	found := false
	err := g.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketParallelism).Get(analysisKey(a, b))
		if data == nil {
			return nil
		}
		found = true
		return jsonUnmarshal(data, &pa)
	})
	if err != nil {
		return nil, false, &model.ErrStore{Op: "get_analysis", Err: err}
	}
	if !found {
		return nil, false, nil
	}
	return &pa, true, nil
}

// InvalidateAnalysesForTask marks every stored pair touching taskID as
// invalidated without deleting the row, so the Parallelism Calculator can
// still explain the last known verdict while recomputing.
func (g *Gateway) InvalidateAnalysesForTask(ctx context.Context, taskID string) (int, error) {
	now := time.Now().UTC()
	count := 0
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketParallelism)
		return b.ForEach(func(k, v []byte) error {
			var pa model.ParallelismAnalysis
			if err := jsonUnmarshal(v, &pa); err != nil {
				return err
			}
			if pa.TaskAID != taskID && pa.TaskBID != taskID {
				return nil
			}
			if pa.InvalidatedAt != nil {
				return nil
			}
			pa.InvalidatedAt = &now
			data, err := jsonMarshal(&pa)
			if err != nil {
				return err
			}
			count++
			return b.Put(k, data)
		})
	})
	if err != nil {
		return 0, &model.ErrStore{Op: "invalidate_analyses", Err: err}
	}
	return count, nil
}

// ListValidAnalysesForList returns every non-invalidated analysis whose
// pair is fully contained in taskIDs, for wave construction.
func (g *Gateway) ListValidAnalysesForList(ctx context.Context, taskIDs map[string]bool) ([]*model.ParallelismAnalysis, error) {
	out := make([]*model.ParallelismAnalysis, 0)
	err := g.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketParallelism).ForEach(func(k, v []byte) error {
			var pa model.ParallelismAnalysis
			if err := jsonUnmarshal(v, &pa); err != nil {
				return err
			}
			if pa.InvalidatedAt != nil {
				return nil
			}
			if !taskIDs[pa.TaskAID] || !taskIDs[pa.TaskBID] {
				return nil
			}
			out = append(out, &pa)
			return nil
		})
	})
	if err != nil {
		return nil, &model.ErrStore{Op: "list_analyses", Err: err}
	}
	return out, nil
}
