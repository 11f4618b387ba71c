package store

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/taskmesh/pto/internal/model"
)

func relKey(r *model.Relationship) []byte {
	return []byte(fmt.Sprintf("%s:%s", r.SourceTaskID, r.ID))
}

// PutRelationship appends a directed edge. Relationships are append-only;
// callers that need to remove an auto-resolved edge use DeleteRelationship.
func (g *Gateway) PutRelationship(ctx context.Context, r *model.Relationship) error {
	data, err := jsonMarshal(r)
	if err != nil {
		return &model.ErrStore{Op: "put_relationship", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRelationships).Put(relKey(r), data)
	})
	if err != nil {
		return &model.ErrStore{Op: "put_relationship", Err: err}
	}
	return nil
}

// DeleteRelationship removes one relationship by its composite key.
func (g *Gateway) DeleteRelationship(ctx context.Context, r *model.Relationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRelationships).Delete(relKey(r))
	})
	if err != nil {
		return &model.ErrStore{Op: "delete_relationship", Err: err}
	}
	return nil
}

// ListRelationshipsForTasks returns every relationship whose source or target
// is in taskIDs (every relationship when taskIDs is nil), used by the Graph Analyzer to build an adjacency view without
// loading the whole table.
func (g *Gateway) ListRelationshipsForTasks(ctx context.Context, taskIDs map[string]bool) ([]*model.Relationship, error) {
	out := make([]*model.Relationship, 0)
	err := g.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRelationships).ForEach(func(k, v []byte) error {
			var r model.Relationship
			if err := jsonUnmarshal(v, &r); err != nil {
				return err
			}
			if taskIDs == nil || taskIDs[r.SourceTaskID] || taskIDs[r.TargetTaskID] {
				out = append(out, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, &model.ErrStore{Op: "list_relationships", Err: err}
	}
	return out, nil
}

// ListAllRelationships loads the full relationship table; used sparingly,
// for whole-list cycle analysis.
func (g *Gateway) ListAllRelationships(ctx context.Context) ([]*model.Relationship, error) {
	return g.ListRelationshipsForTasks(ctx, nil)
}

func impactKey(i *model.FileImpact) []byte {
	return []byte(fmt.Sprintf("%s:%s", i.TaskID, i.FilePath))
}

// PutFileImpact upserts a claimed file-level effect for a task.
func (g *Gateway) PutFileImpact(ctx context.Context, i *model.FileImpact) error {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	data, err := jsonMarshal(i)
	if err != nil {
		return &model.ErrStore{Op: "put_file_impact", Err: err}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	err = g.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFileImpacts).Put(impactKey(i), data)
	})
	if err != nil {
		return &model.ErrStore{Op: "put_file_impact", Err: err}
	}
	return nil
}

// ListFileImpacts returns every impact claimed by taskID.
func (g *Gateway) ListFileImpacts(ctx context.Context, taskID string) ([]*model.FileImpact, error) {
	prefix := []byte(taskID + ":")
	out := make([]*model.FileImpact, 0)
	err := g.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFileImpacts).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var i model.FileImpact
			if err := jsonUnmarshal(v, &i); err != nil {
				return err
			}
			out = append(out, &i)
		}
		return nil
	})
	if err != nil {
		return nil, &model.ErrStore{Op: "list_file_impacts", Err: err}
	}
	return out, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
