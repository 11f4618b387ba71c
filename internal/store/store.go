// Package store is the Store Gateway: the only component permitted to touch
// the embedded BoltDB file. Every other package reaches storage through the
// Gateway's typed methods, grounded on the observed source's WorkflowStore
// (services/orchestrator/persistence.go) but reshaped around the tables
// named for tasks, task lists, relationships, impacts, analyses, waves and
// agents rather than workflows.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskmesh/pto/internal/model"
)

var (
	bucketTasks            = []byte("tasks")
	bucketTaskLists         = []byte("task_lists")
	bucketRelationships     = []byte("task_relationships")
	bucketFileImpacts       = []byte("task_file_impacts")
	bucketParallelism       = []byte("parallelism_analysis")
	bucketWaves             = []byte("execution_waves")
	bucketWaveAssignments   = []byte("wave_task_assignments")
	bucketExecutionRuns     = []byte("task_list_execution_runs")
	bucketWorkers           = []byte("build_agent_instances")
	bucketOverrideLog       = []byte("execution_override_log")

	allBuckets = [][]byte{
		bucketTasks, bucketTaskLists, bucketRelationships, bucketFileImpacts,
		bucketParallelism, bucketWaves, bucketWaveAssignments,
		bucketExecutionRuns, bucketWorkers, bucketOverrideLog,
	}
)

// Gateway is the single-writer handle to the orchestrator's persistent
// state. It mirrors the primitive operations named in the gateway contract:
// query/getOne are expressed as typed Get*/List* methods, run as the typed
// Put*/Delete* methods, and saveDb as Sync.
type Gateway struct {
	db *bbolt.DB
	mu sync.RWMutex

	// in-memory read cache, warmed on Open and kept coherent by every write
	// path; mirrors the observed source's memCache strategy.
	tasks     map[string]*model.Task
	taskLists map[string]*model.TaskList

	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// Open creates (if absent) and opens the BoltDB file at path, ensures every
// bucket exists, and warms the in-memory caches.
func Open(path string) (*Gateway, error) {
	opts := &bbolt.Options{
		Timeout:      1 * time.Second,
		NoSync:       false,
		FreelistType: bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	meter := otel.Meter("pto")
	readLatency, _ := meter.Float64Histogram("pto_store_read_ms")
	writeLatency, _ := meter.Float64Histogram("pto_store_write_ms")
	cacheHits, _ := meter.Int64Counter("pto_store_cache_hits_total")
	cacheMisses, _ := meter.Int64Counter("pto_store_cache_misses_total")

	g := &Gateway{
		db:           db,
		tasks:        make(map[string]*model.Task),
		taskLists:    make(map[string]*model.TaskList),
		readLatency:  readLatency,
		writeLatency: writeLatency,
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
	}
	if err := g.reloadLocked(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("warm cache: %w", err)
	}
	return g, nil
}

// Close releases the underlying BoltDB file.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// Sync is the gateway's saveDb primitive. BoltDB fsyncs on every Update
// transaction already, so Sync only names the user-visible durability
// boundaries at its call sites (wave completion, relationship creation,
// conflict resolution); it records nothing and writes no trace or log.
func (g *Gateway) Sync(boundary string) {
	_ = boundary
}

// Reload re-reads every bucket from backing storage into the in-memory
// cache. Callers that need freshest state invoke this before reading, per
// the reload-before-read contract.
func (g *Gateway) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reloadLocked()
}

func (g *Gateway) reloadLocked() error {
	tasks := make(map[string]*model.Task)
	lists := make(map[string]*model.TaskList)

	err := g.db.View(func(tx *bbolt.Tx) error {
		if err := decodeBucket(tx, bucketTasks, func(k string, v []byte) error {
			row := &model.Task{}
			if err := jsonUnmarshal(v, row); err != nil {
				return err
			}
			tasks[k] = row
			return nil
		}); err != nil {
			return err
		}
		return decodeBucket(tx, bucketTaskLists, func(k string, v []byte) error {
			row := &model.TaskList{}
			if err := jsonUnmarshal(v, row); err != nil {
				return err
			}
			lists[k] = row
			return nil
		})
	})
	if err != nil {
		return err
	}
	g.tasks = tasks
	g.taskLists = lists
	return nil
}

func decodeBucket(tx *bbolt.Tx, name []byte, fn func(key string, val []byte) error) error {
	b := tx.Bucket(name)
	if b == nil {
		return nil
	}
	return b.ForEach(func(k, v []byte) error {
		return fn(string(k), v)
	})
}

func (g *Gateway) recordLatency(ctx context.Context, h metric.Float64Histogram, op string, start time.Time) {
	h.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("op", op)))
}
