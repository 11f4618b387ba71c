// Package conflict is the Conflict Detector: a pure, stateless function of
// two tasks' file-impact sets. It holds no store handle and no mutable
// state, mirroring how the observed source keeps its DAG-engine cache
// computations (services/orchestrator/dag_engine.go generateCacheKey) free
// of side effects.
package conflict

import "github.com/taskmesh/pto/internal/model"

// ConfidenceThreshold is the default cutoff below which a conflicting pair
// is reported for display but does not block scheduling. internal/platform/config
// exposes this as a tunable; Detector.Threshold overrides the default.
const ConfidenceThreshold = 0.6

var weights = map[model.ConflictKind]float64{
	model.KindCreateCreate: 1.00,
	model.KindCreateDelete: 0.95,
	model.KindWriteWrite:   0.90,
	model.KindReadDelete:   0.70,
}

// classify implements the symmetric 4x4 operation matrix from the detector
// contract. READ/READ, READ/CREATE, READ/UPDATE and CREATE/UPDATE never
// conflict; everything touching DELETE or a double-write does.
func classify(a, b model.Operation) model.ConflictKind {
	if a > b {
		a, b = b, a
	}
	switch {
	case a == model.OpCreate && b == model.OpCreate:
		return model.KindCreateCreate
	case a == model.OpCreate && b == model.OpDelete:
		return model.KindCreateDelete
	case a == model.OpDelete && b == model.OpDelete:
		return model.KindWriteWrite
	case a == model.OpDelete && b == model.OpRead:
		return model.KindReadDelete
	case a == model.OpDelete && b == model.OpUpdate:
		return model.KindWriteWrite
	case a == model.OpUpdate && b == model.OpUpdate:
		return model.KindWriteWrite
	default:
		// CREATE/READ, CREATE/UPDATE, READ/READ, READ/UPDATE
		return model.KindNoConflict
	}
}
