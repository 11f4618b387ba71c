package events

import (
	"github.com/taskmesh/pto/internal/model"
	"github.com/taskmesh/pto/internal/resolver"
)

// EmitConflicts publishes conflict:detected for every file-conflict verdict
// in a WaveSet's analyses. The Parallelism Calculator itself stays
// emitter-free so it can be unit tested against a bare Store; this
// translation happens once, at the wiring layer that already holds both the
// calculator's output and the bus.
func (b *Bus) EmitConflicts(ws *model.WaveSet) {
	for _, a := range ws.Analyses {
		if a.ConflictType != model.ConflictFile {
			continue
		}
		b.Publish(model.EventConflictDetected, model.ConflictDetectedPayload{
			PairA: a.TaskAID, PairB: a.TaskBID, Type: a.ConflictType, Files: a.Details.Files,
		})
	}
}

// EmitResolutions publishes conflict:auto-resolved for every pair the
// Conflict Resolver turned into a dependency edge.
func (b *Bus) EmitResolutions(results []resolver.PairResult) {
	for _, r := range results {
		if r.Outcome != resolver.OutcomeDependencyAdded {
			continue
		}
		direction := ""
		if r.Direction != nil {
			direction = r.Direction.Source + "->" + r.Direction.Target
		}
		b.Publish(model.EventConflictResolved, model.ConflictAutoResolvedPayload{
			PairA: r.TaskAID, PairB: r.TaskBID, Direction: direction,
		})
	}
}
