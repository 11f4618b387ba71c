package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/pto/internal/model"
	"github.com/taskmesh/pto/internal/resolver"
)

func TestBusInProcessFallbackFansOutToSubscribers(t *testing.T) {
	b := NewBus("")
	defer b.Close()

	ch := b.Subscribe(model.EventTaskCompleted)
	b.Publish(model.EventTaskCompleted, model.TaskCompletedPayload{TaskID: "t1"})

	select {
	case ev := <-ch:
		require.Equal(t, model.EventTaskCompleted, ev.Type)
		payload, ok := ev.Payload.(model.TaskCompletedPayload)
		require.True(t, ok)
		require.Equal(t, "t1", payload.TaskID)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestBusSubscriberIsolationPerEventType(t *testing.T) {
	b := NewBus("")
	defer b.Close()

	waveCh := b.Subscribe(model.EventWaveStarted)
	b.Publish(model.EventTaskStarted, model.TaskStartedPayload{TaskID: "t1"})

	select {
	case <-waveCh:
		t.Fatal("wave subscriber should not receive task:started events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitConflictsPublishesOnlyFileConflicts(t *testing.T) {
	b := NewBus("")
	defer b.Close()
	ch := b.Subscribe(model.EventConflictDetected)

	ws := &model.WaveSet{Analyses: map[string]*model.ParallelismAnalysis{
		"a\x00b": {TaskAID: "a", TaskBID: "b", ConflictType: model.ConflictFile},
		"c\x00d": {TaskAID: "c", TaskBID: "d", ConflictType: model.ConflictDependency},
	}}
	b.EmitConflicts(ws)

	select {
	case ev := <-ch:
		payload := ev.Payload.(model.ConflictDetectedPayload)
		require.Equal(t, "a", payload.PairA)
	case <-time.After(time.Second):
		t.Fatal("expected conflict:detected event")
	}

	select {
	case <-ch:
		t.Fatal("dependency-type analysis should not emit conflict:detected")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitResolutionsPublishesOnlyAddedDependencies(t *testing.T) {
	b := NewBus("")
	defer b.Close()
	ch := b.Subscribe(model.EventConflictResolved)

	results := []resolver.PairResult{
		{TaskAID: "a", TaskBID: "b", Outcome: resolver.OutcomeDependencyAdded, Direction: &model.DependencyDirection{Source: "b", Target: "a"}},
		{TaskAID: "c", TaskBID: "d", Outcome: resolver.OutcomeAlreadyResolved},
	}
	b.EmitResolutions(results)

	select {
	case ev := <-ch:
		payload := ev.Payload.(model.ConflictAutoResolvedPayload)
		require.Equal(t, "b->a", payload.Direction)
	case <-time.After(time.Second):
		t.Fatal("expected conflict:auto-resolved event")
	}

	select {
	case <-ch:
		t.Fatal("already-resolved pair should not emit a second event")
	case <-time.After(50 * time.Millisecond):
	}
}
