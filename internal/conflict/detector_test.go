package conflict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/pto/internal/model"
)

func TestDetectCreateCreateConflict(t *testing.T) {
	d := NewDetector(0)
	a := []*model.FileImpact{{TaskID: "t1", FilePath: "main.go", Operation: model.OpCreate, Confidence: 0.9}}
	b := []*model.FileImpact{{TaskID: "t2", FilePath: "main.go", Operation: model.OpCreate, Confidence: 0.9}}

	res := d.Detect(a, b)
	require.True(t, res.InConflict)
	require.Len(t, res.Files, 1)
	require.Equal(t, model.KindCreateCreate, res.Files[0].Kind)
	require.InDelta(t, 0.9, res.Severity, 0.001)
}

func TestDetectBelowConfidenceDoesNotBlock(t *testing.T) {
	d := NewDetector(0)
	a := []*model.FileImpact{{TaskID: "t1", FilePath: "main.go", Operation: model.OpUpdate, Confidence: 0.3}}
	b := []*model.FileImpact{{TaskID: "t2", FilePath: "main.go", Operation: model.OpUpdate, Confidence: 0.9}}

	res := d.Detect(a, b)
	require.False(t, res.InConflict)
	require.Len(t, res.Files, 1, "conflict still reported for display")
}

func TestDetectReadReadNoConflict(t *testing.T) {
	d := NewDetector(0)
	a := []*model.FileImpact{{TaskID: "t1", FilePath: "x.go", Operation: model.OpRead, Confidence: 1.0}}
	b := []*model.FileImpact{{TaskID: "t2", FilePath: "x.go", Operation: model.OpRead, Confidence: 1.0}}

	res := d.Detect(a, b)
	require.False(t, res.InConflict)
	require.Empty(t, res.Files)
}

func TestDetectDisjointPathsNoConflict(t *testing.T) {
	d := NewDetector(0)
	a := []*model.FileImpact{{TaskID: "t1", FilePath: "a.go", Operation: model.OpCreate, Confidence: 1.0}}
	b := []*model.FileImpact{{TaskID: "t2", FilePath: "b.go", Operation: model.OpCreate, Confidence: 1.0}}

	res := d.Detect(a, b)
	require.False(t, res.InConflict)
	require.Empty(t, res.Files)
}

func TestDetectReadDeleteConflict(t *testing.T) {
	d := NewDetector(0)
	a := []*model.FileImpact{{TaskID: "t1", FilePath: "x.go", Operation: model.OpRead, Confidence: 0.8}}
	b := []*model.FileImpact{{TaskID: "t2", FilePath: "x.go", Operation: model.OpDelete, Confidence: 0.8}}

	res := d.Detect(a, b)
	require.True(t, res.InConflict)
	require.Equal(t, model.KindReadDelete, res.Files[0].Kind)
}
