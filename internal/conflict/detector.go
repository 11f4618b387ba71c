package conflict

import "github.com/taskmesh/pto/internal/model"

// Detector computes per-pair conflict state from file footprints. It is
// stateless; construct one per call or reuse freely across goroutines.
type Detector struct {
	// Threshold overrides ConfidenceThreshold when non-zero, wired from
	// internal/platform/config so operators can tune it without a rebuild.
	Threshold float64
}

// NewDetector returns a Detector using threshold, or the package default
// when threshold is zero.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = ConfidenceThreshold
	}
	return &Detector{Threshold: threshold}
}

// Result is the outcome of comparing two tasks' impact sets.
type Result struct {
	InConflict bool
	Files      []model.FileConflict
	Severity   float64
}

// Detect classifies every shared path between implA and implB and reports
// whether the pair is in conflict. A shared path whose classification is
// no_conflict is not recorded. A conflicting path whose impacts don't both
// clear the confidence threshold is recorded for display but does not set
// InConflict.
func (d *Detector) Detect(implA, implB []*model.FileImpact) Result {
	byPath := make(map[string][]*model.FileImpact, len(implA)+len(implB))
	for _, i := range implA {
		byPath[i.FilePath] = append(byPath[i.FilePath], i)
	}
	aCount := make(map[string]int, len(implA))
	for _, i := range implA {
		aCount[i.FilePath]++
	}
	for _, i := range implB {
		byPath[i.FilePath] = append(byPath[i.FilePath], i)
	}

	var files []model.FileConflict
	var weighted, total float64
	conflictFound := false

	for path, impacts := range byPath {
		if aCount[path] == 0 || aCount[path] == len(impacts) {
			// path only claimed by one side
			continue
		}
		for ai := 0; ai < aCount[path]; ai++ {
			for bi := aCount[path]; bi < len(impacts); bi++ {
				ia, ib := impacts[ai], impacts[bi]
				kind := classify(ia.Operation, ib.Operation)
				if kind == model.KindNoConflict {
					continue
				}
				files = append(files, model.FileConflict{Path: path, OpA: ia.Operation, OpB: ib.Operation, Kind: kind})

				w, ok := weights[kind]
				if !ok {
					continue
				}
				minConf := ia.Confidence
				if ib.Confidence < minConf {
					minConf = ib.Confidence
				}
				weighted += w * minConf
				total++

				if ia.Confidence >= d.Threshold && ib.Confidence >= d.Threshold {
					conflictFound = true
				}
			}
		}
	}

	severity := 0.0
	if total > 0 {
		severity = weighted / total
		if severity > 1.0 {
			severity = 1.0
		}
	}

	return Result{InConflict: conflictFound, Files: files, Severity: severity}
}
