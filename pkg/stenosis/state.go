package stenosis

import (
	"errors"
	"fmt"

	"vesselstenosis/internal/models"
)

// DefaultPalette holds the display colors cycled through by ColorSlot.
var DefaultPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// BranchState owns the derived stenosis state of one branch: the threshold it
// was computed for, the candidates and their records.
//
// Every Recompute fully replaces the previous state. A BranchState must not
// be mutated concurrently; callers serialize updates per branch.
type BranchState struct {
	index      int
	branch     *models.Branch
	detector   *Detector
	quantifier *Quantifier
	palette    int

	computed   bool
	threshold  float64
	candidates []models.StenosisCandidate
	records    []models.StenosisRecord
	failures   error

	// created counts records since the last rebuild and drives ColorSlot
	created int
}

// NewBranchState creates an empty state for the branch at the given arena index
func NewBranchState(index int, br *models.Branch, det *Detector, q *Quantifier, paletteSize int) *BranchState {
	if paletteSize < 1 {
		paletteSize = len(DefaultPalette)
	}
	return &BranchState{
		index:      index,
		branch:     br,
		detector:   det,
		quantifier: q,
		palette:    paletteSize,
	}
}

// Index returns the arena index of the branch
func (s *BranchState) Index() int { return s.index }

// Branch returns the branch this state belongs to
func (s *BranchState) Branch() *models.Branch { return s.branch }

// Threshold returns the diameter threshold of the current state
func (s *BranchState) Threshold() float64 { return s.threshold }

// Recompute discards all candidates and records of the branch and derives
// them again for the given diameter threshold.
//
// Candidates whose quantification fails are dropped; their errors are joined
// into the returned error while the remaining records are still returned.
// Applying the same threshold twice yields identical results.
func (s *BranchState) Recompute(diameter float64) ([]models.StenosisRecord, error) {
	if s.computed && diameter == s.threshold {
		return s.Records(), s.failures
	}

	s.threshold = diameter
	s.candidates = s.detector.DetectBranch(s.index, s.branch, diameter)
	s.records = nil
	s.created = 0

	var errs []error
	kept := s.candidates[:0:0]
	for _, c := range s.candidates {
		rec, err := s.quantifier.Quantify(s.branch, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("branch %d candidate [%d, %d): %w", c.Branch, c.Start, c.End, err))
			continue
		}
		rec.ColorSlot = s.created % s.palette
		s.created++
		s.records = append(s.records, rec)
		kept = append(kept, c)
	}
	s.candidates = kept
	s.failures = errors.Join(errs...)
	s.computed = true

	return s.Records(), s.failures
}

// Candidates returns a copy of the accepted candidates in index order
func (s *BranchState) Candidates() []models.StenosisCandidate {
	return append([]models.StenosisCandidate(nil), s.candidates...)
}

// Records returns a copy of the records in creation order
func (s *BranchState) Records() []models.StenosisRecord {
	return append([]models.StenosisRecord(nil), s.records...)
}

// Record returns the i-th record
func (s *BranchState) Record(i int) (models.StenosisRecord, error) {
	if i < 0 || i >= len(s.records) {
		return models.StenosisRecord{}, fmt.Errorf("record %d out of range [0, %d)", i, len(s.records))
	}
	return s.records[i], nil
}

// MoveReference relocates the reference landmark of record i to arc length
// arc. The candidate range and the minimum-diameter landmark are untouched.
func (s *BranchState) MoveReference(i int, arc float64) (models.StenosisRecord, error) {
	if i < 0 || i >= len(s.records) {
		return models.StenosisRecord{}, fmt.Errorf("record %d out of range [0, %d)", i, len(s.records))
	}
	if err := s.quantifier.Relocate(s.branch, &s.records[i], arc); err != nil {
		return s.records[i], err
	}
	return s.records[i], nil
}

// MoveReferenceIndex relocates the reference landmark of record i to sample idx
func (s *BranchState) MoveReferenceIndex(i, idx int) (models.StenosisRecord, error) {
	if i < 0 || i >= len(s.records) {
		return models.StenosisRecord{}, fmt.Errorf("record %d out of range [0, %d)", i, len(s.records))
	}
	if err := s.quantifier.RelocateIndex(s.branch, &s.records[i], idx); err != nil {
		return s.records[i], err
	}
	return s.records[i], nil
}

// Worst returns the index of the record with the highest degree, or -1 if the
// branch has no records
func (s *BranchState) Worst() int {
	worst := -1
	for i, rec := range s.records {
		if worst < 0 || rec.Degree > s.records[worst].Degree {
			worst = i
		}
	}
	return worst
}
