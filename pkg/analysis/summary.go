package analysis

import (
	"vesselstenosis/internal/models"
)

// BranchSummary describes the state of one branch
type BranchSummary struct {
	Index     int
	Parent    int
	Length    float64
	Threshold float64
	Records   []models.StenosisRecord
}

// Summary describes the state of the whole analysis
type Summary struct {
	Branches []BranchSummary

	// Primary is the index of the primary branch, -1 without branches
	Primary int

	// Stenoses counts the records over all branches
	Stenoses int

	// Worst is the most severe record of the primary branch, nil if it has none
	Worst *models.StenosisRecord
}

// Summary collects the current state of every branch
func (a *Analyzer) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	sum := Summary{Primary: -1}
	if a.tree == nil {
		return sum
	}
	sum.Primary = a.tree.Primary()

	for i, s := range a.states {
		br := s.Branch()
		recs := s.Records()
		sum.Branches = append(sum.Branches, BranchSummary{
			Index:     i,
			Parent:    br.Parent,
			Length:    br.Length(),
			Threshold: s.Threshold(),
			Records:   recs,
		})
		sum.Stenoses += len(recs)
	}

	if rec, ok := a.worstOnPrimary(); ok {
		sum.Worst = &rec
	}
	return sum
}
