package stenosis

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/geometry"
)

// recordNamespace seeds the name-based record identities so that the same
// candidate always maps to the same ID.
var recordNamespace = uuid.MustParse("6f1c9a52-3d0e-4b8a-9c41-2a7e5d8b0f13")

// Quantifier turns candidate ranges into stenosis records
type Quantifier struct {
	// HalfWindow is the stencil half-width of the tangent estimate
	HalfWindow int
}

// NewQuantifier creates a quantifier with the default tangent stencil
func NewQuantifier() *Quantifier {
	return &Quantifier{HalfWindow: geometry.DefaultHalfWindow}
}

// Degree computes the NASCET stenosis degree in percent
func Degree(minDiameter, referenceDiameter float64) (float64, error) {
	if !(referenceDiameter > 0) {
		return 0, &geometry.InvalidGeometryError{
			Reason: fmt.Sprintf("reference diameter %g is not positive", referenceDiameter),
		}
	}
	return 100 * (referenceDiameter - minDiameter) / referenceDiameter, nil
}

// DefaultReferenceIndex places the reference half a stenosis length past the
// distal candidate boundary, clamped inside a branch of n samples.
func DefaultReferenceIndex(c models.StenosisCandidate, n int) int {
	return min(c.End+(c.End-c.Start)/2, n-2)
}

// RecordID returns the stable identity of the record for a candidate
func RecordID(c models.StenosisCandidate) uuid.UUID {
	return uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%d:%d:%d", c.Branch, c.Start, c.End)))
}

// Quantify computes the record of one candidate on its branch.
func (q *Quantifier) Quantify(br *models.Branch, c models.StenosisCandidate) (models.StenosisRecord, error) {
	n := br.Len()
	if c.Start < 0 || c.End >= n || c.End <= c.Start {
		return models.StenosisRecord{}, fmt.Errorf("candidate [%d, %d) outside branch of %d samples", c.Start, c.End, n)
	}

	rec := models.StenosisRecord{
		ID:     RecordID(c),
		Branch: c.Branch,
		Start:  c.Start,
		End:    c.End,
		Length: br.Arc[c.End] - br.Arc[c.Start],
	}

	rec.MinIndex = c.Start + floats.MinIdx(br.Radius[c.Start:c.End])
	rec.MinDiameter = 2 * br.Radius[rec.MinIndex]
	rec.MinPosition = br.Positions[rec.MinIndex]
	normal, err := geometry.Normal(br.Positions, rec.MinIndex, q.HalfWindow)
	if err != nil {
		return models.StenosisRecord{}, fmt.Errorf("minimum diameter landmark: %w", err)
	}
	rec.MinNormal = normal

	if err := q.setReference(br, &rec, DefaultReferenceIndex(c, n)); err != nil {
		return models.StenosisRecord{}, err
	}
	return rec, nil
}

// Relocate moves the reference landmark of rec to the sample at arc length s
// and recomputes only the reference-dependent fields. rec is left unchanged
// on error.
func (q *Quantifier) Relocate(br *models.Branch, rec *models.StenosisRecord, s float64) error {
	return q.RelocateIndex(br, rec, geometry.IndexAtArc(br.Arc, s))
}

// RelocateIndex moves the reference landmark of rec to sample idx
func (q *Quantifier) RelocateIndex(br *models.Branch, rec *models.StenosisRecord, idx int) error {
	if idx < 0 || idx >= br.Len() {
		return fmt.Errorf("reference index %d outside branch of %d samples", idx, br.Len())
	}

	moved := *rec
	if err := q.setReference(br, &moved, idx); err != nil {
		return err
	}
	*rec = moved
	return nil
}

func (q *Quantifier) setReference(br *models.Branch, rec *models.StenosisRecord, idx int) error {
	refDiameter := 2 * br.Radius[idx]
	degree, err := Degree(rec.MinDiameter, refDiameter)
	if err != nil {
		return fmt.Errorf("reference at index %d: %w", idx, err)
	}
	normal, err := geometry.Normal(br.Positions, idx, q.HalfWindow)
	if err != nil {
		return fmt.Errorf("reference landmark: %w", err)
	}

	rec.RefIndex = idx
	rec.RefArc = br.Arc[idx]
	rec.RefDiameter = refDiameter
	rec.RefPosition = br.Positions[idx]
	rec.RefNormal = normal
	rec.Degree = degree
	return nil
}
