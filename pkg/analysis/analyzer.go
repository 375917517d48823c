// Package analysis runs the stenosis pipeline over a centerline set: branch
// tree reconstruction, per-branch detection and quantification, and the
// outputs built on top of them (profiles, scene record, mesh clips).
package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/branchtree"
	"vesselstenosis/pkg/centerline"
	"vesselstenosis/pkg/clip"
	"vesselstenosis/pkg/config"
	"vesselstenosis/pkg/scene"
	"vesselstenosis/pkg/smoothing"
	"vesselstenosis/pkg/spatial"
	"vesselstenosis/pkg/stenosis"
	"vesselstenosis/pkg/stl"
	"vesselstenosis/pkg/visualization"
)

// Profile image dimensions in pixels
const (
	ProfileWidth  = 800
	ProfileHeight = 300
)

// Params holds the inputs and outputs of one analysis run
type Params struct {
	// CenterlineFile is the YAML centerline document to analyze
	CenterlineFile string

	// MeshFile is an optional STL surface of the vessel
	MeshFile string

	// ClipFile receives the surface around the worst stenosis of the primary
	// branch, cut out of MeshFile
	ClipFile string

	// SceneFile receives the scene record when set
	SceneFile string

	// ProfileDir receives one profile image per branch when set
	ProfileDir string

	// Threshold is the diameter threshold in mm. Zero falls back to the
	// configured threshold, then to a per-branch automatic threshold.
	Threshold float64

	// Config supplies the algorithm parameters; nil means defaults
	Config *config.Config
}

// Analyzer owns the branch tree of one centerline set and the live stenosis
// state of each of its branches.
//
// All methods are serialized by an internal lock, so concurrent threshold or
// reference updates apply in arrival order and the last one wins.
type Analyzer struct {
	params *Params
	cfg    *config.Config
	logger *slog.Logger

	detector   *stenosis.Detector
	quantifier *stenosis.Quantifier

	mu     sync.Mutex
	lines  []models.RawLine
	tree   *branchtree.Tree
	states []*stenosis.BranchState
	index  *spatial.Index
}

// NewAnalyzer creates an analyzer for params. A nil logger means slog.Default().
func NewAnalyzer(params *Params, logger *slog.Logger) *Analyzer {
	if params == nil {
		params = &Params{}
	}
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	det := stenosis.NewDetector()
	det.EdgeMargin = cfg.Detection.EdgeMargin
	q := stenosis.NewQuantifier()
	q.HalfWindow = cfg.Quantification.NormalHalfWindow

	return &Analyzer{
		params:     params,
		cfg:        cfg,
		logger:     logger,
		detector:   det,
		quantifier: q,
	}
}

// Process runs the complete pipeline
func (a *Analyzer) Process() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Step 1: Load centerlines unless they were supplied directly
	if a.lines == nil {
		a.logger.Info("step 1: loading centerlines", "file", a.params.CenterlineFile)
		lines, err := centerline.Load(a.params.CenterlineFile)
		if err != nil {
			return fmt.Errorf("failed to load centerlines: %w", err)
		}
		a.lines = lines
	}
	a.logger.Info("centerlines loaded", "lines", len(a.lines))

	// Step 2: Smooth the radius profiles and decompose the lines into a tree
	lines := a.lines
	filter := smoothing.Filter{
		MedianWindow:  a.cfg.Smoothing.MedianWindow,
		LowPassCutoff: a.cfg.Smoothing.LowPassCutoff,
	}
	if filter.Enabled() {
		a.logger.Info("step 2: smoothing radius profiles",
			"medianWindow", filter.MedianWindow,
			"lowPassCutoff", filter.LowPassCutoff)
		lines = smoothLines(a.lines, filter)
	}
	a.logger.Info("step 2: building branch tree")
	if err := a.buildTree(lines); err != nil {
		return fmt.Errorf("failed to build branch tree: %w", err)
	}

	// Step 3: Detect and quantify stenoses on every branch
	a.logger.Info("step 3: detecting stenoses", "branches", a.tree.Len())
	for i := range a.states {
		thr, err := a.resolveThreshold(i)
		if err != nil {
			a.logger.Warn("no usable threshold", "branch", i, "error", err)
			continue
		}
		recs, err := a.states[i].Recompute(thr)
		if err != nil {
			a.logger.Warn("some candidates could not be quantified", "branch", i, "error", err)
		}
		a.logger.Debug("branch analyzed", "branch", i, "threshold", thr, "stenoses", len(recs))
	}

	// Step 4: Export radius profiles
	if a.params.ProfileDir != "" {
		a.logger.Info("step 4: saving radius profiles", "dir", a.params.ProfileDir)
		viewer := visualization.NewProfileViewer(ProfileWidth, ProfileHeight, stenosis.DefaultPalette)
		viewer.Logger = a.logger
		if err := viewer.SaveProfileSequence(a.profiles(), a.params.ProfileDir); err != nil {
			a.logger.Warn("failed to save profiles", "error", err)
		}
	}

	// Step 5: Persist the scene record and clip the worst stenosis
	if a.params.SceneFile != "" {
		a.logger.Info("step 5: saving scene record", "file", a.params.SceneFile)
		_ = a.saveScene(a.params.SceneFile)
	}
	if a.params.MeshFile != "" && a.params.ClipFile != "" {
		if err := a.clipWorst(); err != nil {
			a.logger.Warn("failed to clip worst stenosis", "error", err)
		}
	}

	return nil
}

// SetLines supplies the centerline set directly instead of loading
// CenterlineFile in Process
func (a *Analyzer) SetLines(lines []models.RawLine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = lines
}

// smoothLines returns copies of lines with filtered radius profiles
func smoothLines(lines []models.RawLine, f smoothing.Filter) []models.RawLine {
	out := make([]models.RawLine, len(lines))
	for i, l := range lines {
		out[i] = models.RawLine{Positions: l.Positions, Radius: f.Apply(l.Radius), Arc: l.Arc}
	}
	return out
}

func (a *Analyzer) buildTree(lines []models.RawLine) error {
	b := branchtree.NewBuilder()
	b.MinBranchLength = a.cfg.Tree.MinBranchLength
	b.EndCutoff = a.cfg.Tree.EndCutoff
	b.Tolerance = a.cfg.Tree.OverlapTolerance
	b.Logger = a.logger

	tree, err := b.Build(lines)
	if err != nil {
		return err
	}

	a.tree = tree
	a.states = make([]*stenosis.BranchState, tree.Len())
	for i := range tree.Branches {
		a.states[i] = stenosis.NewBranchState(i, &tree.Branches[i], a.detector, a.quantifier, a.cfg.Quantification.PaletteSize)
	}
	a.index = spatial.NewIndex(tree)

	a.logger.Debug("spatial index built", "samples", a.index.Len())
	return nil
}

// resolveThreshold picks the diameter threshold used for branch i on the
// first pass
func (a *Analyzer) resolveThreshold(i int) (float64, error) {
	if a.params.Threshold > 0 {
		return a.params.Threshold, nil
	}
	if a.cfg.Detection.DiameterThreshold > 0 {
		return a.cfg.Detection.DiameterThreshold, nil
	}
	return a.autoThreshold(i)
}

// Tree returns the branch tree built by Process
func (a *Analyzer) Tree() *branchtree.Tree {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree
}

func (a *Analyzer) state(branch int) (*stenosis.BranchState, error) {
	if a.tree == nil {
		return nil, errors.New("no branch tree; run Process first")
	}
	if branch < 0 || branch >= len(a.states) {
		return nil, fmt.Errorf("branch %d out of range [0, %d)", branch, len(a.states))
	}
	return a.states[branch], nil
}

// AutoThreshold returns the automatic diameter threshold of a branch: the
// median diameter over its active window scaled by the configured ratio
func (a *Analyzer) AutoThreshold(branch int) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.state(branch); err != nil {
		return 0, err
	}
	return a.autoThreshold(branch)
}

func (a *Analyzer) autoThreshold(branch int) (float64, error) {
	br := &a.tree.Branches[branch]
	if br.End <= br.Start {
		return 0, fmt.Errorf("branch %d has an empty window", branch)
	}
	radius := append([]float64(nil), br.Radius[br.Start:br.End+1]...)
	sort.Float64s(radius)
	median := stat.Quantile(0.5, stat.Empirical, radius, nil)
	return 2 * median * a.cfg.Detection.AutoThresholdRatio, nil
}

// Threshold returns the diameter threshold currently applied to a branch
func (a *Analyzer) Threshold(branch int) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.state(branch)
	if err != nil {
		return 0, err
	}
	return s.Threshold(), nil
}

// SetThreshold replaces the stenosis state of a branch with the one derived
// for diameter. Quantification failures of single candidates are returned
// joined, next to the records that succeeded.
func (a *Analyzer) SetThreshold(branch int, diameter float64) ([]models.StenosisRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.state(branch)
	if err != nil {
		return nil, err
	}
	if !(diameter > 0) || math.IsInf(diameter, 0) {
		return nil, fmt.Errorf("diameter threshold must be positive, got %g", diameter)
	}
	recs, err := s.Recompute(diameter)
	a.logger.Debug("threshold applied", "branch", branch, "threshold", diameter, "stenoses", len(recs))
	return recs, err
}

// Records returns the current records of a branch
func (a *Analyzer) Records(branch int) ([]models.StenosisRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.state(branch)
	if err != nil {
		return nil, err
	}
	return s.Records(), nil
}

// MoveReference relocates the reference landmark of a record to arc length
// arc along its branch
func (a *Analyzer) MoveReference(branch, record int, arc float64) (models.StenosisRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.state(branch)
	if err != nil {
		return models.StenosisRecord{}, err
	}
	return s.MoveReference(record, arc)
}

// MoveReferenceNear relocates the reference landmark of a record to the
// branch sample closest to a picked 3D point
func (a *Analyzer) MoveReferenceNear(branch, record int, p r3.Vector) (models.StenosisRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.state(branch)
	if err != nil {
		return models.StenosisRecord{}, err
	}
	hit, err := a.index.NearestOnBranch(p, branch)
	if err != nil {
		return models.StenosisRecord{}, err
	}
	a.logger.Debug("reference picked", "branch", branch, "index", hit.Index, "distance", hit.Distance)
	return s.MoveReferenceIndex(record, hit.Index)
}

// WorstOnPrimary returns the most severe record of the primary branch
func (a *Analyzer) WorstOnPrimary() (models.StenosisRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.worstOnPrimary()
}

func (a *Analyzer) worstOnPrimary() (models.StenosisRecord, bool) {
	if a.tree == nil {
		return models.StenosisRecord{}, false
	}
	p := a.tree.Primary()
	if p < 0 {
		return models.StenosisRecord{}, false
	}
	w := a.states[p].Worst()
	if w < 0 {
		return models.StenosisRecord{}, false
	}
	rec, _ := a.states[p].Record(w)
	return rec, true
}

// SceneRecord describes the worst stenosis of the primary branch
func (a *Analyzer) SceneRecord() (scene.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sceneRecord()
}

func (a *Analyzer) sceneRecord() (scene.Record, error) {
	rec, ok := a.worstOnPrimary()
	if !ok {
		return scene.Record{}, scene.ErrNothingToSave
	}
	return scene.FromStenosis(a.states[rec.Branch].Threshold(), rec), nil
}

// SaveScene writes the scene record to path. Failures are logged and
// returned; they never affect the analysis state.
func (a *Analyzer) SaveScene(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveScene(path)
}

func (a *Analyzer) saveScene(path string) error {
	rec, err := a.sceneRecord()
	if err != nil {
		a.logger.Warn("scene not saved", "file", path, "error", err)
		return err
	}
	if err := scene.Save(path, rec); err != nil {
		a.logger.Warn("scene not saved", "file", path, "error", err)
		return err
	}
	a.logger.Info("scene saved", "file", path, "degree", rec.StenosisDegree)
	return nil
}

// ApplyScene restores a saved scene on the primary branch: the threshold is
// applied and the reference of the stenosis closest to the saved minimum
// position is moved to the saved arc position.
func (a *Analyzer) ApplyScene(rec scene.Record) (models.StenosisRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tree == nil || a.tree.Primary() < 0 {
		return models.StenosisRecord{}, scene.ErrNothingToSave
	}
	p := a.tree.Primary()
	if !(rec.DiameterThreshold > 0) {
		return models.StenosisRecord{}, fmt.Errorf("scene threshold must be positive, got %g", rec.DiameterThreshold)
	}

	recs, err := a.states[p].Recompute(rec.DiameterThreshold)
	if err != nil {
		a.logger.Warn("some candidates could not be quantified", "branch", p, "error", err)
	}
	if len(recs) == 0 {
		return models.StenosisRecord{}, fmt.Errorf("no stenosis on branch %d at threshold %g", p, rec.DiameterThreshold)
	}

	target := rec.StenosisMinPosition.Vector()
	best := 0
	for i := range recs {
		if recs[i].MinPosition.Distance(target) < recs[best].MinPosition.Distance(target) {
			best = i
		}
	}
	return a.states[p].MoveReference(best, rec.ReferenceArcPosition)
}

// ClipStenosis cuts the part of mesh surrounding a record out of the surface.
// With largest set only the largest connected piece of the cut is kept.
func (a *Analyzer) ClipStenosis(mesh *stl.Mesh, branch, record int, largest bool) (*stl.Mesh, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clipStenosis(mesh, branch, record, largest)
}

func (a *Analyzer) clipStenosis(mesh *stl.Mesh, branch, record int, largest bool) (*stl.Mesh, error) {
	s, err := a.state(branch)
	if err != nil {
		return nil, err
	}
	rec, err := s.Record(record)
	if err != nil {
		return nil, err
	}

	opts := clip.Options{
		Stride:      a.cfg.Clip.SphereStride,
		RadiusScale: a.cfg.Clip.RadiusScale,
		HalfWindow:  a.cfg.Quantification.NormalHalfWindow,
	}
	pred, err := clip.Build(s.Branch(), rec, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build clip region: %w", err)
	}

	out := clip.ClipMesh(mesh, pred)
	if largest {
		out = clip.LargestComponent(out)
	}
	a.logger.Info("mesh clipped",
		"branch", branch,
		"record", rec.ID,
		"spheres", len(pred.Spheres),
		"triangles", out.Len())
	return out, nil
}

func (a *Analyzer) clipWorst() error {
	rec, ok := a.worstOnPrimary()
	if !ok {
		return scene.ErrNothingToSave
	}
	mesh, err := stl.ReadSTL(a.params.MeshFile)
	if err != nil {
		return err
	}
	idx := a.states[rec.Branch].Worst()
	out, err := a.clipStenosis(mesh, rec.Branch, idx, a.cfg.Clip.LargestComponent)
	if err != nil {
		return err
	}
	if err := stl.SaveToSTL(a.params.ClipFile, out.Triangles); err != nil {
		return err
	}
	a.logger.Info("clip saved", "file", a.params.ClipFile)
	return nil
}

// Profiles returns the radius profile of every branch with its current state
func (a *Analyzer) Profiles() []visualization.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profiles()
}

func (a *Analyzer) profiles() []visualization.Profile {
	var out []visualization.Profile
	for _, s := range a.states {
		out = append(out, visualization.ProfileOf(s.Index(), s.Branch(), s.Threshold(), s.Candidates(), s.Records()))
	}
	return out
}
