package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/floats"

	"vesselstenosis/internal/models"
)

var (
	background  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	axisColor   = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	curveColor  = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	limitColor  = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	shadeColor  = color.RGBA{R: 255, G: 210, B: 200, A: 255}
	markerColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// Profile is the diameter-over-arc profile of one branch together with the
// state derived from it
type Profile struct {
	Branch     int
	Arc        []float64
	Diameter   []float64
	Start, End int
	Threshold  float64
	Candidates []models.StenosisCandidate
	Records    []models.StenosisRecord
}

// ProfileOf collects the profile of branch index
func ProfileOf(index int, br *models.Branch, threshold float64, cands []models.StenosisCandidate, recs []models.StenosisRecord) Profile {
	diameter := make([]float64, len(br.Radius))
	copy(diameter, br.Radius)
	floats.Scale(2, diameter)
	return Profile{
		Branch:     index,
		Arc:        br.Arc,
		Diameter:   diameter,
		Start:      br.Start,
		End:        br.End,
		Threshold:  threshold,
		Candidates: cands,
		Records:    recs,
	}
}

// ProfileViewer renders branch profiles into raster images
type ProfileViewer struct {
	width  int
	height int

	// margin around the plot area in pixels
	margin int

	// palette used for record markers, indexed by ColorSlot
	palette []color.RGBA

	// Logger receives skipped profiles; nil means slog.Default()
	Logger *slog.Logger
}

// NewProfileViewer creates a viewer producing width x height images. Record
// markers are drawn with the given hex palette; invalid entries fall back to
// a fixed blue.
func NewProfileViewer(width, height int, palette []string) *ProfileViewer {
	v := &ProfileViewer{
		width:  width,
		height: height,
		margin: 24,
	}
	for _, hex := range palette {
		c, err := parseHex(hex)
		if err != nil {
			c = markerColor
		}
		v.palette = append(v.palette, c)
	}
	return v
}

// Render draws the profile: shaded candidate ranges, the threshold line, the
// diameter curve and a marker at each record's minimum
func (v *ProfileViewer) Render(p Profile) (image.Image, error) {
	if len(p.Arc) != len(p.Diameter) {
		return nil, fmt.Errorf("profile has %d arc values but %d diameters", len(p.Arc), len(p.Diameter))
	}
	if p.Start < 0 || p.End >= len(p.Arc) || p.End <= p.Start {
		return nil, fmt.Errorf("window [%d, %d] invalid for %d samples", p.Start, p.End, len(p.Arc))
	}
	if v.width <= 2*v.margin || v.height <= 2*v.margin {
		return nil, fmt.Errorf("image %dx%d too small", v.width, v.height)
	}

	arc0, arc1 := p.Arc[p.Start], p.Arc[p.End]
	if !(arc1 > arc0) {
		return nil, fmt.Errorf("window [%d, %d] has zero length", p.Start, p.End)
	}
	top := math.Max(floats.Max(p.Diameter[p.Start:p.End+1]), p.Threshold) * 1.1
	if !(top > 0) {
		top = 1
	}

	left, right := v.margin, v.width-v.margin
	upper, lower := v.margin, v.height-v.margin
	xOf := func(s float64) int {
		return left + int(math.Round((s-arc0)/(arc1-arc0)*float64(right-left)))
	}
	yOf := func(d float64) int {
		return lower - int(math.Round(d/top*float64(lower-upper)))
	}

	img := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	for _, c := range p.Candidates {
		if c.Start < p.Start || c.End > p.End+1 || c.End <= c.Start {
			continue
		}
		rect := image.Rect(xOf(p.Arc[c.Start]), upper, xOf(p.Arc[c.End-1])+1, lower)
		draw.Draw(img, rect, &image.Uniform{C: shadeColor}, image.Point{}, draw.Src)
	}

	line(img, left, lower, right, lower, axisColor)
	line(img, left, upper, left, lower, axisColor)

	if p.Threshold > 0 {
		y := yOf(p.Threshold)
		for x := left; x <= right; x += 6 {
			line(img, x, y, min(x+3, right), y, limitColor)
		}
	}

	for k := p.Start; k < p.End; k++ {
		line(img, xOf(p.Arc[k]), yOf(p.Diameter[k]), xOf(p.Arc[k+1]), yOf(p.Diameter[k+1]), curveColor)
	}

	for _, rec := range p.Records {
		if rec.MinIndex < p.Start || rec.MinIndex > p.End {
			continue
		}
		c := markerColor
		if len(v.palette) > 0 {
			c = v.palette[rec.ColorSlot%len(v.palette)]
		}
		x := xOf(p.Arc[rec.MinIndex])
		line(img, x, upper, x, lower, c)
	}

	label := fmt.Sprintf("branch %d  threshold %.2f mm  %d stenoses", p.Branch, p.Threshold, len(p.Records))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(axisColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(left+4, upper-8),
	}
	d.DrawString(label)

	return img, nil
}

// SaveProfile saves a rendered profile as a PNG image
func (v *ProfileViewer) SaveProfile(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveProfileSequence renders every profile into outputDir, one image per
// branch. Profiles that cannot be rendered are logged and skipped; write
// failures abort.
func (v *ProfileViewer) SaveProfileSequence(profiles []Profile, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range profiles {
		img, err := v.Render(p)
		if err != nil {
			logger.Warn("profile skipped", "branch", p.Branch, "error", err)
			continue
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("profile_branch_%03d.png", p.Branch))
		if err := v.SaveProfile(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// line rasterizes a segment with Bresenham's algorithm, clipped to the image
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if (image.Point{X: x0, Y: y0}).In(img.Rect) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// parseHex parses a #rrggbb color
func parseHex(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
