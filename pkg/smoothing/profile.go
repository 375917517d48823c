// Package smoothing denoises per-sample radius profiles before stenosis
// detection. Radius estimates from centerline extraction jitter from sample
// to sample; isolated spikes are removed with a sliding median and the
// remaining noise with a low-pass filter in the frequency domain.
package smoothing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Filter holds the smoothing parameters. The zero value leaves profiles
// unchanged.
type Filter struct {
	// MedianWindow is the odd width of the sliding median; values below 3
	// disable it
	MedianWindow int

	// LowPassCutoff is the fraction of the frequency band kept by the
	// low-pass filter, in (0, 1); 0 or 1 disable it
	LowPassCutoff float64
}

// Enabled reports whether the filter changes profiles at all
func (f Filter) Enabled() bool {
	return f.MedianWindow >= 3 || (f.LowPassCutoff > 0 && f.LowPassCutoff < 1)
}

// Validate checks the filter parameters
func (f Filter) Validate() error {
	if f.MedianWindow >= 3 && f.MedianWindow%2 == 0 {
		return fmt.Errorf("median window must be odd, got %d", f.MedianWindow)
	}
	if f.LowPassCutoff < 0 || f.LowPassCutoff > 1 {
		return fmt.Errorf("low-pass cutoff must be in [0, 1], got %g", f.LowPassCutoff)
	}
	return nil
}

// Apply returns a smoothed copy of profile. The input is not modified.
func (f Filter) Apply(profile []float64) []float64 {
	out := make([]float64, len(profile))
	copy(out, profile)
	if f.MedianWindow >= 3 {
		out = Median(out, f.MedianWindow)
	}
	if f.LowPassCutoff > 0 && f.LowPassCutoff < 1 {
		out = LowPass(out, f.LowPassCutoff)
	}
	return out
}

// Median applies a sliding median of the given odd width. Near the ends the
// window shrinks to the samples available.
func Median(data []float64, width int) []float64 {
	n := len(data)
	result := make([]float64, n)
	half := width / 2
	window := make([]float64, 0, width)
	for i := 0; i < n; i++ {
		window = append(window[:0], data[max(0, i-half):min(n, i+half+1)]...)
		sort.Float64s(window)
		m := len(window)
		if m%2 == 1 {
			result[i] = window[m/2]
		} else {
			result[i] = (window[m/2-1] + window[m/2]) / 2
		}
	}
	return result
}

// LowPass removes the frequency content above cutoff (a fraction of the
// Nyquist band) from data.
//
// The profile is mirrored before the transform so that the periodic
// continuation assumed by the FFT has no jump at the ends.
func LowPass(data []float64, cutoff float64) []float64 {
	n := len(data)
	if n < 2 {
		return append([]float64(nil), data...)
	}

	mirrored := make([]float64, 2*n)
	copy(mirrored, data)
	for i := 0; i < n; i++ {
		mirrored[2*n-1-i] = data[i]
	}

	fft := fourier.NewFFT(len(mirrored))
	coeffs := fft.Coefficients(nil, mirrored)
	keep := int(cutoff * float64(len(coeffs)-1))
	for k := keep + 1; k < len(coeffs); k++ {
		coeffs[k] = 0
	}

	smoothed := fft.Sequence(nil, coeffs)
	floats.Scale(1/float64(len(mirrored)), smoothed)
	return smoothed[:n]
}
