// SPDX-License-Identifier: MIT

/*
Package spectrum wraps the real-input Fourier transform used by the analysis
pipeline and the weighting curves applied to its power spectrum.

Real-Time Safety:
- The gonum FFT is planned once per buffer length in NewTransform
- Bin and magnitude buffers are pre-allocated and reused on every call
- Compute and Window.Apply never allocate
*/
package spectrum

import (
	"errors"
	"fmt"

	"pitchtrack/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrTransformSize is returned for buffer lengths that cannot be planned.
var ErrTransformSize = errors.New("transform size must be a power of two >= 4")

// Transform is a planned forward real-to-complex DFT of fixed length N with
// its own workspace. A Transform is owned by a single goroutine.
type Transform struct {
	fft  *fourier.FFT
	size int
	bins []complex128 // N/2+1 complex bins, overwritten on every Compute.
	mag  []float64    // N/2+1 power values, mag[i] = re² + im².
}

// CheckSize reports whether n samples can be planned.
func CheckSize(n int) error {
	if n < 4 || !bitint.IsPowerOfTwo(n) {
		return fmt.Errorf("%w, got %d", ErrTransformSize, n)
	}
	return nil
}

// NewTransform plans a transform for n samples.
func NewTransform(n int) (*Transform, error) {
	if err := CheckSize(n); err != nil {
		return nil, err
	}
	return &Transform{
		fft:  fourier.NewFFT(n),
		size: n,
		bins: make([]complex128, n/2+1),
		mag:  make([]float64, n/2+1),
	}, nil
}

// Size returns N.
func (t *Transform) Size() int { return t.size }

// Bins returns the number of output bins, N/2+1.
func (t *Transform) Bins() int { return len(t.bins) }

// Compute transforms samples (len N) and returns the complex bins and their
// power magnitudes. Both slices belong to the Transform and are valid until
// the next call.
func (t *Transform) Compute(samples []float64) ([]complex128, []float64) {
	t.fft.Coefficients(t.bins, samples)
	Magnitude(t.mag, t.bins)
	return t.bins, t.mag
}

// Magnitude writes the power (not amplitude) of each bin into dst and
// returns it. dst must be at least len(bins) long.
func Magnitude(dst []float64, bins []complex128) []float64 {
	dst = dst[:len(bins)]
	for i, c := range bins {
		re, im := real(c), imag(c)
		dst[i] = re*re + im*im
	}
	return dst
}

// BinSize returns the width in Hz of one bin of an n-point transform.
func BinSize(n int, sampleRate float64) float64 {
	return sampleRate / float64(n)
}

// BinFrequency returns the frequency in Hz of bin k of an n-point transform.
func BinFrequency(k, n int, sampleRate float64) float64 {
	return float64(k) * BinSize(n, sampleRate)
}
