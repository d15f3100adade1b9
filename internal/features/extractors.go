// SPDX-License-Identifier: MIT

/*
Package features derives scalar descriptors from one power spectrum: spectral
centroid, band-limited average amplitude, crest, flatness and the dominant
frequency estimate used as the tracked pitch.

All extractors are pure functions over caller-owned slices and never
allocate, so they are safe to run inside the audio callback. Undefined
results (an empty band, an all-zero spectrum) are reported as NaN or
NoPitch rather than errors; bands are validated once up front by
Config.Validate.
*/
package features

import (
	"math"

	"pitchtrack/internal/spectrum"
)

const (
	DefaultPeakRatio    = 0.25
	DefaultPitchFloorHz = 50.0
	DefaultCutoffHz     = 5000.0
)

// bandBins maps [lowHz, highHz] to an inclusive bin range of an n-point
// transform, with the end clamped to the last bin. start > end means empty.
func bandBins(n int, sampleRate, lowHz, highHz float64) (start, end int) {
	binSize := spectrum.BinSize(n, sampleRate)
	start = int(math.Floor(lowHz / binSize))
	end = min(int(math.Floor(highHz/binSize)), n/2)
	return max(start, 0), end
}

// AverageAmplitude returns the mean power of the bins in [lowHz, highHz].
// It returns NaN when the band holds no bins.
func AverageAmplitude(mag []float64, n int, sampleRate, lowHz, highHz float64) float64 {
	start, end := bandBins(n, sampleRate, lowHz, highHz)
	end = min(end, len(mag)-1)
	if start > end {
		return math.NaN()
	}
	var sum float64
	for i := start; i <= end; i++ {
		sum += mag[i]
	}
	return sum / float64(end-start+1)
}

// SpectralCentroid returns the power-weighted mean frequency of the spectrum,
// weighting bin i by (i+1)·binSize. An all-zero spectrum yields NaN.
func SpectralCentroid(mag []float64, n int, sampleRate float64) float64 {
	binSize := spectrum.BinSize(n, sampleRate)
	var top, bottom float64
	for i, m := range mag[:min(len(mag), n/2+1)] {
		bottom += m
		top += m * float64(i+1) * binSize
	}
	return top / bottom
}

// SpectralCrest returns the ratio of the peak bin to the spectrum's total
// power, scaled by n. An all-zero spectrum yields NaN.
func SpectralCrest(mag []float64, n int) float64 {
	var peak, total float64
	for _, m := range mag[:min(len(mag), n/2+1)] {
		total += m
		peak = max(peak, m)
	}
	if total == 0 {
		return math.NaN()
	}
	return peak * float64(n) / total
}

// SpectralFlatness returns the geometric mean of the band's non-zero bins
// over its arithmetic mean. Values near 1 indicate noise, near 0 a tone.
// An empty or silent band yields NaN.
func SpectralFlatness(mag []float64, n int, sampleRate, lowHz, highHz float64) float64 {
	start, end := bandBins(n, sampleRate, lowHz, highHz)
	end = min(end, len(mag)-1)
	if start > end {
		return math.NaN()
	}
	var logSum, sum float64
	var nonZero int
	for i := start; i <= end; i++ {
		if mag[i] > 0 {
			logSum += math.Log(mag[i])
			nonZero++
		}
		sum += mag[i]
	}
	if nonZero == 0 || sum == 0 {
		return math.NaN()
	}
	geometric := math.Exp(logSum / float64(nonZero))
	arithmetic := sum / float64(end-start+1)
	return geometric / arithmetic
}

// DominantFrequency estimates the fundamental below cutoffHz using the
// default peak ratio and pitch floor. See Config.DominantFrequency.
func DominantFrequency(bins []complex128, mag []float64, n int, sampleRate, cutoffHz float64) Pitch {
	return dominantFrequency(bins, mag, n, sampleRate, cutoffHz, DefaultPeakRatio, DefaultPitchFloorHz)
}

// DominantFrequency estimates the fundamental frequency of a frame.
//
// The search is limited to bins below c.CutoffHz. Rather than the loudest bin
// it takes the first bin that rises above its predecessor and above
// c.PeakRatio of the band maximum, following the rise to its top. This picks
// the fundamental when a higher harmonic carries more energy. The peak is
// then refined with a parabola through the real parts of its neighbours.
// Estimates at or below c.PitchFloorHz, and silent frames, yield NoPitch.
func (c Config) DominantFrequency(bins []complex128, mag []float64, n int, sampleRate float64) Pitch {
	return dominantFrequency(bins, mag, n, sampleRate, c.CutoffHz, c.PeakRatio, c.PitchFloorHz)
}

func dominantFrequency(bins []complex128, mag []float64, n int, sampleRate, cutoffHz, ratio, floorHz float64) Pitch {
	band := min(PitchBandBins(n, sampleRate, cutoffHz), len(mag), len(bins))
	if band < 3 {
		return NoPitch
	}

	peakBin, peak := argmax(mag[:band])
	if !(peak > 0) {
		return NoPitch
	}

	// Comparing against ratio·peak is the same test as normalizing the band
	// by its maximum, without writing to mag.
	threshold := ratio * peak
	for i := 1; i <= band-2; i++ {
		if mag[i] > mag[i-1] && mag[i] > threshold {
			if mag[i+1] > mag[i] {
				peakBin = i + 1
				continue
			}
			peakBin = i
			break
		}
	}

	hz := refine(bins, peakBin, band, n, sampleRate)
	if !(hz > floorHz) {
		return NoPitch
	}
	return Some(hz)
}

// DominantFrequencyFull estimates the frequency of the loudest bin over the
// whole spectrum with the same parabolic refinement and no floor. Silent
// frames yield NoPitch.
func DominantFrequencyFull(bins []complex128, mag []float64, n int, sampleRate float64) Pitch {
	band := min(n/2+1, len(mag), len(bins))
	if band < 3 {
		return NoPitch
	}
	peakBin, peak := argmax(mag[:band])
	if !(peak > 0) {
		return NoPitch
	}
	return Some(refine(bins, peakBin, band, n, sampleRate))
}

// refine clamps m to [1, band-2] and returns its frequency corrected by a
// parabola through the real parts of bins m-1, m and m+1. The offset is
// clamped to one bin so the estimate never leaves the band.
func refine(bins []complex128, m, band, n int, sampleRate float64) float64 {
	m = min(max(m, 1), band-2)

	left, peak, right := real(bins[m-1]), real(bins[m]), real(bins[m+1])
	delta := (right - left) / (2*peak - left - right)
	switch {
	case math.IsNaN(delta):
		delta = 0
	case delta > 1:
		delta = 1
	case delta < -1:
		delta = -1
	}
	return spectrum.BinSize(n, sampleRate) * (float64(m) - delta)
}

func argmax(values []float64) (int, float64) {
	var best int
	var peak float64
	for i, v := range values {
		if v > peak {
			peak, best = v, i
		}
	}
	return best, peak
}
