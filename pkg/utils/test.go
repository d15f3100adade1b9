// SPDX-License-Identifier: MIT

// Package utils holds deterministic signal generators shared by the analysis,
// feature and audio tests.
package utils

import "math"

// GenerateSineWave returns size samples of amplitude*sin(2πft/sr + phase).
func GenerateSineWave(size int, sampleRate, frequency, amplitude, phase float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*t+phase)
	}
	return buffer
}

// GenerateHarmonicWave returns a harmonic stack on fundamental. weights[k] is
// the amplitude of harmonic k+1. The sum is scaled so its peak stays below 0.9.
func GenerateHarmonicWave(size int, sampleRate, fundamental float64, weights ...float64) []float64 {
	buffer := make([]float64, size)
	var total float64
	for _, w := range weights {
		total += math.Abs(w)
	}
	if total == 0 {
		return buffer
	}
	scale := 0.9 / total
	for i := range buffer {
		t := float64(i) / sampleRate
		var v float64
		for k, w := range weights {
			v += w * math.Sin(2*math.Pi*fundamental*float64(k+1)*t)
		}
		buffer[i] = v * scale
	}
	return buffer
}

// ToFloat32 converts samples to the PortAudio callback format.
func ToFloat32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s)
	}
	return out
}

// FindPeakBin returns the index of the largest value in magnitudes[startBin:endBin+1].
// Out-of-range bounds are clamped.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
