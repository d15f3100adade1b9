// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"pitchtrack/internal/features"
)

// Band names a frequency range for the coarse level display. A zero HighHz
// extends the band to the Nyquist frequency.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the spectrum into six musical regions.
var DefaultBands = []Band{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000},
}

// BandLevels writes the mean power of each band of an n-point spectrum into
// dst and returns it. Bands narrower than one bin report 0.
func BandLevels(dst, mag []float64, n int, sampleRate float64, bands []Band) []float64 {
	dst = dst[:len(bands)]
	for i, b := range bands {
		high := b.HighHz
		if high == 0 {
			high = sampleRate / 2
		}
		level := features.AverageAmplitude(mag, n, sampleRate, b.LowHz, high)
		if math.IsNaN(level) {
			level = 0
		}
		dst[i] = level
	}
	return dst
}
