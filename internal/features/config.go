// SPDX-License-Identifier: MIT
package features

import (
	"errors"
	"fmt"
	"math"

	"pitchtrack/internal/spectrum"
)

var (
	// ErrDegenerateBand is returned when a frequency band maps to too few bins.
	ErrDegenerateBand = errors.New("degenerate frequency band")
	// ErrThresholds is returned for gate thresholds that cannot form a hysteresis loop.
	ErrThresholds = errors.New("invalid gate thresholds")
	// ErrPeakRatio is returned when the rising-peak ratio is outside (0, 1].
	ErrPeakRatio = errors.New("peak ratio must be in (0, 1]")
)

// Config holds the tunables shared by the extractors and the note gate.
type Config struct {
	OnsetThreshold  float64 // Fast-buffer amplitude that starts a note.
	OffsetThreshold float64 // Fast-buffer amplitude below which a note ends.
	PitchFloorHz    float64
	PeakRatio       float64
	CutoffHz        float64

	// Band averaged into AverageAmplitude for fine frames. A zero
	// AmplitudeHighHz means the Nyquist frequency.
	AmplitudeLowHz  float64
	AmplitudeHighHz float64
}

// DefaultConfig returns the tuning used for a voice or guitar at 44.1 kHz.
func DefaultConfig() Config {
	return Config{
		OnsetThreshold:  0.025,
		OffsetThreshold: 0.015,
		PitchFloorHz:    50,
		PeakRatio:       0.25,
		CutoffHz:        5000,
	}
}

// AmplitudeBand returns the configured amplitude band with the Nyquist
// default resolved.
func (c Config) AmplitudeBand(sampleRate float64) (low, high float64) {
	high = c.AmplitudeHighHz
	if high == 0 {
		high = sampleRate / 2
	}
	return c.AmplitudeLowHz, high
}

// Validate checks the configuration against an n-point transform at
// sampleRate. Every band must map to enough bins for its extractor.
func (c Config) Validate(n int, sampleRate float64) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if c.OffsetThreshold < 0 || c.OnsetThreshold <= 0 || c.OffsetThreshold > c.OnsetThreshold {
		return fmt.Errorf("%w: onset %g, offset %g (want 0 <= offset <= onset, onset > 0)",
			ErrThresholds, c.OnsetThreshold, c.OffsetThreshold)
	}
	if c.PeakRatio <= 0 || c.PeakRatio > 1 || math.IsNaN(c.PeakRatio) {
		return fmt.Errorf("%w, got %g", ErrPeakRatio, c.PeakRatio)
	}
	if c.PitchFloorHz < 0 {
		return fmt.Errorf("pitch floor must not be negative, got %g", c.PitchFloorHz)
	}
	if bins := PitchBandBins(n, sampleRate, c.CutoffHz); bins < 3 {
		return fmt.Errorf("%w: pitch cutoff %g Hz covers %d bins of a %d-point transform, need 3",
			ErrDegenerateBand, c.CutoffHz, bins, n)
	}
	low, high := c.AmplitudeBand(sampleRate)
	if err := ValidateBand(n, sampleRate, low, high); err != nil {
		return fmt.Errorf("amplitude band: %w", err)
	}
	return nil
}

// ValidateBand checks that [lowHz, highHz] is ordered and covers at least one
// bin of an n-point transform.
func ValidateBand(n int, sampleRate, lowHz, highHz float64) error {
	if lowHz < 0 || highHz <= lowHz {
		return fmt.Errorf("%w: [%g, %g] Hz", ErrDegenerateBand, lowHz, highHz)
	}
	start, end := bandBins(n, sampleRate, lowHz, highHz)
	if start > end {
		return fmt.Errorf("%w: [%g, %g] Hz holds no bins of a %d-point transform",
			ErrDegenerateBand, lowHz, highHz, n)
	}
	return nil
}

// PitchBandBins returns how many bins the dominant-frequency search covers
// below cutoffHz, clamped to the spectrum.
func PitchBandBins(n int, sampleRate, cutoffHz float64) int {
	if cutoffHz <= 0 {
		return 0
	}
	bins := int(cutoffHz/spectrum.BinSize(n, sampleRate)) + 1
	return min(bins, n/2+1)
}
