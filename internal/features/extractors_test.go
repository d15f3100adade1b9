// SPDX-License-Identifier: MIT
package features

import (
	"math"
	"testing"

	"pitchtrack/internal/spectrum"
	"pitchtrack/pkg/utils"
)

const (
	testSize       = 1024
	testSampleRate = 44100
	tolerance      = 0.0125
)

func analyze(t testing.TB, samples []float64) ([]complex128, []float64) {
	t.Helper()
	tr, err := spectrum.NewTransform(len(samples))
	if err != nil {
		t.Fatal(err)
	}
	return tr.Compute(samples)
}

func TestDominantFrequencyRoundTrip(t *testing.T) {
	tr, err := spectrum.NewTransform(testSize)
	if err != nil {
		t.Fatal(err)
	}

	for f := 80; f < 1200; f++ {
		samples := utils.GenerateSineWave(testSize, testSampleRate, float64(f), 1, math.Pi)
		bins, mag := tr.Compute(samples)

		estimators := []struct {
			name string
			got  Pitch
		}{
			{"band-limited", DominantFrequency(bins, mag, testSize, testSampleRate, DefaultCutoffHz)},
			{"full", DominantFrequencyFull(bins, mag, testSize, testSampleRate)},
		}
		for _, e := range estimators {
			hz, ok := e.got.Get()
			if !ok {
				t.Fatalf("%s: %d Hz gave no pitch", e.name, f)
			}
			if rel := math.Abs(hz-float64(f)) / float64(f); rel > tolerance {
				t.Errorf("%s: %d Hz estimated as %.2f Hz (error %.2f%%)", e.name, f, hz, rel*100)
			}
		}
	}
}

func TestDominantFrequencyPrefersFundamental(t *testing.T) {
	// The second harmonic carries the most energy; the fundamental still
	// clears the peak ratio.
	for _, f := range []float64{220, 330, 440, 660} {
		samples := utils.GenerateHarmonicWave(testSize, testSampleRate, f, 0.6, 1, 0.5)
		bins, mag := analyze(t, samples)

		got := DominantFrequency(bins, mag, testSize, testSampleRate, DefaultCutoffHz)
		if rel := math.Abs(got.Or(0)-f) / f; rel > tolerance {
			t.Errorf("%.0f Hz stack: band-limited estimate %v, want the fundamental", f, got)
		}

		full := DominantFrequencyFull(bins, mag, testSize, testSampleRate)
		if rel := math.Abs(full.Or(0)-2*f) / (2 * f); rel > tolerance {
			t.Errorf("%.0f Hz stack: full estimate %v, want the loudest partial %.0f Hz", f, full, 2*f)
		}
	}
}

func TestDominantFrequencyBandLimit(t *testing.T) {
	const cutoff = 2000.0

	tests := []struct {
		name   string
		parts  map[float64]float64
		wantHz float64 // 0 when only the band limit is checked
	}{
		{"Tone Above Cutoff", map[float64]float64{6000: 1}, 0},
		{"Tone Far Above Cutoff", map[float64]float64{9000: 1}, 0},
		{"Loud Tone Above Quiet Tone", map[float64]float64{300: 0.2, 4000: 1}, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]float64, testSize)
			for f, a := range tt.parts {
				for i, v := range utils.GenerateSineWave(testSize, testSampleRate, f, a, 0) {
					samples[i] += v
				}
			}
			bins, mag := analyze(t, samples)

			got := DominantFrequency(bins, mag, testSize, testSampleRate, cutoff)
			hz, ok := got.Get()
			if !ok {
				t.Fatalf("no pitch, want an estimate below %.0f Hz", cutoff)
			}
			if hz > cutoff {
				t.Errorf("estimate %.2f Hz exceeds cutoff %.0f Hz", hz, cutoff)
			}
			if tt.wantHz > 0 && math.Abs(hz-tt.wantHz)/tt.wantHz > tolerance {
				t.Errorf("estimate %.2f Hz, want %.0f Hz", hz, tt.wantHz)
			}
		})
	}

	// Every sine across the spectrum stays inside the band.
	tr, err := spectrum.NewTransform(testSize)
	if err != nil {
		t.Fatal(err)
	}
	for f := 100.0; f < testSampleRate/2; f += 97 {
		bins, mag := tr.Compute(utils.GenerateSineWave(testSize, testSampleRate, f, 1, 0))
		if hz, ok := DominantFrequency(bins, mag, testSize, testSampleRate, cutoff).Get(); ok && hz > cutoff {
			t.Fatalf("%.0f Hz sine estimated at %.2f Hz above the %.0f Hz cutoff", f, hz, cutoff)
		}
	}
}

func TestDominantFrequencyNoPitch(t *testing.T) {
	silence := make([]float64, testSize)
	bins, mag := analyze(t, silence)
	if got := DominantFrequency(bins, mag, testSize, testSampleRate, DefaultCutoffHz); got.Valid {
		t.Errorf("silence: got %v, want no pitch", got)
	}
	if got := DominantFrequencyFull(bins, mag, testSize, testSampleRate); got.Valid {
		t.Errorf("silence (full): got %v, want no pitch", got)
	}

	// A 30 Hz tone sits below the 50 Hz floor.
	bins, mag = analyze(t, utils.GenerateSineWave(testSize, testSampleRate, 30, 1, 0))
	if got := DominantFrequency(bins, mag, testSize, testSampleRate, DefaultCutoffHz); got.Valid {
		t.Errorf("30 Hz: got %v, want no pitch", got)
	}

	// A cutoff that leaves fewer than three bins cannot be searched.
	bins, mag = analyze(t, utils.GenerateSineWave(testSize, testSampleRate, 440, 1, 0))
	if got := DominantFrequency(bins, mag, testSize, testSampleRate, 50); got.Valid {
		t.Errorf("degenerate band: got %v, want no pitch", got)
	}
}

func TestDominantFrequencyConfig(t *testing.T) {
	bins, mag := analyze(t, utils.GenerateSineWave(testSize, testSampleRate, 440, 0.5, 0))

	cfg := DefaultConfig()
	if got, want := cfg.DominantFrequency(bins, mag, testSize, testSampleRate),
		DominantFrequency(bins, mag, testSize, testSampleRate, DefaultCutoffHz); got != want {
		t.Errorf("default config estimate %v, want %v", got, want)
	}

	cfg.PitchFloorHz = 1000
	if got := cfg.DominantFrequency(bins, mag, testSize, testSampleRate); got.Valid {
		t.Errorf("440 Hz under a 1000 Hz floor: got %v, want no pitch", got)
	}
}

func TestSpectralCentroid(t *testing.T) {
	binSize := spectrum.BinSize(testSize, testSampleRate)

	mag := make([]float64, testSize/2+1)
	mag[10] = 4
	if got, want := SpectralCentroid(mag, testSize, testSampleRate), 11*binSize; math.Abs(got-want) > 1e-9 {
		t.Errorf("single bin centroid = %v, want %v", got, want)
	}

	mag[20] = 4
	if got, want := SpectralCentroid(mag, testSize, testSampleRate), 16*binSize; math.Abs(got-want) > 1e-9 {
		t.Errorf("two bin centroid = %v, want %v", got, want)
	}

	if got := SpectralCentroid(make([]float64, testSize/2+1), testSize, testSampleRate); !math.IsNaN(got) {
		t.Errorf("all-zero centroid = %v, want NaN", got)
	}
}

func TestAverageAmplitude(t *testing.T) {
	binSize := spectrum.BinSize(testSize, testSampleRate)
	mag := make([]float64, testSize/2+1)
	for i := range mag {
		mag[i] = float64(i)
	}

	tests := []struct {
		name      string
		low, high float64
		want      float64
	}{
		{"Whole Spectrum", 0, testSampleRate / 2, 256},
		{"Bins 2 To 4", 2 * binSize, 4*binSize + 1, 3},
		{"Single Bin", 10 * binSize, 10*binSize + 1, 10},
		{"End Clamped", 500 * binSize, testSampleRate, 506},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AverageAmplitude(mag, testSize, testSampleRate, tt.low, tt.high); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AverageAmplitude(%v, %v) = %v, want %v", tt.low, tt.high, got, tt.want)
			}
		})
	}

	if got := AverageAmplitude(mag, testSize, testSampleRate, 30000, 40000); !math.IsNaN(got) {
		t.Errorf("empty band = %v, want NaN", got)
	}
}

func TestSpectralCrestAndFlatness(t *testing.T) {
	flat := make([]float64, testSize/2+1)
	for i := range flat {
		flat[i] = 2
	}
	if got := SpectralFlatness(flat, testSize, testSampleRate, 0, testSampleRate/2); math.Abs(got-1) > 1e-12 {
		t.Errorf("flat spectrum flatness = %v, want 1", got)
	}
	if got, want := SpectralCrest(flat, testSize), float64(testSize)/float64(len(flat)); math.Abs(got-want) > 1e-9 {
		t.Errorf("flat spectrum crest = %v, want %v", got, want)
	}

	_, mag := analyze(t, utils.GenerateSineWave(testSize, testSampleRate, 440, 0.5, 0))
	if got := SpectralFlatness(mag, testSize, testSampleRate, 0, testSampleRate/2); got > 0.1 {
		t.Errorf("pure tone flatness = %v, want near 0", got)
	}
	if got := SpectralCrest(mag, testSize); got < float64(testSize)/2 {
		t.Errorf("pure tone crest = %v, want above %d", got, testSize/2)
	}

	silent := make([]float64, testSize/2+1)
	if got := SpectralFlatness(silent, testSize, testSampleRate, 0, testSampleRate/2); !math.IsNaN(got) {
		t.Errorf("silent flatness = %v, want NaN", got)
	}
	if got := SpectralCrest(silent, testSize); !math.IsNaN(got) {
		t.Errorf("silent crest = %v, want NaN", got)
	}
}

func TestExtractorsZeroAllocs(t *testing.T) {
	bins, mag := analyze(t, utils.GenerateHarmonicWave(testSize, testSampleRate, 330, 0.6, 1, 0.5))
	cfg := DefaultConfig()

	allocs := testing.AllocsPerRun(100, func() {
		_ = cfg.DominantFrequency(bins, mag, testSize, testSampleRate)
		_ = DominantFrequencyFull(bins, mag, testSize, testSampleRate)
		_ = SpectralCentroid(mag, testSize, testSampleRate)
		_ = AverageAmplitude(mag, testSize, testSampleRate, 0, testSampleRate/2)
		_ = SpectralCrest(mag, testSize)
		_ = SpectralFlatness(mag, testSize, testSampleRate, 0, testSampleRate/2)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in extractors, got %.1f", allocs)
	}
}

func BenchmarkDominantFrequency(b *testing.B) {
	bins, mag := analyze(b, utils.GenerateHarmonicWave(testSize, testSampleRate, 440, 0.5, 0.3, 0.2))

	b.ReportAllocs()
	for b.Loop() {
		DominantFrequency(bins, mag, testSize, testSampleRate, DefaultCutoffHz)
	}
}
