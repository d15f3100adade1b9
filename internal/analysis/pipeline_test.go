// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"sync"
	"testing"

	"pitchtrack/internal/features"
	"pitchtrack/internal/spectrum"
	"pitchtrack/pkg/utils"
)

const testSampleRate = 44100

// tone returns an endless sine generator.
func tone(freq, amplitude float64) func() float64 {
	i := 0
	return func() float64 {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
		i++
		return v
	}
}

func newTestPipeline(t testing.TB, mutate func(*Config)) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline() error: %v", err)
	}
	return p
}

// primeGate pushes samples from next until the gate opens.
func primeGate(t *testing.T, p *Pipeline, next func() float64) {
	t.Helper()
	for range 2 * p.cfg.FastSize {
		p.PushSample(next())
		if p.Frame().NoteOn {
			return
		}
	}
	t.Fatal("gate never opened")
}

func TestNewPipelineValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"Zero Sample Rate", func(c *Config) { c.SampleRate = 0 }, ErrSampleRate},
		{"Fast Not Power Of Two", func(c *Config) { c.FastSize = 60 }, spectrum.ErrTransformSize},
		{"Fine Not Power Of Two", func(c *Config) { c.FineSize = 1000 }, spectrum.ErrTransformSize},
		{"Pitch Band Too Narrow", func(c *Config) { c.Features.CutoffHz = 60 }, features.ErrDegenerateBand},
		{"Inverted Thresholds", func(c *Config) { c.Features.OffsetThreshold = 1 }, features.ErrThresholds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewPipeline(cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewPipeline() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.FastSize = 2048
	if _, err := NewPipeline(cfg); err == nil {
		t.Error("fast buffer larger than fine buffer should be rejected")
	}
}

func TestPipelineTracksTone(t *testing.T) {
	for _, freq := range []float64{220, 330, 440, 523.25, 880} {
		p := newTestPipeline(t, nil)
		next := tone(freq, 0.5)
		primeGate(t, p, next)

		published := 0
		for range 4 * p.cfg.FineSize {
			if p.PushSample(next()) {
				published++
			}
		}
		if published < 3 {
			t.Fatalf("%.2f Hz: %d frames published, want at least 3", freq, published)
		}

		f := p.Frame()
		hz, ok := f.DominantFrequency.Get()
		if !ok {
			t.Fatalf("%.2f Hz: no pitch in frame %+v", freq, f)
		}
		if rel := math.Abs(hz-freq) / freq; rel > 0.0125 {
			t.Errorf("%.2f Hz: estimated %.2f Hz", freq, hz)
		}
		if !f.NoteOn {
			t.Errorf("%.2f Hz: NoteOn false while sounding", freq)
		}
		if f.Fills != uint64(published) {
			t.Errorf("%.2f Hz: Fills = %d, want %d", freq, f.Fills, published)
		}
		if f.OnsetAverageAmplitude < testOnset || f.AverageAmplitude <= 0 {
			t.Errorf("%.2f Hz: amplitudes onset=%v average=%v", freq, f.OnsetAverageAmplitude, f.AverageAmplitude)
		}
		if f.SpectralCentroid <= 0 || math.IsNaN(f.SpectralCentroid) {
			t.Errorf("%.2f Hz: centroid = %v", freq, f.SpectralCentroid)
		}
	}
}

func TestPipelineBufferDiscipline(t *testing.T) {
	p := newTestPipeline(t, nil)
	next := tone(440, 0.5)
	primeGate(t, p, next)

	for !p.PushSample(next()) {
	}
	if p.FineLoc() != 0 {
		t.Fatalf("fine cursor after publication = %d, want 0", p.FineLoc())
	}

	published := 0
	for range p.cfg.FineSize {
		if p.PushSample(next()) {
			published++
		}
	}
	if published != 1 {
		t.Errorf("%d samples published %d frames, want exactly 1", p.cfg.FineSize, published)
	}
	if p.FineLoc() != 0 {
		t.Errorf("fine cursor = %d, want 0", p.FineLoc())
	}
}

func TestPipelineSilence(t *testing.T) {
	t.Run("Gate Enabled", func(t *testing.T) {
		p := newTestPipeline(t, nil)
		published := 0
		for range 10 * p.cfg.FineSize {
			if p.PushSample(0) {
				published++
			}
			if p.FineLoc() > 1 {
				t.Fatalf("fine cursor advanced to %d while silent", p.FineLoc())
			}
		}
		if published != 0 {
			t.Errorf("silence published %d frames", published)
		}
		if f := p.Frame(); f.NoteOn || f.Fills != 0 {
			t.Errorf("silent frame = %+v", f)
		}
	})

	t.Run("Gate Disabled", func(t *testing.T) {
		p := newTestPipeline(t, func(c *Config) { c.GateDisabled = true })
		published := p.Push(make([]float32, 3*p.cfg.FineSize))
		if published != 3 {
			t.Fatalf("3 buffers of silence published %d frames, want 3", published)
		}

		f := p.Frame()
		if f.DominantFrequency.Valid {
			t.Errorf("silence pitch = %v, want none", f.DominantFrequency)
		}
		if !math.IsNaN(f.SpectralCentroid) {
			t.Errorf("silence centroid = %v, want NaN", f.SpectralCentroid)
		}
		if f.AverageAmplitude != 0 || f.OnsetAverageAmplitude != 0 {
			t.Errorf("silence amplitudes = %v, %v", f.AverageAmplitude, f.OnsetAverageAmplitude)
		}
		if !f.NoteOn {
			t.Error("NoteOn should be true with the gate disabled")
		}
	})
}

func TestPipelineNoteRelease(t *testing.T) {
	p := newTestPipeline(t, nil)
	next := tone(440, 0.5)
	primeGate(t, p, next)
	for range p.cfg.FineSize / 2 {
		p.PushSample(next())
	}
	if p.FineLoc() == 0 {
		t.Fatal("fine buffer should be accumulating while sounding")
	}

	for range 2 * p.cfg.FastSize {
		p.PushSample(0)
	}
	if p.Frame().NoteOn {
		t.Fatal("gate should close after a fast buffer of silence")
	}
	if p.FineLoc() > 1 {
		t.Errorf("fine cursor = %d after release, want reset", p.FineLoc())
	}
}

func TestPipelineGateToggle(t *testing.T) {
	p := newTestPipeline(t, nil)
	if !p.GateEnabled() {
		t.Fatal("gate should be enabled by default")
	}

	p.DisableGate()
	p.DisableGate() // Multiple calls should be idempotent
	if p.GateEnabled() {
		t.Fatal("gate should be disabled after DisableGate()")
	}
	if got := p.Push(make([]float32, p.cfg.FineSize)); got != 1 {
		t.Errorf("disabled gate: %d frames from one buffer of silence, want 1", got)
	}

	p.EnableGate()
	if !p.GateEnabled() {
		t.Fatal("gate should be enabled after EnableGate()")
	}
	if got := p.Push(make([]float32, 2*p.cfg.FineSize)); got != 0 {
		t.Errorf("enabled gate: %d frames from silence, want 0", got)
	}
}

func TestPipelineWindowSelection(t *testing.T) {
	p := newTestPipeline(t, func(c *Config) { c.GateDisabled = true })
	samples := utils.ToFloat32(utils.GenerateSineWave(p.cfg.FineSize, testSampleRate, 440, 0.5, 0))

	p.Push(samples)
	rect := make([]float64, p.Bins())
	if n := p.Spectrum(rect); n != p.Bins() {
		t.Fatalf("Spectrum() wrote %d bins, want %d", n, p.Bins())
	}
	if got := p.Frame().Window; got != spectrum.Rectangle {
		t.Errorf("frame window = %v, want rectangle", got)
	}

	for _, kind := range spectrum.WindowKinds[1:] {
		p.SetWindow(kind)
		if p.Window() != kind {
			t.Fatalf("Window() = %v after SetWindow(%v)", p.Window(), kind)
		}
		p.Push(samples)
		if got := p.Frame().Window; got != kind {
			t.Errorf("frame window = %v, want %v", got, kind)
		}

		windowed := make([]float64, p.Bins())
		p.Spectrum(windowed)
		weights := spectrum.NewWindow(kind, p.Bins()).Weights()
		for i := range windowed {
			if want := rect[i] * weights[i]; math.Abs(windowed[i]-want) > 1e-9*math.Max(1, want) {
				t.Fatalf("%v bin %d = %v, want %v", kind, i, windowed[i], want)
			}
		}
	}

	p.SetWindow(spectrum.WindowKind(42))
	if p.Window() != spectrum.Rectangle {
		t.Errorf("unknown kind selected %v, want rectangle", p.Window())
	}
}

func TestPipelineZeroAllocs(t *testing.T) {
	p := newTestPipeline(t, nil)
	samples := utils.ToFloat32(utils.GenerateHarmonicWave(p.cfg.FineSize, testSampleRate, 330, 0.6, 1, 0.5))

	// Warm-up call.
	p.Push(samples)
	allocs := testing.AllocsPerRun(20, func() {
		p.Push(samples)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Push hot path, got %.1f", allocs)
	}
}

func TestPipelineConcurrentReaders(t *testing.T) {
	p := newTestPipeline(t, func(c *Config) { c.GateDisabled = true })
	samples := utils.ToFloat32(utils.GenerateSineWave(p.cfg.FineSize, testSampleRate, 440, 0.5, 0))

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dst := make([]float64, p.Bins())
			var last uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				f := p.Frame()
				if f.Seq < last {
					t.Errorf("Seq went backwards: %d after %d", f.Seq, last)
					return
				}
				last = f.Seq
				p.Spectrum(dst)
			}
		}()
	}

	for range 50 {
		p.Push(samples)
	}
	close(done)
	wg.Wait()

	if got, want := p.Frame().Fills, uint64(50); got != want {
		t.Errorf("Fills = %d, want %d", got, want)
	}
}

func BenchmarkPipelinePush(b *testing.B) {
	p := newTestPipeline(b, nil)
	samples := utils.ToFloat32(utils.GenerateHarmonicWave(256, testSampleRate, 440, 0.5, 0.3, 0.2))

	b.ReportAllocs()
	for b.Loop() {
		p.Push(samples)
	}
}
