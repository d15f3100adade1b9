// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"testing"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/config"
	"pitchtrack/pkg/utils"
)

const (
	testSampleRate = 44100
	testFrameSize  = 256
)

// captureSink records what the engine pushes and publishes one frame per
// call.
type captureSink struct {
	got   []float32
	calls int
}

func (s *captureSink) Push(samples []float32) int {
	s.got = append(s.got[:0], samples...)
	s.calls++
	return 1
}

func newTestEngine(t *testing.T, channels int, sink analysis.SampleSink) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.SampleRate = testSampleRate
	cfg.Audio.FramesPerBuffer = testFrameSize
	cfg.Audio.InputChannels = channels
	cfg.Recording.OutputDir = t.TempDir()
	return newEngine(cfg, sink)
}

func TestProcessBufferFirstChannel(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(t, 2, sink)

	in := []float32{0.1, 9, -0.2, 9, 0.3, 9}
	mono := e.processBuffer(in)

	want := []float32{0.1, -0.2, 0.3}
	if len(mono) != len(want) {
		t.Fatalf("processBuffer() returned %d samples, want %d", len(mono), len(want))
	}
	for i := range want {
		if sink.got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, sink.got[i], want[i])
		}
	}

	stats := e.Stats()
	if stats.Callbacks != 1 || stats.Samples != 3 || stats.Frames != 1 {
		t.Errorf("Stats() = %+v, want 1 callback, 3 samples, 1 frame", stats)
	}
	if stats.Clipped != 0 {
		t.Errorf("Clipped = %d, the second channel must not count", stats.Clipped)
	}
}

func TestProcessBufferClamps(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(t, 1, sink)

	nan := float32(math.NaN())
	in := []float32{1.5, -3, 0.5, nan, 1, -1}
	e.processBuffer(in)

	want := []float32{1, -1, 0.5, 0, 1, -1}
	for i := range want {
		if sink.got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, sink.got[i], want[i])
		}
	}
	if got := e.Stats().Clipped; got != 3 {
		t.Errorf("Clipped = %d, want 3", got)
	}
}

func TestProcessBufferLimitsToFramesPerBuffer(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(t, 1, sink)

	in := make([]float32, testFrameSize*2)
	if n := len(e.processBuffer(in)); n != testFrameSize {
		t.Errorf("processBuffer() handled %d samples, want %d", n, testFrameSize)
	}
}

func TestProcessBufferDrivesPipeline(t *testing.T) {
	pcfg := analysis.DefaultConfig()
	pcfg.GateDisabled = true
	p, err := analysis.NewPipeline(pcfg)
	if err != nil {
		t.Fatalf("NewPipeline() error: %v", err)
	}
	e := newTestEngine(t, 1, p)

	signal := utils.ToFloat32(utils.GenerateSineWave(testFrameSize*8, testSampleRate, 440, 0.5, 0))
	for off := 0; off < len(signal); off += testFrameSize {
		e.processInputStream(signal[off : off+testFrameSize])
	}

	stats := e.Stats()
	if stats.Frames != 2 {
		t.Errorf("Frames = %d, want 2 fine fills from %d samples", stats.Frames, len(signal))
	}
	hz, ok := p.Frame().DominantFrequency.Get()
	if !ok || math.Abs(hz-440) > 440*PitchTolerance {
		t.Errorf("DominantFrequency = %v, want about 440 Hz", p.Frame().DominantFrequency)
	}
}

func TestProcessBufferZeroAllocs(t *testing.T) {
	p, err := analysis.NewPipeline(analysis.DefaultConfig())
	if err != nil {
		t.Fatalf("NewPipeline() error: %v", err)
	}
	e := newTestEngine(t, 2, p)
	in := utils.ToFloat32(utils.GenerateSineWave(testFrameSize*2, testSampleRate, 440, 0.5, 0))

	allocs := testing.AllocsPerRun(100, func() {
		e.processBuffer(in)
	})
	if allocs > 0 {
		t.Errorf("processBuffer allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkProcessBuffer(b *testing.B) {
	p, err := analysis.NewPipeline(analysis.DefaultConfig())
	if err != nil {
		b.Fatalf("NewPipeline() error: %v", err)
	}
	cfg := config.Default()
	cfg.Audio.FramesPerBuffer = testFrameSize
	cfg.Audio.InputChannels = 1
	e := newEngine(cfg, p)
	in := utils.ToFloat32(utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5, 0))

	b.ReportAllocs()
	for b.Loop() {
		e.processBuffer(in)
	}
}
