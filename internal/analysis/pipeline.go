// SPDX-License-Identifier: MIT

/*
Package analysis turns a mono sample stream into published note frames.

A Pipeline owns two ring buffers. The small fast buffer is transformed on
every fill to measure the onset amplitude that drives the note Gate. The
large fine buffer only accumulates while a note is sounding; each time it
fills, its spectrum is windowed and the feature extractors run. Results are
published through a sequence-locked Frame that any goroutine may read.

Real-Time Safety:
- PushSample and Push never allocate, lock or log
- Transforms, window tables and the spectrum snapshot are allocated in NewPipeline
- A single goroutine (the audio callback) may push; any number may read
*/
package analysis

import (
	"errors"
	"fmt"
	"sync/atomic"

	"pitchtrack/internal/features"
	"pitchtrack/internal/log"
	"pitchtrack/internal/spectrum"
)

// ErrSampleRate is returned for a non-positive sample rate.
var ErrSampleRate = errors.New("sample rate must be positive")

// Config sizes the buffers and tunes the extractors of a Pipeline.
type Config struct {
	SampleRate float64
	FastSize   int // Onset buffer length, a power of two.
	FineSize   int // Analysis buffer length, a power of two.
	Window     spectrum.WindowKind
	Features   features.Config

	// GateDisabled lets the fine buffer accumulate regardless of amplitude.
	GateDisabled bool
}

// DefaultConfig returns 64/1024-sample buffers at 44.1 kHz with no window.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		FastSize:   64,
		FineSize:   1024,
		Window:     spectrum.Rectangle,
		Features:   features.DefaultConfig(),
	}
}

// Validate rejects configurations that would make an extractor undefined
// on every frame.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w, got %f", ErrSampleRate, c.SampleRate)
	}
	if err := spectrum.CheckSize(c.FastSize); err != nil {
		return fmt.Errorf("fast buffer: %w", err)
	}
	if err := spectrum.CheckSize(c.FineSize); err != nil {
		return fmt.Errorf("fine buffer: %w", err)
	}
	if c.FastSize > c.FineSize {
		return fmt.Errorf("fast buffer (%d) larger than fine buffer (%d)", c.FastSize, c.FineSize)
	}
	if !c.Window.Valid() {
		return fmt.Errorf("unknown window kind %d", c.Window)
	}
	if err := c.Features.Validate(c.FineSize, c.SampleRate); err != nil {
		return fmt.Errorf("fine buffer: %w", err)
	}
	if err := features.ValidateBand(c.FastSize, c.SampleRate, 0, c.SampleRate/2); err != nil {
		return fmt.Errorf("fast buffer: %w", err)
	}
	return nil
}

// Pipeline is the streaming analyzer. Create it with NewPipeline.
type Pipeline struct {
	cfg Config

	fast   *RingBuffer
	fine   *RingBuffer
	fastTr *spectrum.Transform
	fineTr *spectrum.Transform

	windows     *spectrum.WindowBank
	window      atomic.Int32
	gate        *Gate
	gateEnabled atomic.Bool

	ampLow, ampHigh float64

	cur   Frame // Writer-side copy of the last published frame.
	store *frameStore
}

// Compile-time checks for interface implementations.
var _ FrameSource = (*Pipeline)(nil)
var _ SpectrumSource = (*Pipeline)(nil)
var _ SampleSink = (*Pipeline)(nil)

// NewPipeline validates cfg and allocates every buffer the pipeline needs.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}

	fastTr, err := spectrum.NewTransform(cfg.FastSize)
	if err != nil {
		return nil, err
	}
	fineTr, err := spectrum.NewTransform(cfg.FineSize)
	if err != nil {
		return nil, err
	}
	gate, err := NewGate(cfg.Features.OnsetThreshold, cfg.Features.OffsetThreshold)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:     cfg,
		fast:    NewRingBuffer(cfg.FastSize),
		fine:    NewRingBuffer(cfg.FineSize),
		fastTr:  fastTr,
		fineTr:  fineTr,
		windows: spectrum.NewWindowBank(fineTr.Bins()),
		gate:    gate,
		store:   newFrameStore(fineTr.Bins()),
	}
	p.ampLow, p.ampHigh = cfg.Features.AmplitudeBand(cfg.SampleRate)
	p.window.Store(int32(cfg.Window))
	p.gateEnabled.Store(!cfg.GateDisabled)
	p.cur.Window = cfg.Window
	p.cur.NoteOn = cfg.GateDisabled
	p.store.store(&p.cur, nil)

	log.Infof("Analysis: Initializing pipeline (Fast: %d, Fine: %d, SampleRate: %.1f Hz, Window: %v, Gate: %t)",
		cfg.FastSize, cfg.FineSize, cfg.SampleRate, cfg.Window, !cfg.GateDisabled)

	return p, nil
}

// PushSample feeds one sample. The fast buffer and the gate see it first;
// when the gate is closed the fine buffer's partial fill is discarded before
// the sample is written to it. It reports true when the sample completed a
// fine buffer and a frame with new features was published.
func (p *Pipeline) PushSample(x float64) bool {
	gated := p.gateEnabled.Load()

	if p.fast.Push(x) {
		_, mag := p.fastTr.Compute(p.fast.Samples())
		amp := features.AverageAmplitude(mag, p.cfg.FastSize, p.cfg.SampleRate, 0, p.cfg.SampleRate/2)
		p.gate.Update(amp)

		p.cur.OnsetAverageAmplitude = amp
		p.cur.NoteOn = !gated || p.gate.Sounding()
		p.store.store(&p.cur, nil)
	}

	if gated && !p.gate.Sounding() {
		p.fine.Reset()
	}

	if !p.fine.Push(x) {
		return false
	}
	p.analyze()
	return true
}

// Push feeds a block of samples from the audio callback and returns the
// number of feature frames published.
func (p *Pipeline) Push(samples []float32) int {
	published := 0
	for _, s := range samples {
		if p.PushSample(float64(s)) {
			published++
		}
	}
	return published
}

// analyze runs the fine transform and the extractors over a full fine buffer.
func (p *Pipeline) analyze() {
	n, sr := p.cfg.FineSize, p.cfg.SampleRate

	bins, mag := p.fineTr.Compute(p.fine.Samples())
	kind := p.Window()
	p.windows.Apply(kind, mag)

	p.cur.Fills++
	p.cur.Window = kind
	p.cur.SpectralCentroid = features.SpectralCentroid(mag, n, sr)
	p.cur.DominantFrequency = p.cfg.Features.DominantFrequency(bins, mag, n, sr)
	p.cur.AverageAmplitude = features.AverageAmplitude(mag, n, sr, p.ampLow, p.ampHigh)
	p.cur.SpectralCrest = features.SpectralCrest(mag, n)
	p.cur.SpectralFlatness = features.SpectralFlatness(mag, n, sr, p.ampLow, p.ampHigh)

	p.store.store(&p.cur, mag)
}

// Frame returns a consistent copy of the latest published frame.
func (p *Pipeline) Frame() Frame { return p.store.load() }

// Seq returns the number of frames published so far. Readers can poll it to
// skip copying an unchanged frame.
func (p *Pipeline) Seq() uint64 { return p.store.version() }

// Spectrum copies the windowed power spectrum of the latest fine frame into
// dst and returns the number of bins written.
func (p *Pipeline) Spectrum(dst []float64) int { return p.store.loadSpectrum(dst) }

// Bins returns the length of the fine spectrum, FineSize/2+1.
func (p *Pipeline) Bins() int { return p.fineTr.Bins() }

// SampleRate returns the configured sample rate.
func (p *Pipeline) SampleRate() float64 { return p.cfg.SampleRate }

// FineSize returns the fine transform length.
func (p *Pipeline) FineSize() int { return p.cfg.FineSize }

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// SetWindow selects the window applied to subsequent fine frames. Unknown
// kinds select Rectangle. Safe to call from any goroutine.
func (p *Pipeline) SetWindow(kind spectrum.WindowKind) {
	if !kind.Valid() {
		kind = spectrum.Rectangle
	}
	p.window.Store(int32(kind))
}

// Window returns the currently selected window kind.
func (p *Pipeline) Window() spectrum.WindowKind {
	return spectrum.WindowKind(p.window.Load())
}

// EnableGate makes the fine buffer wait for a note before accumulating.
func (p *Pipeline) EnableGate() { p.gateEnabled.Store(true) }

// DisableGate lets the fine buffer accumulate continuously. Frames report
// NoteOn from the next fast fill on.
func (p *Pipeline) DisableGate() { p.gateEnabled.Store(false) }

// GateEnabled reports whether the note gate controls the fine buffer.
func (p *Pipeline) GateEnabled() bool { return p.gateEnabled.Load() }

// FineLoc returns the fine buffer's write cursor. Only the pushing goroutine
// may call it.
func (p *Pipeline) FineLoc() int { return p.fine.Loc() }

// FastLoc returns the fast buffer's write cursor. Only the pushing goroutine
// may call it.
func (p *Pipeline) FastLoc() int { return p.fast.Loc() }
