// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"runtime"
	"sync/atomic"

	"pitchtrack/internal/features"
	"pitchtrack/internal/spectrum"
)

// Frame is the analysis state published to consumers. Scalar features are
// refreshed once per fine-buffer fill; OnsetAverageAmplitude and NoteOn once
// per fast-buffer fill.
type Frame struct {
	Seq   uint64 // Publications so far, fast and fine.
	Fills uint64 // Fine-buffer fills analyzed so far.

	NoteOn bool
	Window spectrum.WindowKind

	SpectralCentroid      float64
	DominantFrequency     features.Pitch
	AverageAmplitude      float64
	OnsetAverageAmplitude float64
	SpectralCrest         float64
	SpectralFlatness      float64
}

const (
	flagNoteOn = 1 << iota
	flagPitchValid
)

const windowShift = 8

// frameStore publishes frames from a single writer to any number of readers
// with a sequence lock. The writer makes seq odd, stores every word and makes
// seq even again; readers retry until they see the same even seq on both
// sides of their copy. The writer never blocks and never allocates.
type frameStore struct {
	seq   atomic.Uint64
	fills atomic.Uint64
	flags atomic.Uint64 // note on, pitch valid, window kind << windowShift

	centroid  atomic.Uint64
	dominant  atomic.Uint64
	average   atomic.Uint64
	onset     atomic.Uint64
	crest     atomic.Uint64
	flatness  atomic.Uint64
	spectrum  []atomic.Uint64
	specWords atomic.Int64 // Valid words in spectrum.
}

func newFrameStore(bins int) *frameStore {
	return &frameStore{spectrum: make([]atomic.Uint64, bins)}
}

// store publishes f, and mag when it is non-nil.
func (s *frameStore) store(f *Frame, mag []float64) {
	seq := s.seq.Load()
	s.seq.Store(seq + 1)

	flags := uint64(f.Window) << windowShift
	if f.NoteOn {
		flags |= flagNoteOn
	}
	if f.DominantFrequency.Valid {
		flags |= flagPitchValid
	}
	s.fills.Store(f.Fills)
	s.flags.Store(flags)
	s.centroid.Store(math.Float64bits(f.SpectralCentroid))
	s.dominant.Store(math.Float64bits(f.DominantFrequency.Hz))
	s.average.Store(math.Float64bits(f.AverageAmplitude))
	s.onset.Store(math.Float64bits(f.OnsetAverageAmplitude))
	s.crest.Store(math.Float64bits(f.SpectralCrest))
	s.flatness.Store(math.Float64bits(f.SpectralFlatness))

	if mag != nil {
		n := min(len(mag), len(s.spectrum))
		for i := range n {
			s.spectrum[i].Store(math.Float64bits(mag[i]))
		}
		s.specWords.Store(int64(n))
	}

	s.seq.Store(seq + 2)
}

// load copies out the latest complete frame.
func (s *frameStore) load() Frame {
	for {
		seq := s.seq.Load()
		if seq&1 != 0 {
			runtime.Gosched()
			continue
		}

		flags := s.flags.Load()
		f := Frame{
			Seq:                   seq / 2,
			Fills:                 s.fills.Load(),
			NoteOn:                flags&flagNoteOn != 0,
			Window:                spectrum.WindowKind(flags >> windowShift),
			SpectralCentroid:      math.Float64frombits(s.centroid.Load()),
			AverageAmplitude:      math.Float64frombits(s.average.Load()),
			OnsetAverageAmplitude: math.Float64frombits(s.onset.Load()),
			SpectralCrest:         math.Float64frombits(s.crest.Load()),
			SpectralFlatness:      math.Float64frombits(s.flatness.Load()),
		}
		if flags&flagPitchValid != 0 {
			f.DominantFrequency = features.Some(math.Float64frombits(s.dominant.Load()))
		}

		if s.seq.Load() == seq {
			return f
		}
	}
}

// loadSpectrum copies the latest published spectrum into dst and returns
// the number of values written.
func (s *frameStore) loadSpectrum(dst []float64) int {
	for {
		seq := s.seq.Load()
		if seq&1 != 0 {
			runtime.Gosched()
			continue
		}

		n := min(int(s.specWords.Load()), len(dst))
		for i := range n {
			dst[i] = math.Float64frombits(s.spectrum[i].Load())
		}

		if s.seq.Load() == seq {
			return n
		}
	}
}

// version returns the number of completed publications.
func (s *frameStore) version() uint64 {
	return s.seq.Load() / 2
}
