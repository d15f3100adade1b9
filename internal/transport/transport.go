// SPDX-License-Identifier: MIT
package transport

import (
	"math"
	"time"

	"pitchtrack/internal/analysis"
)

// Transport defines a generic interface for sending published frames to a
// consumer outside the process. Implementations must be safe for use by
// one sending goroutine concurrently with Close.
type Transport interface {
	Send(data any) error
	Close() error
}

// FrameMessage is the JSON form of an analysis frame. Undefined features
// (no pitch, NaN on silence) encode as null.
type FrameMessage struct {
	Seq  uint64 `json:"seq"`
	Time int64  `json:"time"` // Unix nanoseconds when the frame was read.

	NoteOn bool   `json:"note_on"`
	Window string `json:"window"`
	Fills  uint64 `json:"fills"`

	DominantHz            *float64 `json:"dominant_hz"`
	MIDINote              *float64 `json:"midi_note"`
	SpectralCentroidHz    *float64 `json:"spectral_centroid_hz"`
	AverageAmplitude      *float64 `json:"average_amplitude"`
	OnsetAverageAmplitude *float64 `json:"onset_average_amplitude"`
	SpectralCrest         *float64 `json:"spectral_crest"`
	SpectralFlatness      *float64 `json:"spectral_flatness"`

	Bands map[string]float64 `json:"bands,omitempty"`
}

// NewFrameMessage converts f, read at t.
func NewFrameMessage(f analysis.Frame, t time.Time) FrameMessage {
	return FrameMessage{
		Seq:                   f.Seq,
		Time:                  t.UnixNano(),
		NoteOn:                f.NoteOn,
		Window:                f.Window.String(),
		Fills:                 f.Fills,
		DominantHz:            finite(f.DominantFrequency.Or(math.NaN())),
		MIDINote:              finite(f.DominantFrequency.MIDINumber()),
		SpectralCentroidHz:    finite(f.SpectralCentroid),
		AverageAmplitude:      finite(f.AverageAmplitude),
		OnsetAverageAmplitude: finite(f.OnsetAverageAmplitude),
		SpectralCrest:         finite(f.SpectralCrest),
		SpectralFlatness:      finite(f.SpectralFlatness),
	}
}

// finite returns nil for values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
