// SPDX-License-Identifier: MIT

/*
Package midi turns published analysis frames into synthesizer messages.

While a note sounds, every poll sends the hand angle (CC 0, when a glove
is live), the brightness derived from the spectral centroid (CC 1) and
the pitch as a bend of one held note. The bend covers MIDI notes 38 to 70
over the full 14-bit range, so the synthesizer's bend range must be set to
match.
*/
package midi

import (
	"math"

	"pitchtrack/internal/features"
)

// Controller numbers.
const (
	ControllerAngle      = 0
	ControllerBrightness = 1
	ControllerNotesOff   = 123 // All Notes Off.
)

// Bend mapping: BendLowNote maps to 0 and BendLowNote+BendSpan to BendMax.
const (
	BendLowNote = 38
	BendSpan    = 32
	BendMax     = 0x3FFF
	BendCenter  = 0x2000
)

// Brightness mapping: centroids from BrightnessLowHz to
// BrightnessLowHz+BrightnessSpanHz map onto 0-127.
const (
	BrightnessLowHz  = 400
	BrightnessSpanHz = 400
)

// BendValue maps a pitch onto the unsigned 14-bit bend range, clamping
// outside it. The second result is false when there is no pitch.
func BendValue(p features.Pitch) (uint16, bool) {
	note := p.MIDINumber()
	if math.IsNaN(note) || math.IsInf(note, 0) {
		return 0, false
	}
	v := (note - BendLowNote) / BendSpan * BendMax
	return uint16(clamp(v, 0, BendMax)), true
}

// SignedBend converts an unsigned bend value to the signed form gomidi
// expects, centred on zero.
func SignedBend(v uint16) int16 {
	return int16(int(v) - BendCenter)
}

// Brightness maps a spectral centroid in Hz onto a controller value. An
// undefined centroid maps to 0.
func Brightness(centroidHz float64) uint8 {
	if math.IsNaN(centroidHz) {
		return 0
	}
	v := (centroidHz - BrightnessLowHz) / BrightnessSpanHz * 127
	return uint8(clamp(v, 0, 127))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
