// SPDX-License-Identifier: MIT
package features

import (
	"fmt"
	"math"
)

// Pitch is an optional frequency estimate. The zero value is NoPitch.
type Pitch struct {
	Hz    float64
	Valid bool
}

// NoPitch reports that no fundamental could be estimated for a frame.
var NoPitch = Pitch{}

// Some wraps a valid estimate.
func Some(hz float64) Pitch {
	return Pitch{Hz: hz, Valid: true}
}

// Get returns the estimate and whether it is present.
func (p Pitch) Get() (float64, bool) {
	return p.Hz, p.Valid
}

// Or returns the estimate, or def when there is none.
func (p Pitch) Or(def float64) float64 {
	if !p.Valid {
		return def
	}
	return p.Hz
}

// MIDINumber converts the estimate to a fractional MIDI note number
// (A4 = 440 Hz = 69). It returns NaN for NoPitch.
func (p Pitch) MIDINumber() float64 {
	if !p.Valid || p.Hz <= 0 {
		return math.NaN()
	}
	return 12*math.Log2(p.Hz/440) + 69
}

func (p Pitch) String() string {
	if !p.Valid {
		return "none"
	}
	return fmt.Sprintf("%.2f Hz", p.Hz)
}
