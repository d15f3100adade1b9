// SPDX-License-Identifier: MIT
package analysis

import "fmt"

// Gate is the note on/off hysteresis. A note starts when the onset amplitude
// reaches the onset threshold and ends when it falls below the lower offset
// threshold, so an amplitude hovering between the two never chatters.
type Gate struct {
	onset    float64
	offset   float64
	sounding bool
	last     float64
	previous float64
}

// NewGate returns a silent gate. offset must not exceed onset.
func NewGate(onset, offset float64) (*Gate, error) {
	if offset > onset {
		return nil, fmt.Errorf("gate offset threshold %g above onset threshold %g", offset, onset)
	}
	return &Gate{onset: onset, offset: offset}, nil
}

// Update feeds one onset amplitude and reports whether the state changed.
// A NaN amplitude never changes the state.
func (g *Gate) Update(amp float64) bool {
	g.previous, g.last = g.last, amp
	switch {
	case !g.sounding && amp >= g.onset:
		g.sounding = true
		return true
	case g.sounding && amp < g.offset:
		g.sounding = false
		return true
	}
	return false
}

// Sounding reports whether a note is in progress.
func (g *Gate) Sounding() bool { return g.sounding }

// Last returns the most recent onset amplitude.
func (g *Gate) Last() float64 { return g.last }

// Previous returns the onset amplitude before Last.
func (g *Gate) Previous() float64 { return g.previous }

// Thresholds returns the onset and offset thresholds.
func (g *Gate) Thresholds() (onset, offset float64) { return g.onset, g.offset }

// Reset returns the gate to silence and clears its amplitude history.
func (g *Gate) Reset() {
	g.sounding = false
	g.last, g.previous = 0, 0
}
