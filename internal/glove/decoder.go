// SPDX-License-Identifier: MIT

/*
Package glove reads the hand controller that rides along with the
instrument. The controller streams single bytes over a serial line:

  - A byte with the high bit set selects a MIDI channel, b & 0x7F
  - Any other byte is the current hand angle, 0-127

The controller repeats itself, so bytes are state rather than events: a
channel byte equal to the current channel changes nothing.
*/
package glove

import "sync/atomic"

// MaxChannel is the highest MIDI channel a channel byte may select. Channel
// bytes above it are ignored.
const MaxChannel = 15

const channelFlag = 0x80

// State is the latest controller reading.
type State struct {
	Channel uint8
	Angle   uint8
	Live    bool // A port is open and delivering bytes.
}

// Change reports which parts of a State a Feed call modified.
type Change uint8

const (
	ChannelChanged Change = 1 << iota
	AngleChanged
)

// Has reports whether c includes flag.
func (c Change) Has(flag Change) bool { return c&flag != 0 }

// Decoder folds controller bytes into a State.
type Decoder struct {
	state State
}

// NewDecoder starts on channel with a zero angle.
func NewDecoder(channel uint8) *Decoder {
	return &Decoder{state: State{Channel: channel}}
}

// Feed consumes p and returns the changes it caused. Only the last
// channel byte and the last angle byte in p determine the new state.
func (d *Decoder) Feed(p []byte) Change {
	var changed Change
	for _, b := range p {
		if b&channelFlag == 0 {
			if b != d.state.Angle {
				d.state.Angle = b
				changed |= AngleChanged
			}
			continue
		}

		ch := b &^ channelFlag
		if ch > MaxChannel || ch == d.state.Channel {
			continue
		}
		d.state.Channel = ch
		changed |= ChannelChanged
	}
	return changed
}

// State returns the decoded state. Live is never set by the decoder.
func (d *Decoder) State() State { return d.state }

// stateWord packs a State into one atomic word so readers on other
// goroutines never see a channel from one reading and an angle from another.
type stateWord struct{ v atomic.Uint32 }

func (w *stateWord) store(s State) {
	word := uint32(s.Channel) | uint32(s.Angle)<<8
	if s.Live {
		word |= 1 << 16
	}
	w.v.Store(word)
}

func (w *stateWord) load() State {
	word := w.v.Load()
	return State{
		Channel: uint8(word),
		Angle:   uint8(word >> 8),
		Live:    word&(1<<16) != 0,
	}
}
