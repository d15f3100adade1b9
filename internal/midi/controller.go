// SPDX-License-Identifier: MIT
package midi

import (
	"context"
	"errors"
	"time"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/config"
	"pitchtrack/internal/glove"
	"pitchtrack/internal/log"

	"gitlab.com/gomidi/midi/v2"
)

// GloveSource reports the latest hand controller reading.
type GloveSource interface {
	State() glove.State
}

// Controller polls a FrameSource and drives one held note: note on at the
// frame's note-on edge, controllers and bend while it sounds, note off at
// the release edge. It is not safe for concurrent use; one goroutine runs
// Run, or calls Step directly.
type Controller struct {
	sender   Sender
	frames   analysis.FrameSource
	glove    GloveSource
	interval time.Duration

	note     uint8
	velocity uint8
	channel  uint8
	sounding bool

	lastSeq   uint64
	lastGlove glove.State
	primed    bool
}

// NewController builds a controller from the MIDI settings. gl may be nil
// when no glove is attached.
func NewController(cfg config.MIDIConfig, sender Sender, frames analysis.FrameSource, gl GloveSource) *Controller {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = config.DefaultMIDIPoll
	}
	return &Controller{
		sender:   sender,
		frames:   frames,
		glove:    gl,
		interval: interval,
		note:     uint8(cfg.Note),
		velocity: uint8(cfg.Velocity),
		channel:  uint8(cfg.Channel),
	}
}

// Channel returns the channel messages are sent on.
func (c *Controller) Channel() uint8 { return c.channel }

// Sounding reports whether a note on has been sent without its note off.
func (c *Controller) Sounding() bool { return c.sounding }

// Run polls every interval until ctx is done, then releases a sounding note.
// Send failures are logged and do not stop the loop.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Infof("MIDI: Controller started (Channel: %d, Note: %d, Interval: %s)", c.channel, c.note, c.interval)
	for {
		select {
		case <-ctx.Done():
			if err := c.Release(); err != nil {
				log.Warnf("MIDI: Release on shutdown failed: %v", err)
			}
			log.Infof("MIDI: Controller stopped")
			return nil
		case <-ticker.C:
			if err := c.Poll(); err != nil {
				log.Warnf("MIDI: Send failed: %v", err)
			}
		}
	}
}

// Poll reads the current frame and glove state and calls Step when either
// changed since the last poll.
func (c *Controller) Poll() error {
	var g glove.State
	if c.glove != nil {
		g = c.glove.State()
	}
	seq := c.frames.Seq()
	if c.primed && seq == c.lastSeq && g == c.lastGlove {
		return nil
	}
	c.primed, c.lastSeq, c.lastGlove = true, seq, g
	return c.Step(c.frames.Frame(), g)
}

// Step sends the messages for one frame. A live glove on a new channel
// silences the old channel first; the note restarts on the new channel if
// the frame still has it on.
func (c *Controller) Step(f analysis.Frame, g glove.State) error {
	var errs []error
	send := func(msg midi.Message) {
		if err := c.sender.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}

	if g.Live && g.Channel != c.channel {
		if c.sounding {
			send(midi.NoteOffVelocity(c.channel, c.note, c.velocity))
		}
		send(midi.ControlChange(c.channel, ControllerNotesOff, 0))
		c.channel = g.Channel
		c.sounding = false
	}

	switch {
	case f.NoteOn:
		if !c.sounding {
			send(midi.NoteOn(c.channel, c.note, c.velocity))
			c.sounding = true
		}
		if g.Live {
			send(midi.ControlChange(c.channel, ControllerAngle, g.Angle))
		}
		send(midi.ControlChange(c.channel, ControllerBrightness, Brightness(f.SpectralCentroid)))
		if v, ok := BendValue(f.DominantFrequency); ok {
			send(midi.Pitchbend(c.channel, SignedBend(v)))
		}
	case c.sounding:
		send(midi.NoteOffVelocity(c.channel, c.note, c.velocity))
		c.sounding = false
	}

	return errors.Join(errs...)
}

// Release sends note off for a sounding note.
func (c *Controller) Release() error {
	if !c.sounding {
		return nil
	}
	c.sounding = false
	return c.sender.Send(midi.NoteOffVelocity(c.channel, c.note, c.velocity))
}
