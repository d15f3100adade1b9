// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"

	"pitchtrack/internal/log"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid value")

// Validate checks every section. Analysis bands are checked against the
// configured buffer sizes and sample rate so a degenerate band is rejected
// at startup instead of producing NaN on every frame.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}

	// Audio Validation
	a := c.Audio
	if a.InputDevice < MinDeviceID {
		return fmt.Errorf("%w: audio.input_device %d (min %d)", ErrInvalid, a.InputDevice, MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %.0f outside [%d, %d]", ErrInvalid, a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer %d outside [1, %d]", ErrInvalid, a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 {
		return fmt.Errorf("%w: audio.input_channels %d", ErrInvalid, a.InputChannels)
	}

	// Analysis Validation
	pc, err := c.PipelineConfig()
	if err != nil {
		return fmt.Errorf("analysis.window: %w", err)
	}
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	// MIDI Validation
	m := c.MIDI
	if m.Channel < 0 || m.Channel > MaxMIDIChannel {
		return fmt.Errorf("%w: midi.channel %d outside [0, %d]", ErrInvalid, m.Channel, MaxMIDIChannel)
	}
	if m.Note < 0 || m.Note > 127 || m.Velocity < 1 || m.Velocity > 127 {
		return fmt.Errorf("%w: midi.note %d / midi.velocity %d", ErrInvalid, m.Note, m.Velocity)
	}
	if m.Enabled && m.PollInterval <= 0 {
		return fmt.Errorf("%w: midi.poll_interval must be positive", ErrInvalid)
	}

	// Glove Validation
	if c.Glove.Enabled {
		if c.Glove.Port == "" {
			return fmt.Errorf("%w: glove.port must be set when the glove is enabled", ErrInvalid)
		}
		if c.Glove.BaudRate <= 0 {
			return fmt.Errorf("%w: glove.baud_rate %d", ErrInvalid, c.Glove.BaudRate)
		}
	}

	// Recording Validation
	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: recording.bit_depth %d (want 16, 24 or 32)", ErrInvalid, c.Recording.BitDepth)
	}
	if c.Recording.Enabled && c.Recording.OutputDir == "" {
		return fmt.Errorf("%w: recording.output_dir must be set when recording", ErrInvalid)
	}

	// Transport Validation
	t := c.Transport
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			return fmt.Errorf("%w: transport.udp_target_address %q: %v", ErrInvalid, t.UDPTargetAddress, err)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("%w: transport.udp_send_interval must be positive when UDP is enabled", ErrInvalid)
		}
	}
	if t.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(t.WebSocketAddress); err != nil {
			return fmt.Errorf("%w: transport.websocket_address %q: %v", ErrInvalid, t.WebSocketAddress, err)
		}
	}

	return nil
}
