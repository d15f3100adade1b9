// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the tracker.
const (
	// Audio input
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultFramesPerBuffer = 256         // ~5.8 ms at 44.1 kHz
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultInputChannels   = 1           // The tracker is monophonic

	// Analysis
	DefaultFastSize = 64   // Onset buffer, ~1.5 ms at 44.1 kHz
	DefaultFineSize = 1024 // Pitch buffer, ~23 ms at 44.1 kHz
	DefaultWindow   = "rectangle"

	// MIDI
	DefaultMIDIChannel  = 0
	DefaultMIDINote     = 54
	DefaultMIDIVelocity = 100
	DefaultMIDIPoll     = 5 * time.Millisecond

	// Glove
	DefaultGloveBaud = 9600

	// Recording
	DefaultRecordingDir = "./recordings"
	DefaultBitDepth     = 16

	// Transport
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPSendInterval = 33 * time.Millisecond // ~30 Hz
	DefaultWebSocketAddr   = "localhost:8080"

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents the system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per callback buffer
	MaxMIDIChannel  = 15
)
