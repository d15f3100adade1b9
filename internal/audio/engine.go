// SPDX-License-Identifier: MIT
/*
Package audio connects the PortAudio input stream to the analysis pipeline:
- Float32 capture with a dedicated callback
- First-channel extraction and clipping clamp to [-1, 1]
- WAV recording of the analyzed signal with atomic state management
- Offline analysis of WAV files through the same pipeline

Thread Safety:
- Uses atomic operations for state and counters
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
- Never logs from the callback; counters are read by Stats
*/
package audio

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/config"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

// Stats are cumulative counters maintained by the callback.
type Stats struct {
	Callbacks     uint64 // Buffers delivered by PortAudio.
	Samples       uint64 // Mono samples pushed into the pipeline.
	Clipped       uint64 // Samples clamped to [-1, 1].
	Frames        uint64 // Feature frames published.
	WriteFailures uint64 // Recording writes that failed.
}

type Engine struct {
	// Core configuration and state.
	config *config.Config
	sink   analysis.SampleSink

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
	mono         []float32 // First channel of each callback buffer, clamped.

	// Callback counters.
	callbacks     atomic.Uint64
	samples       atomic.Uint64
	clipped       atomic.Uint64
	frames        atomic.Uint64
	writeFailures atomic.Uint64

	// Recording state and buffers. recMu guards the encoder; the callback
	// only TryLocks it and skips the buffer while a start or stop runs.
	recMu             sync.Mutex
	isRecording       atomic.Int32 // Atomic flag for thread-safe state
	outputFile        *os.File
	wavEncoder        *wav.Encoder
	sampleBuf         *audio.IntBuffer // Reusable buffer for format conversion
	sampleScale       float64          // Full-scale integer value for the bit depth
	recordedSamples   int
	maxRecordSamples  int // 0 for unlimited
	consecutiveErrors int
}

// NewEngine resolves the configured input device and prepares the callback
// buffers. The stream is not opened until StartInputStream.
func NewEngine(cfg *config.Config, sink analysis.SampleSink) (*Engine, error) {
	if sink == nil {
		return nil, fmt.Errorf("audio engine requires a sample sink")
	}

	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	e := newEngine(cfg, sink)
	e.inputDevice = inputDevice
	if cfg.Audio.LowLatency {
		e.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		e.inputLatency = inputDevice.DefaultHighInputLatency
	}

	return e, nil
}

// newEngine builds an engine without touching PortAudio.
func newEngine(cfg *config.Config, sink analysis.SampleSink) *Engine {
	return &Engine{
		config: cfg,
		sink:   sink,
		mono:   make([]float32, cfg.Audio.FramesPerBuffer),
	}
}

// DeviceName returns the name of the input device.
func (e *Engine) DeviceName() string {
	if e.inputDevice == nil {
		return ""
	}
	return e.inputDevice.Name
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.Audio.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
	}

	return nil
}

// Stats returns a snapshot of the callback counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Callbacks:     e.callbacks.Load(),
		Samples:       e.samples.Load(),
		Clipped:       e.clipped.Load(),
		Frames:        e.frames.Load(),
		WriteFailures: e.writeFailures.Load(),
	}
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	mono := e.processBuffer(in)

	// Write to WAV file if recording
	if e.isRecording.Load() == 1 {
		e.writeRecording(mono)
	}
}

// processBuffer extracts and clamps the first channel, then feeds the
// pipeline. It returns the mono samples that were analyzed.
// Performance Critical (Hot Path):
// - No allocations
func (e *Engine) processBuffer(in []float32) []float32 {
	channels := max(e.config.Audio.InputChannels, 1)
	frames := min(len(in)/channels, len(e.mono))
	mono := e.mono[:frames]

	var clipped uint64
	for i := range mono {
		s := in[i*channels]
		switch {
		case s > 1:
			s = 1
			clipped++
		case s < -1:
			s = -1
			clipped++
		case s != s: // NaN from a misbehaving driver.
			s = 0
			clipped++
		}
		mono[i] = s
	}

	published := e.sink.Push(mono)

	e.callbacks.Add(1)
	e.samples.Add(uint64(frames))
	e.clipped.Add(clipped)
	e.frames.Add(uint64(published))
	return mono
}
