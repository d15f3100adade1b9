// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MaxConsecutiveWriteFailures stops recording after this many failed writes
// in a row.
const MaxConsecutiveWriteFailures = 5

// ErrAlreadyRecording is returned by StartRecording while a file is open.
var ErrAlreadyRecording = errors.New("already recording")

// RecordingFilename returns a timestamped WAV path inside dir.
func RecordingFilename(dir string, t time.Time) string {
	return filepath.Join(dir, "pitchtrack-"+t.Format("20060102-150405")+".wav")
}

// StartRecording opens filename and records the analyzed mono signal to it
// as integer PCM at the configured bit depth.
func (e *Engine) StartRecording(filename string) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.isRecording.Load() == 1 || e.wavEncoder != nil {
		return ErrAlreadyRecording
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	e.outputFile = file

	bitDepth := e.config.Recording.BitDepth
	sampleRate := int(e.config.Audio.SampleRate)
	e.wavEncoder = wav.NewEncoder(file, sampleRate, bitDepth, 1, 1)

	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, e.config.Audio.FramesPerBuffer),
		SourceBitDepth: bitDepth,
	}
	e.sampleScale = float64(int64(1)<<(bitDepth-1) - 1)
	e.recordedSamples = 0
	e.consecutiveErrors = 0
	e.maxRecordSamples = e.config.Recording.MaxDuration * sampleRate

	e.isRecording.Store(1)

	return nil
}

// StopRecording finalizes the WAV header and closes the file. It is a no-op
// when not recording.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	e.isRecording.Store(0)

	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			e.outputFile.Close()
			e.wavEncoder, e.outputFile = nil, nil
			return fmt.Errorf("failed to finalize recording: %w", err)
		}
		e.wavEncoder = nil
	}

	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			e.outputFile = nil
			return err
		}
		e.outputFile = nil
	}

	return nil
}

// Recording reports whether the callback is writing to a file.
func (e *Engine) Recording() bool {
	return e.isRecording.Load() == 1
}

// writeRecording converts mono to integer PCM and appends it to the file.
// It runs on the audio callback.
func (e *Engine) writeRecording(mono []float32) {
	if !e.recMu.TryLock() {
		return
	}
	defer e.recMu.Unlock()

	if e.wavEncoder == nil {
		return
	}
	if e.maxRecordSamples > 0 {
		mono = mono[:min(len(mono), max(e.maxRecordSamples-e.recordedSamples, 0))]
		if len(mono) == 0 {
			return
		}
	}

	e.sampleBuf.Data = e.sampleBuf.Data[:len(mono)]
	for i, s := range mono {
		e.sampleBuf.Data[i] = int(float64(s) * e.sampleScale)
	}

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		e.writeFailures.Add(1)
		e.consecutiveErrors++
		if e.consecutiveErrors >= MaxConsecutiveWriteFailures {
			e.isRecording.Store(0)
		}
		return
	}
	e.consecutiveErrors = 0
	e.recordedSamples += len(mono)
}

func (e *Engine) Close() error {
	if err := e.StopInputStream(); err != nil {
		return err
	}

	if err := e.StopRecording(); err != nil {
		return err
	}

	return nil
}
