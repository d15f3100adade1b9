// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/features"
	"pitchtrack/internal/log"
	"pitchtrack/internal/spectrum"
	"pitchtrack/pkg/bitint"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/stat"
)

// PitchTolerance is the relative error accepted when a detected pitch is
// compared with an expected one.
const PitchTolerance = 0.0125

// decodeChunkFrames is the number of sample frames read from a WAV per call.
const decodeChunkFrames = 4096

// ErrInvalidWAV is returned when a file is not a readable PCM WAV.
var ErrInvalidWAV = errors.New("invalid WAV file")

// FileFrame is one fine-buffer analysis of a WAV file.
type FileFrame struct {
	Offset time.Duration // Position of the last sample of the fine buffer.
	Frame  analysis.Frame
}

// FileReport summarizes the analysis of one WAV file.
type FileReport struct {
	Path       string
	SampleRate float64
	Channels   int
	BitDepth   int
	Samples    int // Mono samples analyzed.
	Duration   time.Duration

	Frames        int // Fine-buffer fills.
	PitchedFrames int // Fills with a valid dominant frequency.

	MedianPitch   features.Pitch
	MeanCentroid  float64
	MeanAmplitude float64
}

// Within reports whether the median pitch is within PitchTolerance of hz.
func (r *FileReport) Within(hz float64) bool {
	return WithinTolerance(r.MedianPitch, hz)
}

// WithinTolerance reports whether p is valid and within PitchTolerance of hz.
func WithinTolerance(p features.Pitch, hz float64) bool {
	got, ok := p.Get()
	if !ok || hz <= 0 {
		return false
	}
	return math.Abs(got-hz) <= PitchTolerance*hz
}

// wavReader decodes the first channel of a PCM WAV as floats in [-1, 1].
type wavReader struct {
	file    *os.File
	decoder *wav.Decoder
	buf     *audio.IntBuffer
	scale   float64
	offset  float64
}

func openWAV(path string) (*wavReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	r := &wavReader{file: file, decoder: decoder}
	switch decoder.BitDepth {
	case 8:
		// 8-bit PCM is unsigned around 128.
		r.scale, r.offset = 1.0/128, 128
	case 16, 24, 32:
		r.scale = 1 / math.Exp2(float64(decoder.BitDepth-1))
	default:
		file.Close()
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, decoder.BitDepth)
	}

	channels := int(decoder.NumChans)
	r.buf = &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: int(decoder.SampleRate)},
		Data:   make([]int, decodeChunkFrames*channels),
	}
	return r, nil
}

func (r *wavReader) channels() int { return int(r.decoder.NumChans) }
func (r *wavReader) sampleRate() float64 { return float64(r.decoder.SampleRate) }
func (r *wavReader) bitDepth() int { return int(r.decoder.BitDepth) }
func (r *wavReader) Close() error { return r.file.Close() }

// next decodes the next chunk and calls fn with each first-channel sample.
// It returns the number of samples delivered; zero means end of data.
func (r *wavReader) next(fn func(float64)) (int, error) {
	n, err := r.decoder.PCMBuffer(r.buf)
	if err != nil {
		return 0, fmt.Errorf("could not read PCM data: %w", err)
	}

	channels := r.channels()
	count := 0
	for i := 0; i+channels <= n; i += channels {
		fn((float64(r.buf.Data[i]) - r.offset) * r.scale)
		count++
	}
	return count, nil
}

// readAll decodes the whole first channel.
func (r *wavReader) readAll() ([]float64, error) {
	var out []float64
	appendSample := func(x float64) { out = append(out, x) }
	for {
		n, err := r.next(appendSample)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// AnalyzeFile streams the first channel of a WAV file through a pipeline
// built from cfg, with the sample rate taken from the file. fn, when non-nil,
// is called after every fine-buffer fill.
func AnalyzeFile(path string, cfg analysis.Config, fn func(FileFrame)) (*FileReport, error) {
	r, err := openWAV(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	cfg.SampleRate = r.sampleRate()
	pipeline, err := analysis.NewPipeline(cfg)
	if err != nil {
		return nil, err
	}

	report := &FileReport{
		Path:       path,
		SampleRate: cfg.SampleRate,
		Channels:   r.channels(),
		BitDepth:   r.bitDepth(),
	}

	var pitches, centroids, amplitudes []float64
	push := func(x float64) {
		report.Samples++
		if !pipeline.PushSample(x) {
			return
		}

		frame := pipeline.Frame()
		report.Frames++
		if hz, ok := frame.DominantFrequency.Get(); ok {
			report.PitchedFrames++
			pitches = append(pitches, hz)
		}
		if !math.IsNaN(frame.SpectralCentroid) {
			centroids = append(centroids, frame.SpectralCentroid)
		}
		if !math.IsNaN(frame.AverageAmplitude) {
			amplitudes = append(amplitudes, frame.AverageAmplitude)
		}
		if fn != nil {
			fn(FileFrame{Offset: samplesDuration(report.Samples, cfg.SampleRate), Frame: frame})
		}
	}

	for {
		n, err := r.next(push)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}

	report.Duration = samplesDuration(report.Samples, cfg.SampleRate)
	report.MedianPitch = medianPitch(pitches)
	report.MeanCentroid = mean(centroids)
	report.MeanAmplitude = mean(amplitudes)

	log.Debugf("Analyze: %s: %d samples, %d frames, %d pitched, median %v",
		path, report.Samples, report.Frames, report.PitchedFrames, report.MedianPitch)

	return report, nil
}

// WholeFilePitch transforms the longest power-of-two prefix of the file's
// first channel in one pass and returns the strongest spectral peak below
// Nyquist. Files shorter than four samples yield NoPitch.
func WholeFilePitch(path string) (features.Pitch, error) {
	r, err := openWAV(path)
	if err != nil {
		return features.NoPitch, err
	}
	defer r.Close()

	samples, err := r.readAll()
	if err != nil {
		return features.NoPitch, err
	}

	n := bitint.NextPowerOfTwo(len(samples))
	if n > len(samples) {
		n /= 2
	}
	if spectrum.CheckSize(n) != nil {
		return features.NoPitch, nil
	}

	tr, err := spectrum.NewTransform(n)
	if err != nil {
		return features.NoPitch, err
	}
	bins, mag := tr.Compute(samples[:n])
	return features.DominantFrequencyFull(bins, mag, n, r.sampleRate()), nil
}

// ExpectedFromName parses the leading decimal digits of a file's base name
// as the frequency it should contain, so "440-violin.wav" expects 440 Hz.
func ExpectedFromName(path string) (float64, bool) {
	base := filepath.Base(path)
	end := strings.IndexFunc(base, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(base)
	}
	if end == 0 {
		return 0, false
	}
	hz, err := strconv.Atoi(base[:end])
	if err != nil || hz <= 0 {
		return 0, false
	}
	return float64(hz), true
}

// FindTestFiles returns the .wav files under root whose names start with an
// expected frequency, in lexical order.
func FindTestFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".wav") {
			return nil
		}
		if _, ok := ExpectedFromName(path); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not scan %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func samplesDuration(samples int, sampleRate float64) time.Duration {
	return time.Duration(float64(samples) / sampleRate * float64(time.Second))
}

func medianPitch(pitches []float64) features.Pitch {
	if len(pitches) == 0 {
		return features.NoPitch
	}
	sort.Float64s(pitches)
	return features.Some(stat.Quantile(0.5, stat.Empirical, pitches, nil))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}
