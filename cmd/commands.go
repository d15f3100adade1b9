// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"pitchtrack/internal/audio"
	"pitchtrack/internal/glove"
	"pitchtrack/internal/midi"
	"pitchtrack/internal/tui"
)

// ErrPitchMismatch is returned by Analyze when a file's median pitch is not
// within tolerance of its expected frequency.
var ErrPitchMismatch = errors.New("pitch outside tolerance")

// Execute runs a one-off command that does not need the live pipeline,
// writing its output to w.
func Execute(opts *Options, w io.Writer) error {
	switch opts.Command {
	case CommandList:
		return listAudioDevices(w)
	case CommandDevices:
		return selectDevice(opts, w)
	case CommandMIDIPorts:
		return listMIDIPorts(w)
	case CommandSerialPorts:
		return listSerialPorts(w)
	case CommandAnalyze:
		return Analyze(opts, w)
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

func listAudioDevices(w io.Writer) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(w)
}

func listMIDIPorts(w io.Writer) error {
	names, err := midi.ListOutputs()
	if err != nil {
		return err
	}
	return printNames(w, "MIDI Output Ports", names)
}

func listSerialPorts(w io.Writer) error {
	names, err := glove.Ports()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	return printNames(w, "Serial Ports", names)
}

func printNames(w io.Writer, title string, names []string) error {
	fmt.Fprintf(w, "\n%s\n\n", title)
	if len(names) == 0 {
		fmt.Fprintln(w, "    (none)")
	}
	for i, name := range names {
		fmt.Fprintf(w, "[%d] %s\n", i, name)
	}
	_, err := fmt.Fprintln(w)
	return err
}

// selectDevice runs the device browser and stores the choice in the
// configuration file.
func selectDevice(opts *Options, w io.Writer) error {
	sel, ok, err := tui.StartDeviceListUI()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w, "No device selected.")
		return nil
	}

	cfg := opts.Config
	cfg.Audio.InputDevice = sel.DeviceID
	cfg.Audio.SampleRate = sel.SampleRate
	if err := cfg.Save(opts.SavePath); err != nil {
		return err
	}
	fmt.Fprintf(w, "Using [%d] %s at %.0f Hz, saved to %s\n", sel.DeviceID, sel.DeviceName, sel.SampleRate, opts.SavePath)
	return nil
}

// Analyze tracks every WAV file named by opts.Args, expanding directories
// to the files whose names carry an expected frequency, and prints one
// report line per file. Files with an expected frequency are checked
// against audio.PitchTolerance; any miss makes the result wrap
// ErrPitchMismatch.
func Analyze(opts *Options, w io.Writer) error {
	pcfg, err := opts.Config.PipelineConfig()
	if err != nil {
		return err
	}

	var files []string
	for _, arg := range opts.Args {
		info, err := os.Stat(arg)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		found, err := audio.FindTestFiles(arg)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("no test files in %s", arg)
		}
		files = append(files, found...)
	}

	var printFrame func(audio.FileFrame)
	if opts.Frames {
		printFrame = func(ff audio.FileFrame) {
			f := ff.Frame
			fmt.Fprintf(w, "  %8.3fs  on=%-5t pitch=%-10v centroid=%8.1f amp=%.5f onset=%.5f\n",
				ff.Offset.Seconds(), f.NoteOn, f.DominantFrequency, f.SpectralCentroid,
				f.AverageAmplitude, f.OnsetAverageAmplitude)
		}
	}

	checked, failed := 0, 0
	for _, path := range files {
		report, err := audio.AnalyzeFile(path, pcfg, printFrame)
		if err != nil {
			return err
		}

		line := fmt.Sprintf("%s: %d Hz %d-bit %dch %.2fs, %d/%d frames pitched, median %v, centroid %.1f Hz",
			path, int(report.SampleRate), report.BitDepth, report.Channels, report.Duration.Seconds(),
			report.PitchedFrames, report.Frames, report.MedianPitch, report.MeanCentroid)

		expected := opts.Expect
		if expected == 0 {
			expected, _ = audio.ExpectedFromName(path)
		}
		if expected > 0 {
			checked++
			status := "PASS"
			if !report.Within(expected) {
				status = "FAIL"
				failed++
			}
			got := report.MedianPitch.Or(math.NaN())
			line += fmt.Sprintf(", expected %.2f Hz (%+.2f%%) %s", expected, (got-expected)/expected*100, status)
		}
		fmt.Fprintln(w, line)

		if opts.Whole {
			p, err := audio.WholeFilePitch(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  whole file peak: %v\n", p)
		}
	}

	if checked > 0 {
		fmt.Fprintf(w, "%d/%d files within %.2f%%\n", checked-failed, checked, audio.PitchTolerance*100)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files", ErrPitchMismatch, failed, checked)
	}
	return nil
}
