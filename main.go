// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"pitchtrack/cmd"
	"pitchtrack/internal/analysis"
	"pitchtrack/internal/audio"
	"pitchtrack/internal/config"
	"pitchtrack/internal/glove"
	"pitchtrack/internal/log"
	"pitchtrack/internal/midi"
	"pitchtrack/internal/transport"
	"pitchtrack/internal/transport/udp"
	"pitchtrack/internal/tui"
	"pitchtrack/pkg/build"

	"golang.org/x/sync/errgroup"
)

// monitorLogFile receives log output while the monitor owns the terminal.
const monitorLogFile = "pitchtrack.log"

// main is the entry point for the tracker.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Build the analysis pipeline and open every configured output
//
// 2. Concurrent Phase (Hot Path):
//   - Start the PortAudio input stream feeding the pipeline
//   - Run the MIDI controller, glove reader and frame publishers
//   - Show the live monitor, or wait for a signal when headless
//
// 3. Shutdown Phase (Cold Path):
//   - Cancel the consumers and wait for them
//   - Stop recording if active
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run without ldflags and keep the defaults.
	buildErr := build.Initialize()

	// Limit OS threads: the audio callback gets one, the consumers and the
	// UI share the rest.
	runtime.GOMAXPROCS(max(2, min(4, runtime.NumCPU())))

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if opts.Command == cmd.CommandNone {
		return
	}

	configureLogging(opts.Config)
	if buildErr != nil {
		log.Debugf("Build: %v", buildErr)
	}
	log.Debugf("Build: %s", build.GetBuildFlags())

	// Handle one-off commands that don't need the live pipeline
	if opts.Command != cmd.CommandRun {
		if err := cmd.Execute(opts, os.Stdout); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := run(opts); err != nil {
		log.Fatalf("%v", err)
	}
}

// configureLogging applies the configured level; debug mode forces debug.
func configureLogging(cfg *config.Config) {
	level, _ := log.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)
}

// run tracks the live input until a signal arrives or the monitor quits.
func run(opts *cmd.Options) error {
	cfg := opts.Config

	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}
	pipeline, err := analysis.NewPipeline(pcfg)
	if err != nil {
		return err
	}

	if !opts.Headless {
		f, err := os.OpenFile(monitorLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		log.SetOutput(f)
		defer log.SetOutput(os.Stderr)
	}

	// Initialize PortAudio subsystem
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	engine, err := audio.NewEngine(cfg, pipeline)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Errorf("Error closing audio engine: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(sigCtx)
	g, ctx := errgroup.WithContext(runCtx)

	closers, err := startOutputs(ctx, g, cfg, pipeline)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Warnf("Shutdown: %v", err)
			}
		}
	}()
	// Consumers stop before the outputs they write to are closed.
	defer func() {
		cancel()
		g.Wait()
	}()
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// CRITICAL: Start of real-time audio processing. PortAudio begins
	// calling the callback, which pushes every sample into the pipeline.
	if err := engine.StartInputStream(); err != nil {
		return err
	}
	log.Infof("Audio: Listening on %q at %.0f Hz", engine.DeviceName(), cfg.Audio.SampleRate)

	var recording string
	if cfg.Recording.Enabled {
		recording = audio.RecordingFilename(cfg.Recording.OutputDir, time.Now())
		if err := engine.StartRecording(recording); err != nil {
			return err
		}
		log.Infof("Recording: Writing %s", recording)
	}

	if opts.Headless {
		log.Infof("Running headless, press Ctrl+C to stop")
		<-ctx.Done()
	} else {
		// Keys select the window and toggle the gate on the live pipeline.
		g.Go(func() error {
			if err := tui.StartMonitorUI(ctx, pipeline, engine.Stats); err != nil {
				return err
			}
			return errShutdown
		})
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	err = g.Wait()

	if recording != "" {
		if err := engine.StopRecording(); err != nil {
			log.Errorf("Error stopping recording: %v", err)
		} else {
			log.Infof("Recording: Saved to %s", recording)
		}
	}
	if err := engine.StopInputStream(); err != nil {
		log.Errorf("Error stopping input stream: %v", err)
	}

	s := engine.Stats()
	log.Infof("Audio: %d samples, %d clipped, %d frames", s.Samples, s.Clipped, s.Frames)

	if errors.Is(err, errShutdown) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// errShutdown ends the group when the monitor quits.
var errShutdown = errors.New("monitor closed")

// startOutputs opens every configured consumer of the pipeline and starts
// its goroutine in g. The returned closers are valid even on error.
func startOutputs(ctx context.Context, g *errgroup.Group, cfg *config.Config, pipeline *analysis.Pipeline) ([]io.Closer, error) {
	var closers []io.Closer

	// The glove only feeds the MIDI controller.
	var gloveSource midi.GloveSource
	if cfg.Glove.Enabled {
		port, err := glove.Open(cfg.Glove.Port, cfg.Glove.BaudRate, uint8(cfg.MIDI.Channel))
		if err != nil {
			return closers, err
		}
		closers = append(closers, port)
		gloveSource = port
		g.Go(func() error { return port.Run(ctx) })
	}

	if cfg.MIDI.Enabled {
		out, err := midi.OpenOutput(cfg.MIDI.Port)
		if err != nil {
			return closers, err
		}
		closers = append(closers, out)
		log.Infof("MIDI: Sending to %q", out.Name())

		controller := midi.NewController(cfg.MIDI, out, pipeline, gloveSource)
		g.Go(func() error { return controller.Run(ctx) })
	}

	t := cfg.Transport
	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			return closers, err
		}
		closers = append(closers, sender)

		publisher, err := udp.NewUDPPublisher(t.UDPSendInterval, sender, pipeline, t.UDPSpectrum)
		if err != nil {
			return closers, err
		}
		// Stop the publisher before its sender closes.
		closers = append(closers, publisher)
		publisher.Start()
	}

	var transports []transport.Transport
	if t.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(t.WebSocketAddress)
		if err != nil {
			return closers, err
		}
		closers = append(closers, ws)
		transports = append(transports, ws)
		log.Infof("WebSocket: Serving frames on ws://%s/ws", ws.Addr())
	}
	if t.LogFrames {
		transports = append(transports, transport.NewLoggingTransport())
	}
	if len(transports) > 0 {
		publisher := transport.NewPublisher(t.UDPSendInterval, pipeline, transports...).
			WithBands(pipeline, analysis.DefaultBands)
		// Run closes the transports when ctx ends.
		g.Go(func() error { return publisher.Run(ctx) })
	}

	return closers, nil
}
