// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"pitchtrack/internal/config"
	"pitchtrack/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected on the command line.
const (
	CommandNone        = ""             // Help or version was printed.
	CommandRun         = "run"          // Track the live input.
	CommandList        = "list"         // Print the audio devices.
	CommandDevices     = "devices"      // Browse devices and save the choice.
	CommandMIDIPorts   = "midi-ports"   // Print the MIDI outputs.
	CommandSerialPorts = "serial-ports" // Print the serial devices.
	CommandAnalyze     = "analyze"      // Track WAV files.
)

// Options is the parsed command line: the command to execute and the
// configuration with flag overrides applied.
type Options struct {
	Command    string
	ConfigPath string
	Config     *config.Config
	Headless   bool // Log to the terminal instead of showing the monitor.

	// analyze
	Args   []string
	Expect float64 // Expected frequency; 0 reads it from each file name.
	Whole  bool    // Also report the whole-file transform peak.
	Frames bool    // Print every analysis frame.

	// devices
	SavePath string
}

// flagValues receives the raw values of flags that override the
// configuration file.
type flagValues struct {
	verbose         bool
	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	record          bool
	outputDir       string
	bitDepth        int
	window          string
	fastSize        int
	fineSize        int
	noGate          bool
	midi            bool
	midiPort        string
	midiChannel     int
	glove           bool
	glovePort       string
	udp             bool
	udpTarget       string
	udpSpectrum     bool
	websocket       bool
	websocketAddr   string
	logLevel        string
}

// override copies one flag into the configuration when it was set.
type override struct {
	flag  string
	apply func(*config.Config)
}

func (f *flagValues) overrides() []override {
	return []override{
		{"verbose", func(c *config.Config) { c.Debug = f.verbose }},
		{"log-level", func(c *config.Config) { c.LogLevel = f.logLevel }},
		{"device", func(c *config.Config) { c.Audio.InputDevice = f.device }},
		{"channels", func(c *config.Config) { c.Audio.InputChannels = f.channels }},
		{"sample-rate", func(c *config.Config) { c.Audio.SampleRate = f.sampleRate }},
		{"frames-per-buffer", func(c *config.Config) { c.Audio.FramesPerBuffer = f.framesPerBuffer }},
		{"low-latency", func(c *config.Config) { c.Audio.LowLatency = f.lowLatency }},
		{"record", func(c *config.Config) { c.Recording.Enabled = f.record }},
		{"output-dir", func(c *config.Config) { c.Recording.OutputDir = f.outputDir }},
		{"bit-depth", func(c *config.Config) { c.Recording.BitDepth = f.bitDepth }},
		{"window", func(c *config.Config) { c.Analysis.Window = f.window }},
		{"fast-size", func(c *config.Config) { c.Analysis.FastSize = f.fastSize }},
		{"fine-size", func(c *config.Config) { c.Analysis.FineSize = f.fineSize }},
		{"no-gate", func(c *config.Config) { c.Analysis.GateDisabled = f.noGate }},
		{"midi", func(c *config.Config) { c.MIDI.Enabled = f.midi }},
		{"midi-port", func(c *config.Config) { c.MIDI.Port = f.midiPort }},
		{"midi-channel", func(c *config.Config) { c.MIDI.Channel = f.midiChannel }},
		{"glove", func(c *config.Config) { c.Glove.Enabled = f.glove }},
		{"glove-port", func(c *config.Config) { c.Glove.Port = f.glovePort }},
		{"udp", func(c *config.Config) { c.Transport.UDPEnabled = f.udp }},
		{"udp-target", func(c *config.Config) { c.Transport.UDPTargetAddress = f.udpTarget }},
		{"udp-spectrum", func(c *config.Config) { c.Transport.UDPSpectrum = f.udpSpectrum }},
		{"websocket", func(c *config.Config) { c.Transport.WebSocketEnabled = f.websocket }},
		{"websocket-addr", func(c *config.Config) { c.Transport.WebSocketAddress = f.websocketAddr }},
	}
}

// ParseArgs parses args (without the program name), loads the configuration
// file and applies the flags that were set on top of it.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var flags flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return nil
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
		},
	})

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Browse audio devices and save the chosen input to the config file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandDevices
		},
	}
	devicesCmd.Flags().StringVar(&options.SavePath, "save", "config.yaml",
		"Config file the chosen device and sample rate are written to")
	rootCmd.AddCommand(devicesCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "midi-ports",
		Short: "List available MIDI output ports",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandMIDIPorts
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serial-ports",
		Short: "List serial devices a glove may be attached to",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandSerialPorts
		},
	})

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav|dir>...",
		Short: "Track the first channel of WAV files and check their pitch",
		Long: "Streams each WAV file through the analysis pipeline and reports the median pitch.\n" +
			"Directories are searched for .wav files whose names start with the expected\n" +
			"frequency in Hz, e.g. 440-violin.wav.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.Expect < 0 {
				return fmt.Errorf("--expect must not be negative, got %g", options.Expect)
			}
			options.Command = CommandAnalyze
			options.Args = args
			return nil
		},
	}
	analyzeCmd.Flags().Float64VarP(&options.Expect, "expect", "e", 0,
		"Expected frequency in Hz (default: parsed from each file name)")
	analyzeCmd.Flags().BoolVar(&options.Whole, "whole", false,
		"Also transform the whole file at once and report its spectral peak")
	analyzeCmd.Flags().BoolVar(&options.Frames, "frames", false,
		"Print every analysis frame")
	rootCmd.AddCommand(analyzeCmd)

	pf := rootCmd.PersistentFlags()

	// Configuration
	pf.StringVar(&options.ConfigPath, "config", "",
		"YAML configuration file (default: ./config.yaml or ./pitchtrack.yaml when present)")
	pf.StringVar(&flags.logLevel, "log-level", "info",
		"Logging level: debug, info, warn or error")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	// Audio Device Configuration
	pf.IntVarP(&flags.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultInputChannels,
		"Number of channels to open; only the first is analyzed")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Analysis
	pf.StringVarP(&flags.window, "window", "w", config.DefaultWindow,
		"Spectrum window: rectangle, welch, hanning, hamming, blackman or nuttall")
	pf.IntVar(&flags.fastSize, "fast-size", config.DefaultFastSize,
		"Onset buffer length in samples (power of two)")
	pf.IntVar(&flags.fineSize, "fine-size", config.DefaultFineSize,
		"Pitch buffer length in samples (power of two)")
	pf.BoolVar(&flags.noGate, "no-gate", false,
		"Analyze continuously instead of waiting for a note onset")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record the analyzed input to a WAV file")
	pf.StringVarP(&flags.outputDir, "output-dir", "o", config.DefaultRecordingDir,
		"Directory recordings are written to")
	pf.IntVar(&flags.bitDepth, "bit-depth", config.DefaultBitDepth,
		"Recording bit depth: 16, 24 or 32")

	// Outputs
	pf.BoolVar(&flags.midi, "midi", false,
		"Send note, controller and pitch bend messages to a MIDI output")
	pf.StringVar(&flags.midiPort, "midi-port", "",
		"MIDI output port name or part of it (default: first port)")
	pf.IntVar(&flags.midiChannel, "midi-channel", config.DefaultMIDIChannel,
		"Initial MIDI channel, 0-15")
	pf.BoolVar(&flags.glove, "glove", false,
		"Read channel and angle from a serial glove")
	pf.StringVar(&flags.glovePort, "glove-port", "",
		"Serial device of the glove, e.g. /dev/ttyACM0")
	pf.BoolVar(&flags.udp, "udp", false,
		"Send binary frame packets over UDP")
	pf.StringVar(&flags.udpTarget, "udp-target", config.DefaultUDPTarget,
		"UDP destination host:port")
	pf.BoolVar(&flags.udpSpectrum, "udp-spectrum", false,
		"Append the magnitude spectrum to UDP packets")
	pf.BoolVar(&flags.websocket, "websocket", false,
		"Serve JSON frames to WebSocket clients on /ws")
	pf.StringVar(&flags.websocketAddr, "websocket-addr", config.DefaultWebSocketAddr,
		"WebSocket listen address")
	pf.BoolVar(&options.Headless, "headless", false,
		"Log to the terminal instead of showing the live monitor")

	// Execute the CLI
	rootCmd.SetArgs(args)
	executed, err := rootCmd.ExecuteC()
	if err != nil {
		return nil, err
	}
	if options.Command == CommandNone {
		return options, nil
	}

	cfg, err := config.LoadConfig(options.ConfigPath)
	if err != nil {
		return nil, err
	}
	set := executed.Flags()
	for _, o := range flags.overrides() {
		if set.Changed(o.flag) {
			o.apply(cfg)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command line: %w", err)
	}
	options.Config = cfg

	return options, nil
}
