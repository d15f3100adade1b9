// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/features"
	"pitchtrack/internal/spectrum"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (forces debug logging).
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Audio input settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Buffer sizes, window and feature tuning.
	MIDI      MIDIConfig      `yaml:"midi"`      // MIDI output settings.
	Glove     GloveConfig     `yaml:"glove"`     // Serial glove controller settings.
	Recording RecordingConfig `yaml:"recording"` // Input recording settings.
	Transport TransportConfig `yaml:"transport"` // Frame publishing settings.
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per PortAudio callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured; only the first is analyzed.
}

// AnalysisConfig holds the pipeline's buffer sizes and feature tuning.
type AnalysisConfig struct {
	FastSize        int     `yaml:"fast_size"`         // Onset buffer length (power of two).
	FineSize        int     `yaml:"fine_size"`         // Pitch buffer length (power of two).
	Window          string  `yaml:"window"`            // Spectrum window ("rectangle", "welch", "hanning", ...).
	OnsetThreshold  float64 `yaml:"onset_threshold"`   // Onset amplitude that starts a note.
	OffsetThreshold float64 `yaml:"offset_threshold"`  // Onset amplitude below which a note ends.
	PitchFloorHz    float64 `yaml:"pitch_floor_hz"`    // Estimates at or below this are discarded.
	PeakRatio       float64 `yaml:"peak_ratio"`        // Minimum fraction of the band peak for a fundamental.
	CutoffHz        float64 `yaml:"cutoff_hz"`         // Upper edge of the pitch search.
	AmplitudeLowHz  float64 `yaml:"amplitude_low_hz"`  // Lower edge of the average amplitude band.
	AmplitudeHighHz float64 `yaml:"amplitude_high_hz"` // Upper edge of the average amplitude band (0 for Nyquist).
	GateDisabled    bool    `yaml:"gate_disabled"`     // Analyze continuously, ignoring the note gate.
}

// MIDIConfig holds settings for the synthesizer output.
type MIDIConfig struct {
	Enabled      bool          `yaml:"enabled"`       // Send MIDI messages.
	Port         string        `yaml:"port"`          // Output port name (substring match, empty for the first port).
	Channel      int           `yaml:"channel"`       // Initial channel, 0-15. The glove may change it.
	Note         int           `yaml:"note"`          // Note number sent on note on/off.
	Velocity     int           `yaml:"velocity"`      // Note on velocity.
	PollInterval time.Duration `yaml:"poll_interval"` // How often frames are turned into messages.
}

// GloveConfig holds settings for the serial glove controller.
type GloveConfig struct {
	Enabled  bool   `yaml:"enabled"`   // Read the glove.
	Port     string `yaml:"port"`      // Serial device, e.g. /dev/ttyACM0.
	BaudRate int    `yaml:"baud_rate"` // Serial speed.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled     bool   `yaml:"enabled"`              // Enable audio recording to file.
	OutputDir   string `yaml:"output_dir"`           // Directory to save recorded audio files.
	BitDepth    int    `yaml:"bit_depth"`            // Bit depth for recorded audio (16, 24 or 32).
	MaxDuration int    `yaml:"max_duration_seconds"` // Maximum duration of a single recording in seconds (0 for unlimited).
}

// TransportConfig holds settings related to publishing frames over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	UDPSpectrum      bool          `yaml:"udp_spectrum"`       // Append the fine magnitude spectrum to each packet.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames on /ws.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address for the WebSocket server.
	LogFrames        bool          `yaml:"log_frames"`         // Log every published frame at debug level.
}

// Default returns the built-in configuration.
func Default() *Config {
	fc := features.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
		},
		Analysis: AnalysisConfig{
			FastSize:        DefaultFastSize,
			FineSize:        DefaultFineSize,
			Window:          DefaultWindow,
			OnsetThreshold:  fc.OnsetThreshold,
			OffsetThreshold: fc.OffsetThreshold,
			PitchFloorHz:    fc.PitchFloorHz,
			PeakRatio:       fc.PeakRatio,
			CutoffHz:        fc.CutoffHz,
		},
		MIDI: MIDIConfig{
			Channel:      DefaultMIDIChannel,
			Note:         DefaultMIDINote,
			Velocity:     DefaultMIDIVelocity,
			PollInterval: DefaultMIDIPoll,
		},
		Glove: GloveConfig{
			BaudRate: DefaultGloveBaud,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPSendInterval,
			WebSocketAddress: DefaultWebSocketAddr,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. A ".env" file in the working directory is loaded into the environment
// first, then ENV_* overrides are applied and the final configuration is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if path == "" {
		// Define potential locations for the config file.
		candidates := []string{"config.yaml", "pitchtrack.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv reads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// WindowKind parses the configured window name.
func (c *Config) WindowKind() (spectrum.WindowKind, error) {
	return spectrum.ParseWindowKind(c.Analysis.Window)
}

// PipelineConfig converts the analysis and audio sections into the
// pipeline's configuration.
func (c *Config) PipelineConfig() (analysis.Config, error) {
	kind, err := c.WindowKind()
	if err != nil {
		return analysis.Config{}, err
	}
	a := c.Analysis
	return analysis.Config{
		SampleRate: c.Audio.SampleRate,
		FastSize:   a.FastSize,
		FineSize:   a.FineSize,
		Window:     kind,
		Features: features.Config{
			OnsetThreshold:  a.OnsetThreshold,
			OffsetThreshold: a.OffsetThreshold,
			PitchFloorHz:    a.PitchFloorHz,
			PeakRatio:       a.PeakRatio,
			CutoffHz:        a.CutoffHz,
			AmplitudeLowHz:  a.AmplitudeLowHz,
			AmplitudeHighHz: a.AmplitudeHighHz,
		},
		GateDisabled: a.GateDisabled,
	}, nil
}
