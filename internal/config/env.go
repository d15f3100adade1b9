// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"pitchtrack/internal/log"
)

// envOverride binds one ENV_* variable to a configuration field.
type envOverride struct {
	key   string
	apply func(cfg *Config, val string) error
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		*field(cfg) = val
		return nil
	}
}

var envOverrides = []envOverride{
	// ENV_{...}
	// These are general overrides.
	{"ENV_DEBUG", boolVar(func(c *Config) *bool { return &c.Debug })},
	{"ENV_LOG_LEVEL", stringVar(func(c *Config) *string { return &c.LogLevel })},

	// ENV_AUDIO_{...}
	{"ENV_AUDIO_INPUT_DEVICE", intVar(func(c *Config) *int { return &c.Audio.InputDevice })},
	{"ENV_AUDIO_SAMPLE_RATE", floatVar(func(c *Config) *float64 { return &c.Audio.SampleRate })},
	{"ENV_AUDIO_FRAMES_PER_BUFFER", intVar(func(c *Config) *int { return &c.Audio.FramesPerBuffer })},

	// ENV_ANALYSIS_{...}
	{"ENV_ANALYSIS_WINDOW", stringVar(func(c *Config) *string { return &c.Analysis.Window })},
	{"ENV_ANALYSIS_ONSET_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.Analysis.OnsetThreshold })},
	{"ENV_ANALYSIS_OFFSET_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.Analysis.OffsetThreshold })},
	{"ENV_ANALYSIS_CUTOFF_HZ", floatVar(func(c *Config) *float64 { return &c.Analysis.CutoffHz })},
	{"ENV_ANALYSIS_GATE_DISABLED", boolVar(func(c *Config) *bool { return &c.Analysis.GateDisabled })},

	// ENV_MIDI_{...}
	{"ENV_MIDI_ENABLED", boolVar(func(c *Config) *bool { return &c.MIDI.Enabled })},
	{"ENV_MIDI_PORT", stringVar(func(c *Config) *string { return &c.MIDI.Port })},
	{"ENV_MIDI_CHANNEL", intVar(func(c *Config) *int { return &c.MIDI.Channel })},

	// ENV_GLOVE_{...}
	{"ENV_GLOVE_ENABLED", boolVar(func(c *Config) *bool { return &c.Glove.Enabled })},
	{"ENV_GLOVE_PORT", stringVar(func(c *Config) *string { return &c.Glove.Port })},
	{"ENV_GLOVE_BAUD_RATE", intVar(func(c *Config) *int { return &c.Glove.BaudRate })},

	// ENV_UDP_{...}
	// These are specific to the transport layer.
	{"ENV_UDP_ENABLED", boolVar(func(c *Config) *bool { return &c.Transport.UDPEnabled })},
	{"ENV_UDP_TARGET_ADDRESS", stringVar(func(c *Config) *string { return &c.Transport.UDPTargetAddress })},
	{"ENV_UDP_SEND_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Transport.UDPSendInterval })},

	// ENV_WS_{...}
	{"ENV_WS_ENABLED", boolVar(func(c *Config) *bool { return &c.Transport.WebSocketEnabled })},
	{"ENV_WS_ADDRESS", stringVar(func(c *Config) *string { return &c.Transport.WebSocketAddress })},
}

// applyEnvOverrides copies set ENV_* variables over the loaded values.
// A variable that does not parse is an error rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	for _, o := range envOverrides {
		val, ok := os.LookupEnv(o.key)
		if !ok {
			continue
		}
		if err := o.apply(c, val); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, o.key, val, err)
		}
		log.Debugf("configuration: Overriding from %s: %s", o.key, val)
	}
	return nil
}
