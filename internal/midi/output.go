// SPDX-License-Identifier: MIT
package midi

import (
	"errors"
	"fmt"
	"strings"

	"pitchtrack/internal/log"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// ErrNoOutput is returned when no output port matches.
var ErrNoOutput = errors.New("no MIDI output port")

// Sender delivers one message to a synthesizer.
type Sender interface {
	Send(msg midi.Message) error
}

// Output is an open rtmidi output port.
type Output struct {
	drv  *rtmididrv.Driver
	port drivers.Out
	send func(midi.Message) error
}

var _ Sender = (*Output)(nil)

// OpenOutput opens the first output port whose name contains name, ignoring
// case. An empty name opens the first port.
func OpenOutput(name string) (*Output, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list MIDI outputs: %w", err)
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	idx, err := selectPort(names, name)
	if err != nil {
		drv.Close()
		return nil, err
	}

	port := outs[idx]
	if err := port.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %q: %w", port.String(), err)
	}
	send, err := midi.SendTo(port)
	if err != nil {
		port.Close()
		drv.Close()
		return nil, fmt.Errorf("send to %q: %w", port.String(), err)
	}

	log.Infof("MIDI: Connected to %s", port.String())
	return &Output{drv: drv, port: port, send: send}, nil
}

// ListOutputs returns the names of the available output ports.
func ListOutputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("list MIDI outputs: %w", err)
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

// selectPort returns the index of the first name containing want.
func selectPort(names []string, want string) (int, error) {
	if len(names) == 0 {
		return 0, ErrNoOutput
	}
	if want == "" {
		return 0, nil
	}
	for i, name := range names {
		if strings.Contains(strings.ToLower(name), strings.ToLower(want)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w matching %q (available: %s)", ErrNoOutput, want, strings.Join(names, ", "))
}

// Name returns the port name.
func (o *Output) Name() string { return o.port.String() }

// Send writes msg to the port.
func (o *Output) Send(msg midi.Message) error { return o.send(msg) }

// Close closes the port and the driver.
func (o *Output) Close() error {
	err := o.port.Close()
	return errors.Join(err, o.drv.Close())
}
