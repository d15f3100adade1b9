// SPDX-License-Identifier: MIT
package glove

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pitchtrack/internal/log"

	"go.bug.st/serial"
)

// readTimeout bounds each blocking read so Run notices cancellation.
const readTimeout = 100 * time.Millisecond

// openPort is replaceable in tests.
var openPort = serial.Open

// Port reads the controller from a serial device. One goroutine runs Run;
// any goroutine may call State.
type Port struct {
	name    string
	port    serial.Port
	decoder *Decoder
	state   stateWord
}

// Open opens the serial device at baud. The state starts on channel until
// the controller selects another.
func Open(name string, baud int, channel uint8) (*Port, error) {
	sp, err := openPort(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open glove port %s: %w", name, err)
	}
	if err := sp.SetReadTimeout(readTimeout); err != nil {
		sp.Close()
		return nil, fmt.Errorf("failed to set glove read timeout: %w", err)
	}
	log.Infof("Glove: Opened %s at %d baud", name, baud)
	return newPort(name, sp, channel), nil
}

func newPort(name string, sp serial.Port, channel uint8) *Port {
	p := &Port{name: name, port: sp, decoder: NewDecoder(channel)}
	p.publish(true)
	return p
}

// Ports lists the serial devices present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// State returns the latest controller reading.
func (p *Port) State() State { return p.state.load() }

// Run reads the device until ctx is done or the port fails. A closed port
// ends Run without an error; any other read error marks the state not live
// and is returned.
func (p *Port) Run(ctx context.Context) error {
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		n, err := p.port.Read(buf)
		if err != nil {
			p.publish(false)
			var perr *serial.PortError
			if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
				return nil
			}
			return fmt.Errorf("glove read on %s: %w", p.name, err)
		}
		if n == 0 {
			continue // Read timeout.
		}

		changed := p.decoder.Feed(buf[:n])
		if changed == 0 {
			continue
		}
		p.publish(true)
		if changed.Has(ChannelChanged) {
			log.Debugf("Glove: Channel %d", p.decoder.State().Channel)
		}
	}
	return nil
}

func (p *Port) publish(live bool) {
	s := p.decoder.State()
	s.Live = live
	p.state.store(s)
}

// Close releases the device. A concurrent Run returns.
func (p *Port) Close() error {
	s := p.state.load()
	s.Live = false
	p.state.store(s)
	return p.port.Close()
}
