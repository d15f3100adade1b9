// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"
	"time"

	"pitchtrack/internal/analysis"
	applog "pitchtrack/internal/log"
)

// PacketSender delivers one encoded datagram.
type PacketSender interface {
	Send(data []byte) error
}

// Source is what the publisher reads: the frame and, when spectra are
// enabled, the fine magnitude spectrum.
type Source interface {
	analysis.FrameSource
	analysis.SpectrumSource
}

// UDPPublisher periodically reads the latest analysis frame, packs it into
// the binary packet format (see packet.go) and sends it with a PacketSender.
// It runs in a separate goroutine managed by Start and Stop methods.
type UDPPublisher struct {
	sender       PacketSender
	source       Source
	interval     time.Duration
	withSpectrum bool

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	lastSeq uint64
	primed  bool
	sent    uint64

	// Pre-allocated buffers reused for every packet.
	magBuffer    []float64
	f32Buffer    []float32
	packetBuffer []byte
}

// NewUDPPublisher creates and initializes a new UDPPublisher. When
// withSpectrum is set every packet carries the fine magnitude spectrum.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender PacketSender, source Source, withSpectrum bool) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: frame source cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	bins := 0
	if withSpectrum {
		bins = min(source.Bins(), MaxMagnitudes)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s, Spectrum Bins: %d)", interval, bins)

	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		withSpectrum: withSpectrum,
		magBuffer:    make([]float64, source.Bins()),
		f32Buffer:    make([]float32, bins),
		packetBuffer: make([]byte, 0, HeaderSize+4*bins),
	}, nil
}

// Start begins the periodic publishing process.
// It launches a goroutine that ticks at the configured interval, calling
// publish on each tick until Stop is called.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture local variables for the goroutine to avoid data races on p.ticker/p.doneChan
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				if _, err := p.publish(time.Now()); err != nil {
					applog.Debugf("UDPPublisher: %v", err)
				}
			case <-doneChan:
				applog.Infof("UDPPublisher: Publisher goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop gracefully signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		applog.Infof("UDPPublisher: Initiating stop sequence...")
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Publisher goroutine finished (%d packets sent).", p.sent)
	return nil
}

// publish sends one packet when the frame changed since the last call and
// reports whether it did.
func (p *UDPPublisher) publish(now time.Time) (bool, error) {
	seq := p.source.Seq()
	if p.primed && seq == p.lastSeq {
		return false, nil
	}
	p.primed, p.lastSeq = true, seq

	frame := p.source.Frame()

	mags := p.f32Buffer[:0]
	if p.withSpectrum && frame.Fills > 0 {
		n := min(p.source.Spectrum(p.magBuffer), len(p.f32Buffer))
		mags = p.f32Buffer[:n]
		for i := range mags {
			mags[i] = float32(p.magBuffer[i])
		}
	}

	p.packetBuffer = AppendPacket(p.packetBuffer[:0], frame, now.UnixNano(), mags)
	if err := p.sender.Send(p.packetBuffer); err != nil {
		return false, err
	}
	p.sent++
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", uint32(frame.Seq), len(p.packetBuffer))
	return true, nil
}

// Close implements the io.Closer interface. It gracefully stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	applog.Debugf("UDPPublisher: Close called, stopping publisher...")
	return p.Stop()
}

// Ensure UDPPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*UDPPublisher)(nil)
