// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"time"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/log"
)

// Publisher polls a FrameSource and sends every new frame, as a
// FrameMessage, to each of its transports.
type Publisher struct {
	source     analysis.FrameSource
	transports []Transport
	interval   time.Duration
	now        func() time.Time

	spectrum analysis.SpectrumSource
	bands    []analysis.Band
	mag      []float64
	levels   []float64

	lastSeq uint64
	primed  bool
}

// NewPublisher creates a publisher polling source every interval. A
// non-positive interval defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, source analysis.FrameSource, transports ...Transport) *Publisher {
	if interval <= 0 {
		interval = 16 * time.Millisecond
		log.Warnf("Publisher: Invalid interval provided, defaulting to %s", interval)
	}
	return &Publisher{
		source:     source,
		transports: transports,
		interval:   interval,
		now:        time.Now,
	}
}

// WithBands adds the mean level of each band of spec's latest spectrum to
// every message.
func (p *Publisher) WithBands(spec analysis.SpectrumSource, bands []analysis.Band) *Publisher {
	p.spectrum = spec
	p.bands = bands
	p.mag = make([]float64, spec.Bins())
	p.levels = make([]float64, len(bands))
	return p
}

// Run publishes every interval until ctx is done, then closes the
// transports.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Infof("Publisher: Started (Interval: %s, Transports: %d)", p.interval, len(p.transports))
	for {
		select {
		case <-ctx.Done():
			log.Infof("Publisher: Stopping")
			return p.Close()
		case <-ticker.C:
			if _, err := p.Publish(); err != nil {
				log.Debugf("Publisher: %v", err)
			}
		}
	}
}

// Publish sends the current frame if it changed since the last call and
// reports whether it did.
func (p *Publisher) Publish() (bool, error) {
	seq := p.source.Seq()
	if p.primed && seq == p.lastSeq {
		return false, nil
	}
	p.primed, p.lastSeq = true, seq

	frame := p.source.Frame()
	msg := NewFrameMessage(frame, p.now())
	if p.spectrum != nil && frame.Fills > 0 {
		n := p.spectrum.Spectrum(p.mag)
		levels := analysis.BandLevels(p.levels, p.mag[:n], p.spectrum.FineSize(), p.spectrum.SampleRate(), p.bands)
		msg.Bands = make(map[string]float64, len(p.bands))
		for i, b := range p.bands {
			msg.Bands[b.Name] = levels[i]
		}
	}

	var errs []error
	for _, t := range p.transports {
		if err := t.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

// Close closes every transport.
func (p *Publisher) Close() error {
	var errs []error
	for _, t := range p.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
