// SPDX-License-Identifier: MIT
package analysis

// FrameSource is implemented by components that publish analysis frames.
// Consumers such as the MIDI controller, the publishers and the monitor
// depend on this rather than on Pipeline.
type FrameSource interface {
	Frame() Frame // Frame returns a consistent copy of the latest frame.
	Seq() uint64  // Seq returns the publication count; it changes whenever Frame does.
}

// SpectrumSource is implemented by components that expose the latest fine
// power spectrum for display.
type SpectrumSource interface {
	Spectrum(dst []float64) int // Spectrum copies the latest spectrum into dst.
	Bins() int                  // Bins returns the spectrum length.
	SampleRate() float64        // SampleRate returns the sample rate of the analyzed signal.
	FineSize() int              // FineSize returns the transform length the spectrum came from.
}

// SampleSink accepts blocks of mono samples. Implementations are called from
// the real-time audio callback and must not block or allocate.
type SampleSink interface {
	Push(samples []float32) int
}
