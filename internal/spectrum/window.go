// SPDX-License-Identifier: MIT
package spectrum

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowKind selects the weighting curve multiplied into a power spectrum.
// The numeric values match the monitor's 0-5 key bindings.
type WindowKind int32

const (
	Rectangle WindowKind = iota
	Welch
	Hanning
	Hamming
	Blackman
	Nuttall

	numWindowKinds
)

// WindowKinds lists every kind in key order.
var WindowKinds = []WindowKind{Rectangle, Welch, Hanning, Hamming, Blackman, Nuttall}

// curves maps each kind to an in-place weighting function. Rectangle is nil
// and handled as identity.
var curves = [numWindowKinds]func([]float64) []float64{
	Rectangle: nil,
	Welch:     welch,
	Hanning:   window.Hann,
	Hamming:   window.Hamming,
	Blackman:  window.Blackman,
	Nuttall:   window.Nuttall,
}

func (k WindowKind) String() string {
	switch k {
	case Rectangle:
		return "rectangle"
	case Welch:
		return "welch"
	case Hanning:
		return "hanning"
	case Hamming:
		return "hamming"
	case Blackman:
		return "blackman"
	case Nuttall:
		return "nuttall"
	default:
		return fmt.Sprintf("window(%d)", int(k))
	}
}

// Valid reports whether k is one of the defined kinds.
func (k WindowKind) Valid() bool {
	return k >= Rectangle && k < numWindowKinds
}

// ParseWindowKind converts a name (case-insensitive) to a WindowKind. Unknown
// names return Rectangle and an error.
func ParseWindowKind(name string) (WindowKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rectangle", "rectangular", "none":
		return Rectangle, nil
	case "welch":
		return Welch, nil
	case "hann", "hanning":
		return Hanning, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "nuttall", "nuttal":
		return Nuttall, nil
	default:
		return Rectangle, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// Window is a precomputed weight curve for spectra of a fixed length.
type Window struct {
	kind    WindowKind
	weights []float64
}

// NewWindow computes the weights of kind over length points. Each curve is a
// closed form of the index k and the length; unknown kinds fall back to
// Rectangle.
func NewWindow(kind WindowKind, length int) *Window {
	if !kind.Valid() {
		kind = Rectangle
	}
	weights := make([]float64, length)
	for i := range weights {
		weights[i] = 1
	}
	// A one-point curve would divide by zero in every closed form.
	if fn := curves[kind]; fn != nil && length > 1 {
		fn(weights)
	}
	return &Window{kind: kind, weights: weights}
}

// Kind returns the window's kind.
func (w *Window) Kind() WindowKind { return w.kind }

// Weights returns the curve. Callers must not modify it.
func (w *Window) Weights() []float64 { return w.weights }

// Apply multiplies the curve into mag in place and returns it. Only the
// overlapping prefix is weighted when the lengths differ.
func (w *Window) Apply(mag []float64) []float64 {
	if w.kind == Rectangle {
		return mag
	}
	n := min(len(mag), len(w.weights))
	for i := range n {
		mag[i] *= w.weights[i]
	}
	return mag
}

// WindowBank holds one precomputed Window per kind so the active kind can be
// switched live without allocating.
type WindowBank struct {
	windows [numWindowKinds]*Window
}

// NewWindowBank precomputes every kind for spectra of length points.
func NewWindowBank(length int) *WindowBank {
	b := &WindowBank{}
	for _, k := range WindowKinds {
		b.windows[k] = NewWindow(k, length)
	}
	return b
}

// Get returns the window for kind, or the Rectangle window for an unknown kind.
func (b *WindowBank) Get(kind WindowKind) *Window {
	if !kind.Valid() {
		kind = Rectangle
	}
	return b.windows[kind]
}

// Apply weights mag in place with kind's curve.
func (b *WindowBank) Apply(kind WindowKind, mag []float64) []float64 {
	return b.Get(kind).Apply(mag)
}

// ApplyWindow weights mag in place with kind's curve over len(mag) points.
// It computes the curve on each call; the pipeline uses a WindowBank instead.
func ApplyWindow(kind WindowKind, mag []float64) []float64 {
	return NewWindow(kind, len(mag)).Apply(mag)
}

// welch multiplies seq in place by the Welch (parabolic) window
//
//	w[k] = 1 - ((k - M/2) / (M/2))²,  M = N-1,
//
// and returns it, following the gonum dsp/window conventions.
func welch(seq []float64) []float64 {
	half := float64(len(seq)-1) / 2
	for i := range seq {
		x := (float64(i) - half) / half
		seq[i] *= 1 - x*x
	}
	return seq
}
