// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/audio"
	"pitchtrack/internal/spectrum"
	"pitchtrack/pkg/utils"

	tea "github.com/charmbracelet/bubbletea"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func newTestPipeline(t *testing.T) *analysis.Pipeline {
	t.Helper()
	cfg := analysis.DefaultConfig()
	cfg.GateDisabled = true
	p, err := analysis.NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline() error: %v", err)
	}
	return p
}

func TestMonitorKeys(t *testing.T) {
	p := newTestPipeline(t)
	var m tea.Model = NewMonitorModel(p, nil)

	for i, kind := range spectrum.WindowKinds {
		m, _ = m.Update(runeKey(rune('0' + i)))
		if got := p.Window(); got != kind {
			t.Errorf("key %d selected %v, want %v", i, got, kind)
		}
	}

	m, _ = m.Update(runeKey('g'))
	if !p.GateEnabled() {
		t.Error("g should enable a disabled gate")
	}
	m, _ = m.Update(runeKey('g'))
	if p.GateEnabled() {
		t.Error("g should disable an enabled gate")
	}

	if _, cmd := m.Update(runeKey('x')); cmd != nil {
		t.Error("unbound key returned a command")
	}
	if _, cmd := m.Update(runeKey('q')); !isQuit(cmd) {
		t.Error("q should quit")
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC}); !isQuit(cmd) {
		t.Error("ctrl+c should quit")
	}
}

func TestMonitorPoll(t *testing.T) {
	p := newTestPipeline(t)
	var m tea.Model = NewMonitorModel(p, func() audio.Stats { return audio.Stats{Samples: 1024, Clipped: 3} })

	m, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick should schedule the next tick")
	}
	if got := m.(MonitorModel).trail.count; got != 0 {
		t.Fatalf("trail has %d points before any analysis", got)
	}

	p.Push(utils.ToFloat32(utils.GenerateSineWave(1024, 44100, 440, 0.5, 0)))
	m, _ = m.Update(tickMsg(time.Now()))
	m, _ = m.Update(tickMsg(time.Now())) // Unchanged frame adds nothing.

	mon := m.(MonitorModel)
	points := mon.trail.last(TrailLength)
	if len(points) != 1 {
		t.Fatalf("trail = %v, want one point", points)
	}
	if math.Abs(points[0]-69) > 1 {
		t.Errorf("trail point = %.2f, want near MIDI 69", points[0])
	}

	// Onset-only frames update the display without extending the trail.
	p.Push(make([]float32, 64))
	m, _ = m.Update(tickMsg(time.Now()))
	if got := m.(MonitorModel).trail.count; got != 1 {
		t.Errorf("trail has %d points after an onset frame, want 1", got)
	}

	view := m.View()
	for _, want := range []string{"NOTE ON", "A4", "1024 samples, 3 clipped", "lowMid", "window"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestTrail(t *testing.T) {
	var tr trail
	if got := tr.last(10); len(got) != 0 {
		t.Errorf("empty trail returned %v", got)
	}
	for i := range TrailLength + 5 {
		tr.push(float64(i))
	}
	got := tr.last(3)
	want := []float64{TrailLength + 2, TrailLength + 3, TrailLength + 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("last(3) = %v, want %v", got, want)
		}
	}
	if all := tr.last(TrailLength * 2); len(all) != TrailLength || all[0] != 5 {
		t.Errorf("last() returned %d points starting at %v, want %d starting at 5", len(all), all[0], TrailLength)
	}
}

func TestRenderTrail(t *testing.T) {
	out := renderTrail([]float64{36, math.NaN(), 96, 66}, 6, 3, 36, 96)
	lines := strings.Split(out, "\n")
	// Two blank columns pad the short trail on the left.
	want := []string{
		"    • ",
		"     •",
		"  •   ",
	}
	if len(lines) != len(want) {
		t.Fatalf("rendered %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestNoteName(t *testing.T) {
	tests := []struct {
		midi float64
		want string
	}{
		{69, "A4"},
		{60, "C4"},
		{61.04, "C#4 +4"},
		{38.8, "D#2 -20"},
		{math.NaN(), "-"},
	}
	for _, tt := range tests {
		if got := NoteName(tt.midi); got != tt.want {
			t.Errorf("NoteName(%v) = %q, want %q", tt.midi, got, tt.want)
		}
	}
}

func TestLevelFraction(t *testing.T) {
	tests := []struct {
		power float64
		want  float64
	}{
		{1, 1},
		{10, 1},
		{1e-9, 0},
		{0, 0},
		{math.NaN(), 0},
		{1e-3, 1 - 30.0/90},
	}
	for _, tt := range tests {
		if got := levelFraction(tt.power); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("levelFraction(%v) = %v, want %v", tt.power, got, tt.want)
		}
	}
}

var testDevices = []audio.Device{
	{ID: 0, Name: "HDMI Out", MaxOutputChannels: 2, DefaultSampleRate: 48000},
	{ID: 1, Name: "USB Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
	{ID: 2, Name: "Line In", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 44100},
}

func loadedDeviceList(t *testing.T, fetch func() ([]audio.Device, error)) tea.Model {
	t.Helper()
	var m tea.Model = newDeviceListModel(fetch)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	m, _ = m.Update(m.Init()())
	return m
}

func TestDeviceListSelection(t *testing.T) {
	m := loadedDeviceList(t, func() ([]audio.Device, error) { return testDevices, nil })

	dl := m.(DeviceListModel)
	if dl.selectedIndex != 1 {
		t.Errorf("initial selection = %d, want the first input device", dl.selectedIndex)
	}
	if view := m.View(); !strings.Contains(view, "USB Mic (Input)") || !strings.Contains(view, "HDMI Out (Output)") {
		t.Errorf("View() = %q, want the device list", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.(DeviceListModel).activeScreen != ConfigScreen {
		t.Fatal("enter should open the configuration screen")
	}
	if !strings.Contains(m.View(), "Configure Device: Line In") {
		t.Errorf("View() = %q, want the configuration screen", m.View())
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !isQuit(cmd) {
		t.Error("confirming a device should quit")
	}
	sel, ok := m.(DeviceListModel).Selection()
	if !ok {
		t.Fatal("Selection() reported no choice")
	}
	want := Selection{DeviceID: 2, DeviceName: "Line In", SampleRate: 48000}
	if sel != want {
		t.Errorf("Selection() = %+v, want %+v", sel, want)
	}
}

func TestDeviceListRejectsOutputOnly(t *testing.T) {
	m := loadedDeviceList(t, func() ([]audio.Device, error) { return testDevices, nil })

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.(DeviceListModel).activeScreen != ListScreen {
		t.Error("an output-only device should not be configurable")
	}

	m, cmd := m.Update(runeKey('q'))
	if !isQuit(cmd) {
		t.Error("q should quit")
	}
	if _, ok := m.(DeviceListModel).Selection(); ok {
		t.Error("quitting should not select a device")
	}
}

func TestDeviceListError(t *testing.T) {
	m := loadedDeviceList(t, func() ([]audio.Device, error) { return nil, errors.New("no host API") })
	if view := m.View(); !strings.Contains(view, "no host API") {
		t.Errorf("View() = %q, want the error", view)
	}
	if _, cmd := m.Update(runeKey('x')); !isQuit(cmd) {
		t.Error("any key should quit after an error")
	}
}

func TestDeviceListEmpty(t *testing.T) {
	m := loadedDeviceList(t, func() ([]audio.Device, error) { return nil, nil })
	if !strings.Contains(m.View(), "No audio devices found.") {
		t.Errorf("View() = %q", m.View())
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.(DeviceListModel).activeScreen != ListScreen {
		t.Error("enter with no devices should stay on the list")
	}
}
