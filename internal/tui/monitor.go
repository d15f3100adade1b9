// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/audio"
	"pitchtrack/internal/spectrum"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// TrailLength is the number of pitch estimates kept for the trail.
	TrailLength = 256

	// RefreshInterval paces the monitor's frame reads (~30 Hz).
	RefreshInterval = 33 * time.Millisecond

	trailHeight   = 8
	trailLowMIDI  = 36.0 // C2
	trailHighMIDI = 96.0 // C7

	bandFloorDB = -90.0
	barWidth    = 30
)

var (
	noteOnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#D9534F")).
			Padding(0, 1).
			Bold(true)

	noteOffStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Width(12)

	trailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#25A065"))
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Analyzer is the live pipeline as seen by the monitor: its frames, its
// spectrum and the controls the keys operate.
type Analyzer interface {
	analysis.FrameSource
	analysis.SpectrumSource
	SetWindow(kind spectrum.WindowKind)
	Window() spectrum.WindowKind
	EnableGate()
	DisableGate()
	GateEnabled() bool
}

type monitorKeys struct {
	Window key.Binding
	Gate   key.Binding
	Quit   key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Window, k.Gate, k.Quit}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultMonitorKeys = monitorKeys{
	Window: key.NewBinding(key.WithKeys("0", "1", "2", "3", "4", "5"), key.WithHelp("0-5", "window")),
	Gate:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "toggle gate")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// trail is a fixed ring of MIDI note numbers, NaN where no pitch was found.
type trail struct {
	points [TrailLength]float64
	head   int
	count  int
}

func (t *trail) push(v float64) {
	t.points[t.head] = v
	t.head = (t.head + 1) % TrailLength
	t.count = min(t.count+1, TrailLength)
}

// last returns up to n of the newest points, oldest first.
func (t *trail) last(n int) []float64 {
	n = min(n, t.count)
	out := make([]float64, n)
	start := t.head - n
	for i := range out {
		out[i] = t.points[(start+i+TrailLength)%TrailLength]
	}
	return out
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// MonitorModel shows the latest frame, a pitch trail and band levels of the
// live pipeline.
type MonitorModel struct {
	analyzer Analyzer
	stats    func() audio.Stats
	keys     monitorKeys
	help     help.Model
	bar      progress.Model
	width    int

	frame   analysis.Frame
	lastSeq uint64
	primed  bool
	trail   trail

	bands  []analysis.Band
	mag    []float64
	levels []float64
}

// NewMonitorModel creates a monitor of a. stats may be nil when no audio
// engine is running.
func NewMonitorModel(a Analyzer, stats func() audio.Stats) MonitorModel {
	return MonitorModel{
		analyzer: a,
		stats:    stats,
		keys:     defaultMonitorKeys,
		help:     help.New(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage()),
		width:    80,
		bands:    analysis.DefaultBands,
		mag:      make([]float64, a.Bins()),
		levels:   make([]float64, len(analysis.DefaultBands)),
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return tick()
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		m.poll()
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Window):
			idx := int(msg.String()[0] - '0')
			m.analyzer.SetWindow(spectrum.WindowKinds[idx])

		case key.Matches(msg, m.keys.Gate):
			if m.analyzer.GateEnabled() {
				m.analyzer.DisableGate()
			} else {
				m.analyzer.EnableGate()
			}
		}
	}
	return m, nil
}

// poll reads the frame when it changed and extends the trail with one point
// per new fine-buffer analysis.
func (m *MonitorModel) poll() {
	seq := m.analyzer.Seq()
	if m.primed && seq == m.lastSeq {
		return
	}
	m.primed, m.lastSeq = true, seq

	prevFills := m.frame.Fills
	m.frame = m.analyzer.Frame()
	if m.frame.Fills == prevFills {
		return
	}

	if m.frame.NoteOn {
		m.trail.push(m.frame.DominantFrequency.MIDINumber())
	} else {
		m.trail.push(math.NaN())
	}

	n := m.analyzer.Spectrum(m.mag)
	analysis.BandLevels(m.levels, m.mag[:n], m.analyzer.FineSize(), m.analyzer.SampleRate(), m.bands)
}

func (m MonitorModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Pitch Tracker"))
	sb.WriteString("  ")
	if m.frame.NoteOn {
		sb.WriteString(noteOnStyle.Render("NOTE ON"))
	} else {
		sb.WriteString(noteOffStyle.Render("note off"))
	}
	sb.WriteString("\n\n")

	gate := "on"
	if !m.analyzer.GateEnabled() {
		gate = "off"
	}
	f := m.frame
	rows := [][2]string{
		{"Pitch", formatPitch(f.DominantFrequency.MIDINumber(), f.DominantFrequency.Or(math.NaN()))},
		{"Centroid", formatHz(f.SpectralCentroid)},
		{"Amplitude", fmt.Sprintf("%.5f (onset %.5f)", f.AverageAmplitude, f.OnsetAverageAmplitude)},
		{"Crest", fmt.Sprintf("%.2f", f.SpectralCrest)},
		{"Flatness", fmt.Sprintf("%.3f", f.SpectralFlatness)},
		{"Window", fmt.Sprintf("%d %s", int(m.analyzer.Window()), m.analyzer.Window())},
		{"Gate", gate},
		{"Frames", fmt.Sprintf("%d (seq %d)", f.Fills, f.Seq)},
	}
	if m.stats != nil {
		s := m.stats()
		rows = append(rows, [2]string{"Input", fmt.Sprintf("%d samples, %d clipped", s.Samples, s.Clipped)})
	}
	for _, r := range rows {
		sb.WriteString(labelStyle.Render(r[0]))
		sb.WriteString(r[1])
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	width := max(16, min(TrailLength, m.width-4))
	sb.WriteString(trailStyle.Render(renderTrail(m.trail.last(width), width, trailHeight, trailLowMIDI, trailHighMIDI)))
	sb.WriteString("\n\n")

	for i, b := range m.bands {
		sb.WriteString(labelStyle.Render(b.Name))
		sb.WriteString(m.bar.ViewAs(levelFraction(m.levels[i])))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// renderTrail plots MIDI note numbers between lo and hi as a dot per column,
// newest on the right. NaN points leave their column blank.
func renderTrail(points []float64, width, height int, lo, hi float64) string {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", width))
	}

	offset := width - len(points)
	for i, v := range points {
		if math.IsNaN(v) {
			continue
		}
		frac := math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
		row := height - 1 - int(math.Round(frac*float64(height-1)))
		grid[row][offset+i] = '•'
	}

	lines := make([]string, height)
	for r, line := range grid {
		lines[r] = string(line)
	}
	return strings.Join(lines, "\n")
}

// levelFraction maps a band power onto [0, 1] over bandFloorDB..0 dB.
func levelFraction(power float64) float64 {
	if !(power > 0) {
		return 0
	}
	db := 10 * math.Log10(power)
	return math.Max(0, math.Min(1, 1-db/bandFloorDB))
}

// NoteName names the nearest equal-tempered note of a MIDI number and the
// deviation from it in cents, e.g. "A4 +3".
func NoteName(midi float64) string {
	if math.IsNaN(midi) {
		return "-"
	}
	n := int(math.Round(midi))
	cents := int(math.Round((midi - float64(n)) * 100))
	name := fmt.Sprintf("%s%d", noteNames[((n%12)+12)%12], n/12-1)
	if cents == 0 {
		return name
	}
	return fmt.Sprintf("%s %+d", name, cents)
}

func formatPitch(midi, hz float64) string {
	if math.IsNaN(hz) {
		return "-"
	}
	return fmt.Sprintf("%.2f Hz  %s  (MIDI %.2f)", hz, NoteName(midi), midi)
}

func formatHz(hz float64) string {
	if math.IsNaN(hz) {
		return "-"
	}
	return fmt.Sprintf("%.1f Hz", hz)
}

// StartMonitorUI runs the monitor until the user quits or ctx is done.
func StartMonitorUI(ctx context.Context, a Analyzer, stats func() audio.Stats) error {
	p := tea.NewProgram(
		NewMonitorModel(a, stats),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
