// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Language tabs, stream status and playback controls
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dubcast/dubcast-go/pkg/dubcast"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	tabStyle    = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("250"))
	activeTab   = tabStyle.Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("86"))
	playingTab  = tabStyle.Underline(true).Foreground(lipgloss.Color("220"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// StatusMsg carries a session snapshot into the model
type StatusMsg struct {
	Status dubcast.Status
	Active int
	Queued time.Duration
}

type tickMsg time.Time

// Model represents the TUI state
type Model struct {
	source    string
	backend   string
	languages []string
	selected  int

	// Stream
	state   dubcast.State
	playing string
	errText string
	stats   dubcast.Stats
	active  int
	queued  time.Duration

	// Playback
	volume int
	muted  bool

	frame    int
	quitting bool
	controls *Controls

	width  int
	height int
}

// Init starts the spinner tick
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case tickMsg:
		m.frame++
		return m, tick()
	}

	return m, nil
}

// applyStatus copies a session snapshot into the model
func (m *Model) applyStatus(msg StatusMsg) {
	st := msg.Status
	m.state = st.State
	m.stats = st.Stats
	m.active = msg.Active
	m.queued = msg.Queued

	switch st.State {
	case dubcast.StateError:
		m.errText = "Error fetching translated audio"
		if st.Err != nil {
			m.errText = st.Err.Error()
		}
	default:
		m.errText = ""
	}

	if st.State == dubcast.StateLoading {
		m.playing = st.Language
	}
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.controls.send(Action{Kind: ActionQuit})
		return m, tea.Quit
	case "left", "h", "shift+tab":
		if m.selected > 0 {
			m.selected--
		}
	case "right", "l", "tab":
		if m.selected < len(m.languages)-1 {
			m.selected++
		}
	case "enter", " ":
		m.play()
	case "s", "esc":
		m.playing = ""
		m.errText = ""
		m.controls.send(Action{Kind: ActionStop})
	case "up":
		m.volume = min(m.volume+5, 100)
		m.controls.send(Action{Kind: ActionVolume, Volume: m.volume, Muted: m.muted})
	case "down":
		m.volume = max(m.volume-5, 0)
		m.controls.send(Action{Kind: ActionVolume, Volume: m.volume, Muted: m.muted})
	case "m":
		m.muted = !m.muted
		m.controls.send(Action{Kind: ActionVolume, Volume: m.volume, Muted: m.muted})
	default:
		// Digits pick a language directly.
		if k := msg.String(); len(k) == 1 && k[0] >= '1' && k[0] <= '9' {
			if i := int(k[0] - '1'); i < len(m.languages) {
				m.selected = i
				m.play()
			}
		}
	}

	return m, nil
}

func (m *Model) play() {
	if len(m.languages) == 0 {
		return
	}
	lang := m.languages[m.selected]
	m.playing = lang
	m.errText = ""
	m.state = dubcast.StateLoading
	m.controls.send(Action{Kind: ActionPlay, Language: lang})
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping playback...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("dubcast"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Source:  "))
	b.WriteString(valueStyle.Render(m.source))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Backend: "))
	b.WriteString(valueStyle.Render(m.backend))
	b.WriteString("\n\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	muteText := ""
	if m.muted {
		muteText = " (muted)"
	}
	b.WriteString(headerStyle.Render("Volume:  "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteText)))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Stream:  "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d chunks  %s  %d skipped  %d resyncs",
		m.stats.Chunks, formatBytes(m.stats.Bytes), m.stats.DecodeErrors, m.stats.Resyncs)))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Queued:  "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.1fs in %d voices", m.queued.Seconds(), m.active)))
	b.WriteString("\n\n")

	b.WriteString(helpStyle.Render("←/→:Language  enter:Play  s:Stop  ↑/↓:Volume  m:Mute  q:Quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(m.languages))
	for i, lang := range m.languages {
		style := tabStyle
		switch {
		case i == m.selected:
			style = activeTab
		case lang == m.playing:
			style = playingTab
		}
		tabs[i] = style.Render(fmt.Sprintf("%d %s", i+1, capitalize(lang)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderStatus() string {
	switch {
	case m.errText != "":
		return errorStyle.Render("✗ " + m.errText)
	case m.state == dubcast.StateLoading:
		return valueStyle.Render(fmt.Sprintf("%s Loading %s audio...", spinnerFrames[m.frame%len(spinnerFrames)], m.playing))
	case m.active > 0:
		return valueStyle.Render(fmt.Sprintf("▶ Playing %s", m.playing))
	default:
		return helpStyle.Render("Select a language to start translation")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// renderBar renders a progress bar
func renderBar(value, total, width int) string {
	filled := value * width / total
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
