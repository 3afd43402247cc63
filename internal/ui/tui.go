// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the action channel to the player
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dubcast/dubcast-go/pkg/dubcast"
)

// ActionKind names a user request
type ActionKind int

const (
	ActionPlay ActionKind = iota
	ActionStop
	ActionVolume
	ActionQuit
)

// Action is a user request for the player loop
type Action struct {
	Kind     ActionKind
	Language string
	Volume   int
	Muted    bool
}

// Controls carries actions from the TUI to the player
type Controls struct {
	Actions chan Action
}

// NewControls creates the action channel
func NewControls() *Controls {
	return &Controls{Actions: make(chan Action, 10)}
}

// send never blocks the UI; a full queue drops the action
func (c *Controls) send(a Action) {
	if c == nil {
		return
	}
	select {
	case c.Actions <- a:
	default:
	}
}

// Options describe what the TUI shows at startup
type Options struct {
	Source    string
	Backend   string
	Languages []string
	Volume    int
}

// NewModel creates a new TUI model
func NewModel(opts Options, controls *Controls) Model {
	volume := opts.Volume
	if volume == 0 {
		volume = 100
	}
	return Model{
		source:    opts.Source,
		backend:   opts.Backend,
		languages: opts.Languages,
		volume:    volume,
		state:     dubcast.StateIdle,
		controls:  controls,
	}
}

// New creates the bubbletea program; the caller runs it
func New(opts Options, controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(opts, controls), tea.WithAltScreen())
}
