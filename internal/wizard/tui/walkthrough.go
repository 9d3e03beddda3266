package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/squidly/internal/ui"
	"github.com/muurk/squidly/internal/walkthrough"
)

// walkthroughKeyMap defines key bindings for the walkthrough screen
type walkthroughKeyMap struct {
	Next     key.Binding
	Previous key.Binding
	End      key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k walkthroughKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Previous, k.Next, k.End}
}

// FullHelp returns keybindings for the expanded help view
func (k walkthroughKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Previous, k.Next, k.End}}
}

// WalkthroughModel shows the active walkthrough step as a terminal overlay
// with the catalog progress beside it.
type WalkthroughModel struct {
	rt *Runtime

	Progress *ui.Progress
	Busy     bool
	Err      error
	Width    int
	Height   int
	Help     help.Model
	Keys     walkthroughKeyMap
}

// NewWalkthroughModel creates the walkthrough screen for rt.
func NewWalkthroughModel(rt *Runtime) WalkthroughModel {
	return WalkthroughModel{
		rt:       rt,
		Progress: ui.NewProgress("Walkthrough", rt.Controller.Steps()),
		Help:     help.New(),
		Keys: walkthroughKeyMap{
			Next:     key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n/→", "next")),
			Previous: key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p/←", "back")),
			End:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "end")),
		},
	}
}

// Update handles key presses and operation results
func (m WalkthroughModel) Update(msg tea.Msg) (WalkthroughModel, tea.Cmd) {
	switch msg := msg.(type) {
	case opDoneMsg:
		m.Busy = false
		m.Err = msg.err
		if errors.Is(m.Err, walkthrough.ErrNotActive) {
			m.Err = nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.Busy {
			return m, nil
		}
		ctrl := m.rt.Controller
		switch {
		case key.Matches(msg, m.Keys.Next):
			if _, next := m.rt.Overlay.Buttons(); !next {
				return m, nil
			}
			m.Busy = true
			return m, runOp(ctrl.Next)

		case key.Matches(msg, m.Keys.Previous):
			if back, _ := m.rt.Overlay.Buttons(); !back {
				return m, nil
			}
			m.Busy = true
			return m, runOp(ctrl.Previous)

		case key.Matches(msg, m.Keys.End):
			m.Busy = true
			return m, runOp(ctrl.End)
		}
	}
	return m, nil
}

// View renders the walkthrough screen
func (m WalkthroughModel) View() string {
	return RenderApplicationContainer(m.content(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m WalkthroughModel) content() string {
	width := m.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	height := m.Height
	if height < 24 {
		height = 24
	}

	m.Progress.SetCurrent(m.rt.Controller.Snapshot().CurrentStepID)
	m.Progress.SetWidth(width - 8)
	m.Progress.ShowSteps = false

	var b strings.Builder
	b.WriteString(m.Progress.Render())
	b.WriteString("\n")

	window, path, dwell := m.rt.Surface()
	var surface []string
	if window != "" {
		surface = append(surface, "window: "+window)
	}
	if path != "" {
		surface = append(surface, "settings: "+path)
	}
	if dwell {
		surface = append(surface, WarningTextStyle.Render("dwell test running"))
	}
	if len(surface) > 0 {
		b.WriteString(StatusStyle.Render(strings.Join(surface, "   ")))
		b.WriteString("\n")
	}

	// Header, footer and progress take roughly eight rows.
	overlay := m.rt.Overlay.Render(width-6, height-10)
	if overlay == "" {
		overlay = lipgloss.Place(width-6, height-10, lipgloss.Center, lipgloss.Center,
			RenderSubtitle("Waiting for the next step..."))
	}
	b.WriteString(overlay)

	if m.Err != nil {
		b.WriteString("\n")
		b.WriteString(RenderError(m.Err.Error()))
	}
	return b.String()
}
