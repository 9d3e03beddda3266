package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/squidly/internal/setupflow"
)

// opDoneMsg reports the end of a flow or controller operation started from a
// key press.
type opDoneMsg struct {
	err error
}

// runOp runs fn off the update loop.
func runOp(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: fn(context.Background())}
	}
}

// setupKeyMap defines key bindings for the setup screens
type setupKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Close  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k setupKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Close}
}

// FullHelp returns keybindings for the expanded help view
func (k setupKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.Select, k.Close}}
}

// SetupModel drives the replicated setup flow: choose a profile, then an
// access method. What it shows comes from the flow's view, so it follows
// changes made on the other side of the session.
type SetupModel struct {
	rt *Runtime

	Cursor  int
	Name    textinput.Model
	Busy    bool
	Err     error
	Closed  bool
	Width   int
	Height  int
	Help    help.Model
	Keys    setupKeyMap
	screen  setupflow.Screen
	editing bool
}

// NewSetupModel creates the setup screen for rt.
func NewSetupModel(rt *Runtime) SetupModel {
	name := textinput.New()
	name.Placeholder = "New profile name"
	name.CharLimit = 40
	name.Width = 30

	return SetupModel{
		rt:   rt,
		Name: name,
		Help: help.New(),
		Keys: setupKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "shift+tab"), key.WithHelp("↑", "up")),
			Down:   key.NewBinding(key.WithKeys("down", "tab"), key.WithHelp("↓", "down")),
			Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
			Close:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		},
	}
}

// Update handles key presses and operation results
func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	view := m.rt.Setup.View()
	if view.Screen != m.screen {
		m.screen = view.Screen
		m.Cursor = 0
		m.setEditing(false)
	}

	switch msg := msg.(type) {
	case opDoneMsg:
		m.Busy = false
		m.Err = msg.err
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.Busy || !view.Open {
			return m, nil
		}
		switch view.Screen {
		case setupflow.ScreenProfileSelection:
			return m.updateProfiles(msg, view)
		case setupflow.ScreenAccessMethodSelection:
			return m.updateMethods(msg)
		}
	}
	return m, nil
}

func (m SetupModel) updateProfiles(msg tea.KeyMsg, view setupflow.View) (SetupModel, tea.Cmd) {
	rows := len(view.Profiles) + 1
	newRow := rows - 1
	if m.Cursor > newRow {
		m.Cursor = newRow
	}

	switch {
	case key.Matches(msg, m.Keys.Close):
		return m.close()

	case key.Matches(msg, m.Keys.Up):
		m.Cursor = (m.Cursor + rows - 1) % rows
		m.setEditing(m.Cursor == newRow)
		return m, nil

	case key.Matches(msg, m.Keys.Down):
		m.Cursor = (m.Cursor + 1) % rows
		m.setEditing(m.Cursor == newRow)
		return m, nil

	case key.Matches(msg, m.Keys.Select):
		m.Busy = true
		if m.Cursor == newRow {
			return m, runOp(m.rt.Setup.Continue)
		}
		name := view.Profiles[m.Cursor].Name
		setup := m.rt.Setup
		return m, runOp(func(ctx context.Context) error {
			if err := setup.SelectProfile(ctx, name); err != nil {
				return err
			}
			return setup.Continue(ctx)
		})
	}

	if !m.editing {
		return m, nil
	}
	before := m.Name.Value()
	var cmd tea.Cmd
	m.Name, cmd = m.Name.Update(msg)
	if value := m.Name.Value(); value != before {
		setup := m.rt.Setup
		return m, tea.Batch(cmd, runOp(func(ctx context.Context) error {
			return setup.TypeName(ctx, value)
		}))
	}
	return m, cmd
}

func (m SetupModel) updateMethods(msg tea.KeyMsg) (SetupModel, tea.Cmd) {
	rows := len(setupflow.Methods)

	switch {
	case key.Matches(msg, m.Keys.Close):
		return m.close()

	case key.Matches(msg, m.Keys.Up):
		m.Cursor = (m.Cursor + rows - 1) % rows
		return m, nil

	case key.Matches(msg, m.Keys.Down):
		m.Cursor = (m.Cursor + 1) % rows
		return m, nil

	case key.Matches(msg, m.Keys.Select):
		m.Busy = true
		method := setupflow.Methods[m.Cursor]
		setup := m.rt.Setup
		return m, runOp(func(ctx context.Context) error {
			if err := setup.SelectMethod(ctx, method); err != nil {
				return err
			}
			return setup.Confirm(ctx)
		})
	}
	return m, nil
}

// close ends the flow on both sides and hands the view back to the default
// occupier.
func (m SetupModel) close() (SetupModel, tea.Cmd) {
	m.Busy = true
	m.Closed = true
	setup := m.rt.Setup
	return m, runOp(func(ctx context.Context) error {
		return setup.Close(ctx, true)
	})
}

func (m *SetupModel) setEditing(on bool) {
	m.editing = on
	if on {
		m.Name.Focus()
	} else {
		m.Name.Blur()
	}
}

// View renders the setup screen
func (m SetupModel) View() string {
	return RenderApplicationContainer(m.content(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m SetupModel) content() string {
	view := m.rt.Setup.View()

	var b strings.Builder
	b.WriteString(StatusStyle.Render(fmt.Sprintf("Role: %s", m.rt.Role)))
	b.WriteString("\n")

	switch {
	case !view.Open:
		b.WriteString(RenderTitle("Setup closed"))
		b.WriteString("\n")
		b.WriteString(RenderSubtitle("Waiting for the session to start a setup..."))

	case view.Screen == setupflow.ScreenProfileSelection:
		b.WriteString(RenderTitle("Who is this setup for?"))
		b.WriteString("\n")
		for i, p := range view.Profiles {
			label := p.Name
			if p.Name == view.SelectedProfile {
				label += "  (selected)"
			}
			b.WriteString(RenderMenuItem(label, i == m.Cursor))
			b.WriteString("\n")
		}
		newLabel := "New profile: " + m.Name.View()
		if !m.editing && view.NewName != "" {
			newLabel = "New profile: " + view.NewName
		}
		b.WriteString(RenderMenuItem(newLabel, m.Cursor == len(view.Profiles)))
		b.WriteString("\n")
		if !view.CanContinue() {
			b.WriteString("\n")
			b.WriteString(RenderSubtitle("Pick a profile or type a new name to continue"))
		}

	case view.Screen == setupflow.ScreenAccessMethodSelection:
		b.WriteString(RenderTitle(fmt.Sprintf("How will %s use Squidly?", view.ProfileName)))
		b.WriteString("\n")
		for i, method := range setupflow.Methods {
			label := string(method)
			if method == view.SelectedMethod {
				label += "  (selected)"
			}
			b.WriteString(RenderMenuItem(label, i == m.Cursor))
			b.WriteString("\n")
		}

	case view.Screen == setupflow.ScreenStartWalkthrough:
		b.WriteString(RenderTitle("Starting walkthrough"))
		b.WriteString("\n")
		b.WriteString(RenderSubtitle(fmt.Sprintf("%s with %s", view.ProfileName, view.SelectedMethod)))
	}

	if m.Err != nil {
		b.WriteString("\n\n")
		b.WriteString(RenderError(describeSetupError(m.Err)))
	}
	return b.String()
}

func describeSetupError(err error) string {
	switch {
	case errors.Is(err, setupflow.ErrIncomplete):
		return "Choose an option first"
	case errors.Is(err, setupflow.ErrWrongScreen):
		return "The other side moved on; try again"
	case errors.Is(err, setupflow.ErrNotOpen):
		return "Setup was closed"
	default:
		return err.Error()
	}
}
