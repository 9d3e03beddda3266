package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/squidly/internal/predict"
	"github.com/muurk/squidly/internal/ui"
)

// maxHistory is how many submitted lines the keyboard screen keeps.
const maxHistory = 8

// keyboardKeyMap defines key bindings for the prediction keyboard
type keyboardKeyMap struct {
	Prev   key.Binding
	Next   key.Binding
	Accept key.Binding
	Submit key.Binding
	Back   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Accept, k.Submit, k.Back}
}

// FullHelp returns keybindings for the expanded help view
func (k keyboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Prev, k.Next, k.Accept}, {k.Submit, k.Back}}
}

// KeyboardModel is a text field with word prediction. Suggestions follow the
// text in front of the caret; accepting one replaces the word being typed.
// LastWord is the word most recently finished with a space.
type KeyboardModel struct {
	rt     *Runtime
	before string

	Input       textinput.Model
	Suggestions []predict.WordEntry
	Selected    int
	History     []string
	LastWord    string
	Done        bool
	Width       int
	Height      int
	Help        help.Model
	Keys        keyboardKeyMap
}

// NewKeyboardModel creates the keyboard screen for rt.
func NewKeyboardModel(rt *Runtime) KeyboardModel {
	input := textinput.New()
	input.Placeholder = "Start typing..."
	input.CharLimit = 500
	input.Width = 60
	input.Focus()

	m := KeyboardModel{
		rt:    rt,
		Input: input,
		Help:  help.New(),
		Keys: keyboardKeyMap{
			Prev:   key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous suggestion")),
			Next:   key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next suggestion")),
			Accept: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "accept")),
			Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
			Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		},
	}
	m.refresh()
	return m
}

// Update handles key presses
func (m KeyboardModel) Update(msg tea.Msg) (KeyboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Input.Width = max(msg.Width-16, 20)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Back):
			m.Done = true
			return m, nil

		case key.Matches(msg, m.Keys.Prev):
			if n := len(m.Suggestions); n > 0 {
				m.Selected = (m.Selected + n - 1) % n
			}
			return m, nil

		case key.Matches(msg, m.Keys.Next):
			if n := len(m.Suggestions); n > 0 {
				m.Selected = (m.Selected + 1) % n
			}
			return m, nil

		case key.Matches(msg, m.Keys.Accept):
			m.accept()
			return m, nil

		case key.Matches(msg, m.Keys.Submit):
			if line := strings.TrimSpace(m.Input.Value()); line != "" {
				m.History = append(m.History, line)
				if len(m.History) > maxHistory {
					m.History = m.History[len(m.History)-maxHistory:]
				}
			}
			m.Input.SetValue("")
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	m.refresh()
	return m, cmd
}

// accept inserts the selected suggestion at the caret.
func (m *KeyboardModel) accept() {
	if m.Selected < 0 || m.Selected >= len(m.Suggestions) {
		return
	}
	before, after := m.split()
	text, caret := predict.InsertSuggestion(before, after, m.Suggestions[m.Selected].Word)
	m.Input.SetValue(text)
	m.Input.SetCursor(len([]rune(text[:caret])))
	m.refresh()
}

// split returns the text on either side of the caret.
func (m KeyboardModel) split() (string, string) {
	runes := []rune(m.Input.Value())
	pos := min(m.Input.Position(), len(runes))
	return string(runes[:pos]), string(runes[pos:])
}

func (m *KeyboardModel) refresh() {
	before, _ := m.split()
	if endsWord(before) && !endsWord(m.before) && len(before) > len(m.before) {
		if w := predict.LastWord(before); w != "" {
			m.LastWord = w
		}
	}
	m.before = before
	m.Suggestions = m.rt.Suggestions(before)
	m.Selected = 0
}

func endsWord(text string) bool {
	return strings.HasSuffix(text, " ")
}

// View renders the keyboard screen
func (m KeyboardModel) View() string {
	width := max(m.Width, MinTerminalWidth)

	var b strings.Builder
	b.WriteString(RenderTitle("Word prediction"))
	b.WriteString("\n")
	b.WriteString("  ")
	b.WriteString(m.Input.View())
	b.WriteString("\n")
	if m.LastWord != "" {
		b.WriteString(RenderSubtitle("  Last word: " + m.LastWord))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(m.Suggestions) == 0 {
		b.WriteString(RenderSubtitle("  No suggestions"))
	} else {
		b.WriteString(ui.RenderSuggestions("", m.Suggestions, m.Selected, width-6))
	}
	b.WriteString("\n")

	if len(m.History) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderSubtitle("Sent"))
		b.WriteString("\n")
		for _, line := range m.History {
			b.WriteString(MenuItemStyle.Render(line))
			b.WriteString("\n")
		}
	}

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}
