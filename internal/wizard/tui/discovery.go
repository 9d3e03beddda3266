package tui

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/squidly/internal/discovery"
	"github.com/muurk/squidly/internal/urls"
)

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	relays []*discovery.Relay
	err    error
}

// discoveryKeyMap defines key bindings for the relay list
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Manual key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Manual, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Manual, k.Quit},
	}
}

// manualModeKeyMap defines key bindings for manual URL entry
type manualModeKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (m manualModeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{m.Confirm, m.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (m manualModeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{m.Confirm, m.Cancel}}
}

// relayItem wraps a Relay for use with bubbles/list
type relayItem struct {
	relay *discovery.Relay
}

// FilterValue implements list.Item
func (r relayItem) FilterValue() string {
	return r.relay.Instance + " " + r.relay.IP + " " + r.relay.Hostname
}

// Title returns the relay name for list display
func (r relayItem) Title() string {
	return r.relay.Instance
}

// Description returns relay details for list display
func (r relayItem) Description() string {
	return r.relay.BaseURL()
}

// relayDelegate renders relays as cards
type relayDelegate struct {
	width int
}

func (d relayDelegate) Height() int                             { return 7 }
func (d relayDelegate) Spacing() int                            { return 1 }
func (d relayDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d relayDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ri, ok := item.(relayItem)
	if !ok {
		return
	}
	relay := ri.relay
	selected := index == m.Index()

	versionText := relay.GetMetadata(discovery.TXTVersion)
	if versionText == "" {
		versionText = "unknown"
	}
	security := "plain (ws)"
	if relay.TLS() {
		security = "TLS (wss)"
	}

	var content strings.Builder
	if selected {
		content.WriteString(SelectedMenuItemStyle.Render("→ " + relay.Instance))
	} else {
		content.WriteString("  " + relay.Instance)
	}
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("  Address:  %s\n", relay.BaseURL()))
	content.WriteString(fmt.Sprintf("  Version:  %s\n", versionText))
	content.WriteString(fmt.Sprintf("  Security: %s", security))

	cardWidth := d.width - 6
	if cardWidth < MinTerminalWidth-6 {
		cardWidth = MinTerminalWidth - 6
	}
	if cardWidth > MaxContentWidth-6 {
		cardWidth = MaxContentWidth - 6
	}

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2).
		MarginLeft(2).
		Width(cardWidth)
	if selected {
		cardStyle = cardStyle.BorderForeground(HighlightColor)
	}

	_, _ = fmt.Fprint(w, cardStyle.Render(content.String()))
}

// DiscoveryModel is the relay discovery screen
type DiscoveryModel struct {
	Scanning  bool
	RelayList list.Model
	Selected  bool
	Err       error

	ManualMode bool
	URLInput   textinput.Model
	manualURL  string

	ScanTimeout   time.Duration
	Width         int
	Height        int
	Spinner       spinner.Model
	ProgressBar   progress.Model
	ScanStartTime time.Time
	Help          help.Model
	Keys          discoveryKeyMap
	ManualKeys    manualModeKeyMap
}

// NewDiscoveryModel creates a discovery screen that scans for timeout.
func NewDiscoveryModel(timeout time.Duration) DiscoveryModel {
	if timeout <= 0 {
		timeout = discovery.DefaultScanTimeout
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	urlInput := textinput.New()
	urlInput.Placeholder = "ws://192.168.1.20:8080"
	urlInput.CharLimit = 256
	urlInput.Width = 50

	progressBar := progress.New(progress.WithDefaultGradient())
	progressBar.Width = 40

	relayList := list.New([]list.Item{}, relayDelegate{width: MinTerminalWidth}, 0, 0)
	relayList.Title = "Discovered Relays"
	relayList.SetShowStatusBar(false)
	relayList.SetFilteringEnabled(true)
	relayList.Styles.Title = TitleStyle

	return DiscoveryModel{
		RelayList:   relayList,
		URLInput:    urlInput,
		ScanTimeout: timeout,
		Spinner:     s,
		ProgressBar: progressBar,
		Help:        help.New(),
		Keys: discoveryKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
			Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
			Manual: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "enter URL")),
			Quit:   key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit")),
		},
		ManualKeys: manualModeKeyMap{
			Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
			Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		},
	}
}

// Init starts scanning immediately
func (m DiscoveryModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		scanRelays(m.ScanTimeout),
		m.Spinner.Tick,
	)
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (DiscoveryModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManualMode(msg)
		}
		if !m.Scanning {
			if updated, cmd, handled := m.updateNormalMode(msg); handled {
				return updated, cmd
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.RelayList.SetDelegate(relayDelegate{width: msg.Width})
		m.RelayList.SetWidth(msg.Width - 4)
		m.RelayList.SetHeight(msg.Height - 10)

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = time.Now()

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.relays))
		for i, r := range msg.relays {
			items[i] = relayItem{relay: r}
		}
		m.RelayList.SetItems(items)

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.ManualMode && !m.Scanning {
		m.RelayList, cmd = m.RelayList.Update(msg)
	}
	return m, cmd
}

// updateNormalMode handles keys on the relay list. handled is false for keys
// the list itself should see.
func (m DiscoveryModel) updateNormalMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd, bool) {
	if m.RelayList.FilterState() == list.Filtering {
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.Keys.Enter):
		if m.RelayList.SelectedItem() != nil {
			m.Selected = true
		}
		return m, nil, true

	case key.Matches(msg, m.Keys.Rescan):
		m.RelayList.SetItems([]list.Item{})
		m.Err = nil
		return m, tea.Batch(
			func() tea.Msg { return scanStartMsg{} },
			scanRelays(m.ScanTimeout),
			m.Spinner.Tick,
		), true

	case key.Matches(msg, m.Keys.Manual):
		m.ManualMode = true
		m.URLInput.SetValue("")
		return m, m.URLInput.Focus(), true
	}
	return m, nil, false
}

// updateManualMode handles keyboard input in manual URL entry mode
func (m DiscoveryModel) updateManualMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ManualKeys.Cancel):
		m.ManualMode = false
		m.URLInput.SetValue("")
		m.URLInput.Blur()
		m.Err = nil
		return m, nil

	case key.Matches(msg, m.ManualKeys.Confirm):
		base, err := normalizeRelayURL(m.URLInput.Value())
		if err != nil {
			m.Err = err
			return m, nil
		}
		m.manualURL = base
		m.ManualMode = false
		m.Selected = true
		m.URLInput.Blur()
		m.Err = nil
		return m, nil
	}

	var cmd tea.Cmd
	m.URLInput, cmd = m.URLInput.Update(msg)
	return m, cmd
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content, helpText string
	switch {
	case m.ManualMode:
		content = m.renderManualEntry()
		helpText = m.Help.View(m.ManualKeys)
	case m.Scanning:
		content = m.renderScanning(width)
		helpText = "ctrl+c quit"
	default:
		content = m.renderRelayResults()
		helpText = m.Help.View(m.Keys)
	}

	return RenderApplicationContainer(content, helpText, m.Width, m.Height)
}

// renderScanning renders a centered scanning display whose bar fills over the
// scan timeout
func (m DiscoveryModel) renderScanning(width int) string {
	elapsed := time.Since(m.ScanStartTime)
	fraction := float64(elapsed) / float64(m.ScanTimeout)
	if fraction > 1 {
		fraction = 1
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(fmt.Sprintf("%s SEARCHING FOR RELAYS", m.Spinner.View())),
		SubtitleStyle.Render("Looking for Squidly relays on your network..."),
		"",
		m.ProgressBar.ViewAs(fraction),
		"",
		SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds", int(elapsed.Seconds()))),
		"",
	)
	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderRelayResults renders the relay list or "no relays found" message
func (m DiscoveryModel) renderRelayResults() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case m.Err != nil:
		b.WriteString(RenderError(fmt.Sprintf("Scan failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString(troubleshootingText())

	case len(m.RelayList.Items()) == 0:
		b.WriteString("  ")
		b.WriteString(WarningTextStyle.Render("⚠ No relays found on your network"))
		b.WriteString("\n\n")
		b.WriteString(troubleshootingText())

	default:
		b.WriteString(m.RelayList.View())
	}
	return b.String()
}

func troubleshootingText() string {
	return "  Troubleshooting:\n" +
		"    • Start a relay with: squidly-relay server --advertise <name>\n" +
		"    • Check this computer is on the same network as the relay\n" +
		"    • Some networks block mDNS; press m to enter the relay URL\n" +
		"    • See " + urls.RelaySetup + "\n"
}

// renderManualEntry renders the manual relay URL dialog
func (m DiscoveryModel) renderManualEntry() string {
	var b strings.Builder
	b.WriteString(RenderSubtitle("Enter relay URL"))
	b.WriteString("\n\n  URL: ")
	b.WriteString(m.URLInput.View())
	b.WriteString("\n\n")
	if m.Err != nil {
		b.WriteString(RenderError(m.Err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

// SelectedURL returns the base URL of the chosen relay, or "" when nothing is
// selected yet.
func (m DiscoveryModel) SelectedURL() string {
	if !m.Selected {
		return ""
	}
	if m.manualURL != "" {
		return m.manualURL
	}
	if item, ok := m.RelayList.SelectedItem().(relayItem); ok {
		return item.relay.BaseURL()
	}
	return ""
}

// normalizeRelayURL accepts host:port or a ws/wss/http/https URL and returns
// the relay base URL.
func normalizeRelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("relay URL is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay URL %q has no host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// scanRelays is a command that browses for relays
func scanRelays(timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		scanner := discovery.NewScanner()
		scanner.Timeout = timeout

		relays, err := scanner.ScanForRelays(context.Background())
		return scanCompleteMsg{relays: relays, err: err}
	}
}
