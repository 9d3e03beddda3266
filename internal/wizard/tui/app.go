package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/predict"
	"github.com/muurk/squidly/internal/sdata"
	"github.com/muurk/squidly/internal/server"
	"github.com/muurk/squidly/internal/session"
	"github.com/muurk/squidly/internal/setupflow"
	"github.com/muurk/squidly/internal/ui"
	"github.com/muurk/squidly/internal/urls"
	"github.com/muurk/squidly/internal/walkthrough"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery   Screen = "discovery"
	ScreenConnecting  Screen = "connecting"
	ScreenSetup       Screen = "setup"
	ScreenWalkthrough Screen = "walkthrough"
	ScreenKeyboard    Screen = "keyboard"
	ScreenFailure     Screen = "failure"
)

// connectTimeout bounds dialing the relay and the first session reads.
const connectTimeout = 20 * time.Second

// Messages for the session lifecycle
type connectedMsg struct {
	rt     *Runtime
	client *sdata.Client
	err    error
}

type disconnectedMsg struct {
	client *sdata.Client
}

// AppConfig configures the application.
type AppConfig struct {
	// RelayURL is the relay base URL (ws://host:port). Empty starts with
	// discovery unless Offline is set.
	RelayURL  string
	SessionID string
	Role      session.Role

	// Offline runs the session against a local in-memory store.
	Offline bool

	Catalog        *walkthrough.Catalog
	Profiles       setupflow.ProfileStore
	Engine         *predict.Engine
	MaxSuggestions int
	Debounce       time.Duration
	ScanTimeout    time.Duration
}

// appKeyMap defines the bindings available on every session screen
type appKeyMap struct {
	Keyboard key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k appKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Keyboard, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k appKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Keyboard, k.Help, k.Quit}}
}

// failureKeyMap defines key bindings for the failure screen
type failureKeyMap struct {
	Retry    key.Binding
	Discover key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k failureKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Retry, k.Discover, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k failureKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Retry, k.Discover, k.Quit}}
}

// AppModel is the top-level coordinator model that manages screen transitions
type AppModel struct {
	// Current screen state
	CurrentScreen  Screen
	PreviousScreen Screen

	// Screen models
	DiscoveryModel   DiscoveryModel
	SetupModel       SetupModel
	WalkthroughModel WalkthroughModel
	KeyboardModel    KeyboardModel

	// Shared application state
	Config    AppConfig
	RelayURL  string
	Runtime   *Runtime
	Client    *sdata.Client
	LastError error

	// UI state
	Width    int
	Height   int
	ShowHelp bool
	Spinner  spinner.Model
	logger   *zap.Logger

	// Help
	Help        help.Model
	Keys        appKeyMap
	FailureKeys failureKeyMap
}

// NewAppModel creates the application. It connects straight away when a relay
// URL is configured or the session is offline, and scans for relays otherwise.
func NewAppModel(cfg AppConfig) AppModel {
	if cfg.SessionID == "" {
		cfg.SessionID = session.NewID()
	}
	if cfg.Role == "" {
		cfg.Role = session.RoleHost
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	model := AppModel{
		Config:   cfg,
		RelayURL: cfg.RelayURL,
		Spinner:  s,
		logger:   logging.Named("tui"),
		Help:     help.New(),
		Keys: appKeyMap{
			Keyboard: key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "keyboard")),
			Help:     key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
			Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		},
		FailureKeys: failureKeyMap{
			Retry:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
			Discover: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "discover")),
			Quit:     key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit")),
		},
	}

	if cfg.Offline || cfg.RelayURL != "" {
		model.CurrentScreen = ScreenConnecting
	} else {
		model.CurrentScreen = ScreenDiscovery
		model.DiscoveryModel = NewDiscoveryModel(cfg.ScanTimeout)
	}
	return model
}

// Init initializes the application
func (m AppModel) Init() tea.Cmd {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.DiscoveryModel.Init()
	case ScreenConnecting:
		return tea.Batch(m.Spinner.Tick, m.connect())
	default:
		return nil
	}
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.DiscoveryModel, _ = m.DiscoveryModel.Update(msg)
		if m.Runtime != nil {
			m.SetupModel, _ = m.SetupModel.Update(msg)
			m.WalkthroughModel, _ = m.WalkthroughModel.Update(msg)
			m.KeyboardModel, _ = m.KeyboardModel.Update(msg)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Sequence(m.shutdown(), tea.Quit)
		case m.ShowHelp:
			m.ShowHelp = false
			return m, nil
		case key.Matches(msg, m.Keys.Help) && m.inSession():
			m.ShowHelp = true
			return m, nil
		case key.Matches(msg, m.Keys.Keyboard) && m.inSession():
			if m.CurrentScreen == ScreenKeyboard {
				return m.leaveKeyboard()
			}
			m.PreviousScreen = m.CurrentScreen
			m.CurrentScreen = ScreenKeyboard
			return m, nil
		}

	case spinner.TickMsg:
		if m.CurrentScreen == ScreenConnecting {
			var cmd tea.Cmd
			m.Spinner, cmd = m.Spinner.Update(msg)
			return m, cmd
		}

	case connectedMsg:
		return m.onConnected(msg)

	case disconnectedMsg:
		if msg.client != m.Client {
			return m, nil
		}
		logging.LogConnection(m.RelayURL, m.Config.SessionID, "lost")
		m.LastError = server.ClassifyDialError(fmt.Errorf("connection to relay lost"), m.RelayURL)
		m.closeSession()
		m.CurrentScreen = ScreenFailure
		return m, nil

	case refreshMsg:
		if m.Runtime == nil {
			return m, nil
		}
		next, cmd := m.followSession()
		return next, tea.Batch(cmd, m.Runtime.waitForEvent())
	}

	return m.updateCurrentScreen(msg)
}

// updateCurrentScreen routes updates to the currently active screen
func (m AppModel) updateCurrentScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.CurrentScreen {
	case ScreenDiscovery:
		m.DiscoveryModel, cmd = m.DiscoveryModel.Update(msg)

		if url := m.DiscoveryModel.SelectedURL(); url != "" {
			m.RelayURL = url
			m.CurrentScreen = ScreenConnecting
			return m, tea.Batch(m.Spinner.Tick, m.connect())
		}

		if !m.DiscoveryModel.Scanning && !m.DiscoveryModel.ManualMode &&
			m.DiscoveryModel.RelayList.FilterState() != list.Filtering {
			if keyMsg, ok := msg.(tea.KeyMsg); ok && key.Matches(keyMsg, m.DiscoveryModel.Keys.Quit) {
				return m, tea.Quit
			}
		}

	case ScreenSetup:
		m.SetupModel, cmd = m.SetupModel.Update(msg)

	case ScreenWalkthrough:
		m.WalkthroughModel, cmd = m.WalkthroughModel.Update(msg)

	case ScreenKeyboard:
		m.KeyboardModel, cmd = m.KeyboardModel.Update(msg)
		if m.KeyboardModel.Done {
			m.KeyboardModel.Done = false
			return m.leaveKeyboard()
		}

	case ScreenFailure:
		return m.handleFailureScreen(msg)
	}

	return m, cmd
}

// handleFailureScreen handles user input on the failure screen
func (m AppModel) handleFailureScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.FailureKeys.Retry):
		m.CurrentScreen = ScreenConnecting
		return m, tea.Batch(m.Spinner.Tick, m.connect())

	case key.Matches(keyMsg, m.FailureKeys.Discover):
		m.CurrentScreen = ScreenDiscovery
		m.DiscoveryModel = NewDiscoveryModel(m.Config.ScanTimeout)
		m.DiscoveryModel.Width = m.Width
		m.DiscoveryModel.Height = m.Height
		return m, m.DiscoveryModel.Init()

	case key.Matches(keyMsg, m.FailureKeys.Quit):
		return m, tea.Quit
	}
	return m, nil
}

// onConnected installs a freshly started runtime and its screens.
func (m AppModel) onConnected(msg connectedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.LastError = msg.err
		m.CurrentScreen = ScreenFailure
		return m, nil
	}

	m.Runtime = msg.rt
	m.Client = msg.client
	m.LastError = nil

	size := tea.WindowSizeMsg{Width: m.Width, Height: m.Height}
	m.SetupModel, _ = NewSetupModel(m.Runtime).Update(size)
	m.WalkthroughModel, _ = NewWalkthroughModel(m.Runtime).Update(size)
	m.KeyboardModel, _ = NewKeyboardModel(m.Runtime).Update(size)
	m.CurrentScreen = ScreenSetup

	cmds := []tea.Cmd{m.Runtime.waitForEvent()}
	if m.Client != nil {
		cmds = append(cmds, watchDisconnect(m.Client))
	}
	next, cmd := m.followSession()
	return next, tea.Batch(append(cmds, cmd)...)
}

// followSession shows the walkthrough while one is active and the setup flow
// otherwise. The keyboard screen stays up until it is dismissed.
func (m AppModel) followSession() (AppModel, tea.Cmd) {
	if m.Runtime == nil || m.CurrentScreen == ScreenKeyboard {
		return m, nil
	}

	target := ScreenSetup
	if m.Runtime.Controller.Snapshot().IsActive {
		target = ScreenWalkthrough
	}
	if target != m.CurrentScreen {
		m.PreviousScreen = m.CurrentScreen
		m.CurrentScreen = target
	}
	return m, nil
}

func (m AppModel) leaveKeyboard() (AppModel, tea.Cmd) {
	m.CurrentScreen = m.PreviousScreen
	return m.followSession()
}

func (m AppModel) inSession() bool {
	switch m.CurrentScreen {
	case ScreenSetup, ScreenWalkthrough, ScreenKeyboard:
		return m.Runtime != nil
	}
	return false
}

// connect dials the relay (or builds an offline store) and starts the runtime.
func (m AppModel) connect() tea.Cmd {
	cfg := m.Config
	base := m.RelayURL
	logger := m.logger

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		var client *sdata.Client
		var ch sdata.Channel
		if !cfg.Offline {
			url := session.URL(base, cfg.SessionID)
			client = sdata.NewClient(url, sdata.WithLogger(logging.Named("sdata")))
			if err := client.Connect(ctx); err != nil {
				logger.Warn("Failed to connect to relay", zap.String("url", url), zap.Error(err))
				return connectedMsg{err: server.ClassifyDialError(err, base)}
			}
			logging.LogConnection(base, cfg.SessionID, "connected")
			ch = client
		}

		rt, err := NewRuntime(RuntimeConfig{
			Channel:        ch,
			Role:           cfg.Role,
			Catalog:        cfg.Catalog,
			Profiles:       cfg.Profiles,
			Engine:         cfg.Engine,
			MaxSuggestions: cfg.MaxSuggestions,
			Debounce:       cfg.Debounce,
		})
		if err == nil {
			err = rt.Start(ctx)
		}
		if err != nil {
			if client != nil {
				_ = client.Close()
			}
			return connectedMsg{err: err}
		}
		return connectedMsg{rt: rt, client: client}
	}
}

// watchDisconnect reports when the relay connection of client ends.
func watchDisconnect(client *sdata.Client) tea.Cmd {
	return func() tea.Msg {
		<-client.Done()
		return disconnectedMsg{client: client}
	}
}

// closeSession drops the runtime and connection without blocking the update
// loop on the relay.
func (m *AppModel) closeSession() {
	rt, client := m.Runtime, m.Client
	m.Runtime, m.Client = nil, nil
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rt != nil {
			rt.Close(ctx)
		}
		if client != nil {
			_ = client.Close()
		}
	}()
}

// shutdown closes the session before the program exits.
func (m AppModel) shutdown() tea.Cmd {
	rt, client := m.Runtime, m.Client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rt != nil {
			rt.Close(ctx)
		}
		if client != nil {
			_ = client.Close()
		}
		return nil
	}
}

// View renders the current screen
// Each screen handles its own container using RenderApplicationContainer()
func (m AppModel) View() string {
	if m.ShowHelp {
		return RenderModal(m.renderHelp(), max(m.Width, MinTerminalWidth), max(m.Height, 24))
	}

	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.DiscoveryModel.View()
	case ScreenConnecting:
		return m.renderConnectingScreen()
	case ScreenSetup:
		return m.SetupModel.View()
	case ScreenWalkthrough:
		return m.WalkthroughModel.View()
	case ScreenKeyboard:
		return m.KeyboardModel.View()
	case ScreenFailure:
		return m.renderFailureScreen()
	default:
		return "Unknown screen"
	}
}

func (m AppModel) renderConnectingScreen() string {
	var b strings.Builder
	b.WriteString("\n")
	if m.Config.Offline {
		b.WriteString(RenderTitle(m.Spinner.View() + " Starting offline session"))
	} else {
		b.WriteString(RenderTitle(m.Spinner.View() + " Connecting to relay"))
		b.WriteString("\n")
		b.WriteString(StatusStyle.Render(session.URL(m.RelayURL, m.Config.SessionID)))
	}
	return RenderApplicationContainer(b.String(), "ctrl+c quit", m.Width, m.Height)
}

// renderFailureScreen renders the connection failure with troubleshooting
func (m AppModel) renderFailureScreen() string {
	width := max(m.Width, MinTerminalWidth) - 6

	result := ui.NewFailureResult("Could not join the session", m.LastError, server.Troubleshooting(m.LastError)).
		WithDocs(urls.TroubleshootingGuide).
		AddDetail("Relay", m.RelayURL).
		AddDetail("Session", m.Config.SessionID).
		SetWidth(width)

	return RenderApplicationContainer(result.Render(), m.Help.View(m.FailureKeys), m.Width, m.Height)
}

func (m AppModel) renderHelp() string {
	var b strings.Builder
	b.WriteString(RenderTitle("Help"))
	b.WriteString("\n")
	b.WriteString(StatusStyle.Render(fmt.Sprintf("Session %s as %s", m.Config.SessionID, m.Config.Role)))
	b.WriteString("\n\n")

	h := help.New()
	h.ShowAll = true
	b.WriteString(h.View(m.Keys))
	b.WriteString("\n")
	switch m.CurrentScreen {
	case ScreenSetup:
		b.WriteString(h.View(m.SetupModel.Keys))
	case ScreenWalkthrough:
		b.WriteString(h.View(m.WalkthroughModel.Keys))
	case ScreenKeyboard:
		b.WriteString(h.View(m.KeyboardModel.Keys))
	}
	b.WriteString("\n\n")
	b.WriteString(RenderSubtitle("Guide: " + urls.GettingStarted))
	b.WriteString("\n")
	b.WriteString(RenderSubtitle("Press any key to close"))
	return RenderInfo(b.String())
}
