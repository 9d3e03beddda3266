// Squidly is the host and participant client for shared Squidly sessions.
//
// It joins a session on a squidly-relay, walks a participant through access
// method setup in step with the host, and offers word prediction for typing.
//
// Usage:
//
//	squidly [command] [flags]
//
// Running without arguments launches the interactive terminal client.
// See 'squidly --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/squidly/internal/config"
	"github.com/muurk/squidly/internal/discovery"
	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/predict"
	"github.com/muurk/squidly/internal/session"
	"github.com/muurk/squidly/internal/ui"
	"github.com/muurk/squidly/internal/version"
	"github.com/muurk/squidly/internal/walkthrough"
	"github.com/muurk/squidly/internal/wizard/tui"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "squidly",
	Short: "Squidly session client",
	Long: `A terminal client for shared Squidly sessions.

Joins a session on a squidly-relay as host or participant, runs the
profile and access method setup on both sides at once, and follows the
walkthrough the host drives.

If no command is specified, the interactive client launches and browses
the network for relays.`,
	Version: version.Version,
	RunE:    runClient,
}

// Global flags
var (
	configPath string
	relayURL   string
	relayName  string
	sessionID  string
	roleName   string
	stepsFile  string
	corpusDir  string
	logLevel   string
	logFile    string
	offline    bool
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", "", "Relay URL, e.g. ws://192.168.1.20:8080 (skips discovery)")
	rootCmd.PersistentFlags().StringVar(&relayName, "relay-name", "", "Join the relay advertised under this mDNS name")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session id to join (hosts generate one when empty)")
	rootCmd.PersistentFlags().StringVar(&roleName, "role", "", "Session role: host or participant")
	rootCmd.PersistentFlags().StringVar(&stepsFile, "steps", "", "Walkthrough step catalog (default is the built-in catalog)")
	rootCmd.PersistentFlags().StringVar(&corpusDir, "corpus", "", "Word prediction corpus directory (default is the starter corpus)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); empty uses "+logging.LogLevelEnvVar)

	rootCmd.Flags().BoolVar(&offline, "offline", false, "Run a local session without a relay")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs here while the client owns the terminal (default squidly.log in the config directory)")
}

// settings is the config file merged with command line flags.
type settings struct {
	registry   *config.Registry
	configPath string

	relayURL       string
	relayName      string
	sessionID      string
	role           session.Role
	autoDiscover   bool
	scanTimeout    time.Duration
	stepsFile      string
	corpusDir      string
	maxSuggestions int
	debounce       time.Duration
}

// loadSettings reads the config file and applies flag overrides.
func loadSettings() (*settings, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return nil, err
		}
	}

	registry, err := config.LoadRegistryFrom(path)
	if err != nil {
		return nil, err
	}

	s := &settings{
		registry:       registry,
		configPath:     path,
		relayURL:       registry.Session.RelayURL,
		relayName:      registry.Session.RelayName,
		sessionID:      registry.Session.SessionID,
		autoDiscover:   registry.Session.AutoDiscover,
		scanTimeout:    time.Duration(registry.Session.DiscoverTimeout) * time.Second,
		stepsFile:      registry.Walkthrough.StepsFile,
		corpusDir:      registry.Keyboard.CorpusDir,
		maxSuggestions: registry.Keyboard.MaxSuggestions,
		debounce:       time.Duration(registry.Walkthrough.DebounceMillis) * time.Millisecond,
	}

	role := registry.Session.Role
	if roleName != "" {
		role = roleName
	}
	if s.role, err = session.ParseRole(role); err != nil {
		return nil, err
	}

	if relayURL != "" {
		s.relayURL = relayURL
	}
	if relayName != "" {
		s.relayName = relayName
	}
	if sessionID != "" {
		s.sessionID = sessionID
	}
	if stepsFile != "" {
		s.stepsFile = stepsFile
	}
	if corpusDir != "" {
		s.corpusDir = corpusDir
	}

	if s.sessionID != "" && !session.ValidID(s.sessionID) {
		return nil, fmt.Errorf("invalid session id %q: only letters, digits, '-' and '_'", s.sessionID)
	}
	if s.role == session.RoleParticipant && s.sessionID == "" {
		return nil, fmt.Errorf("participants need the host's session id (--session)")
	}
	return s, nil
}

// resolveRelay looks up the relay named by --relay-name when no URL is set.
func (s *settings) resolveRelay(ctx context.Context) error {
	if s.relayURL != "" || s.relayName == "" {
		return nil
	}
	scanner := discovery.NewScanner()
	if s.scanTimeout > 0 {
		scanner.Timeout = s.scanTimeout
	}
	relay, err := scanner.WaitForRelay(ctx, s.relayName)
	if err != nil {
		return fmt.Errorf("relay lookup failed: %w", err)
	}
	logging.Info("Resolved relay", zap.String("name", s.relayName), zap.String("url", relay.BaseURL()))
	s.relayURL = relay.BaseURL()
	return nil
}

// catalog loads the configured step catalog.
func (s *settings) catalog() (*walkthrough.Catalog, error) {
	if s.stepsFile == "" {
		return walkthrough.DefaultCatalog()
	}
	return walkthrough.LoadCatalog(s.stepsFile)
}

// engine loads the configured prediction corpus.
func (s *settings) engine() (*predict.Engine, error) {
	var corpus predict.Corpus
	var err error
	if s.corpusDir == "" {
		corpus, err = predict.LoadStarterCorpus()
	} else {
		corpus, err = predict.LoadCorpus(s.corpusDir)
	}
	if err != nil {
		return nil, err
	}
	return predict.NewEngine(corpus), nil
}

// profiles serves and saves profiles through the config file.
func (s *settings) profiles() *config.ProfileStore {
	return config.NewProfileStore(s.registry, s.configPath)
}

func runClient(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	path := logFile
	if path == "" {
		path = filepath.Join(filepath.Dir(s.configPath), "squidly.log")
	}
	if logLevel != "" || os.Getenv(logging.LogLevelEnvVar) != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	if err := logging.InitializeToFile(logLevel, path); err != nil {
		return err
	}
	defer logging.Sync()

	cat, err := s.catalog()
	if err != nil {
		return err
	}
	engine, err := s.engine()
	if err != nil {
		return err
	}

	if !ui.IsTerminal() {
		return fmt.Errorf("the interactive client needs a terminal; see 'squidly --help' for line-mode commands")
	}
	if !offline {
		if err := s.resolveRelay(cmd.Context()); err != nil {
			return err
		}
	}
	if !offline && s.relayURL == "" && !s.autoDiscover {
		return fmt.Errorf("no relay configured and discovery is disabled; use --relay or --offline")
	}

	app := tui.NewAppModel(tui.AppConfig{
		RelayURL:       s.relayURL,
		SessionID:      s.sessionID,
		Role:           s.role,
		Offline:        offline,
		Catalog:        cat,
		Profiles:       s.profiles(),
		Engine:         engine,
		MaxSuggestions: s.maxSuggestions,
		Debounce:       s.debounce,
		ScanTimeout:    s.scanTimeout,
	})

	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("client error: %w", err)
	}
	return nil
}
