package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/squidly/internal/config"
	"github.com/muurk/squidly/internal/discovery"
	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/predict"
	"github.com/muurk/squidly/internal/sdata"
	"github.com/muurk/squidly/internal/server"
	"github.com/muurk/squidly/internal/session"
	"github.com/muurk/squidly/internal/setupflow"
	"github.com/muurk/squidly/internal/ui"
	"github.com/muurk/squidly/internal/urls"
	"github.com/muurk/squidly/internal/version"
	"github.com/muurk/squidly/internal/walkthrough"
	"github.com/muurk/squidly/internal/wizard/tui"
)

// Command flags
var (
	maxSuggestions int
	completeTop    bool
	startMethod    string
	watchSteps     bool
	overlayRows    int
	scanTimeout    int
	quickScan      bool
	waitInstance   string
	forceInit      bool
)

func init() {
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(walkthroughCmd)
	rootCmd.AddCommand(stepsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// initCommandLogging sends logs of line-mode commands to stderr.
func initCommandLogging() error {
	return logging.Initialize(logLevel)
}

// predictCmd prints word suggestions
var predictCmd = &cobra.Command{
	Use:   "predict [text...]",
	Short: "Suggest the next word for some text",
	Long: `Print word suggestions for the text typed so far.

Suggestions come from the n-gram corpus: the longest matching context of
previous words wins, then words starting with the fragment being typed.
Without arguments, each line read from stdin is completed in turn.`,
	Example: `  # Complete a fragment
  squidly predict "how are yo"

  # Suggest the next word after a space
  squidly predict "thank you "

  # Insert the top suggestion
  squidly predict --complete "good morn"

  # Use your own corpus
  squidly predict --corpus ./corpus "see you"`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().IntVar(&maxSuggestions, "max", 0, "Maximum suggestions (default from config)")
	predictCmd.Flags().BoolVar(&completeTop, "complete", false, "Print the text with the top suggestion inserted")
}

func runPredict(cmd *cobra.Command, args []string) error {
	if err := initCommandLogging(); err != nil {
		return err
	}
	s, err := loadSettings()
	if err != nil {
		return err
	}
	engine, err := s.engine()
	if err != nil {
		p := ui.NewPrinter(cmd.OutOrStdout())
		p.PrintResult(ui.NewFailureResult("Could not load corpus", err, []string{
			"Check --corpus points at a directory with words.json and the n-gram files",
		}).WithDocs(urls.WordPrediction))
		return err
	}

	limit := maxSuggestions
	if limit <= 0 {
		limit = s.maxSuggestions
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	complete := func(text string) {
		suggestions := engine.Suggestions(text, limit)
		if completeTop && len(suggestions) > 0 {
			out, _ := predict.InsertSuggestion(text, "", suggestions[0].Word)
			p.Println(out)
			return
		}
		p.PrintSuggestions(text, suggestions)
	}

	if len(args) > 0 {
		complete(strings.Join(args, " "))
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		complete(scanner.Text())
	}
	return scanner.Err()
}

// walkthroughCmd drives or follows a walkthrough from the command line
var walkthroughCmd = &cobra.Command{
	Use:   "walkthrough [step-id]",
	Short: "Run a walkthrough in the terminal",
	Long: `Run a walkthrough without the full-screen client.

As host the walkthrough starts at step-id, or at the first step of
--method, and is driven with commands read from stdin:

  n, next       go to the next step
  p, back       go to the previous step
  g <step-id>   jump to a step
  e, end        end the walkthrough
  q, quit       leave

As participant the steps the host shows are printed as they change.
With --relay both sides share a session; without it the walkthrough runs
locally. --watch reloads the --steps catalog whenever the file changes.`,
	Example: `  # Try the built-in eye gaze walkthrough locally
  squidly walkthrough --method eye-gaze

  # Host a session on a relay
  squidly walkthrough --relay ws://relay.local:8080 --session clinic1 switch-setup

  # Follow the host
  squidly walkthrough --relay ws://relay.local:8080 --session clinic1 --role participant

  # Edit a catalog and see changes live
  squidly walkthrough --steps ./steps.yaml --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWalkthrough,
}

func init() {
	walkthroughCmd.Flags().StringVar(&startMethod, "method", "", "Start at the first step of this access method (eye-gaze, switch, cursor)")
	walkthroughCmd.Flags().BoolVar(&watchSteps, "watch", false, "Reload --steps when the file changes")
	walkthroughCmd.Flags().IntVar(&overlayRows, "rows", 12, "Rows used to draw the overlay")
}

func runWalkthrough(cmd *cobra.Command, args []string) error {
	if err := initCommandLogging(); err != nil {
		return err
	}
	defer logging.Sync()

	s, err := loadSettings()
	if err != nil {
		return err
	}
	cat, err := s.catalog()
	if err != nil {
		return err
	}

	startID := ""
	if s.role == session.RoleHost {
		if startID, err = walkthroughStart(args); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	p := ui.NewPrinter(cmd.OutOrStdout())

	if err := s.resolveRelay(ctx); err != nil {
		return err
	}

	var ch sdata.Channel
	if s.relayURL != "" {
		if s.sessionID == "" {
			s.sessionID = session.NewID()
		}
		client, err := dialSession(ctx, p, s.relayURL, s.sessionID)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		ch = client
	}

	rt, err := tui.NewRuntime(tui.RuntimeConfig{
		Channel:  ch,
		Role:     s.role,
		Catalog:  cat,
		Debounce: s.debounce,
	})
	if err != nil {
		return err
	}
	unbind := rt.Controller.Bind(ctx)
	defer func() {
		unbind()
		// A participant leaving must not end the host's walkthrough.
		if s.role == session.RoleHost {
			rt.Close(context.Background())
		}
	}()

	params := map[string]string{"Role": string(s.role)}
	if ch != nil {
		params["Relay"] = s.relayURL
		params["Session"] = s.sessionID
	}
	p.PrintHeader("Walkthrough", "squidly walkthrough", params)

	if watchSteps {
		if s.stepsFile == "" {
			return fmt.Errorf("--watch needs a catalog file (--steps)")
		}
		err := walkthrough.WatchCatalog(ctx, s.stepsFile, func(c *walkthrough.Catalog, err error) {
			if err == nil {
				err = rt.Reload(c)
			}
			if err != nil {
				logging.Warn("Step catalog not reloaded", zap.Error(err))
				return
			}
			logging.Info("Step catalog reloaded", zap.Int("steps", len(c.Steps)))
		})
		if err != nil {
			return err
		}
	}

	if startID != "" {
		if err := rt.Controller.Start(ctx, startID); err != nil {
			return fmt.Errorf("failed to start walkthrough: %w", err)
		}
	} else {
		p.Println(ui.StepNoteStyle.Render("Waiting for the host to start a walkthrough..."))
	}

	lines := readLines(cmd.InOrStdin())
	progress := ui.NewProgress("Walkthrough", rt.Controller.Steps()).SetWidth(p.Width())
	progress.ShowSteps = false
	last := ""
	started := startID != ""

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-rt.Updates():
			snap := rt.Controller.Snapshot()
			if snap.IsActive {
				started = true
			} else if started && s.role == session.RoleHost {
				p.Println("Walkthrough ended.")
				return nil
			}
			progress.SetCurrent(snap.CurrentStepID)
			frame := progress.Render() + "\n" + rt.Overlay.Render(p.Width(), overlayRows)
			if frame != last {
				p.Println(frame)
				last = frame
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := walkthroughCommand(ctx, rt.Controller, line)
			if err != nil {
				p.Println(ui.ErrorMessageStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
		}
	}
}

// walkthroughStart picks the first step from the argument or --method.
func walkthroughStart(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if startMethod == "" {
		return setupflow.DefaultStartStep, nil
	}
	m, err := setupflow.ParseMethod(startMethod)
	if err != nil {
		return "", err
	}
	id, _ := m.StartStep()
	return id, nil
}

// walkthroughCommand applies one stdin command. quit is true when the
// command leaves the walkthrough.
func walkthroughCommand(ctx context.Context, ctrl *walkthrough.Controller, line string) (quit bool, err error) {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch strings.ToLower(verb) {
	case "":
		return false, nil
	case "n", "next":
		err = ctrl.Next(ctx)
	case "p", "back", "prev":
		err = ctrl.Previous(ctx)
	case "g", "goto":
		arg = strings.TrimSpace(arg)
		if _, ok := ctrl.Step(arg); !ok {
			return false, fmt.Errorf("%w: %q", walkthrough.ErrStepNotFound, arg)
		}
		err = ctrl.GoToStep(ctx, arg)
	case "e", "end":
		err = ctrl.End(ctx)
	case "q", "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (next, back, goto <id>, end, quit)", verb)
	}
	if errors.Is(err, walkthrough.ErrNotActive) {
		return false, fmt.Errorf("no walkthrough is running")
	}
	return false, err
}

// readLines delivers lines of r until EOF.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

// dialSession connects to the session on the relay at base, printing a
// classified failure.
func dialSession(ctx context.Context, p *ui.Printer, base, id string) (*sdata.Client, error) {
	url := session.URL(base, id)
	client := sdata.NewClient(url)

	dialCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		relayErr := server.ClassifyDialError(err, base)
		p.PrintResult(ui.NewFailureResult("Could not join the session", relayErr, server.Troubleshooting(relayErr)).
			WithDocs(urls.TroubleshootingGuide).
			AddDetail("Relay", base).
			AddDetail("Session", id))
		return nil, relayErr
	}
	logging.LogConnection(base, id, "connected")
	return client, nil
}

// stepsCmd groups catalog commands
var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Inspect walkthrough step catalogs",
}

var stepsValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a step catalog",
	Long: `Check a step catalog for missing ids, dangling next/prev edges,
unknown positions, bad grids and unknown hooks.

Without a file the --steps catalog (or the built-in one) is checked.`,
	Example: `  squidly steps validate ./steps.yaml`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runStepsValidate,
}

var stepsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the steps of a catalog",
	RunE:  runStepsList,
}

func init() {
	stepsCmd.AddCommand(stepsValidateCmd)
	stepsCmd.AddCommand(stepsListCmd)
}

func runStepsValidate(cmd *cobra.Command, args []string) error {
	if err := initCommandLogging(); err != nil {
		return err
	}
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		s.stepsFile = args[0]
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	source := s.stepsFile
	if source == "" {
		source = "built-in"
	}

	cat, err := s.catalog()
	if err == nil {
		// Building registers every hook, so unknown hook names fail here.
		_, err = tui.NewRuntime(tui.RuntimeConfig{Catalog: cat})
	}
	if err != nil {
		p.PrintResult(ui.NewFailureResult("Catalog is invalid", err, []string{
			"Every next and prev must name a step in the same file",
			"Hooks available: open-window <name>, goto-path <path>, hide-overlays, dwell-test",
		}).WithDocs(urls.Walkthroughs).AddDetail("Catalog", source))
		return err
	}

	entries := 0
	for _, st := range cat.Steps {
		if st.Prev == "" {
			entries++
		}
	}
	p.PrintSuccess("Catalog is valid", map[string]string{
		"Catalog":     source,
		"Steps":       strconv.Itoa(len(cat.Steps)),
		"Entry steps": strconv.Itoa(entries),
	})
	return nil
}

func runStepsList(cmd *cobra.Command, args []string) error {
	if err := initCommandLogging(); err != nil {
		return err
	}
	s, err := loadSettings()
	if err != nil {
		return err
	}
	cat, err := s.catalog()
	if err != nil {
		return err
	}
	steps, err := cat.Build(walkthrough.BuildOptions{Hooks: map[string]walkthrough.Hook{
		"dwell-test": func(context.Context, *walkthrough.Controller) error { return nil },
	}})
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	progress := ui.NewProgress("Steps", steps).SetWidth(p.Width())
	progress.ShowBar = false
	p.Println(progress.Render())
	return nil
}

// discoverCmd browses for relays
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find relays on the local network",
	Long: `Browse for squidly-relay instances advertised over mDNS.

Relays started with --advertise announce themselves on the local network.`,
	Example: `  # Browse for 5 seconds (default)
  squidly discover

  # Longer browse on busy networks
  squidly discover --timeout 15

  # Short scan
  squidly discover --quick

  # Wait for one relay and print its URL
  squidly discover --wait "Living room"`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Browse timeout in seconds")
	discoverCmd.Flags().BoolVar(&quickScan, "quick", false, "Browse for two seconds only")
	discoverCmd.Flags().StringVar(&waitInstance, "wait", "", "Wait for the relay advertised under this name and print its URL")
	discoverCmd.MarkFlagsMutuallyExclusive("quick", "wait")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := initCommandLogging(); err != nil {
		return err
	}
	p := ui.NewPrinter(cmd.OutOrStdout())

	if waitInstance != "" {
		scanner := discovery.NewScanner()
		scanner.Timeout = time.Duration(scanTimeout) * time.Second
		relay, err := scanner.WaitForRelay(cmd.Context(), waitInstance)
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		p.Println(relay.BaseURL())
		return nil
	}

	var relays []*discovery.Relay
	var err error
	if quickScan {
		p.Printf("Browsing for relays (timeout: %s)...\n\n", discovery.QuickScanTimeout)
		relays, err = discovery.QuickScan(cmd.Context())
	} else {
		p.Printf("Browsing for relays (timeout: %ds)...\n\n", scanTimeout)
		scanner := discovery.NewScanner()
		scanner.Timeout = time.Duration(scanTimeout) * time.Second
		relays, err = scanner.ScanForRelays(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(relays) == 0 {
		p.PrintResult(ui.NewWarningResult("No relays found", nil))
		p.Println("Troubleshooting:")
		p.Println("  - Start a relay with: squidly-relay server --advertise <name>")
		p.Println("  - Check this computer is on the same network as the relay")
		p.Println("  - Try increasing --timeout for slower networks")
		p.Println("  - Use --relay to give the URL directly if mDNS is blocked")
		p.Println("  - See " + urls.RelaySetup)
		return nil
	}

	p.Printf("Found %d relay(s):\n\n", len(relays))
	for i, r := range relays {
		p.Printf("%d. %s\n", i+1, r.Instance)
		p.Printf("   URL:     %s\n", r.BaseURL())
		p.Printf("   Host:    %s\n", r.Hostname)
		if v := r.GetMetadata(discovery.TXTVersion); v != "" {
			p.Printf("   Version: %s\n", v)
		}
		p.Newline()
	}
	p.Println("Use 'squidly --relay <url>' to join a session on a relay")
	return nil
}

// configCmd manages the config file
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file without asking")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	force := forceInit
	if _, err := os.Stat(path); err == nil && !force {
		if !ui.ConfirmOverwrite(cmd.InOrStdin(), p, path) {
			return nil
		}
		force = true
	}

	if err := config.CreateDefaultConfig(path, force); err != nil {
		return err
	}
	p.PrintSuccess("Configuration written", map[string]string{"Path": path})
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(s.registry)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", s.configPath)
	_, err = out.Write(data)
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String("squidly"))
	},
}
