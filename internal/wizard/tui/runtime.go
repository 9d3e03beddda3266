package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/predict"
	"github.com/muurk/squidly/internal/sdata"
	"github.com/muurk/squidly/internal/session"
	"github.com/muurk/squidly/internal/setupflow"
	"github.com/muurk/squidly/internal/ui"
	"github.com/muurk/squidly/internal/walkthrough"
)

// refreshMsg tells the program that shared state changed and the view should
// be redrawn from the runtime.
type refreshMsg struct{}

// RuntimeConfig wires a Runtime.
type RuntimeConfig struct {
	// Channel is the root of the session's data tree. Nil keeps everything
	// in a local in-memory store.
	Channel sdata.Channel

	Role           session.Role
	Catalog        *walkthrough.Catalog
	Profiles       setupflow.ProfileStore
	Engine         *predict.Engine
	MaxSuggestions int
	Debounce       time.Duration
	Clock          walkthrough.Clock

	// Hooks are added to the built-in ones when the catalog is registered.
	Hooks map[string]walkthrough.Hook
}

// DwellTestWindow is the window opened by the dwell-test hook.
const DwellTestWindow = "dwellTest"

// Runtime is one side of a session: the walkthrough controller and setup flow
// replicated over the session channel, drawn through a terminal overlay.
type Runtime struct {
	Channel        sdata.Channel
	Role           session.Role
	Overlay        *ui.Overlay
	Controller     *walkthrough.Controller
	Setup          *setupflow.Flow
	Occupancy      *session.Occupancy
	Engine         *predict.Engine
	MaxSuggestions int

	logger *zap.Logger
	events chan tea.Msg
	unbind func()

	hooks map[string]walkthrough.Hook

	mu     sync.Mutex
	window string
	path   string
	dwell  bool
}

// NewRuntime builds the controller and setup flow for cfg and registers the
// catalog's steps. The catalog defaults to the built-in one.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	logger := logging.Named("tui")

	ch := cfg.Channel
	if ch == nil {
		ch = sdata.NewStore(logger)
	}

	cat := cfg.Catalog
	if cat == nil {
		var err error
		if cat, err = walkthrough.DefaultCatalog(); err != nil {
			return nil, err
		}
	}

	r := &Runtime{
		Channel:        ch,
		Role:           cfg.Role,
		Overlay:        ui.NewOverlay(),
		Occupancy:      session.NewOccupancy(ch),
		Engine:         cfg.Engine,
		MaxSuggestions: cfg.MaxSuggestions,
		logger:         logger,
		events:         make(chan tea.Msg, 1),
	}
	if r.MaxSuggestions <= 0 {
		r.MaxSuggestions = predict.DefaultMaxSuggestions
	}

	frame := session.Walkthrough(ch)
	r.Controller = walkthrough.NewController(walkthrough.Config{
		Channel:   frame,
		Navigator: r,
		Windows:   r,
		Mask:      r.Overlay.MaskOverlay(),
		Modal:     r.Overlay,
		Viewport:  r.Overlay,
		Occupancy: r.Occupancy,
		Clock:     cfg.Clock,
		Debounce:  cfg.Debounce,
		Logger:    logging.Named("walkthrough"),
	})
	r.hooks = map[string]walkthrough.Hook{"dwell-test": r.dwellTest}
	for name, h := range cfg.Hooks {
		r.hooks[name] = h
	}
	if err := r.Reload(cat); err != nil {
		return nil, err
	}

	r.Setup = setupflow.New(setupflow.Config{
		Channel:     frame,
		Profiles:    cfg.Profiles,
		Walkthrough: r.Controller,
		Mask:        r.Overlay.MaskOverlay(),
		Occupancy:   r.Occupancy,
		OnChange:    func(setupflow.View) { r.notify() },
		Logger:      logging.Named("setup"),
	})

	r.Overlay.OnChange(r.notify)

	return r, nil
}

// Reload registers the steps of cat, replacing steps with the same id.
func (r *Runtime) Reload(cat *walkthrough.Catalog) error {
	return cat.Register(r.Controller, walkthrough.BuildOptions{Hooks: r.hooks})
}

// Start binds the controller to the session and opens the setup flow: the
// host publishes a fresh profile screen, a participant follows whatever the
// host shows.
func (r *Runtime) Start(ctx context.Context) error {
	r.unbind = r.Controller.Bind(ctx)

	if r.Role == session.RoleParticipant {
		return r.Setup.Attach(ctx)
	}
	return r.Setup.Open(ctx)
}

// Close ends the local walkthrough and setup flow and stops following the
// session. The channel is left open.
func (r *Runtime) Close(ctx context.Context) {
	if r.unbind != nil {
		r.unbind()
	}
	if r.Controller.Snapshot().IsActive {
		if err := r.Controller.End(ctx); err != nil {
			r.logger.Warn("Failed to end walkthrough", zap.Error(err))
		}
	}
	if err := r.Setup.Close(ctx, false); err != nil {
		r.logger.Warn("Failed to close setup", zap.Error(err))
	}
	r.Controller.Flush()
}

// Suggestions returns completions for the text being typed.
func (r *Runtime) Suggestions(input string) []predict.WordEntry {
	if r.Engine == nil {
		return nil
	}
	return r.Engine.Suggestions(input, r.MaxSuggestions)
}

// OpenWindow implements walkthrough.WindowManager. The terminal has no feature
// windows, so the name is shown beside the overlay instead.
func (r *Runtime) OpenWindow(_ context.Context, name string) error {
	r.mu.Lock()
	r.window = name
	r.mu.Unlock()
	r.logger.Debug("Opened window", zap.String("window", name))
	r.notify()
	return nil
}

// GotoPath implements walkthrough.Navigator.
func (r *Runtime) GotoPath(_ context.Context, path string) error {
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
	r.notify()
	return nil
}

// Surface returns the open window, the settings path and whether a dwell test
// is running.
func (r *Runtime) Surface() (window, path string, dwell bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.window, r.path, r.dwell
}

// dwellTest opens the dwell test window for the length of the step. The
// window covers the whole screen, so it is the controller's full-screen mask.
func (r *Runtime) dwellTest(ctx context.Context, c *walkthrough.Controller) error {
	// Replacing a previous mask closes the window, so replace it first.
	c.SetFullScreenMask(walkthrough.RemovableFunc(func() { r.closeWindow(DwellTestWindow) }))
	if err := c.Windows().OpenWindow(ctx, DwellTestWindow); err != nil {
		return err
	}
	r.setDwell(true)
	c.TrackOverlay(walkthrough.RemovableFunc(func() { r.setDwell(false) }))
	return nil
}

// closeWindow closes name if it is still the open window.
func (r *Runtime) closeWindow(name string) {
	r.mu.Lock()
	closed := r.window == name
	if closed {
		r.window = ""
	}
	r.mu.Unlock()
	if closed {
		r.notify()
	}
}

func (r *Runtime) setDwell(on bool) {
	r.mu.Lock()
	r.dwell = on
	r.mu.Unlock()
	r.notify()
}

// notify queues a redraw. Redraws coalesce: one pending refresh covers any
// number of changes.
func (r *Runtime) notify() {
	select {
	case r.events <- refreshMsg{}:
	default:
	}
}

// Updates delivers a value whenever the session, setup flow or overlay changed
// since it was last read.
func (r *Runtime) Updates() <-chan tea.Msg {
	return r.events
}

// waitForEvent delivers the next runtime event to the program.
func (r *Runtime) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-r.events
	}
}
