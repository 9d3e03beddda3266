package walkthrough

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/sdata"
	"go.uber.org/zap"
)

// StatePath is the key of the replicated state inside the walkthrough frame.
const StatePath = "state"

// DefaultDebounce is the quiet period before a local state change is published.
const DefaultDebounce = 50 * time.Millisecond

const (
	publishTimeout = 10 * time.Second
	maxInflight    = 16
)

var (
	// ErrStepNotFound is reported for step ids that were never registered.
	ErrStepNotFound = errors.New("walkthrough step not found")

	// ErrNotActive is returned by Next and Previous when no step is current.
	ErrNotActive = errors.New("walkthrough not active")
)

// Mode records where a transition originated.
type Mode int

const (
	// Driving transitions come from local input and are published.
	Driving Mode = iota
	// Following transitions replay a remote state and are never published.
	Following
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Driving:
		return "driving"
	case Following:
		return "following"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Config wires a Controller to its collaborators. Nil collaborators are
// replaced by headless implementations that only track visibility.
type Config struct {
	// Channel is the walkthrough frame of the session (state is written to
	// StatePath inside it). Nil disables replication.
	Channel sdata.Channel

	Navigator Navigator
	Windows   WindowManager
	Mask      Mask
	Modal     Modal
	Occupancy Occupancy
	Viewport  Viewport

	Clock    Clock
	Debounce time.Duration

	Logger *zap.Logger
}

// Controller drives a walkthrough and mirrors it through the session channel.
//
// Every public transition takes a single turn: a second caller waits until the
// first transition has settled or its own context is cancelled.
type Controller struct {
	channel   sdata.Channel
	navigator Navigator
	windows   WindowManager
	mask      Mask
	modal     Modal
	occupancy Occupancy
	viewport  Viewport
	logger    *zap.Logger

	turn    chan struct{}
	publish *Debouncer

	mu          sync.Mutex
	steps       map[string]*Step
	order       []string
	current     string
	active      bool
	overlays    []Removable
	fullScreen  Removable
	endCleanups []func()

	echoes *sdata.Echoes

	ready     chan struct{}
	readyOnce sync.Once
}

// NewController creates an inactive controller with no steps.
func NewController(cfg Config) *Controller {
	c := &Controller{
		channel:   cfg.Channel,
		navigator: cfg.Navigator,
		windows:   cfg.Windows,
		mask:      cfg.Mask,
		modal:     cfg.Modal,
		occupancy: cfg.Occupancy,
		viewport:  cfg.Viewport,
		logger:    cfg.Logger,
		turn:      make(chan struct{}, 1),
		steps:     make(map[string]*Step),
		ready:     make(chan struct{}),
		echoes:    sdata.NewEchoes(maxInflight),
	}

	if c.navigator == nil {
		c.navigator = nopNavigator{}
	}
	if c.windows == nil {
		c.windows = nopWindows{}
	}
	if c.mask == nil {
		c.mask = &headlessMask{}
	}
	if c.modal == nil {
		c.modal = &headlessModal{}
	}
	if c.occupancy == nil {
		c.occupancy = nopOccupancy{}
	}
	if c.viewport == nil {
		c.viewport = FixedViewport{Width: 1280, Height: 800}
	}
	if c.logger == nil {
		c.logger = logging.Named("walkthrough")
	}

	delay := cfg.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}
	c.publish = NewDebouncer(cfg.Clock, delay)

	return c
}

// RegisterStep adds or replaces a step.
func (c *Controller) RegisterStep(step Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.steps[step.ID]; !ok {
		c.order = append(c.order, step.ID)
	}
	s := step
	c.steps[step.ID] = &s
}

// Step returns the registered step with id.
func (c *Controller) Step(id string) (Step, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.steps[id]
	if !ok {
		return Step{}, false
	}
	return *s, true
}

// Steps returns all registered steps in registration order.
func (c *Controller) Steps() []Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Step, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.steps[id])
	}
	return out
}

// Snapshot returns the current step and whether the walkthrough is active.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{CurrentStepID: c.current, IsActive: c.active}
}

// Mask returns the mask overlay, for hooks.
func (c *Controller) Mask() Mask { return c.mask }

// Modal returns the instruction modal, for hooks.
func (c *Controller) Modal() Modal { return c.modal }

// Windows returns the window manager, for hooks.
func (c *Controller) Windows() WindowManager { return c.windows }

// Navigator returns the settings navigator, for hooks.
func (c *Controller) Navigator() Navigator { return c.navigator }

// TrackOverlay registers an ad-hoc overlay created by a hook. It is removed
// when the controller moves to a different step or ends.
func (c *Controller) TrackOverlay(r Removable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays = append(c.overlays, r)
}

// SetFullScreenMask replaces the full-screen mask overlay, removing the old one.
func (c *Controller) SetFullScreenMask(r Removable) {
	c.mu.Lock()
	old := c.fullScreen
	c.fullScreen = r
	c.mu.Unlock()
	if old != nil {
		old.Remove()
	}
}

// OnEnd registers fn to run once when the walkthrough next ends.
func (c *Controller) OnEnd(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endCleanups = append(c.endCleanups, fn)
}

// Ready is closed after the first remote state has been applied by Bind.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Start activates the walkthrough at stepID. Starting an active walkthrough
// or an unknown step is logged and ignored.
func (c *Controller) Start(ctx context.Context, stepID string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	active := c.active
	_, known := c.steps[stepID]
	c.mu.Unlock()

	if active {
		c.logger.Warn("Walkthrough already active", zap.String("step", stepID))
		return nil
	}
	if !known {
		c.logger.Error("Cannot start walkthrough",
			zap.String("step", stepID),
			zap.Error(ErrStepNotFound),
		)
		return nil
	}

	c.mu.Lock()
	c.active = true
	c.mu.Unlock()

	c.mask.Start()
	c.schedulePublish(Driving, stepID)

	return c.goToStep(ctx, stepID, Driving)
}

// GoToStep moves to stepID. An empty id ends the walkthrough.
func (c *Controller) GoToStep(ctx context.Context, stepID string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	return c.goToStep(ctx, stepID, Driving)
}

// Next leaves the current step and follows its NextStepID.
func (c *Controller) Next(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	step := c.currentStep()
	if step == nil {
		return ErrNotActive
	}
	if err := c.exit(ctx, step); err != nil {
		return err
	}
	return c.goToStep(ctx, step.NextStepID, Driving)
}

// Previous leaves the current step and follows its PrevStepID, preparing the
// target's settings path and window first.
func (c *Controller) Previous(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	step := c.currentStep()
	if step == nil {
		return ErrNotActive
	}
	if err := c.exit(ctx, step); err != nil {
		return err
	}

	prevID := step.PrevStepID
	if prevID != "" {
		c.mu.Lock()
		prev := c.steps[prevID]
		c.mu.Unlock()

		if prev != nil && prev.SettingsPath != "" && !prev.SkipBackPrefetch {
			if err := c.navigator.GotoPath(ctx, prev.SettingsPath); err != nil {
				return err
			}
		}
		if prev != nil && prev.Window != "" {
			if err := c.windows.OpenWindow(ctx, prev.Window); err != nil {
				return err
			}
		}
	}

	return c.goToStep(ctx, prevID, Driving)
}

// End deactivates the walkthrough and hides every overlay.
func (c *Controller) End(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	return c.end(ctx, Driving)
}

// SetState replays a remote state locally without publishing it back.
// A nil state means inactive.
func (c *Controller) SetState(ctx context.Context, st *State) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.publish.Cancel()

	c.mu.Lock()
	active := c.active
	current := c.current
	c.mu.Unlock()

	switch {
	case st == nil || !st.IsActive:
		if !active {
			return nil
		}
		c.logger.Debug("Ending walkthrough from remote")
		return c.end(ctx, Following)

	case !active:
		c.mu.Lock()
		_, known := c.steps[st.CurrentStepID]
		c.mu.Unlock()
		if !known {
			c.logger.Error("Cannot follow remote walkthrough",
				zap.String("step", st.CurrentStepID),
				zap.Error(ErrStepNotFound),
			)
			return nil
		}

		c.logger.Debug("Starting walkthrough from remote", zap.String("step", st.CurrentStepID))
		c.mu.Lock()
		c.active = true
		c.mu.Unlock()
		return c.goToStep(ctx, st.CurrentStepID, Following)

	case st.CurrentStepID != current:
		c.mu.Lock()
		_, known := c.steps[st.CurrentStepID]
		c.mu.Unlock()
		if !known {
			c.logger.Error("Cannot follow remote step",
				zap.String("from", current),
				zap.String("step", st.CurrentStepID),
				zap.Error(ErrStepNotFound),
			)
			return nil
		}

		c.logger.Debug("Changing step from remote",
			zap.String("from", current),
			zap.String("to", st.CurrentStepID),
		)
		if step := c.currentStep(); step != nil {
			if err := c.exit(ctx, step); err != nil {
				return err
			}
		}
		return c.goToStep(ctx, st.CurrentStepID, Following)

	default:
		return nil
	}
}

// Bind follows the replicated state of the configured channel until ctx is
// done or the returned function is called. Values this controller published
// itself are recognised and skipped.
func (c *Controller) Bind(ctx context.Context) (cancel func()) {
	if c.channel == nil {
		c.readyOnce.Do(func() { close(c.ready) })
		return func() {}
	}

	ctx, stop := context.WithCancel(ctx)
	unsubscribe := c.channel.OnValue(StatePath, func(raw json.RawMessage) {
		defer c.readyOnce.Do(func() { close(c.ready) })

		if ctx.Err() != nil {
			return
		}
		if c.echoes.Match(raw) {
			c.logger.Debug("Skipping own state echo")
			return
		}
		if err := c.SetState(ctx, DecodeState(raw)); err != nil && ctx.Err() == nil {
			c.logger.Error("Failed to apply remote walkthrough state", zap.Error(err))
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return stop
}

// Flush publishes a pending state change immediately.
func (c *Controller) Flush() {
	c.publish.Cancel()
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active {
		c.publishNow(c.buildState(c.Snapshot().CurrentStepID))
	}
}

func (c *Controller) acquire(ctx context.Context) error {
	select {
	case c.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) release() {
	<-c.turn
}

func (c *Controller) currentStep() *Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == "" {
		return nil
	}
	return c.steps[c.current]
}

func (c *Controller) exit(ctx context.Context, step *Step) error {
	if step.OnExit == nil {
		return nil
	}
	return step.OnExit(ctx, c)
}

func (c *Controller) goToStep(ctx context.Context, stepID string, mode Mode) error {
	if stepID == "" {
		return c.end(ctx, mode)
	}

	c.mu.Lock()
	step, ok := c.steps[stepID]
	if !ok {
		c.mu.Unlock()
		c.logger.Error("Cannot go to step",
			zap.String("step", stepID),
			zap.Error(ErrStepNotFound),
		)
		return nil
	}
	from := c.current
	var stale []Removable
	if from != stepID {
		stale = c.takeOverlaysLocked()
	}
	c.current = stepID
	c.mu.Unlock()

	for _, r := range stale {
		r.Remove()
	}

	logging.LogStepTransition(from, stepID, mode.String())

	if step.SettingsPath != "" {
		if err := c.navigator.GotoPath(ctx, step.SettingsPath); err != nil {
			return err
		}
	}
	if step.Window != "" {
		if err := c.windows.OpenWindow(ctx, step.Window); err != nil {
			return err
		}
	}
	if step.OnEnter != nil {
		if err := step.OnEnter(ctx, c); err != nil {
			return err
		}
	}

	if !c.mask.Started() {
		c.mask.Start()
	}
	c.mask.ClearAreas()
	if step.Area != nil {
		c.mask.AddArea(step.Area)
		if step.Area2 != nil {
			c.mask.AddArea(step.Area2)
		}
		if !c.mask.Shown() {
			if err := c.mask.Show(ctx); err != nil {
				return err
			}
		}
	} else if c.mask.Shown() {
		if err := c.mask.Hide(ctx); err != nil {
			return err
		}
	}

	c.modal.ClearStyles()
	c.modal.UpdateContent(step.Title, step.Subtitle, step.Content)
	c.modal.SetButtonStates(step.BackEnabled(), step.NextEnabled())

	var area *Area
	if step.Area != nil {
		a := step.Area(c.viewport.Size())
		area = &a
	}
	pos := step.Position
	if pos == "" {
		pos = PositionCenter
	}
	c.modal.SetPosition(pos, area)
	if len(step.ModalStyles) > 0 {
		c.modal.ApplyStyles(step.ModalStyles)
	}

	if step.HasModal() {
		if !c.modal.Shown() {
			if err := c.modal.Show(ctx); err != nil {
				return err
			}
		}
	} else if c.modal.Shown() {
		if err := c.modal.Hide(ctx); err != nil {
			return err
		}
	}

	c.schedulePublish(mode, stepID)
	return nil
}

func (c *Controller) end(ctx context.Context, mode Mode) error {
	c.mu.Lock()
	from := c.current
	c.active = false
	c.current = ""
	cleanups := c.endCleanups
	c.endCleanups = nil
	overlays := c.takeOverlaysLocked()
	c.mu.Unlock()

	logging.LogStepTransition(from, "", mode.String())

	if mode == Driving {
		c.publish.Schedule(func() { c.publishNow(nil) })
	}

	for _, fn := range cleanups {
		fn()
	}
	for _, r := range overlays {
		r.Remove()
	}

	if err := c.mask.Hide(ctx); err != nil {
		return err
	}
	if err := c.modal.Hide(ctx); err != nil {
		return err
	}
	c.mask.Stop()

	if mode == Driving {
		if err := c.occupancy.ReturnToDefault(ctx); err != nil {
			return fmt.Errorf("failed to return session to default view: %w", err)
		}
	}
	return nil
}

// takeOverlaysLocked detaches ad-hoc overlays for removal. c.mu must be held.
func (c *Controller) takeOverlaysLocked() []Removable {
	out := c.overlays
	c.overlays = nil
	if c.fullScreen != nil {
		out = append(out, c.fullScreen)
		c.fullScreen = nil
	}
	return out
}

func (c *Controller) buildState(stepID string) *State {
	c.mu.Lock()
	step := c.steps[stepID]
	st := &State{
		CurrentStepID: stepID,
		IsActive:      c.active,
	}
	c.mu.Unlock()

	st.ModalShown = c.modal.Shown()
	st.MaskShown = c.mask.Shown()
	st.ContentHash = ContentHash(step)
	if step != nil {
		st.ButtonStates = ButtonStates{
			CanGoBack: step.BackEnabled(),
			CanGoNext: step.NextEnabled(),
		}
	}
	return st
}

func (c *Controller) schedulePublish(mode Mode, stepID string) {
	if mode == Following || c.channel == nil {
		return
	}
	st := c.buildState(stepID)
	c.publish.Schedule(func() { c.publishNow(st) })
}

func (c *Controller) publishNow(st *State) {
	if c.channel == nil {
		return
	}

	raw, err := sdata.Encode(st)
	if err != nil {
		c.logger.Error("Failed to encode walkthrough state", zap.Error(err))
		return
	}
	if st == nil {
		raw = nil
	}

	if c.echoes.Seen(raw) {
		c.logger.Debug("Walkthrough state already replicated")
		return
	}
	c.echoes.Record(raw)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var value any
	if raw != nil {
		value = raw
	}
	if err := c.channel.Set(ctx, StatePath, value); err != nil {
		c.logger.Error("Failed to publish walkthrough state", zap.Error(err))
		return
	}
	c.logger.Debug("Published walkthrough state", zap.ByteString("state", raw))
}
