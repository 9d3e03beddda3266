package walkthrough

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestController_LinearTraversal(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()

	steps := []struct {
		name       string
		action     func() error
		wantStep   string
		wantActive bool
	}{
		{"start", func() error { return h.ctrl.Start(ctx, "a") }, "a", true},
		{"next", func() error { return h.ctrl.Next(ctx) }, "b", true},
		{"previous", func() error { return h.ctrl.Previous(ctx) }, "a", true},
		{"next again", func() error { return h.ctrl.Next(ctx) }, "b", true},
		{"next to last", func() error { return h.ctrl.Next(ctx) }, "c", true},
		{"next past end", func() error { return h.ctrl.Next(ctx) }, "", false},
	}

	for _, s := range steps {
		if err := s.action(); err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
		got := h.ctrl.Snapshot()
		if got.CurrentStepID != s.wantStep || got.IsActive != s.wantActive {
			t.Fatalf("%s: Snapshot() = %+v, want {%s %v}", s.name, got, s.wantStep, s.wantActive)
		}
	}

	if n := h.log.count("occupancy default"); n != 1 {
		t.Errorf("occupancy returned to default %d times, want 1", n)
	}
}

func TestController_StartTransitionOrder(t *testing.T) {
	h := newLinearHarness()

	if err := h.ctrl.Start(context.Background(), "a"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{
		"mask start",
		"goto home/participant/calibration",
		"window settings",
		"hook enter a",
		"mask clear",
		"mask area",
		"mask show",
		"modal content Step A",
		"modal buttons false true",
		"modal position right",
		"modal show",
	}
	if got := h.log.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %q\nwant    %q", got, want)
	}

	if h.modal.area == nil || h.modal.area.Size != (Vec{X: 1000, Y: 600}) {
		t.Errorf("modal area = %+v, want computed from the 1000x600 viewport", h.modal.area)
	}
}

func TestController_StartIgnored(t *testing.T) {
	ctx := context.Background()

	t.Run("already active", func(t *testing.T) {
		h := newLinearHarness()
		_ = h.ctrl.Start(ctx, "a")
		h.log.reset()

		if err := h.ctrl.Start(ctx, "b"); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if calls := h.log.all(); len(calls) != 0 {
			t.Errorf("second Start() made calls %q", calls)
		}
		if got := h.ctrl.Snapshot().CurrentStepID; got != "a" {
			t.Errorf("current = %s, want a", got)
		}
	})

	t.Run("unknown step", func(t *testing.T) {
		h := newLinearHarness()
		if err := h.ctrl.Start(ctx, "missing"); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if h.ctrl.Snapshot().IsActive {
			t.Error("Start() with unknown step activated the walkthrough")
		}
		if calls := h.log.all(); len(calls) != 0 {
			t.Errorf("Start() made calls %q", calls)
		}
	})
}

func TestController_GoToUnknownStep(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()
	_ = h.ctrl.Start(ctx, "a")
	h.log.reset()

	if err := h.ctrl.GoToStep(ctx, "nope"); err != nil {
		t.Fatalf("GoToStep() error = %v", err)
	}
	if got := h.ctrl.Snapshot(); got.CurrentStepID != "a" || !got.IsActive {
		t.Errorf("Snapshot() = %+v, want unchanged", got)
	}
	if calls := h.log.all(); len(calls) != 0 {
		t.Errorf("GoToStep() made calls %q", calls)
	}
}

func TestController_GoToEmptyEnds(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()
	_ = h.ctrl.Start(ctx, "a")

	if err := h.ctrl.GoToStep(ctx, ""); err != nil {
		t.Fatalf("GoToStep() error = %v", err)
	}
	if h.ctrl.Snapshot().IsActive {
		t.Error("GoToStep(\"\") left the walkthrough active")
	}
}

func TestController_NextWhenInactive(t *testing.T) {
	h := newLinearHarness()
	if err := h.ctrl.Next(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Errorf("Next() error = %v, want ErrNotActive", err)
	}
	if err := h.ctrl.Previous(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Errorf("Previous() error = %v, want ErrNotActive", err)
	}
}

func TestController_PreviousPrefetch(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()
	_ = h.ctrl.Start(ctx, "a")
	_ = h.ctrl.Next(ctx)
	h.log.reset()

	if err := h.ctrl.Previous(ctx); err != nil {
		t.Fatalf("Previous() error = %v", err)
	}

	got := h.log.all()
	want := []string{
		"hook exit b",
		"goto home/participant/calibration",
		"window settings",
		"goto home/participant/calibration",
		"window settings",
		"hook enter a",
	}
	if len(got) < len(want) || !reflect.DeepEqual(got[:len(want)], want) {
		t.Errorf("calls = %q\nwant prefix %q", got, want)
	}
}

func TestController_PreviousSkipBackPrefetch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(
		Step{ID: "gaze", Title: "Gaze", SettingsPath: "home/eyes", SkipBackPrefetch: true, NextStepID: "after"},
		Step{ID: "after", Title: "After", PrevStepID: "gaze"},
	)
	_ = h.ctrl.Start(ctx, "gaze")
	_ = h.ctrl.Next(ctx)
	h.log.reset()

	if err := h.ctrl.Previous(ctx); err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if n := h.log.count("goto home/eyes"); n != 1 {
		t.Errorf("navigated to home/eyes %d times, want 1", n)
	}
}

func TestController_PreviousFromFirstStepEnds(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()
	_ = h.ctrl.Start(ctx, "a")

	if err := h.ctrl.Previous(ctx); err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if h.ctrl.Snapshot().IsActive {
		t.Error("Previous() from first step left the walkthrough active")
	}
}

func TestController_MaskAreas(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()

	tests := []struct {
		name      string
		action    func() error
		wantAreas int
		wantShown bool
	}{
		{"one area", func() error { return h.ctrl.Start(ctx, "a") }, 1, true},
		{"two areas", func() error { return h.ctrl.Next(ctx) }, 2, true},
		{"no area hides", func() error { return h.ctrl.Next(ctx) }, 0, false},
		{"areas replaced", func() error { return h.ctrl.Previous(ctx) }, 2, true},
	}

	for _, tt := range tests {
		if err := tt.action(); err != nil {
			t.Fatalf("%s: error = %v", tt.name, err)
		}
		if len(h.mask.areas) != tt.wantAreas {
			t.Errorf("%s: mask areas = %d, want %d", tt.name, len(h.mask.areas), tt.wantAreas)
		}
		if h.mask.shown != tt.wantShown {
			t.Errorf("%s: mask shown = %v, want %v", tt.name, h.mask.shown, tt.wantShown)
		}
		if !h.mask.started {
			t.Errorf("%s: mask not started", tt.name)
		}
	}
}

func TestController_ModalVisibilityAndButtons(t *testing.T) {
	ctx := context.Background()
	h := newHarness(
		Step{ID: "intro", Title: "Hello", NextStepID: "silent", CanGoNext: Bool(true)},
		Step{ID: "silent", NextStepID: "locked", PrevStepID: "intro"},
		Step{
			ID: "locked", Content: "<p>wait</p>", PrevStepID: "silent", NextStepID: "intro",
			CanGoBack: Bool(false), CanGoNext: Bool(false),
			ModalStyles: map[string]string{"top": "10%"},
		},
	)

	tests := []struct {
		name       string
		action     func() error
		wantShown  bool
		wantBack   bool
		wantNext   bool
		wantStyles bool
	}{
		{"title shows modal", func() error { return h.ctrl.Start(ctx, "intro") }, true, false, true, false},
		{"no text hides modal", func() error { return h.ctrl.Next(ctx) }, false, true, true, false},
		{"buttons disabled", func() error { return h.ctrl.Next(ctx) }, true, false, false, true},
	}

	for _, tt := range tests {
		if err := tt.action(); err != nil {
			t.Fatalf("%s: error = %v", tt.name, err)
		}
		if h.modal.shown != tt.wantShown {
			t.Errorf("%s: modal shown = %v, want %v", tt.name, h.modal.shown, tt.wantShown)
		}
		if h.modal.back != tt.wantBack || h.modal.next != tt.wantNext {
			t.Errorf("%s: buttons = (%v, %v), want (%v, %v)", tt.name, h.modal.back, h.modal.next, tt.wantBack, tt.wantNext)
		}
		if (h.modal.styles != nil) != tt.wantStyles {
			t.Errorf("%s: styles = %v, want applied %v", tt.name, h.modal.styles, tt.wantStyles)
		}
		if h.modal.position != PositionCenter {
			t.Errorf("%s: position = %s, want center default", tt.name, h.modal.position)
		}
	}
}

func TestController_PublishDebounced(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()

	_ = h.ctrl.Start(ctx, "a")
	if n := len(h.channel.published()); n != 0 {
		t.Fatalf("published %d states before the debounce elapsed", n)
	}

	h.settle()
	sets := h.channel.published()
	if len(sets) != 1 {
		t.Fatalf("published %d states, want 1", len(sets))
	}

	step, _ := h.ctrl.Step("a")
	want := &State{
		CurrentStepID: "a",
		IsActive:      true,
		ModalShown:    true,
		MaskShown:     true,
		ContentHash:   ContentHash(&step),
		ButtonStates:  ButtonStates{CanGoBack: false, CanGoNext: true},
	}
	if got := DecodeState(sets[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("published %+v, want %+v", got, want)
	}

	_ = h.ctrl.Next(ctx)
	h.clock.Advance(10 * time.Millisecond)
	_ = h.ctrl.Next(ctx)
	h.settle()

	sets = h.channel.published()
	if len(sets) != 2 {
		t.Fatalf("published %d states after two quick steps, want 2", len(sets))
	}
	if got := DecodeState(sets[1]); got.CurrentStepID != "c" {
		t.Errorf("coalesced publish = %s, want c", got.CurrentStepID)
	}
}

func TestController_EndPublishesNull(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()
	_ = h.ctrl.Start(ctx, "a")
	h.settle()

	cleaned := false
	h.ctrl.OnEnd(func() { cleaned = true })
	removed := 0
	h.ctrl.TrackOverlay(RemovableFunc(func() { removed++ }))

	if err := h.ctrl.End(ctx); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	h.settle()

	sets := h.channel.published()
	if len(sets) != 2 || sets[1] != nil {
		t.Errorf("published %q, want a trailing null", sets)
	}
	if !cleaned {
		t.Error("OnEnd cleanup did not run")
	}
	if removed != 1 {
		t.Errorf("overlay removed %d times, want 1", removed)
	}
	if h.mask.shown || h.mask.started || h.modal.shown {
		t.Errorf("overlays still visible: mask shown=%v started=%v modal=%v", h.mask.shown, h.mask.started, h.modal.shown)
	}
	if h.log.count("occupancy default") != 1 {
		t.Error("End() did not return the session to its default view")
	}
}

func TestController_Overlays(t *testing.T) {
	ctx := context.Background()
	removed := map[string]int{}

	h := newHarness(
		Step{
			ID: "a", Title: "A", NextStepID: "b",
			OnEnter: func(_ context.Context, c *Controller) error {
				c.TrackOverlay(RemovableFunc(func() { removed["custom"]++ }))
				c.SetFullScreenMask(RemovableFunc(func() { removed["full"]++ }))
				return nil
			},
		},
		Step{ID: "b", Title: "B", PrevStepID: "a"},
	)

	_ = h.ctrl.Start(ctx, "a")
	if err := h.ctrl.GoToStep(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if removed["custom"] != 0 {
		t.Errorf("re-entering the same step removed overlays: %v", removed)
	}
	if removed["full"] != 1 {
		t.Errorf("replacing the full-screen mask removed %d, want 1", removed["full"])
	}

	_ = h.ctrl.Next(ctx)
	if removed["custom"] != 2 || removed["full"] != 2 {
		t.Errorf("moving on removed %v, want custom=2 full=2", removed)
	}
}

func TestController_HookErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	h := newHarness(Step{
		ID: "a", Title: "A",
		OnEnter: func(context.Context, *Controller) error { return boom },
	})
	if err := h.ctrl.Start(ctx, "a"); !errors.Is(err, boom) {
		t.Errorf("Start() error = %v, want %v", err, boom)
	}

	h2 := newHarness(Step{ID: "a", Title: "A", SettingsPath: "home/x"})
	h2.nav.err = boom
	if err := h2.ctrl.Start(ctx, "a"); !errors.Is(err, boom) {
		t.Errorf("Start() navigator error = %v, want %v", err, boom)
	}

	h3 := newHarness(
		Step{ID: "a", Title: "A", NextStepID: "b", OnExit: func(context.Context, *Controller) error { return boom }},
		Step{ID: "b", Title: "B"},
	)
	_ = h3.ctrl.Start(ctx, "a")
	if err := h3.ctrl.Next(ctx); !errors.Is(err, boom) {
		t.Errorf("Next() error = %v, want %v", err, boom)
	}
	if got := h3.ctrl.Snapshot().CurrentStepID; got != "a" {
		t.Errorf("failed exit moved to %s, want a", got)
	}
}

func TestController_SetState(t *testing.T) {
	ctx := context.Background()

	t.Run("remote start", func(t *testing.T) {
		h := newLinearHarness()
		if err := h.ctrl.SetState(ctx, &State{CurrentStepID: "b", IsActive: true}); err != nil {
			t.Fatal(err)
		}
		if got := h.ctrl.Snapshot(); got.CurrentStepID != "b" || !got.IsActive {
			t.Errorf("Snapshot() = %+v, want active at b", got)
		}
		if h.log.count("hook enter b") != 1 {
			t.Error("remote start did not enter b")
		}
		if !h.mask.started {
			t.Error("remote start did not start the mask")
		}
		h.settle()
		if n := len(h.channel.published()); n != 0 {
			t.Errorf("following published %d states", n)
		}
	})

	t.Run("remote step change", func(t *testing.T) {
		h := newLinearHarness()
		_ = h.ctrl.SetState(ctx, &State{CurrentStepID: "a", IsActive: true})
		h.log.reset()

		_ = h.ctrl.SetState(ctx, &State{CurrentStepID: "c", IsActive: true})
		calls := h.log.all()
		if len(calls) < 2 || calls[0] != "hook exit a" || calls[1] != "hook enter c" {
			t.Errorf("calls = %q, want exit a then enter c", calls)
		}
	})

	t.Run("same step is a no-op", func(t *testing.T) {
		h := newLinearHarness()
		_ = h.ctrl.SetState(ctx, &State{CurrentStepID: "a", IsActive: true})
		h.log.reset()

		_ = h.ctrl.SetState(ctx, &State{CurrentStepID: "a", IsActive: true, ModalShown: false})
		if calls := h.log.all(); len(calls) != 0 {
			t.Errorf("calls = %q, want none", calls)
		}
	})

	t.Run("remote end", func(t *testing.T) {
		for _, st := range []*State{nil, {CurrentStepID: "a", IsActive: false}} {
			h := newLinearHarness()
			_ = h.ctrl.Start(ctx, "a")
			h.settle()

			if err := h.ctrl.SetState(ctx, st); err != nil {
				t.Fatal(err)
			}
			if h.ctrl.Snapshot().IsActive {
				t.Errorf("SetState(%+v) left walkthrough active", st)
			}
			if h.log.count("occupancy default") != 0 {
				t.Error("remote end wrote to the occupancy channel")
			}
			h.settle()
			if n := len(h.channel.published()); n != 1 {
				t.Errorf("published %d states, want only the initial one", n)
			}
		}
	})

	t.Run("remote inactive while inactive", func(t *testing.T) {
		h := newLinearHarness()
		if err := h.ctrl.SetState(ctx, nil); err != nil {
			t.Fatal(err)
		}
		if calls := h.log.all(); len(calls) != 0 {
			t.Errorf("calls = %q, want none", calls)
		}
	})

	t.Run("unknown remote step", func(t *testing.T) {
		h := newLinearHarness()
		_ = h.ctrl.SetState(ctx, &State{CurrentStepID: "zzz", IsActive: true})
		if h.ctrl.Snapshot().IsActive {
			t.Error("unknown remote step activated the walkthrough")
		}
	})

	t.Run("unknown remote step while active", func(t *testing.T) {
		h := newLinearHarness()
		_ = h.ctrl.SetState(ctx, &State{CurrentStepID: "a", IsActive: true})
		h.log.reset()

		if err := h.ctrl.SetState(ctx, &State{CurrentStepID: "zzz", IsActive: true}); err != nil {
			t.Fatal(err)
		}
		if calls := h.log.all(); len(calls) != 0 {
			t.Errorf("calls = %q, want none", calls)
		}
		if got := h.ctrl.Snapshot(); got.CurrentStepID != "a" || !got.IsActive {
			t.Errorf("Snapshot() = %+v, want still active at a", got)
		}
	})

	t.Run("cancels pending publish", func(t *testing.T) {
		h := newLinearHarness()
		_ = h.ctrl.Start(ctx, "a")
		_ = h.ctrl.SetState(ctx, &State{CurrentStepID: "b", IsActive: true})
		h.settle()
		if n := len(h.channel.published()); n != 0 {
			t.Errorf("published %d states after a remote override, want 0", n)
		}
	})
}

func TestController_OwnStateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newLinearHarness()
	_ = h.ctrl.Start(ctx, "a")
	_ = h.ctrl.Next(ctx)
	h.settle()
	h.log.reset()

	own := h.channel.lastState()
	if err := h.ctrl.SetState(ctx, own); err != nil {
		t.Fatal(err)
	}
	if calls := h.log.all(); len(calls) != 0 {
		t.Errorf("re-applying own state made calls %q", calls)
	}
	h.settle()
	if n := len(h.channel.published()); n != 1 {
		t.Errorf("published %d states, want 1", n)
	}
}

func TestController_BindSkipsEchoes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newLinearHarness()
	stop := h.ctrl.Bind(ctx)
	defer stop()

	h.channel.deliver(StatePath, nil)
	select {
	case <-h.ctrl.Ready():
	default:
		t.Fatal("Ready() not closed after first value")
	}

	_ = h.ctrl.Start(ctx, "a")
	h.settle()
	_ = h.ctrl.Next(ctx)
	h.settle()
	sets := h.channel.published()
	if len(sets) != 2 {
		t.Fatalf("published %d states, want 2", len(sets))
	}
	h.log.reset()

	// Both echoes arrive after the controller has moved on to b.
	h.channel.deliver(StatePath, sets[0])
	h.channel.deliver(StatePath, sets[1])
	if got := h.ctrl.Snapshot().CurrentStepID; got != "b" {
		t.Errorf("stale echo moved controller to %s", got)
	}
	if calls := h.log.all(); len(calls) != 0 {
		t.Errorf("echoes made calls %q", calls)
	}

	// The same value written later by the peer is a real command.
	h.channel.deliver(StatePath, sets[0])
	if got := h.ctrl.Snapshot().CurrentStepID; got != "a" {
		t.Errorf("remote value left controller at %s, want a", got)
	}

	h.channel.deliver(StatePath, []byte(`{"currentStepId":`))
	if h.ctrl.Snapshot().IsActive {
		t.Error("malformed remote value did not end the walkthrough")
	}
}

func TestController_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	h := newHarness(
		Step{
			ID: "a", Title: "A", NextStepID: "b",
			OnEnter: func(ctx context.Context, _ *Controller) error {
				close(entered)
				<-release
				return nil
			},
		},
		Step{ID: "b", Title: "B", PrevStepID: "a"},
	)

	started := make(chan error, 1)
	go func() { started <- h.ctrl.Start(context.Background(), "a") }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.ctrl.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("concurrent Next() error = %v, want deadline exceeded", err)
	}

	next := make(chan error, 1)
	go func() { next <- h.ctrl.Next(context.Background()) }()

	close(release)
	if err := <-started; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case err := <-next:
		if err != nil {
			t.Fatalf("queued Next() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued Next() never ran")
	}
	if got := h.ctrl.Snapshot().CurrentStepID; got != "b" {
		t.Errorf("current = %s, want b", got)
	}
}

func TestController_Flush(t *testing.T) {
	h := newLinearHarness()
	_ = h.ctrl.Start(context.Background(), "a")

	h.ctrl.Flush()
	if n := len(h.channel.published()); n != 1 {
		t.Fatalf("Flush() published %d states, want 1", n)
	}
	if h.clock.pending() != 0 {
		t.Error("Flush() left a publish pending")
	}
}

func TestController_NoChannel(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{})
	c.RegisterStep(Step{ID: "only", Title: "Only"})

	stop := c.Bind(ctx)
	defer stop()
	<-c.Ready()

	if err := c.Start(ctx, "only"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.Mask().Started() || !c.Modal().Shown() {
		t.Error("headless overlays not driven")
	}
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if c.Snapshot().IsActive {
		t.Error("walkthrough still active after last step")
	}
}

func TestController_Steps(t *testing.T) {
	h := newLinearHarness()
	h.ctrl.RegisterStep(Step{ID: "a", Title: "Replaced"})

	steps := h.ctrl.Steps()
	if len(steps) != 3 || steps[0].ID != "a" || steps[0].Title != "Replaced" {
		t.Errorf("Steps() = %+v", steps)
	}
	if _, ok := h.ctrl.Step("zzz"); ok {
		t.Error("Step(zzz) found")
	}
}

func TestMode_String(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{Driving, "driving"},
		{Following, "following"},
		{Mode(7), "mode(7)"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
