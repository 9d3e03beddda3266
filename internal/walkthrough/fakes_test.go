package walkthrough

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// callLog records collaborator calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.all() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeNavigator struct {
	log *callLog
	err error
}

func (n *fakeNavigator) GotoPath(_ context.Context, path string) error {
	n.log.add("goto %s", path)
	return n.err
}

type fakeWindows struct{ log *callLog }

func (w *fakeWindows) OpenWindow(_ context.Context, name string) error {
	w.log.add("window %s", name)
	return nil
}

type fakeMask struct {
	log     *callLog
	started bool
	shown   bool
	areas   []AreaFunc
}

func (m *fakeMask) Start() {
	m.log.add("mask start")
	m.started = true
}

func (m *fakeMask) Stop() {
	m.log.add("mask stop")
	m.started = false
	m.areas = nil
}

func (m *fakeMask) ClearAreas() {
	m.log.add("mask clear")
	m.areas = nil
}

func (m *fakeMask) AddArea(a AreaFunc) {
	m.log.add("mask area")
	m.areas = append(m.areas, a)
}

func (m *fakeMask) Shown() bool   { return m.shown }
func (m *fakeMask) Started() bool { return m.started }

func (m *fakeMask) Show(context.Context) error {
	m.log.add("mask show")
	m.shown = true
	return nil
}
func (m *fakeMask) Hide(context.Context) error {
	m.log.add("mask hide")
	m.shown = false
	return nil
}

type fakeModal struct {
	log      *callLog
	shown    bool
	title    string
	back     bool
	next     bool
	position Position
	area     *Area
	styles   map[string]string
}

func (m *fakeModal) UpdateContent(title, _, _ string) {
	m.log.add("modal content %s", title)
	m.title = title
}
func (m *fakeModal) SetButtonStates(back, next bool) {
	m.log.add("modal buttons %v %v", back, next)
	m.back, m.next = back, next
}
func (m *fakeModal) SetPosition(pos Position, area *Area) {
	m.log.add("modal position %s", pos)
	m.position, m.area = pos, area
}
func (m *fakeModal) ApplyStyles(styles map[string]string) {
	m.log.add("modal styles")
	m.styles = styles
}
func (m *fakeModal) ClearStyles() { m.styles = nil }
func (m *fakeModal) Shown() bool  { return m.shown }

func (m *fakeModal) Show(context.Context) error {
	m.log.add("modal show")
	m.shown = true
	return nil
}
func (m *fakeModal) Hide(context.Context) error {
	m.log.add("modal hide")
	m.shown = false
	return nil
}

type fakeOccupancy struct{ log *callLog }

func (o *fakeOccupancy) ReturnToDefault(context.Context) error {
	o.log.add("occupancy default")
	return nil
}

// fakeChannel records writes and lets tests push remote values synchronously.
type fakeChannel struct {
	mu     sync.Mutex
	sets   []json.RawMessage
	values map[string]json.RawMessage
	subs   map[string][]func(json.RawMessage)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		values: make(map[string]json.RawMessage),
		subs:   make(map[string][]func(json.RawMessage)),
	}
}

func (c *fakeChannel) Set(_ context.Context, path string, value any) error {
	var raw json.RawMessage
	switch v := value.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = data
	}
	c.mu.Lock()
	c.sets = append(c.sets, raw)
	c.values[path] = raw
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Update(context.Context, string, map[string]any) error { return nil }

func (c *fakeChannel) Get(_ context.Context, path string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[path], nil
}

func (c *fakeChannel) OnValue(path string, fn func(json.RawMessage)) func() {
	c.mu.Lock()
	c.subs[path] = append(c.subs[path], fn)
	c.mu.Unlock()
	return func() {}
}

// deliver calls every subscriber of path on the caller's goroutine.
func (c *fakeChannel) deliver(path string, raw json.RawMessage) {
	c.mu.Lock()
	subs := append([]func(json.RawMessage){}, c.subs[path]...)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(raw)
	}
}

func (c *fakeChannel) published() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.sets...)
}

func (c *fakeChannel) lastState() *State {
	sets := c.published()
	if len(sets) == 0 {
		return nil
	}
	return DecodeState(sets[len(sets)-1])
}

// fakeClock runs scheduled functions when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// harness bundles a controller with recording collaborators.
type harness struct {
	ctrl    *Controller
	log     *callLog
	mask    *fakeMask
	modal   *fakeModal
	nav     *fakeNavigator
	channel *fakeChannel
	clock   *fakeClock
}

func newHarness(steps ...Step) *harness {
	log := &callLog{}
	h := &harness{
		log:     log,
		mask:    &fakeMask{log: log},
		modal:   &fakeModal{log: log},
		nav:     &fakeNavigator{log: log},
		channel: newFakeChannel(),
		clock:   &fakeClock{},
	}
	h.ctrl = NewController(Config{
		Channel:   h.channel,
		Navigator: h.nav,
		Windows:   &fakeWindows{log: log},
		Mask:      h.mask,
		Modal:     h.modal,
		Occupancy: &fakeOccupancy{log: log},
		Viewport:  FixedViewport{Width: 1000, Height: 600},
		Clock:     h.clock,
	})
	for _, s := range steps {
		h.ctrl.RegisterStep(s)
	}
	return h
}

// settle fires the pending debounced publish.
func (h *harness) settle() {
	h.clock.Advance(DefaultDebounce)
}

// hookRecorder returns a hook that logs its name.
func hookRecorder(log *callLog, name string) Hook {
	return func(context.Context, *Controller) error {
		log.add("hook %s", name)
		return nil
	}
}

func fullArea(w, h float64) Area {
	return Area{Size: Vec{X: w, Y: h}}
}

// linearSteps returns A -> B -> C with enter/exit hooks logged.
func linearSteps(log *callLog) []Step {
	return []Step{
		{
			ID: "a", Title: "Step A", Position: PositionRight,
			Area:         fullArea,
			SettingsPath: "home/participant/calibration",
			Window:       "settings",
			NextStepID:   "b",
			OnEnter:      hookRecorder(log, "enter a"),
			OnExit:       hookRecorder(log, "exit a"),
		},
		{
			ID: "b", Title: "Step B",
			Area:       fullArea,
			Area2:      fullArea,
			NextStepID: "c",
			PrevStepID: "a",
			OnEnter:    hookRecorder(log, "enter b"),
			OnExit:     hookRecorder(log, "exit b"),
		},
		{
			ID: "c", Title: "Step C",
			PrevStepID: "b",
			OnEnter:    hookRecorder(log, "enter c"),
			OnExit:     hookRecorder(log, "exit c"),
		},
	}
}

func newLinearHarness() *harness {
	h := newHarness()
	for _, s := range linearSteps(h.log) {
		h.ctrl.RegisterStep(s)
	}
	return h
}
