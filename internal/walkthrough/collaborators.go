package walkthrough

import (
	"context"
	"sync"
)

// Navigator moves the settings panel to a path such as
// "home/participant/calibration".
type Navigator interface {
	GotoPath(ctx context.Context, path string) error
}

// WindowManager opens a named feature window.
type WindowManager interface {
	OpenWindow(ctx context.Context, name string) error
}

// Mask dims the viewport except for highlighted areas.
type Mask interface {
	Start()
	Stop()
	ClearAreas()
	AddArea(area AreaFunc)
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	Shown() bool
	Started() bool
}

// Modal is the instruction panel shown next to the highlighted area.
type Modal interface {
	UpdateContent(title, subtitle, content string)
	SetButtonStates(canGoBack, canGoNext bool)
	SetPosition(pos Position, area *Area)
	ApplyStyles(styles map[string]string)
	ClearStyles()
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	Shown() bool
}

// Occupancy returns the shared session view to its default occupant when a
// walkthrough ends.
type Occupancy interface {
	ReturnToDefault(ctx context.Context) error
}

// Viewport reports the size areas are computed against.
type Viewport interface {
	Size() (width, height float64)
}

// Removable is an ad-hoc overlay created by a hook.
type Removable interface {
	Remove()
}

// RemovableFunc adapts a function to Removable.
type RemovableFunc func()

// Remove calls f.
func (f RemovableFunc) Remove() { f() }

// FixedViewport is a Viewport of constant size.
type FixedViewport struct {
	Width, Height float64
}

// Size implements Viewport.
func (v FixedViewport) Size() (float64, float64) { return v.Width, v.Height }

type nopNavigator struct{}

func (nopNavigator) GotoPath(context.Context, string) error { return nil }

type nopWindows struct{}

func (nopWindows) OpenWindow(context.Context, string) error { return nil }

type nopOccupancy struct{}

func (nopOccupancy) ReturnToDefault(context.Context) error { return nil }

// headlessMask tracks mask flags without rendering anything.
type headlessMask struct {
	mu      sync.Mutex
	started bool
	shown   bool
	areas   []AreaFunc
}

func (m *headlessMask) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
}

func (m *headlessMask) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.areas = nil
}

func (m *headlessMask) ClearAreas() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas = nil
}

func (m *headlessMask) AddArea(area AreaFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas = append(m.areas, area)
}

func (m *headlessMask) Show(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = true
	return nil
}

func (m *headlessMask) Hide(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = false
	return nil
}

func (m *headlessMask) Shown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shown
}

func (m *headlessMask) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// headlessModal tracks modal visibility without rendering anything.
type headlessModal struct {
	mu    sync.Mutex
	shown bool
}

func (*headlessModal) UpdateContent(string, string, string) {}
func (*headlessModal) SetButtonStates(bool, bool)           {}
func (*headlessModal) SetPosition(Position, *Area)          {}
func (*headlessModal) ApplyStyles(map[string]string)        {}
func (*headlessModal) ClearStyles()                         {}

func (m *headlessModal) Show(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = true
	return nil
}

func (m *headlessModal) Hide(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = false
	return nil
}

func (m *headlessModal) Shown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shown
}
