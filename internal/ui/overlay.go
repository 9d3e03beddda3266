package ui

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/squidly/internal/walkthrough"
)

// Default viewport the overlay reports to the walkthrough controller.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
)

const (
	maskShade  = "░"
	maskClear  = " "
	modalWidth = 44
)

var (
	lineBreak = regexp.MustCompile(`(?i)\s*<br\s*/?>\s*`)
	htmlTag   = regexp.MustCompile(`<[^>]*>`)
)

// Overlay renders the walkthrough mask and instruction modal in a terminal.
// It implements walkthrough.Modal and walkthrough.Viewport; MaskOverlay
// returns the walkthrough.Mask half. Render draws the current state and
// OnChange is called after every mutation.
type Overlay struct {
	width, height float64

	mu       sync.Mutex
	onChange func()

	started    bool
	maskShown  bool
	areas      []walkthrough.AreaFunc
	modalShown bool
	title      string
	subtitle   string
	content    string
	canBack    bool
	canNext    bool
	position   walkthrough.Position
	anchor     *walkthrough.Area
	styles     map[string]string
}

// NewOverlay creates a hidden overlay for a viewport of the default size.
func NewOverlay() *Overlay {
	return &Overlay{
		width:    DefaultViewportWidth,
		height:   DefaultViewportHeight,
		position: walkthrough.PositionCenter,
	}
}

// OnChange registers fn to be called after every change. fn runs on the
// caller's goroutine without the overlay lock held.
func (o *Overlay) OnChange(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = fn
}

// update applies fn under the lock and then notifies.
func (o *Overlay) update(fn func()) {
	o.mu.Lock()
	fn()
	cb := o.onChange
	o.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Size implements walkthrough.Viewport.
func (o *Overlay) Size() (float64, float64) {
	return o.width, o.height
}

// Start implements walkthrough.Mask.
func (o *Overlay) Start() { o.update(func() { o.started = true }) }

// Stop implements walkthrough.Mask.
func (o *Overlay) Stop() {
	o.update(func() {
		o.started = false
		o.areas = nil
	})
}

// ClearAreas implements walkthrough.Mask.
func (o *Overlay) ClearAreas() { o.update(func() { o.areas = nil }) }

// AddArea implements walkthrough.Mask.
func (o *Overlay) AddArea(area walkthrough.AreaFunc) {
	if area == nil {
		return
	}
	o.update(func() { o.areas = append(o.areas, area) })
}

// Started implements walkthrough.Mask.
func (o *Overlay) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// UpdateContent implements walkthrough.Modal.
func (o *Overlay) UpdateContent(title, subtitle, content string) {
	o.update(func() {
		o.title = plainText(title)
		o.subtitle = plainText(subtitle)
		o.content = plainText(content)
	})
}

// SetButtonStates implements walkthrough.Modal.
func (o *Overlay) SetButtonStates(canGoBack, canGoNext bool) {
	o.update(func() {
		o.canBack = canGoBack
		o.canNext = canGoNext
	})
}

// SetPosition implements walkthrough.Modal.
func (o *Overlay) SetPosition(pos walkthrough.Position, area *walkthrough.Area) {
	o.update(func() {
		o.position = pos
		if area != nil {
			a := *area
			o.anchor = &a
		} else {
			o.anchor = nil
		}
	})
}

// ApplyStyles implements walkthrough.Modal. Recognised keys are "width"
// (columns, or a percentage of the render width) and "border-color".
func (o *Overlay) ApplyStyles(styles map[string]string) {
	o.update(func() {
		if o.styles == nil {
			o.styles = make(map[string]string, len(styles))
		}
		for k, v := range styles {
			o.styles[strings.ToLower(k)] = v
		}
	})
}

// ClearStyles implements walkthrough.Modal.
func (o *Overlay) ClearStyles() { o.update(func() { o.styles = nil }) }

// MaskOverlay adapts the overlay to walkthrough.Mask, whose Show, Hide and
// Shown differ from the modal's.
func (o *Overlay) MaskOverlay() walkthrough.Mask { return maskView{o} }

// Show implements walkthrough.Modal.
func (o *Overlay) Show(context.Context) error {
	o.update(func() { o.modalShown = true })
	return nil
}

// Hide implements walkthrough.Modal.
func (o *Overlay) Hide(context.Context) error {
	o.update(func() { o.modalShown = false })
	return nil
}

// Shown implements walkthrough.Modal.
func (o *Overlay) Shown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.modalShown
}

// MaskShown reports whether the mask is visible.
func (o *Overlay) MaskShown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maskShown
}

// ModalText returns the modal's title, subtitle and content as plain text.
func (o *Overlay) ModalText() (title, subtitle, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.title, o.subtitle, o.content
}

// Buttons returns the modal button states.
func (o *Overlay) Buttons() (canGoBack, canGoNext bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canBack, o.canNext
}

// Placement returns where the modal sits and the area it is placed beside.
func (o *Overlay) Placement() (walkthrough.Position, *walkthrough.Area) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.anchor == nil {
		return o.position, nil
	}
	a := *o.anchor
	return o.position, &a
}

// Areas returns the highlighted areas computed for the overlay's viewport.
func (o *Overlay) Areas() []walkthrough.Area {
	o.mu.Lock()
	fns := append([]walkthrough.AreaFunc(nil), o.areas...)
	o.mu.Unlock()

	out := make([]walkthrough.Area, 0, len(fns))
	for _, fn := range fns {
		out = append(out, fn(o.width, o.height))
	}
	return out
}

// Render draws the mask as a cols x rows character map of the viewport with
// the modal placed beside the highlighted area. An overlay with nothing shown
// renders as the empty string.
func (o *Overlay) Render(cols, rows int) string {
	o.mu.Lock()
	maskShown := o.maskShown
	modalShown := o.modalShown
	o.mu.Unlock()

	var parts []string
	if maskShown && cols > 0 && rows > 0 {
		parts = append(parts, o.renderMask(cols, rows))
	}
	if modalShown {
		parts = append(parts, o.renderModal(cols))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (o *Overlay) renderMask(cols, rows int) string {
	areas := o.Areas()
	shade := lipgloss.NewStyle().Foreground(MutedColor)
	lit := lipgloss.NewStyle().Background(WarningColor)

	cellW := o.width / float64(cols)
	cellH := o.height / float64(rows)

	var b strings.Builder
	for r := 0; r < rows; r++ {
		y := (float64(r) + 0.5) * cellH
		for c := 0; c < cols; c++ {
			x := (float64(c) + 0.5) * cellW
			if inAny(areas, x, y) {
				b.WriteString(lit.Render(maskClear))
			} else {
				b.WriteString(shade.Render(maskShade))
			}
		}
		if r < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func inAny(areas []walkthrough.Area, x, y float64) bool {
	for _, a := range areas {
		if x >= a.Pos.X && x < a.Pos.X+a.Size.X && y >= a.Pos.Y && y < a.Pos.Y+a.Size.Y {
			return true
		}
	}
	return false
}

func (o *Overlay) renderModal(cols int) string {
	o.mu.Lock()
	title, subtitle, content := o.title, o.subtitle, o.content
	canBack, canNext := o.canBack, o.canNext
	pos := o.position
	styles := make(map[string]string, len(o.styles))
	for k, v := range o.styles {
		styles[k] = v
	}
	o.mu.Unlock()

	if cols < MinTerminalWidth {
		cols = MinTerminalWidth
	}
	width := modalWidthFor(styles, cols)

	var lines []string
	if title != "" {
		lines = append(lines, ModalTitleStyle.Render(title))
	}
	if subtitle != "" {
		lines = append(lines, ModalSubtitleStyle.Render(subtitle))
	}
	if content != "" {
		lines = append(lines, "", ModalContentStyle.Width(width-4).Render(content))
	}
	lines = append(lines, "", renderButtons(canBack, canNext))

	box := ModalBoxStyle(width)
	if c, ok := styles["border-color"]; ok {
		box = box.BorderForeground(lipgloss.Color(c))
	}
	rendered := box.Render(strings.Join(lines, "\n"))

	align := lipgloss.Center
	switch pos {
	case walkthrough.PositionLeft:
		align = lipgloss.Left
	case walkthrough.PositionRight:
		align = lipgloss.Right
	}
	return lipgloss.PlaceHorizontal(cols, align, rendered)
}

func renderButtons(canBack, canNext bool) string {
	back := DisabledButtonStyle.Render("◀ Back")
	if canBack {
		back = ButtonStyle.Render("◀ Back")
	}
	next := DisabledButtonStyle.Render("Next ▶")
	if canNext {
		next = ButtonStyle.Render("Next ▶")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, back, " ", next)
}

// modalWidthFor applies a "width" style, clamped to the render width.
func modalWidthFor(styles map[string]string, cols int) int {
	width := modalWidth
	if v, ok := styles["width"]; ok {
		v = strings.TrimSpace(v)
		if pct, found := strings.CutSuffix(v, "%"); found {
			if n, err := strconv.ParseFloat(pct, 64); err == nil {
				width = int(float64(cols) * n / 100)
			}
		} else if n, err := strconv.Atoi(strings.TrimSuffix(v, "ch")); err == nil {
			width = n
		}
	}
	if width > cols-2 {
		width = cols - 2
	}
	if width < 20 {
		width = 20
	}
	return width
}

// plainText turns step markup into terminal text: <br> becomes a newline and
// other tags are dropped.
func plainText(s string) string {
	s = lineBreak.ReplaceAllString(s, "\n")
	s = htmlTag.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// maskView exposes the mask half of an Overlay.
type maskView struct{ o *Overlay }

func (m maskView) Start()                            { m.o.Start() }
func (m maskView) Stop()                             { m.o.Stop() }
func (m maskView) ClearAreas()                       { m.o.ClearAreas() }
func (m maskView) AddArea(area walkthrough.AreaFunc) { m.o.AddArea(area) }
func (m maskView) Started() bool                     { return m.o.Started() }
func (m maskView) Shown() bool                       { return m.o.MaskShown() }

func (m maskView) Show(context.Context) error {
	m.o.update(func() { m.o.maskShown = true })
	return nil
}

func (m maskView) Hide(context.Context) error {
	m.o.update(func() { m.o.maskShown = false })
	return nil
}
