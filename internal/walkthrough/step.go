package walkthrough

import "context"

// Position places the instruction modal relative to the highlighted area.
type Position string

const (
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
	PositionCenter Position = "center"
)

// Vec is a 2D point or size in viewport pixels.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Area is a highlighted region of the viewport.
type Area struct {
	Pos    Vec     `json:"pos"`
	Size   Vec     `json:"size"`
	Border float64 `json:"border"`
}

// AreaFunc computes an Area for a viewport of the given size.
type AreaFunc func(width, height float64) Area

// Hook runs side effects when a step is entered or left. Hooks run while the
// controller holds its turn and must not call Start, GoToStep, Next, Previous,
// End or SetState.
type Hook func(ctx context.Context, c *Controller) error

// Step is one screen of a walkthrough. Empty NextStepID or PrevStepID means
// the edge is not defined: following it ends the walkthrough and the matching
// modal button is disabled.
type Step struct {
	ID       string
	Title    string
	Subtitle string
	Content  string
	Position Position

	Area  AreaFunc
	Area2 AreaFunc

	SettingsPath string
	Window       string

	OnEnter Hook
	OnExit  Hook

	CanGoBack *bool
	CanGoNext *bool

	NextStepID string
	PrevStepID string

	ModalStyles map[string]string

	// SkipBackPrefetch stops Previous from navigating to this step's settings
	// path before the transition. Used by steps whose OnEnter opens its own
	// window.
	SkipBackPrefetch bool
}

// BackEnabled reports whether the modal back button is enabled for the step.
func (s *Step) BackEnabled() bool {
	return (s.CanGoBack == nil || *s.CanGoBack) && s.PrevStepID != ""
}

// NextEnabled reports whether the modal next button is enabled for the step.
func (s *Step) NextEnabled() bool {
	return (s.CanGoNext == nil || *s.CanGoNext) && s.NextStepID != ""
}

// HasModal reports whether the step shows the instruction modal.
func (s *Step) HasModal() bool {
	return s.Title != "" || s.Content != ""
}

// Bool returns a pointer to b, for Step.CanGoBack and Step.CanGoNext.
func Bool(b bool) *bool {
	return &b
}
