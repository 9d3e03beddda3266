package walkthrough

import (
	"bytes"
	"encoding/json"
	"strconv"
	"unicode/utf16"
)

// ButtonStates mirrors the enabled state of the modal navigation buttons.
type ButtonStates struct {
	CanGoBack bool `json:"canGoBack"`
	CanGoNext bool `json:"canGoNext"`
}

// State is the replicated projection of the controller. It is always derived
// from the current step and overlay visibility, never authored directly.
type State struct {
	CurrentStepID string       `json:"currentStepId"`
	IsActive      bool         `json:"isActive"`
	ModalShown    bool         `json:"modalShown"`
	MaskShown     bool         `json:"maskShown"`
	ContentHash   string       `json:"contentHash"`
	ButtonStates  ButtonStates `json:"buttonStates"`
}

// Snapshot is the local view of the controller used by front-ends.
type Snapshot struct {
	CurrentStepID string
	IsActive      bool
}

// DecodeState parses a replicated value. Null, absent and malformed values all
// decode to nil, which means the walkthrough is inactive.
func DecodeState(raw []byte) *State {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil
	}
	var st State
	if err := json.Unmarshal(v, &st); err != nil {
		return nil
	}
	return &st
}

type hashedContent struct {
	Title    string   `json:"title,omitempty"`
	Subtitle string   `json:"subtitle,omitempty"`
	Content  string   `json:"content,omitempty"`
	Position Position `json:"position,omitempty"`
}

// ContentHash fingerprints the visible content of a step so peers can tell
// whether they render the same text. Returns "" for a nil step.
func ContentHash(step *Step) string {
	if step == nil {
		return ""
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(hashedContent{
		Title:    step.Title,
		Subtitle: step.Subtitle,
		Content:  step.Content,
		Position: step.Position,
	})

	return stringHash(string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))))
}

// stringHash is the 31-multiplier hash over UTF-16 code units with 32-bit
// wraparound, rendered in base 36 with a leading minus for negative values.
func stringHash(s string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	return strconv.FormatInt(int64(h), 36)
}
