package setupflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Keys of the walkthrough frame used by the setup flow.
const (
	StatePath           = "setupState"
	ProfilesPath        = "profiles"
	SelectedProfilePath = "selectedProfile"
)

// DefaultStartStep is used when a start request names no step.
const DefaultStartStep = "calibration-size"

// Screen is a page of the setup flow.
type Screen string

const (
	ScreenProfileSelection      Screen = "profileSelection"
	ScreenAccessMethodSelection Screen = "accessMethodSelection"
	ScreenStartWalkthrough      Screen = "startWalkthrough"
)

// Method is an access method a participant can be set up for.
type Method string

const (
	MethodEyeGaze Method = "Eye Gaze"
	MethodSwitch  Method = "Switch"
	MethodCursor  Method = "Cursor"
)

// Methods lists the access methods in display order.
var Methods = []Method{MethodEyeGaze, MethodSwitch, MethodCursor}

var startSteps = map[Method]string{
	MethodEyeGaze: "calibration-size",
	MethodSwitch:  "switch-setup",
	MethodCursor:  "cursor-setup-1",
}

// StartStep returns the first walkthrough step for m.
func (m Method) StartStep() (string, bool) {
	id, ok := startSteps[m]
	return id, ok
}

// ParseMethod matches a method name ignoring case, spaces, dashes and
// underscores, so "eye-gaze" selects MethodEyeGaze.
func ParseMethod(s string) (Method, error) {
	key := methodKey(s)
	for _, m := range Methods {
		if methodKey(string(m)) == key {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

func methodKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// Profile is a participant profile offered on the first screen.
type Profile struct {
	Name      string `json:"name"`
	ProfileID string `json:"profileID,omitempty"`
}

// FallbackProfiles are offered when neither the profile store nor the session
// has any.
var FallbackProfiles = []Profile{{Name: "Alex"}, {Name: "Jordan"}, {Name: "Sam"}}

// State is the replicated value at StatePath.
type State struct {
	Screen          Screen `json:"screen"`
	SelectedProfile string `json:"selectedProfile,omitempty"`
	NewName         string `json:"newName,omitempty"`
	ProfileName     string `json:"profileName,omitempty"`
	SelectedMethod  Method `json:"selectedMethod,omitempty"`
	StartStepID     string `json:"startStepId,omitempty"`
}

// Selection is the value written to SelectedProfilePath on confirmation.
type Selection struct {
	Name   string `json:"name"`
	Method Method `json:"method"`
}

func decodeState(raw json.RawMessage) *State {
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

func decodeProfiles(raw json.RawMessage) []Profile {
	var out []Profile
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
