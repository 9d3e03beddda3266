package walkthrough

import (
	"reflect"
	"testing"
)

func TestStringHash(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"a", "2p"},
		{`{"title":"A","subtitle":"B","content":"<p>x</p>","position":"left"}`, "lciubn"},
		{`{"title":"Hi 👶"}`, "-3isr0m"},
	}

	for _, tt := range tests {
		if got := stringHash(tt.in); got != tt.want {
			t.Errorf("stringHash(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentHash(t *testing.T) {
	tests := []struct {
		name string
		step *Step
		want string
	}{
		{"nil step", nil, ""},
		{
			name: "all fields",
			step: &Step{Title: "A", Subtitle: "B", Content: "<p>x</p>", Position: PositionLeft},
			want: "lciubn",
		},
		{"astral characters", &Step{Title: "Hi 👶"}, "-3isr0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentHash(tt.step); got != tt.want {
				t.Errorf("ContentHash() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContentHash_IgnoresNonContentFields(t *testing.T) {
	a := &Step{ID: "a", Title: "Same", NextStepID: "x", SettingsPath: "home"}
	b := &Step{ID: "b", Title: "Same", PrevStepID: "y", Window: "settings"}
	if ContentHash(a) != ContentHash(b) {
		t.Error("hash depends on fields that are not displayed")
	}

	c := &Step{Title: "Same", Position: PositionRight}
	if ContentHash(a) == ContentHash(c) {
		t.Error("hash ignores position")
	}
}

func TestDecodeState(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *State
	}{
		{"empty", "", nil},
		{"null", " null ", nil},
		{"malformed", `{"currentStepId":`, nil},
		{"wrong type", `"a"`, nil},
		{
			name: "full state",
			raw:  `{"currentStepId":"a","isActive":true,"modalShown":true,"maskShown":false,"contentHash":"2p","buttonStates":{"canGoBack":false,"canGoNext":true}}`,
			want: &State{
				CurrentStepID: "a",
				IsActive:      true,
				ModalShown:    true,
				ContentHash:   "2p",
				ButtonStates:  ButtonStates{CanGoNext: true},
			},
		},
		{"missing fields", `{"isActive":true}`, &State{IsActive: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeState([]byte(tt.raw))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeState(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}
