package walkthrough

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func dwellHooks(log *callLog) map[string]Hook {
	return map[string]Hook{"dwell-test": hookRecorder(log, "dwell-test")}
}

func TestDefaultCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}

	steps, err := cat.Build(BuildOptions{Hooks: dwellHooks(&callLog{})})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(steps) != len(cat.IDs()) {
		t.Fatalf("built %d steps for %d ids", len(steps), len(cat.IDs()))
	}

	byID := make(map[string]Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	chains := []struct {
		start string
		end   string
		steps int
	}{
		{"calibration-size", "walkthrough-complete", 12},
		{"switch-setup", "switch-complete", 5},
		{"cursor-setup-1", "cursor-complete", 7},
	}

	for _, ch := range chains {
		t.Run(ch.start, func(t *testing.T) {
			var path []string
			for id := ch.start; id != ""; id = byID[id].NextStepID {
				if len(path) > len(steps) {
					t.Fatalf("chain from %s loops: %v", ch.start, path)
				}
				path = append(path, id)
			}
			if len(path) != ch.steps || path[len(path)-1] != ch.end {
				t.Errorf("chain = %v, want %d steps ending at %s", path, ch.steps, ch.end)
			}

			// Walking back from the end retraces the chain.
			back := 0
			for id := ch.end; id != ""; id = byID[id].PrevStepID {
				back++
				if back > len(steps) {
					t.Fatalf("previous chain from %s loops", ch.end)
				}
			}
			if back != ch.steps {
				t.Errorf("previous chain has %d steps, want %d", back, ch.steps)
			}
		})
	}

	gaze := byID["eye-gaze-setup-2"]
	if !gaze.SkipBackPrefetch || gaze.OnEnter == nil {
		t.Errorf("eye-gaze-setup-2 = %+v, want skip_back_prefetch and an on_enter hook", gaze)
	}
	if strings.HasSuffix(byID["calibration-size"].Content, "\n") {
		t.Error("content was not trimmed")
	}
	if byID["calibration-size"].Area == nil {
		t.Error("calibration-size has no area")
	}
}

func TestDefaultCatalog_NeedsDwellHook(t *testing.T) {
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatal(err)
	}
	_, err = cat.Build(BuildOptions{})
	if err == nil || !strings.Contains(err.Error(), `unknown hook "dwell-test"`) {
		t.Errorf("Build() error = %v, want unknown dwell-test hook", err)
	}
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "steps: [", "failed to parse"},
		{"future version", "version: 2\nsteps: []", "unsupported step catalog version 2"},
		{"missing id", "steps:\n  - title: x", "step 1: missing id"},
		{"duplicate id", "steps:\n  - id: a\n  - id: a", "step a: duplicate id"},
		{"dangling next", "steps:\n  - id: a\n    next: b", `next step "b"`},
		{"dangling prev", "steps:\n  - id: a\n    prev: z", `previous step "z"`},
		{"bad position", "steps:\n  - id: a\n    position: top", `unknown position "top"`},
		{"area2 alone", "steps:\n  - id: a\n    area2: {row_end: 1, col_end: 1}", "area2 without area"},
		{"grid outside", "steps:\n  - id: a\n    area: {rows: 2, cols: 2, row_end: 3, col_end: 1}", "outside 2x2 grid"},
		{"grid reversed", "steps:\n  - id: a\n    area: {row_start: 2, row_end: 1, col_end: 1}", "before start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			if err == nil {
				t.Fatal("ParseCatalog() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseCatalog_DanglingEdgeIsStepNotFound(t *testing.T) {
	_, err := ParseCatalog([]byte("steps:\n  - id: a\n    next: b\n  - id: c\n    prev: d"))
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("error = %v, want ErrStepNotFound", err)
	}
}

func TestCatalog_BuiltinHooks(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	cat, err := ParseCatalog([]byte(`
steps:
  - id: first
    title: First
    on_enter: [open-window keyboard, goto-path home/keyboard, custom]
    on_exit: [hide-overlays]
    next: second
  - id: second
    title: Second
    prev: first
`))
	if err != nil {
		t.Fatal(err)
	}

	opts := BuildOptions{Hooks: map[string]Hook{"custom": hookRecorder(h.log, "custom")}}
	if err := cat.Register(h.ctrl, opts); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := h.ctrl.Start(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	calls := h.log.all()
	want := []string{"mask start", "window keyboard", "goto home/keyboard", "hook custom"}
	for i, c := range want {
		if i >= len(calls) || calls[i] != c {
			t.Fatalf("calls = %q, want prefix %q", calls, want)
		}
	}

	h.log.reset()
	if err := h.ctrl.Next(ctx); err != nil {
		t.Fatal(err)
	}
	calls = h.log.all()
	want = []string{"mask hide", "modal hide", "mask stop", "mask start"}
	for i, c := range want {
		if i >= len(calls) || calls[i] != c {
			t.Fatalf("calls = %q, want prefix %q", calls, want)
		}
	}
}

func TestCatalog_CustomHookOverridesBuiltin(t *testing.T) {
	log := &callLog{}
	cat, err := ParseCatalog([]byte("steps:\n  - id: a\n    on_enter: [hide-overlays]"))
	if err != nil {
		t.Fatal(err)
	}
	steps, err := cat.Build(BuildOptions{Hooks: map[string]Hook{"hide-overlays": hookRecorder(log, "mine")}})
	if err != nil {
		t.Fatal(err)
	}
	if err := steps[0].OnEnter(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if log.count("hook mine") != 1 {
		t.Error("custom hook not used")
	}
}

func TestCatalog_HookArguments(t *testing.T) {
	tests := []string{"open-window", "goto-path ", "nonsense"}
	for _, spec := range tests {
		cat := &Catalog{Steps: []StepSpec{{ID: "a", OnEnter: []string{spec}}}}
		if _, err := cat.Build(BuildOptions{}); err == nil {
			t.Errorf("Build() with hook %q succeeded, want error", spec)
		}
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "steps.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nsteps:\n  - id: only\n    title: Only\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if ids := cat.IDs(); len(ids) != 1 || ids[0] != "only" {
		t.Errorf("IDs() = %v", ids)
	}

	if _, err := LoadCatalog(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadCatalog() of a missing file succeeded")
	}
}
