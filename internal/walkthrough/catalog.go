package walkthrough

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogVersion is the step catalog format understood by this package.
const CatalogVersion = 1

//go:embed steps/default.yaml
var defaultCatalog []byte

// Catalog is a set of step definitions read from YAML.
type Catalog struct {
	Version int        `yaml:"version"`
	Steps   []StepSpec `yaml:"steps"`
}

// StepSpec is the YAML form of a Step. Hooks are referenced by name; see
// BuildOptions for the names that are always available.
type StepSpec struct {
	ID               string            `yaml:"id"`
	Title            string            `yaml:"title"`
	Subtitle         string            `yaml:"subtitle,omitempty"`
	Content          string            `yaml:"content,omitempty"`
	Position         Position          `yaml:"position,omitempty"`
	Area             *Grid             `yaml:"area,omitempty"`
	Area2            *Grid             `yaml:"area2,omitempty"`
	SettingsPath     string            `yaml:"settings_path,omitempty"`
	Window           string            `yaml:"window,omitempty"`
	OnEnter          []string          `yaml:"on_enter,omitempty"`
	OnExit           []string          `yaml:"on_exit,omitempty"`
	CanGoBack        *bool             `yaml:"can_go_back,omitempty"`
	CanGoNext        *bool             `yaml:"can_go_next,omitempty"`
	Next             string            `yaml:"next,omitempty"`
	Prev             string            `yaml:"prev,omitempty"`
	ModalStyles      map[string]string `yaml:"modal_styles,omitempty"`
	SkipBackPrefetch bool              `yaml:"skip_back_prefetch,omitempty"`
}

// BuildOptions supplies what a catalog cannot express in YAML.
//
// Names in Hooks take precedence. Every catalog may also use:
//
//	open-window <name>   open a feature window
//	goto-path <path>     navigate the settings panel
//	hide-overlays        hide the mask and modal and stop the mask
type BuildOptions struct {
	Hooks  map[string]Hook
	Header HeaderHeight
}

// DefaultCatalog returns the built-in calibration, switch and cursor
// walkthroughs.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read step catalog: %w", err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse step catalog: %w", err)
	}

	if cat.Version == 0 {
		cat.Version = CatalogVersion
	}
	if cat.Version > CatalogVersion {
		return nil, fmt.Errorf("unsupported step catalog version %d (max %d)", cat.Version, CatalogVersion)
	}

	if errs := cat.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid step catalog: %w", errors.Join(errs...))
	}
	return &cat, nil
}

// Validate checks ids, edges, positions and grids.
// Returns a slice of validation errors (empty if valid).
func (c *Catalog) Validate() []error {
	var errs []error

	ids := make(map[string]bool, len(c.Steps))
	for i, s := range c.Steps {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("step %d: missing id", i+1))
			continue
		}
		if ids[s.ID] {
			errs = append(errs, fmt.Errorf("step %s: duplicate id", s.ID))
		}
		ids[s.ID] = true
	}

	for _, s := range c.Steps {
		if s.ID == "" {
			continue
		}
		if s.Next != "" && !ids[s.Next] {
			errs = append(errs, fmt.Errorf("step %s: next step %q: %w", s.ID, s.Next, ErrStepNotFound))
		}
		if s.Prev != "" && !ids[s.Prev] {
			errs = append(errs, fmt.Errorf("step %s: previous step %q: %w", s.ID, s.Prev, ErrStepNotFound))
		}
		switch s.Position {
		case "", PositionLeft, PositionRight, PositionCenter:
		default:
			errs = append(errs, fmt.Errorf("step %s: unknown position %q", s.ID, s.Position))
		}
		if s.Area2 != nil && s.Area == nil {
			errs = append(errs, fmt.Errorf("step %s: area2 without area", s.ID))
		}
		for _, g := range []*Grid{s.Area, s.Area2} {
			if g == nil {
				continue
			}
			if err := g.validate(); err != nil {
				errs = append(errs, fmt.Errorf("step %s: %w", s.ID, err))
			}
		}
	}

	return errs
}

// Build converts the catalog into steps, resolving hook names.
func (c *Catalog) Build(opts BuildOptions) ([]Step, error) {
	steps := make([]Step, 0, len(c.Steps))
	for _, s := range c.Steps {
		onEnter, err := resolveHooks(s.OnEnter, opts.Hooks)
		if err != nil {
			return nil, fmt.Errorf("step %s: on_enter: %w", s.ID, err)
		}
		onExit, err := resolveHooks(s.OnExit, opts.Hooks)
		if err != nil {
			return nil, fmt.Errorf("step %s: on_exit: %w", s.ID, err)
		}

		step := Step{
			ID:               s.ID,
			Title:            s.Title,
			Subtitle:         s.Subtitle,
			Content:          strings.TrimSpace(s.Content),
			Position:         s.Position,
			SettingsPath:     s.SettingsPath,
			Window:           s.Window,
			OnEnter:          onEnter,
			OnExit:           onExit,
			CanGoBack:        s.CanGoBack,
			CanGoNext:        s.CanGoNext,
			NextStepID:       s.Next,
			PrevStepID:       s.Prev,
			ModalStyles:      s.ModalStyles,
			SkipBackPrefetch: s.SkipBackPrefetch,
		}
		if s.Area != nil {
			step.Area = s.Area.AreaFunc(opts.Header)
		}
		if s.Area2 != nil {
			step.Area2 = s.Area2.AreaFunc(opts.Header)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Register builds the catalog and registers every step with ctrl.
func (c *Catalog) Register(ctrl *Controller, opts BuildOptions) error {
	steps, err := c.Build(opts)
	if err != nil {
		return err
	}
	for _, s := range steps {
		ctrl.RegisterStep(s)
	}
	return nil
}

// IDs returns the step ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Steps))
	for _, s := range c.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}

func (g *Grid) validate() error {
	rows, cols := g.Rows, g.Cols
	if rows == 0 {
		rows = 3
	}
	if cols == 0 {
		cols = 4
	}
	switch {
	case rows < 0 || cols < 0:
		return fmt.Errorf("grid size %dx%d is negative", rows, cols)
	case g.RowStart < 0 || g.ColStart < 0:
		return fmt.Errorf("grid start (%d,%d) is negative", g.RowStart, g.ColStart)
	case g.RowEnd < g.RowStart || g.ColEnd < g.ColStart:
		return fmt.Errorf("grid end (%d,%d) before start (%d,%d)", g.RowEnd, g.ColEnd, g.RowStart, g.ColStart)
	case g.RowEnd > rows || g.ColEnd > cols:
		return fmt.Errorf("grid end (%d,%d) outside %dx%d grid", g.RowEnd, g.ColEnd, rows, cols)
	}
	return nil
}

func resolveHooks(names []string, custom map[string]Hook) (Hook, error) {
	if len(names) == 0 {
		return nil, nil
	}

	hooks := make([]Hook, 0, len(names))
	for _, name := range names {
		h, err := resolveHook(name, custom)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}

	if len(hooks) == 1 {
		return hooks[0], nil
	}
	return func(ctx context.Context, c *Controller) error {
		for _, h := range hooks {
			if err := h(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func resolveHook(spec string, custom map[string]Hook) (Hook, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(spec), " ")
	arg = strings.TrimSpace(arg)

	if h, ok := custom[name]; ok && h != nil {
		return h, nil
	}

	switch name {
	case "open-window":
		if arg == "" {
			return nil, errors.New("open-window needs a window name")
		}
		return func(ctx context.Context, c *Controller) error {
			return c.Windows().OpenWindow(ctx, arg)
		}, nil

	case "goto-path":
		if arg == "" {
			return nil, errors.New("goto-path needs a settings path")
		}
		return func(ctx context.Context, c *Controller) error {
			return c.Navigator().GotoPath(ctx, arg)
		}, nil

	case "hide-overlays":
		return func(ctx context.Context, c *Controller) error {
			if err := c.Mask().Hide(ctx); err != nil {
				return err
			}
			if err := c.Modal().Hide(ctx); err != nil {
				return err
			}
			c.Mask().Stop()
			return nil
		}, nil
	}

	return nil, fmt.Errorf("unknown hook %q", spec)
}
