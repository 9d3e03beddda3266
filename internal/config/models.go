package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/squidly/internal/session"
)

// CurrentVersion is the registry format written by this build.
const CurrentVersion = 1

// Registry represents the entire user configuration file.
type Registry struct {
	Version     int          `yaml:"version"`
	Session     *Session     `yaml:"session,omitempty"`
	Keyboard    *Keyboard    `yaml:"keyboard,omitempty"`
	Walkthrough *Walkthrough `yaml:"walkthrough,omitempty"`
	Profiles    []*Profile   `yaml:"profiles,omitempty"`
}

// Session holds how this machine joins a shared session.
type Session struct {
	RelayURL        string `yaml:"relay_url,omitempty"`  // e.g. ws://studio.local:8080
	RelayName       string `yaml:"relay_name,omitempty"` // mDNS name looked up when relay_url is empty
	SessionID       string `yaml:"session_id,omitempty"` // empty = generate one when hosting
	Role            string `yaml:"role,omitempty"`       // "host" or "participant"
	AutoDiscover    bool   `yaml:"auto_discover"`        // Browse mDNS when no relay_url is set
	DiscoverTimeout int    `yaml:"discover_timeout"`     // mDNS discovery timeout in seconds
}

// Keyboard holds word prediction preferences.
type Keyboard struct {
	MaxSuggestions int    `yaml:"max_suggestions"`
	CorpusDir      string `yaml:"corpus_dir,omitempty"` // empty = built-in starter corpus
}

// Walkthrough holds walkthrough preferences.
type Walkthrough struct {
	StepsFile      string `yaml:"steps_file,omitempty"` // empty = built-in catalog
	DebounceMillis int    `yaml:"debounce_ms"`
}

// Profile is a participant profile offered by the setup flow.
type Profile struct {
	Name      string    `yaml:"name"`
	ID        string    `yaml:"id"`
	CreatedAt time.Time `yaml:"created_at,omitempty"`
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	r := &Registry{Version: CurrentVersion}
	r.applyDefaults()
	return r
}

// applyDefaults fills sections missing from an older or hand-written file.
func (r *Registry) applyDefaults() {
	if r.Session == nil {
		r.Session = &Session{AutoDiscover: true, DiscoverTimeout: 5}
	}
	if r.Keyboard == nil {
		r.Keyboard = &Keyboard{MaxSuggestions: 5}
	}
	if r.Walkthrough == nil {
		r.Walkthrough = &Walkthrough{DebounceMillis: 50}
	}
}

// Validate reports every invalid value in the registry.
func (r *Registry) Validate() []error {
	var errs []error

	if r.Session != nil {
		if r.Session.SessionID != "" && !session.ValidID(r.Session.SessionID) {
			errs = append(errs, fmt.Errorf("session.session_id %q: only letters, digits, '-' and '_' (max 64)", r.Session.SessionID))
		}
		if _, err := session.ParseRole(r.Session.Role); err != nil {
			errs = append(errs, fmt.Errorf("session.role: %w", err))
		}
		if u := r.Session.RelayURL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			errs = append(errs, fmt.Errorf("session.relay_url %q must start with ws:// or wss://", u))
		}
		if r.Session.DiscoverTimeout < 0 {
			errs = append(errs, fmt.Errorf("session.discover_timeout must not be negative"))
		}
	}

	if r.Keyboard != nil && r.Keyboard.MaxSuggestions < 0 {
		errs = append(errs, fmt.Errorf("keyboard.max_suggestions must not be negative"))
	}
	if r.Walkthrough != nil && r.Walkthrough.DebounceMillis < 0 {
		errs = append(errs, fmt.Errorf("walkthrough.debounce_ms must not be negative"))
	}

	seen := make(map[string]bool)
	for i, p := range r.Profiles {
		if p == nil || strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("profiles[%d]: name is required", i))
			continue
		}
		key := strings.ToLower(p.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("profiles[%d]: duplicate name %q", i, p.Name))
		}
		seen[key] = true
	}

	return errs
}

// FindProfile returns the profile named name, ignoring case, or nil.
func (r *Registry) FindProfile(name string) *Profile {
	for _, p := range r.Profiles {
		if p != nil && strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// AddProfile returns the profile named name, creating it if needed.
func (r *Registry) AddProfile(name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("profile name is required")
	}
	if p := r.FindProfile(name); p != nil {
		return p, nil
	}

	p := &Profile{Name: name, ID: session.NewID(), CreatedAt: time.Now().UTC()}
	r.Profiles = append(r.Profiles, p)
	return p, nil
}

// RemoveProfile deletes the profile named name. It reports whether one existed.
func (r *Registry) RemoveProfile(name string) bool {
	for i, p := range r.Profiles {
		if p != nil && strings.EqualFold(p.Name, name) {
			r.Profiles = append(r.Profiles[:i], r.Profiles[i+1:]...)
			return true
		}
	}
	return false
}
