package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/muurk/squidly/internal/setupflow"
)

// ProfileStore serves the registry's profiles to the setup flow and persists
// new ones.
type ProfileStore struct {
	registry *Registry
	path     string

	mu sync.Mutex
}

// NewProfileStore returns a store over registry that saves to path. An empty
// path keeps created profiles in memory only.
func NewProfileStore(registry *Registry, path string) *ProfileStore {
	return &ProfileStore{registry: registry, path: path}
}

// Profiles implements setupflow.ProfileStore.
func (s *ProfileStore) Profiles(ctx context.Context) ([]setupflow.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]setupflow.Profile, 0, len(s.registry.Profiles))
	for _, p := range s.registry.Profiles {
		if p == nil {
			continue
		}
		out = append(out, setupflow.Profile{Name: p.Name, ProfileID: p.ID})
	}
	return out, nil
}

// CreateProfile implements setupflow.ProfileStore.
func (s *ProfileStore) CreateProfile(ctx context.Context, name string) (setupflow.Profile, error) {
	if err := ctx.Err(); err != nil {
		return setupflow.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.registry.FindProfile(name)
	p, err := s.registry.AddProfile(name)
	if err != nil {
		return setupflow.Profile{}, err
	}

	if existing == nil && s.path != "" {
		if err := s.registry.SaveTo(s.path); err != nil {
			return setupflow.Profile{}, fmt.Errorf("failed to save profile %q: %w", p.Name, err)
		}
	}
	return setupflow.Profile{Name: p.Name, ProfileID: p.ID}, nil
}
