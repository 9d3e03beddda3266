package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/muurk/squidly/internal/sdata"
)

// Frames of a session's data tree.
const (
	MainFrame        = "session-main"
	WalkthroughFrame = "walk-through"
)

// OccupierKey holds the name of the feature occupying the shared view.
const OccupierKey = "occupier"

// DefaultOccupier is the occupier restored when a feature closes.
const DefaultOccupier = "default"

// Role is the side of the session a client plays.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// ParseRole parses a role name. The empty string means host.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleHost:
		return RoleHost, nil
	case RoleParticipant:
		return RoleParticipant, nil
	default:
		return "", fmt.Errorf("unknown session role %q (want host or participant)", s)
	}
}

// NewID returns a fresh session id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ValidID reports whether id can be used as a session id in relay URLs and
// data paths.
func ValidID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// URL returns the websocket URL of session id on the relay at base
// (for example ws://relay:8080).
func URL(base, id string) string {
	return strings.TrimRight(base, "/") + "/ws/" + id
}

// Walkthrough returns the walkthrough frame of a session channel.
func Walkthrough(ch sdata.Channel) sdata.Channel {
	return sdata.Scope(ch, WalkthroughFrame)
}

// Occupancy reads and writes which feature occupies the shared session view.
type Occupancy struct {
	ch sdata.Channel
}

// NewOccupancy wraps the root channel of a session.
func NewOccupancy(ch sdata.Channel) *Occupancy {
	return &Occupancy{ch: sdata.Scope(ch, MainFrame)}
}

// ReturnToDefault hands the shared view back to the default occupier.
func (o *Occupancy) ReturnToDefault(ctx context.Context) error {
	return o.Set(ctx, DefaultOccupier)
}

// Set makes name the occupier.
func (o *Occupancy) Set(ctx context.Context, name string) error {
	if err := o.ch.Set(ctx, OccupierKey, name); err != nil {
		return fmt.Errorf("failed to set occupier: %w", err)
	}
	return nil
}

// Current returns the occupier, or DefaultOccupier when none is set.
func (o *Occupancy) Current(ctx context.Context) (string, error) {
	raw, err := o.ch.Get(ctx, OccupierKey)
	if err != nil {
		return "", fmt.Errorf("failed to read occupier: %w", err)
	}
	return decodeOccupier(raw), nil
}

// Watch calls fn with the occupier now and on every change.
func (o *Occupancy) Watch(fn func(string)) (cancel func()) {
	return o.ch.OnValue(OccupierKey, func(raw json.RawMessage) {
		fn(decodeOccupier(raw))
	})
}

func decodeOccupier(raw json.RawMessage) string {
	var name string
	if sdata.IsNull(raw) || json.Unmarshal(raw, &name) != nil || name == "" {
		return DefaultOccupier
	}
	return name
}
