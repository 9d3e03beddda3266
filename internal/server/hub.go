package server

import (
	"sort"
	"sync"

	"github.com/muurk/squidly/internal/sdata"
	"go.uber.org/zap"
)

// Hub owns one replicated store per session. A session exists while at least
// one connection has joined it; its data is dropped when the last one leaves.
type Hub struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*room
}

type room struct {
	store *sdata.Store
	conns int
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[string]*room),
	}
}

// Join returns the store for session id, creating it on first use.
func (h *Hub) Join(id string) *sdata.Store {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.sessions[id]
	if !ok {
		r = &room{store: sdata.NewStore(h.logger.With(zap.String("session", id)))}
		h.sessions[id] = r
		h.logger.Info("Session opened", zap.String("session", id))
	}
	r.conns++
	return r.store
}

// Leave releases one connection from session id.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.sessions[id]
	if !ok {
		return
	}
	r.conns--
	if r.conns > 0 {
		return
	}
	_ = r.store.Close()
	delete(h.sessions, id)
	h.logger.Info("Session closed", zap.String("session", id))
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID          string `json:"id"`
	Connections int    `json:"connections"`
	Rev         uint64 `json:"rev"`
}

// Sessions lists live sessions ordered by id.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]SessionInfo, 0, len(h.sessions))
	for id, r := range h.sessions {
		out = append(out, SessionInfo{ID: id, Connections: r.conns, Rev: r.store.Rev()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close drops every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.sessions {
		_ = r.store.Close()
		delete(h.sessions, id)
	}
}
