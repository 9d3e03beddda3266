package sdata

import (
	"encoding/json"
	"sync"
)

// Echoes remembers values a writer published so that their reflections can be
// told apart from writes made by peers.
//
// Subscribers see their own writes in order. A match therefore also drops every
// older entry: those values were overwritten before they came back. Writing the
// value a path already holds produces no notification, so writers should check
// Seen before recording.
type Echoes struct {
	max int

	mu   sync.Mutex
	keys []string
	last string
	seen bool
}

// NewEchoes keeps at most max outstanding values. max <= 0 means 16.
func NewEchoes(max int) *Echoes {
	if max <= 0 {
		max = 16
	}
	return &Echoes{max: max}
}

// Record notes that raw was written.
func (e *Echoes) Record(raw json.RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, echoKey(raw))
	if len(e.keys) > e.max {
		e.keys = e.keys[len(e.keys)-e.max:]
	}
}

// Match reports whether raw is a recorded value that has not come back yet,
// consuming it and anything recorded before it.
func (e *Echoes) Match(raw json.RawMessage) bool {
	key := echoKey(raw)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.last, e.seen = key, true
	for i, k := range e.keys {
		if k == key {
			e.keys = e.keys[i+1:]
			return true
		}
	}
	return false
}

// Seen reports whether raw is already the newest value: the last outstanding
// write, or the last value passed to Match when nothing is outstanding.
func (e *Echoes) Seen(raw json.RawMessage) bool {
	key := echoKey(raw)

	e.mu.Lock()
	defer e.mu.Unlock()
	if n := len(e.keys); n > 0 {
		return e.keys[n-1] == key
	}
	return e.seen && e.last == key
}

// Reset forgets every recorded and observed value.
func (e *Echoes) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = nil
	e.last, e.seen = "", false
}

// Len returns the number of outstanding values.
func (e *Echoes) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.keys)
}

func echoKey(raw json.RawMessage) string {
	if IsNull(raw) {
		return "null"
	}
	return string(raw)
}
