package sdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/protocol"
	"go.uber.org/zap"
)

// Store is an in-memory Channel. Writes are last-write-wins; every change bumps
// the store revision and is delivered to all subscribers of the path.
type Store struct {
	logger *zap.Logger

	mu     sync.Mutex
	values map[string]json.RawMessage
	revs   map[string]uint64
	rev    uint64
	subs   map[string]map[uint64]*subscriber
	nextID uint64
	closed bool
}

// NewStore creates an empty store. A nil logger uses the package logger.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Store{
		logger: logger,
		values: make(map[string]json.RawMessage),
		revs:   make(map[string]uint64),
		subs:   make(map[string]map[uint64]*subscriber),
	}
}

// Set implements Channel.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := Encode(value)
	if err != nil {
		return err
	}
	_, err = s.Put(path, raw)
	return err
}

// Update implements Channel.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	_, err = s.Patch(path, patch)
	return err
}

// Get implements Channel.
func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, _, err := s.Load(path)
	return v, err
}

// OnValue implements Channel.
func (s *Store) OnValue(path string, fn func(json.RawMessage)) func() {
	return s.Subscribe(path, func(v Value) { fn(v.Data) })
}

// Load returns the value at path and the revision that wrote it.
func (s *Store) Load(path string) (json.RawMessage, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, ErrClosed
	}
	return clone(s.values[path]), s.revs[path], nil
}

// Put stores raw at path and returns the store revision after the write.
// Writing the value already stored is not a change and notifies nobody.
func (s *Store) Put(path string, raw json.RawMessage) (uint64, error) {
	if err := protocol.ValidatePath(path); err != nil {
		return 0, err
	}
	raw, err := Encode(raw)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(path, raw)
}

// Patch merges the JSON object patch into the value at path.
func (s *Store) Patch(path string, patch json.RawMessage) (uint64, error) {
	if err := protocol.ValidatePath(path); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	merged, err := Merge(s.values[path], patch)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	return s.write(path, merged)
}

// write must be called with s.mu held.
func (s *Store) write(path string, raw json.RawMessage) (uint64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if bytes.Equal(s.values[path], raw) {
		return s.rev, nil
	}

	s.rev++
	if raw == nil {
		delete(s.values, path)
	} else {
		s.values[path] = raw
	}
	s.revs[path] = s.rev

	logging.LogReplication(path, "stored", s.rev, raw)

	v := Value{Path: path, Data: raw, Rev: s.rev}
	for _, sub := range s.subs[path] {
		sub.push(Value{Path: v.Path, Data: clone(v.Data), Rev: v.Rev})
	}
	return s.rev, nil
}

// Subscribe registers fn for path. The current value is delivered first.
func (s *Store) Subscribe(path string, fn func(Value)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}

	s.nextID++
	id := s.nextID
	sub := newSubscriber(fn)
	if s.subs[path] == nil {
		s.subs[path] = make(map[uint64]*subscriber)
	}
	s.subs[path][id] = sub
	sub.push(Value{Path: path, Data: clone(s.values[path]), Rev: s.revs[path]})

	s.logger.Debug("Subscribed",
		zap.String("path", path),
		zap.Uint64("subscription", id),
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[path], id)
			if len(s.subs[path]) == 0 {
				delete(s.subs, path)
			}
			s.mu.Unlock()
			sub.stop()
		})
	}
}

// Rev returns the latest store revision.
func (s *Store) Rev() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, subs := range s.subs {
		n += len(subs)
	}
	return n
}

// Close stops all deliveries. Further writes fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.stop()
		}
	}
	s.subs = nil
	return nil
}

func clone(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
