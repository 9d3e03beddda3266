package sdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations on a closed channel.
var ErrClosed = errors.New("sdata: channel closed")

// Channel is a replicated key-value tree.
type Channel interface {
	// Set replaces the value at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error

	// Update merges fields into the object at path. Fields set to nil are removed.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Get returns the current value at path, or nil when absent.
	Get(ctx context.Context, path string) (json.RawMessage, error)

	// OnValue registers fn for the value at path. fn is called with the current
	// value first (nil when absent) and then with every change. The returned
	// function cancels the subscription.
	OnValue(path string, fn func(json.RawMessage)) (cancel func())
}

// Value is a single observed value with the revision that produced it.
type Value struct {
	Path string
	Data json.RawMessage
	Rev  uint64
}

// IsNull reports whether raw is absent or JSON null.
func IsNull(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// Encode marshals value for storage. json.RawMessage values are compacted and
// passed through; nil and JSON null both encode to nil.
func Encode(value any) (json.RawMessage, error) {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		raw = v
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value: %w", err)
		}
		raw = data
	}

	if IsNull(raw) {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// Merge applies a shallow object patch to current. Non-object current values are
// replaced. Null fields in patch remove the key. An empty result is nil.
func Merge(current, patch json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil || fields == nil {
		return nil, errors.New("update value must be a JSON object")
	}

	obj := map[string]json.RawMessage{}
	if !IsNull(current) {
		if err := json.Unmarshal(current, &obj); err != nil || obj == nil {
			obj = map[string]json.RawMessage{}
		}
	}

	for k, v := range fields {
		if IsNull(v) {
			delete(obj, k)
			continue
		}
		obj[k] = v
	}

	if len(obj) == 0 {
		return nil, nil
	}

	merged, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to merge value: %w", err)
	}
	return Encode(json.RawMessage(merged))
}

// Scope returns a Channel whose paths are relative to prefix.
func Scope(ch Channel, prefix string) Channel {
	prefix = strings.Trim(prefix, "/")
	if s, ok := ch.(*scoped); ok {
		return &scoped{parent: s.parent, prefix: s.join(prefix)}
	}
	return &scoped{parent: ch, prefix: prefix}
}

type scoped struct {
	parent Channel
	prefix string
}

func (s *scoped) join(path string) string {
	path = strings.Trim(path, "/")
	switch {
	case s.prefix == "":
		return path
	case path == "":
		return s.prefix
	default:
		return s.prefix + "/" + path
	}
}

func (s *scoped) Set(ctx context.Context, path string, value any) error {
	return s.parent.Set(ctx, s.join(path), value)
}

func (s *scoped) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.parent.Update(ctx, s.join(path), fields)
}

func (s *scoped) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return s.parent.Get(ctx, s.join(path))
}

func (s *scoped) OnValue(path string, fn func(json.RawMessage)) func() {
	return s.parent.OnValue(s.join(path), fn)
}
