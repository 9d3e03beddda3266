package protocol

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Global message ID counter (thread-safe). Zero is reserved for messages
// that expect no reply.
var messageIDCounter uint32

// GenerateMessageID returns the next request id.
func GenerateMessageID() uint32 {
	for {
		if id := atomic.AddUint32(&messageIDCounter, 1); id != 0 {
			return id
		}
	}
}

// NewSubscribe builds a subscribe request for path.
func NewSubscribe(path string) *Message {
	return &Message{Type: TypeSubscribe, Path: path}
}

// NewUnsubscribe builds an unsubscribe request for path.
func NewUnsubscribe(path string) *Message {
	return &Message{Type: TypeUnsubscribe, Path: path}
}

// NewSet builds a set request. value is marshalled to JSON; nil stores null.
func NewSet(path string, value any) (*Message, error) {
	raw, err := marshalValue(value)
	if err != nil {
		return nil, err
	}
	return &Message{Type: TypeSet, ID: GenerateMessageID(), Path: path, Value: raw}, nil
}

// NewUpdate builds an update request merging fields into the object at path.
func NewUpdate(path string, fields map[string]any) (*Message, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update fields: %w", err)
	}
	return &Message{Type: TypeUpdate, ID: GenerateMessageID(), Path: path, Value: raw}, nil
}

// NewValue builds a value notification. raw may be nil for an absent value.
func NewValue(path string, raw json.RawMessage, rev uint64) *Message {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return &Message{Type: TypeValue, Path: path, Value: raw, Rev: rev}
}

// NewAck acknowledges request id at revision rev.
func NewAck(id uint32, rev uint64) *Message {
	return &Message{Type: TypeAck, ID: id, Rev: rev}
}

// NewError rejects request id.
func NewError(id uint32, err error) *Message {
	return &Message{Type: TypeError, ID: id, Error: err.Error()}
}

// Encode marshals msg for a websocket text frame.
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes (max %d)", len(data), MaxMessageSize)
	}
	return data, nil
}

func marshalValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if len(raw) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: value is not valid JSON", ErrInvalidMessage)
		}
		return raw, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return raw, nil
}
