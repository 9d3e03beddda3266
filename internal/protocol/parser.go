package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies the purpose of a Message.
type MessageType string

const (
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypeSet         MessageType = "set"
	TypeUpdate      MessageType = "update"
	TypeValue       MessageType = "value"
	TypeAck         MessageType = "ack"
	TypeError       MessageType = "error"
)

// MaxMessageSize bounds a single encoded message.
const MaxMessageSize = 64 * 1024

// MaxPathLength bounds the length of a path.
const MaxPathLength = 512

// ErrInvalidMessage is wrapped by every validation failure.
var ErrInvalidMessage = errors.New("invalid message")

// Message is a single replication protocol frame.
type Message struct {
	Type  MessageType     `json:"type"`
	ID    uint32          `json:"id,omitempty"`
	Path  string          `json:"path,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Rev   uint64          `json:"rev,omitempty"`
	Error string          `json:"error,omitempty"`
}

// String returns a compact description for logs.
func (m *Message) String() string {
	switch m.Type {
	case TypeError:
		return fmt.Sprintf("%s{id=%d, error=%q}", m.Type, m.ID, m.Error)
	case TypeAck:
		return fmt.Sprintf("%s{id=%d, rev=%d}", m.Type, m.ID, m.Rev)
	default:
		return fmt.Sprintf("%s{id=%d, path=%s, rev=%d, len=%d}", m.Type, m.ID, m.Path, m.Rev, len(m.Value))
	}
}

// IsNull reports whether the message carries no value or an explicit JSON null.
func (m *Message) IsNull() bool {
	v := bytes.TrimSpace(m.Value)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// ParseMessage decodes and validates a single frame.
func ParseMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidMessage)
	}
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: frame too large: %d bytes (max %d)", ErrInvalidMessage, len(data), MaxMessageSize)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return &msg, nil
}

// Validate checks that the fields required by the message type are present.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeSubscribe, TypeUnsubscribe, TypeValue:
		return ValidatePath(m.Path)

	case TypeSet:
		if err := ValidatePath(m.Path); err != nil {
			return err
		}
		if len(m.Value) > 0 && !json.Valid(m.Value) {
			return fmt.Errorf("%w: set value is not valid JSON", ErrInvalidMessage)
		}
		return nil

	case TypeUpdate:
		if err := ValidatePath(m.Path); err != nil {
			return err
		}
		if !isObject(m.Value) {
			return fmt.Errorf("%w: update value must be a JSON object", ErrInvalidMessage)
		}
		return nil

	case TypeAck:
		return nil

	case TypeError:
		if m.Error == "" {
			return fmt.Errorf("%w: error message without text", ErrInvalidMessage)
		}
		return nil

	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidMessage)

	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
}

// ValidatePath rejects paths the relay would not store.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidMessage)
	}
	if len(path) > MaxPathLength {
		return fmt.Errorf("%w: path too long: %d bytes (max %d)", ErrInvalidMessage, len(path), MaxPathLength)
	}
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "", ".", "..":
			return fmt.Errorf("%w: bad path segment in %q", ErrInvalidMessage, path)
		}
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || v[0] != '{' {
		return false
	}
	return json.Unmarshal(v, &obj) == nil
}
