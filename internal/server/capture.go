package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/protocol"
	"go.uber.org/zap"
)

// Capture directions
const (
	DirectionInbound  = "client->relay"
	DirectionOutbound = "relay->client"
)

// MessageRecord is one relayed frame as written to a capture file.
type MessageRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	MessageNum   int             `json:"message_num"`
	Session      string          `json:"session"`
	RemoteAddr   string          `json:"remote_addr"`
	Direction    string          `json:"direction"`
	Type         string          `json:"type"`
	ID           uint32          `json:"id,omitempty"`
	Path         string          `json:"path,omitempty"`
	Rev          uint64          `json:"rev,omitempty"`
	PayloadLen   int             `json:"payload_length"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	PayloadAscii string          `json:"payload_ascii,omitempty"`
}

// Capture appends relayed frames to a JSON Lines file. A nil *Capture records
// nothing.
type Capture struct {
	filename string

	mu   sync.Mutex
	file *os.File
}

// NewCapture creates dir if needed and opens a capture-<timestamp>.jsonl file
// in it. An empty dir disables capture and returns nil.
func NewCapture(dir string) (*Capture, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create analysis directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open analysis file: %w", err)
	}

	logging.Info("Capturing relayed messages", zap.String("filename", filename))
	return &Capture{filename: filename, file: f}, nil
}

// Filename returns the capture file path.
func (c *Capture) Filename() string {
	if c == nil {
		return ""
	}
	return c.filename
}

// Record appends one frame. msg may be nil when data did not parse.
func (c *Capture) Record(session, remoteAddr, direction string, messageNum int, data []byte, msg *protocol.Message) {
	if c == nil {
		return
	}

	rec := MessageRecord{
		Timestamp:  time.Now(),
		MessageNum: messageNum,
		Session:    session,
		RemoteAddr: remoteAddr,
		Direction:  direction,
		Type:       "invalid",
		PayloadLen: len(data),
	}
	if msg != nil {
		rec.Type = string(msg.Type)
		rec.ID = msg.ID
		rec.Path = msg.Path
		rec.Rev = msg.Rev
	}
	if json.Valid(data) {
		rec.Payload = data
	} else {
		rec.PayloadAscii = toASCII(data)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		logging.Error("Failed to marshal message record", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return
	}
	if _, err := c.file.Write(append(line, '\n')); err != nil {
		logging.Error("Failed to write to analysis file",
			zap.String("filename", c.filename),
			zap.Error(err),
		)
	}
}

// Close closes the capture file.
func (c *Capture) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// toASCII converts bytes to ASCII string (non-printable chars become '.')
func toASCII(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
