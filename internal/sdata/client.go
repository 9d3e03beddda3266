package sdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/protocol"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the relay
	writeWait = 10 * time.Second

	// Time allowed to read the next message or ping from the relay
	pongWait = 60 * time.Second

	// Handshake timeout for Connect
	dialTimeout = 15 * time.Second
)

// Client is a Channel backed by a squidly-relay session.
//
// Values of subscribed paths are cached so Get and late subscribers are served
// locally. Connect may be called again after the connection drops; every path
// with live subscribers is subscribed again.
type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]map[uint64]*subscriber
	cache   map[string]json.RawMessage
	pending map[uint32]chan *protocol.Message
	nextID  uint64
	closed  bool
	done    chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// WithHeader adds request headers to the websocket handshake.
func WithHeader(h http.Header) ClientOption {
	return func(c *Client) { c.header = h }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the session websocket at url
// (for example ws://relay:8080/ws/3f0c...). Call Connect before use.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
		},
		subs:    make(map[string]map[uint64]*subscriber),
		cache:   make(map[string]json.RawMessage),
		pending: make(map[uint32]chan *protocol.Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Named("sdata")
	}
	return c
}

// Connect dials the relay and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to relay %s (HTTP %d): %w", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to relay %s: %w", c.url, err)
	}
	conn.SetReadLimit(protocol.MaxMessageSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.done = make(chan struct{})
	paths := make([]string, 0, len(c.subs))
	for path := range c.subs {
		paths = append(paths, path)
	}
	done := c.done
	c.mu.Unlock()

	c.logger.Info("Connected to relay", zap.String("url", c.url))

	go c.readLoop(conn, done)

	for _, path := range paths {
		if err := c.send(protocol.NewSubscribe(path)); err != nil {
			return fmt.Errorf("failed to resubscribe %s: %w", path, err)
		}
	}
	return nil
}

// Done is closed when the current connection ends.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Set implements Channel. It waits for the relay to acknowledge the write.
func (c *Client) Set(ctx context.Context, path string, value any) error {
	raw, err := Encode(value)
	if err != nil {
		return err
	}
	msg, err := protocol.NewSet(path, raw)
	if err != nil {
		return err
	}
	return c.request(ctx, msg)
}

// Update implements Channel. It waits for the relay to acknowledge the write.
func (c *Client) Update(ctx context.Context, path string, fields map[string]any) error {
	msg, err := protocol.NewUpdate(path, fields)
	if err != nil {
		return err
	}
	return c.request(ctx, msg)
}

// Get implements Channel. Subscribed paths are answered from the cache.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if v, ok := c.cache[path]; ok {
		c.mu.Unlock()
		return clone(v), nil
	}
	c.mu.Unlock()

	first := make(chan json.RawMessage, 1)
	cancel := c.OnValue(path, func(v json.RawMessage) {
		select {
		case first <- v:
		default:
		}
	})
	defer cancel()

	select {
	case v := <-first:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnValue implements Channel.
func (c *Client) OnValue(path string, fn func(json.RawMessage)) func() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}

	c.nextID++
	id := c.nextID
	sub := newSubscriber(func(v Value) { fn(v.Data) })
	first := c.subs[path] == nil
	if first {
		c.subs[path] = make(map[uint64]*subscriber)
	}
	c.subs[path][id] = sub
	if v, ok := c.cache[path]; ok {
		sub.push(Value{Path: path, Data: clone(v)})
	}
	connected := c.conn != nil
	c.mu.Unlock()

	if first && connected {
		if err := c.send(protocol.NewSubscribe(path)); err != nil {
			c.logger.Warn("Failed to subscribe", zap.String("path", path), zap.Error(err))
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[path], id)
			last := c.subs[path] != nil && len(c.subs[path]) == 0
			if last {
				delete(c.subs, path)
				delete(c.cache, path)
			}
			connected := c.conn != nil && !c.closed
			c.mu.Unlock()
			sub.stop()

			if last && connected {
				if err := c.send(protocol.NewUnsubscribe(path)); err != nil {
					c.logger.Debug("Failed to unsubscribe", zap.String("path", path), zap.Error(err))
				}
			}
		})
	}
}

// Close closes the connection and stops all subscriptions.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	for _, subs := range c.subs {
		for _, sub := range subs {
			sub.stop()
		}
	}
	c.subs = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *Client) request(ctx context.Context, msg *protocol.Message) error {
	reply := make(chan *protocol.Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn == nil {
		c.mu.Unlock()
		return errors.New("not connected to relay")
	}
	c.pending[msg.ID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.send(msg); err != nil {
		return err
	}

	select {
	case resp := <-reply:
		if resp == nil {
			return ErrClosed
		}
		if resp.Type == protocol.TypeError {
			return fmt.Errorf("relay rejected %s %s: %s", msg.Type, msg.Path, resp.Error)
		}
		logging.LogReplication(msg.Path, "sent", resp.Rev, msg.Value)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected to relay")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		_ = conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(done)
		c.logger.Info("Disconnected from relay", zap.String("url", c.url))
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Relay connection lost", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Warn("Dropping malformed message from relay", zap.Error(err))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeValue:
		var raw json.RawMessage
		if !msg.IsNull() {
			raw = clone(msg.Value)
		}
		logging.LogReplication(msg.Path, "received", msg.Rev, raw)

		c.mu.Lock()
		subs, ok := c.subs[msg.Path]
		if ok {
			c.cache[msg.Path] = raw
			for _, sub := range subs {
				sub.push(Value{Path: msg.Path, Data: clone(raw), Rev: msg.Rev})
			}
		}
		c.mu.Unlock()

	case protocol.TypeAck, protocol.TypeError:
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
		} else if msg.Type == protocol.TypeError {
			c.logger.Warn("Relay error", zap.Uint32("id", msg.ID), zap.String("error", msg.Error))
		}

	default:
		c.logger.Debug("Ignoring message from relay", zap.String("message", msg.String()))
	}
}
