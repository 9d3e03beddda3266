package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/protocol"
	"github.com/muurk/squidly/internal/sdata"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = protocol.MaxMessageSize

	// Outgoing frames buffered per connection before it is dropped as too slow
	sendBuffer = 256
)

// ErrRateLimited is returned to clients writing faster than the relay allows.
var ErrRateLimited = errors.New("rate limit exceeded")

var errSlowConsumer = errors.New("send buffer full")

// client is one websocket connection joined to a session.
type client struct {
	ws         *websocket.Conn
	session    string
	remoteAddr string
	store      *sdata.Store
	limiter    *rate.Limiter
	capture    *Capture
	logger     *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	subs       map[string]func()
	messageNum int
}

func newClient(ws *websocket.Conn, session, remoteAddr string, store *sdata.Store, limiter *rate.Limiter, capture *Capture) *client {
	return &client{
		ws:         ws,
		session:    session,
		remoteAddr: remoteAddr,
		store:      store,
		limiter:    limiter,
		capture:    capture,
		logger: logging.Named("relay").With(
			zap.String("session", session),
			zap.String("remote_addr", remoteAddr),
		),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]func()),
	}
}

// run serves the connection until either side closes it.
func (c *client) run() {
	logging.LogConnection(c.remoteAddr, c.session, "websocket_upgraded")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump()
	c.close()
	<-writerDone

	c.mu.Lock()
	for path, cancel := range c.subs {
		cancel()
		delete(c.subs, path)
	}
	c.mu.Unlock()

	logging.LogConnection(c.remoteAddr, c.session, "websocket_closed")
}

// close stops both pumps. The write pump sends a close frame and closes the
// socket, which ends the read pump. Safe to call more than once.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := protocol.ParseMessage(data)
		c.record(DirectionInbound, data, msg)
		if err != nil {
			c.logger.Warn("Rejecting malformed message", zap.Error(err))
			c.reply(protocol.NewError(requestID(data), err))
			continue
		}

		c.handle(msg)
	}
}

func (c *client) handle(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeSubscribe:
		c.subscribe(msg.Path)

	case protocol.TypeUnsubscribe:
		c.mu.Lock()
		cancel, ok := c.subs[msg.Path]
		delete(c.subs, msg.Path)
		c.mu.Unlock()
		if ok {
			cancel()
		}

	case protocol.TypeSet, protocol.TypeUpdate:
		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn("Write rate limited", zap.String("path", msg.Path))
			c.reply(protocol.NewError(msg.ID, ErrRateLimited))
			return
		}

		var rev uint64
		var err error
		if msg.Type == protocol.TypeSet {
			rev, err = c.store.Put(msg.Path, msg.Value)
		} else {
			rev, err = c.store.Patch(msg.Path, msg.Value)
		}
		if err != nil {
			c.reply(protocol.NewError(msg.ID, err))
			return
		}
		c.reply(protocol.NewAck(msg.ID, rev))

	default:
		err := fmt.Errorf("%w: unexpected %s from client", protocol.ErrInvalidMessage, msg.Type)
		c.reply(protocol.NewError(msg.ID, err))
	}
}

func (c *client) subscribe(path string) {
	c.mu.Lock()
	if _, ok := c.subs[path]; ok {
		c.mu.Unlock()
		// Resend the current value so a resubscribing client catches up.
		raw, rev, err := c.store.Load(path)
		if err == nil {
			c.reply(protocol.NewValue(path, raw, rev))
		}
		return
	}
	c.mu.Unlock()

	cancel := c.store.Subscribe(path, func(v sdata.Value) {
		c.reply(protocol.NewValue(v.Path, v.Data, v.Rev))
	})

	c.mu.Lock()
	if _, ok := c.subs[path]; ok {
		c.mu.Unlock()
		cancel()
		return
	}
	c.subs[path] = cancel
	c.mu.Unlock()
}

// reply queues msg for the write pump. A client that cannot keep up is dropped.
func (c *client) reply(msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error("Failed to encode reply", zap.Error(err))
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
		c.record(DirectionOutbound, data, msg)
	case <-c.done:
	default:
		c.logger.Warn("Dropping slow client", zap.Error(errSlowConsumer))
		c.close()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				c.close()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *client) record(direction string, data []byte, msg *protocol.Message) {
	if c.capture == nil {
		return
	}
	c.mu.Lock()
	c.messageNum++
	n := c.messageNum
	c.mu.Unlock()
	c.capture.Record(c.session, c.remoteAddr, direction, n, data, msg)
}

// requestID recovers the id of a frame that failed validation so the error
// reaches the waiting request.
func requestID(data []byte) uint32 {
	var probe struct {
		ID uint32 `json:"id"`
	}
	_ = json.Unmarshal(data, &probe)
	return probe.ID
}
