package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/squidly/internal/protocol"
	"github.com/muurk/squidly/internal/sdata"
)

func newTestServer(t *testing.T, config *Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func sessionURL(ts *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + id
}

func connect(t *testing.T, url string, opts ...sdata.ClientOption) *sdata.Client {
	t.Helper()
	c := sdata.NewClient(url, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect(%s) error = %v", url, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// watch collects non-null values of path.
type watch struct {
	mu     sync.Mutex
	values []string
}

func watchPath(ch sdata.Channel, path string) *watch {
	w := &watch{}
	ch.OnValue(path, func(v json.RawMessage) {
		if v == nil {
			return
		}
		w.mu.Lock()
		w.values = append(w.values, string(v))
		w.mu.Unlock()
	})
	return w
}

func (w *watch) last() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.values) == 0 {
		return ""
	}
	return w.values[len(w.values)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServer_SetReachesOtherClient(t *testing.T) {
	_, ts := newTestServer(t, &Config{})
	host := connect(t, sessionURL(ts, "sess1"))
	guest := connect(t, sessionURL(ts, "sess1"))

	seen := watchPath(guest, "walk-through/walkThroughState")
	ctx := ctxTimeout(t)

	if err := host.Set(ctx, "walk-through/walkThroughState", map[string]any{"stepId": "a", "active": true}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	want := `{"active":true,"stepId":"a"}`
	waitFor(t, "guest value", func() bool { return seen.last() == want })
}

func TestServer_UpdateMerges(t *testing.T) {
	_, ts := newTestServer(t, &Config{})
	a := connect(t, sessionURL(ts, "merge"))
	b := connect(t, sessionURL(ts, "merge"))
	seen := watchPath(b, "setup/setupState")
	ctx := ctxTimeout(t)

	if err := a.Update(ctx, "setup/setupState", map[string]any{"screen": "profileSelection"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := b.Update(ctx, "setup/setupState", map[string]any{"profileName": "Pat"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := `{"profileName":"Pat","screen":"profileSelection"}`
	waitFor(t, "merged value", func() bool { return seen.last() == want })

	if err := a.Update(ctx, "setup/setupState", map[string]any{"profileName": nil}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	waitFor(t, "removed field", func() bool { return seen.last() == `{"screen":"profileSelection"}` })
}

func TestServer_SessionsAreIsolated(t *testing.T) {
	_, ts := newTestServer(t, &Config{})
	one := connect(t, sessionURL(ts, "one"))
	two := connect(t, sessionURL(ts, "two"))
	ctx := ctxTimeout(t)

	if err := one.Set(ctx, "occupier", "host"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := two.Get(ctx, "occupier")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() in other session = %s, want nil", got)
	}

	got, err = one.Get(ctx, "occupier")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `"host"` {
		t.Errorf("Get() = %s, want \"host\"", got)
	}
}

func TestServer_SessionDroppedWhenEmpty(t *testing.T) {
	srv, ts := newTestServer(t, &Config{})
	c := sdata.NewClient(sessionURL(ts, "ephemeral"))
	ctx := ctxTimeout(t)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Set(ctx, "x", 1); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_ = c.Close()

	waitFor(t, "session close", func() bool { return len(srv.hub.Sessions()) == 0 })

	again := connect(t, sessionURL(ts, "ephemeral"))
	got, err := again.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() after session closed = %s, want nil", got)
	}
}

func TestServer_InvalidSessionID(t *testing.T) {
	_, ts := newTestServer(t, &Config{})

	_, resp, err := websocket.DefaultDialer.Dial(sessionURL(ts, strings.Repeat("a", 65)), nil)
	if err == nil {
		t.Fatal("Dial() error = nil, want handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Dial() response = %v, want 400", resp)
	}

	if got := ClassifyDialError(err, ts.URL).Type; got != ErrTypeHandshake {
		t.Errorf("ClassifyDialError().Type = %v, want %v", got, ErrTypeHandshake)
	}
}

func TestServer_RateLimit(t *testing.T) {
	_, ts := newTestServer(t, &Config{RateLimit: 0.001, Burst: 1})
	c := connect(t, sessionURL(ts, "limited"))
	ctx := ctxTimeout(t)

	if err := c.Set(ctx, "x", 1); err != nil {
		t.Fatalf("first Set() error = %v", err)
	}
	err := c.Set(ctx, "x", 2)
	if err == nil {
		t.Fatal("second Set() error = nil, want rate limit")
	}
	if !strings.Contains(err.Error(), ErrRateLimited.Error()) {
		t.Errorf("second Set() error = %v, want %q", err, ErrRateLimited)
	}
}

func TestServer_RejectsMalformedFrames(t *testing.T) {
	_, ts := newTestServer(t, &Config{})
	ws, _, err := websocket.DefaultDialer.Dial(sessionURL(ts, "raw"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = ws.Close() }()

	tests := []struct {
		name   string
		frame  string
		wantID uint32
	}{
		{"bad path", `{"type":"set","id":7,"path":"a//b","value":1}`, 7},
		{"update with array", `{"type":"update","id":8,"path":"a","value":[1]}`, 8},
		{"not json", `hello`, 0},
		{"value from client", `{"type":"value","id":9,"path":"a","value":1}`, 9},
		{"ack from client", `{"type":"ack","id":10}`, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatalf("WriteMessage() error = %v", err)
			}
			_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, data, err := ws.ReadMessage()
			if err != nil {
				t.Fatalf("ReadMessage() error = %v", err)
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				t.Fatalf("ParseMessage(%s) error = %v", data, err)
			}
			if msg.Type != protocol.TypeError {
				t.Errorf("reply type = %s, want error", msg.Type)
			}
			if msg.ID != tt.wantID {
				t.Errorf("reply id = %d, want %d", msg.ID, tt.wantID)
			}
		})
	}
}

func TestServer_AckCarriesRevision(t *testing.T) {
	_, ts := newTestServer(t, &Config{})
	ws, _, err := websocket.DefaultDialer.Dial(sessionURL(ts, "revs"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = ws.Close() }()

	send := func(msg *protocol.Message) *protocol.Message {
		t.Helper()
		data, err := protocol.Encode(msg)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, reply, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		out, err := protocol.ParseMessage(reply)
		if err != nil {
			t.Fatalf("ParseMessage() error = %v", err)
		}
		return out
	}

	tests := []struct {
		name    string
		value   any
		wantRev uint64
	}{
		{"first write", 1, 1},
		{"second write", 2, 2},
		{"unchanged write", 2, 2},
	}
	for _, tt := range tests {
		msg, err := protocol.NewSet("x", tt.value)
		if err != nil {
			t.Fatalf("NewSet() error = %v", err)
		}
		reply := send(msg)
		if reply.Type != protocol.TypeAck || reply.ID != msg.ID || reply.Rev != tt.wantRev {
			t.Errorf("%s: reply = %s, want ack{id=%d, rev=%d}", tt.name, reply, msg.ID, tt.wantRev)
		}
	}
}

func TestServer_Healthz(t *testing.T) {
	srv, ts := newTestServer(t, &Config{})
	connect(t, sessionURL(ts, "health"))
	waitFor(t, "connection tracked", func() bool { return srv.GetActiveConnections() == 1 })

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("Status = %q, want ok", health.Status)
	}
	if health.Connections != 1 {
		t.Errorf("Connections = %d, want 1", health.Connections)
	}
	if len(health.Sessions) != 1 || health.Sessions[0].ID != "health" || health.Sessions[0].Connections != 1 {
		t.Errorf("Sessions = %+v, want one session \"health\" with 1 connection", health.Sessions)
	}
}

func TestServer_Capture(t *testing.T) {
	dir := t.TempDir()
	srv, ts := newTestServer(t, &Config{AnalysisDir: dir})
	c := connect(t, sessionURL(ts, "captured"))
	ctx := ctxTimeout(t)

	if err := c.Set(ctx, "occupier", "default"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_ = c.Close()
	waitFor(t, "disconnect", func() bool { return srv.GetActiveConnections() == 0 })
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "capture-*.jsonl"))
	if len(matches) != 1 {
		t.Fatalf("capture files = %v, want 1", matches)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	var inbound, outbound int
	var sawSet bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec MessageRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad capture line %q: %v", scanner.Text(), err)
		}
		if rec.Session != "captured" {
			t.Errorf("record session = %q, want captured", rec.Session)
		}
		switch rec.Direction {
		case DirectionInbound:
			inbound++
			if rec.Type == "set" && rec.Path == "occupier" && string(rec.Payload) != "" {
				sawSet = true
			}
		case DirectionOutbound:
			outbound++
		}
	}
	if !sawSet {
		t.Error("capture has no inbound set for occupier")
	}
	if inbound == 0 || outbound == 0 {
		t.Errorf("capture inbound = %d, outbound = %d, want both > 0", inbound, outbound)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv, err := New(&Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	url := "ws://" + srv.Addr().String() + "/ws/shutdown"
	c := connect(t, url)
	waitFor(t, "connection tracked", func() bool { return srv.GetActiveConnections() == 1 })

	cancel()

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Error("client still connected after shutdown")
	}
	if n := srv.GetActiveConnections(); n != 0 {
		t.Errorf("GetActiveConnections() = %d after shutdown, want 0", n)
	}
}

func TestServer_GeneratedCertificate(t *testing.T) {
	srv, err := New(&Config{Host: "127.0.0.1", GenerateCert: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, ln) }()

	url := "wss://" + srv.Addr().String() + "/ws/secure"

	// Untrusted by default.
	strict := sdata.NewClient(url)
	err = strict.Connect(ctxTimeout(t))
	if err == nil {
		_ = strict.Close()
		t.Fatal("Connect() with default roots succeeded, want certificate error")
	}
	if got := ClassifyDialError(err, url).Type; got != ErrTypeTLS {
		t.Errorf("ClassifyDialError().Type = %v, want %v (err: %v)", got, ErrTypeTLS, err)
	}

	dialer := &websocket.Dialer{
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test relay
		HandshakeTimeout: 5 * time.Second,
	}
	a := connect(t, url, sdata.WithDialer(dialer))
	b := connect(t, url, sdata.WithDialer(dialer))
	seen := watchPath(b, "occupier")

	if err := a.Set(ctxTimeout(t), "occupier", "walk-through"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	waitFor(t, "value over TLS", func() bool { return seen.last() == `"walk-through"` })
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantErrs int
	}{
		{"defaults", Config{Port: 8080}, 0},
		{"cert and key", Config{CertPath: "c.pem", KeyPath: "k.pem"}, 0},
		{"generated", Config{GenerateCert: true}, 0},
		{"bad port", Config{Port: 70000}, 1},
		{"cert without key", Config{CertPath: "c.pem"}, 1},
		{"generate with cert", Config{GenerateCert: true, CertPath: "c.pem", KeyPath: "k.pem"}, 1},
		{"negative limits", Config{RateLimit: -1, Burst: -1}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errs := tt.config.Validate(); len(errs) != tt.wantErrs {
				t.Errorf("Validate() = %v, want %d errors", errs, tt.wantErrs)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(&Config{CertPath: "missing.pem"}); err == nil {
		t.Error("New() error = nil, want validation error")
	}
	if _, err := New(&Config{CertPath: "missing.pem", KeyPath: "missing.key"}); err == nil {
		t.Error("New() error = nil, want certificate load error")
	}
}

func TestServer_NewLimiter(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantNil   bool
		wantBurst int
	}{
		{"disabled", Config{}, true, 0},
		{"default burst", Config{RateLimit: 20}, false, 21},
		{"explicit burst", Config{RateLimit: 20, Burst: 5}, false, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{config: &tt.config}
			l := s.newLimiter()
			if (l == nil) != tt.wantNil {
				t.Fatalf("newLimiter() = %v, want nil %v", l, tt.wantNil)
			}
			if l != nil && l.Burst() != tt.wantBurst {
				t.Errorf("Burst() = %d, want %d", l.Burst(), tt.wantBurst)
			}
		})
	}
}
