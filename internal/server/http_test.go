package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct", "203.0.113.9:5555", nil, "203.0.113.9"},
		{"forwarded from trusted proxy", "127.0.0.1:5555", map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}, "198.51.100.2"},
		{"real ip from private proxy", "10.0.0.1:5555", map[string]string{"X-Real-IP": "198.51.100.3"}, "198.51.100.3"},
		{"forwarded from untrusted peer ignored", "203.0.113.9:5555", map[string]string{"X-Forwarded-For": "198.51.100.2"}, "203.0.113.9"},
		{"no port", "203.0.113.9", nil, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/a", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := getClientIP(r); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no restriction", nil, "http://anywhere.example", true},
		{"no origin header", []string{"squidly.local"}, "", true},
		{"allowed host", []string{"squidly.local"}, "http://squidly.local", true},
		{"allowed host and port", []string{"squidly.local:8080"}, "http://squidly.local:8080", true},
		{"case insensitive", []string{"Squidly.Local"}, "https://SQUIDLY.local", true},
		{"other host", []string{"squidly.local"}, "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpgrader(tt.origins)
			r := httptest.NewRequest(http.MethodGet, "/ws/a", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := u.CheckOrigin(r); got != tt.want {
				t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONError(w, http.StatusBadRequest, "invalid session id")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := w.Body.String(); body != "{\"error\":\"invalid session id\"}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestCapture_NilIsDisabled(t *testing.T) {
	c, err := NewCapture("")
	if err != nil || c != nil {
		t.Fatalf("NewCapture(\"\") = %v, %v; want nil, nil", c, err)
	}
	c.Record("s", "addr", DirectionInbound, 1, []byte("{}"), nil)
	if c.Filename() != "" {
		t.Errorf("Filename() = %q, want empty", c.Filename())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestToASCII(t *testing.T) {
	if got := toASCII([]byte{'h', 'i', 0x00, 0x7f, '!'}); got != "hi..!" {
		t.Errorf("toASCII() = %q, want %q", got, "hi..!")
	}
}
