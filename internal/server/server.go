package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/squidly/internal/discovery"
	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/version"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long Shutdown waits for connections to drain.
const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Host         string
	Port         int
	CertPath     string // Path to certificate file (optional)
	KeyPath      string // Path to private key file (optional)
	GenerateCert bool   // If true, serve TLS with an in-memory self-signed certificate
	LogLevel     string
	AnalysisDir  string // Directory to write message capture logs (empty = disabled)

	// RateLimit is the sustained writes per second allowed per connection
	// (0 = unlimited). Burst defaults to RateLimit+1.
	RateLimit float64
	Burst     int

	// AllowedOrigins restricts browser Origin hosts (empty = any).
	AllowedOrigins []string

	// Advertise registers the relay over mDNS under this instance name
	// (empty = not advertised).
	Advertise string
}

// Validate checks the configuration before the server starts.
func (c *Config) Validate() []error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 0 and 65535, got %d", c.Port))
	}
	if (c.CertPath == "") != (c.KeyPath == "") {
		errs = append(errs, errors.New("--cert and --key must be given together"))
	}
	if c.GenerateCert && c.CertPath != "" {
		errs = append(errs, errors.New("--generate-cert cannot be combined with --cert"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit))
	}
	if c.Burst < 0 {
		errs = append(errs, fmt.Errorf("burst must not be negative, got %d", c.Burst))
	}
	return errs
}

// TLS reports whether the configuration serves wss://.
func (c *Config) TLS() bool {
	return c.GenerateCert || c.CertPath != ""
}

// Server relays replicated session data between websocket clients
type Server struct {
	config     *Config
	hub        *Hub
	tlsConfig  *tls.Config
	upgrader   websocket.Upgrader
	capture    *Capture
	httpServer *http.Server

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[*client]struct{}
	closing     bool
	addr        net.Addr
	ready       chan struct{}
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if err := logging.Initialize(config.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	if errs := config.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid server configuration: %w", errors.Join(errs...))
	}

	var tlsConfig *tls.Config
	var err error
	switch {
	case config.GenerateCert:
		logging.Info("Generating self-signed relay certificate")
		certPEM, keyPEM, err := GenerateSelfSigned([]string{config.Host})
		if err != nil {
			return nil, fmt.Errorf("failed to generate certificate: %w", err)
		}
		tlsConfig, err = NewTLSConfigFromMemory(certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
	case config.CertPath != "":
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	capture, err := NewCapture(config.AnalysisDir)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:      config,
		hub:         NewHub(logging.Named("hub")),
		tlsConfig:   tlsConfig,
		upgrader:    newUpgrader(config.AllowedOrigins),
		capture:     capture,
		activeConns: make(map[*client]struct{}),
		ready:       make(chan struct{}),
	}, nil
}

// Start starts the server and blocks until a shutdown signal or error
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}

	s.mu.Lock()
	s.addr = listener.Addr()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logging.Named("http")),
	}
	httpServer := s.httpServer
	s.mu.Unlock()
	close(s.ready)

	logging.Info("Starting Squidly relay",
		zap.String("addr", listener.Addr().String()),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
		zap.Float64("rate_limit", s.config.RateLimit),
		zap.String("analysis_file", s.capture.Filename()),
	)

	if s.config.Advertise != "" {
		tlsFlag := "0"
		if s.tlsConfig != nil {
			tlsFlag = "1"
		}
		ad, err := discovery.Advertise(s.config.Advertise, listener.Addr().(*net.TCPAddr).Port, map[string]string{
			discovery.TXTVersion: version.Version,
			discovery.TXTTLS:     tlsFlag,
		})
		if err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		}
		defer ad.Shutdown()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr blocks until Serve has started and returns the listening address.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// track registers c unless the server is shutting down.
func (s *Server) track(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.activeConns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *client) {
	s.mu.Lock()
	if _, ok := s.activeConns[c]; ok {
		delete(s.activeConns, c)
		s.wg.Done()
	}
	s.mu.Unlock()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.mu.Lock()
	s.closing = true
	httpServer := s.httpServer
	for c := range s.activeConns {
		logging.Info("Closing active connection",
			zap.String("remote_addr", c.remoteAddr),
			zap.String("session", c.session),
		)
		c.close()
	}
	s.mu.Unlock()

	// Stop accepting new connections. Hijacked websockets are not tracked by
	// http.Server and are drained below.
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	s.hub.Close()
	if err := s.capture.Close(); err != nil {
		logging.Warn("Failed to close analysis file", zap.Error(err))
	}

	logging.Sync()
	return nil
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
