package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Relay represents a squidly-relay advertised on the local network
type Relay struct {
	// Instance is the mDNS instance name (e.g., "Living room")
	Instance string

	// Hostname is the mDNS hostname (e.g., "studio.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the relay has none
	IP string

	// Port is the relay's HTTP port
	Port int

	// Metadata contains the mDNS TXT record data
	// Common fields: "version=v0.3.0", "tls=1"
	Metadata map[string]string

	// DiscoveredAt is when the relay was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the relay
func (r *Relay) String() string {
	return fmt.Sprintf("Squidly relay %q (%s) at %s", r.Instance, r.Hostname, r.hostPort())
}

// TLS reports whether the relay advertises TLS.
func (r *Relay) TLS() bool {
	return r.GetMetadata(TXTTLS) == "1"
}

// BaseURL returns the websocket base URL for the relay
func (r *Relay) BaseURL() string {
	scheme := "ws"
	if r.TLS() {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, r.hostPort())
}

// SessionURL returns the websocket URL of session id on this relay.
func (r *Relay) SessionURL(id string) string {
	return r.BaseURL() + "/ws/" + id
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (r *Relay) GetMetadata(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

func (r *Relay) hostPort() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(r.Port))
}
