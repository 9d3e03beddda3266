package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type relays advertise
	ServiceType = "_squidly._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for relay discovery
	DefaultScanTimeout = 5 * time.Second

	// QuickScanTimeout bounds QuickScan
	QuickScanTimeout = 2 * time.Second

	// DefaultPort is used when an entry carries no port
	DefaultPort = 8080
)

// TXT record keys
const (
	TXTVersion = "version"
	TXTTLS     = "tls"
)

// browseFunc streams service entries into entries until ctx ends, then
// closes entries. It returns once browsing has started.
type browseFunc func(ctx context.Context, entries chan *zeroconf.ServiceEntry) error

// defaultBrowse is copied into every Scanner built by NewScanner.
var defaultBrowse browseFunc = browseZeroconf

func browseZeroconf(ctx context.Context, entries chan *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// Scanner handles mDNS relay discovery
type Scanner struct {
	// Timeout is the maximum time to wait for relay discovery
	Timeout time.Duration

	browse browseFunc
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		browse:  defaultBrowse,
	}
}

func (s *Scanner) startBrowse(ctx context.Context, entries chan *zeroconf.ServiceEntry) error {
	if s.browse == nil {
		return browseZeroconf(ctx, entries)
	}
	return s.browse(ctx, entries)
}

// ScanForRelays discovers all relays on the local network until the timeout
// or ctx ends.
func (s *Scanner) ScanForRelays(ctx context.Context) ([]*Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	var mu sync.Mutex
	seen := make(map[string]*Relay)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for entry := range entries {
			if relay := s.parseServiceEntry(entry); relay != nil {
				mu.Lock()
				seen[relay.Instance] = relay
				mu.Unlock()
			}
		}
	}()

	if err := s.startBrowse(ctx, entries); err != nil {
		return nil, err
	}

	<-ctx.Done()
	select {
	case <-collected:
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	relays := make([]*Relay, 0, len(seen))
	for _, r := range seen {
		relays = append(relays, r)
	}
	sort.Slice(relays, func(i, j int) bool { return relays[i].Instance < relays[j].Instance })
	return relays, nil
}

// WaitForRelay waits for the relay advertised as instance. An empty instance
// returns the first relay found.
func (s *Scanner) WaitForRelay(ctx context.Context, instance string) (*Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Relay, 1)

	go func() {
		for entry := range entries {
			relay := s.parseServiceEntry(entry)
			if relay == nil || (instance != "" && relay.Instance != instance) {
				continue
			}
			select {
			case found <- relay:
				cancel()
			default:
			}
		}
	}()

	if err := s.startBrowse(ctx, entries); err != nil {
		return nil, err
	}

	select {
	case relay := <-found:
		return relay, nil
	case <-ctx.Done():
		select {
		case relay := <-found:
			return relay, nil
		default:
		}
		if instance == "" {
			return nil, fmt.Errorf("no relay found within %s", s.Timeout)
		}
		return nil, fmt.Errorf("relay %q not found within %s", instance, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Relay
// Returns nil if the entry has no instance name or address
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Relay {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	return &Relay{
		Instance:     unescapeInstance(entry.Instance),
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     ParseTXT(entry.Text),
		DiscoveredAt: time.Now(),
	}
}

// ParseTXT parses "key=value" TXT records. A key without "=" maps to "".
func ParseTXT(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	return metadata
}

// BuildTXT is the inverse of ParseTXT, sorted by key.
func BuildTXT(metadata map[string]string) []string {
	records := make([]string, 0, len(metadata))
	for k, v := range metadata {
		records = append(records, k+"="+v)
	}
	sort.Strings(records)
	return records
}

// unescapeInstance undoes the DNS-SD escaping zeroconf leaves in instance names.
func unescapeInstance(name string) string {
	return strings.ReplaceAll(name, `\ `, " ")
}

// QuickScan performs a fast scan bounded by QuickScanTimeout
func QuickScan(ctx context.Context) ([]*Relay, error) {
	scanner := NewScanner()
	scanner.Timeout = QuickScanTimeout
	return scanner.ScanForRelays(ctx)
}
