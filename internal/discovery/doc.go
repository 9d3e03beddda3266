// Package discovery finds squidly-relay instances on the local network.
//
// Relays advertise themselves over multicast DNS as "_squidly._tcp" services
// (see Advertise). Clients browse for them with a Scanner and connect to
// Relay.SessionURL.
//
// # Usage Example
//
//	relays, err := discovery.NewScanner().ScanForRelays(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, r := range relays {
//	    fmt.Println(r, r.SessionURL(sessionID))
//	}
//
// # TXT Records
//
// Relays publish "version" and "tls" ("1" when serving wss://). Unknown keys
// are kept in Relay.Metadata.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Relays must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
