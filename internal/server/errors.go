package server

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"

	"github.com/gorilla/websocket"
)

// Error types for relay connections

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeHandshake indicates the websocket handshake was rejected
	ErrTypeHandshake
	// ErrTypeTimeout indicates a dial or request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates nothing is listening at the relay address
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeTLS indicates certificate or TLS negotiation failure
	ErrTypeTLS
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeHandshake:
		return "Handshake Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeTLS:
		return "TLS Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// RelayError is a classified failure talking to a relay.
type RelayError struct {
	Type      ErrorType // Category of error
	Message   string    // Human-readable error message
	Err       error     // Underlying error (if any)
	RelayURL  string    // Relay address (for context)
	Retryable bool      // Whether reconnecting may help
}

// Error implements the error interface
func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *RelayError) Unwrap() error {
	return e.Err
}

// ClassifyDialError analyzes a failure to reach relayURL. It returns nil for a
// nil error.
func ClassifyDialError(err error, relayURL string) *RelayError {
	if err == nil {
		return nil
	}

	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr
	}

	if errors.Is(err, websocket.ErrBadHandshake) {
		return &RelayError{
			Type:      ErrTypeHandshake,
			Message:   "Relay rejected the websocket handshake",
			Err:       err,
			RelayURL:  relayURL,
			Retryable: false,
		}
	}

	if os.IsTimeout(err) {
		return &RelayError{
			Type:      ErrTypeTimeout,
			Message:   "Connection timed out",
			Err:       err,
			RelayURL:  relayURL,
			Retryable: true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &RelayError{
			Type:      ErrTypeDNS,
			Message:   fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:       err,
			RelayURL:  relayURL,
			Retryable: false,
		}
	}

	if isCertificateError(err) {
		return &RelayError{
			Type:      ErrTypeTLS,
			Message:   "Relay certificate is not trusted",
			Err:       err,
			RelayURL:  relayURL,
			Retryable: false,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &RelayError{
				Type:      ErrTypeConnectionRefused,
				Message:   "Relay refused connection",
				Err:       err,
				RelayURL:  relayURL,
				Retryable: true,
			}
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) || errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return &RelayError{
				Type:      ErrTypeNetwork,
				Message:   "Relay unreachable",
				Err:       err,
				RelayURL:  relayURL,
				Retryable: true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyDialError(urlErr.Err, relayURL)
	}

	return &RelayError{
		Type:      ErrTypeNetwork,
		Message:   "Network error occurred",
		Err:       err,
		RelayURL:  relayURL,
		Retryable: true,
	}
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Retryable
	}
	return false
}

// GetErrorType extracts the error type from an error
func GetErrorType(err error) ErrorType {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Type
	}
	return ErrTypeUnknown
}

// Troubleshooting returns hints for a failed relay connection, most specific
// first.
func Troubleshooting(err error) []string {
	switch GetErrorType(err) {
	case ErrTypeConnectionRefused:
		return []string{
			"Start the relay with: squidly-relay server",
			"Check the port in the relay URL matches --port",
		}
	case ErrTypeDNS:
		return []string{
			"Check the relay hostname is spelled correctly",
			"Use the relay's IP address instead of its name",
		}
	case ErrTypeTLS:
		return []string{
			"Self-signed relays need their certificate trusted on this machine",
			"Use ws:// if the relay was started without --cert",
		}
	case ErrTypeHandshake:
		return []string{
			"Check the relay URL points at a squidly-relay",
			"Add this origin with --allowed-origin if the relay restricts origins",
		}
	case ErrTypeTimeout:
		return []string{
			"Check this computer can reach the relay's network",
			"Firewalls may be dropping connections to the relay port",
		}
	default:
		return []string{
			"Check the relay is running and reachable",
			"Run with SQUIDLY_LOG_LEVEL=debug for details",
		}
	}
}
