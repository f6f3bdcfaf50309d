// Package transport provides the wire protocols for talking to a FHEM server.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/gofhem/errors"
)

// Protocol identifies how commands reach the server.
type Protocol string

// Supported protocols
const (
	// ProtocolTelnet is the persistent telnet service, plain or TLS.
	ProtocolTelnet Protocol = "telnet"

	// ProtocolHTTP is the FHEMWEB HTTP endpoint, one request per command.
	ProtocolHTTP Protocol = "http"

	// ProtocolHTTPS is ProtocolHTTP over TLS.
	ProtocolHTTPS Protocol = "https"
)

// String returns the protocol name as used in configuration.
func (p Protocol) String() string {
	return string(p)
}

// DefaultPort returns the conventional FHEM port for the protocol.
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolTelnet:
		return 7072
	case ProtocolHTTP, ProtocolHTTPS:
		return 8083
	default:
		return 0
	}
}

// ParseProtocol validates a configuration string against the supported
// protocols.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolTelnet, ProtocolHTTP, ProtocolHTTPS:
		return Protocol(s), nil
	default:
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnsupportedProtocol, s),
			"transport", "ParseProtocol", "protocol validation")
	}
}

// ExecOptions controls how Exec waits for the command response.
type ExecOptions struct {
	// Timeout is the response window. Zero means the transport default.
	Timeout time.Duration

	// Blocking keeps polling past the window until data arrives, the
	// context ends, or the connection drops. Telnet only; HTTP responses
	// always arrive in one exchange.
	Blocking bool
}

// Transport is a command channel to a FHEM server.
//
// Exec sends one command and returns the raw response payload. An
// elapsed response window is not an error: the caller gets an empty
// payload and decides whether that matters.
type Transport interface {
	// Connect establishes the connection, authenticating if configured.
	Connect(ctx context.Context) error

	// Connected reports whether the transport believes the connection
	// is usable. A telnet peer that silently dropped is only detected
	// on the next read or write.
	Connected() bool

	// Send writes raw bytes without waiting for a response.
	Send(data []byte) error

	// Exec sends a command and collects the response payload.
	Exec(ctx context.Context, cmd string, opts ExecOptions) ([]byte, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Streamer is a Transport that can also read unsolicited server pushes,
// which is what the event listener needs. Only telnet supports this.
type Streamer interface {
	Transport

	// Receive collects whatever the server pushed within the window.
	// No data within the window returns an empty payload and nil error.
	Receive(timeout time.Duration) ([]byte, error)
}
