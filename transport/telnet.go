package transport

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/gofhem/errors"
)

const (
	// recvBufferSize matches the largest burst a FHEM telnet peer sends
	// in one segment.
	recvBufferSize = 32 * 1024

	// drainWindow is how long Receive keeps reading after the first
	// chunk so multi-segment responses arrive whole.
	drainWindow = 20 * time.Millisecond

	// authProbeWindow is how long to wait for the server's reaction to
	// the password. FHEM closes the socket on a rejected password and
	// stays silent on an accepted one.
	authProbeWindow = 500 * time.Millisecond
)

// TelnetConfig holds configuration for the telnet transport.
type TelnetConfig struct {
	// Server is the FHEM host name or address.
	Server string

	// Port of the telnet service. Zero selects the FHEM default 7072.
	Port int

	// UseTLS wraps the connection in TLS.
	UseTLS bool

	// Password for the telnet password prompt, empty when the service
	// runs unauthenticated.
	Password string

	// CAFile is an additional trusted CA for TLS verification. Without
	// it the server certificate is not verified.
	CAFile string

	// ConnectTimeout bounds dialing and the authentication exchange.
	ConnectTimeout time.Duration

	// ReadTimeout is the default response window for Receive and Exec.
	ReadTimeout time.Duration

	// Logger for connection lifecycle events. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultTelnetConfig returns sensible defaults for the telnet transport.
func DefaultTelnetConfig() TelnetConfig {
	return TelnetConfig{
		Port:           ProtocolTelnet.DefaultPort(),
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    100 * time.Millisecond,
	}
}

// Validate checks the configuration for usability.
func (c *TelnetConfig) Validate() error {
	if c.Server == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"TelnetConfig", "Validate", "server validation")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"TelnetConfig", "Validate", "port validation")
	}
	return nil
}

// Telnet is a persistent connection to the FHEM telnet service. It
// implements Streamer: beyond the command round trip it can read the
// unsolicited event pushes the inform command subscribes to.
type Telnet struct {
	config TelnetConfig
	logger *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	connected atomic.Bool

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
}

var _ Streamer = (*Telnet)(nil)

// NewTelnet creates a telnet transport from the configuration. The
// connection is established by Connect, not here.
func NewTelnet(cfg TelnetConfig) (*Telnet, error) {
	defaults := DefaultTelnetConfig()
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "telnet")
	}

	return &Telnet{config: cfg, logger: logger}, nil
}

// Connect dials the server, wraps the connection in TLS if configured,
// and answers the password prompt. Connecting while connected is a
// no-op.
func (t *Telnet) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected.Load() {
		return nil
	}
	if t.conn != nil {
		// Stale socket from a lost connection
		_ = t.conn.Close()
		t.conn = nil
	}

	addr := net.JoinHostPort(t.config.Server, strconv.Itoa(t.config.Port))
	t.logger.Debug("Connecting", "address", addr, "tls", t.config.UseTLS)

	dialer := &net.Dialer{Timeout: t.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.WrapFatal(err, "Telnet", "Connect", "dial server")
	}

	if t.config.UseTLS {
		tlsCfg, err := clientTLSConfig(t.config.CAFile)
		if err != nil {
			_ = conn.Close()
			return err
		}
		tlsCfg.ServerName = t.config.Server
		tlsConn := tls.Client(conn, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return errors.WrapFatal(err, "Telnet", "Connect", "TLS handshake")
		}
		conn = tlsConn
	}

	if t.config.Password != "" {
		if err := t.authenticate(conn); err != nil {
			_ = conn.Close()
			return err
		}
	}

	t.conn = conn
	t.connected.Store(true)
	t.logger.Debug("Connected", "address", addr)
	return nil
}

// authenticate performs the telnet password exchange: wait for the
// prompt, send the password, then probe the server's reaction. FHEM
// closes the socket on a rejected password and stays silent otherwise.
func (t *Telnet) authenticate(conn net.Conn) error {
	buf := make([]byte, recvBufferSize)

	_ = conn.SetReadDeadline(time.Now().Add(t.config.ConnectTimeout))
	n, err := conn.Read(buf)
	if err != nil {
		return errors.WrapFatal(err, "Telnet", "authenticate", "read password prompt")
	}
	t.logger.Debug("Password prompt received", "prompt", string(buf[:n]))

	if _, err := conn.Write([]byte(t.config.Password + "\n")); err != nil {
		return errors.WrapFatal(err, "Telnet", "authenticate", "send password")
	}

	_ = conn.SetReadDeadline(time.Now().Add(authProbeWindow))
	n, err = conn.Read(buf)
	if err != nil {
		var nerr net.Error
		if stderrors.As(err, &nerr) && nerr.Timeout() {
			// No reaction within the window means accepted
			_ = conn.SetReadDeadline(time.Time{})
			return nil
		}
		return errors.Wrap(errors.ErrAuthenticationFailed,
			"Telnet", "authenticate", "verify password")
	}
	t.logger.Debug("Authentication reply received", "reply", string(buf[:n]))

	_ = conn.SetReadDeadline(time.Time{})
	return nil
}

// Connected reports whether the connection is believed usable.
func (t *Telnet) Connected() bool {
	return t.connected.Load()
}

// Send writes raw bytes to the connection.
func (t *Telnet) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil || !t.connected.Load() {
		return errors.Wrap(errors.ErrNotConnected, "Telnet", "Send", "write")
	}

	if _, err := conn.Write(data); err != nil {
		t.markLost()
		return errors.WrapTransient(err, "Telnet", "Send", "write")
	}
	t.bytesSent.Add(int64(len(data)))
	return nil
}

// Receive collects whatever the server pushed within the window. Once
// the first chunk arrives it keeps draining briefly so responses split
// across segments come back whole. No data within the window returns
// an empty payload and nil error.
func (t *Telnet) Receive(timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil, errors.Wrap(errors.ErrNotConnected, "Telnet", "Receive", "read")
	}
	if !t.connected.Load() {
		return nil, errors.Wrap(errors.ErrConnectionLost, "Telnet", "Receive", "read")
	}

	if timeout <= 0 {
		timeout = t.config.ReadTimeout
	}

	var out []byte
	buf := make([]byte, recvBufferSize)
	window := timeout

	for {
		_ = conn.SetReadDeadline(time.Now().Add(window))
		n, err := conn.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			t.bytesReceived.Add(int64(n))
		}
		if err != nil {
			var nerr net.Error
			if stderrors.As(err, &nerr) && nerr.Timeout() {
				// Window elapsed, deliver what arrived
				return out, nil
			}
			t.markLost()
			if stderrors.Is(err, io.EOF) {
				if len(out) > 0 {
					// Deliver the tail, the loss surfaces on the
					// next call
					return out, nil
				}
				return nil, errors.Wrap(errors.ErrConnectionLost,
					"Telnet", "Receive", "read")
			}
			return out, errors.WrapTransient(err, "Telnet", "Receive", "read")
		}
		window = drainWindow
	}
}

// Exec sends a command and collects the response payload. In blocking
// mode it keeps polling in response-window steps until data arrives,
// the context ends, or the connection drops. Otherwise an elapsed
// window yields an empty payload.
func (t *Telnet) Exec(ctx context.Context, cmd string, opts ExecOptions) ([]byte, error) {
	if err := t.Send([]byte(cmd + "\n")); err != nil {
		return nil, err
	}

	window := opts.Timeout
	if window <= 0 {
		window = t.config.ReadTimeout
	}

	if !opts.Blocking {
		return t.Receive(window)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, errors.WrapTransient(ctx.Err(), "Telnet", "Exec", "wait for response")
		default:
		}

		data, err := t.Receive(window)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			return data, nil
		}
	}
}

// Close releases the connection. Safe to call more than once.
func (t *Telnet) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.connected.Store(false)
	t.logger.Debug("Connection closed")

	if err != nil {
		return errors.WrapTransient(err, "Telnet", "Close", "close socket")
	}
	return nil
}

// markLost flags the connection unusable. The socket itself is
// released by Close or the next Connect.
func (t *Telnet) markLost() {
	if t.connected.CompareAndSwap(true, false) {
		t.logger.Debug("Connection lost")
	}
}
