package gofhem

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/c360/gofhem/errors"
	"github.com/c360/gofhem/transport"
)

// Log levels. The level only tunes verbosity, control flow never
// depends on it.
const (
	LogSilent = iota
	LogErrors
	LogInfo
	LogDebug
)

// Config describes one FHEM server connection. The zero value plus a
// Server is usable: telnet on the default port with default timeouts.
// A Config is copied at construction and immutable afterwards.
type Config struct {
	// Server is the FHEM host name or IP address.
	Server string

	// Port of the chosen service. Zero selects the protocol default,
	// 7072 for telnet and 8083 for http(s).
	Port int

	// Protocol selects the transport: telnet, http or https.
	// Defaults to telnet.
	Protocol transport.Protocol

	// UseSSL wraps the telnet socket in TLS. Use the https protocol
	// for TLS on the web interface.
	UseSSL bool

	// Username for HTTP basic auth. Telnet has no user names.
	Username string

	// Password is the HTTP basic auth password, or the global telnet
	// password when the telnet service is password protected.
	Password string

	// CAFile points to an extra trusted CA certificate. Empty skips
	// certificate verification, which is how most self-signed FHEM
	// installations run.
	CAFile string

	// DisableCSRF skips FHEMWEB token negotiation. Only valid against
	// instances configured with csrfToken none.
	DisableCSRF bool

	// ReadTimeout is the short receive window on the telnet socket.
	// Defaults to 100ms.
	ReadTimeout time.Duration

	// RequestTimeout bounds dialing and HTTP request cycles.
	// Defaults to 10s.
	RequestTimeout time.Duration

	// EventTimeout is the keep-alive bound on the event stream: silence
	// longer than this means the connection is dead. Defaults to 60s.
	EventTimeout time.Duration

	// LogLevel tunes the default logger: 0 silent, 1 errors, 2 info,
	// 3 debug. Ignored when a logger is injected.
	LogLevel int
}

// DefaultConfig returns the connection defaults.
func DefaultConfig() Config {
	return Config{
		Protocol:       transport.ProtocolTelnet,
		ReadTimeout:    100 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
		EventTimeout:   60 * time.Second,
		LogLevel:       LogErrors,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Protocol == "" {
		c.Protocol = defaults.Protocol
	}
	if c.Port == 0 {
		c.Port = c.Protocol.DefaultPort()
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = defaults.EventTimeout
	}
	return c
}

// Validate checks the configuration for usability. Call after
// withDefaults so protocol and ports are populated.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "server validation")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", "port validation")
	}
	if _, err := transport.ParseProtocol(c.Protocol.String()); err != nil {
		return err
	}
	if c.UseSSL && c.Protocol != transport.ProtocolTelnet {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", "UseSSL applies to telnet only, use the https protocol")
	}
	if c.Username != "" && c.Protocol == transport.ProtocolTelnet {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", "telnet authenticates with a password only")
	}
	if c.LogLevel < LogSilent || c.LogLevel > LogDebug {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", "log level out of range")
	}
	return nil
}

// newLogger builds the default logger for the configured level.
func (c Config) newLogger() *slog.Logger {
	if c.LogLevel == LogSilent {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	level := slog.LevelError
	switch c.LogLevel {
	case LogInfo:
		level = slog.LevelInfo
	case LogDebug:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// telnetConfig maps the connection config onto the telnet transport.
func (c Config) telnetConfig(logger *slog.Logger) transport.TelnetConfig {
	return transport.TelnetConfig{
		Server:         c.Server,
		Port:           c.Port,
		UseTLS:         c.UseSSL,
		Password:       c.Password,
		CAFile:         c.CAFile,
		ConnectTimeout: c.RequestTimeout,
		ReadTimeout:    c.ReadTimeout,
		Logger:         logger.With("component", "telnet"),
	}
}

// httpConfig maps the connection config onto the HTTP transport.
func (c Config) httpConfig(logger *slog.Logger) transport.HTTPConfig {
	return transport.HTTPConfig{
		Server:         c.Server,
		Port:           c.Port,
		UseTLS:         c.Protocol == transport.ProtocolHTTPS,
		Username:       c.Username,
		Password:       c.Password,
		CAFile:         c.CAFile,
		DisableCSRF:    c.DisableCSRF,
		RequestTimeout: c.RequestTimeout,
		Logger:         logger.With("component", "http"),
	}
}

// newTransport builds the transport for the configured protocol.
func (c Config) newTransport(logger *slog.Logger) (transport.Transport, error) {
	switch c.Protocol {
	case transport.ProtocolTelnet:
		return transport.NewTelnet(c.telnetConfig(logger))
	case transport.ProtocolHTTP, transport.ProtocolHTTPS:
		return transport.NewHTTP(c.httpConfig(logger))
	}
	return nil, errors.WrapInvalid(errors.ErrUnsupportedProtocol,
		"Config", "newTransport", "transport selection")
}
