package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/gofhem/errors"
)

// HTTPConfig holds configuration for the FHEMWEB HTTP transport.
type HTTPConfig struct {
	// Server is the FHEM host name or address.
	Server string

	// Port of the FHEMWEB service. Zero selects the FHEM default 8083.
	Port int

	// UseTLS switches to https.
	UseTLS bool

	// Username and Password for HTTP basic auth, empty when FHEMWEB
	// runs without it.
	Username string
	Password string

	// CAFile is an additional trusted CA for TLS verification. Without
	// it the server certificate is not verified.
	CAFile string

	// DisableCSRF skips token negotiation. Only valid against FHEMWEB
	// instances configured with csrfToken none.
	DisableCSRF bool

	// RequestTimeout is the default per-request deadline.
	RequestTimeout time.Duration

	// Logger for connection lifecycle events. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultHTTPConfig returns sensible defaults for the HTTP transport.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Port:           ProtocolHTTP.DefaultPort(),
		RequestTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for usability.
func (c *HTTPConfig) Validate() error {
	if c.Server == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"HTTPConfig", "Validate", "server validation")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"HTTPConfig", "Validate", "port validation")
	}
	return nil
}

// HTTP talks to FHEMWEB, one request per command. FHEMWEB demands a
// CSRF token with every mutating request, so Connect scrapes one from
// the start page and Exec renegotiates once when the server reports it
// stale.
type HTTP struct {
	config  HTTPConfig
	logger  *slog.Logger
	client  *http.Client
	baseURL string

	mu        sync.Mutex
	csrfToken string
	connected atomic.Bool

	requestsSent atomic.Int64
}

var _ Transport = (*HTTP)(nil)

// NewHTTP creates an HTTP transport from the configuration.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	defaults := DefaultHTTPConfig()
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "http")
	}

	scheme := "http"
	httpTransport := http.DefaultTransport
	if cfg.UseTLS {
		scheme = "https"
		tlsCfg, err := clientTLSConfig(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		httpTransport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	return &HTTP{
		config: cfg,
		logger: logger,
		client: &http.Client{Transport: httpTransport},
		baseURL: fmt.Sprintf("%s://%s/fhem", scheme,
			net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))),
	}, nil
}

// Connect negotiates the CSRF token. With CSRF disabled no network
// traffic happens until the first command.
func (h *HTTP) Connect(ctx context.Context) error {
	if h.config.DisableCSRF {
		h.connected.Store(true)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.RequestTimeout)
	defer cancel()

	token, err := h.fetchCSRFToken(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.csrfToken = token
	h.mu.Unlock()
	h.connected.Store(true)

	h.logger.Debug("CSRF token negotiated", "token", token)
	return nil
}

// Connected reports whether Connect has succeeded.
func (h *HTTP) Connected() bool {
	return h.connected.Load()
}

// Send executes a command without delivering the response.
func (h *HTTP) Send(data []byte) error {
	cmd := strings.TrimRight(string(data), "\n")
	_, err := h.Exec(context.Background(), cmd, ExecOptions{})
	return err
}

// Exec sends one command and returns the response body. An elapsed
// request deadline yields an empty payload and nil error. A 400 from
// FHEMWEB means the CSRF token went stale, typically after a server
// restart; the token is renegotiated and the command retried once.
func (h *HTTP) Exec(ctx context.Context, cmd string, opts ExecOptions) ([]byte, error) {
	if !h.connected.Load() {
		return nil, errors.Wrap(errors.ErrNotConnected, "HTTP", "Exec", "request")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = h.config.RequestTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, status, err := h.do(ctx, cmd)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			h.logger.Debug("Request window elapsed", "cmd", cmd)
			return nil, nil
		}
		return nil, errors.Wrap(err, "HTTP", "Exec", "request")
	}

	if status == http.StatusBadRequest && !h.config.DisableCSRF {
		h.logger.Debug("Stale CSRF token, renegotiating")
		token, terr := h.fetchCSRFToken(ctx)
		if terr != nil {
			return nil, terr
		}
		h.mu.Lock()
		h.csrfToken = token
		h.mu.Unlock()

		data, status, err = h.do(ctx, cmd)
		if err != nil {
			if stderrors.Is(err, context.DeadlineExceeded) {
				return nil, nil
			}
			return nil, errors.Wrap(err, "HTTP", "Exec", "retry request")
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, errors.Wrap(errors.ErrAuthenticationFailed, "HTTP", "Exec", "authorize request")
	case status >= 400:
		return nil, errors.WrapTransient(
			fmt.Errorf("server returned status %d", status),
			"HTTP", "Exec", "request")
	}

	return data, nil
}

// do performs a single FHEMWEB exchange. The command always rides the
// query string; with a CSRF token in hand the request becomes a POST
// carrying the token as form data.
func (h *HTTP) do(ctx context.Context, cmd string) ([]byte, int, error) {
	query := url.Values{}
	query.Set("XHR", "1")
	query.Set("cmd", cmd)
	reqURL := h.baseURL + "?" + query.Encode()

	h.mu.Lock()
	token := h.csrfToken
	h.mu.Unlock()

	var req *http.Request
	var err error
	if token != "" {
		form := url.Values{}
		form.Set("fwcsrf", token)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, reqURL,
			strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	}
	if err != nil {
		return nil, 0, errors.WrapInvalid(err, "HTTP", "do", "build request")
	}

	if h.config.Username != "" {
		req.SetBasicAuth(h.config.Username, h.config.Password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.WrapTransient(err, "HTTP", "do", "read response")
	}

	h.requestsSent.Add(1)
	return body, resp.StatusCode, nil
}

// fetchCSRFToken scrapes the token from the FHEMWEB start page.
func (h *HTTP) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"?XHR=1", nil)
	if err != nil {
		return "", errors.WrapInvalid(err, "HTTP", "fetchCSRFToken", "build request")
	}
	if h.config.Username != "" {
		req.SetBasicAuth(h.config.Username, h.config.Password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "HTTP", "fetchCSRFToken", "request start page")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", errors.Wrap(errors.ErrAuthenticationFailed,
			"HTTP", "fetchCSRFToken", "authorize request")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.WrapTransient(err, "HTTP", "fetchCSRFToken", "read start page")
	}

	return scrapeCSRFToken(body)
}

// scrapeCSRFToken extracts the token from FHEMWEB page markup, where
// it appears as fwcsrf='csrf_...'.
func scrapeCSRFToken(body []byte) (string, error) {
	idx := bytes.Index(body, []byte("csrf_"))
	if idx < 0 {
		return "", errors.Wrap(errors.ErrCSRFTokenNotFound,
			"HTTP", "scrapeCSRFToken", "locate token")
	}
	rest := body[idx:]
	end := bytes.IndexByte(rest, '\'')
	if end < 0 {
		return "", errors.Wrap(errors.ErrCSRFTokenNotFound,
			"HTTP", "scrapeCSRFToken", "delimit token")
	}
	return string(rest[:end]), nil
}

// Close releases idle connections and forgets the CSRF token.
func (h *HTTP) Close() error {
	h.connected.Store(false)

	h.mu.Lock()
	h.csrfToken = ""
	h.mu.Unlock()

	h.client.CloseIdleConnections()
	h.logger.Debug("Connection closed")
	return nil
}
