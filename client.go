package gofhem

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/gofhem/errors"
	"github.com/c360/gofhem/metric"
	"github.com/c360/gofhem/reading"
	"github.com/c360/gofhem/transport"
)

// Client is the synchronous command interface to one FHEM server:
// send commands, run jsonlist2 queries, read device state. A Client
// serializes transport access, so it is safe for concurrent use; one
// call blocks at most its response window unless blocking was
// requested.
type Client struct {
	config    Config
	logger    *slog.Logger
	metrics   *metric.Metrics
	reconnect bool

	mu        sync.Mutex
	transport transport.Transport
}

// ClientOption adjusts client construction.
type ClientOption func(*Client)

// WithLogger replaces the LogLevel-derived default logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTransport injects a prebuilt transport instead of constructing
// one from the config.
func WithTransport(t transport.Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

// WithReconnect redials once when a command hits a lost connection.
// Off by default: the caller owns retry policy.
func WithReconnect() ClientOption {
	return func(c *Client) { c.reconnect = true }
}

// WithClientMetrics records command and connection metrics into the
// given registry.
func WithClientMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) { c.metrics = registry.Metrics }
}

// NewClient creates a client for the configured server. The connection
// is established lazily: on Connect or the first command.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = cfg.newLogger()
	}
	c.logger = c.logger.With("server", cfg.Server, "protocol", cfg.Protocol.String())

	if c.transport == nil {
		t, err := cfg.newTransport(c.logger)
		if err != nil {
			return nil, err
		}
		c.transport = t
	}
	return c, nil
}

// Connect establishes the connection. Commands connect on demand, so
// calling this is only needed to surface connection errors early.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.transport.Connected() {
		return nil
	}
	if err := c.transport.Connect(ctx); err != nil {
		c.metrics.RecordConnection(c.config.Protocol.String(), false)
		return err
	}
	c.metrics.RecordConnection(c.config.Protocol.String(), true)
	return nil
}

// Connected reports whether the transport holds a usable connection.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// Close releases the connection. The client remains usable, the next
// command reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.transport.Close()
	c.metrics.RecordConnection(c.config.Protocol.String(), false)
	return err
}

// SendCmd sends a command without waiting for a response.
func (c *Client) SendCmd(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	err := c.transport.Send([]byte(cmd + "\n"))
	if err != nil && c.shouldRedial(err) {
		if rerr := c.redialLocked(ctx); rerr == nil {
			err = c.transport.Send([]byte(cmd + "\n"))
		}
	}
	if err != nil {
		c.metrics.RecordCommandError(c.config.Protocol.String(), errors.Classify(err).String())
		return err
	}
	c.metrics.RecordCommand(c.config.Protocol.String())
	return nil
}

// SendRecvCmd sends a command and collects the response payload. A
// silent window yields an empty payload, not an error. With blocking
// set the call waits for data until the context ends or the
// connection drops; timeout zero uses the configured default window.
func (c *Client) SendRecvCmd(ctx context.Context, cmd string, timeout time.Duration, blocking bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execLocked(ctx, cmd, transport.ExecOptions{Timeout: timeout, Blocking: blocking})
}

func (c *Client) execLocked(ctx context.Context, cmd string, opts transport.ExecOptions) ([]byte, error) {
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	payload, err := c.transport.Exec(ctx, cmd, opts)
	if err != nil && c.shouldRedial(err) {
		if rerr := c.redialLocked(ctx); rerr == nil {
			payload, err = c.transport.Exec(ctx, cmd, opts)
		}
	}
	if err != nil {
		c.metrics.RecordCommandError(c.config.Protocol.String(), errors.Classify(err).String())
		return nil, err
	}
	c.metrics.RecordCommand(c.config.Protocol.String())
	return payload, nil
}

func (c *Client) shouldRedial(err error) bool {
	return c.reconnect && errors.IsTransient(err)
}

func (c *Client) redialLocked(ctx context.Context) error {
	c.logger.Warn("Connection lost, redialing once")
	_ = c.transport.Close()

	err := c.transport.Connect(ctx)
	if err != nil {
		c.logger.Error("Redial failed", "error", err)
	}
	return err
}

// GetRaw runs a jsonlist2 query and returns the raw response bytes.
func (c *Client) GetRaw(ctx context.Context, opts ...QueryOption) ([]byte, error) {
	q := buildQuery(opts)
	return c.SendRecvCmd(ctx, q.command(), q.timeout, false)
}

// Get runs a jsonlist2 query and parses the result. A silent window
// yields an empty list, not an error.
func (c *Client) Get(ctx context.Context, opts ...QueryOption) (*reading.List, error) {
	raw, err := c.GetRaw(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &reading.List{}, nil
	}
	return reading.ParseList(raw)
}

// GetFhemState retrieves the complete server state: every device with
// internals, readings and attributes.
func (c *Client) GetFhemState(ctx context.Context, opts ...QueryOption) (*reading.List, error) {
	return c.Get(ctx, opts...)
}

// GetStates returns the state reading value per matched device.
func (c *Client) GetStates(ctx context.Context, opts ...QueryOption) (map[string]any, error) {
	list, err := c.Get(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return list.States(), nil
}

// GetReadings returns the readings per matched device, restricted to
// one reading name when given.
func (c *Client) GetReadings(ctx context.Context, name string, opts ...QueryOption) (map[string]map[string]reading.Reading, error) {
	list, err := c.Get(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return list.Readings(nameArg(name)...), nil
}

// GetReadingValues is GetReadings projected to the values alone.
func (c *Client) GetReadingValues(ctx context.Context, name string, opts ...QueryOption) (map[string]map[string]any, error) {
	list, err := c.Get(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return list.ReadingValues(nameArg(name)...), nil
}

// GetReadingTimes is GetReadings projected to the update times alone.
func (c *Client) GetReadingTimes(ctx context.Context, name string, opts ...QueryOption) (map[string]map[string]time.Time, error) {
	list, err := c.Get(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return list.ReadingTimes(nameArg(name)...), nil
}

// GetAttributes returns the attributes per matched device, restricted
// to one attribute name when given.
func (c *Client) GetAttributes(ctx context.Context, name string, opts ...QueryOption) (map[string]map[string]any, error) {
	list, err := c.Get(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return list.Attributes(nameArg(name)...), nil
}

// GetInternals returns the internals per matched device, restricted to
// one internal name when given.
func (c *Client) GetInternals(ctx context.Context, name string, opts ...QueryOption) (map[string]map[string]any, error) {
	list, err := c.Get(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return list.Internals(nameArg(name)...), nil
}

// GetDevice returns one device record. A device the server does not
// report is ErrNoResult.
func (c *Client) GetDevice(ctx context.Context, device string, opts ...QueryOption) (*reading.Device, error) {
	list, err := c.Get(ctx, append(opts, WithName(device))...)
	if err != nil {
		return nil, err
	}
	d := list.Device(device)
	if d == nil {
		return nil, errors.Wrap(errors.ErrNoResult, "Client", "GetDevice", "device lookup")
	}
	return d, nil
}

// GetDeviceState returns the bare state value of one device.
func (c *Client) GetDeviceState(ctx context.Context, device string, opts ...QueryOption) (any, error) {
	d, err := c.GetDevice(ctx, device, opts...)
	if err != nil {
		return nil, err
	}
	r, ok := d.Readings["state"]
	if !ok {
		return nil, errors.Wrap(errors.ErrNoResult, "Client", "GetDeviceState", "state lookup")
	}
	return r.Value, nil
}

// GetDeviceReading returns one reading of one device. Servers (and
// modules) that answer in the plain text form instead of jsonlist2
// JSON are handled by the fallback grammar; those readings carry the
// receive time.
func (c *Client) GetDeviceReading(ctx context.Context, device, name string, opts ...QueryOption) (reading.Reading, error) {
	raw, err := c.GetRaw(ctx, append(opts, WithName(device))...)
	if err != nil {
		return reading.Reading{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return reading.Reading{}, errors.Wrap(errors.ErrNoResult, "Client", "GetDeviceReading", "reading lookup")
	}

	list, perr := reading.ParseList(raw)
	if perr == nil {
		if d := list.Device(device); d != nil {
			if r, ok := d.Readings[name]; ok {
				return r, nil
			}
		}
		return reading.Reading{}, errors.Wrap(errors.ErrNoResult, "Client", "GetDeviceReading", "reading lookup")
	}

	parsedName, r, terr := reading.ParseTextReading(raw, time.Now())
	if terr != nil {
		c.logger.Debug("Plain text fallback failed", "error", terr)
		return reading.Reading{}, perr
	}
	if parsedName != "" && parsedName != name {
		return reading.Reading{}, errors.Wrap(errors.ErrNoResult, "Client", "GetDeviceReading", "reading lookup")
	}
	return r, nil
}

// GetDeviceReadings returns all readings of one device.
func (c *Client) GetDeviceReadings(ctx context.Context, device string, opts ...QueryOption) (map[string]reading.Reading, error) {
	d, err := c.GetDevice(ctx, device, opts...)
	if err != nil {
		return nil, err
	}
	return d.Readings, nil
}

// GetDeviceAttributes returns all attributes of one device.
func (c *Client) GetDeviceAttributes(ctx context.Context, device string, opts ...QueryOption) (map[string]any, error) {
	d, err := c.GetDevice(ctx, device, opts...)
	if err != nil {
		return nil, err
	}
	return d.Attributes, nil
}

// GetDeviceInternals returns all internals of one device.
func (c *Client) GetDeviceInternals(ctx context.Context, device string, opts ...QueryOption) (map[string]any, error) {
	d, err := c.GetDevice(ctx, device, opts...)
	if err != nil {
		return nil, err
	}
	return d.Internals, nil
}

func nameArg(name string) []string {
	if name == "" {
		return nil
	}
	return []string{name}
}
