package gofhem

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/gofhem/errors"
	"github.com/c360/gofhem/event"
	"github.com/c360/gofhem/metric"
	"github.com/c360/gofhem/pkg/queue"
	"github.com/c360/gofhem/transport"
)

// State of the event listener.
type State int32

// Listener states. The normal lifecycle is Stopped, Connecting,
// Listening, Stopping, Stopped.
const (
	StateStopped State = iota
	StateConnecting
	StateListening
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// EventQueue subscribes to the FHEM event stream and delivers parsed
// events through an unbounded queue. It owns one listener goroutine
// and a dedicated telnet connection, never shared with a synchronous
// client.
//
// The queue is single-use: once the stream dies (keep-alive silence,
// transport failure) or Close is called, the listener exits, Done
// closes and remaining events drain to the consumers. Restart policy
// belongs to the caller, who inspects Err and creates a fresh queue.
type EventQueue struct {
	config      Config
	logger      *slog.Logger
	filters     *event.FilterList
	serverRegex string
	rawValues   bool
	metrics     *metric.Metrics
	informCmd   string

	transport transport.Streamer
	queue     *queue.Queue[event.Event]

	state    atomic.Int32
	shutdown chan struct{}
	done     chan struct{}

	mu      sync.Mutex // guards started/closed transitions
	started bool
	closed  bool

	errMu sync.Mutex
	err   error
}

// EventQueueOption adjusts event queue construction.
type EventQueueOption func(*EventQueue)

// WithQueueLogger replaces the LogLevel-derived default logger.
func WithQueueLogger(logger *slog.Logger) EventQueueOption {
	return func(q *EventQueue) { q.logger = logger }
}

// WithFilters delivers only events matching the filter list.
func WithFilters(filters *event.FilterList) EventQueueOption {
	return func(q *EventQueue) { q.filters = filters }
}

// WithServerRegex narrows the event stream server-side with a FHEM
// regex appended to the inform command. Client-side filters still
// apply on top.
func WithServerRegex(pattern string) EventQueueOption {
	return func(q *EventQueue) { q.serverRegex = pattern }
}

// WithRawValues delivers reading values verbatim instead of splitting
// numbers and units.
func WithRawValues() EventQueueOption {
	return func(q *EventQueue) { q.rawValues = true }
}

// WithMetrics records pipeline metrics into the given registry.
func WithMetrics(registry *metric.MetricsRegistry) EventQueueOption {
	return func(q *EventQueue) { q.metrics = registry.Metrics }
}

// WithEventTransport injects a prebuilt stream transport instead of
// constructing one from the config.
func WithEventTransport(t transport.Streamer) EventQueueOption {
	return func(q *EventQueue) { q.transport = t }
}

// NewEventQueue creates an event queue for the configured server. The
// stream starts with Start. Only the telnet protocol carries the
// event stream.
func NewEventQueue(cfg Config, opts ...EventQueueOption) (*EventQueue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Protocol != transport.ProtocolTelnet {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: event stream requires the telnet protocol", errors.ErrUnsupportedProtocol),
			"EventQueue", "NewEventQueue", "protocol validation")
	}

	q := &EventQueue{
		config:   cfg,
		queue:    queue.New[event.Event](),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.logger == nil {
		q.logger = cfg.newLogger()
	}
	q.logger = q.logger.With("component", "eventqueue", "server", cfg.Server)

	q.informCmd = "inform timer"
	if q.serverRegex != "" {
		q.informCmd += " " + q.serverRegex
	}

	if q.transport == nil {
		t, err := transport.NewTelnet(cfg.telnetConfig(q.logger))
		if err != nil {
			return nil, err
		}
		q.transport = t
	}
	return q, nil
}

// Start connects, subscribes to the event stream and launches the
// listener goroutine. An event queue starts once; after it stopped,
// create a fresh one.
func (q *EventQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return errors.Wrap(errors.ErrAlreadyStarted, "EventQueue", "Start", "listener start")
	}
	if q.closed {
		return errors.Wrap(errors.ErrShuttingDown, "EventQueue", "Start", "listener start")
	}
	q.started = true

	q.setState(StateConnecting)
	if err := q.transport.Connect(ctx); err != nil {
		q.failLocked(err)
		return err
	}
	if err := q.transport.Send([]byte(q.informCmd + "\n")); err != nil {
		_ = q.transport.Close()
		q.failLocked(err)
		return err
	}

	q.setState(StateListening)
	q.logger.Info("Event stream started", "inform", q.informCmd)
	go q.listen(ctx)
	return nil
}

// failLocked records a startup failure: no listener goroutine exists
// to close the queue and the done channel.
func (q *EventQueue) failLocked(err error) {
	q.setErr(err)
	q.setState(StateStopped)
	q.queue.Close()
	close(q.done)
}

// listen is the listener goroutine: receive, reassemble lines, parse,
// filter, enqueue. It exits on shutdown, context cancellation,
// transport failure or keep-alive silence, and never reconnects.
func (q *EventQueue) listen(ctx context.Context) {
	defer close(q.done)
	defer q.queue.Close()
	defer q.setState(StateStopped)
	defer func() { _ = q.transport.Close() }()

	var carry []byte
	lastReceive := time.Now()

	for {
		select {
		case <-q.shutdown:
			q.logger.Info("Event stream stopped")
			return
		case <-ctx.Done():
			q.setErr(errors.Wrap(ctx.Err(), "EventQueue", "listen", "context check"))
			return
		default:
		}

		data, err := q.transport.Receive(q.config.ReadTimeout)
		if err != nil {
			q.logger.Error("Event stream receive failed", "error", err)
			q.setErr(err)
			return
		}

		now := time.Now()
		if len(data) == 0 {
			if now.Sub(lastReceive) > q.config.EventTimeout {
				q.logger.Warn("Keep-alive silence exceeded, event stream considered dead",
					"silence", now.Sub(lastReceive), "limit", q.config.EventTimeout)
				q.setErr(errors.Wrap(errors.ErrConnectionTimeout,
					"EventQueue", "listen", "keep-alive check"))
				return
			}
			continue
		}
		lastReceive = now
		q.metrics.RecordBytesReceived(len(data))

		// Complete lines are consumed, a trailing partial line waits
		// for its continuation.
		carry = append(carry, data...)
		var lines []string
		lines, carry = splitLines(carry)
		for _, line := range lines {
			q.handleLine(line, now)
		}
	}
}

func (q *EventQueue) handleLine(line string, receivedAt time.Time) {
	if strings.TrimSpace(line) == "" {
		return
	}
	q.metrics.RecordEventReceived()

	parse := event.ParseLine
	if q.rawValues {
		parse = event.ParseLineRaw
	}
	ev, err := parse(line, receivedAt)
	if err != nil {
		q.metrics.RecordParseError()
		q.logger.Warn("Dropping malformed event line", "line", line, "error", err)
		return
	}

	if !q.filters.Match(ev) {
		q.metrics.RecordEventFiltered()
		return
	}

	if err := q.queue.Put(ev); err != nil {
		// Queue already closed, shutdown is racing ahead of us
		return
	}
	q.metrics.RecordEventEnqueued()
	q.metrics.SetQueueDepth(q.queue.Len())
}

// Close signals the listener to stop and returns immediately. Events
// already enqueued remain readable.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	if State(q.state.Load()) == StateListening {
		q.setState(StateStopping)
	}
	close(q.shutdown)

	if !q.started {
		// No listener goroutine exists to finish these.
		q.queue.Close()
		q.setState(StateStopped)
		close(q.done)
	}
}

// Stop signals the listener and waits up to timeout for it to exit.
func (q *EventQueue) Stop(timeout time.Duration) error {
	q.Close()

	select {
	case <-q.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("stop timeout after %v", timeout),
			"EventQueue", "Stop", "graceful shutdown")
	}
}

// State returns the current listener state.
func (q *EventQueue) State() State {
	return State(q.state.Load())
}

// Next blocks until an event arrives, the context ends, or the queue
// is closed and drained.
func (q *EventQueue) Next(ctx context.Context) (event.Event, error) {
	ev, err := q.queue.Get(ctx)
	if err != nil {
		return event.Event{}, err
	}
	q.metrics.SetQueueDepth(q.queue.Len())
	return ev, nil
}

// TryNext returns the next event without blocking.
func (q *EventQueue) TryNext() (event.Event, bool) {
	ev, ok, err := q.queue.TryGet()
	if err != nil || !ok {
		return event.Event{}, false
	}
	q.metrics.SetQueueDepth(q.queue.Len())
	return ev, true
}

// Len returns the number of events waiting in the queue.
func (q *EventQueue) Len() int {
	return q.queue.Len()
}

// Done closes when the listener has exited and the queue is closed.
func (q *EventQueue) Done() <-chan struct{} {
	return q.done
}

// Err returns the first error that terminated the stream, nil after a
// clean Close.
func (q *EventQueue) Err() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.err
}

func (q *EventQueue) setErr(err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	if q.err == nil {
		q.err = err
	}
}

func (q *EventQueue) setState(s State) {
	q.state.Store(int32(s))
	q.metrics.SetListenerState(int(s))
}

// splitLines cuts complete newline-terminated lines off buf, returning
// them and the unterminated remainder.
func splitLines(buf []byte) ([]string, []byte) {
	var lines []string
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(buf[:idx]))
		buf = buf[idx+1:]
	}
	return lines, buf
}
