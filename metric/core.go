package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers the client pipeline: transport traffic, the event
// listener and the bridge publish path. All recorders are safe on a
// nil receiver so instrumentation stays optional.
type Metrics struct {
	// Transport metrics
	ConnectionStatus *prometheus.GaugeVec
	CommandsSent     *prometheus.CounterVec
	CommandErrors    *prometheus.CounterVec

	// Event pipeline metrics
	EventsReceived prometheus.Counter
	EventsFiltered prometheus.Counter
	EventsEnqueued prometheus.Counter
	ParseErrors    prometheus.Counter
	BytesReceived  prometheus.Counter
	QueueDepth     prometheus.Gauge
	ListenerState  prometheus.Gauge

	// Bridge metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
}

// NewMetrics creates all pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fhem",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Connection status per protocol (0=disconnected, 1=connected)",
			},
			[]string{"protocol"},
		),

		CommandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "transport",
				Name:      "commands_total",
				Help:      "Total number of commands sent to the server",
			},
			[]string{"protocol"},
		),

		CommandErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "transport",
				Name:      "errors_total",
				Help:      "Total number of failed commands",
			},
			[]string{"protocol", "class"},
		),

		EventsReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of event lines received",
			},
		),

		EventsFiltered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "events",
				Name:      "filtered_total",
				Help:      "Total number of events rejected by the filter list",
			},
		),

		EventsEnqueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "events",
				Name:      "enqueued_total",
				Help:      "Total number of events delivered to the queue",
			},
		),

		ParseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "events",
				Name:      "parse_errors_total",
				Help:      "Total number of malformed event lines dropped",
			},
		),

		BytesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "events",
				Name:      "bytes_received_total",
				Help:      "Total bytes received on the event connection",
			},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fhem",
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Number of events waiting in the delivery queue",
			},
		),

		ListenerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fhem",
				Subsystem: "queue",
				Name:      "listener_state",
				Help:      "Listener state (0=stopped, 1=connecting, 2=listening, 3=stopping)",
			},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "bridge",
				Name:      "published_total",
				Help:      "Total number of events republished per sink",
			},
			[]string{"sink"},
		),

		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fhem",
				Subsystem: "bridge",
				Name:      "publish_errors_total",
				Help:      "Total number of failed publishes per sink",
			},
			[]string{"sink"},
		),

		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fhem",
				Subsystem: "bridge",
				Name:      "publish_duration_seconds",
				Help:      "Publish duration in seconds per sink",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sink"},
		),
	}
}

// RecordConnection updates the connection gauge for a protocol.
func (c *Metrics) RecordConnection(protocol string, connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.ConnectionStatus.WithLabelValues(protocol).Set(value)
}

// RecordCommand counts one sent command.
func (c *Metrics) RecordCommand(protocol string) {
	if c == nil {
		return
	}
	c.CommandsSent.WithLabelValues(protocol).Inc()
}

// RecordCommandError counts one failed command by error class.
func (c *Metrics) RecordCommandError(protocol, class string) {
	if c == nil {
		return
	}
	c.CommandErrors.WithLabelValues(protocol, class).Inc()
}

// RecordEventReceived counts one received event line.
func (c *Metrics) RecordEventReceived() {
	if c == nil {
		return
	}
	c.EventsReceived.Inc()
}

// RecordEventFiltered counts one event rejected by the filter list.
func (c *Metrics) RecordEventFiltered() {
	if c == nil {
		return
	}
	c.EventsFiltered.Inc()
}

// RecordEventEnqueued counts one event delivered to the queue.
func (c *Metrics) RecordEventEnqueued() {
	if c == nil {
		return
	}
	c.EventsEnqueued.Inc()
}

// RecordParseError counts one dropped malformed line.
func (c *Metrics) RecordParseError() {
	if c == nil {
		return
	}
	c.ParseErrors.Inc()
}

// RecordBytesReceived counts bytes arriving on the event connection.
func (c *Metrics) RecordBytesReceived(n int) {
	if c == nil {
		return
	}
	c.BytesReceived.Add(float64(n))
}

// SetQueueDepth updates the delivery queue depth gauge.
func (c *Metrics) SetQueueDepth(depth int) {
	if c == nil {
		return
	}
	c.QueueDepth.Set(float64(depth))
}

// SetListenerState updates the listener state gauge.
func (c *Metrics) SetListenerState(state int) {
	if c == nil {
		return
	}
	c.ListenerState.Set(float64(state))
}

// RecordPublish counts one successful publish and its duration.
func (c *Metrics) RecordPublish(sink string, duration time.Duration) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(sink).Inc()
	c.PublishDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordPublishError counts one failed publish.
func (c *Metrics) RecordPublishError(sink string) {
	if c == nil {
		return
	}
	c.PublishErrors.WithLabelValues(sink).Inc()
}
