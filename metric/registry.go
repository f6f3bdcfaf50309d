package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/gofhem/errors"
)

// MetricsRegistry owns the Prometheus registry, the pipeline metrics
// and any caller-registered collectors.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registered         map[string]prometheus.Collector
	mu                 sync.Mutex
}

// NewMetricsRegistry creates a registry with the pipeline metrics and
// Go runtime collectors preregistered.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
		registered:         make(map[string]prometheus.Collector),
	}

	r.prometheusRegistry.MustRegister(
		r.Metrics.ConnectionStatus,
		r.Metrics.CommandsSent,
		r.Metrics.CommandErrors,
		r.Metrics.EventsReceived,
		r.Metrics.EventsFiltered,
		r.Metrics.EventsEnqueued,
		r.Metrics.ParseErrors,
		r.Metrics.BytesReceived,
		r.Metrics.QueueDepth,
		r.Metrics.ListenerState,
		r.Metrics.EventsPublished,
		r.Metrics.PublishErrors,
		r.Metrics.PublishDuration,
	)

	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Register adds a caller-owned collector under a name for later
// unregistration. Registering the same name twice is invalid.
func (r *MetricsRegistry) Register(name string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registered[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("collector %s already registered", name),
			"MetricsRegistry", "Register", "duplicate registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register",
				fmt.Sprintf("prometheus conflict for collector %s", name))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register",
			"register collector with prometheus")
	}

	r.registered[name] = collector
	return nil
}

// Unregister removes a collector previously added with Register.
func (r *MetricsRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	collector, exists := r.registered[name]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registered, name)
	}
	return success
}
