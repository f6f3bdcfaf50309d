// Package health tracks the liveness of the moving parts of a FHEM
// deployment: the event stream, the command transport, and any
// downstream sinks. Components report their state to a Monitor and the
// Handler serves the aggregate as JSON, typically next to the metrics
// endpoint.
package health

import (
	"fmt"
	"regexp"
	"time"
)

// Component states, ordered from good to bad.
const (
	// StateHealthy means the component is fully operational.
	StateHealthy = "healthy"

	// StateDegraded means the component works but something is off,
	// for example a sink that dropped a publish and reconnected.
	StateDegraded = "degraded"

	// StateUnhealthy means the component is not operational.
	StateUnhealthy = "unhealthy"
)

// Status is one component's health at a point in time.
type Status struct {
	Component string    `json:"component"`
	State     string    `json:"state"`
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// SubStatuses carries per-part detail when the component is an
	// aggregate, keyed by component name.
	SubStatuses map[string]Status `json:"sub_statuses,omitempty"`
}

// NewHealthy creates a healthy status for a component.
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		State:     StateHealthy,
		Healthy:   true,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a degraded status. The message is sanitized
// because it usually carries error text.
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		State:     StateDegraded,
		Healthy:   true,
		Message:   sanitizeMessage(message),
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates an unhealthy status from an error. A nil error
// yields an empty message.
func NewUnhealthy(component string, err error) Status {
	msg := ""
	if err != nil {
		msg = sanitizeMessage(err.Error())
	}
	return Status{
		Component: component,
		State:     StateUnhealthy,
		Healthy:   false,
		Message:   msg,
		Timestamp: time.Now(),
	}
}

// IsHealthy reports whether the component is fully operational.
func (s Status) IsHealthy() bool {
	return s.State == StateHealthy
}

// IsDegraded reports whether the component is limping.
func (s Status) IsDegraded() bool {
	return s.State == StateDegraded
}

// IsUnhealthy reports whether the component is down.
func (s Status) IsUnhealthy() bool {
	return s.State == StateUnhealthy
}

// Aggregate folds component statuses into one summary for the named
// system. Any unhealthy part makes the system unhealthy, otherwise any
// degraded part makes it degraded, otherwise it is healthy. An empty
// input aggregates to healthy with no parts.
func Aggregate(system string, parts []Status) Status {
	agg := Status{
		Component:   system,
		State:       StateHealthy,
		Healthy:     true,
		Message:     "all components healthy",
		Timestamp:   time.Now(),
		SubStatuses: make(map[string]Status, len(parts)),
	}

	unhealthy := 0
	degraded := 0
	for _, p := range parts {
		agg.SubStatuses[p.Component] = p
		switch p.State {
		case StateUnhealthy:
			unhealthy++
		case StateDegraded:
			degraded++
		}
	}

	switch {
	case unhealthy > 0:
		agg.State = StateUnhealthy
		agg.Healthy = false
		agg.Message = countMessage(unhealthy, StateUnhealthy)
	case degraded > 0:
		agg.State = StateDegraded
		agg.Message = countMessage(degraded, StateDegraded)
	}
	return agg
}

func countMessage(n int, state string) string {
	if n == 1 {
		return fmt.Sprintf("1 component %s", state)
	}
	return fmt.Sprintf("%d components %s", n, state)
}

// Health messages end up on an HTTP endpoint, so anything that looks
// like an address or a credential is masked before it leaves the
// process.
var (
	credPattern     = regexp.MustCompile(`(?i)\b(password|passwd|token|secret|apikey|api_key)\s*[=:]\s*\S+`)
	urlPattern      = regexp.MustCompile(`\b(?:https?|telnet|nats|tcp|ssl|mqtts?|ws|wss)://[^\s"']+`)
	hostPortPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}|\d{1,3}(?:\.\d{1,3}){3}|localhost):\d{1,5}\b`)
)

func sanitizeMessage(msg string) string {
	msg = credPattern.ReplaceAllString(msg, "$1=[REDACTED]")
	msg = urlPattern.ReplaceAllString(msg, "[URL]")
	msg = hostPortPattern.ReplaceAllString(msg, "[ADDR]")
	return msg
}
