package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the monitor's aggregate as JSON. Healthy and degraded
// systems respond 200 so orchestrators keep routing while a sink
// recovers, unhealthy responds 503.
func Handler(m *Monitor, system string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		agg := m.Aggregate(system)

		code := http.StatusOK
		if agg.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(agg)
	})
}
