package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusConstructors(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := NewHealthy("stream", "listening")
		assert.Equal(t, "stream", s.Component)
		assert.Equal(t, StateHealthy, s.State)
		assert.True(t, s.Healthy)
		assert.Equal(t, "listening", s.Message)
		assert.WithinDuration(t, time.Now(), s.Timestamp, time.Second)
	})

	t.Run("degraded", func(t *testing.T) {
		s := NewDegraded("nats", "publish retry succeeded")
		assert.Equal(t, StateDegraded, s.State)
		assert.True(t, s.Healthy)
	})

	t.Run("unhealthy", func(t *testing.T) {
		s := NewUnhealthy("mqtt", errors.New("broker unreachable"))
		assert.Equal(t, StateUnhealthy, s.State)
		assert.False(t, s.Healthy)
		assert.Equal(t, "broker unreachable", s.Message)
	})

	t.Run("unhealthy with nil error", func(t *testing.T) {
		s := NewUnhealthy("mqtt", nil)
		assert.Empty(t, s.Message)
		assert.False(t, s.Healthy)
	})
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, NewHealthy("a", "").IsHealthy())
	assert.False(t, NewHealthy("a", "").IsDegraded())
	assert.True(t, NewDegraded("a", "").IsDegraded())
	assert.True(t, NewUnhealthy("a", nil).IsUnhealthy())
	assert.False(t, NewUnhealthy("a", nil).IsHealthy())
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name        string
		parts       []Status
		wantState   string
		wantHealthy bool
		wantMessage string
	}{
		{
			name:        "no components",
			parts:       nil,
			wantState:   StateHealthy,
			wantHealthy: true,
			wantMessage: "all components healthy",
		},
		{
			name: "all healthy",
			parts: []Status{
				NewHealthy("stream", "listening"),
				NewHealthy("nats", "connected"),
			},
			wantState:   StateHealthy,
			wantHealthy: true,
			wantMessage: "all components healthy",
		},
		{
			name: "one degraded",
			parts: []Status{
				NewHealthy("stream", "listening"),
				NewDegraded("mqtt", "reconnecting"),
			},
			wantState:   StateDegraded,
			wantHealthy: true,
			wantMessage: "1 component degraded",
		},
		{
			name: "unhealthy wins over degraded",
			parts: []Status{
				NewDegraded("mqtt", "reconnecting"),
				NewUnhealthy("stream", errors.New("connection lost")),
			},
			wantState:   StateUnhealthy,
			wantHealthy: false,
			wantMessage: "1 component unhealthy",
		},
		{
			name: "plural message",
			parts: []Status{
				NewUnhealthy("stream", nil),
				NewUnhealthy("nats", nil),
			},
			wantState:   StateUnhealthy,
			wantHealthy: false,
			wantMessage: "2 components unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("fhem-bridge", tt.parts)
			assert.Equal(t, "fhem-bridge", agg.Component)
			assert.Equal(t, tt.wantState, agg.State)
			assert.Equal(t, tt.wantHealthy, agg.Healthy)
			assert.Equal(t, tt.wantMessage, agg.Message)
			assert.Len(t, agg.SubStatuses, len(tt.parts))
		})
	}
}

func TestAggregateKeepsParts(t *testing.T) {
	agg := Aggregate("fhem-bridge", []Status{
		NewHealthy("stream", "listening"),
		NewUnhealthy("nats", errors.New("no servers")),
	})

	require.Contains(t, agg.SubStatuses, "stream")
	require.Contains(t, agg.SubStatuses, "nats")
	assert.True(t, agg.SubStatuses["stream"].Healthy)
	assert.False(t, agg.SubStatuses["nats"].Healthy)
}

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain message untouched",
			in:   "connection lost",
			want: "connection lost",
		},
		{
			name: "credentials redacted",
			in:   "auth failed: password=hunter2",
			want: "auth failed: password=[REDACTED]",
		},
		{
			name: "url masked",
			in:   "dial nats://fhem:4222 refused",
			want: "dial [URL] refused",
		},
		{
			name: "host and port masked",
			in:   "dial tcp fhem.local:7072 timeout",
			want: "dial tcp [ADDR] timeout",
		},
		{
			name: "ip and port masked",
			in:   "read 192.168.1.20:8083 reset",
			want: "read [ADDR] reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeMessage(tt.in))
		})
	}
}

func TestSanitizeAppliedByConstructors(t *testing.T) {
	s := NewUnhealthy("nats", errors.New("dial nats://fhem:4222 refused"))
	assert.Equal(t, "dial [URL] refused", s.Message)

	d := NewDegraded("mqtt", "slow broker at 10.0.0.5:1883")
	assert.Equal(t, "slow broker at [ADDR]", d.Message)
}
