package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/gofhem"
	"github.com/c360/gofhem/event"
	"github.com/c360/gofhem/health"
	"github.com/c360/gofhem/metric"
)

// publisher delivers one event to one sink. Implementations own their
// connection and topic layout.
type publisher interface {
	Name() string
	Publish(ev event.Event, payload []byte) error
	Close()
}

// envelope is the JSON payload the sinks receive. The id makes
// downstream deduplication possible when both sinks feed the same
// consumer.
type envelope struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Time       time.Time `json:"timestamp"`
	DeviceType string    `json:"devicetype,omitempty"`
	Device     string    `json:"device"`
	Reading    string    `json:"reading"`
	Value      any       `json:"value"`
	Unit       string    `json:"unit,omitempty"`
}

// bridge consumes the event queue and fans every event out to all
// sinks. A failing sink never blocks the others.
type bridge struct {
	queue      *gofhem.EventQueue
	publishers []publisher
	metrics    *metric.Metrics
	health     *health.Monitor
	logger     *slog.Logger
	source     string
}

// run consumes events until the context ends or the stream dies. A
// dead stream returns its terminating error so the process exits
// non-zero and the supervisor restarts it.
func (b *bridge) run(ctx context.Context) error {
	for {
		ev, err := b.queue.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			streamErr := b.queue.Err()
			if streamErr == nil {
				// Queue closed on purpose, not a stream death.
				return nil
			}
			b.health.SetUnhealthy("stream", streamErr)
			return streamErr
		}
		b.dispatch(ev)
	}
}

func (b *bridge) dispatch(ev event.Event) {
	env := envelope{
		ID:         uuid.NewString(),
		Source:     b.source,
		Time:       ev.Time,
		DeviceType: ev.DeviceType,
		Device:     ev.Device,
		Reading:    ev.Reading,
		Value:      ev.Value,
		Unit:       ev.Unit,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("Envelope marshal failed", "device", ev.Device, "error", err)
		return
	}

	for _, p := range b.publishers {
		start := time.Now()
		if err := p.Publish(ev, payload); err != nil {
			b.metrics.RecordPublishError(p.Name())
			b.health.SetDegraded(p.Name(), err.Error())
			b.logger.Error("Publish failed",
				"sink", p.Name(), "device", ev.Device, "reading", ev.Reading, "error", err)
			continue
		}
		b.metrics.RecordPublish(p.Name(), time.Since(start))
		b.health.SetHealthy(p.Name(), "publishing")
	}
}
