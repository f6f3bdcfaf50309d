package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/nats-io/nats.go"

	"github.com/c360/gofhem/event"
)

// natsPublisher publishes events to <prefix>.<device>.<reading>.
// Reconnects are delegated to the NATS client, which buffers published
// messages while redialing.
type natsPublisher struct {
	conn   *nats.Conn
	prefix string
}

func newNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*natsPublisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("NATS sink ready", "url", cfg.URL, "prefix", cfg.SubjectPrefix)
	return &natsPublisher{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

func (p *natsPublisher) Name() string {
	return "nats"
}

func (p *natsPublisher) Publish(ev event.Event, payload []byte) error {
	return p.conn.Publish(subjectFor(p.prefix, ev), payload)
}

func (p *natsPublisher) Close() {
	// Drain flushes buffered messages before closing.
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

func subjectFor(prefix string, ev event.Event) string {
	return prefix + "." + subjectToken(ev.Device) + "." + subjectToken(ev.Reading)
}

// subjectToken makes a device or reading name safe as one NATS subject
// token: dots, wildcards and whitespace become underscores.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '.' || r == '*' || r == '>' || unicode.IsSpace(r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
