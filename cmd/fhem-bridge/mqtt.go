package main

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/c360/gofhem/event"
)

// mqttPublisher publishes events to <prefix>/<device>/<reading>.
type mqttPublisher struct {
	cli    mqtt.Client
	prefix string
	qos    byte
	retain bool
}

func newMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(_ mqtt.Client) {
		logger.Info("MQTT connected", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection lost", "error", err)
	}

	cli := mqtt.NewClient(opts)
	if t := cli.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker at %s: %w", cfg.Broker, t.Error())
	}

	logger.Info("MQTT sink ready", "broker", cfg.Broker, "prefix", cfg.TopicPrefix)
	return &mqttPublisher{
		cli:    cli,
		prefix: cfg.TopicPrefix,
		qos:    byte(cfg.QoS),
		retain: cfg.Retain,
	}, nil
}

func (p *mqttPublisher) Name() string {
	return "mqtt"
}

func (p *mqttPublisher) Publish(ev event.Event, payload []byte) error {
	t := p.cli.Publish(topicFor(p.prefix, ev), p.qos, p.retain, payload)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

func (p *mqttPublisher) Close() {
	p.cli.Disconnect(250)
}

func topicFor(prefix string, ev event.Event) string {
	return prefix + "/" + topicToken(ev.Device) + "/" + topicToken(ev.Reading)
}

// topicToken makes a device or reading name safe as one MQTT topic
// level: separators, wildcards and whitespace become underscores.
func topicToken(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '/' || r == '+' || r == '#' || unicode.IsSpace(r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
