package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/gofhem"
)

// duration wraps time.Duration so YAML can carry values like "90s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// BridgeConfig is the YAML configuration of the bridge: the FHEM
// connection, the event filters, and the sinks.
type BridgeConfig struct {
	FHEM    FHEMConfig          `yaml:"fhem"`
	Filters []map[string]string `yaml:"filters"`
	NATS    NATSConfig          `yaml:"nats"`
	MQTT    MQTTConfig          `yaml:"mqtt"`
	Metrics MetricsConfig       `yaml:"metrics"`
}

// FHEMConfig selects the FHEM server and the event stream options.
type FHEMConfig struct {
	Server       string   `yaml:"server"`
	Port         int      `yaml:"port"`
	Password     string   `yaml:"password"`
	UseSSL       bool     `yaml:"use_ssl"`
	CAFile       string   `yaml:"ca_file"`
	EventTimeout duration `yaml:"event_timeout"`
	ServerRegex  string   `yaml:"server_regex"`
	RawValues    bool     `yaml:"raw_values"`
}

// NATSConfig selects the NATS sink.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MQTTConfig selects the MQTT sink.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         int    `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// MetricsConfig selects the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// loadBridgeConfig reads, decodes and validates the YAML config file.
// Unknown keys are rejected, catching typos before they silently
// disable a sink.
func loadBridgeConfig(path string) (*BridgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg BridgeConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *BridgeConfig) applyDefaults() {
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "fhem.events"
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "fhem/events"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = appName
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the parts the bridge cannot start without. The FHEM
// connection details are validated again by the client library.
func (c *BridgeConfig) Validate() error {
	if c.FHEM.Server == "" {
		return fmt.Errorf("fhem.server is required")
	}
	if !c.NATS.Enabled && !c.MQTT.Enabled {
		return fmt.Errorf("no sink enabled, enable nats or mqtt")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}
	return nil
}

// fhemConfig maps the bridge config onto the client library config.
func (c *BridgeConfig) fhemConfig() gofhem.Config {
	return gofhem.Config{
		Server:       c.FHEM.Server,
		Port:         c.FHEM.Port,
		Password:     c.FHEM.Password,
		UseSSL:       c.FHEM.UseSSL,
		CAFile:       c.FHEM.CAFile,
		EventTimeout: time.Duration(c.FHEM.EventTimeout),
		LogLevel:     gofhem.LogSilent, // the bridge injects its own logger
	}
}
