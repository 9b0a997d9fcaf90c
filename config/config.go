// Package config loads endpoint settings from a YAML file.
//
// Values may reference environment variables as ${VAR}; a .env file next to the
// process is loaded first so those references can be satisfied locally.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/casualjim/roost/pkg/lazy"
	"github.com/casualjim/roost/serialization"
)

// Transport kinds understood by Load.
const (
	TransportInMemory = "inmemory"
	TransportNATS     = "nats"
	TransportRabbitMQ = "rabbitmq"
	TransportKafka    = "kafka"
	TransportRedis    = "redis"
)

var transports = []string{TransportInMemory, TransportNATS, TransportRabbitMQ, TransportKafka, TransportRedis}

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Config is the root of an endpoint file.
type Config struct {
	Endpoint  Endpoint  `yaml:"endpoint"`
	Transport Transport `yaml:"transport"`
	Metrics   Metrics   `yaml:"metrics"`
	Log       Log       `yaml:"log"`
}

// Endpoint describes the identity and encoding of the endpoint.
type Endpoint struct {
	// Input is the address the endpoint receives on.
	Input string `yaml:"input"`
	// Host is the base address publish addresses are resolved against.
	Host string `yaml:"host"`
	// Serializer is json, cbor or cloudevents.
	Serializer string `yaml:"serializer"`
	// Policy is retry or poison.
	Policy string `yaml:"policy"`
	// EntityPrefix is prepended to every published entity name.
	EntityPrefix string `yaml:"entity_prefix"`
}

// Transport selects and tunes the broker binding.
type Transport struct {
	Kind string `yaml:"kind"`
	// URL is the broker connection string for nats, rabbitmq and redis.
	URL string `yaml:"url"`
	// Brokers lists kafka bootstrap servers.
	Brokers []string `yaml:"brokers"`

	PrefetchCount int `yaml:"prefetch_count"`
	// Durable declares durable rabbitmq entities. Unset keeps the binding default.
	Durable *bool `yaml:"durable"`
	MaxLen  int64 `yaml:"max_len"`
}

// Metrics configures the Prometheus endpoint. An empty Listen disables it.
type Metrics struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Defaults returns an in-memory endpoint named "roost".
func Defaults() Config {
	return Config{
		Endpoint: Endpoint{
			Input:      "loopback://localhost/roost",
			Host:       "loopback://localhost",
			Serializer: "json",
			Policy:     lazy.Retry.String(),
		},
		Transport: Transport{Kind: TransportInMemory},
		Metrics:   Metrics{Path: "/metrics"},
		Log:       Log{Level: "info"},
	}
}

// InputAddress parses Endpoint.Input.
func (c *Config) InputAddress() (*url.URL, error) {
	return parseAddress("endpoint.input", c.Endpoint.Input)
}

// HostAddress parses Endpoint.Host.
func (c *Config) HostAddress() (*url.URL, error) {
	return parseAddress("endpoint.host", c.Endpoint.Host)
}

// Serializer resolves Endpoint.Serializer.
func (c *Config) Serializer() (serialization.Serializer, error) {
	s, err := serialization.ByName(c.Endpoint.Serializer)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint.serializer: %w", ErrInvalid, err)
	}
	return s, nil
}

// Policy resolves Endpoint.Policy.
func (c *Config) Policy() (lazy.Policy, error) {
	p, err := lazy.ParsePolicy(c.Endpoint.Policy)
	if err != nil {
		return p, fmt.Errorf("%w: endpoint.policy: %w", ErrInvalid, err)
	}
	return p, nil
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.InputAddress(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.HostAddress(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Serializer(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	kind := strings.ToLower(c.Transport.Kind)
	if !slices.Contains(transports, kind) {
		errs = append(errs, fmt.Errorf("%w: transport.kind %q, want one of %v", ErrInvalid, c.Transport.Kind, transports))
	}
	if c.Transport.PrefetchCount < 0 {
		errs = append(errs, fmt.Errorf("%w: transport.prefetch_count must not be negative", ErrInvalid))
	}
	if c.Transport.MaxLen < 0 {
		errs = append(errs, fmt.Errorf("%w: transport.max_len must not be negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

func parseAddress(field, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalid, field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, field, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s %q needs a scheme and a host", ErrInvalid, field, raw)
	}
	return u, nil
}
