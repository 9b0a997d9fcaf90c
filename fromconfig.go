package roost

import (
	"fmt"
	"strings"

	"github.com/casualjim/roost/config"
	"github.com/casualjim/roost/endpoint"
	"github.com/casualjim/roost/topology"
	"github.com/casualjim/roost/transport"
	"github.com/casualjim/roost/transport/inmemory"
	"github.com/casualjim/roost/transport/kafka"
	"github.com/casualjim/roost/transport/nats"
	"github.com/casualjim/roost/transport/rabbitmq"
	"github.com/casualjim/roost/transport/redis"
	"github.com/fogfish/opts"
)

// FromConfig creates an endpoint from a loaded configuration. The binding is owned by
// the endpoint and closed with it. Extra options are applied after the configured ones.
func FromConfig(cfg *config.Config, options ...opts.Option[Endpoint]) (*Endpoint, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration is required", endpoint.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	serializer, err := cfg.Serializer()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	topo := topology.Default()
	if cfg.Endpoint.EntityPrefix != "" {
		if topo, err = topology.New(topology.WithPrefix(cfg.Endpoint.EntityPrefix)); err != nil {
			return nil, err
		}
	}
	binding, err := NewBinding(cfg.Transport)
	if err != nil {
		return nil, err
	}

	base := []opts.Option[Endpoint]{
		WithBinding(binding),
		WithOwnedBinding(true),
		WithPolicy(policy),
		WithConfig(
			endpoint.WithInput(cfg.Endpoint.Input),
			endpoint.WithHost(cfg.Endpoint.Host),
			endpoint.WithSerializer(serializer),
			endpoint.WithPublishTopology(topo),
		),
	}
	return New(append(base, options...)...)
}

// NewBinding creates the binding selected by t.Kind.
func NewBinding(t config.Transport) (transport.Binding, error) {
	b, err := newBinding(t)
	if err != nil {
		return nil, fmt.Errorf("roost: %s binding: %w", t.Kind, err)
	}
	return b, nil
}

func newBinding(t config.Transport) (transport.Binding, error) {
	switch strings.ToLower(t.Kind) {
	case config.TransportInMemory, "":
		return inmemory.New(nil), nil
	case config.TransportNATS:
		b, err := nats.Dial(t.URL)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.TransportRabbitMQ:
		o := []opts.Option[rabbitmq.Binding]{}
		if t.URL != "" {
			o = append(o, rabbitmq.WithURL(t.URL))
		}
		if t.PrefetchCount > 0 {
			o = append(o, rabbitmq.WithPrefetchCount(t.PrefetchCount))
		}
		if t.Durable != nil {
			o = append(o, rabbitmq.WithDurable(*t.Durable))
		}
		b, err := rabbitmq.New(o...)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.TransportKafka:
		o := []opts.Option[kafka.Binding]{}
		if len(t.Brokers) > 0 {
			o = append(o, kafka.WithBrokers(t.Brokers))
		}
		b, err := kafka.New(o...)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.TransportRedis:
		o := []opts.Option[redis.Binding]{}
		if t.MaxLen > 0 {
			o = append(o, redis.WithMaxLen(t.MaxLen))
		}
		b, err := redis.Dial(t.URL, o...)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalid, t.Kind)
	}
}
