package endpoint

import (
	"fmt"
	"net/url"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/pipe"
	"github.com/casualjim/roost/serialization"
	"github.com/casualjim/roost/topology"
	"github.com/fogfish/opts"
)

// Configuration is what a Context reads from endpoint configuration.
type Configuration interface {
	// InputAddress is where the endpoint receives messages.
	InputAddress() *url.URL
	// HostAddress identifies the transport host.
	HostAddress() *url.URL
	PublishTopology() topology.Publish

	EndpointObservers() *observer.ReceiveEndpointObservable
	ReceiveObservers() *observer.ReceiveObservable
	TransportObservers() *observer.ReceiveTransportObservable

	CreateSendPipe() (pipe.SendPipe, error)
	CreatePublishPipe() (pipe.PublishPipe, error)
	CreateReceivePipe() (pipe.ReceivePipe, error)
	Serializer() (serialization.Serializer, error)
}

// Config is the stock Configuration, built with NewConfig.
type Config struct {
	inputAddress    *url.URL
	hostAddress     *url.URL
	publishTopology topology.Publish

	endpointObservers  *observer.ReceiveEndpointObservable
	receiveObservers   *observer.ReceiveObservable
	transportObservers *observer.ReceiveTransportObservable

	sendPipe    func() (pipe.SendPipe, error)
	publishPipe func() (pipe.PublishPipe, error)
	receivePipe func() (pipe.ReceivePipe, error)
	serializer  serialization.Serializer
}

var _ Configuration = (*Config)(nil)

var (
	WithInputAddress    = opts.ForName[Config, *url.URL]("inputAddress")
	WithHostAddress     = opts.ForName[Config, *url.URL]("hostAddress")
	WithPublishTopology = opts.ForName[Config, topology.Publish]("publishTopology")
	WithSerializer      = opts.ForName[Config, serialization.Serializer]("serializer")

	WithEndpointObservers  = opts.ForName[Config, *observer.ReceiveEndpointObservable]("endpointObservers")
	WithReceiveObservers   = opts.ForName[Config, *observer.ReceiveObservable]("receiveObservers")
	WithTransportObservers = opts.ForName[Config, *observer.ReceiveTransportObservable]("transportObservers")

	WithSendPipeFactory    = opts.ForName[Config, func() (pipe.SendPipe, error)]("sendPipe")
	WithPublishPipeFactory = opts.ForName[Config, func() (pipe.PublishPipe, error)]("publishPipe")
	WithReceivePipeFactory = opts.ForName[Config, func() (pipe.ReceivePipe, error)]("receivePipe")
)

// WithInput parses raw as the input address.
func WithInput(raw string) opts.Option[Config] {
	return opts.Type[Config](func(c *Config) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("endpoint: input address: %w", err)
		}
		c.inputAddress = u
		return nil
	})
}

// WithHost parses raw as the host address.
func WithHost(raw string) opts.Option[Config] {
	return opts.Type[Config](func(c *Config) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("endpoint: host address: %w", err)
		}
		c.hostAddress = u
		return nil
	})
}

// WithSendFilters builds the send pipe from filters.
func WithSendFilters(filters ...pipe.SendFilter) opts.Option[Config] {
	return opts.Type[Config](func(c *Config) error {
		c.sendPipe = func() (pipe.SendPipe, error) { return pipe.New(filters...), nil }
		return nil
	})
}

// WithPublishFilters builds the publish pipe from filters.
func WithPublishFilters(filters ...pipe.PublishFilter) opts.Option[Config] {
	return opts.Type[Config](func(c *Config) error {
		c.publishPipe = func() (pipe.PublishPipe, error) { return pipe.New(filters...), nil }
		return nil
	})
}

// WithReceiveFilters builds the receive pipe from filters.
func WithReceiveFilters(filters ...pipe.ReceiveFilter) opts.Option[Config] {
	return opts.Type[Config](func(c *Config) error {
		c.receivePipe = func() (pipe.ReceivePipe, error) { return pipe.New(filters...), nil }
		return nil
	})
}

// NewConfig creates a configuration with empty pipes, the JSON serializer, the default
// publish topology and fresh observer channels, then applies options. Only option
// application errors are returned here; missing values are reported by the Context.
func NewConfig(options ...opts.Option[Config]) (*Config, error) {
	c := &Config{
		publishTopology:    topology.Default(),
		endpointObservers:  observer.NewReceiveEndpointObservable(),
		receiveObservers:   observer.NewReceiveObservable(),
		transportObservers: observer.NewReceiveTransportObservable(),
		sendPipe:           func() (pipe.SendPipe, error) { return pipe.Empty[*messages.SendContext](), nil },
		publishPipe:        func() (pipe.PublishPipe, error) { return pipe.Empty[*messages.PublishContext](), nil },
		receivePipe:        func() (pipe.ReceivePipe, error) { return pipe.Empty[*messages.ReceiveContext](), nil },
		serializer:         serialization.JSON(),
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) InputAddress() *url.URL            { return c.inputAddress }
func (c *Config) HostAddress() *url.URL             { return c.hostAddress }
func (c *Config) PublishTopology() topology.Publish { return c.publishTopology }

func (c *Config) EndpointObservers() *observer.ReceiveEndpointObservable   { return c.endpointObservers }
func (c *Config) ReceiveObservers() *observer.ReceiveObservable            { return c.receiveObservers }
func (c *Config) TransportObservers() *observer.ReceiveTransportObservable { return c.transportObservers }

func (c *Config) CreateSendPipe() (pipe.SendPipe, error) {
	if c.sendPipe == nil {
		return nil, configurationError("send pipe factory is required")
	}
	return c.sendPipe()
}

func (c *Config) CreatePublishPipe() (pipe.PublishPipe, error) {
	if c.publishPipe == nil {
		return nil, configurationError("publish pipe factory is required")
	}
	return c.publishPipe()
}

func (c *Config) CreateReceivePipe() (pipe.ReceivePipe, error) {
	if c.receivePipe == nil {
		return nil, configurationError("receive pipe factory is required")
	}
	return c.receivePipe()
}

func (c *Config) Serializer() (serialization.Serializer, error) {
	if c.serializer == nil {
		return nil, configurationError("serializer is required")
	}
	return c.serializer, nil
}
