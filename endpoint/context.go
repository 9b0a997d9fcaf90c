package endpoint

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"

	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/pipe"
	"github.com/casualjim/roost/pkg/lazy"
	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/serialization"
	"github.com/casualjim/roost/topology"
	"github.com/casualjim/roost/transport"
	"github.com/fogfish/opts"
)

type settings struct {
	logger      *slog.Logger
	policy      lazy.Policy
	serializers *serialization.Registry
}

var (
	// WithLogger sets the logger of the context and everything it builds.
	WithLogger = opts.ForName[settings, *slog.Logger]("logger")
	// WithPolicy sets what the lazily built parts do after a failed build.
	WithPolicy = opts.ForName[settings, lazy.Policy]("policy")
	// WithSerializers sets the registry the receive side picks deserializers from.
	WithSerializers = opts.ForName[settings, *serialization.Registry]("serializers")
)

// Context is the composition root of one endpoint. All methods are safe for concurrent use.
type Context struct {
	cfg     Configuration
	binding transport.Binding
	logger  *slog.Logger

	inputAddress    *url.URL
	hostAddr        *url.URL
	publishTopology topology.Publish
	serializers     *serialization.Registry

	sendObservers      *observer.SendObservable
	publishObservers   *observer.PublishObservable
	receiveObservers   *observer.ReceiveObservable
	transportObservers *observer.ReceiveTransportObservable
	endpointObservers  *observer.ReceiveEndpointObservable

	sendPipe                 *lazy.Value[pipe.SendPipe]
	publishPipe              *lazy.Value[pipe.PublishPipe]
	receivePipe              *lazy.Value[pipe.ReceivePipe]
	serializer               *lazy.Value[serialization.Serializer]
	sendTransportProvider    *lazy.Value[transport.SendTransportProvider]
	publishTransportProvider *lazy.Value[transport.PublishTransportProvider]
	sendEndpointProvider     *lazy.Value[*SendEndpointProvider]
	publishEndpointProvider  *lazy.Value[*PublishEndpointProvider]

	// lifecycle is held shared by every build and exclusively by Close, so Close
	// waits for builds in flight and no build starts after it.
	lifecycle sync.RWMutex
	closed    bool
}

// NewContext captures cfg and binding. Nothing is built until it is first asked for.
func NewContext(cfg Configuration, binding transport.Binding, options ...opts.Option[settings]) *Context {
	s := settings{logger: slog.Default()}
	if err := opts.Apply(&s, options); err != nil {
		panic(err)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.serializers == nil {
		s.serializers = serialization.Default()
	}

	c := &Context{
		cfg:              cfg,
		binding:          binding,
		serializers:      s.serializers,
		sendObservers:    observer.NewSendObservable(),
		publishObservers: observer.NewPublishObservable(),
	}
	if cfg != nil {
		c.inputAddress = cloneURL(cfg.InputAddress())
		c.hostAddr = cloneURL(cfg.HostAddress())
		c.publishTopology = cfg.PublishTopology()
		c.receiveObservers = cfg.ReceiveObservers()
		c.transportObservers = cfg.TransportObservers()
		c.endpointObservers = cfg.EndpointObservers()
	}
	if c.receiveObservers == nil {
		c.receiveObservers = observer.NewReceiveObservable()
	}
	if c.transportObservers == nil {
		c.transportObservers = observer.NewReceiveTransportObservable()
	}
	if c.endpointObservers == nil {
		c.endpointObservers = observer.NewReceiveEndpointObservable()
	}

	c.logger = s.logger.With(slogx.LoggerName("roost.endpoint"), slogx.URL("input", c.inputAddress))
	c.sendObservers.WithLogger(c.logger)
	c.publishObservers.WithLogger(c.logger)

	policy := lazy.WithPolicy(s.policy)
	c.sendPipe = lazy.New(c.buildSendPipe, policy)
	c.publishPipe = lazy.New(c.buildPublishPipe, policy)
	c.receivePipe = lazy.New(c.buildReceivePipe, policy)
	c.serializer = lazy.New(c.buildSerializer, policy)
	c.sendTransportProvider = lazy.New(c.buildSendTransportProvider, policy)
	c.publishTransportProvider = lazy.New(c.buildPublishTransportProvider, policy)
	c.sendEndpointProvider = lazy.New(c.buildSendEndpointProvider, policy)
	c.publishEndpointProvider = lazy.New(c.buildPublishEndpointProvider, policy)
	return c
}

// InputAddress returns a copy of the address the endpoint receives on.
func (c *Context) InputAddress() *url.URL {
	return cloneURL(c.inputAddress)
}

func (c *Context) hostAddress() *url.URL {
	return cloneURL(c.hostAddr)
}

// Logger returns the context logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// SendPipe returns the send pipe, building it on first use.
func (c *Context) SendPipe() (pipe.SendPipe, error) {
	return get(c, c.sendPipe)
}

// PublishPipe returns the publish pipe, building it on first use.
func (c *Context) PublishPipe() (pipe.PublishPipe, error) {
	return get(c, c.publishPipe)
}

// ReceivePipe returns the receive pipe, building it on first use.
func (c *Context) ReceivePipe() (pipe.ReceivePipe, error) {
	return get(c, c.receivePipe)
}

// Serializer returns the serializer used for outgoing messages.
func (c *Context) Serializer() (serialization.Serializer, error) {
	return get(c, c.serializer)
}

// SendEndpointProvider returns the provider of send endpoints. Every call returns the
// same instance once it has been built.
func (c *Context) SendEndpointProvider() (*SendEndpointProvider, error) {
	return get(c, c.sendEndpointProvider)
}

// PublishEndpointProvider returns the provider of publish endpoints. Every call returns
// the same instance once it has been built.
func (c *Context) PublishEndpointProvider() (*PublishEndpointProvider, error) {
	return get(c, c.publishEndpointProvider)
}

func (c *Context) ConnectSendObserver(o observer.SendObserver) observer.Handle {
	return c.sendObservers.Connect(o)
}

func (c *Context) ConnectPublishObserver(o observer.PublishObserver) observer.Handle {
	return c.publishObservers.Connect(o)
}

func (c *Context) ConnectReceiveObserver(o observer.ReceiveObserver) observer.Handle {
	return c.receiveObservers.Connect(o)
}

func (c *Context) ConnectReceiveTransportObserver(o observer.ReceiveTransportObserver) observer.Handle {
	return c.transportObservers.Connect(o)
}

func (c *Context) ConnectReceiveEndpointObserver(o observer.ReceiveEndpointObserver) observer.Handle {
	return c.endpointObservers.Connect(o)
}

// Close closes the built transport and endpoint providers that hold resources and
// detaches every send and publish observer. Observer channels that belong to the
// configuration are left alone. Builds in flight finish first and are closed with
// the rest. Close is idempotent.
func (c *Context) Close() error {
	c.lifecycle.Lock()
	if c.closed {
		c.lifecycle.Unlock()
		return nil
	}
	c.closed = true
	c.lifecycle.Unlock()

	var errs []error
	if p, ok := c.sendEndpointProvider.Peek(); ok {
		p.reset()
	}
	if p, ok := c.publishEndpointProvider.Peek(); ok {
		p.reset()
	}
	if p, ok := c.sendTransportProvider.Peek(); ok {
		errs = append(errs, closeIfCloser(p))
	}
	if p, ok := c.publishTransportProvider.Peek(); ok {
		errs = append(errs, closeIfCloser(p))
	}
	c.sendObservers.Clear()
	c.publishObservers.Clear()
	return errors.Join(errs...)
}

func (c *Context) isClosed() bool {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	return c.closed
}

func get[T any](c *Context, v *lazy.Value[T]) (T, error) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.closed {
		var zero T
		return zero, ErrClosed
	}
	return v.Get()
}

func (c *Context) buildSendPipe() (pipe.SendPipe, error) {
	if c.cfg == nil {
		return nil, configurationError("configuration is required")
	}
	p, err := c.cfg.CreateSendPipe()
	if err != nil {
		return nil, fmt.Errorf("endpoint: send pipe: %w", err)
	}
	return p, nil
}

func (c *Context) buildPublishPipe() (pipe.PublishPipe, error) {
	if c.cfg == nil {
		return nil, configurationError("configuration is required")
	}
	p, err := c.cfg.CreatePublishPipe()
	if err != nil {
		return nil, fmt.Errorf("endpoint: publish pipe: %w", err)
	}
	return p, nil
}

func (c *Context) buildReceivePipe() (pipe.ReceivePipe, error) {
	if c.cfg == nil {
		return nil, configurationError("configuration is required")
	}
	p, err := c.cfg.CreateReceivePipe()
	if err != nil {
		return nil, fmt.Errorf("endpoint: receive pipe: %w", err)
	}
	return p, nil
}

func (c *Context) buildSerializer() (serialization.Serializer, error) {
	if c.cfg == nil {
		return nil, configurationError("configuration is required")
	}
	s, err := c.cfg.Serializer()
	if err != nil {
		return nil, fmt.Errorf("endpoint: serializer: %w", err)
	}
	if s == nil {
		return nil, configurationError("serializer is required")
	}
	return s, nil
}

func (c *Context) buildSendTransportProvider() (transport.SendTransportProvider, error) {
	if c.binding == nil {
		return nil, configurationError("transport binding is required")
	}
	p, err := c.binding.CreateSendTransportProvider()
	if err != nil {
		return nil, fmt.Errorf("endpoint: %s send transport provider: %w", c.binding.Name(), err)
	}
	return p, nil
}

func (c *Context) buildPublishTransportProvider() (transport.PublishTransportProvider, error) {
	if c.binding == nil {
		return nil, configurationError("transport binding is required")
	}
	p, err := c.binding.CreatePublishTransportProvider()
	if err != nil {
		return nil, fmt.Errorf("endpoint: %s publish transport provider: %w", c.binding.Name(), err)
	}
	return p, nil
}

func (c *Context) buildSendEndpointProvider() (*SendEndpointProvider, error) {
	if c.inputAddress == nil {
		return nil, configurationError("input address is required")
	}
	transports, err := c.sendTransportProvider.Get()
	if err != nil {
		return nil, err
	}
	serializer, err := c.serializer.Get()
	if err != nil {
		return nil, err
	}
	sendPipe, err := c.sendPipe.Get()
	if err != nil {
		return nil, err
	}
	return newSendEndpointProvider(transports, c.sendObservers, serializer, c.InputAddress(), sendPipe), nil
}

func (c *Context) buildPublishEndpointProvider() (*PublishEndpointProvider, error) {
	if c.inputAddress == nil {
		return nil, configurationError("input address is required")
	}
	if c.hostAddr == nil {
		return nil, configurationError("host address is required")
	}
	if c.publishTopology == nil {
		return nil, configurationError("publish topology is required")
	}
	transports, err := c.publishTransportProvider.Get()
	if err != nil {
		return nil, err
	}
	serializer, err := c.serializer.Get()
	if err != nil {
		return nil, err
	}
	publishPipe, err := c.publishPipe.Get()
	if err != nil {
		return nil, err
	}
	return newPublishEndpointProvider(publishEndpointDeps{
		transports: transports,
		observers:  c.publishObservers,
		serializer: serializer,
		source:     c.InputAddress(),
		host:       c.hostAddress(),
		topology:   c.publishTopology,
		pipe:       publishPipe,
	}), nil
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	out := *u
	if u.User != nil {
		user := *u.User
		out.User = &user
	}
	return &out
}

func closeIfCloser(v any) error {
	if cl, ok := v.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
