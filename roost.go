package roost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"

	"github.com/casualjim/roost/endpoint"
	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/pipe"
	"github.com/casualjim/roost/pkg/lazy"
	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/transport"
	"github.com/casualjim/roost/transport/inmemory"
	"github.com/fogfish/opts"
)

// Endpoint pairs an endpoint context with its receive loop.
type Endpoint struct {
	binding     transport.Binding
	configOpts  []opts.Option[endpoint.Config]
	observers   []any
	logger      *slog.Logger
	policy      lazy.Policy
	ownsBinding bool

	mu        sync.Mutex
	consumers pipe.Builder[*messages.ReceiveContext]
	routes    []string
	sealed    bool

	ctx     *endpoint.Context
	receive *endpoint.ReceiveEndpoint
}

var (
	// WithBinding sets the transport binding. Defaults to a private in-memory hub.
	WithBinding = opts.ForName[Endpoint, transport.Binding]("binding")
	// WithLogger sets the logger of the endpoint.
	WithLogger = opts.ForName[Endpoint, *slog.Logger]("logger")
	// WithPolicy sets what lazily built parts do after a failed build.
	WithPolicy = opts.ForName[Endpoint, lazy.Policy]("policy")
	// WithOwnedBinding makes Close close the binding as well.
	WithOwnedBinding = opts.ForName[Endpoint, bool]("ownsBinding")
)

// WithConfig passes options to the endpoint configuration.
func WithConfig(options ...opts.Option[endpoint.Config]) opts.Option[Endpoint] {
	return opts.Type[Endpoint](func(e *Endpoint) error {
		e.configOpts = append(e.configOpts, options...)
		return nil
	})
}

// WithInput sets the input address.
func WithInput(raw string) opts.Option[Endpoint] {
	return WithConfig(endpoint.WithInput(raw))
}

// WithHost sets the host address.
func WithHost(raw string) opts.Option[Endpoint] {
	return WithConfig(endpoint.WithHost(raw))
}

// WithObservers connects every observer to each channel whose interface it implements.
func WithObservers(observers ...any) opts.Option[Endpoint] {
	return opts.Type[Endpoint](func(e *Endpoint) error {
		for _, o := range observers {
			if !isObserver(o) {
				return fmt.Errorf("roost: %T observes nothing", o)
			}
		}
		e.observers = append(e.observers, observers...)
		return nil
	})
}

// New assembles an endpoint. Nothing is dialed or built until the endpoint is used.
func New(options ...opts.Option[Endpoint]) (*Endpoint, error) {
	e := &Endpoint{logger: slog.Default()}
	if err := opts.Apply(e, options); err != nil {
		return nil, err
	}
	if e.binding == nil {
		e.binding = inmemory.New(nil)
	}

	cfgOpts := append([]opts.Option[endpoint.Config]{}, e.configOpts...)
	cfgOpts = append(cfgOpts, endpoint.WithReceivePipeFactory(e.buildReceivePipe))
	cfg, err := endpoint.NewConfig(cfgOpts...)
	if err != nil {
		return nil, err
	}

	e.logger = e.logger.With(slogx.LoggerName("roost"), slog.String("transport", e.binding.Name()))
	e.ctx = endpoint.NewContext(cfg, e.binding, endpoint.WithLogger(e.logger), endpoint.WithPolicy(e.policy))
	e.receive = endpoint.NewReceiveEndpoint(e.ctx)
	for _, o := range e.observers {
		connect(e.ctx, o)
	}
	return e, nil
}

func (e *Endpoint) buildReceivePipe() (pipe.ReceivePipe, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consumers.Build(), nil
}

// Context returns the endpoint context.
func (e *Endpoint) Context() *endpoint.Context {
	return e.ctx
}

// Connect attaches o to each channel whose interface it implements.
func (e *Endpoint) Connect(o any) observer.Handles {
	return connect(e.ctx, o)
}

// Use appends receive filters. Filters must be added before the first Start.
func (e *Endpoint) Use(filters ...pipe.ReceiveFilter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return endpoint.ErrAlreadyStarted
	}
	e.consumers.Use(filters...)
	return nil
}

// Consume registers a handler for messages of type T. When the binding can route,
// Start binds the publish address of T to the input address so published messages
// reach the handler.
func Consume[T any](e *Endpoint, name string, handler endpoint.Handler[T]) error {
	if handler == nil {
		return fmt.Errorf("%w: handler is required", endpoint.ErrConfiguration)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return endpoint.ErrAlreadyStarted
	}
	e.consumers.Use(endpoint.Consumer(name, handler))
	e.routes = append(e.routes, messages.TypeNameFor[T]())
	return nil
}

// Start binds the routes of consumed message types and starts receiving.
// The consumer set is fixed from the first Start on.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	e.sealed = true
	routes := append([]string(nil), e.routes...)
	e.mu.Unlock()

	if err := e.bindRoutes(ctx, routes); err != nil {
		return err
	}
	if err := e.receive.Start(ctx); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "endpoint started", slogx.URL("input", e.ctx.InputAddress()), slog.Int("consumers", len(routes)))
	return nil
}

func (e *Endpoint) bindRoutes(ctx context.Context, routes []string) error {
	router, ok := e.binding.(transport.Router)
	if !ok || len(routes) == 0 {
		return nil
	}
	pp, err := e.ctx.PublishEndpointProvider()
	if err != nil {
		return err
	}
	input := e.ctx.InputAddress()
	for _, mt := range routes {
		addr, err := pp.PublishAddress(mt)
		if err != nil {
			return err
		}
		if err := router.Route(ctx, addr, input); err != nil {
			return fmt.Errorf("roost: route %s to %s: %w", addr, input, err)
		}
	}
	return nil
}

// Stop stops receiving.
func (e *Endpoint) Stop(ctx context.Context) error {
	if err := e.receive.Stop(ctx); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "endpoint stopped", slog.Int64("deliveries", e.receive.Deliveries()))
	return nil
}

// Run starts the endpoint and blocks until ctx ends, then stops and closes it.
func (e *Endpoint) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx := context.WithoutCancel(ctx)
	return errors.Join(e.Stop(stopCtx), e.Close())
}

// Send sends message to destination.
func (e *Endpoint) Send(ctx context.Context, destination *url.URL, message any, callbacks ...endpoint.SendCallback) error {
	sp, err := e.ctx.SendEndpointProvider()
	if err != nil {
		return err
	}
	ep, err := sp.GetSendEndpoint(ctx, destination)
	if err != nil {
		return err
	}
	return ep.Send(ctx, message, callbacks...)
}

// Publish publishes message to the publish address of its type.
func (e *Endpoint) Publish(ctx context.Context, message any, callbacks ...endpoint.SendCallback) error {
	pp, err := e.ctx.PublishEndpointProvider()
	if err != nil {
		return err
	}
	return pp.Publish(ctx, message, callbacks...)
}

// Close stops a running endpoint and closes the context. An owned binding is closed too.
func (e *Endpoint) Close() error {
	var errs []error
	if err := e.receive.Stop(context.Background()); err != nil && !errors.Is(err, endpoint.ErrNotStarted) {
		errs = append(errs, err)
	}
	errs = append(errs, e.ctx.Close())
	if e.ownsBinding {
		if c, ok := e.binding.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func isObserver(o any) bool {
	switch o.(type) {
	case observer.SendObserver, observer.PublishObserver, observer.ReceiveObserver,
		observer.ReceiveTransportObserver, observer.ReceiveEndpointObserver:
		return true
	default:
		return false
	}
}

func connect(c *endpoint.Context, o any) observer.Handles {
	var hs observer.Handles
	if so, ok := o.(observer.SendObserver); ok {
		hs = append(hs, c.ConnectSendObserver(so))
	}
	if po, ok := o.(observer.PublishObserver); ok {
		hs = append(hs, c.ConnectPublishObserver(po))
	}
	if ro, ok := o.(observer.ReceiveObserver); ok {
		hs = append(hs, c.ConnectReceiveObserver(ro))
	}
	if to, ok := o.(observer.ReceiveTransportObserver); ok {
		hs = append(hs, c.ConnectReceiveTransportObserver(to))
	}
	if eo, ok := o.(observer.ReceiveEndpointObserver); ok {
		hs = append(hs, c.ConnectReceiveEndpointObserver(eo))
	}
	return hs
}
