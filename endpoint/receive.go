package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/pipe"
	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/serialization"
	"github.com/casualjim/roost/transport"
)

// ReceiveEndpoint consumes the input address of a Context and runs every delivery
// through the receive pipe.
type ReceiveEndpoint struct {
	c *Context

	mu          sync.Mutex
	sub         transport.Subscription
	transport   string
	pipe        pipe.ReceivePipe
	serializers *serialization.Registry

	deliveries atomic.Int64
}

// NewReceiveEndpoint creates a stopped receive endpoint for c.
func NewReceiveEndpoint(c *Context) *ReceiveEndpoint {
	return &ReceiveEndpoint{c: c}
}

// Deliveries reports how many deliveries the endpoint has taken since it was created.
func (r *ReceiveEndpoint) Deliveries() int64 {
	return r.deliveries.Load()
}

// Start subscribes to the input address. Transport and endpoint observers are told
// the endpoint is ready, or why it could not start.
func (r *ReceiveEndpoint) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return ErrAlreadyStarted
	}

	c := r.c
	input := c.InputAddress()
	if err := r.start(ctx); err != nil {
		now := time.Now()
		c.transportObservers.TransportFaulted(ctx, observer.TransportEvent{InputAddress: input, Transport: r.transport, Err: err, At: now})
		c.endpointObservers.EndpointFaulted(ctx, observer.EndpointEvent{InputAddress: input, DeliveryCount: r.Deliveries(), Err: err, At: now})
		return err
	}

	now := time.Now()
	c.transportObservers.TransportReady(ctx, observer.TransportEvent{InputAddress: input, Transport: r.transport, At: now})
	c.endpointObservers.EndpointReady(ctx, observer.EndpointEvent{InputAddress: input, DeliveryCount: r.Deliveries(), At: now})
	return nil
}

func (r *ReceiveEndpoint) start(ctx context.Context) error {
	c := r.c
	if c.isClosed() {
		return ErrClosed
	}
	if c.inputAddress == nil {
		return configurationError("input address is required")
	}
	if c.binding == nil {
		return configurationError("transport binding is required")
	}
	r.transport = c.binding.Name()
	rb, ok := c.binding.(transport.ReceiveBinding)
	if !ok {
		return configurationError("%s binding cannot receive", c.binding.Name())
	}

	rp, err := c.ReceivePipe()
	if err != nil {
		return err
	}
	r.pipe = rp
	r.serializers = c.serializers
	if s, err := c.Serializer(); err == nil {
		r.serializers.Register(s)
	}

	rt, err := rb.CreateReceiveTransport(c.InputAddress())
	if err != nil {
		return fmt.Errorf("endpoint: receive transport: %w", err)
	}
	sub, err := rt.Subscribe(context.WithoutCancel(ctx), r.handle)
	if err != nil {
		return fmt.Errorf("endpoint: subscribe: %w", err)
	}
	r.sub = sub
	return nil
}

// Stop unsubscribes from the input address and tells observers the endpoint completed.
func (r *ReceiveEndpoint) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		return ErrNotStarted
	}

	c := r.c
	input := c.InputAddress()
	err := r.sub.Unsubscribe()
	r.sub = nil
	now := time.Now()
	if err != nil {
		c.transportObservers.TransportFaulted(ctx, observer.TransportEvent{InputAddress: input, Transport: r.transport, Err: err, At: now})
		c.endpointObservers.EndpointFaulted(ctx, observer.EndpointEvent{InputAddress: input, DeliveryCount: r.Deliveries(), Err: err, At: now})
		return fmt.Errorf("endpoint: unsubscribe: %w", err)
	}
	c.transportObservers.TransportCompleted(ctx, observer.TransportEvent{InputAddress: input, Transport: r.transport, At: now})
	c.endpointObservers.EndpointCompleted(ctx, observer.EndpointEvent{InputAddress: input, DeliveryCount: r.Deliveries(), At: now})
	return nil
}

func (r *ReceiveEndpoint) handle(ctx context.Context, d transport.Delivery) error {
	c := r.c
	r.deliveries.Add(1)
	rc := &messages.ReceiveContext{
		InputAddress:     c.InputAddress(),
		ContentType:      d.ContentType,
		Body:             d.Body,
		TransportHeaders: d.Headers,
		ReceivedAt:       time.Now(),
		Redelivered:      d.Redelivered,
		Observer:         c.receiveObservers,
	}
	c.receiveObservers.PreReceive(ctx, rc)

	if err := r.receive(ctx, rc); err != nil {
		c.receiveObservers.ReceiveFault(ctx, rc, err)
		return err
	}
	if !rc.IsConsumed() {
		c.logger.DebugContext(ctx, "message skipped",
			slog.Any("messageType", rc.Envelope.MessageType),
			slog.String("messageId", rc.Envelope.MessageID),
		)
	}
	c.receiveObservers.PostReceive(ctx, rc)
	return nil
}

func (r *ReceiveEndpoint) receive(ctx context.Context, rc *messages.ReceiveContext) error {
	s, err := r.serializers.Lookup(rc.ContentType)
	if err != nil {
		return err
	}
	env, err := s.Deserialize(rc.Body)
	if err != nil {
		return fmt.Errorf("endpoint: deserialize: %w", err)
	}
	if env.SentTime.IsZero() {
		if t, ok := uuidx.Time(env.MessageID); ok {
			env.SentTime = t
		}
	}
	rc.Envelope = env
	rc.Decoder = s

	if err := r.pipe.Send(ctx, rc); err != nil {
		r.c.logger.DebugContext(ctx, "receive pipe faulted", slog.String("messageId", env.MessageID), slogx.Error(err))
		return err
	}
	return nil
}
