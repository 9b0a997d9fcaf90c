package observer

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/roost/messages"
)

var (
	_ SendObserver             = (*SendObservable)(nil)
	_ PublishObserver          = (*PublishObservable)(nil)
	_ ReceiveObserver          = (*ReceiveObservable)(nil)
	_ ReceiveTransportObserver = (*ReceiveTransportObservable)(nil)
	_ ReceiveEndpointObserver  = (*ReceiveEndpointObservable)(nil)
)

// SendObservable fans send events out to connected SendObservers.
type SendObservable struct {
	ch *Channel[SendObserver]
}

func NewSendObservable() *SendObservable {
	return &SendObservable{ch: NewChannel[SendObserver]("send")}
}

func (o *SendObservable) Connect(obs SendObserver) Handle { return o.ch.Attach(obs) }
func (o *SendObservable) Len() int                        { return o.ch.Len() }
func (o *SendObservable) Clear()                          { o.ch.Clear() }

// WithLogger sets the logger used to report observer panics.
func (o *SendObservable) WithLogger(lg *slog.Logger) *SendObservable {
	o.ch.WithLogger(lg)
	return o
}

func (o *SendObservable) PreSend(ctx context.Context, sc *messages.SendContext) {
	o.ch.Notify(func(obs SendObserver) { obs.PreSend(ctx, sc) })
}

func (o *SendObservable) PostSend(ctx context.Context, sc *messages.SendContext) {
	o.ch.Notify(func(obs SendObserver) { obs.PostSend(ctx, sc) })
}

func (o *SendObservable) SendFault(ctx context.Context, sc *messages.SendContext, err error) {
	o.ch.Notify(func(obs SendObserver) { obs.SendFault(ctx, sc, err) })
}

// PublishObservable fans publish events out to connected PublishObservers.
type PublishObservable struct {
	ch *Channel[PublishObserver]
}

func NewPublishObservable() *PublishObservable {
	return &PublishObservable{ch: NewChannel[PublishObserver]("publish")}
}

func (o *PublishObservable) Connect(obs PublishObserver) Handle { return o.ch.Attach(obs) }
func (o *PublishObservable) Len() int                           { return o.ch.Len() }
func (o *PublishObservable) Clear()                             { o.ch.Clear() }

// WithLogger sets the logger used to report observer panics.
func (o *PublishObservable) WithLogger(lg *slog.Logger) *PublishObservable {
	o.ch.WithLogger(lg)
	return o
}

func (o *PublishObservable) PrePublish(ctx context.Context, pc *messages.PublishContext) {
	o.ch.Notify(func(obs PublishObserver) { obs.PrePublish(ctx, pc) })
}

func (o *PublishObservable) PostPublish(ctx context.Context, pc *messages.PublishContext) {
	o.ch.Notify(func(obs PublishObserver) { obs.PostPublish(ctx, pc) })
}

func (o *PublishObservable) PublishFault(ctx context.Context, pc *messages.PublishContext, err error) {
	o.ch.Notify(func(obs PublishObserver) { obs.PublishFault(ctx, pc, err) })
}

// ReceiveObservable fans receive and consume events out to connected ReceiveObservers.
type ReceiveObservable struct {
	ch *Channel[ReceiveObserver]
}

func NewReceiveObservable() *ReceiveObservable {
	return &ReceiveObservable{ch: NewChannel[ReceiveObserver]("receive")}
}

func (o *ReceiveObservable) Connect(obs ReceiveObserver) Handle { return o.ch.Attach(obs) }
func (o *ReceiveObservable) Len() int                           { return o.ch.Len() }
func (o *ReceiveObservable) Clear()                             { o.ch.Clear() }

// WithLogger sets the logger used to report observer panics.
func (o *ReceiveObservable) WithLogger(lg *slog.Logger) *ReceiveObservable {
	o.ch.WithLogger(lg)
	return o
}

func (o *ReceiveObservable) PreReceive(ctx context.Context, rc *messages.ReceiveContext) {
	o.ch.Notify(func(obs ReceiveObserver) { obs.PreReceive(ctx, rc) })
}

func (o *ReceiveObservable) PostReceive(ctx context.Context, rc *messages.ReceiveContext) {
	o.ch.Notify(func(obs ReceiveObserver) { obs.PostReceive(ctx, rc) })
}

func (o *ReceiveObservable) ReceiveFault(ctx context.Context, rc *messages.ReceiveContext, err error) {
	o.ch.Notify(func(obs ReceiveObserver) { obs.ReceiveFault(ctx, rc, err) })
}

func (o *ReceiveObservable) PostConsume(ctx context.Context, rc *messages.ReceiveContext, elapsed time.Duration, consumerType string) {
	o.ch.Notify(func(obs ReceiveObserver) { obs.PostConsume(ctx, rc, elapsed, consumerType) })
}

func (o *ReceiveObservable) ConsumeFault(ctx context.Context, rc *messages.ReceiveContext, elapsed time.Duration, consumerType string, err error) {
	o.ch.Notify(func(obs ReceiveObserver) { obs.ConsumeFault(ctx, rc, elapsed, consumerType, err) })
}

// ReceiveTransportObservable fans transport lifecycle events out.
type ReceiveTransportObservable struct {
	ch *Channel[ReceiveTransportObserver]
}

func NewReceiveTransportObservable() *ReceiveTransportObservable {
	return &ReceiveTransportObservable{ch: NewChannel[ReceiveTransportObserver]("transport")}
}

func (o *ReceiveTransportObservable) Connect(obs ReceiveTransportObserver) Handle {
	return o.ch.Attach(obs)
}
func (o *ReceiveTransportObservable) Len() int { return o.ch.Len() }
func (o *ReceiveTransportObservable) Clear()   { o.ch.Clear() }

// WithLogger sets the logger used to report observer panics.
func (o *ReceiveTransportObservable) WithLogger(lg *slog.Logger) *ReceiveTransportObservable {
	o.ch.WithLogger(lg)
	return o
}

func (o *ReceiveTransportObservable) TransportReady(ctx context.Context, ev TransportEvent) {
	o.ch.Notify(func(obs ReceiveTransportObserver) { obs.TransportReady(ctx, ev) })
}

func (o *ReceiveTransportObservable) TransportCompleted(ctx context.Context, ev TransportEvent) {
	o.ch.Notify(func(obs ReceiveTransportObserver) { obs.TransportCompleted(ctx, ev) })
}

func (o *ReceiveTransportObservable) TransportFaulted(ctx context.Context, ev TransportEvent) {
	o.ch.Notify(func(obs ReceiveTransportObserver) { obs.TransportFaulted(ctx, ev) })
}

// ReceiveEndpointObservable fans endpoint lifecycle events out.
type ReceiveEndpointObservable struct {
	ch *Channel[ReceiveEndpointObserver]
}

func NewReceiveEndpointObservable() *ReceiveEndpointObservable {
	return &ReceiveEndpointObservable{ch: NewChannel[ReceiveEndpointObserver]("endpoint")}
}

func (o *ReceiveEndpointObservable) Connect(obs ReceiveEndpointObserver) Handle {
	return o.ch.Attach(obs)
}
func (o *ReceiveEndpointObservable) Len() int { return o.ch.Len() }
func (o *ReceiveEndpointObservable) Clear()   { o.ch.Clear() }

// WithLogger sets the logger used to report observer panics.
func (o *ReceiveEndpointObservable) WithLogger(lg *slog.Logger) *ReceiveEndpointObservable {
	o.ch.WithLogger(lg)
	return o
}

func (o *ReceiveEndpointObservable) EndpointReady(ctx context.Context, ev EndpointEvent) {
	o.ch.Notify(func(obs ReceiveEndpointObserver) { obs.EndpointReady(ctx, ev) })
}

func (o *ReceiveEndpointObservable) EndpointCompleted(ctx context.Context, ev EndpointEvent) {
	o.ch.Notify(func(obs ReceiveEndpointObserver) { obs.EndpointCompleted(ctx, ev) })
}

func (o *ReceiveEndpointObservable) EndpointFaulted(ctx context.Context, ev EndpointEvent) {
	o.ch.Notify(func(obs ReceiveEndpointObserver) { obs.EndpointFaulted(ctx, ev) })
}
