package observer

import (
	"context"
	"net/url"
	"time"

	"github.com/casualjim/roost/messages"
)

// SendObserver sees every message sent through a send endpoint.
type SendObserver interface {
	PreSend(ctx context.Context, sc *messages.SendContext)
	PostSend(ctx context.Context, sc *messages.SendContext)
	SendFault(ctx context.Context, sc *messages.SendContext, err error)
}

// PublishObserver sees every message published through a publish endpoint.
type PublishObserver interface {
	PrePublish(ctx context.Context, pc *messages.PublishContext)
	PostPublish(ctx context.Context, pc *messages.PublishContext)
	PublishFault(ctx context.Context, pc *messages.PublishContext, err error)
}

// ReceiveObserver sees every delivery taken off the input address.
type ReceiveObserver interface {
	messages.ConsumeObserver

	PreReceive(ctx context.Context, rc *messages.ReceiveContext)
	PostReceive(ctx context.Context, rc *messages.ReceiveContext)
	ReceiveFault(ctx context.Context, rc *messages.ReceiveContext, err error)
}

// TransportEvent describes a state change of a receive transport.
type TransportEvent struct {
	InputAddress *url.URL
	Transport    string
	Err          error
	At           time.Time
}

// ReceiveTransportObserver sees the receive transport start, stop and fail.
type ReceiveTransportObserver interface {
	TransportReady(ctx context.Context, ev TransportEvent)
	TransportCompleted(ctx context.Context, ev TransportEvent)
	TransportFaulted(ctx context.Context, ev TransportEvent)
}

// EndpointEvent describes a state change of a receive endpoint.
type EndpointEvent struct {
	InputAddress  *url.URL
	DeliveryCount int64
	Err           error
	At            time.Time
}

// ReceiveEndpointObserver sees the receive endpoint start, stop and fail.
type ReceiveEndpointObserver interface {
	EndpointReady(ctx context.Context, ev EndpointEvent)
	EndpointCompleted(ctx context.Context, ev EndpointEvent)
	EndpointFaulted(ctx context.Context, ev EndpointEvent)
}
