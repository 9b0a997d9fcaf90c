// Package transport is the boundary between endpoints and brokers.
//
// An endpoint never talks to a broker client directly. It holds a Binding, which builds
// the two providers the endpoint needs: a SendTransportProvider that resolves a
// destination address to a SendTransport, and a PublishTransportProvider that does the
// same for a message type's publish address. Bindings that can also consume messages
// implement ReceiveBinding.
//
// Interface hierarchy:
//   - Binding: creates send and publish transport providers
//     └── ReceiveBinding: also creates a ReceiveTransport for an input address
//   - SendTransportProvider / PublishTransportProvider: resolve a SendTransport
//   - ReceiveTransport: subscribes a Handler, returns a Subscription
//
// Each broker lives in its own package: inmemory, nats, rabbitmq, kafka and redis.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/casualjim/roost/messages"
)

var (
	// ErrUnsupportedAddress is returned when an address cannot be served by a binding.
	ErrUnsupportedAddress = errors.New("transport: unsupported address")
	// ErrClosed is returned by providers and transports after Close.
	ErrClosed = errors.New("transport: closed")
	// ErrHandlerRequired is returned by Subscribe without a handler.
	ErrHandlerRequired = errors.New("transport: handler is required")
)

// SendTransport delivers serialized messages to one destination.
type SendTransport interface {
	// Send delivers sc.Body. The serializer has already run, so ContentType and Body are set.
	Send(ctx context.Context, sc *messages.SendContext) error
}

// SendTransportFunc adapts a function to SendTransport.
type SendTransportFunc func(ctx context.Context, sc *messages.SendContext) error

func (f SendTransportFunc) Send(ctx context.Context, sc *messages.SendContext) error {
	return f(ctx, sc)
}

// SendTransportProvider resolves the transport for a destination address.
type SendTransportProvider interface {
	GetSendTransport(ctx context.Context, address *url.URL) (SendTransport, error)
}

// PublishTransportProvider resolves the transport for a message type published to address.
type PublishTransportProvider interface {
	GetPublishTransport(ctx context.Context, messageType string, address *url.URL) (SendTransport, error)
}

// Binding builds the transport providers for one broker.
type Binding interface {
	// Name identifies the broker in logs and metrics.
	Name() string
	CreateSendTransportProvider() (SendTransportProvider, error)
	CreatePublishTransportProvider() (PublishTransportProvider, error)
}

// Delivery is one message taken off a receive transport.
type Delivery struct {
	Body        []byte
	ContentType string
	Headers     messages.Headers
	Redelivered bool
}

// Handler processes a delivery. Returning an error reports the delivery as faulted.
type Handler func(ctx context.Context, d Delivery) error

// Subscription is an active consumer on a receive transport.
type Subscription interface {
	ID() string
	Unsubscribe() error
}

// ReceiveTransport consumes messages from one input address.
type ReceiveTransport interface {
	// Subscribe starts delivering to handler until the subscription is removed or ctx ends.
	Subscribe(ctx context.Context, handler Handler) (Subscription, error)
}

// ReceiveBinding is a Binding that can also consume from an input address.
type ReceiveBinding interface {
	Binding
	CreateReceiveTransport(input *url.URL) (ReceiveTransport, error)
}

// CheckScheme verifies addr uses one of schemes.
func CheckScheme(addr *url.URL, schemes ...string) error {
	if addr == nil {
		return fmt.Errorf("%w: nil address", ErrUnsupportedAddress)
	}
	if !slices.Contains(schemes, addr.Scheme) {
		return fmt.Errorf("%w: scheme %q, want one of %v", ErrUnsupportedAddress, addr.Scheme, schemes)
	}
	return nil
}

// Router is implemented by bindings that can deliver messages published to a publish
// address to an input address as well. Routes must exist before the receive transport
// for input subscribes.
type Router interface {
	Route(ctx context.Context, publishAddress, input *url.URL) error
}
