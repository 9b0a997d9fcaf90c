// Package inmemory is a transport binding backed by an in-process Hub.
// Addresses use the "loopback" scheme: loopback://localhost/<entity>.
package inmemory

import (
	"bytes"
	"context"
	"net/url"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/topology"
	"github.com/casualjim/roost/transport"
)

// Scheme is the address scheme served by this binding.
const Scheme = "loopback"

// Binding connects endpoints to a Hub.
type Binding struct {
	hub *Hub
}

// New creates a binding on hub. A nil hub gets a private one.
func New(hub *Hub) *Binding {
	if hub == nil {
		hub = NewHub()
	}
	return &Binding{hub: hub}
}

// Hub returns the hub the binding delivers to.
func (b *Binding) Hub() *Hub {
	return b.hub
}

func (b *Binding) Name() string {
	return "inmemory"
}

func (b *Binding) CreateSendTransportProvider() (transport.SendTransportProvider, error) {
	return transport.NewCache(b.createTransport), nil
}

func (b *Binding) CreatePublishTransportProvider() (transport.PublishTransportProvider, error) {
	return transport.NewCache(b.createTransport), nil
}

func (b *Binding) CreateReceiveTransport(input *url.URL) (transport.ReceiveTransport, error) {
	if err := transport.CheckScheme(input, Scheme); err != nil {
		return nil, err
	}
	return &receiveTransport{hub: b.hub, entity: topology.EntityName(input)}, nil
}

func (b *Binding) Route(_ context.Context, publishAddress, input *url.URL) error {
	if err := transport.CheckScheme(publishAddress, Scheme); err != nil {
		return err
	}
	if err := transport.CheckScheme(input, Scheme); err != nil {
		return err
	}
	b.hub.Bind(topology.EntityName(publishAddress), topology.EntityName(input))
	return nil
}

func (b *Binding) createTransport(_ context.Context, address *url.URL) (transport.SendTransport, error) {
	if err := transport.CheckScheme(address, Scheme); err != nil {
		return nil, err
	}
	return &sendTransport{hub: b.hub, entity: topology.EntityName(address)}, nil
}

type sendTransport struct {
	hub    *Hub
	entity string
}

func (t *sendTransport) Send(ctx context.Context, sc *messages.SendContext) error {
	return t.hub.Deliver(ctx, t.entity, transport.DeliveryFrom(bytes.Clone(sc.Body), transport.Headers(sc)))
}

type receiveTransport struct {
	hub    *Hub
	entity string
}

func (t *receiveTransport) Subscribe(ctx context.Context, handler transport.Handler) (transport.Subscription, error) {
	return t.hub.Subscribe(ctx, t.entity, handler)
}
