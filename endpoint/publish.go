package endpoint

import (
	"context"
	"fmt"
	"net/url"

	"github.com/casualjim/roost/internal/registry"
	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/pipe"
	"github.com/casualjim/roost/pkg/lazy"
	"github.com/casualjim/roost/serialization"
	"github.com/casualjim/roost/topology"
	"github.com/casualjim/roost/transport"
)

type publishEndpointDeps struct {
	transports transport.PublishTransportProvider
	observers  *observer.PublishObservable
	serializer serialization.Serializer
	source     *url.URL
	host       *url.URL
	topology   topology.Publish
	pipe       pipe.PublishPipe
}

// PublishEndpointProvider resolves message types to publish endpoints through the
// publish topology. It keeps one endpoint per message type.
type PublishEndpointProvider struct {
	publishEndpointDeps
	endpoints registry.Registry[*lazy.Value[*PublishEndpoint]]
}

func newPublishEndpointProvider(deps publishEndpointDeps) *PublishEndpointProvider {
	return &PublishEndpointProvider{
		publishEndpointDeps: deps,
		endpoints:           registry.New[*lazy.Value[*PublishEndpoint]](),
	}
}

// GetPublishSendEndpoint returns the endpoint messages of messageType are published through.
func (p *PublishEndpointProvider) GetPublishSendEndpoint(ctx context.Context, messageType string) (*PublishEndpoint, error) {
	if messageType == "" {
		return nil, configurationError("message type is required")
	}
	buildCtx := context.WithoutCancel(ctx)
	cell, _ := p.endpoints.GetOrAdd(messageType, func() *lazy.Value[*PublishEndpoint] {
		return lazy.New(func() (*PublishEndpoint, error) {
			addr, err := p.topology.PublishAddress(p.host, messageType)
			if err != nil {
				return nil, fmt.Errorf("endpoint: publish address for %s: %w", messageType, err)
			}
			t, err := p.transports.GetPublishTransport(buildCtx, messageType, addr)
			if err != nil {
				return nil, fmt.Errorf("endpoint: publish transport for %s: %w", messageType, err)
			}
			return &PublishEndpoint{provider: p, messageType: messageType, address: addr, transport: t}, nil
		})
	})
	return cell.Get()
}

// PublishAddress returns where messages of messageType are published, without building an endpoint.
func (p *PublishEndpointProvider) PublishAddress(messageType string) (*url.URL, error) {
	return p.topology.PublishAddress(p.host, messageType)
}

// Publish publishes message through the endpoint of its message type.
func (p *PublishEndpointProvider) Publish(ctx context.Context, message any, callbacks ...SendCallback) error {
	if message == nil {
		return ErrNilMessage
	}
	ep, err := p.GetPublishSendEndpoint(ctx, messages.TypeName(message))
	if err != nil {
		return err
	}
	return ep.Publish(ctx, message, callbacks...)
}

func (p *PublishEndpointProvider) reset() {
	// transports belong to the transport provider, which closes them
	p.endpoints.Drain()
}

// PublishEndpoint publishes messages of one message type.
type PublishEndpoint struct {
	provider    *PublishEndpointProvider
	messageType string
	address     *url.URL
	transport   transport.SendTransport
}

// Address returns a copy of the publish address.
func (e *PublishEndpoint) Address() *url.URL {
	return cloneURL(e.address)
}

// MessageType returns the message type the endpoint publishes.
func (e *PublishEndpoint) MessageType() string {
	return e.messageType
}

// Publish runs message through the publish pipe, serializes it and hands it to the transport.
func (e *PublishEndpoint) Publish(ctx context.Context, message any, callbacks ...SendCallback) error {
	if message == nil {
		return ErrNilMessage
	}
	p := e.provider
	pc := &messages.PublishContext{SendContext: *newSendContext(p.source, e.address, message, callbacks)}
	if pc.MessageType[0] != e.messageType {
		pc.MessageType = append([]string{e.messageType}, pc.MessageType...)
	}

	if err := p.pipe.Send(ctx, pc); err != nil {
		p.observers.PublishFault(ctx, pc, err)
		return err
	}
	if err := serialize(p.serializer, &pc.SendContext); err != nil {
		p.observers.PublishFault(ctx, pc, err)
		return err
	}

	p.observers.PrePublish(ctx, pc)
	if err := e.transport.Send(ctx, &pc.SendContext); err != nil {
		p.observers.PublishFault(ctx, pc, err)
		return fmt.Errorf("endpoint: publish %s: %w", e.messageType, err)
	}
	p.observers.PostPublish(ctx, pc)
	return nil
}
