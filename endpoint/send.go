package endpoint

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/casualjim/roost/internal/registry"
	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/pipe"
	"github.com/casualjim/roost/pkg/lazy"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/serialization"
	"github.com/casualjim/roost/transport"
)

// SendCallback adjusts an outgoing message before the pipe runs.
type SendCallback func(sc *messages.SendContext)

// WithHeader sets a header on the outgoing message.
func WithHeader(key string, value any) SendCallback {
	return func(sc *messages.SendContext) {
		if sc.Headers == nil {
			sc.Headers = messages.Headers{}
		}
		sc.Headers[key] = value
	}
}

// WithCorrelationID sets the correlation id.
func WithCorrelationID(id string) SendCallback {
	return func(sc *messages.SendContext) { sc.CorrelationID = id }
}

// WithConversationID sets the conversation id.
func WithConversationID(id string) SendCallback {
	return func(sc *messages.SendContext) { sc.ConversationID = id }
}

// WithMessageID replaces the generated message id.
func WithMessageID(id string) SendCallback {
	return func(sc *messages.SendContext) { sc.MessageID = id }
}

func newSendContext(source, destination *url.URL, message any, callbacks []SendCallback) *messages.SendContext {
	sc := &messages.SendContext{
		MessageID:          uuidx.NewString(),
		MessageType:        []string{messages.TypeName(message)},
		SourceAddress:      cloneURL(source),
		DestinationAddress: cloneURL(destination),
		Headers:            messages.Headers{},
		SentTime:           time.Now().UTC(),
		Message:            message,
	}
	for _, cb := range callbacks {
		if cb != nil {
			cb(sc)
		}
	}
	return sc
}

func serialize(s serialization.Serializer, sc *messages.SendContext) error {
	body, err := s.Serialize(sc.Envelope(), sc.Message)
	if err != nil {
		return fmt.Errorf("endpoint: serialize %s: %w", sc.MessageType, err)
	}
	sc.Body = body
	sc.ContentType = s.ContentType()
	return nil
}

// SendEndpointProvider resolves destination addresses to send endpoints.
// It keeps one endpoint per address.
type SendEndpointProvider struct {
	transports transport.SendTransportProvider
	observers  *observer.SendObservable
	serializer serialization.Serializer
	source     *url.URL
	pipe       pipe.SendPipe
	endpoints  registry.Registry[*lazy.Value[*SendEndpoint]]
}

func newSendEndpointProvider(
	transports transport.SendTransportProvider,
	observers *observer.SendObservable,
	serializer serialization.Serializer,
	source *url.URL,
	sendPipe pipe.SendPipe,
) *SendEndpointProvider {
	return &SendEndpointProvider{
		transports: transports,
		observers:  observers,
		serializer: serializer,
		source:     source,
		pipe:       sendPipe,
		endpoints:  registry.New[*lazy.Value[*SendEndpoint]](),
	}
}

// GetSendEndpoint returns the send endpoint for address.
func (p *SendEndpointProvider) GetSendEndpoint(ctx context.Context, address *url.URL) (*SendEndpoint, error) {
	if address == nil {
		return nil, configurationError("destination address is required")
	}
	dest := cloneURL(address)
	buildCtx := context.WithoutCancel(ctx)
	cell, _ := p.endpoints.GetOrAdd(dest.String(), func() *lazy.Value[*SendEndpoint] {
		return lazy.New(func() (*SendEndpoint, error) {
			t, err := p.transports.GetSendTransport(buildCtx, dest)
			if err != nil {
				return nil, fmt.Errorf("endpoint: send transport for %s: %w", dest, err)
			}
			return &SendEndpoint{provider: p, address: dest, transport: t}, nil
		})
	})
	return cell.Get()
}

func (p *SendEndpointProvider) reset() {
	// transports belong to the transport provider, which closes them
	p.endpoints.Drain()
}

// SendEndpoint sends messages to one destination.
type SendEndpoint struct {
	provider  *SendEndpointProvider
	address   *url.URL
	transport transport.SendTransport
}

// Address returns a copy of the destination address.
func (e *SendEndpoint) Address() *url.URL {
	return cloneURL(e.address)
}

// Send runs message through the send pipe, serializes it and hands it to the transport.
// Send observers see PreSend before the transport is called and then either PostSend
// or SendFault.
func (e *SendEndpoint) Send(ctx context.Context, message any, callbacks ...SendCallback) error {
	if message == nil {
		return ErrNilMessage
	}
	p := e.provider
	sc := newSendContext(p.source, e.address, message, callbacks)

	if err := p.pipe.Send(ctx, sc); err != nil {
		p.observers.SendFault(ctx, sc, err)
		return err
	}
	if err := serialize(p.serializer, sc); err != nil {
		p.observers.SendFault(ctx, sc, err)
		return err
	}

	p.observers.PreSend(ctx, sc)
	if err := e.transport.Send(ctx, sc); err != nil {
		p.observers.SendFault(ctx, sc, err)
		return fmt.Errorf("endpoint: send to %s: %w", e.address, err)
	}
	p.observers.PostSend(ctx, sc)
	return nil
}
