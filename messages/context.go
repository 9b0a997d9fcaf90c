package messages

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"time"
)

// ErrNoDecoder is returned by ReceiveContext.Decode when no payload decoder was bound.
var ErrNoDecoder = errors.New("messages: receive context has no decoder")

// SendContext describes one outgoing message while it moves through the send pipe.
// Filters may change headers and identifiers; Body and ContentType are filled in by
// the serializer after the pipe has run.
type SendContext struct {
	MessageID          string
	CorrelationID      string
	ConversationID     string
	MessageType        []string
	SourceAddress      *url.URL
	DestinationAddress *url.URL
	Headers            Headers
	SentTime           time.Time
	Message            any

	ContentType string
	Body        []byte
}

// Envelope copies the addressing and header data into an Envelope without a payload.
func (sc *SendContext) Envelope() Envelope {
	env := Envelope{
		MessageID:      sc.MessageID,
		CorrelationID:  sc.CorrelationID,
		ConversationID: sc.ConversationID,
		MessageType:    sc.MessageType,
		Headers:        sc.Headers.Clone(),
		SentTime:       sc.SentTime,
	}
	if sc.SourceAddress != nil {
		env.SourceAddress = sc.SourceAddress.String()
	}
	if sc.DestinationAddress != nil {
		env.DestinationAddress = sc.DestinationAddress.String()
	}
	return env
}

// PublishContext is a SendContext whose destination was resolved from the message type.
type PublishContext struct {
	SendContext
	// Mandatory asks the transport to fail when nothing is bound to the destination.
	Mandatory bool
}

// PayloadDecoder decodes the payload bytes of an envelope.
type PayloadDecoder interface {
	Unmarshal(data []byte, v any) error
}

// ConsumeObserver is told when a consumer finished with a received message.
type ConsumeObserver interface {
	PostConsume(ctx context.Context, rc *ReceiveContext, elapsed time.Duration, consumerType string)
	ConsumeFault(ctx context.Context, rc *ReceiveContext, elapsed time.Duration, consumerType string, err error)
}

// ReceiveContext describes one delivery taken off the input address.
type ReceiveContext struct {
	InputAddress     *url.URL
	ContentType      string
	Body             []byte
	TransportHeaders Headers
	ReceivedAt       time.Time
	Redelivered      bool

	// Envelope is set once the body has been deserialized.
	Envelope *Envelope
	Decoder  PayloadDecoder
	Observer ConsumeObserver

	consumed atomic.Bool
}

// Decode decodes the envelope payload into v.
func (rc *ReceiveContext) Decode(v any) error {
	if rc.Decoder == nil {
		return ErrNoDecoder
	}
	if rc.Envelope == nil {
		return errors.New("messages: receive context has no envelope")
	}
	return rc.Decoder.Unmarshal(rc.Envelope.Message, v)
}

// IsConsumed reports whether any consumer handled the message.
func (rc *ReceiveContext) IsConsumed() bool {
	return rc.consumed.Load()
}

// NotifyConsumed marks the message as consumed and tells the observer.
func (rc *ReceiveContext) NotifyConsumed(ctx context.Context, elapsed time.Duration, consumerType string) {
	rc.consumed.Store(true)
	if rc.Observer != nil {
		rc.Observer.PostConsume(ctx, rc, elapsed, consumerType)
	}
}

// NotifyFaulted tells the observer a consumer failed.
func (rc *ReceiveContext) NotifyFaulted(ctx context.Context, elapsed time.Duration, consumerType string, err error) {
	if rc.Observer != nil {
		rc.Observer.ConsumeFault(ctx, rc, elapsed, consumerType, err)
	}
}
