package messages

import (
	"maps"
	"time"
)

// Headers are string keyed values carried next to the message payload.
type Headers map[string]any

// Get returns the header value for key.
func (h Headers) Get(key string) (any, bool) {
	if h == nil {
		return nil, false
	}
	v, ok := h[key]
	return v, ok
}

// GetString returns the header value for key when it is a string.
func (h Headers) GetString(key string) string {
	v, _ := h.Get(key)
	s, _ := v.(string)
	return s
}

// Clone returns a shallow copy, never nil.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	maps.Copy(out, h)
	return out
}

// Envelope is the transport-neutral form of a message. Message holds the payload
// already encoded in the content type of the serializer that produced the envelope.
type Envelope struct {
	MessageID          string
	CorrelationID      string
	ConversationID     string
	MessageType        []string
	SourceAddress      string
	DestinationAddress string
	Headers            Headers
	SentTime           time.Time
	Message            []byte
}

// Is reports whether the envelope carries the given message type urn.
func (e *Envelope) Is(messageType string) bool {
	if e == nil {
		return false
	}
	for _, mt := range e.MessageType {
		if mt == messageType {
			return true
		}
	}
	return false
}
