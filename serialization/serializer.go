// Package serialization turns messages into envelopes and envelopes into bytes.
//
// A Serializer owns a single content type. It writes the envelope (identifiers,
// addresses, headers, sent time) together with the message payload, and reads it back
// into a messages.Envelope whose Message field keeps the payload encoded so a consumer
// can decode it into its own type later with Unmarshal.
//
// Three serializers ship with the package:
//   - JSON ("application/vnd.roost+json")
//   - CBOR ("application/vnd.roost+cbor")
//   - CloudEvents structured mode ("application/cloudevents+json")
package serialization

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/roost/messages"
)

var (
	// ErrMalformed is returned when bytes cannot be read as an envelope.
	ErrMalformed = errors.New("serialization: malformed envelope")
	// ErrUnknownSerializer is returned by ByName for an unknown name.
	ErrUnknownSerializer = errors.New("serialization: unknown serializer")
	// ErrUnsupportedContentType is returned when no serializer handles a content type.
	ErrUnsupportedContentType = errors.New("serialization: unsupported content type")
)

// Serializer encodes and decodes envelopes for one content type.
type Serializer interface {
	messages.PayloadDecoder

	ContentType() string
	// Serialize writes env with message as its payload. env.Message is ignored.
	Serialize(env messages.Envelope, message any) ([]byte, error)
	// Deserialize reads an envelope. The payload stays encoded in Envelope.Message.
	Deserialize(data []byte) (*messages.Envelope, error)
}

// ByName returns the serializer registered under a short name: json, cbor or cloudevents.
func ByName(name string) (Serializer, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR(), nil
	case "cloudevents", "ce":
		return CloudEvents(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSerializer, name)
	}
}
