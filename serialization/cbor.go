package serialization

import (
	"fmt"
	"reflect"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/fxamacker/cbor/v2"
)

// ContentTypeCBOR is the content type of the CBOR serializer.
const ContentTypeCBOR = "application/vnd.roost+cbor"

type cborEnvelope struct {
	MessageID          string           `cbor:"messageId"`
	CorrelationID      string           `cbor:"correlationId,omitempty"`
	ConversationID     string           `cbor:"conversationId,omitempty"`
	MessageType        []string         `cbor:"messageType"`
	SourceAddress      string           `cbor:"sourceAddress,omitempty"`
	DestinationAddress string           `cbor:"destinationAddress,omitempty"`
	Headers            messages.Headers `cbor:"headers,omitempty"`
	SentTime           time.Time        `cbor:"sentTime"`
	Message            cbor.RawMessage  `cbor:"message,omitempty"`
}

type cborSerializer struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns the CBOR envelope serializer.
func CBOR() Serializer {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(err)
	}
	return &cborSerializer{enc: enc, dec: dec}
}

func (*cborSerializer) ContentType() string {
	return ContentTypeCBOR
}

func (s *cborSerializer) Serialize(env messages.Envelope, message any) ([]byte, error) {
	payload, err := s.enc.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("serialization: encode message: %w", err)
	}
	data, err := s.enc.Marshal(cborEnvelope{
		MessageID:          env.MessageID,
		CorrelationID:      env.CorrelationID,
		ConversationID:     env.ConversationID,
		MessageType:        env.MessageType,
		SourceAddress:      env.SourceAddress,
		DestinationAddress: env.DestinationAddress,
		Headers:            env.Headers,
		SentTime:           env.SentTime,
		Message:            payload,
	})
	if err != nil {
		return nil, fmt.Errorf("serialization: encode envelope: %w", err)
	}
	return data, nil
}

func (s *cborSerializer) Deserialize(data []byte) (*messages.Envelope, error) {
	var ce cborEnvelope
	if err := s.dec.Unmarshal(data, &ce); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if ce.MessageID == "" || len(ce.MessageType) == 0 {
		return nil, fmt.Errorf("%w: missing messageId or messageType", ErrMalformed)
	}
	return &messages.Envelope{
		MessageID:          ce.MessageID,
		CorrelationID:      ce.CorrelationID,
		ConversationID:     ce.ConversationID,
		MessageType:        ce.MessageType,
		SourceAddress:      ce.SourceAddress,
		DestinationAddress: ce.DestinationAddress,
		Headers:            ce.Headers,
		SentTime:           ce.SentTime,
		Message:            []byte(ce.Message),
	}, nil
}

func (s *cborSerializer) Unmarshal(data []byte, v any) error {
	return s.dec.Unmarshal(data, v)
}
