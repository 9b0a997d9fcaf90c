package serialization

import (
	"fmt"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/go-openapi/strfmt"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ContentTypeJSON is the content type of the JSON serializer.
const ContentTypeJSON = "application/vnd.roost+json"

type jsonEnvelope struct {
	MessageID          string           `json:"messageId"`
	CorrelationID      string           `json:"correlationId,omitempty"`
	ConversationID     string           `json:"conversationId,omitempty"`
	MessageType        []string         `json:"messageType"`
	SourceAddress      string           `json:"sourceAddress,omitempty"`
	DestinationAddress string           `json:"destinationAddress,omitempty"`
	Headers            messages.Headers `json:"headers,omitempty"`
	SentTime           strfmt.DateTime  `json:"sentTime"`
}

type jsonSerializer struct{}

// JSON returns the JSON envelope serializer.
func JSON() Serializer {
	return jsonSerializer{}
}

func (jsonSerializer) ContentType() string {
	return ContentTypeJSON
}

func (jsonSerializer) Serialize(env messages.Envelope, message any) ([]byte, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("serialization: encode message: %w", err)
	}
	head, err := json.Marshal(jsonEnvelope{
		MessageID:          env.MessageID,
		CorrelationID:      env.CorrelationID,
		ConversationID:     env.ConversationID,
		MessageType:        env.MessageType,
		SourceAddress:      env.SourceAddress,
		DestinationAddress: env.DestinationAddress,
		Headers:            env.Headers,
		SentTime:           strfmt.DateTime(env.SentTime),
	})
	if err != nil {
		return nil, fmt.Errorf("serialization: encode envelope: %w", err)
	}
	return sjson.SetRawBytes(head, "message", payload)
}

func (jsonSerializer) Deserialize(data []byte) (*messages.Envelope, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformed
	}
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if je.MessageID == "" || len(je.MessageType) == 0 {
		return nil, fmt.Errorf("%w: missing messageId or messageType", ErrMalformed)
	}

	var payload []byte
	if raw := gjson.GetBytes(data, "message"); raw.Exists() {
		payload = []byte(raw.Raw)
	}

	return &messages.Envelope{
		MessageID:          je.MessageID,
		CorrelationID:      je.CorrelationID,
		ConversationID:     je.ConversationID,
		MessageType:        je.MessageType,
		SourceAddress:      je.SourceAddress,
		DestinationAddress: je.DestinationAddress,
		Headers:            je.Headers,
		SentTime:           time.Time(je.SentTime),
		Message:            payload,
	}, nil
}

func (jsonSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// PeekMessageType reads the message types of a JSON envelope without decoding it.
func PeekMessageType(data []byte) []string {
	var out []string
	for _, r := range gjson.GetBytes(data, "messageType").Array() {
		out = append(out, r.String())
	}
	return out
}
