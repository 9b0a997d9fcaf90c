package serialization

import (
	"fmt"
	"strings"

	"github.com/casualjim/roost/messages"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/goccy/go-json"
)

// ContentTypeCloudEvents is the content type of the CloudEvents serializer.
const ContentTypeCloudEvents = cloudevents.ApplicationCloudEventsJSON

// extension attribute names; CloudEvents only allows lower case alphanumerics
const (
	extCorrelationID  = "correlationid"
	extConversationID = "conversationid"
	extDestination    = "destination"
	extMessageTypes   = "messagetypes"
	extHeaders        = "headers"
)

const defaultSource = "urn:roost"

type cloudEventsSerializer struct{}

// CloudEvents returns a serializer writing envelopes as structured-mode CloudEvents.
// The first message type becomes the event type; all of them are kept in the
// "messagetypes" extension. Headers travel as a JSON object in the "headers" extension.
func CloudEvents() Serializer {
	return cloudEventsSerializer{}
}

func (cloudEventsSerializer) ContentType() string {
	return ContentTypeCloudEvents
}

func (cloudEventsSerializer) Serialize(env messages.Envelope, message any) ([]byte, error) {
	if len(env.MessageType) == 0 {
		return nil, fmt.Errorf("serialization: cloudevents require a message type")
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("serialization: encode message: %w", err)
	}

	e := cloudevents.NewEvent()
	e.SetID(env.MessageID)
	e.SetType(env.MessageType[0])
	source := env.SourceAddress
	if source == "" {
		source = defaultSource
	}
	e.SetSource(source)
	if !env.SentTime.IsZero() {
		e.SetTime(env.SentTime)
	}
	if err := e.SetData(cloudevents.ApplicationJSON, json.RawMessage(payload)); err != nil {
		return nil, fmt.Errorf("serialization: set data: %w", err)
	}

	ext := map[string]any{
		extCorrelationID:  env.CorrelationID,
		extConversationID: env.ConversationID,
		extDestination:    env.DestinationAddress,
	}
	if len(env.MessageType) > 1 {
		ext[extMessageTypes] = strings.Join(env.MessageType, ",")
	}
	if len(env.Headers) > 0 {
		hb, err := json.Marshal(env.Headers)
		if err != nil {
			return nil, fmt.Errorf("serialization: encode headers: %w", err)
		}
		ext[extHeaders] = string(hb)
	}
	for k, v := range ext {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		// invalid extensions surface through Validate
		e.SetExtension(k, v)
	}

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("serialization: invalid cloudevent: %w", err)
	}
	return json.Marshal(e)
}

func (cloudEventsSerializer) Deserialize(data []byte) (*messages.Envelope, error) {
	e := cloudevents.NewEvent()
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	ext := e.Extensions()
	env := &messages.Envelope{
		MessageID:          e.ID(),
		CorrelationID:      extString(ext, extCorrelationID),
		ConversationID:     extString(ext, extConversationID),
		MessageType:        []string{e.Type()},
		SourceAddress:      e.Source(),
		DestinationAddress: extString(ext, extDestination),
		SentTime:           e.Time(),
		Message:            e.Data(),
	}
	if mts := extString(ext, extMessageTypes); mts != "" {
		env.MessageType = strings.Split(mts, ",")
	}
	if hs := extString(ext, extHeaders); hs != "" {
		if err := json.Unmarshal([]byte(hs), &env.Headers); err != nil {
			return nil, fmt.Errorf("%w: headers: %w", ErrMalformed, err)
		}
	}
	return env, nil
}

func (cloudEventsSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func extString(ext map[string]any, key string) string {
	v, ok := ext[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
