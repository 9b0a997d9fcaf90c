package serialization

import (
	"testing"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type orderSubmitted struct {
	OrderID string   `json:"orderId" cbor:"orderId"`
	Amount  float64  `json:"amount" cbor:"amount"`
	Lines   []string `json:"lines" cbor:"lines"`
}

func sampleEnvelope() messages.Envelope {
	return messages.Envelope{
		MessageID:          "0192f0a4-5c6e-7cc1-8f2b-d1c4a1b2c3d4",
		CorrelationID:      "corr-1",
		ConversationID:     "conv-1",
		MessageType:        []string{"urn:message:serialization:orderSubmitted", "urn:message:serialization:event"},
		SourceAddress:      "loopback://localhost/source",
		DestinationAddress: "loopback://localhost/orders",
		Headers:            messages.Headers{"tenant": "acme"},
		SentTime:           time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC),
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []Serializer{JSON(), CBOR(), CloudEvents()} {
		t.Run(s.ContentType(), func(t *testing.T) {
			in := sampleEnvelope()
			msg := orderSubmitted{OrderID: "o-1", Amount: 12.5, Lines: []string{"a", "b"}}

			data, err := s.Serialize(in, msg)
			require.NoError(t, err)

			out, err := s.Deserialize(data)
			require.NoError(t, err)
			assert.Equal(t, in.MessageID, out.MessageID)
			assert.Equal(t, in.CorrelationID, out.CorrelationID)
			assert.Equal(t, in.ConversationID, out.ConversationID)
			assert.Equal(t, in.MessageType, out.MessageType)
			assert.Equal(t, in.SourceAddress, out.SourceAddress)
			assert.Equal(t, in.DestinationAddress, out.DestinationAddress)
			assert.Equal(t, "acme", out.Headers.GetString("tenant"))
			assert.True(t, in.SentTime.Equal(out.SentTime), "sent time %s != %s", in.SentTime, out.SentTime)

			var decoded orderSubmitted
			require.NoError(t, s.Unmarshal(out.Message, &decoded))
			assert.Equal(t, msg, decoded)
		})
	}
}

func TestJSONLayout(t *testing.T) {
	data, err := JSON().Serialize(sampleEnvelope(), orderSubmitted{OrderID: "o-1"})
	require.NoError(t, err)

	assert.Equal(t, "o-1", gjson.GetBytes(data, "message.orderId").String())
	assert.Equal(t, "corr-1", gjson.GetBytes(data, "correlationId").String())
	assert.Equal(t, "2024-05-06T07:08:09.123Z", gjson.GetBytes(data, "sentTime").String())
	assert.Equal(t, sampleEnvelope().MessageType, PeekMessageType(data))
}

func TestCloudEventsLayout(t *testing.T) {
	data, err := CloudEvents().Serialize(sampleEnvelope(), orderSubmitted{OrderID: "o-1"})
	require.NoError(t, err)

	assert.Equal(t, "1.0", gjson.GetBytes(data, "specversion").String())
	assert.Equal(t, "urn:message:serialization:orderSubmitted", gjson.GetBytes(data, "type").String())
	assert.Equal(t, "o-1", gjson.GetBytes(data, "data.orderId").String())
	assert.Equal(t, "corr-1", gjson.GetBytes(data, "correlationid").String())
	assert.Equal(t, "conv-1", gjson.GetBytes(data, "conversationid").String())
	assert.Equal(t, "loopback://localhost/orders", gjson.GetBytes(data, "destination").String())
	assert.Equal(t,
		"urn:message:serialization:orderSubmitted,urn:message:serialization:event",
		gjson.GetBytes(data, "messagetypes").String(),
	)
	assert.JSONEq(t, `{"tenant":"acme"}`, gjson.GetBytes(data, "headers").String())

	_, err = CloudEvents().Serialize(messages.Envelope{MessageID: "x"}, 1)
	assert.Error(t, err)
}

func TestDeserializeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"json":        []byte("{not json"),
		"cbor":        {0xff, 0x00},
		"cloudevents": []byte(`{"id":"x"}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := ByName(name)
			require.NoError(t, err)
			_, err = s.Deserialize(data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}

	t.Run("json without message type", func(t *testing.T) {
		_, err := JSON().Deserialize([]byte(`{"messageId":"a"}`))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{
		"":            ContentTypeJSON,
		"json":        ContentTypeJSON,
		"CBOR":        ContentTypeCBOR,
		"cloudevents": ContentTypeCloudEvents,
	} {
		s, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, s.ContentType())
	}
	_, err := ByName("xml")
	assert.ErrorIs(t, err, ErrUnknownSerializer)
}

func TestRegistry(t *testing.T) {
	r := Default()
	assert.Equal(t, ContentTypeJSON, r.Default().ContentType())
	assert.ElementsMatch(t, []string{ContentTypeJSON, ContentTypeCBOR, ContentTypeCloudEvents}, r.ContentTypes())

	s, err := r.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, s.ContentType())

	s, err = r.Lookup("Application/Vnd.Roost+CBOR; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeCBOR, s.ContentType())

	_, err = r.Lookup("text/xml")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}
