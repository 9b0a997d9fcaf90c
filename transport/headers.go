package transport

import (
	"strings"

	"github.com/casualjim/roost/messages"
)

// Transport header names written next to the body by every binding.
const (
	HeaderContentType   = "Content-Type"
	HeaderMessageID     = "Message-Id"
	HeaderMessageType   = "Message-Type"
	HeaderCorrelationID = "Correlation-Id"
)

// Headers returns the transport headers for an outgoing message.
func Headers(sc *messages.SendContext) map[string]string {
	h := map[string]string{
		HeaderContentType: sc.ContentType,
		HeaderMessageID:   sc.MessageID,
	}
	if len(sc.MessageType) > 0 {
		h[HeaderMessageType] = strings.Join(sc.MessageType, ",")
	}
	if sc.CorrelationID != "" {
		h[HeaderCorrelationID] = sc.CorrelationID
	}
	return h
}

// Clone returns a copy of d whose headers can be changed without affecting d.
func (d Delivery) Clone() Delivery {
	d.Headers = d.Headers.Clone()
	return d
}

// DeliveryFrom builds a Delivery from a body and flat transport headers.
func DeliveryFrom(body []byte, headers map[string]string) Delivery {
	d := Delivery{Body: body, Headers: make(messages.Headers, len(headers))}
	for k, v := range headers {
		if strings.EqualFold(k, HeaderContentType) {
			d.ContentType = v
		}
		d.Headers[k] = v
	}
	return d
}
