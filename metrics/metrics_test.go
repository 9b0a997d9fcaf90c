package metrics

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/observer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderType = "urn:message:orders:Submitted"

func TestSendAndPublishCounters(t *testing.T) {
	ctx := context.Background()
	o := New(prometheus.NewRegistry())

	sc := &messages.SendContext{MessageType: []string{orderType}}
	o.PreSend(ctx, sc)
	o.PostSend(ctx, sc)
	o.SendFault(ctx, sc, errors.New("boom"))
	o.PostPublish(ctx, &messages.PublishContext{SendContext: *sc})

	assert.InDelta(t, 1, testutil.ToFloat64(o.Sent.WithLabelValues("orders:Submitted", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.Sent.WithLabelValues("orders:Submitted", "faulted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.Published.WithLabelValues("orders:Submitted", "ok")), 0)

	o.PostSend(ctx, &messages.SendContext{})
	assert.InDelta(t, 1, testutil.ToFloat64(o.Sent.WithLabelValues("unknown", "ok")), 0)
}

func TestReceiveMetrics(t *testing.T) {
	ctx := context.Background()
	o := New(prometheus.NewRegistry())
	rc := &messages.ReceiveContext{InputAddress: &url.URL{
		Scheme: "amqp", User: url.UserPassword("guest", "secret"), Host: "rabbit", Path: "/orders", RawQuery: "durable=true",
	}}

	o.PreReceive(ctx, rc)
	assert.InDelta(t, 1, testutil.ToFloat64(o.InFlight), 0)
	o.PostConsume(ctx, rc, 20*time.Millisecond, "orders")
	o.PostReceive(ctx, rc)
	o.PreReceive(ctx, rc)
	o.ConsumeFault(ctx, rc, time.Millisecond, "orders", errors.New("boom"))
	o.ReceiveFault(ctx, rc, errors.New("boom"))

	assert.InDelta(t, 0, testutil.ToFloat64(o.InFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.Received.WithLabelValues("amqp://rabbit/orders", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.Received.WithLabelValues("amqp://rabbit/orders", "faulted")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(o.ConsumeDuration))
}

func TestLifecycleMetrics(t *testing.T) {
	ctx := context.Background()
	o := New(prometheus.NewRegistry())
	in := &url.URL{Scheme: "loopback", Host: "localhost", Path: "/orders"}

	o.TransportReady(ctx, observer.TransportEvent{InputAddress: in, Transport: "inmemory"})
	o.TransportCompleted(ctx, observer.TransportEvent{InputAddress: in, Transport: "inmemory"})
	o.EndpointReady(ctx, observer.EndpointEvent{InputAddress: in})
	o.EndpointCompleted(ctx, observer.EndpointEvent{InputAddress: in, DeliveryCount: 12})
	o.EndpointFaulted(ctx, observer.EndpointEvent{InputAddress: nil})

	assert.InDelta(t, 1, testutil.ToFloat64(o.TransportEvents.WithLabelValues("loopback://localhost/orders", "inmemory", "ready")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.TransportEvents.WithLabelValues("loopback://localhost/orders", "inmemory", "completed")), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(o.Deliveries.WithLabelValues("loopback://localhost/orders")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.EndpointEvents.WithLabelValues("", "faulted")), 0)

	expected := `
# HELP roost_receive_endpoint_events_total Receive endpoint lifecycle events
# TYPE roost_receive_endpoint_events_total counter
roost_receive_endpoint_events_total{event="completed",input="loopback://localhost/orders"} 1
roost_receive_endpoint_events_total{event="faulted",input=""} 1
roost_receive_endpoint_events_total{event="ready",input="loopback://localhost/orders"} 1
`
	require.NoError(t, testutil.CollectAndCompare(o.EndpointEvents, strings.NewReader(expected)))
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg)
	b := New(reg)
	assert.Same(t, a.Sent, b.Sent)

	b.PostSend(context.Background(), &messages.SendContext{MessageType: []string{orderType}})
	assert.InDelta(t, 1, testutil.ToFloat64(a.Sent.WithLabelValues("orders:Submitted", "ok")), 0)

	assert.NotPanics(t, func() { New(nil).PreReceive(context.Background(), &messages.ReceiveContext{}) })
}
