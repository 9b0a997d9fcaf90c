// Package metrics records endpoint activity as Prometheus metrics.
//
// An Observer implements all five observer interfaces, so a single instance can be
// connected to every channel of an endpoint context:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	c.ConnectSendObserver(m)
//	c.ConnectReceiveObserver(m)
package metrics

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/observer"
	"github.com/prometheus/client_golang/prometheus"
)

// Buckets suits broker round trips, from half a millisecond to ten seconds.
var Buckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

const namespace = "roost"

var _ interface {
	observer.SendObserver
	observer.PublishObserver
	observer.ReceiveObserver
	observer.ReceiveTransportObserver
	observer.ReceiveEndpointObserver
} = (*Observer)(nil)

// Observer counts messages and lifecycle events.
type Observer struct {
	Sent            *prometheus.CounterVec
	Published       *prometheus.CounterVec
	Received        *prometheus.CounterVec
	InFlight        prometheus.Gauge
	ConsumeDuration *prometheus.HistogramVec
	TransportEvents *prometheus.CounterVec
	EndpointEvents  *prometheus.CounterVec
	Deliveries      *prometheus.GaugeVec
}

// New creates an Observer and registers its collectors on reg.
// Collectors already registered by another Observer on the same registry are reused.
func New(reg prometheus.Registerer) *Observer {
	o := &Observer{
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages handed to a send transport",
		}, []string{"message_type", "status"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Messages handed to a publish transport",
		}, []string{"message_type", "status"}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Deliveries taken from a receive transport",
		}, []string{"input", "status"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages_in_flight",
			Help:      "Deliveries currently in the receive pipe",
		}),
		ConsumeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consume_duration_seconds",
			Help:      "Time spent in a consumer",
			Buckets:   Buckets,
		}, []string{"consumer", "status"}),
		TransportEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_transport_events_total",
			Help:      "Receive transport lifecycle events",
		}, []string{"input", "transport", "event"}),
		EndpointEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_endpoint_events_total",
			Help:      "Receive endpoint lifecycle events",
		}, []string{"input", "event"}),
		Deliveries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "receive_endpoint_deliveries",
			Help:      "Deliveries reported by the last endpoint lifecycle event",
		}, []string{"input"}),
	}
	if reg != nil {
		o.Sent = register(reg, o.Sent)
		o.Published = register(reg, o.Published)
		o.Received = register(reg, o.Received)
		o.InFlight = register(reg, o.InFlight)
		o.ConsumeDuration = register(reg, o.ConsumeDuration)
		o.TransportEvents = register(reg, o.TransportEvents)
		o.EndpointEvents = register(reg, o.EndpointEvents)
		o.Deliveries = register(reg, o.Deliveries)
	}
	return o
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

const (
	statusOK      = "ok"
	statusFaulted = "faulted"
)

func messageType(types []string) string {
	if len(types) == 0 {
		return "unknown"
	}
	return messages.ShortName(types[0])
}

func (o *Observer) PreSend(context.Context, *messages.SendContext) {}

func (o *Observer) PostSend(_ context.Context, sc *messages.SendContext) {
	o.Sent.WithLabelValues(messageType(sc.MessageType), statusOK).Inc()
}

func (o *Observer) SendFault(_ context.Context, sc *messages.SendContext, _ error) {
	o.Sent.WithLabelValues(messageType(sc.MessageType), statusFaulted).Inc()
}

func (o *Observer) PrePublish(context.Context, *messages.PublishContext) {}

func (o *Observer) PostPublish(_ context.Context, pc *messages.PublishContext) {
	o.Published.WithLabelValues(messageType(pc.MessageType), statusOK).Inc()
}

func (o *Observer) PublishFault(_ context.Context, pc *messages.PublishContext, _ error) {
	o.Published.WithLabelValues(messageType(pc.MessageType), statusFaulted).Inc()
}

func (o *Observer) PreReceive(context.Context, *messages.ReceiveContext) {
	o.InFlight.Inc()
}

func (o *Observer) PostReceive(_ context.Context, rc *messages.ReceiveContext) {
	o.InFlight.Dec()
	o.Received.WithLabelValues(input(rc), statusOK).Inc()
}

func (o *Observer) ReceiveFault(_ context.Context, rc *messages.ReceiveContext, _ error) {
	o.InFlight.Dec()
	o.Received.WithLabelValues(input(rc), statusFaulted).Inc()
}

func (o *Observer) PostConsume(_ context.Context, _ *messages.ReceiveContext, elapsed time.Duration, consumer string) {
	o.ConsumeDuration.WithLabelValues(consumer, statusOK).Observe(elapsed.Seconds())
}

func (o *Observer) ConsumeFault(_ context.Context, _ *messages.ReceiveContext, elapsed time.Duration, consumer string, _ error) {
	o.ConsumeDuration.WithLabelValues(consumer, statusFaulted).Observe(elapsed.Seconds())
}

func (o *Observer) TransportReady(_ context.Context, ev observer.TransportEvent) {
	o.transport(ev, "ready")
}

func (o *Observer) TransportCompleted(_ context.Context, ev observer.TransportEvent) {
	o.transport(ev, "completed")
}

func (o *Observer) TransportFaulted(_ context.Context, ev observer.TransportEvent) {
	o.transport(ev, "faulted")
}

func (o *Observer) EndpointReady(_ context.Context, ev observer.EndpointEvent) {
	o.endpoint(ev, "ready")
}

func (o *Observer) EndpointCompleted(_ context.Context, ev observer.EndpointEvent) {
	o.endpoint(ev, "completed")
}

func (o *Observer) EndpointFaulted(_ context.Context, ev observer.EndpointEvent) {
	o.endpoint(ev, "faulted")
}

func (o *Observer) transport(ev observer.TransportEvent, event string) {
	o.TransportEvents.WithLabelValues(address(ev.InputAddress), ev.Transport, event).Inc()
}

func (o *Observer) endpoint(ev observer.EndpointEvent, event string) {
	in := address(ev.InputAddress)
	o.EndpointEvents.WithLabelValues(in, event).Inc()
	o.Deliveries.WithLabelValues(in).Set(float64(ev.DeliveryCount))
}

func input(rc *messages.ReceiveContext) string {
	if rc == nil {
		return ""
	}
	return address(rc.InputAddress)
}

// address drops credentials and query parameters from label values.
func address(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.Fragment = ""
	return c.String()
}
