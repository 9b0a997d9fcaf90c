package endpoint

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/transport"
	"github.com/fogfish/opts"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orderSubmitted struct {
	OrderID string `json:"orderId"`
}

type orderCancelled struct {
	OrderID string `json:"orderId"`
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newConfig(t *testing.T, options ...opts.Option[Config]) *Config {
	t.Helper()
	base := []opts.Option[Config]{
		WithInput("loopback://localhost/orders-service"),
		WithHost("loopback://localhost"),
	}
	cfg, err := NewConfig(append(base, options...)...)
	require.NoError(t, err)
	return cfg
}

type mockBinding struct {
	mock.Mock
}

func (m *mockBinding) Name() string { return "mock" }

func (m *mockBinding) CreateSendTransportProvider() (transport.SendTransportProvider, error) {
	args := m.Called()
	p, _ := args.Get(0).(transport.SendTransportProvider)
	return p, args.Error(1)
}

func (m *mockBinding) CreatePublishTransportProvider() (transport.PublishTransportProvider, error) {
	args := m.Called()
	p, _ := args.Get(0).(transport.PublishTransportProvider)
	return p, args.Error(1)
}

// stubProvider hands out the same transport for every address.
type stubProvider struct {
	t transport.SendTransport
}

func (s stubProvider) GetSendTransport(context.Context, *url.URL) (transport.SendTransport, error) {
	return s.t, nil
}

func (s stubProvider) GetPublishTransport(context.Context, string, *url.URL) (transport.SendTransport, error) {
	return s.t, nil
}

var _ interface {
	observer.SendObserver
	observer.PublishObserver
	observer.ReceiveObserver
	observer.ReceiveTransportObserver
	observer.ReceiveEndpointObserver
} = (*recorder)(nil)

type recorder struct {
	mu       sync.Mutex
	events   []string
	lastSend *messages.SendContext
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) has(ev string) bool {
	for _, e := range r.Events() {
		if e == ev {
			return true
		}
	}
	return false
}

func (r *recorder) PreSend(_ context.Context, sc *messages.SendContext) {
	r.mu.Lock()
	r.lastSend = sc
	r.mu.Unlock()
	r.add("PreSend")
}
func (r *recorder) PostSend(context.Context, *messages.SendContext)         { r.add("PostSend") }
func (r *recorder) SendFault(context.Context, *messages.SendContext, error) { r.add("SendFault") }

func (r *recorder) PrePublish(context.Context, *messages.PublishContext)  { r.add("PrePublish") }
func (r *recorder) PostPublish(context.Context, *messages.PublishContext) { r.add("PostPublish") }
func (r *recorder) PublishFault(context.Context, *messages.PublishContext, error) {
	r.add("PublishFault")
}

func (r *recorder) PreReceive(context.Context, *messages.ReceiveContext)  { r.add("PreReceive") }
func (r *recorder) PostReceive(context.Context, *messages.ReceiveContext) { r.add("PostReceive") }
func (r *recorder) ReceiveFault(context.Context, *messages.ReceiveContext, error) {
	r.add("ReceiveFault")
}
func (r *recorder) PostConsume(_ context.Context, _ *messages.ReceiveContext, _ time.Duration, consumer string) {
	r.add("PostConsume:" + consumer)
}
func (r *recorder) ConsumeFault(_ context.Context, _ *messages.ReceiveContext, _ time.Duration, consumer string, _ error) {
	r.add("ConsumeFault:" + consumer)
}

func (r *recorder) TransportReady(context.Context, observer.TransportEvent)     { r.add("TransportReady") }
func (r *recorder) TransportCompleted(context.Context, observer.TransportEvent) { r.add("TransportCompleted") }
func (r *recorder) TransportFaulted(context.Context, observer.TransportEvent)   { r.add("TransportFaulted") }

func (r *recorder) EndpointReady(context.Context, observer.EndpointEvent)     { r.add("EndpointReady") }
func (r *recorder) EndpointCompleted(context.Context, observer.EndpointEvent) { r.add("EndpointCompleted") }
func (r *recorder) EndpointFaulted(context.Context, observer.EndpointEvent)   { r.add("EndpointFaulted") }
