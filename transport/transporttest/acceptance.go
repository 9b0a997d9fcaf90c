// Package transporttest holds the acceptance suite every receive-capable binding runs.
package transporttest

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Harness is what a binding under test provides to the suite.
type Harness struct {
	Binding transport.ReceiveBinding
	// Address builds an address on the binding's host for an entity name.
	Address func(entity string) *url.URL
	// Timeout bounds how long the suite waits for deliveries. Defaults to 5s.
	Timeout time.Duration
}

func (h Harness) wait() time.Duration {
	if h.Timeout <= 0 {
		return 5 * time.Second
	}
	return h.Timeout
}

// Setup creates a fresh harness for one test. It may call t.Skip when a broker is unavailable.
type Setup func(t *testing.T) Harness

type acceptanceTest struct {
	name string
	test func(t *testing.T, setup Setup)
}

// Run runs every acceptance test against the binding produced by setup.
func Run(t *testing.T, name string, setup Setup) {
	tests := []acceptanceTest{
		{"delivers sent messages", testDeliversSent},
		{"delivers published messages", testDeliversPublished},
		{"routes published messages to an input", testRoutes},
		{"caches transports per address", testCachesTransports},
		{"stops delivery after unsubscribe", testUnsubscribe},
		{"requires a handler", testHandlerRequired},
		{"handles concurrent sends", testConcurrentSends},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", name, tt.name), func(t *testing.T) {
			tt.test(t, setup)
		})
	}
}

// Recorder is a Handler that keeps every delivery.
type Recorder struct {
	mu         sync.Mutex
	deliveries []transport.Delivery
}

func (r *Recorder) Handle(_ context.Context, d transport.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
	return nil
}

func (r *Recorder) Deliveries() []transport.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.Delivery(nil), r.deliveries...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

// Outgoing builds a serialized send context for tests.
func Outgoing(dest *url.URL, body string) *messages.SendContext {
	return &messages.SendContext{
		MessageID:          uuidx.NewString(),
		CorrelationID:      "corr",
		MessageType:        []string{"urn:message:transporttest:Ping"},
		DestinationAddress: dest,
		SentTime:           time.Now(),
		ContentType:        "application/vnd.roost+json",
		Body:               []byte(body),
	}
}

func entity(prefix string) string {
	return prefix + "-" + uuidx.NewString()[24:]
}

func subscribe(t *testing.T, h Harness, input *url.URL, rec *Recorder) transport.Subscription {
	t.Helper()
	rt, err := h.Binding.CreateReceiveTransport(input)
	require.NoError(t, err)
	sub, err := rt.Subscribe(context.Background(), rec.Handle)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return sub
}

func testDeliversSent(t *testing.T, setup Setup) {
	h := setup(t)
	input := h.Address(entity("input"))
	rec := &Recorder{}
	sub := subscribe(t, h, input, rec)
	assert.NotEmpty(t, sub.ID())

	sp, err := h.Binding.CreateSendTransportProvider()
	require.NoError(t, err)
	st, err := sp.GetSendTransport(context.Background(), input)
	require.NoError(t, err)

	out := Outgoing(input, `{"n":1}`)
	require.NoError(t, st.Send(context.Background(), out))

	require.Eventually(t, func() bool { return rec.Len() == 1 }, h.wait(), 10*time.Millisecond)
	d := rec.Deliveries()[0]
	assert.Equal(t, `{"n":1}`, string(d.Body))
	assert.Equal(t, out.ContentType, d.ContentType)
	assert.Equal(t, out.MessageID, d.Headers.GetString(transport.HeaderMessageID))
}

func testDeliversPublished(t *testing.T, setup Setup) {
	h := setup(t)
	addr := h.Address(entity("published"))
	rec := &Recorder{}
	subscribe(t, h, addr, rec)

	pp, err := h.Binding.CreatePublishTransportProvider()
	require.NoError(t, err)
	st, err := pp.GetPublishTransport(context.Background(), "urn:message:transporttest:Ping", addr)
	require.NoError(t, err)
	require.NoError(t, st.Send(context.Background(), Outgoing(addr, `{"n":2}`)))

	require.Eventually(t, func() bool { return rec.Len() == 1 }, h.wait(), 10*time.Millisecond)
	assert.Equal(t, `{"n":2}`, string(rec.Deliveries()[0].Body))
}

func testRoutes(t *testing.T, setup Setup) {
	h := setup(t)
	router, ok := h.Binding.(transport.Router)
	if !ok {
		t.Skip("binding does not route")
	}
	published := h.Address(entity("event"))
	input := h.Address(entity("queue"))
	require.NoError(t, router.Route(context.Background(), published, input))

	rec := &Recorder{}
	subscribe(t, h, input, rec)

	pp, err := h.Binding.CreatePublishTransportProvider()
	require.NoError(t, err)
	st, err := pp.GetPublishTransport(context.Background(), "urn:message:transporttest:Ping", published)
	require.NoError(t, err)
	require.NoError(t, st.Send(context.Background(), Outgoing(published, `{"n":3}`)))

	require.Eventually(t, func() bool { return rec.Len() == 1 }, h.wait(), 10*time.Millisecond)
	assert.Equal(t, `{"n":3}`, string(rec.Deliveries()[0].Body))
}

func testCachesTransports(t *testing.T, setup Setup) {
	h := setup(t)
	sp, err := h.Binding.CreateSendTransportProvider()
	require.NoError(t, err)

	a := h.Address(entity("a"))
	b := h.Address(entity("b"))
	t1, err := sp.GetSendTransport(context.Background(), a)
	require.NoError(t, err)
	t2, err := sp.GetSendTransport(context.Background(), a)
	require.NoError(t, err)
	t3, err := sp.GetSendTransport(context.Background(), b)
	require.NoError(t, err)

	assert.Same(t, t1, t2)
	assert.NotSame(t, t1, t3)
}

func testUnsubscribe(t *testing.T, setup Setup) {
	h := setup(t)
	input := h.Address(entity("gone"))
	rec := &Recorder{}
	sub := subscribe(t, h, input, rec)
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe(), "unsubscribe is idempotent")

	sp, err := h.Binding.CreateSendTransportProvider()
	require.NoError(t, err)
	st, err := sp.GetSendTransport(context.Background(), input)
	require.NoError(t, err)
	require.NoError(t, st.Send(context.Background(), Outgoing(input, `{}`)))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, rec.Len())
}

func testHandlerRequired(t *testing.T, setup Setup) {
	h := setup(t)
	rt, err := h.Binding.CreateReceiveTransport(h.Address(entity("nohandler")))
	require.NoError(t, err)
	_, err = rt.Subscribe(context.Background(), nil)
	assert.ErrorIs(t, err, transport.ErrHandlerRequired)
}

func testConcurrentSends(t *testing.T, setup Setup) {
	h := setup(t)
	input := h.Address(entity("busy"))
	rec := &Recorder{}
	subscribe(t, h, input, rec)

	sp, err := h.Binding.CreateSendTransportProvider()
	require.NoError(t, err)

	const senders, each = 5, 8
	var wg sync.WaitGroup
	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := sp.GetSendTransport(context.Background(), input)
			if !assert.NoError(t, err) {
				return
			}
			for range each {
				assert.NoError(t, st.Send(context.Background(), Outgoing(input, `{}`)))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return rec.Len() == senders*each }, h.wait(), 10*time.Millisecond)
}
