package roost

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/casualjim/roost/config"
	"github.com/casualjim/roost/endpoint"
	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/metrics"
	"github.com/casualjim/roost/observer"
	"github.com/casualjim/roost/transport/inmemory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invoiceRaised struct {
	InvoiceID string `json:"invoiceId"`
	Amount    int    `json:"amount"`
}

type invoicePaid struct {
	InvoiceID string `json:"invoiceId"`
}

type inbox[T any] struct {
	mu    sync.Mutex
	items []T
}

func (b *inbox[T]) handler(_ context.Context, m T, _ *messages.ReceiveContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, m)
	return nil
}

func (b *inbox[T]) Items() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]T(nil), b.items...)
}

func TestEndpointPublishAndSend(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ep, err := New(
		WithBinding(inmemory.New(nil)),
		WithInput("loopback://localhost/billing"),
		WithHost("loopback://localhost"),
		WithObservers(m),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ep.Close() })

	raised := &inbox[invoiceRaised]{}
	paid := &inbox[invoicePaid]{}
	require.NoError(t, Consume(ep, "raised", raised.handler))
	require.NoError(t, Consume(ep, "paid", paid.handler))
	require.NoError(t, ep.Start(ctx))

	require.NoError(t, ep.Publish(ctx, invoiceRaised{InvoiceID: "inv-1", Amount: 100}))
	require.NoError(t, ep.Send(ctx, ep.Context().InputAddress(), invoicePaid{InvoiceID: "inv-1"}))

	require.Eventually(t, func() bool {
		return len(raised.Items()) == 1 && len(paid.Items()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, invoiceRaised{InvoiceID: "inv-1", Amount: 100}, raised.Items()[0])
	assert.Equal(t, "inv-1", paid.Items()[0].InvoiceID)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Received.WithLabelValues("loopback://localhost/billing", "ok")) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Published.WithLabelValues("roost:invoiceRaised", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Sent.WithLabelValues("roost:invoicePaid", "ok")), 0)

	assert.ErrorIs(t, Consume(ep, "late", paid.handler), endpoint.ErrAlreadyStarted)
	require.NoError(t, ep.Stop(ctx))
	assert.ErrorIs(t, ep.Stop(ctx), endpoint.ErrNotStarted)
}

func TestEndpointOptions(t *testing.T) {
	t.Run("rejects values that observe nothing", func(t *testing.T) {
		_, err := New(WithObservers("not an observer"))
		assert.Error(t, err)
	})

	t.Run("nil handler", func(t *testing.T) {
		ep, err := New(WithInput("loopback://localhost/a"), WithHost("loopback://localhost"))
		require.NoError(t, err)
		assert.ErrorIs(t, Consume[invoicePaid](ep, "", nil), endpoint.ErrConfiguration)
	})

	t.Run("defaults to an in-memory binding", func(t *testing.T) {
		ep, err := New(WithInput("loopback://localhost/a"), WithHost("loopback://localhost"))
		require.NoError(t, err)
		require.NoError(t, ep.Start(context.Background()))
		require.NoError(t, ep.Close())
		_, err = ep.Context().SendEndpointProvider()
		assert.ErrorIs(t, err, endpoint.ErrClosed)
	})

	t.Run("missing input fails at start", func(t *testing.T) {
		ep, err := New()
		require.NoError(t, err)
		assert.ErrorIs(t, ep.Start(context.Background()), endpoint.ErrConfiguration)
	})
}

type lifecycle struct {
	mu     sync.Mutex
	events []string
}

func (l *lifecycle) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *lifecycle) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *lifecycle) EndpointReady(context.Context, observer.EndpointEvent)     { l.add("ready") }
func (l *lifecycle) EndpointCompleted(context.Context, observer.EndpointEvent) { l.add("completed") }
func (l *lifecycle) EndpointFaulted(context.Context, observer.EndpointEvent)   { l.add("faulted") }

func TestRun(t *testing.T) {
	ep, err := New(WithInput("loopback://localhost/a"), WithHost("loopback://localhost"))
	require.NoError(t, err)
	l := &lifecycle{}
	hs := ep.Connect(l)
	require.Len(t, hs, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ep.Run(ctx) }()

	require.Eventually(t, func() bool { return len(l.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	assert.Equal(t, []string{"ready", "completed"}, l.Events())
}

func TestFromConfig(t *testing.T) {
	t.Run("in-memory defaults", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Endpoint.EntityPrefix = "test."
		ep, err := FromConfig(&cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ep.Close() })

		pp, err := ep.Context().PublishEndpointProvider()
		require.NoError(t, err)
		addr, err := pp.PublishAddress(messages.TypeNameFor[invoiceRaised]())
		require.NoError(t, err)
		assert.Equal(t, "loopback://localhost/test.roost.invoiceRaised", addr.String())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Defaults()
		cfg.Transport = config.Transport{Kind: config.TransportRedis, URL: "redis://" + mr.Addr() + "/0"}
		cfg.Endpoint.Input = "redis://" + mr.Addr() + "/billing"
		cfg.Endpoint.Host = "redis://" + mr.Addr()
		cfg.Endpoint.Serializer = "cbor"

		ep, err := FromConfig(&cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ep.Close() })

		paid := &inbox[invoicePaid]{}
		require.NoError(t, Consume(ep, "paid", paid.handler))
		require.NoError(t, ep.Start(context.Background()))
		require.NoError(t, ep.Publish(context.Background(), invoicePaid{InvoiceID: "inv-9"}))

		require.Eventually(t, func() bool { return len(paid.Items()) == 1 }, 5*time.Second, 20*time.Millisecond)
		assert.Equal(t, "inv-9", paid.Items()[0].InvoiceID)
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Transport.Kind = "carrier-pigeon"
		_, err := FromConfig(&cfg)
		assert.ErrorIs(t, err, config.ErrInvalid)

		_, err = FromConfig(nil)
		assert.True(t, errors.Is(err, endpoint.ErrConfiguration))
	})
}
