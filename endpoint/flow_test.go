package endpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/pipe"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/serialization"
	"github.com/casualjim/roost/transport"
	"github.com/casualjim/roost/transport/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func capture(t *testing.T, hub *inmemory.Hub, entity string) <-chan transport.Delivery {
	t.Helper()
	got := make(chan transport.Delivery, 8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := hub.Subscribe(ctx, entity, func(_ context.Context, d transport.Delivery) error {
		got <- d
		return nil
	})
	require.NoError(t, err)
	return got
}

func next(t *testing.T, ch <-chan transport.Delivery) transport.Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(waitFor):
		t.Fatal("no delivery")
		return transport.Delivery{}
	}
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	hub := inmemory.NewHub()
	c := NewContext(newConfig(t, WithSendFilters(pipe.Headers(messages.Headers{"app": "roost"}))), inmemory.New(hub))
	rec := &recorder{}
	c.ConnectSendObserver(rec)
	got := capture(t, hub, "billing")

	sp, err := c.SendEndpointProvider()
	require.NoError(t, err)
	dest := mustURL(t, "loopback://localhost/billing")
	ep, err := sp.GetSendEndpoint(ctx, dest)
	require.NoError(t, err)
	again, err := sp.GetSendEndpoint(ctx, mustURL(t, "loopback://localhost/billing"))
	require.NoError(t, err)
	assert.Same(t, ep, again)
	assert.Equal(t, dest.String(), ep.Address().String())

	require.NoError(t, ep.Send(ctx, orderSubmitted{OrderID: "42"},
		WithCorrelationID("corr-1"),
		WithConversationID("conv-1"),
		WithHeader("tenant", "acme"),
	))

	d := next(t, got)
	assert.Equal(t, serialization.ContentTypeJSON, d.ContentType)
	env, err := serialization.JSON().Deserialize(d.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:message:endpoint:orderSubmitted"}, env.MessageType)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.Equal(t, "conv-1", env.ConversationID)
	assert.Equal(t, "acme", env.Headers.GetString("tenant"))
	assert.Equal(t, "roost", env.Headers.GetString("app"))
	assert.Equal(t, "loopback://localhost/orders-service", env.SourceAddress)
	assert.Equal(t, "loopback://localhost/billing", env.DestinationAddress)
	_, ok := uuidx.Time(env.MessageID)
	assert.True(t, ok, "message ids are time ordered")

	var payload orderSubmitted
	require.NoError(t, serialization.JSON().Unmarshal(env.Message, &payload))
	assert.Equal(t, "42", payload.OrderID)

	assert.Equal(t, []string{"PreSend", "PostSend"}, rec.Events())
	rec.mu.Lock()
	assert.Equal(t, "corr-1", rec.lastSend.CorrelationID)
	rec.mu.Unlock()
}

func TestSendWithMessageID(t *testing.T) {
	hub := inmemory.NewHub()
	c := NewContext(newConfig(t), inmemory.New(hub))
	got := capture(t, hub, "billing")

	sp, err := c.SendEndpointProvider()
	require.NoError(t, err)
	ep, err := sp.GetSendEndpoint(context.Background(), mustURL(t, "loopback://localhost/billing"))
	require.NoError(t, err)
	require.NoError(t, ep.Send(context.Background(), &orderSubmitted{OrderID: "1"}, WithMessageID("fixed")))

	d := next(t, got)
	assert.Equal(t, "fixed", d.Headers.GetString(transport.HeaderMessageID))
}

func TestSendFaults(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("wire cut")

	t.Run("transport", func(t *testing.T) {
		b := &mockBinding{}
		b.On("CreateSendTransportProvider").Return(stubProvider{t: transport.SendTransportFunc(
			func(context.Context, *messages.SendContext) error { return boom },
		)}, nil)
		c := NewContext(newConfig(t), b)
		rec := &recorder{}
		c.ConnectSendObserver(rec)

		sp, err := c.SendEndpointProvider()
		require.NoError(t, err)
		ep, err := sp.GetSendEndpoint(ctx, mustURL(t, "loopback://localhost/billing"))
		require.NoError(t, err)

		err = ep.Send(ctx, orderSubmitted{OrderID: "1"})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"PreSend", "SendFault"}, rec.Events())
	})

	t.Run("pipe", func(t *testing.T) {
		reject := pipe.FilterFunc[*messages.SendContext](func(context.Context, *messages.SendContext, pipe.SendPipe) error {
			return boom
		})
		c := NewContext(newConfig(t, WithSendFilters(reject)), inmemory.New(nil))
		rec := &recorder{}
		c.ConnectSendObserver(rec)

		sp, err := c.SendEndpointProvider()
		require.NoError(t, err)
		ep, err := sp.GetSendEndpoint(ctx, mustURL(t, "loopback://localhost/billing"))
		require.NoError(t, err)

		require.ErrorIs(t, ep.Send(ctx, orderSubmitted{}), boom)
		assert.Equal(t, []string{"SendFault"}, rec.Events())
	})

	t.Run("nil message", func(t *testing.T) {
		c := NewContext(newConfig(t), inmemory.New(nil))
		sp, err := c.SendEndpointProvider()
		require.NoError(t, err)
		ep, err := sp.GetSendEndpoint(ctx, mustURL(t, "loopback://localhost/billing"))
		require.NoError(t, err)
		assert.ErrorIs(t, ep.Send(ctx, nil), ErrNilMessage)
	})

	t.Run("foreign address", func(t *testing.T) {
		c := NewContext(newConfig(t), inmemory.New(nil))
		sp, err := c.SendEndpointProvider()
		require.NoError(t, err)
		_, err = sp.GetSendEndpoint(ctx, mustURL(t, "rabbitmq://localhost/billing"))
		assert.ErrorIs(t, err, transport.ErrUnsupportedAddress)
		_, err = sp.GetSendEndpoint(ctx, nil)
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	hub := inmemory.NewHub()
	c := NewContext(newConfig(t, WithSerializer(serialization.CloudEvents())), inmemory.New(hub))
	rec := &recorder{}
	c.ConnectPublishObserver(rec)
	got := capture(t, hub, "endpoint.orderSubmitted")

	pp, err := c.PublishEndpointProvider()
	require.NoError(t, err)
	addr, err := pp.PublishAddress(messages.TypeNameFor[orderSubmitted]())
	require.NoError(t, err)
	assert.Equal(t, "loopback://localhost/endpoint.orderSubmitted", addr.String())

	ep, err := pp.GetPublishSendEndpoint(ctx, messages.TypeNameFor[orderSubmitted]())
	require.NoError(t, err)
	assert.Equal(t, addr.String(), ep.Address().String())
	assert.Equal(t, "urn:message:endpoint:orderSubmitted", ep.MessageType())

	require.NoError(t, pp.Publish(ctx, orderSubmitted{OrderID: "9"}, WithCorrelationID("c-9")))

	d := next(t, got)
	assert.Equal(t, serialization.ContentTypeCloudEvents, d.ContentType)
	env, err := serialization.CloudEvents().Deserialize(d.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:message:endpoint:orderSubmitted"}, env.MessageType)
	assert.Equal(t, "c-9", env.CorrelationID)
	assert.Equal(t, []string{"PrePublish", "PostPublish"}, rec.Events())

	_, err = pp.GetPublishSendEndpoint(ctx, "")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, pp.Publish(ctx, nil), ErrNilMessage)
}

func TestPublishThroughAnotherTypeEndpoint(t *testing.T) {
	ctx := context.Background()
	hub := inmemory.NewHub()
	c := NewContext(newConfig(t), inmemory.New(hub))
	got := capture(t, hub, "endpoint.orderSubmitted")

	pp, err := c.PublishEndpointProvider()
	require.NoError(t, err)
	ep, err := pp.GetPublishSendEndpoint(ctx, messages.TypeNameFor[orderSubmitted]())
	require.NoError(t, err)
	require.NoError(t, ep.Publish(ctx, orderCancelled{OrderID: "3"}))

	env, err := serialization.JSON().Deserialize(next(t, got).Body)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"urn:message:endpoint:orderSubmitted",
		"urn:message:endpoint:orderCancelled",
	}, env.MessageType)
}

func TestPublishFault(t *testing.T) {
	boom := errors.New("exchange gone")
	b := &mockBinding{}
	b.On("CreatePublishTransportProvider").Return(stubProvider{t: transport.SendTransportFunc(
		func(context.Context, *messages.SendContext) error { return boom },
	)}, nil)
	c := NewContext(newConfig(t), b)
	rec := &recorder{}
	c.ConnectPublishObserver(rec)

	pp, err := c.PublishEndpointProvider()
	require.NoError(t, err)
	require.ErrorIs(t, pp.Publish(context.Background(), orderSubmitted{}), boom)
	assert.Equal(t, []string{"PrePublish", "PublishFault"}, rec.Events())
	b.AssertNotCalled(t, "CreateSendTransportProvider")
}
