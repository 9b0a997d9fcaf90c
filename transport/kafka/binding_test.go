package kafka

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/casualjim/roost/transport"
	"github.com/casualjim/roost/transport/transporttest"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupKafka(t *testing.T) *Binding {
	b, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := kafka.DialContext(ctx, "tcp", b.Brokers()[0])
	if err != nil {
		t.Skipf("kafka not reachable: %v", err)
	}
	_ = conn.Close()
	return b
}

func TestAcceptance(t *testing.T) {
	transporttest.Run(t, "kafka", func(t *testing.T) transporttest.Harness {
		return transporttest.Harness{
			Binding: setupKafka(t),
			Address: func(entity string) *url.URL {
				return &url.URL{Scheme: Scheme, Host: "localhost:9092", Path: "/" + entity}
			},
			Timeout: 30 * time.Second,
		}
	})
}

func TestOptions(t *testing.T) {
	b, err := New(WithBrokers([]string{"a:9092", "b:9092"}), WithBatchSize(10), WithRequiredAcks(kafka.RequireOne))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, b.Brokers())
	assert.Equal(t, 10, b.batchSize)
	assert.Equal(t, kafka.RequireOne, b.requiredAcks)
}

func TestWriterPerTopic(t *testing.T) {
	b, err := New(WithBrokers([]string{"localhost:1"}))
	require.NoError(t, err)
	sp, err := b.CreateSendTransportProvider()
	require.NoError(t, err)

	st, err := sp.GetSendTransport(context.Background(), &url.URL{Scheme: Scheme, Host: "h", Path: "/orders"})
	require.NoError(t, err)
	assert.Equal(t, "orders", st.(*sendTransport).writer.Topic)

	_, err = sp.GetSendTransport(context.Background(), &url.URL{Scheme: "amqp", Host: "h", Path: "/orders"})
	assert.ErrorIs(t, err, transport.ErrUnsupportedAddress)
}

func TestRouteAddsGroupTopics(t *testing.T) {
	b, err := New(WithBrokers([]string{"localhost:1"}))
	require.NoError(t, err)
	in := &url.URL{Scheme: Scheme, Host: "h", Path: "/billing"}
	require.NoError(t, b.Route(context.Background(), &url.URL{Scheme: Scheme, Host: "h", Path: "/orders.Submitted"}, in))

	rt, err := b.CreateReceiveTransport(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "orders.Submitted"}, rt.(*receiveTransport).topics)
}
