package redis

import (
	"context"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/casualjim/roost/transport"
	"github.com/casualjim/roost/transport/transporttest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*Binding, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b, err := New(client)
	require.NoError(t, err)
	return b, mr
}

func address(entity string) *url.URL {
	return &url.URL{Scheme: Scheme, Host: "localhost:6379", Path: "/" + entity}
}

func TestAcceptance(t *testing.T) {
	transporttest.Run(t, "redis", func(t *testing.T) transporttest.Harness {
		b, _ := setupRedis(t)
		return transporttest.Harness{Binding: b, Address: address}
	})
}

func TestSendWritesStreamEntry(t *testing.T) {
	b, mr := setupRedis(t)
	sp, err := b.CreateSendTransportProvider()
	require.NoError(t, err)
	st, err := sp.GetSendTransport(context.Background(), address("orders"))
	require.NoError(t, err)

	out := transporttest.Outgoing(address("orders"), `{"id":1}`)
	require.NoError(t, st.Send(context.Background(), out))

	entries, err := mr.Stream("orders")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := map[string]any{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		values[entries[0].Values[i]] = entries[0].Values[i+1]
	}
	assert.Equal(t, `{"id":1}`, values[fieldBody])
	assert.Equal(t, out.MessageID, values[headerPrefix+transport.HeaderMessageID])

	d := delivery(values)
	assert.Equal(t, `{"id":1}`, string(d.Body))
	assert.Equal(t, out.ContentType, d.ContentType)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial("://nope")
	assert.Error(t, err)
}
