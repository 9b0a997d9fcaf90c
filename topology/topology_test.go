package topology

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func TestEntityName(t *testing.T) {
	top := Default()

	name, err := top.EntityName("urn:message:orders:Submitted")
	require.NoError(t, err)
	assert.Equal(t, "orders.Submitted", name)

	_, err = top.EntityName("")
	assert.ErrorIs(t, err, ErrNoMessageType)
}

func TestOptions(t *testing.T) {
	top, err := New(
		WithPrefix("prod."),
		WithEntityNameFormatter(func(mt string) string { return strings.ToLower(DefaultEntityName(mt)) }),
		WithEntityName("urn:message:billing:Invoice", "invoices"),
	)
	require.NoError(t, err)

	name, err := top.EntityName("urn:message:orders:Submitted")
	require.NoError(t, err)
	assert.Equal(t, "prod.orders.submitted", name)

	name, err = top.EntityName("urn:message:billing:Invoice")
	require.NoError(t, err)
	assert.Equal(t, "invoices", name)

	_, err = New(WithEntityName("", "x"))
	assert.Error(t, err)
}

func TestPublishAddress(t *testing.T) {
	host := mustParse(t, "nats://user:pw@localhost:4222/vhost?x=1")
	addr, err := Default().PublishAddress(host, "urn:message:orders:Submitted")
	require.NoError(t, err)
	assert.Equal(t, "nats://user:pw@localhost:4222/vhost/orders.Submitted", addr.String())
	assert.Equal(t, "nats://user:pw@localhost:4222/vhost?x=1", host.String(), "host is not modified")
	assert.Equal(t, "orders.Submitted", EntityName(addr))

	_, err = Default().PublishAddress(nil, "urn:message:orders:Submitted")
	assert.ErrorIs(t, err, ErrNoHost)
}

func TestAddressEntityName(t *testing.T) {
	assert.Equal(t, "loopback://localhost/queue", Address(mustParse(t, "loopback://localhost"), "queue").String())
	assert.Equal(t, "queue", EntityName(mustParse(t, "loopback://localhost/queue/")))
	assert.Equal(t, "", EntityName(nil))
}
