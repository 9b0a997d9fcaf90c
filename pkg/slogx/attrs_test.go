package slogx

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttrs(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		attr := Error(errors.New("broken"))
		assert.Equal(t, KeyError, attr.Key)
		assert.Equal(t, "broken", attr.Value.String())
		assert.Equal(t, "", Error(nil).Value.String())
	})

	t.Run("url", func(t *testing.T) {
		u, _ := url.Parse("nats://localhost:4222/orders")
		assert.Equal(t, "nats://localhost:4222/orders", URL("address", u).Value.String())
		assert.Equal(t, "", URL("address", nil).Value.String())
	})

	t.Run("logger name", func(t *testing.T) {
		attr := LoggerName("roost.endpoint")
		assert.Equal(t, KeyLoggerName, attr.Key)
		assert.Equal(t, "roost.endpoint", attr.Value.String())
	})

	t.Run("recovered", func(t *testing.T) {
		assert.Equal(t, KeyError, Recovered(errors.New("x")).Key)
		attr := Recovered("boom")
		assert.Equal(t, "panic", attr.Key)
		assert.Equal(t, "boom", attr.Value.String())
	})
}
