package transport

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"

	"github.com/casualjim/roost/internal/registry"
	"github.com/casualjim/roost/pkg/lazy"
)

// Factory builds the transport for one address.
type Factory func(ctx context.Context, address *url.URL) (SendTransport, error)

// Cache is a send and publish transport provider that builds one transport per address
// and hands the same instance to every later caller. A failed build is not cached.
type Cache struct {
	factory Factory
	entries registry.Registry[*lazy.Value[SendTransport]]

	lifecycle sync.RWMutex
	closed    bool
}

// NewCache creates a provider backed by factory.
func NewCache(factory Factory) *Cache {
	return &Cache{
		factory: factory,
		entries: registry.New[*lazy.Value[SendTransport]](),
	}
}

func (c *Cache) GetSendTransport(ctx context.Context, address *url.URL) (SendTransport, error) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	if address == nil {
		return nil, ErrUnsupportedAddress
	}
	// the build may outlive the caller that triggered it
	buildCtx := context.WithoutCancel(ctx)
	cell, _ := c.entries.GetOrAdd(address.String(), func() *lazy.Value[SendTransport] {
		return lazy.New(func() (SendTransport, error) {
			return c.factory(buildCtx, address)
		})
	})
	return cell.Get()
}

func (c *Cache) GetPublishTransport(ctx context.Context, _ string, address *url.URL) (SendTransport, error) {
	return c.GetSendTransport(ctx, address)
}

// Len reports how many addresses have a cached entry.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Close closes every built transport that implements io.Closer. It waits for builds
// in flight and closes their transports too.
func (c *Cache) Close() error {
	c.lifecycle.Lock()
	if c.closed {
		c.lifecycle.Unlock()
		return nil
	}
	c.closed = true
	c.lifecycle.Unlock()

	var errs []error
	for _, cell := range c.entries.Drain() {
		t, ok := cell.Peek()
		if !ok {
			continue
		}
		if cl, ok := t.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}
