// Package redis is a transport binding for Redis streams.
//
// The entity name of an address is the stream key. Sending appends to the stream with
// XADD. A receive transport reads with a consumer group named after its input entity,
// over the input stream and every stream routed to it, and acknowledges handled
// entries with XACK.
package redis

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/topology"
	"github.com/casualjim/roost/transport"
	"github.com/fogfish/opts"
	"github.com/redis/go-redis/v9"
)

// Scheme is the address scheme served by this binding.
const Scheme = "redis"

const (
	fieldBody    = "body"
	headerPrefix = "h:"
)

// Binding sends to and receives from Redis streams.
type Binding struct {
	client       redis.UniversalClient
	maxLen       int64
	batchSize    int64
	pollInterval time.Duration

	mu     sync.RWMutex
	routes map[string][]string
}

var (
	// WithMaxLen caps streams at roughly this many entries. Zero keeps everything.
	WithMaxLen = opts.ForName[Binding, int64]("maxLen")
	// WithBatchSize sets how many entries one read returns.
	WithBatchSize = opts.ForName[Binding, int64]("batchSize")
	// WithPollInterval sets how long a reader waits after an empty read.
	WithPollInterval = opts.ForName[Binding, time.Duration]("pollInterval")
)

// New creates a binding on client.
func New(client redis.UniversalClient, options ...opts.Option[Binding]) (*Binding, error) {
	b := &Binding{
		client:       client,
		batchSize:    16,
		pollInterval: 50 * time.Millisecond,
		routes:       make(map[string][]string),
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	return b, nil
}

// Dial parses a redis url, falling back to REDIS_URL and redis://localhost:6379/0.
func Dial(rawURL string, options ...opts.Option[Binding]) (*Binding, error) {
	o, err := redis.ParseURL(cmp.Or(rawURL, os.Getenv("REDIS_URL"), "redis://localhost:6379/0"))
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return New(redis.NewClient(o), options...)
}

func (b *Binding) Name() string {
	return "redis"
}

// Close closes the client.
func (b *Binding) Close() error {
	return b.client.Close()
}

func (b *Binding) CreateSendTransportProvider() (transport.SendTransportProvider, error) {
	return transport.NewCache(b.createTransport), nil
}

func (b *Binding) CreatePublishTransportProvider() (transport.PublishTransportProvider, error) {
	return transport.NewCache(b.createTransport), nil
}

func (b *Binding) Route(_ context.Context, publishAddress, input *url.URL) error {
	if err := transport.CheckScheme(publishAddress, Scheme); err != nil {
		return err
	}
	if err := transport.CheckScheme(input, Scheme); err != nil {
		return err
	}
	in, stream := topology.EntityName(input), topology.EntityName(publishAddress)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.routes[in] {
		if s == stream {
			return nil
		}
	}
	b.routes[in] = append(b.routes[in], stream)
	return nil
}

func (b *Binding) CreateReceiveTransport(input *url.URL) (transport.ReceiveTransport, error) {
	if err := transport.CheckScheme(input, Scheme); err != nil {
		return nil, err
	}
	group := topology.EntityName(input)
	b.mu.RLock()
	streams := append([]string{group}, b.routes[group]...)
	b.mu.RUnlock()
	return &receiveTransport{binding: b, group: group, streams: streams}, nil
}

func (b *Binding) createTransport(_ context.Context, address *url.URL) (transport.SendTransport, error) {
	if err := transport.CheckScheme(address, Scheme); err != nil {
		return nil, err
	}
	return &sendTransport{binding: b, stream: topology.EntityName(address)}, nil
}

type sendTransport struct {
	binding *Binding
	stream  string
}

func (t *sendTransport) Send(ctx context.Context, sc *messages.SendContext) error {
	values := map[string]any{fieldBody: sc.Body}
	for k, v := range transport.Headers(sc) {
		values[headerPrefix+k] = v
	}
	args := &redis.XAddArgs{Stream: t.stream, Values: values}
	if t.binding.maxLen > 0 {
		args.MaxLen = t.binding.maxLen
		args.Approx = true
	}
	if err := t.binding.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: xadd %s: %w", t.stream, err)
	}
	return nil
}

func delivery(values map[string]any) transport.Delivery {
	headers := make(map[string]string, len(values))
	var body []byte
	for k, v := range values {
		s := fmt.Sprint(v)
		if k == fieldBody {
			body = []byte(s)
			continue
		}
		if name, ok := strings.CutPrefix(k, headerPrefix); ok {
			headers[name] = s
		}
	}
	return transport.DeliveryFrom(body, headers)
}
