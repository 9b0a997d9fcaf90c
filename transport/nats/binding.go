// Package nats is a transport binding for NATS core subjects.
//
// The entity name of an address is the subject. Receive transports join a queue group
// named after the input entity, so several endpoints on one input share the load, and
// also subscribe to every subject routed to the input.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/pkg/natsx"
	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/topology"
	"github.com/casualjim/roost/transport"
	"github.com/nats-io/nats.go"
)

// Scheme is the address scheme served by this binding.
const Scheme = "nats"

// Binding publishes and subscribes on a NATS connection.
type Binding struct {
	conn *nats.Conn

	mu     sync.RWMutex
	routes map[string][]string
}

// New creates a binding on an open connection.
func New(conn *nats.Conn) *Binding {
	return &Binding{conn: conn, routes: make(map[string][]string)}
}

// Dial connects to url (see natsx.Connect) and creates a binding.
func Dial(url string, opts ...nats.Option) (*Binding, error) {
	conn, err := natsx.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return New(conn), nil
}

func (b *Binding) Name() string {
	return "nats"
}

// Close drains the connection.
func (b *Binding) Close() error {
	return b.conn.Drain()
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
	in, subject := topology.EntityName(input), topology.EntityName(publishAddress)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.routes[in] {
		if s == subject {
			return nil
		}
	}
	b.routes[in] = append(b.routes[in], subject)
	return nil
}

func (b *Binding) CreateReceiveTransport(input *url.URL) (transport.ReceiveTransport, error) {
	if err := transport.CheckScheme(input, Scheme); err != nil {
		return nil, err
	}
	entity := topology.EntityName(input)
	b.mu.RLock()
	subjects := append([]string{entity}, b.routes[entity]...)
	b.mu.RUnlock()
	return &receiveTransport{conn: b.conn, queue: entity, subjects: subjects}, nil
}

func (b *Binding) createTransport(_ context.Context, address *url.URL) (transport.SendTransport, error) {
	if err := transport.CheckScheme(address, Scheme); err != nil {
		return nil, err
	}
	return &sendTransport{conn: b.conn, subject: topology.EntityName(address)}, nil
}

type sendTransport struct {
	conn    *nats.Conn
	subject string
}

func (t *sendTransport) Send(_ context.Context, sc *messages.SendContext) error {
	return t.conn.PublishMsg(&nats.Msg{
		Subject: t.subject,
		Header:  natsx.Header(transport.Headers(sc)),
		Data:    sc.Body,
	})
}

type receiveTransport struct {
	conn     *nats.Conn
	queue    string
	subjects []string
}

func (t *receiveTransport) Subscribe(ctx context.Context, handler transport.Handler) (transport.Subscription, error) {
	if handler == nil {
		return nil, transport.ErrHandlerRequired
	}
	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{id: uuidx.NewString(), cancel: cancel}

	for _, subject := range t.subjects {
		nsub, err := t.conn.QueueSubscribe(subject, t.queue, func(msg *nats.Msg) {
			d := transport.DeliveryFrom(msg.Data, natsx.Flatten(msg.Header))
			if err := handler(sctx, d); err != nil {
				slog.Debug("delivery faulted", slog.String("subject", msg.Subject), slogx.Error(err))
				return
			}
			if msg.Reply != "" {
				if nerr := msg.Ack(); nerr != nil {
					slog.Error("failed to ack message", slogx.Error(nerr))
				}
			}
		})
		if err != nil {
			_ = sub.Unsubscribe()
			return nil, fmt.Errorf("nats: subscribe %s: %w", subject, err)
		}
		sub.subs = append(sub.subs, nsub)
	}

	go func() {
		<-sctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}

type subscription struct {
	id     string
	cancel context.CancelFunc
	subs   []*nats.Subscription
	once   sync.Once
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		for _, nsub := range s.subs {
			if err := nsub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", s.id))
			}
		}
	})
	return nil
}
