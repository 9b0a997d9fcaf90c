package inmemory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/transport"
	"github.com/fogfish/opts"
)

const (
	defaultSlowSubscriberTimeout = 100 * time.Millisecond
	defaultBufferSize            = 50
)

// Hub is an in-process broker. Every subscription of an entity receives every message
// delivered to it, and routes forward deliveries from one entity to others.
type Hub struct {
	queues                *haxmap.Map[string, *queue]
	slowSubscriberTimeout time.Duration
	bufferSize            int

	mu     sync.RWMutex
	routes map[string][]string
}

var (
	// WithSlowSubscriberTimeout sets how long a delivery waits on a full subscriber
	// before that subscriber is dropped.
	WithSlowSubscriberTimeout = opts.ForName[Hub, time.Duration]("slowSubscriberTimeout")
	// WithBufferSize sets the per-subscription buffer.
	WithBufferSize = opts.ForName[Hub, int]("bufferSize")
)

// NewHub creates an empty hub.
func NewHub(options ...opts.Option[Hub]) *Hub {
	h := &Hub{
		queues:                haxmap.New[string, *queue](),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
		bufferSize:            defaultBufferSize,
		routes:                make(map[string][]string),
	}
	if err := opts.Apply(h, options); err != nil {
		panic(err)
	}
	if h.bufferSize <= 0 {
		h.bufferSize = defaultBufferSize
	}
	return h
}

// Bind forwards every delivery to source to destination as well.
func (h *Hub) Bind(source, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.routes[source] {
		if d == destination {
			return
		}
	}
	h.routes[source] = append(h.routes[source], destination)
}

func (h *Hub) queue(name string) *queue {
	q, _ := h.queues.GetOrCompute(name, func() *queue {
		return &queue{
			name:                  name,
			subscriptions:         haxmap.New[string, *subscription](),
			slowSubscriberTimeout: h.slowSubscriberTimeout,
			bufferSize:            h.bufferSize,
		}
	})
	return q
}

// Deliver hands d to the subscribers of entity and of every entity routed from it.
func (h *Hub) Deliver(ctx context.Context, entity string, d transport.Delivery) error {
	visited := map[string]bool{}
	pending := []string{entity}
	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		if err := h.queue(name).deliver(ctx, d); err != nil {
			return err
		}
		h.mu.RLock()
		pending = append(pending, h.routes[name]...)
		h.mu.RUnlock()
	}
	return nil
}

// Subscribe attaches handler to entity.
func (h *Hub) Subscribe(ctx context.Context, entity string, handler transport.Handler) (transport.Subscription, error) {
	if handler == nil {
		return nil, transport.ErrHandlerRequired
	}
	return h.queue(entity).subscribe(ctx, handler), nil
}

type queue struct {
	name                  string
	subscriptions         *haxmap.Map[string, *subscription]
	slowSubscriberTimeout time.Duration
	bufferSize            int
}

func (q *queue) deliver(ctx context.Context, d transport.Delivery) error {
	q.subscriptions.ForEach(func(_ string, sub *subscription) bool {
		if sub == nil {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-sub.ctx.Done():
			_ = sub.Unsubscribe()
			return true
		default:
		}

		select {
		case <-ctx.Done():
			return false
		case <-sub.ctx.Done():
			_ = sub.Unsubscribe()
		case sub.channel <- d.Clone():
		case <-time.After(q.slowSubscriberTimeout):
			slog.Warn("dropping slow subscriber", slog.String("entity", q.name), slog.String("subscription", sub.id))
			_ = sub.Unsubscribe()
		}
		return true
	})
	return ctx.Err()
}

func (q *queue) subscribe(ctx context.Context, handler transport.Handler) *subscription {
	id := uuidx.NewString()
	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:      id,
		entity:  q.name,
		ctx:     sctx,
		cancel:  cancel,
		channel: make(chan transport.Delivery, q.bufferSize),
		onClose: func() { q.subscriptions.Del(id) },
		handler: handler,
	}
	q.subscriptions.Set(id, sub)
	go sub.forward()
	return sub
}

type subscription struct {
	id        string
	entity    string
	ctx       context.Context
	cancel    context.CancelFunc
	channel   chan transport.Delivery
	closeOnce sync.Once
	onClose   func()
	handler   transport.Handler
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() error {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		s.cancel()
	})
	return nil
}

func (s *subscription) forward() {
	for {
		select {
		case d := <-s.channel:
			if err := s.handler(s.ctx, d); err != nil {
				slog.Debug("delivery faulted",
					slog.String("entity", s.entity),
					slog.String("subscription", s.id),
					slogx.Error(err),
				)
			}
		case <-s.ctx.Done():
			return
		}
	}
}
