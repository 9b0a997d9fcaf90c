package observer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/pkg/uuidx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handle cancels one attachment. Detach is idempotent and safe to call while the
// channel is notifying.
type Handle interface {
	ID() string
	Detach()
}

// Channel is a multicast registry for observers of type O.
//
// Observers are kept in attachment order. Every mutation publishes a fresh snapshot
// slice, and Notify iterates whichever snapshot was current when it started, so a
// notification never waits for Attach or Detach and never sees a half-updated set.
type Channel[O any] struct {
	name   string
	logger *slog.Logger

	mu        sync.Mutex
	observers *orderedmap.OrderedMap[string, O]
	snapshot  atomic.Pointer[[]O]
}

// NewChannel creates an empty channel. The name is used when logging observer panics.
func NewChannel[O any](name string) *Channel[O] {
	c := &Channel[O]{
		name:      name,
		observers: orderedmap.New[string, O](),
	}
	c.snapshot.Store(&[]O{})
	return c
}

// WithLogger sets the logger used to report observer panics.
func (c *Channel[O]) WithLogger(logger *slog.Logger) *Channel[O] {
	c.logger = logger
	return c
}

// Attach adds an observer and returns the handle that removes it.
func (c *Channel[O]) Attach(o O) Handle {
	id := uuidx.NewString()

	c.mu.Lock()
	c.observers.Set(id, o)
	c.publishLocked()
	c.mu.Unlock()

	return &handle{id: id, detach: func() { c.detach(id) }}
}

func (c *Channel[O]) detach(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, present := c.observers.Delete(id); present {
		c.publishLocked()
	}
}

// publishLocked rebuilds the snapshot. Callers hold c.mu.
func (c *Channel[O]) publishLocked() {
	next := make([]O, 0, c.observers.Len())
	for pair := c.observers.Oldest(); pair != nil; pair = pair.Next() {
		next = append(next, pair.Value)
	}
	c.snapshot.Store(&next)
}

// Len returns the number of attached observers.
func (c *Channel[O]) Len() int {
	return len(*c.snapshot.Load())
}

// Clear detaches every observer. Outstanding handles become no-ops.
func (c *Channel[O]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = orderedmap.New[string, O]()
	c.publishLocked()
}

// Notify calls fn for every attached observer in attachment order.
// A panicking observer is logged and skipped; the remaining observers are still called.
func (c *Channel[O]) Notify(fn func(O)) {
	for _, o := range *c.snapshot.Load() {
		c.deliver(o, fn)
	}
}

func (c *Channel[O]) deliver(o O, fn func(O)) {
	defer func() {
		if r := recover(); r != nil {
			lg := c.logger
			if lg == nil {
				lg = slog.Default()
			}
			lg.Error("observer panicked", slog.String("channel", c.name), slogx.Recovered(r))
		}
	}()
	fn(o)
}

type handle struct {
	id     string
	once   sync.Once
	detach func()
}

func (h *handle) ID() string {
	return h.id
}

func (h *handle) Detach() {
	h.once.Do(h.detach)
}

// Handles groups several handles so they can be detached together.
type Handles []Handle

// Detach detaches every handle in the group.
func (hs Handles) Detach() {
	for _, h := range hs {
		if h != nil {
			h.Detach()
		}
	}
}
