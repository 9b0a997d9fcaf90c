// Package pipe defines the pipelines an endpoint runs over its message contexts.
//
// A Pipe receives a context value and either handles it or returns an error. Pipes are
// assembled from Filters: each filter gets the context and the rest of the pipe, and
// decides whether, and when, to pass the context on. For filters A, B, C the flow is
// A → B → C → end.
//
// The endpoint only consumes the Pipe interface, so any execution engine can be plugged
// in through the endpoint configuration; New is the stock implementation.
package pipe

import (
	"context"

	"github.com/casualjim/roost/messages"
)

// Pipe runs a context through a sequence of steps.
type Pipe[C any] interface {
	Send(ctx context.Context, c C) error
}

// Func adapts a function into a Pipe.
type Func[C any] func(ctx context.Context, c C) error

func (f Func[C]) Send(ctx context.Context, c C) error {
	return f(ctx, c)
}

// Filter is one step of a pipe.
type Filter[C any] interface {
	Send(ctx context.Context, c C, next Pipe[C]) error
}

// FilterFunc adapts a function into a Filter.
type FilterFunc[C any] func(ctx context.Context, c C, next Pipe[C]) error

func (f FilterFunc[C]) Send(ctx context.Context, c C, next Pipe[C]) error {
	return f(ctx, c, next)
}

// The three pipes of a receive endpoint and their filters.
type (
	SendPipe    = Pipe[*messages.SendContext]
	PublishPipe = Pipe[*messages.PublishContext]
	ReceivePipe = Pipe[*messages.ReceiveContext]

	SendFilter    = Filter[*messages.SendContext]
	PublishFilter = Filter[*messages.PublishContext]
	ReceiveFilter = Filter[*messages.ReceiveContext]
)

// Empty returns a pipe that accepts every context and does nothing.
func Empty[C any]() Pipe[C] {
	return Func[C](func(context.Context, C) error { return nil })
}

// New chains filters into a pipe. Nil filters are skipped.
func New[C any](filters ...Filter[C]) Pipe[C] {
	var p Pipe[C] = Empty[C]()
	for i := len(filters) - 1; i >= 0; i-- {
		if filters[i] == nil {
			continue
		}
		p = &filterPipe[C]{filter: filters[i], next: p}
	}
	return p
}

type filterPipe[C any] struct {
	filter Filter[C]
	next   Pipe[C]
}

func (p *filterPipe[C]) Send(ctx context.Context, c C) error {
	return p.filter.Send(ctx, c, p.next)
}

// Builder collects filters. It is not safe for concurrent use.
type Builder[C any] struct {
	filters []Filter[C]
}

// Use appends filters.
func (b *Builder[C]) Use(filters ...Filter[C]) *Builder[C] {
	b.filters = append(b.filters, filters...)
	return b
}

// UseFunc appends a filter function.
func (b *Builder[C]) UseFunc(fn func(ctx context.Context, c C, next Pipe[C]) error) *Builder[C] {
	return b.Use(FilterFunc[C](fn))
}

// Len returns the number of collected filters.
func (b *Builder[C]) Len() int {
	return len(b.filters)
}

// Build returns a pipe over a copy of the collected filters.
func (b *Builder[C]) Build() Pipe[C] {
	return New(append([]Filter[C](nil), b.filters...)...)
}

// Factory returns a function building a fresh pipe from the collected filters,
// suitable for an endpoint configuration.
func (b *Builder[C]) Factory() func() (Pipe[C], error) {
	filters := append([]Filter[C](nil), b.filters...)
	return func() (Pipe[C], error) {
		return New(filters...), nil
	}
}
