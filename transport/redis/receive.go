package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/transport"
	"github.com/redis/go-redis/v9"
)

type receiveTransport struct {
	binding *Binding
	group   string
	streams []string
}

func (t *receiveTransport) Subscribe(ctx context.Context, handler transport.Handler) (transport.Subscription, error) {
	if handler == nil {
		return nil, transport.ErrHandlerRequired
	}
	for _, stream := range t.streams {
		err := t.binding.client.XGroupCreateMkStream(ctx, stream, t.group, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("redis: create group %s on %s: %w", t.group, stream, err)
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{id: uuidx.NewString(), cancel: cancel, done: make(chan struct{})}
	go sub.run(sctx, t, handler)
	return sub, nil
}

type subscription struct {
	id     string
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *subscription) run(ctx context.Context, t *receiveTransport, handler transport.Handler) {
	defer close(s.done)
	client := t.binding.client

	streams := make([]string, 0, 2*len(t.streams))
	streams = append(streams, t.streams...)
	for range t.streams {
		streams = append(streams, ">")
	}

	for {
		if ctx.Err() != nil {
			return
		}
		res, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    t.group,
			Consumer: s.id,
			Streams:  streams,
			Count:    t.binding.batchSize,
			Block:    -1,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read stream", slog.String("group", t.group), slogx.Error(err))
		}

		handled := 0
		for _, xs := range res {
			for _, m := range xs.Messages {
				handled++
				if err := handler(ctx, delivery(m.Values)); err != nil {
					// left pending for XCLAIM by an operator or a later consumer
					slog.Debug("delivery faulted", slog.String("stream", xs.Stream), slogx.Error(err))
					continue
				}
				if err := client.XAck(ctx, xs.Stream, t.group, m.ID).Err(); err != nil && ctx.Err() == nil {
					slog.Error("failed to ack entry", slog.String("stream", xs.Stream), slog.String("id", m.ID), slogx.Error(err))
				}
			}
		}
		if handled > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.binding.pollInterval):
		}
	}
}
