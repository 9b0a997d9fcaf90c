package endpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/pipe"
)

// Handler handles one message of type T.
type Handler[T any] func(ctx context.Context, message T, rc *messages.ReceiveContext) error

// Consumer returns a receive filter that decodes and handles every message of type T.
// Messages of other types pass through untouched. Receive observers are told about
// the outcome with PostConsume or ConsumeFault under the consumer name; an empty name
// defaults to the message type without its urn prefix.
func Consumer[T any](name string, handler Handler[T]) pipe.ReceiveFilter {
	messageType := messages.TypeNameFor[T]()
	if name == "" {
		name = messages.ShortName(messageType)
	}
	return pipe.FilterFunc[*messages.ReceiveContext](func(ctx context.Context, rc *messages.ReceiveContext, next pipe.ReceivePipe) error {
		if !rc.Envelope.Is(messageType) {
			return next.Send(ctx, rc)
		}

		start := time.Now()
		var message T
		if err := rc.Decode(&message); err != nil {
			err = fmt.Errorf("consumer %s: decode: %w", name, err)
			rc.NotifyFaulted(ctx, time.Since(start), name, err)
			return err
		}
		if err := handler(ctx, message, rc); err != nil {
			rc.NotifyFaulted(ctx, time.Since(start), name, err)
			return fmt.Errorf("consumer %s: %w", name, err)
		}
		rc.NotifyConsumed(ctx, time.Since(start), name)
		return next.Send(ctx, rc)
	})
}
