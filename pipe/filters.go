package pipe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/pkg/slogx"
)

// RecoveryError wraps a value recovered from a panicking filter.
type RecoveryError struct {
	PanicValue any
	StackTrace string
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.PanicValue)
}

// Recover converts a panic further down the pipe into a *RecoveryError.
func Recover[C any]() Filter[C] {
	return FilterFunc[C](func(ctx context.Context, c C, next Pipe[C]) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &RecoveryError{
					PanicValue: r,
					StackTrace: string(debug.Stack()),
				}
			}
		}()
		return next.Send(ctx, c)
	})
}

// Log logs the outcome and duration of the rest of the pipe.
func Log[C any](logger *slog.Logger, name string) Filter[C] {
	if logger == nil {
		logger = slog.Default()
	}
	lg := logger.With(slogx.LoggerName("roost.pipe"), slog.String("pipe", name))
	return FilterFunc[C](func(ctx context.Context, c C, next Pipe[C]) error {
		start := time.Now()
		err := next.Send(ctx, c)
		if err != nil {
			lg.ErrorContext(ctx, "pipe faulted", slog.Duration("elapsed", time.Since(start)), slogx.Error(err))
			return err
		}
		lg.DebugContext(ctx, "pipe completed", slog.Duration("elapsed", time.Since(start)))
		return nil
	})
}

// Headers stamps fixed headers on outgoing messages unless a header is already set.
func Headers(headers messages.Headers) Filter[*messages.SendContext] {
	return FilterFunc[*messages.SendContext](func(ctx context.Context, sc *messages.SendContext, next Pipe[*messages.SendContext]) error {
		if sc.Headers == nil {
			sc.Headers = make(messages.Headers, len(headers))
		}
		for k, v := range headers {
			if _, ok := sc.Headers[k]; !ok {
				sc.Headers[k] = v
			}
		}
		return next.Send(ctx, sc)
	})
}

// PublishHeaders is Headers for the publish pipe.
func PublishHeaders(headers messages.Headers) Filter[*messages.PublishContext] {
	stamp := Headers(headers)
	return FilterFunc[*messages.PublishContext](func(ctx context.Context, pc *messages.PublishContext, next Pipe[*messages.PublishContext]) error {
		return stamp.Send(ctx, &pc.SendContext, Func[*messages.SendContext](func(ctx context.Context, _ *messages.SendContext) error {
			return next.Send(ctx, pc)
		}))
	})
}
