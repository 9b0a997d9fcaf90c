package observer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/pkg/slogx"
)

// LoggingObserver logs every event of all five channels.
type LoggingObserver struct {
	logger *slog.Logger
}

var (
	_ SendObserver             = (*LoggingObserver)(nil)
	_ PublishObserver          = (*LoggingObserver)(nil)
	_ ReceiveObserver          = (*LoggingObserver)(nil)
	_ ReceiveTransportObserver = (*LoggingObserver)(nil)
	_ ReceiveEndpointObserver  = (*LoggingObserver)(nil)
)

// Logging returns an observer that writes to logger, or slog.Default when nil.
// Successful operations log at debug level, faults at error level.
func Logging(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger.With(slogx.LoggerName("roost.observer"))}
}

func sendAttrs(sc *messages.SendContext) []any {
	return []any{
		slog.String("message_id", sc.MessageID),
		slog.String("message_type", strings.Join(sc.MessageType, ",")),
		slogx.URL("destination", sc.DestinationAddress),
	}
}

func receiveAttrs(rc *messages.ReceiveContext) []any {
	attrs := []any{
		slogx.URL("input_address", rc.InputAddress),
		slog.String("content_type", rc.ContentType),
		slog.Int("body_size", len(rc.Body)),
	}
	if rc.Envelope != nil {
		attrs = append(attrs,
			slog.String("message_id", rc.Envelope.MessageID),
			slog.String("message_type", strings.Join(rc.Envelope.MessageType, ",")),
		)
	}
	return attrs
}

func (l *LoggingObserver) PreSend(ctx context.Context, sc *messages.SendContext) {
	l.logger.DebugContext(ctx, "sending message", sendAttrs(sc)...)
}

func (l *LoggingObserver) PostSend(ctx context.Context, sc *messages.SendContext) {
	l.logger.DebugContext(ctx, "message sent", sendAttrs(sc)...)
}

func (l *LoggingObserver) SendFault(ctx context.Context, sc *messages.SendContext, err error) {
	l.logger.ErrorContext(ctx, "send faulted", append(sendAttrs(sc), slogx.Error(err))...)
}

func (l *LoggingObserver) PrePublish(ctx context.Context, pc *messages.PublishContext) {
	l.logger.DebugContext(ctx, "publishing message", sendAttrs(&pc.SendContext)...)
}

func (l *LoggingObserver) PostPublish(ctx context.Context, pc *messages.PublishContext) {
	l.logger.DebugContext(ctx, "message published", sendAttrs(&pc.SendContext)...)
}

func (l *LoggingObserver) PublishFault(ctx context.Context, pc *messages.PublishContext, err error) {
	l.logger.ErrorContext(ctx, "publish faulted", append(sendAttrs(&pc.SendContext), slogx.Error(err))...)
}

func (l *LoggingObserver) PreReceive(ctx context.Context, rc *messages.ReceiveContext) {
	l.logger.DebugContext(ctx, "receiving message", receiveAttrs(rc)...)
}

func (l *LoggingObserver) PostReceive(ctx context.Context, rc *messages.ReceiveContext) {
	l.logger.DebugContext(ctx, "message received", append(receiveAttrs(rc), slog.Bool("consumed", rc.IsConsumed()))...)
}

func (l *LoggingObserver) ReceiveFault(ctx context.Context, rc *messages.ReceiveContext, err error) {
	l.logger.ErrorContext(ctx, "receive faulted", append(receiveAttrs(rc), slogx.Error(err))...)
}

func (l *LoggingObserver) PostConsume(ctx context.Context, rc *messages.ReceiveContext, elapsed time.Duration, consumerType string) {
	l.logger.DebugContext(ctx, "message consumed",
		append(receiveAttrs(rc), slog.String("consumer", consumerType), slog.Duration("elapsed", elapsed))...)
}

func (l *LoggingObserver) ConsumeFault(ctx context.Context, rc *messages.ReceiveContext, elapsed time.Duration, consumerType string, err error) {
	l.logger.ErrorContext(ctx, "consume faulted",
		append(receiveAttrs(rc), slog.String("consumer", consumerType), slog.Duration("elapsed", elapsed), slogx.Error(err))...)
}

func (l *LoggingObserver) TransportReady(ctx context.Context, ev TransportEvent) {
	l.logger.InfoContext(ctx, "receive transport ready", slogx.URL("input_address", ev.InputAddress), slog.String("transport", ev.Transport))
}

func (l *LoggingObserver) TransportCompleted(ctx context.Context, ev TransportEvent) {
	l.logger.InfoContext(ctx, "receive transport stopped", slogx.URL("input_address", ev.InputAddress), slog.String("transport", ev.Transport))
}

func (l *LoggingObserver) TransportFaulted(ctx context.Context, ev TransportEvent) {
	l.logger.ErrorContext(ctx, "receive transport faulted", slogx.URL("input_address", ev.InputAddress), slog.String("transport", ev.Transport), slogx.Error(ev.Err))
}

func (l *LoggingObserver) EndpointReady(ctx context.Context, ev EndpointEvent) {
	l.logger.InfoContext(ctx, "receive endpoint ready", slogx.URL("input_address", ev.InputAddress))
}

func (l *LoggingObserver) EndpointCompleted(ctx context.Context, ev EndpointEvent) {
	l.logger.InfoContext(ctx, "receive endpoint completed", slogx.URL("input_address", ev.InputAddress), slog.Int64("deliveries", ev.DeliveryCount))
}

func (l *LoggingObserver) EndpointFaulted(ctx context.Context, ev EndpointEvent) {
	l.logger.ErrorContext(ctx, "receive endpoint faulted", slogx.URL("input_address", ev.InputAddress), slogx.Error(ev.Err))
}
