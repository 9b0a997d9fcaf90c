package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/transport"
	amqp "github.com/rabbitmq/amqp091-go"
)

type sendTransport struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func (t *sendTransport) Send(ctx context.Context, sc *messages.SendContext) error {
	headers := amqp.Table{}
	for k, v := range transport.Headers(sc) {
		headers[k] = v
	}
	msg := amqp.Publishing{
		Headers:       headers,
		ContentType:   sc.ContentType,
		DeliveryMode:  amqp.Persistent,
		MessageId:     sc.MessageID,
		CorrelationId: sc.CorrelationID,
		Timestamp:     sc.SentTime,
		Body:          sc.Body,
	}
	if len(sc.MessageType) > 0 {
		msg.Type = sc.MessageType[0]
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ch.PublishWithContext(ctx, t.exchange, "", false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", t.exchange, err)
	}
	return nil
}

func (t *sendTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch.Close()
}

type receiveTransport struct {
	binding *Binding
	queue   string
}

func (t *receiveTransport) Subscribe(ctx context.Context, handler transport.Handler) (transport.Subscription, error) {
	if handler == nil {
		return nil, transport.ErrHandlerRequired
	}
	ch, err := t.binding.channel()
	if err != nil {
		return nil, err
	}
	if err := t.declare(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	sub := &subscription{id: uuidx.NewString(), ch: ch, done: make(chan struct{})}
	deliveries, err := ch.Consume(t.queue, sub.id, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: consume %s: %w", t.queue, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	sub.cancel = cancel
	go sub.run(sctx, deliveries, handler, t.queue)
	return sub, nil
}

func (t *receiveTransport) declare(ch *amqp.Channel) error {
	if err := ch.Qos(t.binding.prefetchCount, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: qos: %w", err)
	}
	if err := t.binding.declareExchange(ch, t.queue); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(t.queue, t.binding.durable, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare queue %s: %w", t.queue, err)
	}
	if err := ch.QueueBind(t.queue, "", t.queue, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue %s: %w", t.queue, err)
	}
	return nil
}

type subscription struct {
	id     string
	ch     *amqp.Channel
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.ch.Close()
	})
	return err
}

func (s *subscription) run(ctx context.Context, deliveries <-chan amqp.Delivery, handler transport.Handler, queue string) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			headers := make(map[string]string, len(d.Headers))
			for k, v := range d.Headers {
				if str, ok := v.(string); ok {
					headers[k] = str
				}
			}
			delivery := transport.DeliveryFrom(d.Body, headers)
			delivery.ContentType = d.ContentType
			delivery.Redelivered = d.Redelivered

			if err := handler(ctx, delivery); err != nil {
				slog.Debug("delivery faulted", slog.String("queue", queue), slogx.Error(err))
				if nerr := d.Nack(false, !d.Redelivered); nerr != nil {
					slog.Error("failed to nack message", slogx.Error(nerr))
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				slog.Error("failed to ack message", slogx.Error(err))
			}
		}
	}
}
