// Package kafka is a transport binding for Apache Kafka.
//
// The entity name of an address is the topic. Each send or publish address gets its
// own writer. A receive transport reads with a consumer group named after the input
// entity, over the input topic plus every topic routed to it.
package kafka

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/roost/messages"
	"github.com/casualjim/roost/pkg/slogx"
	"github.com/casualjim/roost/pkg/uuidx"
	"github.com/casualjim/roost/topology"
	"github.com/casualjim/roost/transport"
	"github.com/fogfish/opts"
	"github.com/segmentio/kafka-go"
)

// Scheme is the address scheme served by this binding.
const Scheme = "kafka"

// Binding writes to and reads from a Kafka cluster.
type Binding struct {
	brokers      []string
	batchSize    int
	batchTimeout time.Duration
	requiredAcks kafka.RequiredAcks
	startOffset  int64
	maxWait      time.Duration

	mu     sync.RWMutex
	routes map[string][]string
}

var (
	// WithBrokers sets the bootstrap brokers.
	WithBrokers = opts.ForName[Binding, []string]("brokers")
	// WithBatchSize sets the writer batch size.
	WithBatchSize = opts.ForName[Binding, int]("batchSize")
	// WithBatchTimeout sets how long a writer waits to fill a batch.
	WithBatchTimeout = opts.ForName[Binding, time.Duration]("batchTimeout")
	// WithRequiredAcks sets the writer acknowledgement level.
	WithRequiredAcks = opts.ForName[Binding, kafka.RequiredAcks]("requiredAcks")
	// WithStartOffset sets where a new consumer group starts reading.
	WithStartOffset = opts.ForName[Binding, int64]("startOffset")
)

// New creates a binding. Without brokers it reads KAFKA_BROKERS (comma separated)
// and falls back to localhost:9092.
func New(options ...opts.Option[Binding]) (*Binding, error) {
	b := &Binding{
		batchSize:    1,
		batchTimeout: 10 * time.Millisecond,
		requiredAcks: kafka.RequireAll,
		startOffset:  kafka.FirstOffset,
		maxWait:      250 * time.Millisecond,
		routes:       make(map[string][]string),
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	if len(b.brokers) == 0 {
		b.brokers = strings.Split(cmp.Or(os.Getenv("KAFKA_BROKERS"), "localhost:9092"), ",")
	}
	return b, nil
}

// Brokers returns the bootstrap brokers.
func (b *Binding) Brokers() []string {
	return b.brokers
}

func (b *Binding) Name() string {
	return "kafka"
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
	in, topic := topology.EntityName(input), topology.EntityName(publishAddress)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.routes[in] {
		if t == topic {
			return nil
		}
	}
	b.routes[in] = append(b.routes[in], topic)
	return nil
}

func (b *Binding) CreateReceiveTransport(input *url.URL) (transport.ReceiveTransport, error) {
	if err := transport.CheckScheme(input, Scheme); err != nil {
		return nil, err
	}
	group := topology.EntityName(input)
	b.mu.RLock()
	topics := append([]string{group}, b.routes[group]...)
	b.mu.RUnlock()
	return &receiveTransport{binding: b, group: group, topics: topics}, nil
}

func (b *Binding) createTransport(_ context.Context, address *url.URL) (transport.SendTransport, error) {
	if err := transport.CheckScheme(address, Scheme); err != nil {
		return nil, err
	}
	return &sendTransport{writer: &kafka.Writer{
		Addr:                   kafka.TCP(b.brokers...),
		Topic:                  topology.EntityName(address),
		BatchSize:              b.batchSize,
		BatchTimeout:           b.batchTimeout,
		RequiredAcks:           b.requiredAcks,
		AllowAutoTopicCreation: true,
	}}, nil
}

type sendTransport struct {
	writer *kafka.Writer
}

func (t *sendTransport) Send(ctx context.Context, sc *messages.SendContext) error {
	msg := kafka.Message{Key: []byte(sc.MessageID), Value: sc.Body, Time: sc.SentTime}
	for k, v := range transport.Headers(sc) {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", t.writer.Topic, err)
	}
	return nil
}

func (t *sendTransport) Close() error {
	return t.writer.Close()
}

type receiveTransport struct {
	binding *Binding
	group   string
	topics  []string
}

func (t *receiveTransport) Subscribe(ctx context.Context, handler transport.Handler) (transport.Subscription, error) {
	if handler == nil {
		return nil, transport.ErrHandlerRequired
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     t.binding.brokers,
		GroupID:     t.group,
		GroupTopics: t.topics,
		StartOffset: t.binding.startOffset,
		MaxWait:     t.binding.maxWait,
	})
	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{id: uuidx.NewString(), reader: reader, cancel: cancel, done: make(chan struct{})}
	go sub.run(sctx, handler)
	return sub, nil
}

type subscription struct {
	id     string
	reader *kafka.Reader
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
		err = s.reader.Close()
	})
	return err
}

func (s *subscription) run(ctx context.Context, handler transport.Handler) {
	defer close(s.done)
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to fetch message", slogx.Error(err))
			continue
		}
		headers := make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			headers[h.Key] = string(h.Value)
		}
		if err := handler(ctx, transport.DeliveryFrom(m.Value, headers)); err != nil {
			// not committed; the group redelivers it after a rebalance
			slog.Debug("delivery faulted", slog.String("topic", m.Topic), slogx.Error(err))
			continue
		}
		if err := s.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			slog.Error("failed to commit offset",
				slog.String("topic", m.Topic),
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slogx.Error(err),
			)
		}
	}
}
