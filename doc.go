/*
Package roost assembles message endpoints on top of pluggable broker bindings.

An endpoint receives on one input address, sends to explicit destination addresses and
publishes to addresses derived from the message type. Everything it needs (pipes,
serializer, transport providers, send and publish endpoint providers) is built on first
use by an endpoint.Context, so constructing an endpoint never contacts a broker.

# Basic Usage

	ep, err := roost.New(
		roost.WithBinding(inmemory.New(nil)),
		roost.WithInput("loopback://localhost/orders"),
		roost.WithHost("loopback://localhost"),
		roost.WithObservers(observer.Logging(slog.Default())),
	)
	if err != nil {
		return err
	}

	err = roost.Consume(ep, "orders", func(ctx context.Context, m OrderSubmitted, rc *messages.ReceiveContext) error {
		return nil
	})

	if err := ep.Start(ctx); err != nil {
		return err
	}
	defer ep.Close()

	err = ep.Publish(ctx, OrderSubmitted{ID: "42"})

# Bindings

A binding maps addresses onto broker entities. The module ships bindings for an
in-process hub (transport/inmemory), NATS, RabbitMQ, Kafka and Redis streams. Bindings
that implement transport.Router let Start bind the publish address of every consumed
message type to the input address.

# Configuration

FromConfig builds an endpoint from a config.Config loaded from YAML:

	cfg, err := config.Load("roost.yaml")
	ep, err := roost.FromConfig(cfg)

# Observability

Observers are attached per channel (send, publish, receive, receive transport, receive
endpoint). observer.Logging writes slog records and metrics.New records Prometheus
metrics; both implement every channel.
*/
package roost
