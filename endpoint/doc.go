// Package endpoint is the composition root of a receiving endpoint.
//
// A Context is created per configured endpoint from a Configuration and a
// transport.Binding. Construction only captures the configuration: the send, publish
// and receive pipes, the serializer, the two transport providers and the send and
// publish endpoint providers are all built on first use, exactly once, and only
// together with what they genuinely depend on. Asking for the send endpoint provider
// never builds anything on the publish side.
//
// Observers are attached per channel and detached with the returned handle:
//
//	h := ctx.ConnectSendObserver(observer.Logging(slog.Default()))
//	defer h.Detach()
//
//	provider, err := ctx.SendEndpointProvider()
//	if err != nil {
//	    return err
//	}
//	ep, err := provider.GetSendEndpoint(reqCtx, destination)
//	if err != nil {
//	    return err
//	}
//	err = ep.Send(reqCtx, OrderSubmitted{ID: "42"}, endpoint.WithCorrelationID(id))
//
// A ReceiveEndpoint runs the receive side: it subscribes to the binding's receive
// transport for the input address and pushes every delivery through the receive pipe,
// where Consumer filters decode and handle the messages they are registered for.
//
// Failures to build a lazily constructed part are returned to the caller that asked
// for it. Whether the next call builds again is decided by the lazy.Policy of the
// context (retry by default).
package endpoint
