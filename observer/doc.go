// Package observer implements the event channels of a receive endpoint.
//
// Five channels exist, each with its own observer interface:
//   - SendObserver: a message was handed to, or rejected by, a send transport
//   - PublishObserver: the same for messages published by type
//   - ReceiveObserver: a delivery was received, consumed, or failed
//   - ReceiveTransportObserver: the receive transport became ready, stopped, or faulted
//   - ReceiveEndpointObserver: the endpoint as a whole became ready, stopped, or faulted
//
// Each channel is an Observable wrapping a Channel. Connecting returns a Handle;
// detaching one observer never affects another channel or another observer.
//
// The method names differ across the five interfaces, so a single type (see Logging)
// can observe every channel at once.
//
// Example usage:
//
//	sends := observer.NewSendObservable()
//	h := sends.Connect(observer.Logging(slog.Default()))
//	defer h.Detach()
package observer
