// Package messages holds the data that flows through an endpoint: the contexts passed
// down send, publish and receive pipes, and the envelope a serializer writes to the wire.
//
// Context hierarchy:
//   - SendContext: one outgoing message addressed to a destination
//     └── PublishContext: a SendContext addressed by message type through the publish topology
//   - ReceiveContext: one delivery taken off the input address
//
// Message types are identified by a URN of the form
//
//	urn:message:<package>:<TypeName>
//
// computed by TypeName, unless the message implements Typed and names itself.
package messages
