// Package protocol defines the AMQP 1.0 performatives and delivery states the
// session layer interprets.
//
// The types here are plain values. Encoding them to and from the wire is the
// job of the frame codec, which lives outside this module; the session engine
// only reads and writes the fields documented on each performative.
//
// Main components:
//   - Frame: a performative plus payload tagged with the channel it travels on
//   - Attach, Begin, Flow, Transfer, Disposition, Detach, End: performatives
//   - DeliveryState and Outcome: settlement results carried by Disposition
package protocol
