// Package connection multiplexes AMQP sessions over one frame transport.
//
// The Mux owns channel allocation and the Begin handshake, serializes every
// outbound frame onto a FrameWriter and routes inbound frames to the session
// engine bound to their channel. Sessions hand channels back through
// DropSession when their last handle is released.
package connection
