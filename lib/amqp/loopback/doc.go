// Package loopback provides an in-process AMQP peer.
//
// The peer accepts every session and sender link, settles each transfer with
// a configured outcome and hands out session window and link credit, paced by
// a rate limiter. It is used by the demo CLI and by tests that want a live
// counterpart without a network.
package loopback
