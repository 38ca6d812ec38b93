package session

import "errors"

var (
	// ErrDisconnected is delivered to pending link opens and unsettled
	// deliveries when the session goes away before they complete.
	ErrDisconnected = errors.New("session disconnected")

	// ErrProtocolViolation marks an inbound frame that does not fit the
	// session state. The connection treats it as fatal for the session.
	ErrProtocolViolation = errors.New("amqp session protocol violation")

	// ErrUnsettledDisposition is returned for a Disposition that does not
	// settle its deliveries. Interim delivery states are not supported.
	ErrUnsettledDisposition = errors.New("unsettled disposition not supported")

	// ErrLinkDetached is returned when sending on a link that has been detached.
	ErrLinkDetached = errors.New("link detached")

	// ErrHandleExhausted is returned when no link handle below handle-max is free.
	ErrHandleExhausted = errors.New("no free link handle")
)

var (
	// ErrSessionEnded is returned for work submitted after End was sent or received.
	ErrSessionEnded = errors.New("session ended")

	// ErrLinkNameInUse is returned when opening a link whose name is still
	// waiting for the peer's Attach.
	ErrLinkNameInUse = errors.New("link name already pending")
)
