package protocol

// Handle is the link handle agreed on by Attach.
type Handle = uint32

// DeliveryNumber is the session scoped delivery identifier (delivery-id).
type DeliveryNumber = uint32

// ChannelID identifies a session on a connection.
type ChannelID = uint16

// Role of a link endpoint.
type Role bool

const (
	RoleSender   Role = false
	RoleReceiver Role = true
)

func (r Role) String() string {
	if r == RoleReceiver {
		return "receiver"
	}
	return "sender"
}

// SenderSettleMode specifies how the sender will settle messages.
type SenderSettleMode uint8

// Sender Settlement Modes
const (
	// Sender will send all deliveries initially unsettled to the receiver.
	ModeUnsettled SenderSettleMode = 0

	// Sender will send all deliveries settled to the receiver.
	ModeSettled SenderSettleMode = 1

	// Sender MAY send a mixture of settled and unsettled deliveries to the receiver.
	ModeMixed SenderSettleMode = 2
)

// ReceiverSettleMode specifies how the receiver will settle messages.
type ReceiverSettleMode uint8

// Receiver Settlement Modes
const (
	// Receiver will spontaneously settle all incoming transfers.
	ModeFirst ReceiverSettleMode = 0

	// Receiver will only settle after sending the disposition to the
	// sender and receiving a disposition indicating settlement of
	// the delivery from the sender.
	ModeSecond ReceiverSettleMode = 1
)

// Durability specifies the durability of a terminus.
type Durability uint32

// Durability Policies
const (
	// No terminus state is retained durably.
	DurabilityNone Durability = 0

	// Only the existence and configuration of the terminus is
	// retained durably.
	DurabilityConfiguration Durability = 1

	// In addition to the existence and configuration of the
	// terminus, the unsettled state for durable messages is
	// retained durably.
	DurabilityUnsettledState Durability = 2
)

// ExpiryPolicy specifies when the expiry timer of a terminus
// starts counting down from the timeout value.
type ExpiryPolicy string

// Expiry Policies
const (
	ExpiryLinkDetach      ExpiryPolicy = "link-detach"
	ExpirySessionEnd      ExpiryPolicy = "session-end"
	ExpiryConnectionClose ExpiryPolicy = "connection-close"
	ExpiryNever           ExpiryPolicy = "never"
)

// Target is the terminus a sender link delivers to.
type Target struct {
	Address      string
	Durable      Durability
	ExpiryPolicy ExpiryPolicy
	Timeout      uint32
	Dynamic      bool
	Capabilities []string
}

// Source is the terminus a link consumes from.
type Source struct {
	Address      string
	Durable      Durability
	ExpiryPolicy ExpiryPolicy
	Timeout      uint32
	Dynamic      bool
}

// Error is the AMQP error condition carried by Detach and End.
type Error struct {
	Condition   string
	Description string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Description == "" {
		return e.Condition
	}
	return e.Condition + ": " + e.Description
}

// Well known error conditions used by the session layer.
const (
	ErrCondInternalError    = "amqp:internal-error"
	ErrCondNotAllowed       = "amqp:not-allowed"
	ErrCondUnattachedHandle = "amqp:session:unattached-handle"
	ErrCondHandleInUse      = "amqp:session:handle-in-use"
	ErrCondDetachForced     = "amqp:link:detach-forced"
)
