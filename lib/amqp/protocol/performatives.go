package protocol

import "fmt"

// Performative is implemented by every AMQP frame body the session layer handles.
type Performative interface {
	fmt.Stringer
	performative()
}

// Begin starts a session on a channel.
type Begin struct {
	RemoteChannel  *ChannelID
	NextOutgoingID DeliveryNumber
	IncomingWindow uint32
	OutgoingWindow uint32
	HandleMax      *Handle // nil means the protocol default, 2^32-1
}

// Attach negotiates the creation of a link.
type Attach struct {
	Name                 string
	Handle               Handle
	Role                 Role
	SndSettleMode        SenderSettleMode
	RcvSettleMode        ReceiverSettleMode
	Source               *Source
	Target               *Target
	InitialDeliveryCount *uint32
	MaxMessageSize       uint64
}

// Flow updates the session and optionally link flow-control state.
type Flow struct {
	NextIncomingID *DeliveryNumber
	IncomingWindow uint32
	NextOutgoingID DeliveryNumber
	OutgoingWindow uint32
	Handle         *Handle
	DeliveryCount  *uint32
	LinkCredit     *uint32
	Available      *uint32
	Drain          bool
	Echo           bool
}

// Transfer carries one message delivery, or one fragment of it.
type Transfer struct {
	Handle        Handle
	DeliveryID    *DeliveryNumber
	DeliveryTag   []byte
	MessageFormat *uint32
	Settled       *bool
	More          bool
	RcvSettleMode *ReceiverSettleMode
	State         DeliveryState
	Resume        bool
	Aborted       bool
	Batchable     bool
}

// Disposition communicates delivery state for a range of delivery-ids.
type Disposition struct {
	Role      Role
	First     DeliveryNumber
	Last      *DeliveryNumber
	Settled   bool
	State     DeliveryState
	Batchable bool
}

// Detach ends the attachment of a link.
type Detach struct {
	Handle Handle
	Closed bool
	Error  *Error
}

// End ends a session.
type End struct {
	Error *Error
}

func (*Begin) performative()       {}
func (*Attach) performative()      {}
func (*Flow) performative()        {}
func (*Transfer) performative()    {}
func (*Disposition) performative() {}
func (*Detach) performative()      {}
func (*End) performative()         {}

func (b *Begin) String() string {
	return fmt.Sprintf("Begin{NextOutgoingID: %d, IncomingWindow: %d, OutgoingWindow: %d}",
		b.NextOutgoingID, b.IncomingWindow, b.OutgoingWindow)
}

func (a *Attach) String() string {
	address := ""
	if a.Target != nil {
		address = a.Target.Address
	}
	return fmt.Sprintf("Attach{Name: %q, Handle: %d, Role: %s, Target: %q}", a.Name, a.Handle, a.Role, address)
}

func (f *Flow) String() string {
	s := fmt.Sprintf("Flow{NextIncomingID: %s, IncomingWindow: %d, NextOutgoingID: %d, OutgoingWindow: %d",
		formatUint32Ptr(f.NextIncomingID), f.IncomingWindow, f.NextOutgoingID, f.OutgoingWindow)
	if f.Handle != nil {
		s += fmt.Sprintf(", Handle: %d, LinkCredit: %s", *f.Handle, formatUint32Ptr(f.LinkCredit))
	}
	return s + fmt.Sprintf(", Drain: %t, Echo: %t}", f.Drain, f.Echo)
}

func (t *Transfer) String() string {
	return fmt.Sprintf("Transfer{Handle: %d, DeliveryID: %s, DeliveryTag: %x, More: %t}",
		t.Handle, formatUint32Ptr(t.DeliveryID), t.DeliveryTag, t.More)
}

func (d *Disposition) String() string {
	return fmt.Sprintf("Disposition{Role: %s, First: %d, Last: %s, Settled: %t, State: %v}",
		d.Role, d.First, formatUint32Ptr(d.Last), d.Settled, d.State)
}

func (d *Detach) String() string {
	return fmt.Sprintf("Detach{Handle: %d, Closed: %t, Error: %v}", d.Handle, d.Closed, d.Error)
}

func (e *End) String() string {
	return fmt.Sprintf("End{Error: %v}", e.Error)
}

func formatUint32Ptr(v *uint32) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d", *v)
}

// Frame is a performative and its payload tagged with the channel it travels on.
type Frame struct {
	Channel ChannelID
	Body    Performative
	Payload []byte
}

// NewFrame builds a channel tagged frame.
func NewFrame(channel ChannelID, body Performative, payload []byte) Frame {
	return Frame{Channel: channel, Body: body, Payload: payload}
}

func (f Frame) String() string {
	if f.Body == nil {
		return fmt.Sprintf("Frame{Channel: %d, empty}", f.Channel)
	}
	return fmt.Sprintf("Frame{Channel: %d, %s, payload: %d bytes}", f.Channel, f.Body, len(f.Payload))
}
