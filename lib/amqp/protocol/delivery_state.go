package protocol

import "fmt"

// DeliveryState is the state a Disposition or Transfer reports for a delivery.
// Received is the only non-terminal state; the rest are outcomes.
type DeliveryState interface {
	deliveryState()
}

// Outcome is a terminal delivery state.
type Outcome interface {
	DeliveryState
	fmt.Stringer
	outcome()
}

// Received reports partial receipt of a delivery.
type Received struct {
	SectionNumber uint32
	SectionOffset uint64
}

// Accepted means the receiver processed the message successfully.
type Accepted struct{}

// Rejected means the message was invalid and could not be processed.
type Rejected struct {
	Error *Error
}

// Released means the message was not and will not be processed.
type Released struct{}

// Modified means the message was modified but not processed.
type Modified struct {
	DeliveryFailed     bool
	UndeliverableHere  bool
	MessageAnnotations map[string]any
}

func (*Received) deliveryState() {}
func (*Accepted) deliveryState() {}
func (*Rejected) deliveryState() {}
func (*Released) deliveryState() {}
func (*Modified) deliveryState() {}

func (*Accepted) outcome() {}
func (*Rejected) outcome() {}
func (*Released) outcome() {}
func (*Modified) outcome() {}

func (r *Received) String() string {
	return fmt.Sprintf("Received{SectionNumber: %d, SectionOffset: %d}", r.SectionNumber, r.SectionOffset)
}

func (*Accepted) String() string { return "Accepted" }

func (r *Rejected) String() string {
	if r.Error == nil {
		return "Rejected"
	}
	return fmt.Sprintf("Rejected{%s}", r.Error)
}

func (*Released) String() string { return "Released" }

func (m *Modified) String() string {
	return fmt.Sprintf("Modified{DeliveryFailed: %t, UndeliverableHere: %t}", m.DeliveryFailed, m.UndeliverableHere)
}

// OutcomeOf maps a delivery state to the outcome it settles with. A nil state
// defaults to Accepted. Received is not an outcome and yields ok == false.
func OutcomeOf(state DeliveryState) (Outcome, bool) {
	switch s := state.(type) {
	case nil:
		return &Accepted{}, true
	case *Accepted:
		return s, true
	case *Rejected:
		return s, true
	case *Released:
		return s, true
	case *Modified:
		return s, true
	default:
		return nil, false
	}
}
