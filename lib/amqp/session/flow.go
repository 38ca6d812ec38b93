package session

import (
	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// applyFlow recomputes the outgoing window from the peer's view of the
// session and sends as much of the backlog as the new window allows.
//
//	outgoing-window = next-incoming-id(peer) + incoming-window(peer) - next-outgoing-id
//
// The deliveries in flight (sent but not yet counted by the peer) are taken
// out of the peer's window, so a window of 2^31 or more stays usable.
func (e *Engine) applyFlow(flow *protocol.Flow) {
	var nextIncoming protocol.DeliveryNumber
	if flow.NextIncomingID != nil {
		nextIncoming = *flow.NextIncomingID
	}
	inFlight := e.nextOutgoingID - nextIncoming
	if inFlight > flow.IncomingWindow {
		log.WithFields(logger.Fields{
			"at":               "(Engine) applyFlow",
			"channel":          e.id,
			"next_incoming_id": nextIncoming,
			"incoming_window":  flow.IncomingWindow,
			"next_outgoing_id": e.nextOutgoingID,
		}).Warn("peer window is behind our next-outgoing-id")
		e.outgoingWindow = 0
	} else {
		e.outgoingWindow = flow.IncomingWindow - inFlight
	}
	log.WithFields(logger.Fields{
		"at":      "(Engine) applyFlow",
		"channel": e.id,
		"window":  e.outgoingWindow,
		"pending": e.pendingTransfers.len(),
	}).Debug("session received credit")

	e.drainBacklog()

	if flow.Handle == nil {
		if flow.Echo {
			e.sendFlow()
		}
		return
	}
	key, known := e.remoteHandles[*flow.Handle]
	if !known {
		if flow.Echo {
			e.sendFlow()
		}
		return
	}
	// a link that is closing keeps its handle but takes no more credit
	st, _ := e.links.Get(key)
	established, ok := st.(*linkEstablished)
	if !ok {
		return
	}
	link := established.sender
	link.applyFlow(flow)
	if flow.Drain {
		link.drainCredit()
	}
	if flow.Drain || flow.Echo {
		e.sendLinkFlow(link, flow.Drain)
	}
}

// drainBacklog sends queued transfers in submission order while credit lasts.
func (e *Engine) drainBacklog() {
	for e.outgoingWindow > 0 {
		t, ok := e.pendingTransfers.pop()
		if !ok {
			return
		}
		if t.link.detached {
			t.promise.fulfill(nil, oops.Wrapf(ErrLinkDetached, "link %q detached while transfer was queued", t.link.name))
			continue
		}
		transfer, payload := e.prepareTransfer(t)
		e.postFrame(transfer, payload)
	}
}

func (e *Engine) sessionFlow() *protocol.Flow {
	nextIncoming := e.nextIncomingID
	return &protocol.Flow{
		NextIncomingID: &nextIncoming,
		IncomingWindow: e.incomingWindow,
		NextOutgoingID: e.nextOutgoingID,
		OutgoingWindow: e.outgoingWindow,
	}
}

// sendFlow advertises the session windows. Link fields stay empty.
func (e *Engine) sendFlow() {
	e.postFrame(e.sessionFlow(), nil)
}

// sendLinkFlow reports a link's state back to the receiver, after a drain or
// when the receiver asked for an echo. Available counts the link's transfers
// still waiting for session window.
func (e *Engine) sendLinkFlow(link *SenderLink, drain bool) {
	flow := e.sessionFlow()
	handle := link.LocalHandle()
	count := link.deliveryCount
	credit := link.linkCredit
	available := uint32(e.pendingTransfers.countFor(link))
	flow.Handle = &handle
	flow.DeliveryCount = &count
	flow.LinkCredit = &credit
	flow.Available = &available
	flow.Drain = drain
	e.postFrame(flow, nil)
}
