package session

import (
	"sync"
	"sync/atomic"

	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/go-amqp/lib/config"
	"github.com/go-i2p/go-amqp/lib/util/slab"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// Connection is the part of the connection the session writes through.
type Connection interface {
	// PostFrame hands a frame to the transport. It must preserve submission
	// order and must not call back into the session.
	PostFrame(frame protocol.Frame)

	// DropSession tells the connection the session is gone so the channel id
	// can be reused. Called exactly once per session.
	DropSession(id protocol.ChannelID)
}

// Engine is the session state machine. It is shared by every Session handle
// clone, every SenderLink and the connection's frame dispatcher; mu
// serializes all of them.
type Engine struct {
	mu sync.Mutex

	id            protocol.ChannelID
	remoteChannel protocol.ChannelID
	conn          Connection
	handleMax     uint32

	nextOutgoingID protocol.DeliveryNumber
	outgoingWindow uint32
	nextIncomingID protocol.DeliveryNumber
	incomingWindow uint32

	unsettled        *ledger
	links            slab.Slab[linkState]
	pendingLinks     map[string]slab.Key
	remoteHandles    map[protocol.Handle]slab.Key
	pendingTransfers *backlog

	endSent     bool
	endReceived bool
	released    bool

	refs     atomic.Int32
	dropOnce sync.Once
}

// NewEngine creates the engine for a session whose Begin exchange has
// completed. remote is the peer's Begin: its incoming-window is our initial
// outgoing credit and its next-outgoing-id seeds our next-incoming-id.
func NewEngine(id protocol.ChannelID, conn Connection, remoteChannel protocol.ChannelID, remote *protocol.Begin, cfg config.SessionDefaults) *Engine {
	e := &Engine{
		id:               id,
		remoteChannel:    remoteChannel,
		conn:             conn,
		handleMax:        cfg.HandleMax,
		nextOutgoingID:   cfg.InitialOutgoingID,
		incomingWindow:   cfg.IncomingWindow,
		unsettled:        newLedger(),
		pendingLinks:     make(map[string]slab.Key),
		remoteHandles:    make(map[protocol.Handle]slab.Key),
		pendingTransfers: newBacklog(),
	}
	if remote != nil {
		e.outgoingWindow = remote.IncomingWindow
		e.nextIncomingID = remote.NextOutgoingID
		if remote.HandleMax != nil {
			e.handleMax = min(e.handleMax, *remote.HandleMax)
		}
	}
	log.WithFields(logger.Fields{
		"at":              "NewEngine",
		"channel":         id,
		"remote_channel":  remoteChannel,
		"outgoing_window": e.outgoingWindow,
		"incoming_window": e.incomingWindow,
	}).Debug("session engine created")
	return e
}

// ID returns the local channel id.
func (e *Engine) ID() protocol.ChannelID {
	return e.id
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	NextOutgoingID   protocol.DeliveryNumber
	OutgoingWindow   uint32
	NextIncomingID   protocol.DeliveryNumber
	IncomingWindow   uint32
	Unsettled        int
	PendingTransfers int
	Links            int
	PendingLinks     int
}

// Stats returns a snapshot of the flow-control and bookkeeping state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		NextOutgoingID:   e.nextOutgoingID,
		OutgoingWindow:   e.outgoingWindow,
		NextIncomingID:   e.nextIncomingID,
		IncomingWindow:   e.incomingWindow,
		Unsettled:        e.unsettled.len(),
		PendingTransfers: e.pendingTransfers.len(),
		Links:            e.links.Len(),
		PendingLinks:     len(e.pendingLinks),
	}
}

// HandleFrame dispatches one inbound performative addressed to this session.
// A returned error wrapping ErrProtocolViolation is fatal for the session;
// ErrUnsettledDisposition rejects only the offending frame.
func (e *Engine) HandleFrame(frame protocol.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return oops.Wrapf(ErrDisconnected, "frame for released session %d", e.id)
	}
	if e.endReceived {
		return oops.Wrapf(ErrProtocolViolation, "%s received after End on channel %d", frame.Body, e.id)
	}

	switch body := frame.Body.(type) {
	case *protocol.Attach:
		return e.completeLinkCreation(body)
	case *protocol.Disposition:
		return e.settleDeliveries(body)
	case *protocol.Flow:
		e.applyFlow(body)
		return nil
	case *protocol.Detach:
		return e.handleDetach(body)
	case *protocol.End:
		e.handleEnd(body)
		return nil
	default:
		log.WithFields(logger.Fields{
			"at":      "(Engine) HandleFrame",
			"channel": e.id,
			"frame":   frame.String(),
		}).Debug("ignoring frame")
		return nil
	}
}

func (e *Engine) postFrame(body protocol.Performative, payload []byte) {
	e.conn.PostFrame(protocol.NewFrame(e.remoteChannel, body, payload))
}

// checkUsable reports why new work cannot be accepted, if it cannot.
func (e *Engine) checkUsable() error {
	switch {
	case e.released:
		return oops.Wrapf(ErrDisconnected, "session %d released", e.id)
	case e.endSent || e.endReceived:
		return oops.Wrapf(ErrSessionEnded, "session %d", e.id)
	}
	return nil
}

// end sends End unless one was already sent.
func (e *Engine) end(cause *protocol.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendEnd(cause)
}

func (e *Engine) sendEnd(cause *protocol.Error) {
	if e.endSent || e.released {
		return
	}
	e.endSent = true
	e.postFrame(&protocol.End{Error: cause}, nil)
	log.WithFields(logger.Fields{
		"at":      "(Engine) sendEnd",
		"channel": e.id,
		"error":   cause,
	}).Debug("session end sent")
}

// Fail ends the session with an error condition and fails all outstanding
// work. The connection calls it after HandleFrame reports a protocol violation.
func (e *Engine) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	log.WithError(err).WithField("channel", e.id).Warn("session failed")
	e.sendEnd(&protocol.Error{Condition: protocol.ErrCondNotAllowed, Description: err.Error()})
	e.endReceived = true
	e.failAll(oops.Wrapf(ErrDisconnected, "session %d failed: %s", e.id, err))
}

// Disconnect fails all outstanding work after the transport is lost. Nothing
// is posted; the session only waits for its handles to be released.
func (e *Engine) Disconnect(cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	e.endSent = true
	e.endReceived = true
	e.failAll(oops.Wrapf(ErrDisconnected, "session %d: %s", e.id, cause))
}

func (e *Engine) handleEnd(end *protocol.End) {
	e.endReceived = true
	cause := oops.Wrapf(ErrDisconnected, "session %d ended by peer", e.id)
	if end.Error != nil {
		cause = oops.Wrapf(ErrDisconnected, "session %d ended by peer: %s", e.id, end.Error)
	}
	log.WithFields(logger.Fields{
		"at":      "(Engine) handleEnd",
		"channel": e.id,
		"error":   end.Error,
	}).Debug("peer ended session")
	e.failAll(cause)
	e.sendEnd(nil)
}

// release tears the engine down once the last Session handle is gone.
func (e *Engine) release() {
	e.mu.Lock()
	if !e.released {
		e.released = true
		e.failAll(oops.Wrapf(ErrDisconnected, "session %d released", e.id))
	}
	e.mu.Unlock()

	e.dropOnce.Do(func() {
		log.WithField("channel", e.id).Debug("dropping session")
		e.conn.DropSession(e.id)
	})
}

// failAll resolves every outstanding promise, link open and link close with
// err and empties the link table.
func (e *Engine) failAll(err error) {
	unsettled := e.unsettled.drain()
	for _, p := range unsettled {
		p.fulfill(nil, err)
	}
	queued := 0
	for {
		t, ok := e.pendingTransfers.pop()
		if !ok {
			break
		}
		t.promise.fulfill(nil, err)
		queued++
	}

	var keys []slab.Key
	e.links.Range(func(key slab.Key, st linkState) bool {
		keys = append(keys, key)
		switch s := st.(type) {
		case *linkOpening:
			s.future.resolve(nil, err)
		case *linkEstablished:
			s.sender.detached = true
		case *linkClosing:
			s.sender.detached = true
			s.done <- err
		}
		return true
	})
	for _, key := range keys {
		e.links.Remove(key)
	}
	clear(e.pendingLinks)
	clear(e.remoteHandles)

	if len(unsettled) > 0 || queued > 0 || len(keys) > 0 {
		log.WithFields(logger.Fields{
			"at":        "(Engine) failAll",
			"channel":   e.id,
			"unsettled": len(unsettled),
			"queued":    queued,
			"links":     len(keys),
		}).Debug("failed outstanding session work")
	}
}
