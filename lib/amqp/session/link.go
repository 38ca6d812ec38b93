package session

import (
	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// openSenderLink allocates a link slot, records the pending name and sends
// our Attach. The future resolves when the peer's Attach arrives.
func (e *Engine) openSenderLink(address, name string) (*LinkFuture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkUsable(); err != nil {
		return nil, err
	}
	if _, dup := e.pendingLinks[name]; dup {
		return nil, oops.Wrapf(ErrLinkNameInUse, "link %q", name)
	}
	if uint64(e.links.Len()) > uint64(e.handleMax) {
		return nil, oops.Wrapf(ErrHandleExhausted, "handle-max %d", e.handleMax)
	}

	future := newLinkFuture()
	key := e.links.Insert(&linkOpening{name: name, address: address, future: future})
	e.pendingLinks[name] = key

	initialDeliveryCount := uint32(0)
	attach := &protocol.Attach{
		Name:          name,
		Handle:        key.Index,
		Role:          protocol.RoleSender,
		SndSettleMode: protocol.ModeMixed,
		RcvSettleMode: protocol.ModeFirst,
		Target: &protocol.Target{
			Address:      address,
			Durable:      protocol.DurabilityNone,
			ExpiryPolicy: protocol.ExpirySessionEnd,
		},
		InitialDeliveryCount: &initialDeliveryCount,
	}
	log.WithFields(logger.Fields{
		"at":      "(Engine) openSenderLink",
		"channel": e.id,
		"name":    name,
		"address": address,
		"handle":  key.Index,
	}).Debug("opening sender link")
	e.postFrame(attach, nil)
	return future, nil
}

// completeLinkCreation matches the peer's Attach against a pending link.
func (e *Engine) completeLinkCreation(attach *protocol.Attach) error {
	key, ok := e.pendingLinks[attach.Name]
	if !ok {
		// receiver-initiated links are not supported yet
		log.WithFields(logger.Fields{
			"at":      "(Engine) completeLinkCreation",
			"channel": e.id,
			"name":    attach.Name,
			"handle":  attach.Handle,
		}).Debug("ignoring unsolicited attach")
		return nil
	}
	delete(e.pendingLinks, attach.Name)

	st, ok := e.links.Get(key)
	opening, isOpening := st.(*linkOpening)
	if !ok || !isOpening {
		return oops.Wrapf(ErrProtocolViolation, "attach %q for link slot %d that is not opening", attach.Name, key.Index)
	}
	if _, inUse := e.remoteHandles[attach.Handle]; inUse {
		opening.future.resolve(nil, oops.Wrapf(ErrProtocolViolation, "peer reused handle %d", attach.Handle))
		e.links.Remove(key)
		return oops.Wrapf(ErrProtocolViolation, "attach %q reuses remote handle %d", attach.Name, attach.Handle)
	}

	sender := newSenderLink(e, key, opening.name, opening.address, attach.Handle)
	e.links.Replace(key, &linkEstablished{sender: sender})
	e.remoteHandles[attach.Handle] = key
	opening.future.resolve(sender, nil)

	log.WithFields(logger.Fields{
		"at":            "(Engine) completeLinkCreation",
		"channel":       e.id,
		"name":          attach.Name,
		"local_handle":  key.Index,
		"remote_handle": attach.Handle,
	}).Debug("sender link opened")
	return nil
}

// detachLink starts a local close of an established link.
func (e *Engine) detachLink(l *SenderLink) (<-chan error, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkUsable(); err != nil {
		return nil, err
	}
	st, ok := e.links.Get(l.key)
	if _, established := st.(*linkEstablished); !ok || !established {
		return nil, oops.Wrapf(ErrLinkDetached, "link %q", l.name)
	}

	done := make(chan error, 1)
	e.links.Replace(l.key, &linkClosing{sender: l, done: done})
	l.detached = true
	e.postFrame(&protocol.Detach{Handle: l.key.Index, Closed: true}, nil)
	return done, nil
}

// handleDetach processes the peer's Detach: either the answer to our own
// close, or a detach the peer initiated, which we echo.
func (e *Engine) handleDetach(detach *protocol.Detach) error {
	key, ok := e.remoteHandles[detach.Handle]
	if !ok {
		return oops.Wrapf(ErrProtocolViolation, "detach for unattached handle %d", detach.Handle)
	}
	st, _ := e.links.Get(key)
	delete(e.remoteHandles, detach.Handle)
	e.links.Remove(key)

	fields := logger.Fields{
		"at":            "(Engine) handleDetach",
		"channel":       e.id,
		"remote_handle": detach.Handle,
		"closed":        detach.Closed,
		"error":         detach.Error,
	}

	switch s := st.(type) {
	case *linkEstablished:
		s.sender.detached = true
		s.sender.detachErr = detach.Error
		e.postFrame(&protocol.Detach{Handle: key.Index, Closed: detach.Closed}, nil)
		log.WithFields(fields).Debug("peer detached link")
	case *linkClosing:
		s.sender.detachErr = detach.Error
		var err error
		if detach.Error != nil {
			err = oops.Wrapf(ErrLinkDetached, "peer closed link %q with %s", s.sender.name, detach.Error)
		}
		s.done <- err
		log.WithFields(fields).Debug("link close completed")
	}
	return nil
}
