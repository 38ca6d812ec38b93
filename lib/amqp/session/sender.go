package session

import (
	"context"

	"github.com/go-i2p/go-amqp/lib/amqp/message"
	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/go-amqp/lib/util/slab"
)

// SenderLink is an attached outgoing link. Its credit fields are guarded by
// the owning engine's mutex.
type SenderLink struct {
	engine       *Engine
	key          slab.Key
	name         string
	address      string
	remoteHandle protocol.Handle

	deliveryCount uint32
	linkCredit    uint32

	detached  bool
	detachErr *protocol.Error
}

func newSenderLink(e *Engine, key slab.Key, name, address string, remoteHandle protocol.Handle) *SenderLink {
	return &SenderLink{
		engine:       e,
		key:          key,
		name:         name,
		address:      address,
		remoteHandle: remoteHandle,
	}
}

// Name returns the link name used in Attach.
func (l *SenderLink) Name() string { return l.name }

// Address returns the target address.
func (l *SenderLink) Address() string { return l.address }

// Handle returns the handle the peer assigned to this link in its Attach.
func (l *SenderLink) Handle() protocol.Handle { return l.remoteHandle }

// LocalHandle returns the handle this session allocated for the link. It is
// the handle stamped on outgoing Transfer and Detach frames.
func (l *SenderLink) LocalHandle() protocol.Handle { return l.key.Index }

// Credit returns the link credit most recently granted by the peer, less the
// transfers sent since.
func (l *SenderLink) Credit() uint32 {
	l.engine.mu.Lock()
	defer l.engine.mu.Unlock()
	return l.linkCredit
}

// Detached reports whether the link has been detached, and the error the peer
// gave, if any.
func (l *SenderLink) Detached() (bool, *protocol.Error) {
	l.engine.mu.Lock()
	defer l.engine.mu.Unlock()
	return l.detached, l.detachErr
}

// Send queues msg for transfer. The returned promise resolves when the peer
// settles the delivery. Without session credit the transfer waits in the
// backlog and the promise stays pending until a Flow frees it.
func (l *SenderLink) Send(msg *message.Message) (*DeliveryPromise, error) {
	return l.engine.sendTransfer(l, msg)
}

// SendAndWait sends msg and waits for its outcome.
func (l *SenderLink) SendAndWait(ctx context.Context, msg *message.Message) (protocol.Outcome, error) {
	p, err := l.Send(msg)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Close detaches the link with closed set and waits for the peer's Detach.
func (l *SenderLink) Close(ctx context.Context) error {
	done, err := l.engine.detachLink(l)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyFlow records link credit from a link-level Flow. The receiver grants
// link-credit counted from its delivery-count; transfers it has not seen yet
// are in flight and use part of the grant.
func (l *SenderLink) applyFlow(f *protocol.Flow) {
	if f.LinkCredit == nil {
		return
	}
	receiverCount := l.deliveryCount
	if f.DeliveryCount != nil {
		receiverCount = *f.DeliveryCount
	}
	inFlight := l.deliveryCount - receiverCount
	if inFlight > *f.LinkCredit {
		l.linkCredit = 0
		return
	}
	l.linkCredit = *f.LinkCredit - inFlight
}

// drainCredit uses up the remaining credit as a drain request asks. The
// delivery-count advances by the credit given up.
func (l *SenderLink) drainCredit() {
	l.deliveryCount += l.linkCredit
	l.linkCredit = 0
}

// onTransfer advances the delivery-count for one sent transfer.
func (l *SenderLink) onTransfer() {
	l.deliveryCount++
	if l.linkCredit > 0 {
		l.linkCredit--
	}
}
