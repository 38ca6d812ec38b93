package session

import (
	"context"
	"sync"

	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
)

// DeliveryPromise is the single use completion slot for one transfer. It is
// fulfilled exactly once, with the settlement outcome or with an error when
// the session goes away first. Nobody waiting on it is not an error.
type DeliveryPromise struct {
	once sync.Once
	done chan struct{}

	mu         sync.Mutex
	deliveryID protocol.DeliveryNumber
	assigned   bool

	outcome protocol.Outcome
	err     error
}

func newDeliveryPromise() *DeliveryPromise {
	return &DeliveryPromise{done: make(chan struct{})}
}

// fulfill resolves the promise. Only the first call has any effect; it
// reports whether this call was the one that resolved it.
func (p *DeliveryPromise) fulfill(outcome protocol.Outcome, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.outcome = outcome
		p.err = err
		resolved = true
		close(p.done)
	})
	return resolved
}

func (p *DeliveryPromise) assign(id protocol.DeliveryNumber) {
	p.mu.Lock()
	p.deliveryID = id
	p.assigned = true
	p.mu.Unlock()
}

// DeliveryID returns the delivery-id assigned when the transfer was sent.
// ok is false while the transfer is still waiting for flow-control credit.
func (p *DeliveryPromise) DeliveryID() (id protocol.DeliveryNumber, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deliveryID, p.assigned
}

// Done is closed once the promise has been fulfilled.
func (p *DeliveryPromise) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the delivery is settled, the session is torn down or ctx
// is done.
func (p *DeliveryPromise) Wait(ctx context.Context) (protocol.Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the resolution without blocking. resolved is false if the
// promise is still pending.
func (p *DeliveryPromise) Result() (outcome protocol.Outcome, err error, resolved bool) {
	select {
	case <-p.done:
		return p.outcome, p.err, true
	default:
		return nil, nil, false
	}
}

// LinkFuture resolves when the peer answers our Attach.
type LinkFuture struct {
	once sync.Once
	done chan struct{}
	link *SenderLink
	err  error
}

func newLinkFuture() *LinkFuture {
	return &LinkFuture{done: make(chan struct{})}
}

func (f *LinkFuture) resolve(link *SenderLink, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.link = link
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

// Done is closed once the future has resolved.
func (f *LinkFuture) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the link is attached, the session is torn down or ctx is
// done. Giving up on ctx leaves the Attach outstanding; a later answer from
// the peer still establishes the link.
func (f *LinkFuture) Wait(ctx context.Context) (*SenderLink, error) {
	select {
	case <-f.done:
		return f.link, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
