package session

import (
	"github.com/eapache/queue"

	"github.com/go-i2p/go-amqp/lib/amqp/message"
)

// pendingTransfer is a transfer that is ready to go except for its
// delivery-id, held until the session has outgoing credit.
type pendingTransfer struct {
	link    *SenderLink
	message *message.Message
	promise *DeliveryPromise
}

// backlog is the FIFO of transfers blocked on flow-control credit.
type backlog struct {
	q *queue.Queue
}

func newBacklog() *backlog {
	return &backlog{q: queue.New()}
}

func (b *backlog) push(t pendingTransfer) {
	b.q.Add(t)
}

func (b *backlog) pop() (pendingTransfer, bool) {
	if b.q.Length() == 0 {
		return pendingTransfer{}, false
	}
	return b.q.Remove().(pendingTransfer), true
}

// countFor returns how many queued transfers belong to link.
func (b *backlog) countFor(link *SenderLink) int {
	n := 0
	for i := 0; i < b.q.Length(); i++ {
		if b.q.Get(i).(pendingTransfer).link == link {
			n++
		}
	}
	return n
}

func (b *backlog) len() int {
	return b.q.Length()
}
