package session

import (
	"encoding/binary"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-amqp/lib/amqp/message"
	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

const deliveryTagSize = 16

// sendTransfer sends msg on link now if the session has outgoing credit and
// queues it otherwise.
func (e *Engine) sendTransfer(link *SenderLink, msg *message.Message) (*DeliveryPromise, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkUsable(); err != nil {
		return nil, err
	}
	if link.detached {
		return nil, oops.Wrapf(ErrLinkDetached, "link %q", link.name)
	}

	promise := newDeliveryPromise()
	t := pendingTransfer{link: link, message: msg, promise: promise}
	if e.outgoingWindow == 0 {
		e.pendingTransfers.push(t)
		log.WithFields(logger.Fields{
			"at":      "(Engine) sendTransfer",
			"channel": e.id,
			"link":    link.name,
			"pending": e.pendingTransfers.len(),
		}).Debug("no outgoing credit, transfer queued")
		return promise, nil
	}
	transfer, payload := e.prepareTransfer(t)
	e.postFrame(transfer, payload)
	return promise, nil
}

// prepareTransfer consumes one unit of outgoing credit, assigns the next
// delivery-id and registers the promise in the ledger. The ledger entry
// exists before the frame is handed to the connection.
func (e *Engine) prepareTransfer(t pendingTransfer) (*protocol.Transfer, []byte) {
	e.outgoingWindow--
	deliveryID := e.nextOutgoingID
	e.nextOutgoingID++

	format := t.message.MessageFormat()
	settled := false
	transfer := &protocol.Transfer{
		Handle:        t.link.LocalHandle(),
		DeliveryID:    &deliveryID,
		DeliveryTag:   newDeliveryTag(deliveryID),
		MessageFormat: &format,
		Settled:       &settled,
		More:          false,
	}
	t.promise.assign(deliveryID)
	t.link.onTransfer()
	e.unsettled.insert(deliveryID, t.promise)
	return transfer, t.message.Serialize()
}

// newDeliveryTag returns a random 128-bit tag. If the random source fails the
// delivery-id is used instead, which is still unique on the session.
func newDeliveryTag(deliveryID protocol.DeliveryNumber) []byte {
	tag := make([]byte, deliveryTagSize)
	if _, err := rand.Read(tag); err != nil {
		log.WithError(err).Warn("random delivery tag unavailable, using delivery-id")
		clear(tag)
		binary.BigEndian.PutUint32(tag[deliveryTagSize-4:], deliveryID)
	}
	return tag
}
