package session

import (
	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// settleDeliveries resolves every tracked delivery in the Disposition's
// inclusive range with its outcome. Ids without a ledger entry were already
// settled or never sent on this session and are skipped.
func (e *Engine) settleDeliveries(disposition *protocol.Disposition) error {
	if !disposition.Settled {
		return oops.Wrapf(ErrUnsettledDisposition, "disposition for delivery %d", disposition.First)
	}
	first := disposition.First
	last := first
	if disposition.Last != nil {
		last = *disposition.Last
	}

	outcome, ok := protocol.OutcomeOf(disposition.State)
	if !ok {
		log.WithFields(logger.Fields{
			"at":      "(Engine) settleDeliveries",
			"channel": e.id,
			"first":   first,
			"last":    last,
			"state":   disposition.State,
		}).Debug("ignoring non-terminal delivery state")
		return nil
	}

	settled := 0
	for _, id := range e.unsettled.rangeKeys(first, last) {
		promise, _ := e.unsettled.take(id)
		if promise.fulfill(outcome, nil) {
			settled++
		}
	}
	log.WithFields(logger.Fields{
		"at":      "(Engine) settleDeliveries",
		"channel": e.id,
		"first":   first,
		"last":    last,
		"outcome": outcome.String(),
		"settled": settled,
	}).Debug("deliveries settled")
	return nil
}
