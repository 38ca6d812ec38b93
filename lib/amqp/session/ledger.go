package session

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
)

// ledger maps delivery-id to the promise waiting for its settlement, ordered
// by delivery-id.
type ledger struct {
	entries *treemap.Map
}

func newLedger() *ledger {
	return &ledger{entries: treemap.NewWith(utils.UInt32Comparator)}
}

// insert registers a promise. A delivery-id is only ever inserted once.
func (l *ledger) insert(id protocol.DeliveryNumber, p *DeliveryPromise) {
	l.entries.Put(id, p)
}

// take removes and returns the promise for id.
func (l *ledger) take(id protocol.DeliveryNumber) (*DeliveryPromise, bool) {
	v, found := l.entries.Get(id)
	if !found {
		return nil, false
	}
	l.entries.Remove(id)
	return v.(*DeliveryPromise), true
}

// contains reports whether id is still unsettled.
func (l *ledger) contains(id protocol.DeliveryNumber) bool {
	_, found := l.entries.Get(id)
	return found
}

// rangeKeys returns the tracked delivery-ids in the inclusive range
// [first, last], in ascending order. A range whose last precedes first has
// wrapped around the serial number space.
func (l *ledger) rangeKeys(first, last protocol.DeliveryNumber) []protocol.DeliveryNumber {
	if last < first {
		keys := l.collect(first, ^protocol.DeliveryNumber(0))
		return append(keys, l.collect(0, last)...)
	}
	return l.collect(first, last)
}

func (l *ledger) collect(first, last protocol.DeliveryNumber) []protocol.DeliveryNumber {
	var keys []protocol.DeliveryNumber
	cursor := first
	for {
		k, _ := l.entries.Ceiling(cursor)
		if k == nil {
			return keys
		}
		id := k.(protocol.DeliveryNumber)
		if id > last {
			return keys
		}
		keys = append(keys, id)
		if id == last {
			return keys
		}
		cursor = id + 1
	}
}

// drain removes every entry and returns the promises in delivery-id order.
func (l *ledger) drain() []*DeliveryPromise {
	promises := make([]*DeliveryPromise, 0, l.entries.Size())
	it := l.entries.Iterator()
	for it.Next() {
		promises = append(promises, it.Value().(*DeliveryPromise))
	}
	l.entries.Clear()
	return promises
}

func (l *ledger) len() int {
	return l.entries.Size()
}
