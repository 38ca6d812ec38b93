package session

import (
	"testing"

	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/stretchr/testify/assert"
)

func TestLedgerRangeKeys(t *testing.T) {
	l := newLedger()
	for _, id := range []protocol.DeliveryNumber{1, 3, 4, 8, 20} {
		l.insert(id, newDeliveryPromise())
	}

	assert.Equal(t, []protocol.DeliveryNumber{3, 4, 8}, l.rangeKeys(2, 8))
	assert.Equal(t, []protocol.DeliveryNumber{20}, l.rangeKeys(20, 20))
	assert.Empty(t, l.rangeKeys(9, 19))
	assert.Empty(t, l.rangeKeys(21, 100))
}

func TestLedgerRangeKeysWrapsSerialSpace(t *testing.T) {
	l := newLedger()
	max := ^protocol.DeliveryNumber(0)
	for _, id := range []protocol.DeliveryNumber{max - 1, max, 0, 1, 50} {
		l.insert(id, newDeliveryPromise())
	}

	assert.Equal(t, []protocol.DeliveryNumber{max - 1, max, 0, 1}, l.rangeKeys(max-1, 1))
	assert.Equal(t, []protocol.DeliveryNumber{max}, l.rangeKeys(max, max))
}

func TestLedgerTakeRemovesOnce(t *testing.T) {
	l := newLedger()
	p := newDeliveryPromise()
	l.insert(5, p)

	got, ok := l.take(5)
	assert.True(t, ok)
	assert.Same(t, p, got)
	_, ok = l.take(5)
	assert.False(t, ok)
	assert.Zero(t, l.len())
}

func TestLedgerDrainIsOrdered(t *testing.T) {
	l := newLedger()
	a, b, c := newDeliveryPromise(), newDeliveryPromise(), newDeliveryPromise()
	l.insert(9, c)
	l.insert(2, a)
	l.insert(5, b)

	assert.Equal(t, []*DeliveryPromise{a, b, c}, l.drain())
	assert.Zero(t, l.len())
}

func TestPromiseFulfillsOnce(t *testing.T) {
	p := newDeliveryPromise()

	assert.True(t, p.fulfill(&protocol.Accepted{}, nil))
	assert.False(t, p.fulfill(nil, ErrDisconnected))

	outcome, err, resolved := p.Result()
	assert.True(t, resolved)
	assert.NoError(t, err)
	assert.IsType(t, &protocol.Accepted{}, outcome)
}

func TestBacklogIsFIFO(t *testing.T) {
	b := newBacklog()
	first := pendingTransfer{promise: newDeliveryPromise()}
	second := pendingTransfer{promise: newDeliveryPromise()}
	b.push(first)
	b.push(second)

	got, ok := b.pop()
	assert.True(t, ok)
	assert.Same(t, first.promise, got.promise)
	got, ok = b.pop()
	assert.True(t, ok)
	assert.Same(t, second.promise, got.promise)
	_, ok = b.pop()
	assert.False(t, ok)
}
