package loopback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-i2p/go-amqp/lib/amqp/connection"
	"github.com/go-i2p/go-amqp/lib/amqp/message"
	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/go-amqp/lib/amqp/session"
	"github.com/go-i2p/go-amqp/lib/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPeer connects a Mux to a running peer and returns both.
func startPeer(t *testing.T, mutate func(*config.ConfigDefaults)) (*connection.Mux, *Peer) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Connection.BeginTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	peer := NewPeer(cfg.Loopback)
	mux := connection.NewMux(peer, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- peer.Run(ctx, mux) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return mux, peer
}

func openLink(t *testing.T, mux *connection.Mux, name string) (*session.Session, *session.SenderLink) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := mux.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	link, err := s.OpenSenderLink(ctx, "queue/"+name, name)
	require.NoError(t, err)
	return s, link
}

func TestSendAcceptedThroughPeer(t *testing.T) {
	mux, peer := startPeer(t, nil)
	_, link := openLink(t, mux, "orders")

	assert.Equal(t, protocol.Handle(0), link.Handle())
	require.Eventually(t, func() bool { return link.Credit() == 100 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		outcome, err := link.SendAndWait(ctx, message.New([]byte("hello")))
		require.NoError(t, err)
		assert.IsType(t, &protocol.Accepted{}, outcome)
	}
	assert.Equal(t, uint64(5), peer.Received())
}

func TestSmallWindowIsRefilled(t *testing.T) {
	mux, peer := startPeer(t, func(cfg *config.ConfigDefaults) {
		cfg.Loopback.IncomingWindow = 2
		cfg.Loopback.LinkCredit = 2
		cfg.Loopback.GrantRate = 1000
	})
	s, link := openLink(t, mux, "small")

	var promises []*session.DeliveryPromise
	for i := 0; i < 7; i++ {
		p, err := link.Send(message.New([]byte{byte(i)}))
		require.NoError(t, err)
		promises = append(promises, p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i, p := range promises {
		outcome, err := p.Wait(ctx)
		require.NoErrorf(t, err, "delivery %d", i)
		assert.IsType(t, &protocol.Accepted{}, outcome)
		id, ok := p.DeliveryID()
		require.True(t, ok)
		assert.Equal(t, protocol.DeliveryNumber(i+1), id, "ids follow send order")
	}
	assert.Equal(t, uint64(7), peer.Received())
	assert.Equal(t, 0, s.Stats().PendingTransfers)
	assert.Equal(t, 0, s.Stats().Unsettled)
}

func TestConfiguredOutcome(t *testing.T) {
	mux, _ := startPeer(t, func(cfg *config.ConfigDefaults) {
		cfg.Loopback.Outcome = "rejected"
	})
	_, link := openLink(t, mux, "rejects")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := link.SendAndWait(ctx, message.New([]byte("bad")))
	require.NoError(t, err)
	rejected, ok := outcome.(*protocol.Rejected)
	require.True(t, ok)
	require.NotNil(t, rejected.Error)
	assert.Equal(t, protocol.ErrCondNotAllowed, rejected.Error.Condition)
}

func TestLinkCloseAndSessionEnd(t *testing.T) {
	mux, _ := startPeer(t, nil)
	s, link := openLink(t, mux, "closing")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, link.Close(ctx))
	_, err := link.Send(message.New([]byte("late")))
	assert.True(t, errors.Is(err, session.ErrLinkDetached))

	require.NoError(t, s.Close(ctx))
	_, err = s.OpenSenderLink(ctx, "queue/x", "x")
	assert.Error(t, err)
}

func TestParseOutcome(t *testing.T) {
	assert.IsType(t, &protocol.Accepted{}, ParseOutcome("accepted"))
	assert.IsType(t, &protocol.Accepted{}, ParseOutcome("bogus"))
	assert.IsType(t, &protocol.Released{}, ParseOutcome("Released"))
	assert.IsType(t, &protocol.Rejected{}, ParseOutcome("rejected"))
	modified, ok := ParseOutcome("modified").(*protocol.Modified)
	require.True(t, ok)
	assert.True(t, modified.DeliveryFailed)
}

func TestWriteAfterClose(t *testing.T) {
	peer := NewPeer(config.Defaults().Loopback)
	require.NoError(t, peer.Close())
	err := peer.WriteFrame(protocol.NewFrame(0, &protocol.End{}, nil))
	assert.True(t, errors.Is(err, ErrPeerClosed))
}
