package session

import (
	"context"
	"sync/atomic"

	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
)

// Session is a handle on a session engine. Handles are cloned with Clone and
// given up with Release; when the last one is released the engine fails its
// outstanding work and the connection reclaims the channel.
type Session struct {
	engine   *Engine
	released atomic.Bool
}

// New returns the first handle on engine.
func New(engine *Engine) *Session {
	engine.refs.Add(1)
	return &Session{engine: engine}
}

// Clone returns another handle on the same session. Cloning a released handle
// returns a handle that is already released.
func (s *Session) Clone() *Session {
	c := &Session{engine: s.engine}
	if s.released.Load() {
		c.released.Store(true)
		return c
	}
	s.engine.refs.Add(1)
	return c
}

// Release gives up this handle. Calling it more than once is harmless.
func (s *Session) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	if s.engine.refs.Add(-1) == 0 {
		s.engine.release()
	}
}

// ID returns the local channel id of the session.
func (s *Session) ID() protocol.ChannelID {
	return s.engine.id
}

// RemoteChannel returns the channel id the peer routes our frames by.
func (s *Session) RemoteChannel() protocol.ChannelID {
	return s.engine.remoteChannel
}

// Engine returns the state machine behind the handle.
func (s *Session) Engine() *Engine {
	return s.engine
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return s.engine.Stats()
}

// OpenSenderLinkAsync sends an Attach for a new sender link to address and
// returns without waiting for the peer.
func (s *Session) OpenSenderLinkAsync(address, name string) (*LinkFuture, error) {
	return s.engine.openSenderLink(address, name)
}

// OpenSenderLink attaches a sender link and waits for the peer's Attach. It
// fails with ErrDisconnected if the session is torn down first.
func (s *Session) OpenSenderLink(ctx context.Context, address, name string) (*SenderLink, error) {
	future, err := s.OpenSenderLinkAsync(address, name)
	if err != nil {
		return nil, err
	}
	return future.Wait(ctx)
}

// Close sends End and returns immediately. Outstanding work is failed when the
// peer's End arrives or when the last handle is released.
func (s *Session) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.engine.end(nil)
	return nil
}
