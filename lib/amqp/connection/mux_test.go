package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/go-amqp/lib/amqp/session"
	"github.com/go-i2p/go-amqp/lib/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames []protocol.Frame
	err    error
}

func (w *recordingWriter) WriteFrame(frame protocol.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, frame)
	return w.err
}

func (w *recordingWriter) snapshot() []protocol.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]protocol.Frame(nil), w.frames...)
}

// lastBegin returns the most recent Begin we wrote, if any.
func (w *recordingWriter) lastBegin() (protocol.Frame, bool) {
	frames := w.snapshot()
	for i := len(frames) - 1; i >= 0; i-- {
		if _, ok := frames[i].Body.(*protocol.Begin); ok {
			return frames[i], true
		}
	}
	return protocol.Frame{}, false
}

func testDefaults() config.ConfigDefaults {
	cfg := config.Defaults()
	cfg.Connection.BeginTimeout = time.Second
	return cfg
}

// begin runs Mux.Begin and answers it from peerChannel.
func begin(t *testing.T, m *Mux, w *recordingWriter, peerChannel protocol.ChannelID) *session.Session {
	t.Helper()
	before := len(w.snapshot())
	type result struct {
		s   *session.Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := m.Begin(context.Background())
		done <- result{s, err}
	}()

	var sent protocol.Frame
	require.Eventually(t, func() bool {
		f, ok := w.lastBegin()
		if ok && len(w.snapshot()) > before {
			sent = f
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	local := sent.Channel
	require.NoError(t, m.Dispatch(protocol.NewFrame(peerChannel, &protocol.Begin{
		RemoteChannel:  &local,
		NextOutgoingID: 1,
		IncomingWindow: 10,
		OutgoingWindow: 10,
	}, nil)))

	r := <-done
	require.NoError(t, r.err)
	return r.s
}

func TestBeginAllocatesLowestChannel(t *testing.T) {
	w := &recordingWriter{}
	m := NewMux(w, testDefaults())

	first := begin(t, m, w, 40)
	second := begin(t, m, w, 41)

	assert.Equal(t, protocol.ChannelID(0), first.ID())
	assert.Equal(t, protocol.ChannelID(40), first.RemoteChannel())
	assert.Equal(t, protocol.ChannelID(1), second.ID())
	assert.Equal(t, 2, m.Sessions())

	sent, ok := w.snapshot()[0].Body.(*protocol.Begin)
	require.True(t, ok)
	assert.Nil(t, sent.RemoteChannel)
	assert.Equal(t, uint32(2048), sent.IncomingWindow)
	assert.Equal(t, uint32(1), sent.NextOutgoingID)
	require.NotNil(t, sent.HandleMax)
	assert.Equal(t, protocol.Handle(1023), *sent.HandleMax)

	first.Release()
	assert.Equal(t, 1, m.Sessions())
	third := begin(t, m, w, 42)
	assert.Equal(t, protocol.ChannelID(0), third.ID(), "released channel is reused")
}

func TestBeginNoFreeChannel(t *testing.T) {
	w := &recordingWriter{}
	cfg := testDefaults()
	cfg.Connection.ChannelMax = 0
	m := NewMux(w, cfg)

	begin(t, m, w, 7)
	_, err := m.Begin(context.Background())
	assert.True(t, errors.Is(err, ErrNoChannel))
}

func TestBeginTimeoutFreesChannel(t *testing.T) {
	w := &recordingWriter{}
	cfg := testDefaults()
	cfg.Connection.BeginTimeout = 10 * time.Millisecond
	m := NewMux(w, cfg)

	_, err := m.Begin(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, m.Sessions())
}

func TestDispatchRoutesByPeerChannel(t *testing.T) {
	w := &recordingWriter{}
	m := NewMux(w, testDefaults())
	s := begin(t, m, w, 12)

	future, err := s.OpenSenderLinkAsync("queue/a", "a")
	require.NoError(t, err)
	require.NoError(t, m.Dispatch(protocol.NewFrame(12, &protocol.Attach{Name: "a", Handle: 4, Role: protocol.RoleReceiver}, nil)))

	link, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.Handle(4), link.Handle())

	frames := w.snapshot()
	attach := frames[len(frames)-1]
	assert.Equal(t, protocol.ChannelID(12), attach.Channel, "outbound frames use the peer's channel")
}

func TestDispatchUnknownChannel(t *testing.T) {
	m := NewMux(&recordingWriter{}, testDefaults())
	err := m.Dispatch(protocol.NewFrame(5, &protocol.Flow{}, nil))
	assert.True(t, errors.Is(err, ErrUnknownChannel))

	local := protocol.ChannelID(3)
	err = m.Dispatch(protocol.NewFrame(5, &protocol.Begin{RemoteChannel: &local}, nil))
	assert.True(t, errors.Is(err, ErrUnknownChannel))

	err = m.Dispatch(protocol.NewFrame(5, &protocol.Begin{}, nil))
	assert.True(t, errors.Is(err, ErrUnknownChannel))
}

func TestProtocolViolationEndsSession(t *testing.T) {
	w := &recordingWriter{}
	m := NewMux(w, testDefaults())
	s := begin(t, m, w, 2)

	promise := make(chan error, 1)
	go func() {
		_, err := s.OpenSenderLink(context.Background(), "queue/b", "b")
		promise <- err
	}()
	require.Eventually(t, func() bool { return s.Stats().PendingLinks == 1 }, time.Second, time.Millisecond)

	err := m.Dispatch(protocol.NewFrame(2, &protocol.Detach{Handle: 99}, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrProtocolViolation))

	frames := w.snapshot()
	end, ok := frames[len(frames)-1].Body.(*protocol.End)
	require.True(t, ok, "expected End, got %s", frames[len(frames)-1])
	require.NotNil(t, end.Error)
	assert.Equal(t, protocol.ErrCondNotAllowed, end.Error.Condition)

	assert.True(t, errors.Is(<-promise, session.ErrDisconnected))
}

func TestDisconnectFailsSessions(t *testing.T) {
	w := &recordingWriter{}
	m := NewMux(w, testDefaults())
	s := begin(t, m, w, 1)

	future, err := s.OpenSenderLinkAsync("queue/c", "c")
	require.NoError(t, err)
	posted := len(w.snapshot())

	m.Disconnect(errors.New("socket closed"))

	_, err = future.Wait(context.Background())
	assert.True(t, errors.Is(err, session.ErrDisconnected))
	assert.Len(t, w.snapshot(), posted, "nothing is written after disconnect")

	_, err = m.Begin(context.Background())
	assert.True(t, errors.Is(err, ErrMuxClosed))

	s.Release()
	assert.Equal(t, 0, m.Sessions())
}

func TestWriteErrorIsNotFatal(t *testing.T) {
	w := &recordingWriter{}
	m := NewMux(w, testDefaults())
	s := begin(t, m, w, 1)

	w.mu.Lock()
	w.err = errors.New("broken pipe")
	w.mu.Unlock()

	_, err := s.OpenSenderLinkAsync("queue/d", "d")
	assert.NoError(t, err)
}
