package session

import (
	"sync"
	"testing"

	"github.com/go-i2p/go-amqp/lib/amqp/message"
	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/go-amqp/lib/config"
	"github.com/stretchr/testify/require"
)

// recordingConn is a Connection that keeps every posted frame.
type recordingConn struct {
	mu      sync.Mutex
	frames  []protocol.Frame
	dropped []protocol.ChannelID
}

func (c *recordingConn) PostFrame(frame protocol.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *recordingConn) DropSession(id protocol.ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, id)
}

// take returns the frames posted since the last call.
func (c *recordingConn) take() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.frames
	c.frames = nil
	return frames
}

func (c *recordingConn) dropCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dropped)
}

const (
	testChannel       protocol.ChannelID = 3
	testRemoteChannel protocol.ChannelID = 9
)

func newSessionDefaults() config.SessionDefaults {
	return config.Defaults().Session
}

func newTestEngine(window uint32) (*Engine, *recordingConn) {
	return newTestEngineFrom(window, newSessionDefaults())
}

func newTestEngineFrom(window uint32, cfg config.SessionDefaults) (*Engine, *recordingConn) {
	conn := &recordingConn{}
	remote := &protocol.Begin{NextOutgoingID: 1, IncomingWindow: window, OutgoingWindow: 100}
	return NewEngine(testChannel, conn, testRemoteChannel, remote, cfg), conn
}

func u32(v uint32) *uint32 { return &v }

func frame(body protocol.Performative) protocol.Frame {
	return protocol.NewFrame(testChannel, body, nil)
}

func peerAttach(name string, handle protocol.Handle) protocol.Frame {
	return frame(&protocol.Attach{Name: name, Handle: handle, Role: protocol.RoleReceiver})
}

func settledDisposition(first, last uint32, state protocol.DeliveryState) protocol.Frame {
	return frame(&protocol.Disposition{
		Role:    protocol.RoleReceiver,
		First:   first,
		Last:    u32(last),
		Settled: true,
		State:   state,
	})
}

func sessionFlow(nextIncoming, window uint32) protocol.Frame {
	return frame(&protocol.Flow{NextIncomingID: u32(nextIncoming), IncomingWindow: window})
}

// attachSender opens a sender link and answers it with a peer Attach.
func attachSender(t *testing.T, s *Session, conn *recordingConn, name string, remoteHandle protocol.Handle) *SenderLink {
	t.Helper()
	future, err := s.OpenSenderLinkAsync("queue/"+name, name)
	require.NoError(t, err)
	require.NoError(t, s.Engine().HandleFrame(peerAttach(name, remoteHandle)))
	select {
	case <-future.Done():
	default:
		t.Fatalf("link %q not resolved by peer attach", name)
	}
	link, err := future.Wait(t.Context())
	require.NoError(t, err)
	conn.take()
	return link
}

func transfersOf(t *testing.T, frames []protocol.Frame) []*protocol.Transfer {
	t.Helper()
	var out []*protocol.Transfer
	for _, f := range frames {
		tr, ok := f.Body.(*protocol.Transfer)
		require.Truef(t, ok, "expected Transfer, got %s", f)
		out = append(out, tr)
	}
	return out
}

func testMessage(body string) *message.Message {
	return message.New([]byte(body))
}
