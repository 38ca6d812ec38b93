package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/go-amqp/lib/amqp/session"
	"github.com/go-i2p/go-amqp/lib/config"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var (
	// ErrNoChannel is returned when every channel up to channel-max is in use.
	ErrNoChannel = errors.New("no free channel")

	// ErrUnknownChannel is returned for inbound frames on a channel with no session.
	ErrUnknownChannel = errors.New("frame for unknown channel")

	// ErrMuxClosed is returned once the transport has been declared lost.
	ErrMuxClosed = errors.New("connection closed")
)

// FrameWriter is the transport side of the connection. WriteFrame must not
// call back into the Mux.
type FrameWriter interface {
	WriteFrame(frame protocol.Frame) error
}

// Compile-time check that Mux is what sessions write through
var _ session.Connection = (*Mux)(nil)

// channel is one local channel: waiting for the peer's Begin until engine is set.
type channel struct {
	local   protocol.ChannelID
	engine  *session.Engine
	session *session.Session
	err     error
	begun   chan struct{}
}

// Mux multiplexes sessions over a FrameWriter.
type Mux struct {
	cfg config.ConfigDefaults

	writeMu sync.Mutex
	writer  FrameWriter

	mu       sync.Mutex
	channels map[protocol.ChannelID]*channel
	inbound  map[protocol.ChannelID]protocol.ChannelID // peer channel -> local channel
	closed   bool
}

// NewMux creates a Mux writing to w.
func NewMux(w FrameWriter, cfg config.ConfigDefaults) *Mux {
	return &Mux{
		cfg:      cfg,
		writer:   w,
		channels: make(map[protocol.ChannelID]*channel),
		inbound:  make(map[protocol.ChannelID]protocol.ChannelID),
	}
}

// Begin allocates a channel, sends Begin and waits for the peer's Begin. The
// returned handle is the first owner of the session; release it to give the
// channel back.
func (m *Mux) Begin(ctx context.Context) (*session.Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMuxClosed
	}
	local, err := m.allocate()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	ch := &channel{local: local, begun: make(chan struct{})}
	m.channels[local] = ch
	m.mu.Unlock()

	s := m.cfg.Session
	handleMax := s.HandleMax
	m.PostFrame(protocol.NewFrame(local, &protocol.Begin{
		NextOutgoingID: s.InitialOutgoingID,
		IncomingWindow: s.IncomingWindow,
		OutgoingWindow: s.OutgoingWindow,
		HandleMax:      &handleMax,
	}, nil))

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Connection.BeginTimeout)
	defer cancel()
	select {
	case <-ch.begun:
		return ch.session, ch.err
	case <-ctx.Done():
		m.abandon(local)
		return nil, oops.Wrapf(ctx.Err(), "waiting for begin on channel %d", local)
	}
}

// allocate returns the lowest free channel id. Caller holds mu.
func (m *Mux) allocate() (protocol.ChannelID, error) {
	for id := uint32(0); id <= uint32(m.cfg.Connection.ChannelMax); id++ {
		if _, used := m.channels[protocol.ChannelID(id)]; !used {
			return protocol.ChannelID(id), nil
		}
	}
	return 0, oops.Wrapf(ErrNoChannel, "channel-max %d", m.cfg.Connection.ChannelMax)
}

// abandon frees a channel whose Begin was not answered in time. A session
// that completed in the meantime is released instead.
func (m *Mux) abandon(local protocol.ChannelID) {
	m.mu.Lock()
	var late *session.Session
	if ch, ok := m.channels[local]; ok {
		if ch.engine == nil {
			delete(m.channels, local)
		} else {
			late = ch.session
		}
	}
	m.mu.Unlock()
	if late != nil {
		late.Release()
	}
}

// Dispatch routes one inbound frame. Protocol violations end the offending
// session and are returned for logging; they never affect other channels.
func (m *Mux) Dispatch(frame protocol.Frame) error {
	if begin, ok := frame.Body.(*protocol.Begin); ok {
		return m.completeBegin(frame, begin)
	}

	m.mu.Lock()
	local, ok := m.inbound[frame.Channel]
	var ch *channel
	if ok {
		ch = m.channels[local]
	}
	m.mu.Unlock()
	if ch == nil || ch.engine == nil {
		log.WithFields(logger.Fields{
			"at":      "(Mux) Dispatch",
			"channel": frame.Channel,
			"frame":   frame.String(),
		}).Warn("dropping frame for unknown channel")
		return oops.Wrapf(ErrUnknownChannel, "channel %d", frame.Channel)
	}

	err := ch.engine.HandleFrame(frame)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrProtocolViolation):
		log.WithError(err).WithField("channel", local).Error("protocol violation, ending session")
		ch.engine.Fail(err)
	default:
		log.WithError(err).WithField("channel", local).Warn("frame rejected")
	}
	return err
}

// completeBegin binds the peer's Begin answer to the channel that asked.
func (m *Mux) completeBegin(frame protocol.Frame, begin *protocol.Begin) error {
	if begin.RemoteChannel == nil {
		// peer-initiated sessions are not accepted
		log.WithField("channel", frame.Channel).Warn("ignoring unsolicited begin")
		return oops.Wrapf(ErrUnknownChannel, "unsolicited begin on channel %d", frame.Channel)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[*begin.RemoteChannel]
	if !ok || ch.engine != nil {
		return oops.Wrapf(ErrUnknownChannel, "begin answers channel %d", *begin.RemoteChannel)
	}
	ch.engine = session.NewEngine(ch.local, m, frame.Channel, begin, m.cfg.Session)
	ch.session = session.New(ch.engine)
	m.inbound[frame.Channel] = ch.local
	close(ch.begun)

	log.WithFields(logger.Fields{
		"at":             "(Mux) completeBegin",
		"channel":        ch.local,
		"remote_channel": frame.Channel,
	}).Debug("session begun")
	return nil
}

// PostFrame writes a frame to the transport. Write errors are logged; the
// transport reports its own failure through Disconnect.
func (m *Mux) PostFrame(frame protocol.Frame) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.writer.WriteFrame(frame); err != nil {
		log.WithError(err).WithField("frame", frame.String()).Error("failed to write frame")
	}
}

// DropSession reclaims the channel of a released session.
func (m *Mux) DropSession(id protocol.ChannelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[id]; !ok {
		return
	}
	delete(m.channels, id)
	for remote, local := range m.inbound {
		if local == id {
			delete(m.inbound, remote)
		}
	}
	log.WithField("channel", id).Debug("channel reclaimed")
}

// Disconnect fails every session after the transport is lost. Sessions keep
// their channels until their handles are released.
func (m *Mux) Disconnect(cause error) {
	m.mu.Lock()
	m.closed = true
	var engines []*session.Engine
	for _, ch := range m.channels {
		if ch.engine != nil {
			engines = append(engines, ch.engine)
		} else {
			ch.err = oops.Wrapf(session.ErrDisconnected, "begin on channel %d: %s", ch.local, cause)
			close(ch.begun)
			delete(m.channels, ch.local)
		}
	}
	m.mu.Unlock()

	for _, e := range engines {
		e.Disconnect(cause)
	}
	log.WithError(cause).WithField("sessions", len(engines)).Warn("connection lost")
}

// Sessions returns the number of channels in use.
func (m *Mux) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}
