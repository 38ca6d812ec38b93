package loopback

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/eapache/queue"
	"github.com/go-i2p/go-amqp/lib/amqp/protocol"
	"github.com/go-i2p/go-amqp/lib/config"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

var log = logger.GetGoI2PLogger()

// ErrPeerClosed is returned by WriteFrame after Close.
var ErrPeerClosed = errors.New("loopback peer closed")

// Dispatcher receives the frames the peer sends back.
type Dispatcher interface {
	Dispatch(frame protocol.Frame) error
}

// peerLink is the receiving end of one of our sender links.
type peerLink struct {
	handle        protocol.Handle
	deliveryCount uint32
	credit        uint32
}

// peerSession is the peer's view of one session.
type peerSession struct {
	nextIncomingID protocol.DeliveryNumber
	window         uint32
	nextHandle     protocol.Handle
	links          map[protocol.Handle]*peerLink // keyed by the sender's handle
}

// Peer is an in-process AMQP peer. Frames written to it are queued and
// answered from Run.
type Peer struct {
	cfg     config.LoopbackDefaults
	outcome protocol.Outcome
	limiter *rate.Limiter

	mu     sync.Mutex
	cond   *sync.Cond
	inbox  *queue.Queue
	closed bool

	sessions map[protocol.ChannelID]*peerSession
	received uint64
}

// NewPeer creates a peer that settles with cfg.Outcome and grants window and
// credit as configured.
func NewPeer(cfg config.LoopbackDefaults) *Peer {
	limit := rate.Inf
	if cfg.GrantRate > 0 {
		limit = rate.Limit(cfg.GrantRate)
	}
	p := &Peer{
		cfg:      cfg,
		outcome:  ParseOutcome(cfg.Outcome),
		limiter:  rate.NewLimiter(limit, 1),
		inbox:    queue.New(),
		sessions: make(map[protocol.ChannelID]*peerSession),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// ParseOutcome maps an outcome name to the state the peer settles with.
// Unknown names settle as accepted.
func ParseOutcome(name string) protocol.Outcome {
	switch strings.ToLower(name) {
	case "rejected":
		return &protocol.Rejected{Error: &protocol.Error{
			Condition:   protocol.ErrCondNotAllowed,
			Description: "rejected by loopback peer",
		}}
	case "released":
		return &protocol.Released{}
	case "modified":
		return &protocol.Modified{DeliveryFailed: true}
	default:
		return &protocol.Accepted{}
	}
}

// WriteFrame queues a frame for the peer. It never blocks on the peer's
// replies.
func (p *Peer) WriteFrame(frame protocol.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return oops.Wrapf(ErrPeerClosed, "writing %s", frame)
	}
	p.inbox.Add(frame)
	p.cond.Signal()
	return nil
}

// Close stops Run once the queued frames are handled.
func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Received returns how many transfers the peer has settled.
func (p *Peer) Received() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received
}

// next blocks until a frame is queued or the peer is closed.
func (p *Peer) next() (protocol.Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.inbox.Length() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.inbox.Length() == 0 {
		return protocol.Frame{}, false
	}
	return p.inbox.Remove().(protocol.Frame), true
}

// Run answers queued frames through d until ctx is done or Close is called.
func (p *Peer) Run(ctx context.Context, d Dispatcher) error {
	stop := context.AfterFunc(ctx, func() { _ = p.Close() })
	defer stop()

	for {
		frame, ok := p.next()
		if !ok {
			return ctx.Err()
		}
		for _, reply := range p.handle(ctx, frame) {
			if err := d.Dispatch(reply); err != nil {
				log.WithError(err).WithField("frame", reply.String()).Warn("reply rejected")
			}
		}
	}
}

// handle computes the peer's replies to one frame.
func (p *Peer) handle(ctx context.Context, frame protocol.Frame) []protocol.Frame {
	ch := frame.Channel
	reply := func(body protocol.Performative) protocol.Frame {
		return protocol.NewFrame(ch, body, nil)
	}

	if begin, ok := frame.Body.(*protocol.Begin); ok {
		p.mu.Lock()
		p.sessions[ch] = &peerSession{
			nextIncomingID: begin.NextOutgoingID,
			window:         p.cfg.IncomingWindow,
			links:          make(map[protocol.Handle]*peerLink),
		}
		p.mu.Unlock()
		return []protocol.Frame{reply(&protocol.Begin{
			RemoteChannel:  &ch,
			NextOutgoingID: 1,
			IncomingWindow: p.cfg.IncomingWindow,
			OutgoingWindow: p.cfg.IncomingWindow,
			HandleMax:      begin.HandleMax,
		})}
	}

	p.mu.Lock()
	s, ok := p.sessions[ch]
	p.mu.Unlock()
	if !ok {
		log.WithFields(logger.Fields{
			"at":      "(Peer) handle",
			"channel": ch,
			"frame":   frame.String(),
		}).Warn("frame for unknown session")
		return nil
	}

	switch body := frame.Body.(type) {
	case *protocol.Attach:
		link := &peerLink{handle: s.nextHandle, credit: p.cfg.LinkCredit}
		s.nextHandle++
		s.links[body.Handle] = link
		return []protocol.Frame{
			reply(&protocol.Attach{
				Name:          body.Name,
				Handle:        link.handle,
				Role:          protocol.RoleReceiver,
				SndSettleMode: body.SndSettleMode,
				RcvSettleMode: body.RcvSettleMode,
				Target:        body.Target,
			}),
			reply(p.grant(s, link)),
		}

	case *protocol.Transfer:
		return p.settle(ctx, s, body, reply)

	case *protocol.Flow:
		if !body.Echo {
			return nil
		}
		return []protocol.Frame{reply(p.sessionFlow(s))}

	case *protocol.Detach:
		link, ok := s.links[body.Handle]
		if !ok {
			return nil
		}
		delete(s.links, body.Handle)
		return []protocol.Frame{reply(&protocol.Detach{Handle: link.handle, Closed: body.Closed})}

	case *protocol.End:
		p.mu.Lock()
		delete(p.sessions, ch)
		p.mu.Unlock()
		return []protocol.Frame{reply(&protocol.End{})}
	}
	return nil
}

// settle answers a transfer with a settled disposition and, once the window
// or the link's credit is used up, a rate paced grant.
func (p *Peer) settle(ctx context.Context, s *peerSession, t *protocol.Transfer, reply func(protocol.Performative) protocol.Frame) []protocol.Frame {
	if t.DeliveryID == nil {
		return nil
	}
	id := *t.DeliveryID
	s.nextIncomingID = id + 1
	if s.window > 0 {
		s.window--
	}

	p.mu.Lock()
	p.received++
	p.mu.Unlock()

	out := []protocol.Frame{reply(&protocol.Disposition{
		Role:    protocol.RoleReceiver,
		First:   id,
		Settled: true,
		State:   p.outcome,
	})}

	link, ok := s.links[t.Handle]
	if ok {
		link.deliveryCount++
		if link.credit > 0 {
			link.credit--
		}
	}
	if s.window > 0 && (!ok || link.credit > 0) {
		return out
	}

	if err := p.limiter.Wait(ctx); err != nil {
		log.WithError(err).Debug("grant abandoned")
		return out
	}
	s.window = p.cfg.IncomingWindow
	if ok {
		link.credit = p.cfg.LinkCredit
		return append(out, reply(p.grant(s, link)))
	}
	return append(out, reply(p.sessionFlow(s)))
}

func (p *Peer) sessionFlow(s *peerSession) *protocol.Flow {
	next := s.nextIncomingID
	return &protocol.Flow{
		NextIncomingID: &next,
		IncomingWindow: s.window,
		NextOutgoingID: 1,
		OutgoingWindow: p.cfg.IncomingWindow,
	}
}

// grant is a session Flow that also refreshes the link's credit.
func (p *Peer) grant(s *peerSession, link *peerLink) *protocol.Flow {
	f := p.sessionFlow(s)
	handle := link.handle
	count := link.deliveryCount
	credit := link.credit
	f.Handle = &handle
	f.DeliveryCount = &count
	f.LinkCredit = &credit
	return f
}
