package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/rs/zerolog"
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateInitializing
	StateOpen
	StateClosing
	StateTerminated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateInitializing:
		return "initializing"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	StateConnecting:     {StateAuthenticating},
	StateAuthenticating: {StateInitializing, StateRejected},
	StateInitializing:   {StateOpen, StateClosing, StateRejected},
	StateOpen:           {StateClosing},
	StateClosing:        {StateTerminated},
}

// Peer is one client connection. After Start, all of its state is owned by
// the goroutine running Serve; the room only reaches it through Deliver.
type Peer struct {
	broker *Broker
	req    *port.Request
	log    zerolog.Logger

	state      State
	roomName   string
	id         domain.PeerID
	auth       *domain.AuthData
	authorised bool
	custom     any
	opts       port.InitOptions

	room      port.Room
	transport port.Transport

	inbox  chan domain.Message
	closed chan struct{}
}

var _ port.Client = (*Peer)(nil)

func newPeer(b *Broker, req *port.Request) *Peer {
	return &Peer{
		broker: b,
		req:    req,
		log:    b.log,
		state:  StateConnecting,
		inbox:  make(chan domain.Message, b.cfg.InboxSize),
		closed: make(chan struct{}),
	}
}

func (p *Peer) ID() domain.PeerID {
	return p.id
}

func (p *Peer) RoomName() string {
	return p.roomName
}

func (p *Peer) State() State {
	return p.state
}

func (p *Peer) Options() port.InitOptions {
	return p.opts
}

// Deliver queues a room message for this peer without blocking.
func (p *Peer) Deliver(msg domain.Message) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.inbox <- msg:
		return true
	default:
		return false
	}
}

func (p *Peer) transition(to State) error {
	for _, next := range transitions[p.state] {
		if next == to {
			p.state = to
			return nil
		}
	}
	return domain.Violation("state", "%s -> %s", p.state, to)
}

func (p *Peer) reject(err error) error {
	p.state = StateRejected
	p.broker.metrics.Incr(port.MetricAuthRejections, 1)

	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		status := http.StatusUnauthorized
		if errors.Is(err, domain.ErrLifecycleViolation) {
			status = http.StatusInternalServerError
		}
		ae = &domain.AuthError{Status: status, Reason: err.Error()}
	}
	p.log.Info().Int("status", ae.Status).Str("reason", ae.Reason).Msg("Connection rejected")
	return ae
}

func (p *Peer) context() port.PeerContext {
	pc := port.PeerContext{
		Room:       p.roomName,
		PeerID:     p.id,
		Auth:       p.auth,
		Authorised: p.authorised,
	}
	if p.req != nil {
		pc.RemoteAddr = p.req.RemoteAddr
	}
	return pc
}

func (p *Peer) excludeSelf() bool {
	return p.broker.cfg.ExcludeSender || p.opts.ExcludeSelf
}

// Start opens the connection: it applies the read limit chosen by OnInit,
// joins the room and calls OnConnect. It returns domain.ErrPeerClosed
// when OnConnect asked for the connection to be closed.
func (p *Peer) Start(ctx context.Context, t port.Transport) error {
	if p.state != StateInitializing {
		return domain.Violation("start", "peer is %s", p.state)
	}
	p.transport = t
	if c, ok := t.(port.Configurable); ok && p.opts.MaxMessageSize > 0 {
		c.SetReadLimit(p.opts.MaxMessageSize)
	}

	room, err := p.broker.join(ctx, p.roomName, p.id, p)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to join room")
		p.Close(ctx, err)
		return err
	}
	p.room = room
	p.auth = nil
	p.authorised = true
	if err := p.transition(StateOpen); err != nil {
		return err
	}
	p.log.Info().Msg("Peer connected")

	res, err := p.broker.handler.OnConnect(p.context(), p.custom)
	if err != nil {
		err = domain.Violation("on_connect", "%v", err)
		p.Close(ctx, err)
		return err
	}
	p.custom = res.State
	if res.Reply != nil {
		if err := p.write(*res.Reply); err != nil {
			p.Close(ctx, err)
			return err
		}
	}
	if res.Close {
		p.Close(ctx, nil)
		return domain.ErrPeerClosed
	}
	return nil
}

// Serve runs the open connection until it closes. frames carries inbound
// transport frames and is closed by the transport when the socket dies.
// The returned error is the close reason, nil for an orderly close.
func (p *Peer) Serve(ctx context.Context, frames <-chan domain.Frame) error {
	if p.state != StateOpen {
		return domain.ErrPeerClosed
	}

	var idle <-chan time.Time
	var timer *time.Timer
	if p.opts.IdleTimeout > 0 {
		timer = time.NewTimer(p.opts.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				p.Close(ctx, domain.ErrTransportClosed)
				return nil
			}
			if timer != nil {
				timer.Reset(p.opts.IdleTimeout)
			}
			if err := p.HandleFrame(ctx, f); err != nil {
				if errors.Is(err, domain.ErrPeerClosed) {
					p.Close(ctx, nil)
					return nil
				}
				p.Close(ctx, err)
				return err
			}

		case msg := <-p.inbox:
			if err := p.write(msg); err != nil {
				p.Close(ctx, err)
				return err
			}

		case <-p.room.Done():
			p.log.Warn().Msg("Room terminated under peer")
			_ = p.write(domain.RoomClosed(p.roomName))
			p.Close(ctx, domain.ErrRoomClosed)
			return domain.ErrRoomClosed

		case <-idle:
			p.Close(ctx, domain.ErrIdleTimeout)
			return domain.ErrIdleTimeout

		case <-ctx.Done():
			p.Close(context.Background(), ctx.Err())
			return ctx.Err()
		}
	}
}

// HandleFrame processes one inbound frame. A non-nil error means the
// connection has to close; domain.ErrPeerClosed marks an orderly close.
func (p *Peer) HandleFrame(ctx context.Context, f domain.Frame) error {
	if p.state != StateOpen {
		return domain.Violation("handle_frame", "peer is %s", p.state)
	}
	switch f.Kind {
	case domain.FramePing:
		return p.transport.WriteFrame(domain.Frame{Kind: domain.FramePong, Payload: f.Payload})
	case domain.FramePong:
		return nil
	case domain.FrameClose:
		return domain.ErrPeerClosed
	case domain.FrameText, domain.FrameBinary:
		return p.receive(ctx, f.Payload)
	default:
		return fmt.Errorf("%w: unknown frame kind %d", domain.ErrInvalidMessage, f.Kind)
	}
}

func (p *Peer) receive(ctx context.Context, payload []byte) error {
	msg, err := p.broker.codec.Decode(payload)
	if err != nil {
		desc := domain.ErrInvalidMessage.Error()
		var de *domain.DecodeError
		if errors.As(err, &de) {
			desc = de.Description()
		}
		p.broker.metrics.Incr(port.MetricDecodeErrors, 1)
		p.log.Debug().Err(err).Msg("Dropped undecodable frame")
		return p.write(domain.ErrorMessage(desc))
	}

	if msg.Event == "" {
		// the event-less form is only a targeted send
		if p.broker.cfg.Profile == ProfileDirect && msg.To.Kind == domain.TargetPeer {
			return p.forward(ctx, msg)
		}
		p.broker.metrics.Incr(port.MetricDecodeErrors, 1)
		return p.write(domain.ErrorMessage(domain.ErrInvalidMessage.Error()))
	}

	res, err := p.broker.handler.OnReceive(msg, p.context(), p.custom)
	if err != nil {
		return domain.Violation("on_receive", "%v", err)
	}
	p.custom = res.State
	if res.Message == nil {
		return nil
	}
	if res.Message.Event == "" && p.broker.cfg.Profile == ProfileEvent {
		return domain.Violation("on_receive", "returned message without event")
	}
	return p.forward(ctx, *res.Message)
}

// forward stamps the sender and hands msg to the room. A message without a
// target goes to the whole room.
func (p *Peer) forward(ctx context.Context, msg domain.Message) error {
	out := msg.WithFrom(p.id)
	if out.To.Kind == domain.TargetNone {
		out = out.WithTo(domain.ToAll())
	}

	err := p.room.Route(ctx, out, port.RouteOptions{ExcludeSender: p.excludeSelf()})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNoSuchPeer):
		res, herr := p.broker.handler.OnRouteError(err, out, p.context(), p.custom)
		if herr != nil {
			return domain.Violation("on_route_error", "%v", herr)
		}
		p.custom = res.State
		if res.Reply != nil {
			return p.write(*res.Reply)
		}
		return nil
	case errors.Is(err, domain.ErrRoomUnavailable):
		_ = p.write(domain.RoomClosed(p.roomName))
		return domain.ErrRoomClosed
	default:
		return err
	}
}

func (p *Peer) write(msg domain.Message) error {
	b, err := p.broker.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %q: %w", msg.Event, err)
	}
	return p.transport.WriteFrame(domain.TextFrame(b))
}

// Close runs OnTerminate, leaves the room and closes the transport. Calling
// it again is a no-op.
func (p *Peer) Close(ctx context.Context, reason error) {
	if p.state == StateClosing || p.state == StateTerminated || p.state == StateRejected {
		return
	}
	if err := p.transition(StateClosing); err != nil {
		p.log.Error().Err(err).Msg("Invalid close")
		return
	}

	p.broker.handler.OnTerminate(reason, p.req, p.context(), p.custom)

	if p.room != nil {
		if err := p.room.Leave(ctx, p.id, p); err != nil {
			p.log.Warn().Err(err).Msg("Failed to leave room")
		}
	}
	close(p.closed)
	_ = p.transition(StateTerminated)

	if p.transport != nil {
		code, text := closeStatus(reason)
		if err := p.transport.Close(code, text); err != nil {
			p.log.Debug().Err(err).Msg("Error closing transport")
		}
	}

	ev := p.log.Info()
	if reason != nil && !errors.Is(reason, domain.ErrTransportClosed) {
		ev = p.log.Warn().Err(reason)
	}
	ev.Msg("Peer disconnected")
}

func closeStatus(reason error) (domain.CloseCode, string) {
	switch {
	case reason == nil, errors.Is(reason, domain.ErrTransportClosed):
		return domain.CloseNormalClosure, ""
	case errors.Is(reason, domain.ErrIdleTimeout):
		return domain.CloseNormalClosure, domain.ErrIdleTimeout.Error()
	case errors.Is(reason, domain.ErrRoomClosed):
		return domain.CloseGoingAway, domain.ErrRoomClosed.Error()
	case errors.Is(reason, context.Canceled):
		return domain.CloseGoingAway, "server shutting down"
	case errors.Is(reason, domain.ErrLifecycleViolation):
		return domain.CloseInternalError, "internal error"
	default:
		return domain.CloseInternalError, ""
	}
}
