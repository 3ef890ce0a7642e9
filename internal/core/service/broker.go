package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/rs/zerolog"
)

// Profile selects how inbound messages without an event are treated.
type Profile string

const (
	// ProfileEvent requires "event" on every inbound message.
	ProfileEvent Profile = "event"
	// ProfileDirect also accepts a bare {"to":...,"data":...} and routes it
	// without calling OnReceive.
	ProfileDirect Profile = "direct"
)

func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case "", ProfileEvent:
		return ProfileEvent, nil
	case ProfileDirect:
		return ProfileDirect, nil
	default:
		return "", fmt.Errorf("unknown protocol profile %q", s)
	}
}

const defaultInboxSize = 256

type BrokerConfig struct {
	Profile Profile
	// ExcludeSender drops a peer's own broadcasts for every connection.
	ExcludeSender bool
	// IdleTimeout applies to peers whose OnInit left it unset.
	IdleTimeout time.Duration
	InboxSize   int
}

// Broker accepts peer connections and resolves the rooms they join.
type Broker struct {
	registry port.Registry
	handler  port.Handler
	codec    port.Codec
	metrics  port.Metrics
	log      zerolog.Logger
	cfg      BrokerConfig
	factory  port.RoomFactory
}

func NewBroker(registry port.Registry, handler port.Handler, codec port.Codec, log zerolog.Logger, metrics port.Metrics, cfg BrokerConfig) *Broker {
	if handler == nil {
		handler = DefaultHandler{}
	}
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileEvent
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	return &Broker{
		registry: registry,
		handler:  handler,
		codec:    codec,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		factory:  NewRoomFactory(registry, log, metrics),
	}
}

func (b *Broker) Codec() port.Codec {
	return b.codec
}

// Room returns the live room registered under name.
func (b *Broker) Room(name string) (port.Room, bool) {
	return b.registry.Lookup(name)
}

func (b *Broker) Rooms() []string {
	return b.registry.Names()
}

// Open runs the handshake for one connection: ParseRequest, Authenticate
// and OnInit. A rejected connection yields a *domain.AuthError.
func (b *Broker) Open(ctx context.Context, req *port.Request) (*Peer, error) {
	p := newPeer(b, req)
	if err := p.transition(StateAuthenticating); err != nil {
		return nil, err
	}

	parsed, err := b.handler.ParseRequest(req)
	if err != nil {
		return nil, p.reject(err)
	}
	res, err := b.handler.Authenticate(req, parsed)
	if err != nil {
		return nil, p.reject(err)
	}
	if res.Room == "" {
		return nil, p.reject(domain.Violation("authenticate", "empty room name"))
	}

	p.id = res.PeerID
	if p.id.IsZero() {
		p.id = domain.NewPeerID()
	}
	p.roomName = res.Room
	p.auth = &domain.AuthData{PeerID: p.id, Credentials: res.Credentials, Metadata: res.Metadata}
	p.custom = parsed.State
	if res.State != nil {
		p.custom = res.State
	}
	p.log = b.log.With().Str("room", p.roomName).Str("peer_id", p.id.String()).Logger()

	if err := p.transition(StateInitializing); err != nil {
		return nil, err
	}
	init, err := b.handler.OnInit(req, p.context(), p.custom)
	if err != nil {
		return nil, p.reject(domain.Violation("on_init", "%v", err))
	}
	if init.Options.IdleTimeout < 0 || init.Options.MaxMessageSize < 0 {
		return nil, p.reject(domain.Violation("on_init", "negative transport option"))
	}
	p.opts = init.Options
	if p.opts.IdleTimeout == 0 {
		p.opts.IdleTimeout = b.cfg.IdleTimeout
	}
	p.custom = init.State

	p.log.Debug().Str("remote_addr", req.RemoteAddr).Msg("Peer authenticated")
	return p, nil
}

// join resolves name and joins it, retrying once when the resolved room
// turns out to be terminating.
func (b *Broker) join(ctx context.Context, name string, id domain.PeerID, c port.Client) (port.Room, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		room, created := b.registry.RegisterOrGet(name, b.factory)
		if created {
			b.log.Debug().Str("room", name).Msg("Room created")
		}
		res, err := room.Join(ctx, id, c)
		if err == nil {
			if res.Replaced {
				b.log.Info().Str("room", name).Str("peer_id", id.String()).Msg("Peer replaced existing connection")
			}
			return room, nil
		}
		if errors.Is(err, domain.ErrRoomUnavailable) {
			lastErr = err
			continue
		}
		// a room created for this join must not linger empty
		_ = room.Leave(context.Background(), id, c)
		return nil, fmt.Errorf("join room %q: %w", name, err)
	}
	return nil, fmt.Errorf("join room %q: %w", name, lastErr)
}

// Shutdown stops every registered room.
func (b *Broker) Shutdown(ctx context.Context) error {
	var errs []error
	for _, name := range b.registry.Names() {
		room, ok := b.registry.Lookup(name)
		if !ok {
			continue
		}
		if err := room.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop room %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
