package service

import (
	"context"
	"sort"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/rs/zerolog"
)

const roomMailboxSize = 64

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opRoute
	opStop
	opMembers
)

type roomOp struct {
	kind   opKind
	id     domain.PeerID
	client port.Client
	msg    domain.Message
	opts   port.RouteOptions
	reply  chan roomReply
}

type roomReply struct {
	join    port.JoinResult
	members []domain.PeerID
	err     error
}

// Room is the actor owning one room's membership. Every operation goes
// through the mailbox and is applied by Run, one at a time.
type Room struct {
	name     string
	registry port.Registry
	metrics  port.Metrics
	log      zerolog.Logger

	members map[domain.PeerID]port.Client
	handles map[port.Client]domain.PeerID

	mailbox chan roomOp
	done    chan struct{}
}

var _ port.Room = (*Room)(nil)

func NewRoom(name string, registry port.Registry, log zerolog.Logger, metrics port.Metrics) *Room {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &Room{
		name:     name,
		registry: registry,
		metrics:  metrics,
		log:      log.With().Str("room", name).Logger(),
		members:  make(map[domain.PeerID]port.Client),
		handles:  make(map[port.Client]domain.PeerID),
		mailbox:  make(chan roomOp, roomMailboxSize),
		done:     make(chan struct{}),
	}
}

// NewRoomFactory returns the factory handed to Registry.RegisterOrGet. The
// room it builds is already running.
func NewRoomFactory(registry port.Registry, log zerolog.Logger, metrics port.Metrics) port.RoomFactory {
	return func(name string) port.Room {
		r := NewRoom(name, registry, log, metrics)
		go r.Run()
		return r
	}
}

func (r *Room) Name() string {
	return r.name
}

func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) Join(ctx context.Context, id domain.PeerID, c port.Client) (port.JoinResult, error) {
	rep, err := r.call(ctx, roomOp{kind: opJoin, id: id, client: c})
	if err != nil {
		return port.JoinResult{}, err
	}
	return rep.join, rep.err
}

func (r *Room) Leave(ctx context.Context, id domain.PeerID, c port.Client) error {
	_, err := r.call(ctx, roomOp{kind: opLeave, id: id, client: c})
	if err == domain.ErrRoomUnavailable {
		// nothing left to leave
		return nil
	}
	return err
}

// Route delivers msg according to msg.To. Only a single-peer target waits
// for the room and reports ErrNoSuchPeer; lists and broadcasts are queued.
func (r *Room) Route(ctx context.Context, msg domain.Message, opts port.RouteOptions) error {
	op := roomOp{kind: opRoute, msg: msg, opts: opts}
	switch msg.To.Kind {
	case domain.TargetPeer:
		rep, err := r.call(ctx, op)
		if err != nil {
			return err
		}
		return rep.err
	case domain.TargetPeers, domain.TargetAll:
		return r.cast(ctx, op)
	default:
		return domain.ErrNoTarget
	}
}

func (r *Room) Stop(ctx context.Context) error {
	_, err := r.call(ctx, roomOp{kind: opStop})
	if err == domain.ErrRoomUnavailable {
		return nil
	}
	return err
}

func (r *Room) Members(ctx context.Context) ([]domain.PeerID, error) {
	rep, err := r.call(ctx, roomOp{kind: opMembers})
	if err != nil {
		return nil, err
	}
	return rep.members, nil
}

func (r *Room) call(ctx context.Context, op roomOp) (roomReply, error) {
	op.reply = make(chan roomReply, 1)
	select {
	case r.mailbox <- op:
	case <-r.done:
		return roomReply{}, domain.ErrRoomUnavailable
	case <-ctx.Done():
		return roomReply{}, ctx.Err()
	}

	select {
	case rep := <-op.reply:
		return rep, nil
	case <-r.done:
		// the reply is written before done closes
		select {
		case rep := <-op.reply:
			return rep, nil
		default:
		}
		return roomReply{}, domain.ErrRoomUnavailable
	case <-ctx.Done():
		return roomReply{}, ctx.Err()
	}
}

func (r *Room) cast(ctx context.Context, op roomOp) error {
	select {
	case r.mailbox <- op:
		return nil
	case <-r.done:
		return domain.ErrRoomUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes the mailbox until the room empties or is stopped. It always
// unregisters before closing Done.
func (r *Room) Run() {
	r.metrics.Incr(port.MetricRooms, 1)
	r.log.Info().Msg("Room started")
	defer r.terminate()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("Room crashed")
		}
	}()

	for op := range r.mailbox {
		if r.apply(op) {
			return
		}
	}
}

func (r *Room) terminate() {
	if r.registry != nil {
		r.registry.Unregister(r.name, r)
	}
	r.metrics.Decr(port.MetricPeers, int64(len(r.members)))
	r.metrics.Decr(port.MetricRooms, 1)
	close(r.done)
	r.log.Info().Int("count", len(r.members)).Msg("Room stopped")
}

// apply runs one operation and reports whether the room must stop.
func (r *Room) apply(op roomOp) bool {
	var rep roomReply
	stop := false

	switch op.kind {
	case opJoin:
		rep.join = r.join(op.id, op.client)
	case opLeave:
		stop = r.leave(op.id, op.client)
	case opRoute:
		rep.err = r.route(op.msg, op.opts)
	case opStop:
		r.log.Info().Int("count", len(r.members)).Msg("Stopping room")
		stop = true
	case opMembers:
		rep.members = r.snapshot()
	}

	if op.reply != nil {
		op.reply <- rep
	}
	return stop
}

func (r *Room) join(id domain.PeerID, c port.Client) port.JoinResult {
	var res port.JoinResult

	if old, ok := r.members[id]; ok {
		res.Replaced = true
		delete(r.handles, old)
	} else {
		r.metrics.Incr(port.MetricPeers, 1)
	}

	// keep the table bijective: a handle moving to a new id drops the old one
	if prev, ok := r.handles[c]; ok && prev != id {
		delete(r.members, prev)
		r.metrics.Decr(port.MetricPeers, 1)
		r.broadcast(domain.Left(prev), id)
	}

	r.members[id] = c
	r.handles[c] = id
	r.log.Info().Int("count", len(r.members)).Str("peer_id", id.String()).Bool("replaced", res.Replaced).Msg("Peer joined room")

	r.broadcast(domain.Joined(id), id)
	return res
}

func (r *Room) leave(id domain.PeerID, c port.Client) bool {
	cur, ok := r.members[id]
	if ok && (c == nil || cur == c) {
		delete(r.members, id)
		delete(r.handles, cur)
		r.metrics.Decr(port.MetricPeers, 1)
		r.log.Info().Int("count", len(r.members)).Str("peer_id", id.String()).Msg("Peer left room")
		r.broadcast(domain.Left(id), "")
	}
	return len(r.members) == 0
}

func (r *Room) route(msg domain.Message, opts port.RouteOptions) error {
	r.metrics.Incr(port.MetricRouted, 1)

	switch msg.To.Kind {
	case domain.TargetPeer:
		c, ok := r.members[msg.To.Peer()]
		if !ok || !r.deliver(c, msg) {
			r.metrics.Incr(port.MetricRouteFailures, 1)
			return domain.ErrNoSuchPeer
		}
	case domain.TargetPeers:
		seen := make(map[domain.PeerID]struct{}, len(msg.To.Peers))
		for _, id := range msg.To.Peers {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if c, ok := r.members[id]; ok {
				r.deliver(c, msg)
			}
		}
	case domain.TargetAll:
		var exclude domain.PeerID
		if opts.ExcludeSender {
			exclude = msg.From
		}
		r.broadcast(msg, exclude)
	default:
		return domain.ErrNoTarget
	}
	return nil
}

func (r *Room) broadcast(msg domain.Message, exclude domain.PeerID) {
	for id, c := range r.members {
		if !exclude.IsZero() && id == exclude {
			continue
		}
		r.deliver(c, msg)
	}
}

func (r *Room) deliver(c port.Client, msg domain.Message) bool {
	if c.Deliver(msg) {
		r.metrics.Incr(port.MetricDelivered, 1)
		return true
	}
	r.metrics.Incr(port.MetricDropped, 1)
	r.log.Debug().Str("peer_id", c.ID().String()).Str("event", msg.Event).Msg("Dropped message for unreachable peer")
	return false
}

func (r *Room) snapshot() []domain.PeerID {
	ids := make([]domain.PeerID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
