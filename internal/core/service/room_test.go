package service

import (
	"context"
	"testing"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomJoinNotifiesOthers(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	a, b := newFakeClient("a"), newFakeClient("b")

	res := join(t, room, a)
	assert.False(t, res.Replaced)
	join(t, room, b)

	assert.Equal(t, []domain.PeerID{"a", "b"}, barrier(t, room))
	assert.Equal(t, []domain.Message{domain.Joined("b")}, a.received())
	assert.Empty(t, b.received())
	assert.Equal(t, int64(2), f.metrics.Count(port.MetricPeers))
}

func TestRoomJoinReplacesConnection(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	old, fresh, other := newFakeClient("a"), newFakeClient("a"), newFakeClient("b")
	join(t, room, old)
	join(t, room, other)

	res := join(t, room, fresh)
	assert.True(t, res.Replaced)
	assert.Equal(t, []domain.PeerID{"a", "b"}, barrier(t, room))

	// the replaced connection leaving must not evict its successor
	require.NoError(t, room.Leave(context.Background(), "a", old))
	assert.Equal(t, []domain.PeerID{"a", "b"}, barrier(t, room))

	old.reset()
	require.NoError(t, room.Route(context.Background(), domain.NewMessage("ping", domain.ToPeer("a"), nil), port.RouteOptions{}))
	assert.Len(t, fresh.received(), 1)
	assert.Empty(t, old.received())
	assert.Equal(t, int64(2), f.metrics.Count(port.MetricPeers))
}

func TestRoomJoinMovesHandle(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	c, other := newFakeClient("a"), newFakeClient("x")
	join(t, room, other)
	join(t, room, c)

	_, err := room.Join(context.Background(), "b", c)
	require.NoError(t, err)

	assert.Equal(t, []domain.PeerID{"b", "x"}, barrier(t, room))
	assert.Equal(t, []string{domain.EventJoined, domain.EventLeft, domain.EventJoined}, other.events())
}

func TestRoomRouteSingle(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	a, b := newFakeClient("a"), newFakeClient("b")
	join(t, room, a)
	join(t, room, b)
	a.reset()

	msg := domain.NewMessage("offer", domain.ToPeer("b"), "sdp").WithFrom("a")
	require.NoError(t, room.Route(context.Background(), msg, port.RouteOptions{}))
	assert.Equal(t, []domain.Message{msg}, b.received())
	assert.Empty(t, a.received())

	tests := []struct {
		name  string
		setup func()
		to    domain.PeerID
	}{
		{"absent", func() {}, "c"},
		{"unreachable", func() { b.setRefuse(true) }, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			err := room.Route(context.Background(), domain.NewMessage("offer", domain.ToPeer(tt.to), nil), port.RouteOptions{})
			assert.ErrorIs(t, err, domain.ErrNoSuchPeer)
		})
	}
	assert.Equal(t, int64(2), f.metrics.Count(port.MetricRouteFailures))
}

func TestRoomRouteMulticast(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	a, b, c := newFakeClient("a"), newFakeClient("b"), newFakeClient("c")
	join(t, room, a)
	join(t, room, b)
	join(t, room, c)
	a.reset()
	b.reset()
	c.reset()

	msg := domain.NewMessage("candidate", domain.ToPeers("b", "missing", "b", "c"), nil)
	require.NoError(t, room.Route(context.Background(), msg, port.RouteOptions{}))
	barrier(t, room)

	assert.Len(t, b.received(), 1)
	assert.Len(t, c.received(), 1)
	assert.Empty(t, a.received())
}

func TestRoomRouteBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		exclude bool
		wantA   int
	}{
		{"includes sender", false, 1},
		{"excludes sender", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			room := f.room(t, "lobby")
			a, b := newFakeClient("a"), newFakeClient("b")
			join(t, room, a)
			join(t, room, b)
			a.reset()

			msg := domain.NewMessage("hello", domain.ToAll(), nil).WithFrom("a")
			require.NoError(t, room.Route(context.Background(), msg, port.RouteOptions{ExcludeSender: tt.exclude}))
			barrier(t, room)

			assert.Len(t, a.received(), tt.wantA)
			assert.Len(t, b.received(), 1)
		})
	}
}

func TestRoomRouteEmptyBroadcast(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	a := newFakeClient("a")
	join(t, room, a)

	err := room.Route(context.Background(), domain.NewMessage("hello", domain.ToAll(), nil).WithFrom("a"), port.RouteOptions{ExcludeSender: true})
	require.NoError(t, err)
	barrier(t, room)
	assert.Empty(t, a.received())
}

func TestRoomRouteNoTarget(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	join(t, room, newFakeClient("a"))

	err := room.Route(context.Background(), domain.NewMessage("hello", domain.Target{}, nil), port.RouteOptions{})
	assert.ErrorIs(t, err, domain.ErrNoTarget)
}

func TestRoomLeaveNotifiesAndTerminates(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	a, b := newFakeClient("a"), newFakeClient("b")
	join(t, room, a)
	join(t, room, b)

	require.NoError(t, room.Leave(context.Background(), "b", b))
	assert.Equal(t, []domain.PeerID{"a"}, barrier(t, room))
	assert.Equal(t, []string{domain.EventJoined, domain.EventLeft}, a.events())

	// absent id is a no-op
	require.NoError(t, room.Leave(context.Background(), "zzz", nil))
	assert.Equal(t, []domain.PeerID{"a"}, barrier(t, room))

	require.NoError(t, room.Leave(context.Background(), "a", nil))
	waitDone(t, room)

	_, ok := f.registry.Lookup("lobby")
	assert.False(t, ok)
	assert.Equal(t, int64(0), f.metrics.Count(port.MetricRooms))
	assert.Equal(t, int64(0), f.metrics.Count(port.MetricPeers))

	_, err := room.Join(context.Background(), "c", newFakeClient("c"))
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
	assert.NoError(t, room.Leave(context.Background(), "c", nil))
}

func TestRoomStop(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	join(t, room, newFakeClient("a"))
	join(t, room, newFakeClient("b"))

	require.NoError(t, room.Stop(context.Background()))
	waitDone(t, room)

	_, ok := f.registry.Lookup("lobby")
	assert.False(t, ok)
	assert.Equal(t, int64(0), f.metrics.Count(port.MetricPeers))

	_, err := room.Members(context.Background())
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
	assert.NoError(t, room.Stop(context.Background()))

	// the name is free for a new room
	fresh := f.room(t, "lobby")
	assert.NotSame(t, room, fresh)
	join(t, fresh, newFakeClient("a"))
}

func TestRoomRecoversFromPanic(t *testing.T) {
	f := newFixture()
	room := f.room(t, "lobby")
	bad := newFakeClient("bad")
	join(t, room, bad)
	bad.setPanic(true)

	err := room.Route(context.Background(), domain.NewMessage("x", domain.ToPeer("bad"), nil), port.RouteOptions{})
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
	waitDone(t, room)

	_, ok := f.registry.Lookup("lobby")
	assert.False(t, ok)

	other := f.room(t, "other")
	join(t, other, newFakeClient("a"))
}
