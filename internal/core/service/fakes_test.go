package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/rendezvous/internal/adapter/driven/metrics"
	"github.com/Wyydra/rendezvous/internal/adapter/driven/registry/memory"
	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const waitTimeout = time.Second

type fakeClient struct {
	id domain.PeerID

	mu       sync.Mutex
	msgs     []domain.Message
	refuse   bool
	panicked bool
}

func newFakeClient(id domain.PeerID) *fakeClient {
	return &fakeClient{id: id}
}

func (c *fakeClient) ID() domain.PeerID {
	return c.id
}

func (c *fakeClient) Deliver(msg domain.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicked {
		panic("deliver")
	}
	if c.refuse {
		return false
	}
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeClient) setRefuse(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refuse = v
}

func (c *fakeClient) setPanic(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicked = v
}

func (c *fakeClient) received() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.msgs...)
}

func (c *fakeClient) events() []string {
	var out []string
	for _, m := range c.received() {
		out = append(out, m.Event)
	}
	return out
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

type fakeTransport struct {
	mu        sync.Mutex
	frames    []domain.Frame
	closed    bool
	code      domain.CloseCode
	reason    string
	readLimit int64
	failWrite error
}

func (t *fakeTransport) WriteFrame(f domain.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWrite != nil {
		return t.failWrite
	}
	t.frames = append(t.frames, f)
	return nil
}

func (t *fakeTransport) Close(code domain.CloseCode, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.code = code
	t.reason = reason
	return nil
}

func (t *fakeTransport) RemoteAddr() string {
	return "127.0.0.1:4000"
}

func (t *fakeTransport) SetReadLimit(limit int64) {
	t.readLimit = limit
}

func (t *fakeTransport) written() []domain.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Frame(nil), t.frames...)
}

func (t *fakeTransport) isClosed() (bool, domain.CloseCode, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.code, t.reason
}

type fixture struct {
	registry *memory.Registry
	metrics  *metrics.Metrics
	factory  port.RoomFactory
}

func newFixture() *fixture {
	reg := memory.NewRegistry()
	m := metrics.New()
	return &fixture{
		registry: reg,
		metrics:  m,
		factory:  NewRoomFactory(reg, zerolog.Nop(), m),
	}
}

func (f *fixture) room(t *testing.T, name string) port.Room {
	t.Helper()
	room, _ := f.registry.RegisterOrGet(name, f.factory)
	return room
}

func join(t *testing.T, room port.Room, c *fakeClient) port.JoinResult {
	t.Helper()
	res, err := room.Join(context.Background(), c.id, c)
	require.NoError(t, err)
	return res
}

// barrier waits until every queued room operation has been applied.
func barrier(t *testing.T, room port.Room) []domain.PeerID {
	t.Helper()
	members, err := room.Members(context.Background())
	require.NoError(t, err)
	return members
}

func waitDone(t *testing.T, room port.Room) {
	t.Helper()
	select {
	case <-room.Done():
	case <-time.After(waitTimeout):
		t.Fatal("room did not terminate")
	}
}
