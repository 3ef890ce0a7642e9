package port

import (
	"context"

	"github.com/Wyydra/rendezvous/internal/core/domain"
)

type JoinResult struct {
	// Replaced is set when the id was already present and its handle got
	// swapped for the new one.
	Replaced bool
}

type RouteOptions struct {
	// ExcludeSender suppresses delivery of a broadcast to msg.From.
	ExcludeSender bool
}

// Room is the control surface of a room actor.
type Room interface {
	Name() string
	Join(ctx context.Context, id domain.PeerID, c Client) (JoinResult, error)
	// Leave removes id. With a non-nil client the entry is only removed while
	// it still maps to that handle.
	Leave(ctx context.Context, id domain.PeerID, c Client) error
	Route(ctx context.Context, msg domain.Message, opts RouteOptions) error
	Stop(ctx context.Context) error
	Members(ctx context.Context) ([]domain.PeerID, error)
	// Done is closed once the room has unregistered and stopped.
	Done() <-chan struct{}
}

type RoomFactory func(name string) Room
