package port

import "github.com/Wyydra/rendezvous/internal/core/domain"

// Client is the handle a Room stores for each member. Deliver must never
// block; it reports false when the connection is gone or saturated.
type Client interface {
	ID() domain.PeerID
	Deliver(msg domain.Message) bool
}
