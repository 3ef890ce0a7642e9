package domain

import (
	"github.com/google/uuid"
)

// PeerID identifies one connected peer inside a room. It is assigned during the
// handshake and never taken from an inbound message.
type PeerID string

func NewPeerID() PeerID {
	return PeerID(uuid.New().String())
}

func (id PeerID) String() string {
	return string(id)
}

func (id PeerID) IsZero() bool {
	return id == ""
}
