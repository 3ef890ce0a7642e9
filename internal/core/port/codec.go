package port

import "github.com/Wyydra/rendezvous/internal/core/domain"

type Codec interface {
	// Decode returns a *domain.DecodeError on malformed input.
	Decode(b []byte) (domain.Message, error)
	Encode(msg domain.Message) ([]byte, error)
}
