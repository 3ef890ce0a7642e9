package port

import (
	"github.com/Wyydra/rendezvous/internal/core/domain"
)

// Transport is the peer side of an accepted connection. Only the peer's own
// goroutine writes data frames to it.
type Transport interface {
	WriteFrame(f domain.Frame) error
	Close(code domain.CloseCode, reason string) error
	RemoteAddr() string
}

// Configurable transports accept the read limit chosen by OnInit.
type Configurable interface {
	SetReadLimit(limit int64)
}
