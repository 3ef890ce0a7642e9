package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoSuchPeer         = errors.New("no such peer")
	ErrNoTarget           = errors.New("message has no target")
	ErrRoomUnavailable    = errors.New("room unavailable")
	ErrInvalidJSON        = errors.New("invalid json")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrLifecycleViolation = errors.New("lifecycle violation")
	ErrPeerClosed         = errors.New("peer closed")
)

// AuthError rejects a connection before it opens. Status is what the
// transport answers the upgrade request with.
type AuthError struct {
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d): %s", e.Status, e.Reason)
}

func NewAuthError(reason string) *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Reason: reason}
}

// DecodeError wraps ErrInvalidJSON or ErrInvalidMessage with the cause.
type DecodeError struct {
	Kind  error
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

// Description is the fixed text reported back to the peer.
func (e *DecodeError) Description() string {
	return e.Kind.Error()
}

// Violation reports an extension callback result outside its contract.
func Violation(callback, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrLifecycleViolation, callback, fmt.Sprintf(format, args...))
}

// Close reasons reported to OnTerminate.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrRoomClosed      = errors.New("room closed")
	ErrIdleTimeout     = errors.New("idle timeout")
)
