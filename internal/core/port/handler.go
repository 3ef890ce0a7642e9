package port

import (
	"net/http"
	"net/url"
	"time"

	"github.com/Wyydra/rendezvous/internal/core/domain"
)

// Request is the upgrade request as seen by the extension callbacks.
type Request struct {
	Path       string
	Params     map[string]string
	Query      url.Values
	Header     http.Header
	RemoteAddr string
}

type ParsedRequest struct {
	RoomHint string
	Options  map[string]string
	State    any
}

// AuthResult accepts a connection. An empty PeerID asks the broker to
// generate one; a nil State keeps the state produced by ParseRequest.
type AuthResult struct {
	Room        string
	PeerID      domain.PeerID
	Credentials any
	Metadata    any
	State       any
}

// PeerContext describes the connection a callback runs for. Auth is only
// set during the handshake; afterwards Authorised reports the sentinel.
type PeerContext struct {
	Room       string
	PeerID     domain.PeerID
	Auth       *domain.AuthData
	Authorised bool
	RemoteAddr string
}

type InitOptions struct {
	IdleTimeout    time.Duration
	MaxMessageSize int64
	// ExcludeSelf drops this peer's own broadcasts from its inbox.
	ExcludeSelf bool
}

type InitResult struct {
	Options InitOptions
	State   any
}

type ConnectResult struct {
	Reply *domain.Message
	State any
	Close bool
}

// ReceiveResult with a nil Message suppresses forwarding.
type ReceiveResult struct {
	Message *domain.Message
	State   any
}

type RouteErrorResult struct {
	Reply *domain.Message
	State any
}

// Handler is the set of extension points a peer connection calls into.
// Embed service.DefaultHandler to override only some of them.
type Handler interface {
	ParseRequest(req *Request) (ParsedRequest, error)
	Authenticate(req *Request, parsed ParsedRequest) (AuthResult, error)
	OnInit(req *Request, pc PeerContext, state any) (InitResult, error)
	OnConnect(pc PeerContext, state any) (ConnectResult, error)
	OnReceive(msg domain.Message, pc PeerContext, state any) (ReceiveResult, error)
	OnRouteError(err error, msg domain.Message, pc PeerContext, state any) (RouteErrorResult, error)
	OnTerminate(reason error, req *Request, pc PeerContext, state any)
}
