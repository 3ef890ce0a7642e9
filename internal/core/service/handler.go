package service

import (
	"errors"
	"net/http"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
)

// DefaultHandler implements every extension point with the broker's stock
// behaviour. Applications embed it and override what they need.
type DefaultHandler struct{}

var _ port.Handler = DefaultHandler{}

// ParseRequest takes the room from the {room} route parameter, falling back
// to the "room" query parameter.
func (DefaultHandler) ParseRequest(req *port.Request) (port.ParsedRequest, error) {
	room := req.Params["room"]
	if room == "" {
		room = req.Query.Get("room")
	}
	return port.ParsedRequest{RoomHint: room}, nil
}

// Authenticate accepts everyone into the hinted room under a fresh id.
func (DefaultHandler) Authenticate(_ *port.Request, parsed port.ParsedRequest) (port.AuthResult, error) {
	if parsed.RoomHint == "" {
		return port.AuthResult{}, &domain.AuthError{Status: http.StatusBadRequest, Reason: "missing room"}
	}
	return port.AuthResult{Room: parsed.RoomHint}, nil
}

func (DefaultHandler) OnInit(_ *port.Request, _ port.PeerContext, state any) (port.InitResult, error) {
	return port.InitResult{State: state}, nil
}

func (DefaultHandler) OnConnect(_ port.PeerContext, state any) (port.ConnectResult, error) {
	return port.ConnectResult{State: state}, nil
}

func (DefaultHandler) OnReceive(msg domain.Message, _ port.PeerContext, state any) (port.ReceiveResult, error) {
	return port.ReceiveResult{Message: &msg, State: state}, nil
}

// OnRouteError tells the sender its target is gone.
func (DefaultHandler) OnRouteError(err error, _ domain.Message, _ port.PeerContext, state any) (port.RouteErrorResult, error) {
	desc := err.Error()
	if errors.Is(err, domain.ErrNoSuchPeer) {
		desc = domain.ErrNoSuchPeer.Error()
	}
	reply := domain.ErrorMessage(desc)
	return port.RouteErrorResult{Reply: &reply, State: state}, nil
}

func (DefaultHandler) OnTerminate(error, *port.Request, port.PeerContext, any) {}
