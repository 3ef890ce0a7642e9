package http

import (
	"errors"
	"net/http"
	"slices"

	"github.com/Wyydra/rendezvous/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const frameBufferSize = 16

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

func newRequest(r *http.Request) *port.Request {
	params := map[string]string{}
	if room := chi.URLParam(r, "room"); room != "" {
		params["room"] = room
	}
	return &port.Request{
		Path:       r.URL.Path,
		Params:     params,
		Query:      r.URL.Query(),
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	peer, err := h.Broker.Open(r.Context(), newRequest(r))
	if err != nil {
		var ae *domain.AuthError
		if errors.As(err, &ae) {
			http.Error(w, ae.Reason, ae.Status)
			return
		}
		log.Error().Err(err).Msg("Failed to open peer")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		peer.Close(h.ctx, err)
		return
	}

	client := ws.NewClient(conn, ws.Options{
		WriteWait: h.cfg.WriteWait,
		PongWait:  h.cfg.PongWait,
	})
	if h.cfg.MaxMessageSize > 0 {
		client.SetReadLimit(h.cfg.MaxMessageSize)
	}

	l := log.With().Str("peer_id", peer.ID().String()).Str("room", peer.RoomName()).Logger()
	l.Info().Msg("New client connected")

	if err := peer.Start(h.ctx, client); err != nil {
		if !errors.Is(err, domain.ErrPeerClosed) {
			l.Error().Err(err).Msg("Failed to start peer")
		}
		return
	}

	frames := make(chan domain.Frame, frameBufferSize)
	done := make(chan struct{})
	go client.ReadPump(frames, done)
	go client.Keepalive(done)

	err = peer.Serve(h.ctx, frames)
	close(done)

	ev := l.Info()
	if err != nil {
		ev = l.Warn().Err(err)
	}
	ev.Msg("Client disconnected")
}
