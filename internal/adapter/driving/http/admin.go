package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const defaultAdminBodyLimit = 1 << 20

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"rooms": h.Broker.Rooms()})
}

func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")
	room, ok := h.Broker.Room(name)
	if !ok {
		writeError(w, http.StatusNotFound, "no such room")
		return
	}
	members, err := room.Members(r.Context())
	if err != nil {
		roomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    name,
		"members": members,
	})
}

func (h *Handler) StopRoom(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")
	room, ok := h.Broker.Room(name)
	if !ok {
		writeError(w, http.StatusNotFound, "no such room")
		return
	}
	if err := room.Stop(r.Context()); err != nil {
		roomError(w, err)
		return
	}
	log.Info().Str("room", name).Msg("Room stopped by admin")
	w.WriteHeader(http.StatusNoContent)
}

// PostMessage routes a server originated message. The body uses the wire
// format; a message without a target goes to the whole room.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")
	room, ok := h.Broker.Room(name)
	if !ok {
		writeError(w, http.StatusNotFound, "no such room")
		return
	}

	limit := h.cfg.MaxMessageSize
	if limit <= 0 {
		limit = defaultAdminBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if int64(len(body)) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "message too large")
		return
	}

	msg, err := h.Broker.Codec().Decode(body)
	if err != nil {
		desc := domain.ErrInvalidMessage.Error()
		var de *domain.DecodeError
		if errors.As(err, &de) {
			desc = de.Description()
		}
		writeError(w, http.StatusBadRequest, desc)
		return
	}
	if msg.Event == "" {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidMessage.Error())
		return
	}
	if msg.To.Kind == domain.TargetNone {
		msg = msg.WithTo(domain.ToAll())
	}

	if err := room.Route(r.Context(), msg, port.RouteOptions{}); err != nil {
		roomError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func roomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoSuchPeer):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRoomUnavailable):
		writeError(w, http.StatusNotFound, "no such room")
	default:
		log.Error().Err(err).Msg("Room operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
