package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Wyydra/rendezvous/internal/adapter/driven/metrics"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/Wyydra/rendezvous/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// MaxMessageSize caps inbound frames and admin message bodies.
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	// AllowedOrigins lists the origins accepted on upgrade. Empty allows any.
	AllowedOrigins []string
}

type Handler struct {
	Broker  *service.Broker
	Metrics *metrics.Metrics

	cfg      Config
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHandler(broker *service.Broker, m *metrics.Metrics, cfg Config) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		Broker:  broker,
		Metrics: m,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Close disconnects every websocket served by h. Hijacked connections are
// not tracked by http.Server.Shutdown.
func (h *Handler) Close() {
	h.cancel()
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/metrics", h.MetricsJSON)

	r.Get("/ws", h.ServeWS)
	r.Get("/ws/{room}", h.ServeWS)

	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", h.ListRooms)
		r.Get("/{room}", h.GetRoom)
		r.Delete("/{room}", h.StopRoom)
		r.Post("/{room}/messages", h.PostMessage)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]int64{
		"rooms": int64(len(h.Broker.Rooms())),
	}
	if h.Metrics != nil {
		stats["peers"] = h.Metrics.Count(port.MetricPeers)
		stats["messages_routed"] = h.Metrics.Count(port.MetricRouted)
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) MetricsJSON(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	h.Metrics.WriteJSON(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, description string) {
	writeJSON(w, status, map[string]string{"error": description})
}
