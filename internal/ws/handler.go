package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Manojseetaram/code-share-clone/internal/room"
	"github.com/Manojseetaram/code-share-clone/internal/slug"
)

// Handler upgrades GET /ws/{slug} requests and seats each connection in the
// slug's room.
type Handler struct {
	registry *room.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(registry *room.Registry, logger *slog.Logger, allowedOrigin string) *Handler {
	return &Handler{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin == "*" || r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sl := slug.FromPath(chi.URLParam(r, "slug"))
	if err := slug.Validate(sl); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Seat the connection before upgrading so a storage failure can still
	// surface as a plain HTTP error.
	rm, seat, err := h.registry.Acquire(r.Context(), sl)
	if err != nil {
		h.logger.Error("joining room failed",
			slog.String("slug", sl), slog.String("error", err.Error()))
		jsonError(w, http.StatusInternalServerError, "Failed to join")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own response; just give the
		// seat back.
		rm.Leave(seat)
		h.logger.Warn("websocket upgrade failed",
			slog.String("slug", sl), slog.String("error", err.Error()))
		return
	}

	s := newSession(rm, seat, conn, h.logger)
	go s.writePump()
	go s.readPump()
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
