package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Manojseetaram/code-share-clone/internal/apperror"
	"github.com/Manojseetaram/code-share-clone/internal/model"
	"github.com/Manojseetaram/code-share-clone/internal/room"
	"github.com/Manojseetaram/code-share-clone/internal/slug"
	"github.com/Manojseetaram/code-share-clone/internal/store"
)

type API struct {
	store    *store.Store
	registry *room.Registry
	logger   *slog.Logger
}

func New(st *store.Store, registry *room.Registry, logger *slog.Logger) *API {
	return &API{
		store:    st,
		registry: registry,
		logger:   logger,
	}
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error("encoding response failed", slog.String("error", err.Error()))
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError translates validation and storage errors into HTTP responses.
// AppError messages are client-safe; anything else becomes an opaque 500.
func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrInvalidSlug):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrSlugTaken):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", slog.String("error", err.Error()))
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		a.errorResponse(w, status, appErr.Message)
		return
	}
	a.errorResponse(w, status, "Internal server error")
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"active_rooms":   a.registry.RoomCount(),
		"active_clients": a.registry.ConnCount(),
		"rooms":          a.registry.ActiveRooms(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if total, err := a.store.CountLive(r.Context()); err == nil {
		stats["total_snippets"] = total
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

type CheckResponse struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
}

// CheckSlugHandler reports whether a slug can still be claimed. Invalid
// slugs read as unavailable rather than erroring, so the caller can probe
// raw user input directly.
func (a *API) CheckSlugHandler(w http.ResponseWriter, r *http.Request) {
	sl := slug.FromPath(chi.URLParam(r, "slug"))
	if err := slug.Validate(sl); err != nil {
		a.jsonResponse(w, http.StatusOK, CheckResponse{Slug: sl, Available: false})
		return
	}

	available, err := a.store.Available(r.Context(), sl)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.jsonResponse(w, http.StatusOK, CheckResponse{Slug: sl, Available: available})
}

type CreateSnippetRequest struct {
	Slug     string        `json:"slug"`
	Content  string        `json:"content"`
	Language string        `json:"language"`
	Images   []model.Image `json:"images"`
}

func (a *API) CreateSnippetHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSnippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		snip *model.Snippet
		err  error
	)
	if req.Slug != "" {
		sl := slug.Sanitize(req.Slug)
		if err := slug.Validate(sl); err != nil {
			a.writeError(w, err)
			return
		}
		snip, err = a.store.Create(r.Context(), sl, req.Content, req.Language, req.Images)
	} else {
		snip, err = a.store.Allocate(r.Context(), req.Content, req.Language, req.Images)
	}
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.jsonResponse(w, http.StatusCreated, snip)
}

func (a *API) GetSnippetHandler(w http.ResponseWriter, r *http.Request) {
	sl := slug.FromPath(chi.URLParam(r, "slug"))

	snip, err := a.store.Get(r.Context(), sl)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.jsonResponse(w, http.StatusOK, snip)
}

type PatchSnippetRequest struct {
	Content  *string        `json:"content"`
	Language *string        `json:"language"`
	Images   *[]model.Image `json:"images"`
}

// PatchSnippetHandler updates only the fields present in the body. Patching
// an absent or expired snippet succeeds without effect.
func (a *API) PatchSnippetHandler(w http.ResponseWriter, r *http.Request) {
	sl := slug.FromPath(chi.URLParam(r, "slug"))

	var req PatchSnippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := a.store.Patch(r.Context(), sl, req.Content, req.Language, req.Images); err != nil {
		a.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) DeleteSnippetHandler(w http.ResponseWriter, r *http.Request) {
	sl := slug.FromPath(chi.URLParam(r, "slug"))

	if err := a.store.Delete(r.Context(), sl); err != nil {
		a.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
