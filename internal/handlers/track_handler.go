package handlers

import (
	"net/http"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// TrackHandler serves /api/track
type TrackHandler struct {
	tracks interfaces.TrackService
	logger arbor.ILogger
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(tracks interfaces.TrackService, logger arbor.ILogger) *TrackHandler {
	return &TrackHandler{tracks: tracks, logger: logger}
}

// CreateHandler handles POST /api/track/create. Platform names are matched
// case-insensitively against the registry; an unknown name rejects the whole
// request with 400 and nothing is stored.
func (h *TrackHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTrackRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	track, err := h.tracks.Create(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "track", track)
}

// ListHandler handles GET /api/track/list
func (h *TrackHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.tracks.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "tracks", tracks)
}

// DeleteHandler handles DELETE /api/track/{id}
func (h *TrackHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.tracks.Delete(r.Context(), r.PathValue("id")); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "", nil)
}

// RefreshHandler handles POST /api/track/{id}/refresh
func (h *TrackHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.tracks.Refresh(r.Context(), id); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	track, err := h.tracks.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "track", track)
}

// SetActiveHandler handles PUT /api/track/{id}/active
func (h *TrackHandler) SetActiveHandler(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	if err := req.validate(); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	track, err := h.tracks.SetActive(r.Context(), r.PathValue("id"), *req.Active)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "track", track)
}
