package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/arbor"
)

// APIHandler serves the system endpoints and the JSON 404 fallback
type APIHandler struct {
	logger    arbor.ILogger
	startedAt time.Time
}

func NewAPIHandler(logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		logger:    logger,
		startedAt: time.Now(),
	}
}

// VersionHandler returns build metadata
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// HealthHandler reports liveness with the server clock and uptime
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   now.UTC().Format(time.RFC3339),
		"uptime": now.Sub(h.startedAt).Round(time.Second).String(),
	})
}

func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.logger.Trace().Str("method", r.Method).Str("path", r.URL.Path).Msg("No route")
	WriteError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
}
