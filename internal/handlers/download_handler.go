package handlers

import (
	"net/http"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// DownloadHandler serves /api/download
type DownloadHandler struct {
	downloads interfaces.DownloadService
	logger    arbor.ILogger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(downloads interfaces.DownloadService, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{downloads: downloads, logger: logger}
}

// AnalyzeHandler handles POST /api/download/analyze. Fetch failures return 502.
func (h *DownloadHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	candidates, err := h.downloads.Analyze(r.Context(), req.URL)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "downloads", candidates)
}

// StartHandler handles POST /api/download/start
func (h *DownloadHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.StartDownloadRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	download, err := h.downloads.Start(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "download", download)
}

// ListHandler handles GET /api/download/list
func (h *DownloadHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	downloads, err := h.downloads.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "downloads", downloads)
}
