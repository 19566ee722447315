package handlers

import (
	"net/http"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// NotificationHandler serves /api/notifications
type NotificationHandler struct {
	notifications interfaces.NotificationService
	logger        arbor.ILogger
}

func NewNotificationHandler(notifications interfaces.NotificationService, logger arbor.ILogger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// ListHandler handles GET /api/notifications
func (h *NotificationHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.notifications.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "notifications", list)
}

// MarkReadHandler handles POST /api/notifications/read/{id}
func (h *NotificationHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "", nil)
}
