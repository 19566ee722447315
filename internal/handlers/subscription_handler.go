package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// SubscriptionHandler serves /api/subscribe
type SubscriptionHandler struct {
	subscriptions interfaces.SubscriptionService
	logger        arbor.ILogger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptions interfaces.SubscriptionService, logger arbor.ILogger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

// setActiveRequest is the body of PUT /api/subscribe/{id}/active and /api/track/{id}/active
type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (req setActiveRequest) validate() error {
	if req.Active == nil {
		return common.NewValidationError("active", "is required")
	}
	return nil
}

// CreateHandler handles POST /api/subscribe/create
func (h *SubscriptionHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubscriptionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	sub, err := h.subscriptions.Create(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "subscription", sub)
}

// ListHandler handles GET /api/subscribe/list
func (h *SubscriptionHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscriptions.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "subscriptions", subs)
}

// DeleteHandler handles DELETE /api/subscribe/{id}
func (h *SubscriptionHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.subscriptions.Delete(r.Context(), r.PathValue("id")); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "", nil)
}

// RefreshHandler handles POST /api/subscribe/{id}/refresh. A failed fetch is
// recorded on the subscription and does not fail the request.
func (h *SubscriptionHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.subscriptions.Refresh(r.Context(), id); err != nil && !errors.Is(err, common.ErrUpstream) {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	sub, err := h.subscriptions.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "subscription", sub)
}

// SetActiveHandler handles PUT /api/subscribe/{id}/active
func (h *SubscriptionHandler) SetActiveHandler(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	if err := req.validate(); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	sub, err := h.subscriptions.SetActive(r.Context(), r.PathValue("id"), *req.Active)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "subscription", sub)
}
