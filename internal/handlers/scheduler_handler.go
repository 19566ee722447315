package handlers

import (
	"net/http"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	schedulerService interfaces.SchedulerService
	logger           arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(schedulerService interfaces.SchedulerService, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		schedulerService: schedulerService,
		logger:           logger,
	}
}

// StatusHandler handles GET /api/scheduler/status
func (h *SchedulerHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, "scheduler", h.schedulerService.Status())
}

// TriggerHandler handles POST /api/scheduler/trigger
func (h *SchedulerHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.schedulerService.TriggerNow(); err != nil {
		h.logger.Warn().Err(err).Msg("Manual scheduler trigger rejected")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	WriteSuccess(w, "", nil)
}
