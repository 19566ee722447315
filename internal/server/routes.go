package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("GET /ws", s.app.WSHandler.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("GET /api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("GET /api/version", s.app.APIHandler.VersionHandler)

	// API routes - Tasks
	mux.HandleFunc("POST /api/task/create", s.app.TaskHandler.CreateHandler)
	mux.HandleFunc("GET /api/task/list", s.app.TaskHandler.ListHandler)
	mux.HandleFunc("GET /api/task/{id}", s.app.TaskHandler.GetHandler)
	mux.HandleFunc("POST /api/task/{id}/cancel", s.app.TaskHandler.CancelHandler)

	// API routes - Subscriptions
	mux.HandleFunc("POST /api/subscribe/create", s.app.SubscriptionHandler.CreateHandler)
	mux.HandleFunc("GET /api/subscribe/list", s.app.SubscriptionHandler.ListHandler)
	mux.HandleFunc("DELETE /api/subscribe/{id}", s.app.SubscriptionHandler.DeleteHandler)
	mux.HandleFunc("POST /api/subscribe/{id}/refresh", s.app.SubscriptionHandler.RefreshHandler)
	mux.HandleFunc("PUT /api/subscribe/{id}/active", s.app.SubscriptionHandler.SetActiveHandler)

	// API routes - Tracks
	mux.HandleFunc("POST /api/track/create", s.app.TrackHandler.CreateHandler)
	mux.HandleFunc("GET /api/track/list", s.app.TrackHandler.ListHandler)
	mux.HandleFunc("DELETE /api/track/{id}", s.app.TrackHandler.DeleteHandler)
	mux.HandleFunc("POST /api/track/{id}/refresh", s.app.TrackHandler.RefreshHandler)
	mux.HandleFunc("PUT /api/track/{id}/active", s.app.TrackHandler.SetActiveHandler)

	// API routes - Downloads
	mux.HandleFunc("POST /api/download/analyze", s.app.DownloadHandler.AnalyzeHandler)
	mux.HandleFunc("POST /api/download/start", s.app.DownloadHandler.StartHandler)
	mux.HandleFunc("GET /api/download/list", s.app.DownloadHandler.ListHandler)

	// API routes - Notifications
	mux.HandleFunc("GET /api/notifications", s.app.NotificationHandler.ListHandler)
	mux.HandleFunc("POST /api/notifications/read/{id}", s.app.NotificationHandler.MarkReadHandler)

	// API routes - Scheduler
	mux.HandleFunc("GET /api/scheduler/status", s.app.SchedulerHandler.StatusHandler)
	mux.HandleFunc("POST /api/scheduler/trigger", s.app.SchedulerHandler.TriggerHandler)

	// Everything else
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
