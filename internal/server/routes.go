package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - LMS sync jobs
	mux.HandleFunc("/api/lms/sync", s.app.SyncHandler.StartHandler)           // POST - start a sync worker
	mux.HandleFunc("/api/lms/sync/status", s.app.SyncHandler.StatusHandler)   // GET - ?job_id= or most recent
	mux.HandleFunc("/api/lms/sync/jobs", s.app.SyncHandler.JobsHandler)       // GET - active job table
	mux.HandleFunc("/api/lms/sync/history", s.app.SyncHandler.HistoryHandler) // GET - ?limit=
	mux.HandleFunc("/api/lms/sync/stream", s.app.StreamHandler.HandleStream)  // WebSocket status push
	mux.HandleFunc("/api/lms/sync/", s.app.SyncHandler.JobRoutes)             // POST /{job_id}/stop

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
