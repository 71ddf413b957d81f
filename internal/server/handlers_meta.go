package server

import (
	"net/http"

	"capsd/internal/api"
)

// Version is stamped by the build.
var Version = "dev"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.InfoResponse{
		Version:        Version,
		MaxUploadBytes: s.cfg.Uploads.MaxUploadBytes,
		ChunkSizeBytes: s.cfg.Uploads.ChunkSizeBytes,
		SessionTimeout: s.cfg.Uploads.SessionTimeoutSecs,
	})
}
