package server

import (
	"encoding/json"
	"net/http"

	"github.com/ocellus/visionpipe/pkg/version"
)

// handleVersion handles the /version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.GetInfo()
	
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	
	if err := json.NewEncoder(w).Encode(versionInfo); err != nil {
		s.logger.WithError(err).Error("Failed to encode version response")
		s.errorHandler.HandleError(w, r, err)
	}
}

// handlePipelinesPlaceholder is a placeholder for the pipelines endpoint
// when no pipeline API has been registered
func (s *Server) handlePipelinesPlaceholder(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Message string `json:"message"`
	}{
		Message: "Pipelines endpoint requires the vision manager to be enabled",
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
		s.errorHandler.HandleError(w, r, err)
	}
}

// handleRoot returns basic service information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Service string `json:"service"`
		API     string `json:"api"`
	}{
		Service: "visionpipe",
		API:     "/api/v1",
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
		s.errorHandler.HandleError(w, r, err)
	}
}

// writeJSON is a helper to write JSON responses
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// writeError is a helper to write error responses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r, err)
}
