package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"

	apperrors "github.com/ocellus/visionpipe/internal/errors"
	"github.com/ocellus/visionpipe/internal/health"
	"github.com/ocellus/visionpipe/internal/pipeline"
	"github.com/ocellus/visionpipe/internal/source"
	"github.com/ocellus/visionpipe/internal/vision"
)

// createPipelineRequest is the POST /api/v1/pipelines body.
type createPipelineRequest struct {
	Detector string  `json:"detector"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	// FrameRate > 0 attaches a synthetic pattern source producing at that
	// rate; 0 creates a pipeline that only accepts pushed frames.
	FrameRate   float64 `json:"frame_rate"`
	PixelFormat string  `json:"pixel_format"`
}

// pipelineResponse is the JSON shape of one pipeline in API responses.
type pipelineResponse struct {
	ID        string            `json:"id"`
	Detector  string            `json:"detector"`
	Source    string            `json:"source,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Stats     pipeline.Snapshot `json:"stats"`
}

func toPipelineResponse(p *vision.Pipeline) pipelineResponse {
	resp := pipelineResponse{
		ID:        p.ID,
		Detector:  p.Detector.Name(),
		CreatedAt: p.CreatedAt,
		Stats:     p.Processor.Stats(),
	}
	if p.Source != nil {
		resp.Source = p.Source.Name()
	}
	return resp
}

// RegisterPipelineAPI wires the vision manager into the API router and
// into the health sweep.
func (s *Server) RegisterPipelineAPI(manager *vision.Manager) {
	s.healthMgr.Register(health.NewPipelineChecker(manager))
	s.RegisterRoutes(func(router *mux.Router) {
		api := router.PathPrefix("/api/v1").Subrouter()
		api.HandleFunc("/pipelines", s.handleListPipelines(manager)).Methods("GET")
		api.HandleFunc("/pipelines", s.handleCreatePipeline(manager)).Methods("POST")
		api.HandleFunc("/pipelines/{id}", s.handleGetPipeline(manager)).Methods("GET")
		api.HandleFunc("/pipelines/{id}", s.handleStopPipeline(manager)).Methods("DELETE")
		api.HandleFunc("/pipelines/{id}/stats", s.handlePipelineStats(manager)).Methods("GET")
		api.HandleFunc("/pipelines/{id}/overlay", s.handlePipelineOverlay(manager)).Methods("GET")
		api.HandleFunc("/pipelines/{id}/detect", s.handleDetectStill(manager)).Methods("POST")
	})
}

func (s *Server) handleListPipelines(manager *vision.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipelines := manager.List()

		out := make([]pipelineResponse, 0, len(pipelines))
		for _, p := range pipelines {
			out = append(out, toPipelineResponse(p))
		}

		if err := s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"pipelines": out,
			"count":     len(out),
		}); err != nil {
			s.logger.WithError(err).Error("Failed to encode pipelines response")
		}
	}
}

func (s *Server) handleCreatePipeline(manager *vision.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPipelineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		opts := vision.CreateOptions{
			Detector:  req.Detector,
			Width:     req.Width,
			Height:    req.Height,
			FrameRate: req.FrameRate,
		}

		if req.FrameRate > 0 {
			format, err := pipeline.ParsePixelFormat(req.PixelFormat)
			if err != nil {
				s.writeError(w, r, apperrors.NewValidationError(err.Error()))
				return
			}
			src, err := source.NewPattern(source.PatternConfig{
				Width:       req.Width,
				Height:      req.Height,
				FrameRate:   req.FrameRate,
				PixelFormat: format,
			})
			if err != nil {
				s.writeError(w, r, apperrors.NewValidationError(err.Error()))
				return
			}
			opts.Source = src
		}

		p, err := manager.Create(r.Context(), opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.writeJSON(w, http.StatusCreated, toPipelineResponse(p)); err != nil {
			s.logger.WithError(err).Error("Failed to encode pipeline response")
		}
	}
}

func (s *Server) handleGetPipeline(manager *vision.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		p, err := manager.Get(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.writeJSON(w, http.StatusOK, toPipelineResponse(p)); err != nil {
			s.logger.WithError(err).Error("Failed to encode pipeline response")
		}
	}
}

func (s *Server) handleStopPipeline(manager *vision.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if err := manager.StopPipeline(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handlePipelineStats(manager *vision.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		snap, err := manager.Stats(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.writeJSON(w, http.StatusOK, snap); err != nil {
			s.logger.WithError(err).Error("Failed to encode stats response")
		}
	}
}

// maxStillImageBytes bounds the request body for one-shot detections.
const maxStillImageBytes = 32 << 20

// handleDetectStill accepts an encoded image (PNG, JPEG, GIF, ...) and runs
// a one-shot detection on it through the pipeline's result sink. The
// detection is asynchronous; results land on the overlay and in the latency
// stats, so the response only acknowledges the submission.
func (s *Server) handleDetectStill(manager *vision.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		img, err := imaging.Decode(io.LimitReader(r.Body, maxStillImageBytes))
		if err != nil {
			s.writeError(w, r, apperrors.New(apperrors.ErrorTypeUnsupported,
				"request body is not a decodable image: "+err.Error(),
				http.StatusUnsupportedMediaType))
			return
		}

		bounds := img.Bounds()
		frame := pipeline.NewImageFrame(img, pipeline.Metadata{
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})

		if err := manager.ProcessStill(id, frame); err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"pipeline_id": id,
			"frame_id":    frame.ID,
			"width":       bounds.Dx(),
			"height":      bounds.Dy(),
		}); err != nil {
			s.logger.WithError(err).Error("Failed to encode detect response")
		}
	}
}

// handlePipelineOverlay serves the most recently published annotation set.
func (s *Server) handlePipelineOverlay(manager *vision.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		p, err := manager.Get(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		anns := p.Overlay.Annotations()
		out := make([]map[string]interface{}, 0, len(anns))
		for _, a := range anns {
			out = append(out, map[string]interface{}{
				"label":      a.Label(),
				"annotation": a,
			})
		}

		if err := s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"pipeline_id": id,
			"repaints":    p.Overlay.Repaints(),
			"annotations": out,
		}); err != nil {
			s.logger.WithError(err).Error("Failed to encode overlay response")
		}
	}
}
