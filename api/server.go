// Package api - the HTTP surface: one detection endpoint plus model info and
// health probes.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nvr-ai/go-person-detect/detector"
	"github.com/nvr-ai/go-person-detect/images"
	"github.com/nvr-ai/go-person-detect/postprocess"
)

// Server exposes a detector over HTTP.
type Server struct {
	detector       detector.Detector
	router         *mux.Router
	maxUploadBytes int64
}

// detectResponse is the detect endpoint's body, success or failure.
type detectResponse struct {
	Success     bool                     `json:"success"`
	Message     string                   `json:"message,omitempty"`
	Detections  postprocess.DetectionSet `json:"detections,omitempty"`
	Summary     *postprocess.Summary     `json:"summary,omitempty"`
	InferenceMs float64                  `json:"inference_ms,omitempty"`
}

// NewServer wires the routes over the given detector. maxUploadMB caps the
// request body on the detect endpoint.
func NewServer(d detector.Detector, maxUploadMB int) *Server {
	if maxUploadMB <= 0 {
		maxUploadMB = 500
	}
	s := &Server{
		detector:       d,
		router:         mux.NewRouter(),
		maxUploadBytes: int64(maxUploadMB) << 20,
	}

	s.router.HandleFunc("/api/v1/detect", s.handleDetect).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/model", s.handleModel).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return s
}

// Router returns the HTTP handler for mounting or serving.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe runs the server on addr until it fails.
func (s *Server) ListenAndServe(addr string) error {
	log.Printf("🌐 listening on %s", addr)
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return server.ListenAndServe()
}

// handleDetect accepts an image as a multipart "file" part or as the raw
// request body, runs detection and returns the detections with a summary.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	data, err := s.readImagePayload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, detectResponse{Message: err.Error()})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, detectResponse{Message: "empty image payload"})
		return
	}

	img, err := images.Decode(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, detectResponse{Message: "unsupported or corrupt image: " + err.Error()})
		return
	}

	start := time.Now()
	detections, err := s.detector.DetectPersons(r.Context(), img)
	if err != nil {
		log.Printf("⚠️ detection failed: %v", err)
		writeJSON(w, http.StatusBadGateway, detectResponse{Message: "detection failed: " + err.Error()})
		return
	}

	summary := postprocess.Summarize(detections)
	writeJSON(w, http.StatusOK, detectResponse{
		Success:     true,
		Detections:  detections,
		Summary:     &summary,
		InferenceMs: float64(time.Since(start).Nanoseconds()) / 1e6,
	})
}

// readImagePayload pulls the image bytes out of a multipart form's "file"
// part, or the raw body when the request is not multipart. Both paths honor
// the upload cap.
func (s *Server) readImagePayload(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.maxUploadBytes); err == nil {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	return io.ReadAll(r.Body)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.detector.ModelInfo())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("⚠️ writing response: %v", err)
	}
}
