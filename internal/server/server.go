package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yourorg/apispec/internal/jobs"
	"github.com/yourorg/apispec/internal/store"
	"github.com/yourorg/apispec/pkg/types"
)

// Server exposes the job submission, status, retry and archive surfaces.
type Server struct {
	manager *jobs.Manager
	archive store.Store
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New constructs a Server with routes registered. The archive may be nil
// when archiving is disabled.
func New(manager *jobs.Manager, archive store.Store, logger *slog.Logger) (*Server, error) {
	if manager == nil {
		return nil, errors.New("manager is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		manager: manager,
		archive: archive,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the server on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/v1/jobs/", s.handleJobRoutes)
	s.mux.HandleFunc("/api/v1/specs", s.handleSpecs)
	s.mux.HandleFunc("/api/v1/specs/", s.handleSpecDetail)
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
}

type submitRequest struct {
	URL            string   `json:"url"`
	BaseURL        string   `json:"base_url"`
	AdditionalURLs []string `json:"additional_urls"`
	UseBrowser     bool     `json:"use_browser"`
	OracleKey      string   `json:"oracle_key"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}
	job := s.manager.Submit(jobs.Request{
		URL:            req.URL,
		BaseURL:        req.BaseURL,
		AdditionalURLs: req.AdditionalURLs,
		RenderHint:     req.UseBrowser,
		OracleKey:      req.OracleKey,
	})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	id, tail, ok := splitPath(r.URL.Path, "/api/v1/jobs/")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}
	switch tail {
	case "":
		s.handleJobStatus(w, r, id)
	case "retry":
		s.handleJobRetry(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	job, ok := s.manager.Get(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobRetry(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	job, err := s.manager.RetrySynthesis(id)
	if err != nil {
		var stateErr *jobs.StateError
		if errors.As(err, &stateErr) {
			status := http.StatusConflict
			if stateErr.Reason == "not found" {
				status = http.StatusNotFound
			}
			http.Error(w, stateErr.Error(), status)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSpecs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}
	specs, err := s.archive.ListSpecs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, specs)
}

func (s *Server) handleSpecDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, tail, ok := splitPath(r.URL.Path, "/api/v1/specs/")
	if !ok || id == "" || tail != "" {
		http.NotFound(w, r)
		return
	}
	if s.archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}
	rec, err := s.archive.GetSpec(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "spec not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := s.manager.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "up",
		"jobs": map[string]int{
			"queued":     stats[types.StatusQueued],
			"processing": stats[types.StatusProcessing],
			"completed":  stats[types.StatusCompleted],
			"failed":     stats[types.StatusFailed],
		},
	})
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
