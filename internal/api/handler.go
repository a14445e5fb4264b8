// Package api exposes the HTTP surface of the service: job submission,
// status, downloads, cache inspection, and catalog search.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/driftaudio/driftd/internal/cache"
	"github.com/driftaudio/driftd/internal/scheduler"
	"github.com/driftaudio/driftd/internal/search"
	"github.com/driftaudio/driftd/internal/store"
	"github.com/driftaudio/driftd/pkg/models"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 25
)

// Submitter admits jobs for execution.
type Submitter interface {
	Submit(req models.Request) (*models.Job, error)
}

// Handler serves the public API.
type Handler struct {
	submitter Submitter
	jobs      store.JobStore
	cache     *cache.Cache
	searcher  search.Searcher
}

// NewHandler creates the API handler.
func NewHandler(submitter Submitter, jobs store.JobStore, c *cache.Cache, searcher search.Searcher) *Handler {
	return &Handler{
		submitter: submitter,
		jobs:      jobs,
		cache:     c,
		searcher:  searcher,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/process", h.Process).Methods("POST")
	r.HandleFunc("/preview", h.Preview).Methods("POST")
	r.HandleFunc("/status/{id}", h.Status).Methods("GET")
	r.HandleFunc("/download/{id}", h.Download).Methods("GET")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/cache-status", h.CacheStatus).Methods("GET")
	r.HandleFunc("/search", h.Search).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// processRequest is the submission body. Effect parameters are pointers so
// that omitted fields take the documented defaults while explicit zeros are
// preserved.
type processRequest struct {
	SourceURL  string   `json:"youtube_url"`
	VideoURL   string   `json:"video_url"`
	AudioSpeed *float64 `json:"audio_speed"`
	RoomSize   *float64 `json:"room_size"`
	Damping    *float64 `json:"damping"`
	WetLevel   *float64 `json:"wet_level"`
	DryLevel   *float64 `json:"dry_level"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	LoopVideo  bool     `json:"loop_video"`
}

func (p *processRequest) toModel() models.Request {
	req := models.DefaultRequest(p.SourceURL)
	req.VideoURL = p.VideoURL
	req.StartTime = p.StartTime
	req.EndTime = p.EndTime
	req.LoopVideo = p.LoopVideo
	if p.AudioSpeed != nil {
		req.AudioSpeed = *p.AudioSpeed
	}
	if p.RoomSize != nil {
		req.RoomSize = *p.RoomSize
	}
	if p.Damping != nil {
		req.Damping = *p.Damping
	}
	if p.WetLevel != nil {
		req.WetLevel = *p.WetLevel
	}
	if p.DryLevel != nil {
		req.DryLevel = *p.DryLevel
	}
	return req
}

// Process accepts a full processing job.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, false)
}

// Preview accepts a preview job: same effect parameters, fixed short window.
// Trim and loop fields are not accepted in this mode.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, true)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, preview bool) {
	var body processRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.SourceURL == "" {
		http.Error(w, "youtube_url is required", http.StatusBadRequest)
		return
	}

	req := body.toModel()
	if preview {
		req.Preview = true
		req.StartTime = ""
		req.EndTime = ""
		req.LoopVideo = false
		req.VideoURL = ""
	}

	job, err := h.submitter.Submit(req)
	if err != nil {
		if errors.Is(err, scheduler.ErrQueueFull) {
			http.Error(w, "Server is at capacity, try again later", http.StatusServiceUnavailable)
			return
		}
		log.Printf("api: submit failed: %v", err)
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	log.Printf("api: job %s accepted (preview=%v)", job.ID, preview)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(job)
}

// Status returns the current state of a job.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	job, err := h.jobs.Get(vars["id"])
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		log.Printf("api: status lookup failed: %v", err)
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// Download serves the finished artifact of a completed job.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	job, err := h.jobs.Get(vars["id"])
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		log.Printf("api: download lookup failed: %v", err)
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}

	if job.Status != models.JobStatusCompleted {
		http.Error(w, "Job is not completed", http.StatusConflict)
		return
	}
	if _, err := os.Stat(job.ResultPath); err != nil {
		log.Printf("api: result file for job %s missing: %v", job.ID, err)
		http.Error(w, "Result file no longer available", http.StatusGone)
		return
	}

	name := filepath.Base(job.ResultPath)
	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, job.ResultPath)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// ListJobs returns all known jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CacheStatus returns a snapshot of the raw media cache.
func (h *Handler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.cache.Snapshot())
}

// Search queries the upstream catalog.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, "query parameter is required", http.StatusBadRequest)
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results, err := h.searcher.Search(r.Context(), query, limit)
	if err != nil {
		log.Printf("api: search %q failed: %v", query, err)
		http.Error(w, "Search failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}
