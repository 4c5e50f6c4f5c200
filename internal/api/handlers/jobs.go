package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/api/middleware"
	"github.com/dvloznov/pocketbook/internal/auth"
	"github.com/dvloznov/pocketbook/internal/jobs"
)

// JobsHandler handles export job endpoints.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	gate      *auth.Gate
	exportDir string
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler. Export files are written
// under exportDir.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, gate *auth.Gate, exportDir string, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		publisher: publisher,
		store:     store,
		gate:      gate,
		exportDir: exportDir,
		log:       log,
	}
}

// CreateJob handles POST /api/jobs
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Jobs are not enabled")
		return
	}

	var req struct {
		Type   string `json:"type"`
		DryRun bool   `json:"dry_run"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobType, err := jobs.ParseJobType(req.Type)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &jobs.ExportJob{
		Type:   jobType,
		UID:    h.gate.State().UID(),
		DryRun: req.DryRun,
	}

	switch jobType {
	case jobs.JobTypeBackupBigQuery:
		if job.UID == "" {
			middleware.WriteError(w, http.StatusConflict, "Sign in before backing up")
			return
		}
	case jobs.JobTypeExportFile:
		if h.exportDir == "" {
			middleware.WriteError(w, http.StatusServiceUnavailable, "No export directory configured")
			return
		}
		job.Path = filepath.Join(h.exportDir, fmt.Sprintf("pocketbook-%s.json", time.Now().UTC().Format("20060102-150405")))
	}

	if err := h.publisher.Publish(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("job_type", req.Type).Msg("Failed to enqueue job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("job_type", req.Type).Msg("Enqueued job")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(jobs.JobStatusPending),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Jobs are not enabled")
		return
	}

	job, err := h.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs with optional type, status and limit
// query parameters.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Jobs are not enabled")
		return
	}

	q := r.URL.Query()
	filter := jobs.JobFilter{
		Type:   jobs.JobType(q.Get("type")),
		Status: jobs.JobStatus(q.Get("status")),
		Limit:  100,
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}
