package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fortuna/tipster/internal/ingest/predictz"
	"github.com/fortuna/tipster/internal/jobs"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	rangeDaysBack  = 30
	rangeDaysAhead = 3
)

// JobAPI is the queue functionality the job handlers expose
type JobAPI interface {
	Enqueue(ctx context.Context, date string) (*jobs.Job, error)
	EnqueueRange(ctx context.Context, daysBack, daysAhead int) ([]*jobs.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
	GetStatus(ctx context.Context) (*jobs.StatusSummary, error)
}

// JobHandler proxies API calls to the job service.
type JobHandler struct {
	service JobAPI
}

// NewJobHandler wires the REST layer to the job service.
func NewJobHandler(service JobAPI) *JobHandler {
	return &JobHandler{service: service}
}

type scrapeRequest struct {
	Date string `json:"date"`
}

// HandleScrape handles POST /api/v1/scrape
func (h *JobHandler) HandleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date == "" {
		req.Date = r.URL.Query().Get("date")
	}

	job, err := h.service.Enqueue(r.Context(), req.Date)
	if err != nil {
		var selErr *predictz.SelectorError
		if errors.As(err, &selErr) {
			respondError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to enqueue scrape job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// HandleScrapeRange handles POST /api/v1/scrape/range
func (h *JobHandler) HandleScrapeRange(w http.ResponseWriter, r *http.Request) {
	queued, err := h.service.EnqueueRange(r.Context(), rangeDaysBack, rangeDaysAhead)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue scrape jobs", err)
		return
	}

	ids := make([]uuid.UUID, 0, len(queued))
	for _, j := range queued {
		ids = append(ids, j.ID)
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":  len(ids),
		"job_ids": ids,
	})
}

// HandleJobStatus handles GET /api/v1/jobs/{jobID}/status
func (h *JobHandler) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["jobID"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID", err)
		return
	}

	job, err := h.service.GetJob(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Job not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch job", err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// HandleQueueStatus handles GET /api/v1/jobs
func (h *JobHandler) HandleQueueStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
