package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/imgbb_downloader/internal/job"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/storage"
)

// JobLister reports the live jobs. *pipeline.Service implements it.
type JobLister interface {
	Jobs() []job.Job
}

type HistoryResponse struct {
	History []string `json:"history"`
}

type JobsResponse struct {
	Jobs []job.Job `json:"jobs"`
}

type Handler struct {
	history storage.HistoryReadRepository
	jobs    JobLister
}

// NewHandler creates the read-only API handler.
func NewHandler(history storage.HistoryReadRepository, jobs JobLister) *Handler {
	return &Handler{
		history: history,
		jobs:    jobs,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/history", h.HandleHistory)
	r.Get("/jobs", h.HandleJobs)

	return r
}

// HandleHistory lists every recorded asset URL, oldest first, without timestamps.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	records, err := h.history.List(r.Context())
	if err != nil {
		logger.Error("failed to read history", "err", err)
		http.Error(w, "Could not read history file.", http.StatusInternalServerError)

		return
	}

	writeJSON(w, r, HistoryResponse{History: storage.URLs(records)})
}

// HandleJobs lists the transfers currently in flight.
func (h *Handler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, JobsResponse{Jobs: h.jobs.Jobs()})
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
