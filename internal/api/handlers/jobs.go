package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/movers/internal/scheduler"
	"github.com/wonny/movers/pkg/logger"
)

// JobController is the part of the scheduler the API drives
type JobController interface {
	GetJobStats() map[string]scheduler.JobStats
	GetJobHistory(jobName string) (*scheduler.JobHistory, error)
	RunJob(jobName string) error
}

// JobsHandler handles scheduler endpoints
type JobsHandler struct {
	jobs   JobController
	logger *logger.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(jobs JobController, log *logger.Logger) *JobsHandler {
	return &JobsHandler{
		jobs:   jobs,
		logger: log,
	}
}

// List returns stats for every job
// GET /api/jobs
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}

// History returns the recorded results of one job
// GET /api/jobs/{name}/history
func (h *JobsHandler) History(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	history, err := h.jobs.GetJobHistory(name)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, history.Results)
}

// Run triggers a job now
// POST /api/jobs/{name}/run
func (h *JobsHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	err := h.jobs.RunJob(name)
	switch {
	case err == nil:
		h.logger.WithField("job", name).Info("Job triggered via API")
		respondJSON(w, http.StatusAccepted, map[string]string{
			"status": "started",
			"job":    name,
		})
	case errors.Is(err, scheduler.ErrJobRunning):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrJobNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.WithError(err).WithField("job", name).Error("Failed to trigger job")
		respondError(w, http.StatusInternalServerError, "Failed to trigger job")
	}
}
