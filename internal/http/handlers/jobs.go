package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carousel/internal/domain"
	"carousel/internal/jobs"
)

type createJobResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

type listJobsResponse struct {
	Jobs []domain.Job `json:"jobs"`
}

const maxCreateBody = 5 << 20

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var in jobs.CreateInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBody)).Decode(&in); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	id, err := a.Jobs.Create(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+id)
	a.json(w, http.StatusAccepted, createJobResponse{JobID: id, Status: domain.JobStatusQueued})
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	order := domain.ParseListOrder(r.URL.Query().Get("order"))
	list, err := a.Jobs.List(r.Context(), order)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Job{}
	}
	a.json(w, http.StatusOK, listJobsResponse{Jobs: list})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := a.Jobs.Delete(r.Context(), chi.URLParam(r, "job_id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
