package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/rayjc/jobly/store"
)

type jobRequest struct {
	Title         string     `json:"title" validate:"required"`
	Salary        *float64   `json:"salary" validate:"required,gt=0"`
	Equity        *float64   `json:"equity" validate:"omitnil,gte=0,lt=1"`
	DatePosted    *time.Time `json:"date_posted"`
	CompanyHandle string     `json:"company_handle" validate:"required"`
}

type jobPatch struct {
	Title         *string    `json:"title" validate:"omitnil,min=1"`
	Salary        *float64   `json:"salary" validate:"omitnil,gt=0"`
	Equity        *float64   `json:"equity" validate:"omitnil,gte=0,lt=1"`
	DatePosted    *time.Time `json:"date_posted"`
	CompanyHandle *string    `json:"company_handle" validate:"omitnil,min=1"`
}

// jobID parses the {id} path value. An id that is not an integer cannot name
// a job, so it is reported as not found.
func jobID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, newError(http.StatusNotFound, "Cannot find job %s.", raw)
	}
	return id, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := s.store.SearchJobs(r.Context(), store.JobQuery{
		Title:     stringParam(q, "search"),
		MinSalary: floatParam(q, "min_salary"),
		MinEquity: floatParam(q, "min_equity"),
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	job, err := s.store.GetJobDetail(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, fmt.Sprintf("job %d", id))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	job, err := s.store.CreateJob(r.Context(), store.NewJob{
		Title:         req.Title,
		Salary:        lo.FromPtr(req.Salary),
		Equity:        lo.FromPtr(req.Equity),
		DatePosted:    req.DatePosted,
		CompanyHandle: req.CompanyHandle,
	})
	if err != nil {
		s.fail(w, r, err, "job")
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{"job": job})
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	var req jobPatch
	p, err := readPatch(w, r, &req)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	assignments, err := p.assignments(store.JobUpdatableColumns, nil, map[string]any{
		"title":          lo.FromPtr(req.Title),
		"salary":         lo.FromPtr(req.Salary),
		"equity":         lo.FromPtr(req.Equity),
		"date_posted":    lo.FromPtr(req.DatePosted).UTC(),
		"company_handle": lo.FromPtr(req.CompanyHandle),
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}

	job, err := s.store.UpdateJob(r.Context(), id, assignments)
	if err != nil {
		s.fail(w, r, err, fmt.Sprintf("job %d", id))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		s.fail(w, r, err, fmt.Sprintf("job %d", id))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"message": fmt.Sprintf("Job(%d) deleted", id)})
}
