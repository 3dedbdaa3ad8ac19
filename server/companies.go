package server

import (
	"fmt"
	"net/http"

	"github.com/samber/lo"

	"github.com/rayjc/jobly/store"
)

type companyRequest struct {
	Handle       string  `json:"handle" validate:"required,max=25"`
	Name         string  `json:"name" validate:"required"`
	NumEmployees *int64  `json:"num_employees" validate:"omitnil,gte=0"`
	Description  *string `json:"description"`
	LogoURL      *string `json:"logo_url" validate:"omitnil,url"`
}

type companyPatch struct {
	Name         *string `json:"name" validate:"omitnil,min=1"`
	NumEmployees *int64  `json:"num_employees" validate:"omitnil,gte=0"`
	Description  *string `json:"description"`
	LogoURL      *string `json:"logo_url" validate:"omitnil,url"`
}

var companyNullable = []string{"num_employees", "description", "logo_url"}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	companies, err := s.store.SearchCompanies(r.Context(), store.CompanyQuery{
		Name:         stringParam(q, "search"),
		MinEmployees: intParam(q, "min_employees"),
		MaxEmployees: intParam(q, "max_employees"),
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"companies": companies})
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	company, err := s.store.GetCompany(r.Context(), handle)
	if err != nil {
		s.fail(w, r, err, "company "+handle)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"company": company})
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	company, err := s.store.CreateCompany(r.Context(), store.Company{
		Handle:       req.Handle,
		Name:         req.Name,
		NumEmployees: req.NumEmployees,
		Description:  req.Description,
		LogoURL:      req.LogoURL,
	})
	if err != nil {
		s.fail(w, r, err, "company "+req.Handle)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{"company": company})
}

func (s *Server) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	var req companyPatch
	p, err := readPatch(w, r, &req)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	assignments, err := p.assignments(store.CompanyUpdatableColumns, companyNullable, map[string]any{
		"name":          lo.FromPtr(req.Name),
		"num_employees": lo.FromPtr(req.NumEmployees),
		"description":   lo.FromPtr(req.Description),
		"logo_url":      lo.FromPtr(req.LogoURL),
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}

	company, err := s.store.UpdateCompany(r.Context(), handle, assignments)
	if err != nil {
		s.fail(w, r, err, "company "+handle)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"company": company})
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	if err := s.store.DeleteCompany(r.Context(), handle); err != nil {
		s.fail(w, r, err, "company "+handle)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"message": fmt.Sprintf("Company(%s) deleted", handle)})
}
