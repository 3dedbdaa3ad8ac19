package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"github.com/samber/lo"

	"github.com/rayjc/jobly/auth"
	"github.com/rayjc/jobly/sqlbuild"
	"github.com/rayjc/jobly/store"
)

type userRequest struct {
	Username  string  `json:"username" validate:"required,max=25"`
	Password  string  `json:"password" validate:"required,min=5,max=72"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	PhotoURL  *string `json:"photo_url" validate:"omitnil,url"`
	IsAdmin   bool    `json:"is_admin"`
}

type userPatch struct {
	Password  *string `json:"password" validate:"omitnil,min=5,max=72"`
	FirstName *string `json:"first_name" validate:"omitnil,min=1"`
	LastName  *string `json:"last_name" validate:"omitnil,min=1"`
	Email     *string `json:"email" validate:"omitnil,email"`
	PhotoURL  *string `json:"photo_url" validate:"omitnil,url"`
	IsAdmin   *bool   `json:"is_admin"`
}

// userSummary is the listing view of a user.
type userSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

var userNullable = []string{"photo_url"}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	summaries := lo.Map(users, func(u store.User, _ int) userSummary {
		return userSummary{Username: u.Username, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
	})
	writeJSON(w, r, http.StatusOK, map[string]any{"users": summaries})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	user, err := s.store.GetUser(r.Context(), username)
	if err != nil {
		s.fail(w, r, err, "user "+username)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"user": user})
}

// handleRegister creates a user and logs them in. Only an admin may create
// another admin.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if req.IsAdmin && !callerIsAdmin(r) {
		s.fail(w, r, errAdminRequired, "")
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	user, err := s.store.CreateUser(r.Context(), store.User{
		Username:  req.Username,
		Password:  hash,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		PhotoURL:  req.PhotoURL,
		IsAdmin:   req.IsAdmin,
	})
	if err != nil {
		s.fail(w, r, err, "username/email")
		return
	}

	token, err := s.issuer.Issue(user.Username, user.IsAdmin)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	var req userPatch
	p, err := readPatch(w, r, &req)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	if p.has("is_admin") && !callerIsAdmin(r) {
		s.fail(w, r, errAdminRequired, "")
		return
	}
	assignments, err := p.assignments(store.UserUpdatableColumns, userNullable, map[string]any{
		"password":   lo.FromPtr(req.Password),
		"first_name": lo.FromPtr(req.FirstName),
		"last_name":  lo.FromPtr(req.LastName),
		"email":      lo.FromPtr(req.Email),
		"photo_url":  lo.FromPtr(req.PhotoURL),
		"is_admin":   lo.FromPtr(req.IsAdmin),
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	if err := s.hashPasswordAssignment(assignments); err != nil {
		s.fail(w, r, err, "")
		return
	}

	user, err := s.store.UpdateUser(r.Context(), username, assignments)
	if err != nil {
		s.fail(w, r, err, "user "+username)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"user": user})
}

// hashPasswordAssignment replaces a plain text password assignment with its hash.
func (s *Server) hashPasswordAssignment(assignments []sqlbuild.Assignment) error {
	for i, a := range assignments {
		if a.Column != "password" {
			continue
		}
		plain, _ := a.Value.(string)
		hash, err := s.hasher.Hash(plain)
		if err != nil {
			return err
		}
		assignments[i].Value = hash
	}
	return nil
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if err := s.store.DeleteUser(r.Context(), username); err != nil {
		s.fail(w, r, err, "user "+username)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"message": fmt.Sprintf("User(%s) deleted", username)})
}

type loginRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if req.Username == nil || req.Password == nil {
		s.fail(w, r, newError(http.StatusBadRequest, "Missing username/password"), "")
		return
	}

	user, err := s.store.GetUser(r.Context(), *req.Username)
	if err == nil {
		err = auth.CheckPassword(user.Password, *req.Password)
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, auth.ErrInvalidCredentials):
		s.fail(w, r, newError(http.StatusUnauthorized, "Invalid username/password"), "")
		return
	case err != nil:
		s.fail(w, r, err, "")
		return
	}

	token, err := s.issuer.Issue(user.Username, user.IsAdmin)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	hlog.FromRequest(r).Info().Str("username", user.Username).Msg("User logged in")
	writeJSON(w, r, http.StatusOK, map[string]any{"token": token})
}

func callerIsAdmin(r *http.Request) bool {
	claims := auth.FromContext(r.Context())
	return claims != nil && claims.IsAdmin
}
