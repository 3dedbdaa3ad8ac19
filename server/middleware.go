package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/rayjc/jobly/auth"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// authenticate attaches the caller's claims to the request context. The token
// is read from the Authorization header, or from a "token" field of a JSON
// body. A missing or invalid token leaves the request anonymous.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && r.Body != nil && r.Body != http.NoBody {
			var err error
			token, err = bodyToken(w, r)
			if err != nil {
				s.fail(w, r, err, "")
				return
			}
		}

		if token != "" {
			claims, err := s.issuer.Parse(token)
			if err != nil {
				hlog.FromRequest(r).Debug().Err(err).Msg("ignoring invalid token")
			} else {
				r = r.WithContext(auth.WithClaims(r.Context(), claims))
				hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
					return c.Str("user", claims.Username)
				})
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// bodyToken buffers the body, restores it for the handler and returns its
// "token" field, if any.
func bodyToken(w http.ResponseWriter, r *http.Request) (string, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	_ = r.Body.Close() //nolint:errcheck // Replaced below
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", newError(http.StatusRequestEntityTooLarge, "Request body too large.")
		}
		return "", newError(http.StatusBadRequest, "Cannot read request body.")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	var body struct {
		Token any `json:"token"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		// Malformed bodies are reported by the handler that decodes them.
		return "", nil
	}
	token, _ := body.Token.(string)
	return token, nil
}

func (s *Server) requireLoggedIn(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()) == nil {
			s.fail(w, r, errUnauthenticated, "")
			return
		}
		next(w, r)
	})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		switch {
		case claims == nil:
			s.fail(w, r, errUnauthenticated, "")
		case !claims.IsAdmin:
			s.fail(w, r, errAdminRequired, "")
		default:
			next(w, r)
		}
	})
}

func (s *Server) requireCorrectUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		username := r.PathValue("username")
		switch {
		case claims == nil:
			s.fail(w, r, errUnauthenticated, "")
		case claims.Username != username:
			s.fail(w, r, newError(http.StatusUnauthorized, "Unauthorized; only %s is allowed", username), "")
		default:
			next(w, r)
		}
	})
}

var (
	errUnauthenticated = newError(http.StatusUnauthorized, "Unauthorized; missing or invalid token")
	errAdminRequired   = newError(http.StatusUnauthorized, "Unauthorized; requires admin privilege")
)
