package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/rayjc/jobly/sqlbuild"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// readBody returns the request body, rejecting an empty one.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, newError(http.StatusRequestEntityTooLarge, "Request body too large.")
		}
		return nil, newError(http.StatusBadRequest, "Cannot read request body.")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newError(http.StatusBadRequest, "Request body is required.")
	}
	return data, nil
}

// decodeJSON unmarshals data into dst and validates the result.
func decodeJSON(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return newError(http.StatusBadRequest, "%s must be of type %s.", typeErr.Field, jsonType(typeErr.Type))
		}
		return newError(http.StatusBadRequest, "Invalid JSON body.")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// readJSON reads, decodes and validates the request body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	return decodeJSON(data, dst)
}

func jsonType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	default:
		return t.String()
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return newError(http.StatusBadRequest, "Invalid request body.")
	}
	msgs := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		return fieldMessage(fe)
	})
	return newError(http.StatusBadRequest, "%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "url":
		return field + " must be a valid url"
	case "min":
		return fmt.Sprintf("%s must be at least %s long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s long", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// patch is a decoded PATCH body: the keys that were sent and their typed values.
type patch struct {
	keys map[string]json.RawMessage
}

// readPatch decodes a PATCH body into dst and records which keys it carried.
func readPatch(w http.ResponseWriter, r *http.Request, dst any) (patch, error) {
	data, err := readBody(w, r)
	if err != nil {
		return patch{}, err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return patch{}, newError(http.StatusBadRequest, "Request body must be a JSON object.")
	}
	if err := decodeJSON(data, dst); err != nil {
		return patch{}, err
	}
	return patch{keys: keys}, nil
}

// has reports whether the body carried key.
func (p patch) has(key string) bool {
	_, ok := p.keys[key]
	return ok
}

// isNull reports whether key was sent as an explicit null.
func (p patch) isNull(key string) bool {
	raw, ok := p.keys[key]
	return ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// assignments returns one assignment per allowed column present in the body,
// in allowed order. values holds the typed value of each column; nullable
// lists the columns an explicit null may clear. Keys outside allowed, other
// than the body token, are rejected.
func (p patch) assignments(allowed, nullable []string, values map[string]any) ([]sqlbuild.Assignment, error) {
	for key := range p.keys {
		if key != "token" && !lo.Contains(allowed, key) {
			return nil, newError(http.StatusBadRequest, "%s cannot be updated.", key)
		}
	}

	var out []sqlbuild.Assignment
	for _, column := range allowed {
		switch {
		case !p.has(column):
			continue
		case p.isNull(column):
			if !lo.Contains(nullable, column) {
				return nil, newError(http.StatusBadRequest, "%s cannot be null.", column)
			}
			out = append(out, sqlbuild.Assign(column, nil))
		default:
			out = append(out, sqlbuild.Assign(column, values[column]))
		}
	}
	return out, nil
}

// Query parameters are coerced to numbers when they parse. Anything else is
// passed through as the raw string, which the search filters ignore.

func stringParam(q url.Values, key string) any {
	if !q.Has(key) {
		return nil
	}
	return q.Get(key)
}

func intParam(q url.Values, key string) any {
	if !q.Has(key) {
		return nil
	}
	raw := q.Get(key)
	if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
		return n
	}
	return raw
}

func floatParam(q url.Values, key string) any {
	if !q.Has(key) {
		return nil
	}
	raw := q.Get(key)
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return f
	}
	return raw
}
