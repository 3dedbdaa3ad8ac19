package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/rayjc/jobly/auth"
	"github.com/rayjc/jobly/migrations"
	"github.com/rayjc/jobly/sqlbuild"
	"github.com/rayjc/jobly/store"
)

type testEnv struct {
	handler    http.Handler
	store      *store.Store
	issuer     *auth.Issuer
	adminToken string
	userToken  string
}

// setupTestServer serves a database seeded with companies c1..c3 (1..3
// employees), jobs j1..j3 at c1, an admin u1 and a regular user u2. Both users
// have the password "password".
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(ctx, migrations.DriverSQLite, ":memory:?_foreign_keys=on", zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := migrations.RunMigrations(db, migrations.DriverSQLite, "", zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	st := store.New(db, sqlbuild.SQLite{}, zerolog.Nop())
	hasher := auth.NewHasher(bcrypt.MinCost)
	issuer := auth.NewIssuer("test-secret", time.Hour)

	for i, h := range []string{"c1", "c2", "c3"} {
		_, err := st.CreateCompany(ctx, store.Company{
			Handle:       h,
			Name:         strings.ToUpper(h),
			NumEmployees: lo.ToPtr(int64(i + 1)),
			Description:  lo.ToPtr("Desc" + h[1:]),
		})
		if err != nil {
			t.Fatalf("seed company: %v", err)
		}
	}
	for i, title := range []string{"j1", "j2", "j3"} {
		_, err := st.CreateJob(ctx, store.NewJob{
			Title:         title,
			Salary:        float64(100 * (i + 1)),
			Equity:        []float64{0.1, 0.2, 0}[i],
			CompanyHandle: "c1",
		})
		if err != nil {
			t.Fatalf("seed job: %v", err)
		}
	}
	hash, err := hasher.Hash("password")
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range []store.User{
		{Username: "u1", Password: hash, FirstName: "U1F", LastName: "U1L", Email: "user1@user.com", IsAdmin: true},
		{Username: "u2", Password: hash, FirstName: "U2F", LastName: "U2L", Email: "user2@user.com"},
	} {
		if _, err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	adminToken, err := issuer.Issue("u1", true)
	if err != nil {
		t.Fatal(err)
	}
	userToken, err := issuer.Issue("u2", false)
	if err != nil {
		t.Fatal(err)
	}

	srv := New(Config{Logger: zerolog.Nop()}, st, issuer, hasher)
	return &testEnv{
		handler:    srv.Handler(),
		store:      st,
		issuer:     issuer,
		adminToken: adminToken,
		userToken:  userToken,
	}
}

// do sends a request and decodes the JSON response body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: response is not JSON: %q", method, path, rec.Body.String())
	}
	return rec.Code, out
}

func listField(t *testing.T, body map[string]any, list, field string) []string {
	t.Helper()
	items, ok := body[list].([]any)
	if !ok {
		t.Fatalf("missing %q list in %v", list, body)
	}
	return lo.Map(items, func(item any, _ int) string {
		v, _ := item.(map[string]any)[field].(string)
		return v
	})
}

func TestNotFound(t *testing.T) {
	e := setupTestServer(t)
	for _, path := range []string{"/nope", "/companies/c1/jobs"} {
		code, body := e.do(t, http.MethodGet, path, e.userToken, nil)
		want := map[string]any{"status": float64(404), "message": "Not Found"}
		if code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, code)
		}
		if diff := cmp.Diff(want, body); diff != "" {
			t.Errorf("GET %s body mismatch (-want +got):\n%s", path, diff)
		}
	}
	if code, _ := e.do(t, http.MethodPut, "/companies", e.adminToken, map[string]any{}); code != http.StatusNotFound {
		t.Errorf("PUT /companies = %d, want 404", code)
	}
}

func TestAccessRules(t *testing.T) {
	e := setupTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"list companies anonymous", http.MethodGet, "/companies", "", nil, http.StatusUnauthorized},
		{"list companies bad token", http.MethodGet, "/companies", "garbage", nil, http.StatusUnauthorized},
		{"list companies user", http.MethodGet, "/companies", e.userToken, nil, http.StatusOK},
		{"create company user", http.MethodPost, "/companies", e.userToken, map[string]any{"handle": "x", "name": "X"}, http.StatusUnauthorized},
		{"delete job user", http.MethodDelete, "/jobs/1", e.userToken, nil, http.StatusUnauthorized},
		{"list jobs anonymous", http.MethodGet, "/jobs", "", nil, http.StatusUnauthorized},
		{"list users anonymous", http.MethodGet, "/users", "", nil, http.StatusUnauthorized},
		{"patch other user", http.MethodPatch, "/users/u1", e.userToken, map[string]any{"first_name": "x"}, http.StatusUnauthorized},
		{"delete other user as admin", http.MethodDelete, "/users/u2", e.adminToken, nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := e.do(t, tt.method, tt.path, tt.token, tt.body); code != tt.want {
				t.Errorf("%s %s = %d %v, want %d", tt.method, tt.path, code, body, tt.want)
			}
		})
	}
}

func TestTokenInBody(t *testing.T) {
	e := setupTestServer(t)
	code, body := e.do(t, http.MethodPost, "/companies", "", map[string]any{
		"token":  e.adminToken,
		"handle": "body",
		"name":   "Body Co",
	})
	if code != http.StatusCreated {
		t.Fatalf("POST /companies = %d %v, want 201", code, body)
	}
}

func TestListCompanies(t *testing.T) {
	e := setupTestServer(t)
	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"c1", "c2", "c3"}},
		{"?search=1", []string{"c1"}},
		{"?min_employees=2", []string{"c3"}},
		{"?max_employees=2", []string{"c1"}},
		{"?min_employees=1&max_employees=3", []string{"c2"}},
		{"?min_employees=abc", []string{"c1", "c2", "c3"}},
		{"?search=", []string{"c1", "c2", "c3"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			code, body := e.do(t, http.MethodGet, "/companies"+tt.query, e.userToken, nil)
			if code != http.StatusOK {
				t.Fatalf("status = %d %v", code, body)
			}
			if diff := cmp.Diff(tt.want, listField(t, body, "companies", "handle")); diff != "" {
				t.Errorf("handles mismatch (-want +got):\n%s", diff)
			}
		})
	}

	code, body := e.do(t, http.MethodGet, "/companies?min_employees=5&max_employees=1", e.userToken, nil)
	if code != http.StatusBadRequest || body["message"] != "min_employees cannot be greater than max_employees" {
		t.Errorf("min > max = %d %v", code, body)
	}
}

func TestGetCompany(t *testing.T) {
	e := setupTestServer(t)
	code, body := e.do(t, http.MethodGet, "/companies/c1", e.userToken, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d %v", code, body)
	}
	want := map[string]any{
		"handle":        "c1",
		"name":          "C1",
		"num_employees": float64(1),
		"description":   "Desc1",
		"logo_url":      nil,
	}
	if diff := cmp.Diff(want, body["company"]); diff != "" {
		t.Errorf("company mismatch (-want +got):\n%s", diff)
	}

	code, body = e.do(t, http.MethodGet, "/companies/nope", e.userToken, nil)
	if code != http.StatusNotFound || body["message"] != "Cannot find company nope." {
		t.Errorf("missing company = %d %v", code, body)
	}
}

func TestCreateCompany(t *testing.T) {
	e := setupTestServer(t)

	code, body := e.do(t, http.MethodPost, "/companies", e.adminToken, map[string]any{
		"handle":        "new",
		"name":          "New Co",
		"num_employees": 10,
		"logo_url":      "https://new.example.com/logo.png",
	})
	if code != http.StatusCreated {
		t.Fatalf("status = %d %v", code, body)
	}
	if c := body["company"].(map[string]any); c["handle"] != "new" || c["num_employees"] != float64(10) || c["description"] != nil {
		t.Errorf("unexpected company %v", c)
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate handle", map[string]any{"handle": "c1", "name": "Other"}, http.StatusForbidden},
		{"duplicate name", map[string]any{"handle": "other", "name": "C1"}, http.StatusForbidden},
		{"missing name", map[string]any{"handle": "x"}, http.StatusBadRequest},
		{"wrong type", map[string]any{"handle": "x", "name": "X", "num_employees": "ten"}, http.StatusBadRequest},
		{"bad url", map[string]any{"handle": "x", "name": "X", "logo_url": "not a url"}, http.StatusBadRequest},
		{"negative employees", map[string]any{"handle": "x", "name": "X", "num_employees": -1}, http.StatusBadRequest},
		{"malformed json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := e.do(t, http.MethodPost, "/companies", e.adminToken, tt.body); code != tt.want {
				t.Errorf("status = %d %v, want %d", code, body, tt.want)
			}
		})
	}
}

func TestUpdateCompany(t *testing.T) {
	e := setupTestServer(t)

	code, body := e.do(t, http.MethodPatch, "/companies/c1", e.adminToken, map[string]any{
		"name":        "Renamed",
		"description": nil,
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d %v", code, body)
	}
	want := map[string]any{
		"handle":        "c1",
		"name":          "Renamed",
		"num_employees": float64(1),
		"description":   nil,
		"logo_url":      nil,
	}
	if diff := cmp.Diff(want, body["company"]); diff != "" {
		t.Errorf("company mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"empty object", "/companies/c1", map[string]any{}, http.StatusBadRequest},
		{"no body", "/companies/c1", nil, http.StatusBadRequest},
		{"primary key", "/companies/c1", map[string]any{"handle": "x"}, http.StatusBadRequest},
		{"null name", "/companies/c1", map[string]any{"name": nil}, http.StatusBadRequest},
		{"not an object", "/companies/c1", "[1,2]", http.StatusBadRequest},
		{"duplicate name", "/companies/c1", map[string]any{"name": "C2"}, http.StatusForbidden},
		{"missing company", "/companies/nope", map[string]any{"name": "x"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := e.do(t, http.MethodPatch, tt.path, e.adminToken, tt.body); code != tt.want {
				t.Errorf("status = %d %v, want %d", code, body, tt.want)
			}
		})
	}
}

func TestDeleteCompany(t *testing.T) {
	e := setupTestServer(t)
	code, body := e.do(t, http.MethodDelete, "/companies/c1", e.adminToken, nil)
	if code != http.StatusOK || body["message"] != "Company(c1) deleted" {
		t.Fatalf("delete = %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodGet, "/jobs/1", e.userToken, nil); code != http.StatusNotFound {
		t.Errorf("job of deleted company = %d, want 404", code)
	}
	if code, _ := e.do(t, http.MethodDelete, "/companies/c1", e.adminToken, nil); code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", code)
	}
}

func TestListJobs(t *testing.T) {
	e := setupTestServer(t)
	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"j1", "j2", "j3"}},
		{"?search=2", []string{"j2"}},
		{"?min_salary=150", []string{"j2", "j3"}},
		{"?min_equity=0", []string{"j1", "j2"}},
		{"?search=j&min_salary=150&min_equity=0", []string{"j2"}},
		{"?min_salary=lots", []string{"j1", "j2", "j3"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			code, body := e.do(t, http.MethodGet, "/jobs"+tt.query, e.userToken, nil)
			if code != http.StatusOK {
				t.Fatalf("status = %d %v", code, body)
			}
			if diff := cmp.Diff(tt.want, listField(t, body, "jobs", "title")); diff != "" {
				t.Errorf("titles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	e := setupTestServer(t)
	code, body := e.do(t, http.MethodGet, "/jobs/1", e.userToken, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d %v", code, body)
	}
	job := body["job"].(map[string]any)
	if job["title"] != "j1" || job["salary"] != float64(100) || job["company_handle"] != "c1" {
		t.Errorf("unexpected job %v", job)
	}
	if company, _ := job["company"].(map[string]any); company["name"] != "C1" {
		t.Errorf("expected embedded company, got %v", job["company"])
	}

	for _, path := range []string{"/jobs/999", "/jobs/abc"} {
		if code, _ := e.do(t, http.MethodGet, path, e.userToken, nil); code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, code)
		}
	}
}

func TestCreateJob(t *testing.T) {
	e := setupTestServer(t)
	code, body := e.do(t, http.MethodPost, "/jobs", e.adminToken, map[string]any{
		"title":          "new",
		"salary":         1000,
		"equity":         0.5,
		"date_posted":    "2024-01-02T03:04:05Z",
		"company_handle": "c2",
	})
	if code != http.StatusCreated {
		t.Fatalf("status = %d %v", code, body)
	}
	job := body["job"].(map[string]any)
	if job["company_handle"] != "c2" || job["date_posted"] != "2024-01-02T03:04:05Z" {
		t.Errorf("unexpected job %v", job)
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown company", map[string]any{"title": "x", "salary": 1, "company_handle": "nope"}, http.StatusForbidden},
		{"zero salary", map[string]any{"title": "x", "salary": 0, "company_handle": "c1"}, http.StatusBadRequest},
		{"equity of one", map[string]any{"title": "x", "salary": 1, "equity": 1, "company_handle": "c1"}, http.StatusBadRequest},
		{"missing title", map[string]any{"salary": 1, "company_handle": "c1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := e.do(t, http.MethodPost, "/jobs", e.adminToken, tt.body); code != tt.want {
				t.Errorf("status = %d %v, want %d", code, body, tt.want)
			}
		})
	}
}

func TestUpdateAndDeleteJob(t *testing.T) {
	e := setupTestServer(t)
	code, body := e.do(t, http.MethodPatch, "/jobs/2", e.adminToken, map[string]any{"salary": 999, "company_handle": "c3"})
	if code != http.StatusOK {
		t.Fatalf("status = %d %v", code, body)
	}
	job := body["job"].(map[string]any)
	if job["salary"] != float64(999) || job["company_handle"] != "c3" || job["title"] != "j2" {
		t.Errorf("unexpected job %v", job)
	}

	if code, _ := e.do(t, http.MethodPatch, "/jobs/2", e.adminToken, map[string]any{"company_handle": "nope"}); code != http.StatusForbidden {
		t.Errorf("bad company = %d, want 403", code)
	}
	if code, _ := e.do(t, http.MethodPatch, "/jobs/2", e.adminToken, map[string]any{"id": 5}); code != http.StatusBadRequest {
		t.Errorf("id update = %d, want 400", code)
	}

	code, body = e.do(t, http.MethodDelete, "/jobs/2", e.adminToken, nil)
	if code != http.StatusOK || body["message"] != "Job(2) deleted" {
		t.Errorf("delete = %d %v", code, body)
	}
}

func TestUsers(t *testing.T) {
	e := setupTestServer(t)

	code, body := e.do(t, http.MethodGet, "/users", e.userToken, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d %v", code, body)
	}
	want := []any{
		map[string]any{"username": "u1", "first_name": "U1F", "last_name": "U1L", "email": "user1@user.com"},
		map[string]any{"username": "u2", "first_name": "U2F", "last_name": "U2L", "email": "user2@user.com"},
	}
	if diff := cmp.Diff(want, body["users"]); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}

	code, body = e.do(t, http.MethodGet, "/users/u1", e.userToken, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d %v", code, body)
	}
	user := body["user"].(map[string]any)
	if _, ok := user["password"]; ok {
		t.Errorf("password leaked: %v", user)
	}
	if user["is_admin"] != true {
		t.Errorf("unexpected user %v", user)
	}
}

func TestRegister(t *testing.T) {
	e := setupTestServer(t)
	newUser := map[string]any{
		"username":   "new",
		"password":   "secret",
		"first_name": "New",
		"last_name":  "User",
		"email":      "new@user.com",
	}
	code, body := e.do(t, http.MethodPost, "/users", "", newUser)
	if code != http.StatusCreated {
		t.Fatalf("status = %d %v", code, body)
	}
	claims, err := e.issuer.Parse(body["token"].(string))
	if err != nil || claims.Username != "new" || claims.IsAdmin {
		t.Errorf("token claims = %+v, %v", claims, err)
	}
	if _, ok := body["user"].(map[string]any)["password"]; ok {
		t.Error("password leaked on register")
	}

	if code, _ := e.do(t, http.MethodPost, "/users", "", newUser); code != http.StatusForbidden {
		t.Errorf("duplicate register = %d, want 403", code)
	}

	admin := lo.Assign(newUser, map[string]any{"username": "boss", "email": "boss@user.com", "is_admin": true})
	if code, _ := e.do(t, http.MethodPost, "/users", "", admin); code != http.StatusUnauthorized {
		t.Errorf("anonymous admin register = %d, want 401", code)
	}
	if code, body := e.do(t, http.MethodPost, "/users", e.adminToken, admin); code != http.StatusCreated {
		t.Errorf("admin register by admin = %d %v, want 201", code, body)
	}

	bad := lo.Assign(newUser, map[string]any{"username": "other", "email": "not-an-email"})
	if code, _ := e.do(t, http.MethodPost, "/users", "", bad); code != http.StatusBadRequest {
		t.Errorf("bad email = %d, want 400", code)
	}
}

func TestUpdateUser(t *testing.T) {
	e := setupTestServer(t)

	code, body := e.do(t, http.MethodPatch, "/users/u2", e.userToken, map[string]any{
		"first_name": "Changed",
		"password":   "newpassword",
		"photo_url":  nil,
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d %v", code, body)
	}
	if user := body["user"].(map[string]any); user["first_name"] != "Changed" || user["last_name"] != "U2L" {
		t.Errorf("unexpected user %v", user)
	}

	if code, _ := e.do(t, http.MethodPost, "/login", "", map[string]any{"username": "u2", "password": "newpassword"}); code != http.StatusOK {
		t.Errorf("login with new password = %d, want 200", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/login", "", map[string]any{"username": "u2", "password": "password"}); code != http.StatusUnauthorized {
		t.Errorf("login with old password = %d, want 401", code)
	}

	if code, _ := e.do(t, http.MethodPatch, "/users/u2", e.userToken, map[string]any{"is_admin": true}); code != http.StatusUnauthorized {
		t.Errorf("self promotion = %d, want 401", code)
	}
	if code, _ := e.do(t, http.MethodPatch, "/users/u2", e.userToken, map[string]any{"username": "x"}); code != http.StatusBadRequest {
		t.Errorf("username update = %d, want 400", code)
	}
	if code, _ := e.do(t, http.MethodPatch, "/users/u2", e.userToken, map[string]any{"email": "user1@user.com"}); code != http.StatusForbidden {
		t.Errorf("duplicate email = %d, want 403", code)
	}
}

func TestDeleteUser(t *testing.T) {
	e := setupTestServer(t)
	code, body := e.do(t, http.MethodDelete, "/users/u2", e.userToken, nil)
	if code != http.StatusOK || body["message"] != "User(u2) deleted" {
		t.Fatalf("delete = %d %v", code, body)
	}
	if _, err := e.store.GetUser(context.Background(), "u2"); err == nil {
		t.Error("user still exists")
	}
}

func TestLogin(t *testing.T) {
	e := setupTestServer(t)

	code, body := e.do(t, http.MethodPost, "/login", "", map[string]any{"username": "u1", "password": "password"})
	if code != http.StatusOK {
		t.Fatalf("status = %d %v", code, body)
	}
	claims, err := e.issuer.Parse(body["token"].(string))
	if err != nil || claims.Username != "u1" || !claims.IsAdmin {
		t.Errorf("token claims = %+v, %v", claims, err)
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"wrong password", map[string]any{"username": "u1", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]any{"username": "ghost", "password": "password"}, http.StatusUnauthorized},
		{"missing password", map[string]any{"username": "u1"}, http.StatusBadRequest},
		{"non-string username", map[string]any{"username": 5, "password": "password"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := e.do(t, http.MethodPost, "/login", "", tt.body); code != tt.want {
				t.Errorf("status = %d %v, want %d", code, body, tt.want)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	e := setupTestServer(t)
	e.do(t, http.MethodGet, "/companies", e.userToken, nil)

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	text := rec.Body.String()
	for _, want := range []string{
		`http_requests_total{code="200",method="GET",route="GET /companies"} 1`,
		"http_request_duration_seconds_bucket",
		"service_build_info",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output is missing %q", want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	e := setupTestServer(t)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected a request id header")
	}
}
