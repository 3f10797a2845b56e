package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"schoolreg/internal/config"
	"schoolreg/internal/mirror"
	"schoolreg/internal/models"
	"schoolreg/internal/repository"
	"schoolreg/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// recordsService stands in for the student-records collaborator.
type recordsService struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []mirror.StudentPayload
	auth     []string
	fail     atomic.Bool
}

func newRecordsService(t *testing.T) *recordsService {
	t.Helper()
	rs := &recordsService{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/students" {
			http.NotFound(w, r)
			return
		}
		if rs.fail.Load() {
			http.Error(w, "records unavailable", http.StatusServiceUnavailable)
			return
		}
		var p mirror.StudentPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rs.mu.Lock()
		rs.payloads = append(rs.payloads, p)
		rs.auth = append(rs.auth, r.Header.Get("Authorization"))
		n := len(rs.payloads)
		rs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"id":"rec-%d"}`, n)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordsService) calls() ([]mirror.StudentPayload, []string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]mirror.StudentPayload(nil), rs.payloads...), append([]string(nil), rs.auth...)
}

// notificationService records every notification posted to it.
type notificationService struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []map[string]any
}

func newNotificationService(t *testing.T) *notificationService {
	t.Helper()
	ns := &notificationService{}
	ns.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		ns.mu.Lock()
		ns.bodies = append(ns.bodies, body)
		ns.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(ns.Close)
	return ns
}

func (ns *notificationService) received() []map[string]any {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return append([]map[string]any(nil), ns.bodies...)
}

type testEnv struct {
	srv     *Server
	app     *fiber.App
	db      *gorm.DB
	mr      *miniredis.Miniredis
	records *recordsService
	notes   *notificationService
}

func testConfig(recordsURL, notificationsURL string) *config.Config {
	return &config.Config{
		Env:                    "test",
		Port:                   "0",
		JWTSecret:              testSecret,
		AllowedOrigins:         "http://localhost:5173",
		FeatureFlags:           "code_access=on,student_mirror=on",
		StudentRecordsURL:      recordsURL,
		NotificationsURL:       notificationsURL,
		ServiceToken:           "svc-token",
		SideEffectTimeoutS:     2,
		StudentEmailDomain:     "student.ecole.local",
		DefaultParentPassword:  "Parent123!",
		DefaultStudentPassword: "Student123!",
		TokenIssuer:            "schoolreg",
		TokenAudience:          "schoolreg-api",
		SessionTokenTTLMinutes: 60,
		CodeTokenTTLMinutes:    30,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	records := newRecordsService(t)
	notes := newNotificationService(t)
	cfg := testConfig(records.URL, notes.URL)
	for _, m := range mutate {
		m(cfg)
	}

	db := testutil.NewSQLiteDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	t.Cleanup(srv.notifier.Wait)

	return &testEnv{srv: srv, app: srv.App(), db: db, mr: mr, records: records, notes: notes}
}

func (e *testEnv) createUser(t *testing.T, email string, role models.Role, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{Email: email, Role: role, Password: string(hash), FullName: "Staff"}
	require.NoError(t, repository.NewUserRepository(e.db).Create(context.Background(), u))
	return u
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := postJSON(t, e.app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return session.Token
}

func (e *testEnv) reviewerToken(t *testing.T) string {
	t.Helper()
	e.createUser(t, "direction@ecole.local", models.RoleDirection, "Direction123!")
	return e.login(t, "direction@ecole.local", "Direction123!")
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	resp := postJSON(t, e.app, method, path, token, body)
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func admissionForm() map[string]any {
	return map[string]any{
		"firstName":      "Mia",
		"lastName":       "Tremblay",
		"dateOfBirth":    "2010-03-01",
		"secondaryLevel": "true",
		"session":        "Automne 2024",
		"program":        "PEI",
		"gender":         "F",
		"address":        "1 Rue X",
		"parentName":     "A B",
		"parentPhone":    "5145550000",
		"parentEmail":    "a.b@example.com",
	}
}

func (e *testEnv) submit(t *testing.T) models.Application {
	t.Helper()
	resp := postJSON(t, e.app, http.MethodPost, "/api/applications", "", admissionForm())
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var app models.Application
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&app))
	return app
}

func TestApplicationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	app := env.submit(t)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, models.GenderFemale, app.Gender)

	// Anonymous submitters may attach documents while pending.
	resp, doc := env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/documents", "", map[string]any{
		"type": "birth_certificate", "fileName": "acte.pdf", "fileUrl": "s3://docs/acte.pdf", "fileSize": 2048,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "acte.pdf", doc["fileName"])

	resp, _ = env.do(t, http.MethodGet, "/api/applications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := env.reviewerToken(t)

	resp, list := env.do(t, http.MethodGet, "/api/applications?status=pending", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), list["total"])

	resp, detail := env.do(t, http.MethodGet, "/api/applications/"+app.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, detail["documents"], 1)

	resp, result := env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/approve", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	student := result["student"].(map[string]any)
	assert.True(t, strings.HasPrefix(student["studentCode"].(string), "SR"))
	assert.Equal(t, "a.b@example.com", result["parentUser"].(map[string]any)["email"])
	assert.Equal(t, "mia.tremblay@student.ecole.local", result["studentUser"].(map[string]any)["email"])
	assert.Equal(t, "approved", result["application"].(map[string]any)["status"])

	env.srv.notifier.Wait()
	payloads, auth := env.records.calls()
	require.Len(t, payloads, 1)
	assert.Equal(t, "Mia", payloads[0].FirstName)
	assert.Equal(t, "Bearer svc-token", auth[0])
	assert.Len(t, env.notes.received(), 2)

	resp, body := env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/approve", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.CodeAlreadyApproved, body["code"])

	resp, _ = env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/documents", "", map[string]any{
		"fileName": "late.pdf", "fileUrl": "s3://docs/late.pdf",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccessByCodeAndLogout(t *testing.T) {
	env := newTestEnv(t)
	app := env.submit(t)
	token := env.reviewerToken(t)

	resp, body := env.do(t, http.MethodPost, "/api/auth/code", "", map[string]string{"code": app.AccessCode()})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.CodeNotApproved, body["code"])

	resp, _ = env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/approve", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/auth/code", "", map[string]string{"code": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.CodeInvalidCodeFormat, body["code"])

	resp, grant := env.do(t, http.MethodPost, "/api/auth/code", "", map[string]string{"code": strings.ToUpper(app.AccessCode())})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	studentToken := grant["token"].(string)
	require.NotEmpty(t, studentToken)

	resp, me := env.do(t, http.MethodGet, "/api/auth/me", studentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "student", me["role"])

	// Students cannot review.
	resp, _ = env.do(t, http.MethodGet, "/api/applications", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", studentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/auth/me", studentToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Token has been revoked", body["error"])
}

func TestAccessByCodeDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.FeatureFlags = "code_access=off" })

	resp, body := env.do(t, http.MethodPost, "/api/auth/code", "", map[string]string{"code": "abcdef12"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeForbidden, body["code"])
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		edit  func(map[string]any)
		code  string
		field string
	}{
		{"missing first name", func(f map[string]any) { delete(f, "firstName") }, models.CodeMissingField, "firstName"},
		{"bad date", func(f map[string]any) { f["dateOfBirth"] = "31/31/2010" }, models.CodeInvalidDateOfBirth, "dateOfBirth"},
		{"too young for secondary", func(f map[string]any) { f["dateOfBirth"] = "2016-01-01" }, models.CodeInvalidAgeForSecondary, "dateOfBirth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := admissionForm()
			tt.edit(form)
			resp, body := env.do(t, http.MethodPost, "/api/applications", "", form)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, tt.field, body["field"])
		})
	}

	var count int64
	require.NoError(t, env.db.Model(&models.Application{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRejectAndDelete(t *testing.T) {
	env := newTestEnv(t)
	app := env.submit(t)
	token := env.reviewerToken(t)

	resp, body := env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/reject", token, map[string]string{"reason": "Dossier incomplet"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected", body["status"])
	assert.Equal(t, "Dossier incomplet", body["notes"])

	resp, body = env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/approve", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.CodeAlreadyRejected, body["code"])

	resp, _ = env.do(t, http.MethodDelete, "/api/applications/"+app.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/applications/"+app.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.CodeNotFound, body["code"])

	resp, _ = env.do(t, http.MethodDelete, "/api/applications/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMirrorFailureThenRemirror(t *testing.T) {
	env := newTestEnv(t)
	app := env.submit(t)
	token := env.reviewerToken(t)

	env.records.fail.Store(true)
	resp, result := env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/approve", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	student := result["student"].(map[string]any)
	assert.Nil(t, student["mirrorId"])

	resp, body := env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/mirror", token, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, models.CodeInternal, body["code"])

	env.records.fail.Store(false)
	resp, mirrored := env.do(t, http.MethodPost, "/api/applications/"+app.ID+"/mirror", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rec-1", mirrored["mirrorId"])

	resp, report := env.do(t, http.MethodPost, "/api/admin/reconcile-mirrors", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), report["attempted"])
}

func TestFeatureFlagsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.reviewerToken(t)

	resp, body := env.do(t, http.MethodGet, "/api/admin/feature-flags", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	evaluated := body["evaluated"].(map[string]any)
	assert.Equal(t, true, evaluated["code_access"])
	assert.Equal(t, true, evaluated["student_mirror"])

	env.createUser(t, "parent@example.com", models.RoleParent, "Parent123!")
	parentToken := env.login(t, "parent@example.com", "Parent123!")
	resp, _ = env.do(t, http.MethodGet, "/api/admin/feature-flags", parentToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHealthChecks(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	resp, body := env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	env.mr.Close()
	resp, body = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}
