package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payslip/internal/domain/auth"
	"payslip/internal/domain/payroll"
	"payslip/internal/platform/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.FromEnv()
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""
	cfg.JWTSecret = "test-secret"
	cfg.EncryptionKey = ""
	cfg.OutputDir = t.TempDir()
	cfg.RenderPDF = false
	return cfg
}

func TestHealthAndMetrics(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String())
	}

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "payslip_http_requests_total")
}

func TestAPIRequiresToken(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payroll/schedules", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunIsRenderedInBackground(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	token, err := auth.GenerateToken(cfg.JWTSecret, "clerk", auth.RolePayroll, time.Hour)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("dataset", "payroll.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("Name,Basic Salary,Allowances,Deductions\nAma,1000,200,50\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var env struct {
		Data struct {
			Run    payroll.Run `json:"run"`
			Render string      `json:"render"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "queued", env.Data.Render)

	require.Eventually(t, func() bool {
		run, err := app.Payroll.Get(context.Background(), env.Data.Run.ID)
		return err == nil && run.Status == payroll.RunStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	row, err := app.Payroll.Row(context.Background(), env.Data.Run.ID, 2)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(row.PayslipPath, ".txt"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs/"+env.Data.Run.ID+"/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs struct {
		Data []payroll.JobRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Eventually(t, func() bool {
		list, err := app.Payroll.JobRuns(context.Background(), env.Data.Run.ID)
		return err == nil && len(list) == 1 && list[0].Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, jobs.Data, 1)
}

func TestAuditEventsRequireAdmin(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	for role, want := range map[string]int{auth.RolePayroll: http.StatusForbidden, auth.RoleAdmin: http.StatusOK} {
		token, err := auth.GenerateToken(cfg.JWTSecret, "u-"+role, role, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestCloseFailsRunsStillQueued(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	app.stopJobs()
	app.Jobs.Wait()

	token, err := auth.GenerateToken(cfg.JWTSecret, "clerk", auth.RolePayroll, time.Hour)
	require.NoError(t, err)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("dataset", "payroll.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("Name,Basic Salary,Allowances,Deductions\nAma,1000,200,50\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var env struct {
		Data struct {
			Run    payroll.Run `json:"run"`
			Render string      `json:"render"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "queued", env.Data.Render)

	app.Close()

	run, err := app.Payroll.Get(context.Background(), env.Data.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RunStatusFailed, run.Status)
	assert.NotNil(t, run.CompletedAt)
	list, err := app.Payroll.JobRuns(context.Background(), env.Data.Run.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "failed", list[0].Status)
}
