package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payslip/internal/domain/auth"
	"payslip/internal/platform/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthSetsUser(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, "u1", auth.RolePayroll, time.Hour)
	require.NoError(t, err)

	var got auth.UserContext
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r.Context())
		require.True(t, ok)
		got = user
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, auth.UserContext{Subject: "u1", Role: auth.RolePayroll}, got)
}

func TestAuthIgnoresBadToken(t *testing.T) {
	handler := Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := GetUser(r.Context())
		assert.False(t, ok)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRequirePermission(t *testing.T) {
	handler := RequirePermission(auth.PermPayrollRun, auth.StaticPermissions{})(okHandler())

	anon := httptest.NewRecorder()
	handler.ServeHTTP(anon, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, anon.Code)

	viewer := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithUser(req.Context(), auth.UserContext{Subject: "v", Role: auth.RoleViewer}))
	handler.ServeHTTP(viewer, req)
	assert.Equal(t, http.StatusForbidden, viewer.Code)

	clerk := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithUser(req.Context(), auth.UserContext{Subject: "c", Role: auth.RolePayroll}))
	handler.ServeHTTP(clerk, req)
	assert.Equal(t, http.StatusNoContent, clerk.Code)
}

func TestRateLimitUsesSubjectBeforeIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(okHandler())
	ctx := WithUser(context.Background(), auth.UserContext{Subject: "user-1"})

	first := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs", nil).WithContext(ctx)
	first.RemoteAddr = "198.51.100.11:2222"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	assert.Equal(t, http.StatusNoContent, firstRec.Code)

	second := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs", nil).WithContext(ctx)
	second.RemoteAddr = "198.51.100.12:3333"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	assert.Equal(t, http.StatusTooManyRequests, secondRec.Code)
	assert.NotEmpty(t, secondRec.Header().Get("Retry-After"))
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(okHandler())
	send := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("192.0.2.1:1000", ""))
	assert.Equal(t, http.StatusNoContent, send("192.0.2.2:1000", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1:2000", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1000", "192.0.2.2, 10.0.0.1"))
}

func TestRunSubmissionRateLimitOnlyThrottlesSubmissions(t *testing.T) {
	limited := RunSubmissionRateLimit(4, time.Minute)(okHandler())
	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs", nil)
		req.RemoteAddr = "203.0.113.10:4444"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "request %d", i)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs/x", nil)
	req.RemoteAddr = "203.0.113.10:4444"
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecovererAndLogger(t *testing.T) {
	handler := Logger(metrics.New(prometheus.NewRegistry()))(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "internal_error", body.Error.Code)
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore(NewMemoryKeyValue(), time.Hour)
	hash := RequestHash([]byte("payload"))

	_, found, err := store.Check(ctx, "u1", "payroll.runs.create", "k1", hash)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(ctx, "u1", "payroll.runs.create", "k1", hash, json.RawMessage(`{"id":"r1"}`)))

	stored, found, err := store.Check(ctx, "u1", "payroll.runs.create", "k1", hash)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"id":"r1"}`, string(stored))

	_, _, err = store.Check(ctx, "u1", "payroll.runs.create", "k1", RequestHash([]byte("other")))
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	_, found, err = store.Check(ctx, "u2", "payroll.runs.create", "k1", hash)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryKeyValueExpires(t *testing.T) {
	kv := NewMemoryKeyValue()
	now := time.Now()
	kv.now = func() time.Time { return now }
	ok, err := kv.StoreIfAbsent(context.Background(), "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, found, err := kv.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBodyLimitSeparatesUploads(t *testing.T) {
	limited := BodyLimit(8, 64)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	send := func(contentType, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, send("application/json", `{"a":1}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, send("application/json", `{"amount":"1134"}`))
	assert.Equal(t, http.StatusNoContent, send("multipart/form-data; boundary=x", strings.Repeat("a", 40)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, send("multipart/form-data; boundary=x", strings.Repeat("a", 80)))

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", strings.NewReader(strings.Repeat("a", 80))))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecureHeaders(false)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "sandbox")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	SecureHeaders(true)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}
