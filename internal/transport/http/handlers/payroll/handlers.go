package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"payslip/internal/domain/audit"
	"payslip/internal/domain/auth"
	"payslip/internal/domain/payroll"
	"payslip/internal/domain/payslip"
	"payslip/internal/platform/crypto"
	"payslip/internal/platform/jobs"
	"payslip/internal/platform/metrics"
	"payslip/internal/platform/sheet"
	"payslip/internal/transport/http/api"
	"payslip/internal/transport/http/middleware"
	"payslip/internal/transport/http/shared"
)

const runsEndpoint = "POST /payroll/runs"

// Options carries the run and render settings taken from config.
type Options struct {
	Schedule         string
	ContributionRate string
	Policy           string
	OutputDir        string
	RenderPDF        bool
	RenderWorkers    int
	RenderTimeout    time.Duration
	MaxUploadBytes   int64
}

type Handler struct {
	Payroll     *payroll.Service
	Jobs        *jobs.Service
	Crypto      *crypto.Service
	Metrics     *metrics.Collector
	Idempotency *middleware.IdempotencyStore
	Audit       *audit.Service
	Perms       middleware.PermissionStore
	Options     Options
}

func NewHandler(svc *payroll.Service, jobService *jobs.Service, cryptoSvc *crypto.Service, collector *metrics.Collector, idem *middleware.IdempotencyStore, auditSvc *audit.Service, perms middleware.PermissionStore, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		Payroll:     svc,
		Jobs:        jobService,
		Crypto:      cryptoSvc,
		Metrics:     collector,
		Idempotency: idem,
		Audit:       auditSvc,
		Perms:       perms,
		Options:     opts,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/schedules", h.handleListSchedules)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Post("/tax", h.handleTax)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Post("/derive", h.handleDerive)
		r.With(middleware.RequirePermission(auth.PermPayrollRun, h.Perms)).Post("/runs", h.handleCreateRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs", h.handleListRuns)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}", h.handleGetRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/export", h.handleExportRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/register", h.handleExportRegister)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/payslips/{row}", h.handleDownloadPayslip)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/jobs", h.handleListJobRuns)
	})
}

type failureView struct {
	Line  int    `json:"line"`
	Name  string `json:"name,omitempty"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

type runResponse struct {
	Run      payroll.Run      `json:"run"`
	Records  []payroll.Record `json:"records,omitempty"`
	Rows     []payroll.RunRow `json:"rows,omitempty"`
	Failures []failureView    `json:"failures"`
	Render   string           `json:"render,omitempty"`
}

type upload struct {
	filename string
	data     []byte
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	if err := r.ParseMultipartForm(h.Options.MaxUploadBytes); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_upload", "expected a multipart form upload", requestID)
		return
	}
	v := shared.NewValidator()
	dataset, err := readPart(r.MultipartForm, "dataset")
	if err != nil {
		v.Add("dataset", "spreadsheet file is required")
	}
	tmplUpload, _ := readPart(r.MultipartForm, "template")
	scheduleName := strings.TrimSpace(r.URL.Query().Get("schedule"))
	h.checkSchedule(v, scheduleName)
	policy := strings.TrimSpace(r.URL.Query().Get("policy"))
	v.Enum("policy", policy, []string{payroll.PolicyPartial, payroll.PolicyFailFast}, "must be partial or fail_fast")
	if v.Reject(w, requestID) {
		return
	}
	if policy == "" {
		policy = h.Options.Policy
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := ""
	if idemKey != "" {
		requestHash = middleware.RequestHash(bytes.Join([][]byte{dataset.data, tmplUpload.data, []byte(scheduleName), []byte(policy)}, []byte{0}))
		stored, found, err := h.Idempotency.Check(r.Context(), user.Subject, runsEndpoint, idemKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different request", requestID)
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "err", err, "requestId", requestID)
		}
		if found {
			writeRaw(w, http.StatusCreated, stored)
			return
		}
	}

	schedule, err := h.loadSchedule(scheduleName)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	table, err := sheet.Read(dataset.filename, bytes.NewReader(dataset.data))
	if err != nil {
		switch {
		case errors.Is(err, sheet.ErrUnsupportedFormat):
			api.Fail(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error(), requestID)
		case errors.Is(err, sheet.ErrEmpty):
			api.Fail(w, http.StatusBadRequest, "empty_dataset", err.Error(), requestID)
		default:
			api.Fail(w, http.StatusBadRequest, "invalid_dataset", "failed to read spreadsheet", requestID)
		}
		return
	}
	tmpl, err := h.template(tmplUpload, table)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	run, result, err := h.Payroll.Run(r.Context(), payroll.RunRequest{
		Source:   dataset.filename,
		Table:    table,
		Schedule: schedule,
		Policy:   policy,
	})
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	h.record(r, audit.ActionRunCreated, run.ID, 0, map[string]any{
		"source":   run.Source,
		"schedule": run.Schedule,
		"rows":     run.RowCount,
		"failed":   run.FailedCount,
	})

	resp := runResponse{Run: run, Records: result.Records, Failures: failureViews(result.Failures)}
	resp.Render = h.startRender(r.Context(), run.ID, schedule, tmpl, result.Records)
	if resp.Render == "completed" {
		if updated, err := h.Payroll.Get(r.Context(), run.ID); err == nil {
			resp.Run = updated
		}
	}

	raw, err := json.Marshal(api.Envelope{Success: true, Data: resp, RequestID: requestID})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "encode_failed", "failed to encode response", requestID)
		return
	}
	if idemKey != "" {
		if err := h.Idempotency.Save(r.Context(), user.Subject, runsEndpoint, idemKey, requestHash, raw); err != nil {
			slog.Warn("idempotency save failed", "err", err, "runId", run.ID)
		}
	}
	writeRaw(w, http.StatusCreated, raw)
}

// template resolves the uploaded template, or the built-in text layout. The
// input columns are valid placeholders alongside the standard fields.
func (h *Handler) template(in upload, table payroll.Table) (*payslip.Template, error) {
	if len(in.data) == 0 {
		return payslip.ParseTemplate("payslip.txt", []byte(payslip.DefaultTemplate), nil)
	}
	tmpl, err := payslip.ParseTemplate(in.filename, in.data, payroll.StandardPlaceholders)
	if err != nil {
		return nil, err
	}
	available := append([]string{}, payroll.StandardPlaceholders...)
	available = append(available, table.Columns...)
	if err := tmpl.Validate(available); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// startRender queues payslip rendering for the run's derived records. Without
// a job queue, or when it is full, rendering happens inline.
func (h *Handler) startRender(ctx context.Context, runID string, schedule payroll.Schedule, tmpl *payslip.Template, records []payroll.Record) string {
	if len(records) == 0 {
		if err := h.Payroll.MarkStatus(ctx, runID, payroll.RunStatusCompleted); err != nil {
			slog.Warn("mark run completed failed", "runId", runID, "err", err)
		}
		return "completed"
	}
	renderer := payslip.NewRenderer(payslip.Options{
		OutputDir: filepath.Join(h.Options.OutputDir, runID),
		Template:  tmpl,
		PDF:       h.Options.RenderPDF,
		Workers:   h.Options.RenderWorkers,
		Timeout:   h.Options.RenderTimeout,
		Table:     schedule.Table,
	}, h.Crypto, h.Metrics)
	render := func(ctx context.Context) (any, error) {
		return payslip.RenderRun(ctx, h.Payroll, runID, renderer, records)
	}

	if h.Jobs != nil {
		if err := h.Jobs.Enqueue(jobs.JobRenderPayslips, runID, render); err == nil {
			return "queued"
		}
		if _, err := h.Jobs.RunNow(ctx, jobs.JobRenderPayslips, runID, render); err != nil {
			slog.Warn("inline render failed", "runId", runID, "err", err)
			return "failed"
		}
		return "completed"
	}
	if _, err := render(ctx); err != nil {
		slog.Warn("inline render failed", "runId", runID, "err", err)
		return "failed"
	}
	return "completed"
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 20, 100)
	runs, total, err := h.Payroll.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payroll_runs_failed", "failed to list runs", requestID)
		return
	}
	api.Success(w, shared.NewPage(runs, total, page), requestID)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	runID := chi.URLParam(r, "runID")
	run, err := h.Payroll.Get(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	rows, err := h.Payroll.Rows(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	failures := []failureView{}
	for _, row := range rows {
		if row.Derived == nil {
			failures = append(failures, failureView{Line: row.Line, Name: row.Input.Name, Field: row.Field, Error: row.Error})
		}
	}
	api.Success(w, runResponse{Run: run, Rows: rows, Failures: failures}, requestID)
}

func failureViews(failures []payroll.RowFailure) []failureView {
	out := make([]failureView, 0, len(failures))
	for _, f := range failures {
		out = append(out, failureView{Line: f.Line, Name: f.Name, Field: f.Field(), Error: f.Message()})
	}
	return out
}

func readPart(form *multipart.Form, field string) (upload, error) {
	if form == nil || len(form.File[field]) == 0 {
		return upload{}, http.ErrMissingFile
	}
	header := form.File[field][0]
	file, err := header.Open()
	if err != nil {
		return upload{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return upload{}, err
	}
	return upload{filename: filepath.Base(header.Filename), data: data}, nil
}

func writeRaw(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(raw); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}

// writeDomainError maps payroll and payslip errors onto the response envelope.
func writeDomainError(w http.ResponseWriter, err error, requestID string) {
	var schemaErr *payroll.SchemaError
	var fieldErr *payroll.FieldError
	var tmplErr *payslip.TemplateError
	switch {
	case errors.As(err, &schemaErr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "schema_error", err.Error(),
			map[string]any{"missingColumns": schemaErr.Columns}, requestID)
	case errors.As(err, &fieldErr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "invalid_input", err.Error(),
			map[string]any{"row": fieldErr.Row, "field": fieldErr.Field, "value": fieldErr.Value, "reason": fieldErr.Reason}, requestID)
	case errors.As(err, &tmplErr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "template_error", err.Error(),
			map[string]any{"missing": tmplErr.Missing, "unknown": tmplErr.Unknown}, requestID)
	case errors.Is(err, payroll.ErrInvalidInput), errors.Is(err, payroll.ErrInvalidBands):
		api.Fail(w, http.StatusUnprocessableEntity, "invalid_input", err.Error(), requestID)
	case errors.Is(err, payroll.ErrUnknownSchedule):
		api.Fail(w, http.StatusBadRequest, "unknown_schedule", err.Error(), requestID)
	case errors.Is(err, payroll.ErrRunNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "payroll run not found", requestID)
	case errors.Is(err, payroll.ErrRowNotFound), errors.Is(err, payslip.ErrPayslipNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "payslip not found", requestID)
	default:
		slog.Error("payroll request failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "payroll_failed", "payroll request failed", requestID)
	}
}
