package payrollhandler

import (
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"payslip/internal/domain/audit"
	"payslip/internal/domain/payroll"
	"payslip/internal/domain/payslip"
	"payslip/internal/platform/sheet"
	"payslip/internal/transport/http/api"
	"payslip/internal/transport/http/middleware"
)

var exportContentTypes = map[string]string{
	sheet.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	sheet.FormatCSV:  "text/csv; charset=utf-8",
}

func (h *Handler) handleExportRun(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = sheet.FormatXLSX
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		api.Fail(w, http.StatusBadRequest, "validation_error", "format must be xlsx or csv", requestID)
		return
	}

	_, table, result, err := h.Payroll.Result(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	h.record(r, audit.ActionRunExported, chi.URLParam(r, "runID"), 0, map[string]string{"format": format})
	name := sheet.OutputFileName + "." + format
	api.Attachment(w, contentType, name)
	if err := sheet.Write(name, w, payroll.OutputTable(table, result)); err != nil {
		slog.Warn("export run failed", "err", err, "requestId", requestID)
	}
}

func (h *Handler) handleExportRegister(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	run, _, result, err := h.Payroll.Result(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	h.record(r, audit.ActionRegisterExported, run.ID, 0, nil)
	api.Attachment(w, exportContentTypes[sheet.FormatCSV], "payroll_register_"+run.ID+".csv")
	if err := sheet.WriteRegister(w, payroll.RegisterLines(result.Records)); err != nil {
		slog.Warn("export register failed", "err", err, "requestId", requestID)
	}
}

// handleDownloadPayslip serves the rendered document for one line, or its PDF
// with ?kind=pdf. Sealed files are decrypted on the way out.
func (h *Handler) handleDownloadPayslip(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	line, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || line < 2 {
		api.Fail(w, http.StatusBadRequest, "validation_error", "row must be a data line number", requestID)
		return
	}
	row, err := h.Payroll.Row(r.Context(), chi.URLParam(r, "runID"), line)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	path := row.PayslipPath
	if r.URL.Query().Get("kind") == "pdf" {
		path = row.PDFPath
	}
	if path == "" {
		writeDomainError(w, payslip.ErrPayslipNotFound, requestID)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeDomainError(w, payslip.ErrPayslipNotFound, requestID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "payslip_download_failed", "failed to read payslip", requestID)
		return
	}
	name := filepath.Base(path)
	if strings.HasSuffix(name, ".enc") {
		if data, err = h.Crypto.Decrypt(data); err != nil {
			api.Fail(w, http.StatusInternalServerError, "payslip_download_failed", "failed to decrypt payslip", requestID)
			return
		}
		name = strings.TrimSuffix(name, ".enc")
	}

	h.record(r, audit.ActionPayslipDownloaded, chi.URLParam(r, "runID"), line, map[string]string{"file": name})
	api.Attachment(w, mime.TypeByExtension(filepath.Ext(name)), name)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("payslip download write failed", "err", err, "requestId", requestID)
	}
}
