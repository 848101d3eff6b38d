package payrollhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"payslip/internal/domain/audit"
	"payslip/internal/domain/payroll"
	"payslip/internal/transport/http/api"
	"payslip/internal/transport/http/middleware"
)

func (h *Handler) record(r *http.Request, action, runID string, line int, details any) {
	user, _ := middleware.GetUser(r.Context())
	h.Audit.Record(r.Context(), audit.Event{
		Actor:     user.Subject,
		Role:      user.Role,
		Action:    action,
		RunID:     runID,
		Line:      line,
		RequestID: middleware.GetRequestID(r.Context()),
		IP:        middleware.ClientIP(r),
	}, details)
}

func (h *Handler) handleListJobRuns(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	jobRuns, err := h.Payroll.JobRuns(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	if jobRuns == nil {
		jobRuns = []payroll.JobRun{}
	}
	api.Success(w, jobRuns, requestID)
}
