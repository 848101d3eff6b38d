package audithandler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"

	"payslip/internal/domain/audit"
	"payslip/internal/domain/auth"
	"payslip/internal/transport/http/api"
	"payslip/internal/transport/http/middleware"
	"payslip/internal/transport/http/shared"
)

type Handler struct {
	Service *audit.Service
	Perms   middleware.PermissionStore
}

func NewHandler(service *audit.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events/export", h.handleExportEvents)
	})
}

func filterFrom(r *http.Request) audit.Filter {
	q := r.URL.Query()
	return audit.Filter{
		Action: strings.TrimSpace(q.Get("action")),
		RunID:  strings.TrimSpace(q.Get("runId")),
		Actor:  strings.TrimSpace(q.Get("actor")),
	}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 100, 500)
	events, total, err := h.Service.List(r.Context(), filterFrom(r), page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", requestID)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, shared.NewPage(events, total, page), requestID)
}

type exportRow struct {
	ID        string `csv:"id"`
	Actor     string `csv:"actor"`
	Role      string `csv:"role"`
	Action    string `csv:"action"`
	RunID     string `csv:"run_id"`
	Line      int    `csv:"line"`
	RequestID string `csv:"request_id"`
	IP        string `csv:"ip"`
	CreatedAt string `csv:"created_at"`
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	events, err := h.Service.Export(r.Context(), filterFrom(r))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", requestID)
		return
	}

	rows := make([]exportRow, 0, len(events))
	for _, evt := range events {
		rows = append(rows, exportRow{
			ID:        evt.ID,
			Actor:     evt.Actor,
			Role:      evt.Role,
			Action:    evt.Action,
			RunID:     evt.RunID,
			Line:      evt.Line,
			RequestID: evt.RequestID,
			IP:        evt.IP,
			CreatedAt: evt.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	api.Attachment(w, "text/csv", "audit-events.csv")
	if err := gocsv.Marshal(rows, w); err != nil {
		slog.Warn("audit export failed", "err", err, "requestId", requestID)
	}
}
