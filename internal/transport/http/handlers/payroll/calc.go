package payrollhandler

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"payslip/internal/domain/payroll"
	"payslip/internal/transport/http/api"
	"payslip/internal/transport/http/middleware"
	"payslip/internal/transport/http/shared"
)

type taxPayload struct {
	TaxableIncome json.Number `json:"taxableIncome"`
	Schedule      string      `json:"schedule"`
}

type taxResponse struct {
	Schedule      string            `json:"schedule"`
	TaxableIncome decimal.Decimal   `json:"taxableIncome"`
	Tax           string            `json:"tax"`
	Breakdown     []payroll.TaxLine `json:"breakdown"`
}

type derivePayload struct {
	Name        string      `json:"name"`
	BasicSalary json.Number `json:"basicSalary"`
	Allowances  json.Number `json:"allowances"`
	Deductions  json.Number `json:"deductions"`
	Month       string      `json:"month"`
	Year        int         `json:"year"`
	Role        string      `json:"role"`
	Schedule    string      `json:"schedule"`
}

type deriveResponse struct {
	Schedule string                 `json:"schedule"`
	Input    payroll.EmployeeInput  `json:"input"`
	Derived  payroll.DerivedPayroll `json:"derived"`
	Fields   map[string]string      `json:"fields"`
}

type scheduleView struct {
	Name             string            `json:"name"`
	ContributionRate decimal.Decimal   `json:"contributionRate"`
	Bands            []payroll.TaxBand `json:"bands"`
	Default          bool              `json:"default,omitempty"`
}

func (h *Handler) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	names := payroll.BuiltinSchedules()
	out := make([]scheduleView, 0, len(names))
	for _, name := range names {
		schedule, err := payroll.LoadSchedule(name)
		if err != nil {
			writeDomainError(w, err, requestID)
			return
		}
		out = append(out, scheduleView{
			Name:             schedule.Name,
			ContributionRate: schedule.ContributionRate,
			Bands:            schedule.Table.Bands(),
			Default:          name == h.defaultSchedule(),
		})
	}
	api.Success(w, out, requestID)
}

func (h *Handler) handleTax(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload taxPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid JSON payload", requestID)
		return
	}
	v := shared.NewValidator()
	taxable := v.Amount("taxableIncome", payload.TaxableIncome.String(), true)
	h.checkSchedule(v, payload.Schedule)
	if v.Reject(w, requestID) {
		return
	}
	schedule, err := h.loadSchedule(payload.Schedule)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	breakdown, err := payroll.TaxBreakdown(schedule.Table, taxable)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	tax, err := payroll.CalculateTax(schedule.Table, taxable)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	if breakdown == nil {
		breakdown = []payroll.TaxLine{}
	}
	api.Success(w, taxResponse{
		Schedule:      schedule.Name,
		TaxableIncome: taxable,
		Tax:           payroll.FormatAmount(tax),
		Breakdown:     breakdown,
	}, requestID)
}

func (h *Handler) handleDerive(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload derivePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid JSON payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	input := payroll.EmployeeInput{
		Name:        strings.TrimSpace(payload.Name),
		BasicSalary: v.Amount("basicSalary", payload.BasicSalary.String(), true),
		Allowances:  v.Amount("allowances", payload.Allowances.String(), false),
		Deductions:  v.Amount("deductions", payload.Deductions.String(), false),
		Month:       strings.TrimSpace(payload.Month),
		Year:        payload.Year,
		Role:        strings.TrimSpace(payload.Role),
	}
	if payload.Year < 0 {
		v.Add("year", "must not be negative")
	}
	h.checkSchedule(v, payload.Schedule)
	if v.Reject(w, requestID) {
		return
	}
	schedule, err := h.loadSchedule(payload.Schedule)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	derived, err := payroll.Derive(input, schedule.Config())
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	record := payroll.Record{Input: input, Derived: derived}
	api.Success(w, deriveResponse{
		Schedule: schedule.Name,
		Input:    input,
		Derived:  derived,
		Fields:   record.Fields(),
	}, requestID)
}

// checkSchedule only admits built-in names from clients; file paths are a
// server-side setting.
func (h *Handler) checkSchedule(v *shared.Validator, name string) {
	name = strings.TrimSpace(name)
	if name != "" && !slices.Contains(payroll.BuiltinSchedules(), name) {
		v.Add("schedule", "unknown schedule")
	}
}

func (h *Handler) loadSchedule(name string) (payroll.Schedule, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = h.Options.Schedule
	}
	schedule, err := payroll.LoadSchedule(name)
	if err != nil {
		return payroll.Schedule{}, err
	}
	return schedule.WithContributionRate(h.Options.ContributionRate)
}

func (h *Handler) defaultSchedule() string {
	if strings.TrimSpace(h.Options.Schedule) == "" {
		return payroll.ScheduleGhana2024
	}
	return h.Options.Schedule
}
