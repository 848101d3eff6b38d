package payroll

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Table is a rectangular dataset as read from a spreadsheet. Columns holds the
// header row; every entry of Rows is one data line.
type Table struct {
	Columns []string
	Rows    [][]string
}

type EmployeeInput struct {
	Name        string          `json:"name"`
	BasicSalary decimal.Decimal `json:"basicSalary"`
	Allowances  decimal.Decimal `json:"allowances"`
	Deductions  decimal.Decimal `json:"deductions"`
	Month       string          `json:"month,omitempty"`
	Year        int             `json:"year,omitempty"`
	Role        string          `json:"role,omitempty"`
}

type DerivedPayroll struct {
	GrossPay              decimal.Decimal `json:"grossPay"`
	StatutoryContribution decimal.Decimal `json:"statutoryContribution"`
	TaxableIncome         decimal.Decimal `json:"taxableIncome"`
	Tax                   decimal.Decimal `json:"tax"`
	NetPay                decimal.Decimal `json:"netPay"`
}

// Row is one data line of a validated table. Cells is keyed by both the
// original header text and, for recognised columns, the canonical column name.
type Row struct {
	Line  int
	Cells map[string]string
}

type Record struct {
	Line    int               `json:"line"`
	Input   EmployeeInput     `json:"input"`
	Derived DerivedPayroll    `json:"derived"`
	Cells   map[string]string `json:"-"`
}

type RowFailure struct {
	Line  int               `json:"line"`
	Name  string            `json:"name,omitempty"`
	Err   error             `json:"-"`
	Cells map[string]string `json:"-"`
}

func (f RowFailure) Field() string {
	var fe *FieldError
	if errors.As(f.Err, &fe) {
		return fe.Field
	}
	return ""
}

func (f RowFailure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

type BatchResult struct {
	Records  []Record
	Failures []RowFailure
}

type Totals struct {
	GrossPay              decimal.Decimal `json:"grossPay"`
	StatutoryContribution decimal.Decimal `json:"statutoryContribution"`
	Tax                   decimal.Decimal `json:"tax"`
	NetPay                decimal.Decimal `json:"netPay"`
}

func (r BatchResult) Totals() Totals {
	var t Totals
	for _, rec := range r.Records {
		t.GrossPay = t.GrossPay.Add(rec.Derived.GrossPay)
		t.StatutoryContribution = t.StatutoryContribution.Add(rec.Derived.StatutoryContribution)
		t.Tax = t.Tax.Add(rec.Derived.Tax)
		t.NetPay = t.NetPay.Add(rec.Derived.NetPay)
	}
	return t
}

type Run struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Source           string          `json:"source"`
	Schedule         string          `json:"schedule"`
	ContributionRate decimal.Decimal `json:"contributionRate"`
	Policy           string          `json:"policy"`
	RowCount         int             `json:"rowCount"`
	FailedCount      int             `json:"failedCount"`
	Totals           Totals          `json:"totals"`
	Columns          []string        `json:"columns"`
	CreatedAt        time.Time       `json:"createdAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

// JobRun records one background job executed for a run, such as the payslip
// render.
type JobRun struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	RunID       string          `json:"runId"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// RunRow is the persisted form of one input line of a run. Derived is nil and
// Error is set for lines that failed validation.
type RunRow struct {
	Line        int               `json:"line"`
	Input       EmployeeInput     `json:"input"`
	Derived     *DerivedPayroll   `json:"derived,omitempty"`
	Error       string            `json:"error,omitempty"`
	Field       string            `json:"field,omitempty"`
	Cells       map[string]string `json:"cells,omitempty"`
	PayslipPath string            `json:"payslipPath,omitempty"`
	PDFPath     string            `json:"pdfPath,omitempty"`
	RenderError string            `json:"renderError,omitempty"`
}

type RegisterLine struct {
	Line        int    `csv:"Line"`
	Name        string `csv:"Name"`
	Role        string `csv:"Role"`
	Month       string `csv:"Month"`
	Year        string `csv:"Year"`
	BasicSalary string `csv:"Basic Salary"`
	Allowances  string `csv:"Allowances"`
	GrossPay    string `csv:"Gross Pay"`
	SSNIT       string `csv:"SSNIT"`
	Taxable     string `csv:"Taxable"`
	PAYE        string `csv:"PAYE"`
	Deductions  string `csv:"Deductions"`
	NetPay      string `csv:"Net Pay"`
}
