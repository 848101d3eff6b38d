package payroll

import "github.com/shopspring/decimal"

const (
	ColumnName        = "Name"
	ColumnBasicSalary = "Basic Salary"
	ColumnAllowances  = "Allowances"
	ColumnDeductions  = "Deductions"
	ColumnMonth       = "Month"
	ColumnYear        = "Year"
	ColumnRole        = "Role"

	ColumnGrossPay = "Gross Pay"
	ColumnSSNIT    = "SSNIT"
	ColumnTaxable  = "Taxable"
	ColumnPAYE     = "PAYE"
	ColumnNetPay   = "Net Pay"
	ColumnError    = "Error"

	RunStatusProcessed = "processed"
	RunStatusRendering = "rendering"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"

	PolicyPartial  = "partial"
	PolicyFailFast = "fail_fast"

	ScheduleGhana2024   = "gh-2024-monthly"
	ScheduleGhanaLegacy = "gh-legacy-monthly"
)

// DefaultContributionRate is the employee SSNIT tier-1 rate.
var DefaultContributionRate = decimal.RequireFromString("0.055")

// DerivedColumns are appended to every output dataset, in this order.
var DerivedColumns = []string{ColumnGrossPay, ColumnSSNIT, ColumnTaxable, ColumnPAYE, ColumnNetPay}

// columnAliases maps normalized header text to the canonical column.
var columnAliases = map[string]string{
	"name":          ColumnName,
	"employee":      ColumnName,
	"employee name": ColumnName,
	"basic salary":  ColumnBasicSalary,
	"basic":         ColumnBasicSalary,
	"allowances":    ColumnAllowances,
	"allowance":     ColumnAllowances,
	"deductions":    ColumnDeductions,
	"deduction":     ColumnDeductions,
	"month":         ColumnMonth,
	"year":          ColumnYear,
	"role":          ColumnRole,
}

var requiredColumns = []string{ColumnName, ColumnBasicSalary, ColumnAllowances, ColumnDeductions}
