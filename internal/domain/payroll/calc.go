package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Config struct {
	ContributionRate decimal.Decimal
	Table            BracketTable
}

func (c Config) Validate() error {
	if c.ContributionRate.IsNegative() || c.ContributionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: contribution rate %s outside [0,1]", ErrInvalidInput, c.ContributionRate)
	}
	if c.Table.Len() == 0 {
		return fmt.Errorf("%w: empty bracket table", ErrInvalidBands)
	}
	return nil
}

// Derive computes gross, statutory contribution, taxable income, tax and net
// pay, in that order. Deductions come off after tax.
func Derive(input EmployeeInput, cfg Config) (DerivedPayroll, error) {
	if err := validateAmounts(input); err != nil {
		return DerivedPayroll{}, err
	}
	gross := input.BasicSalary.Add(input.Allowances)
	statutory := gross.Mul(cfg.ContributionRate)
	taxable := gross.Sub(statutory)
	tax, err := CalculateTax(cfg.Table, taxable)
	if err != nil {
		return DerivedPayroll{}, err
	}
	return DerivedPayroll{
		GrossPay:              gross,
		StatutoryContribution: statutory,
		TaxableIncome:         taxable,
		Tax:                   tax,
		NetPay:                taxable.Sub(tax).Sub(input.Deductions),
	}, nil
}

func validateAmounts(input EmployeeInput) error {
	amounts := []struct {
		field string
		value decimal.Decimal
	}{
		{ColumnBasicSalary, input.BasicSalary},
		{ColumnAllowances, input.Allowances},
		{ColumnDeductions, input.Deductions},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return invalidAmount(a.field, a.value.String(), "must not be negative")
		}
	}
	return nil
}
