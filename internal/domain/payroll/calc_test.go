package payroll

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ghanaConfig(t *testing.T) Config {
	t.Helper()
	schedule, err := LoadSchedule(ScheduleGhana2024)
	if err != nil {
		t.Fatalf("load schedule: %v", err)
	}
	return schedule.Config()
}

func TestDerive(t *testing.T) {
	cfg := ghanaConfig(t)
	got, err := Derive(EmployeeInput{
		Name:        "Ama",
		BasicSalary: dec("1000"),
		Allowances:  dec("200"),
		Deductions:  dec("50"),
	}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"gross", got.GrossPay, "1200.00"},
		{"ssnit", got.StatutoryContribution, "66.00"},
		{"taxable", got.TaxableIncome, "1134.00"},
		{"tax", got.Tax, "89.20"},
		{"net", got.NetPay, "994.80"},
	}
	for _, c := range checks {
		if c.got.StringFixed(2) != c.want {
			t.Fatalf("expected %s %s, got %s", c.name, c.want, c.got.StringFixed(2))
		}
	}
}

func TestDeriveNetCanBeNegative(t *testing.T) {
	cfg := ghanaConfig(t)
	got, err := Derive(EmployeeInput{Name: "B", BasicSalary: dec("100"), Deductions: dec("500")}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.NetPay.IsNegative() {
		t.Fatalf("expected negative net pay, got %s", got.NetPay)
	}
}

func TestDeriveRejectsNegativeAmounts(t *testing.T) {
	cfg := ghanaConfig(t)
	_, err := Derive(EmployeeInput{Name: "C", BasicSalary: dec("100"), Deductions: dec("-1")}, cfg)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != ColumnDeductions {
		t.Fatalf("expected field error naming %s, got %v", ColumnDeductions, err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := ghanaConfig(t)
	cfg.ContributionRate = dec("1.5")
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for rate above 1, got %v", err)
	}
	if err := (Config{ContributionRate: dec("0.055")}).Validate(); !errors.Is(err, ErrInvalidBands) {
		t.Fatalf("expected ErrInvalidBands for empty table, got %v", err)
	}
}
