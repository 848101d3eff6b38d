package payroll

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateTaxKnownValues(t *testing.T) {
	table := ghanaConfig(t).Table
	cases := []struct {
		taxable string
		want    string
	}{
		{"0", "0.00"},
		{"300", "0.00"},
		{"490", "0.00"},
		{"600", "5.50"},
		{"730", "18.50"},
		{"1134", "89.20"},
		{"3896.67", "572.67"},
		// bands rounded one by one would give 5.50+13.00+554.17+0.01 = 572.68
		{"3896.69", "572.67"},
	}
	for _, c := range cases {
		got, err := CalculateTax(table, dec(c.taxable))
		if err != nil {
			t.Fatalf("taxable %s: unexpected error: %v", c.taxable, err)
		}
		if got.StringFixed(2) != c.want {
			t.Fatalf("taxable %s: expected %s, got %s", c.taxable, c.want, got.StringFixed(2))
		}
	}
}

func TestCalculateTaxTopBand(t *testing.T) {
	table := ghanaConfig(t).Table
	// The bounded bands end at 20198.67, where tax is 4648.16725.
	got, err := CalculateTax(table, dec("30198.67"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StringFixed(2) != "7648.17" {
		t.Fatalf("expected 7648.17, got %s", got.StringFixed(2))
	}
}

func TestCalculateTaxIsMonotonic(t *testing.T) {
	table := ghanaConfig(t).Table
	prev := dec("0")
	for amount := 0; amount <= 25000; amount += 37 {
		income := decimal.NewFromInt(int64(amount))
		got, err := CalculateTax(table, income)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.LessThan(prev) {
			t.Fatalf("tax decreased at %d: %s < %s", amount, got, prev)
		}
		if got.GreaterThan(income) {
			t.Fatalf("tax %s exceeds income %d", got, amount)
		}
		prev = got
	}
}

func TestCalculateTaxBoundedLastBandTaxesRemainder(t *testing.T) {
	table, err := NewBracketTable([]TaxBand{
		{Width: dec("100"), Rate: dec("0")},
		{Width: dec("100"), Rate: dec("0.1")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := CalculateTax(table, dec("500"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StringFixed(2) != "40.00" {
		t.Fatalf("expected 40.00, got %s", got.StringFixed(2))
	}
}

func TestCalculateTaxRejectsNegative(t *testing.T) {
	table := ghanaConfig(t).Table
	if _, err := CalculateTax(table, dec("-0.01")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTaxBreakdownSumsToTax(t *testing.T) {
	table := ghanaConfig(t).Table
	lines, err := TaxBreakdown(table, dec("1134"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 bands touched, got %d", len(lines))
	}
	if !lines[3].Amount.Equal(dec("404")) {
		t.Fatalf("expected 404 in band 4, got %s", lines[3].Amount)
	}
	sum := dec("0")
	for _, l := range lines {
		sum = sum.Add(l.Tax)
	}
	if sum.StringFixed(2) != "89.20" {
		t.Fatalf("expected breakdown total 89.20, got %s", sum.StringFixed(2))
	}
}
