package payroll

import "github.com/shopspring/decimal"

// TaxLine is the share of taxable income that fell into one band.
type TaxLine struct {
	Band   int             `json:"band"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
	Tax    decimal.Decimal `json:"tax"`
}

// CalculateTax applies the table to a taxable amount. Only the total is
// rounded, to 2 decimal places.
func CalculateTax(table BracketTable, taxable decimal.Decimal) (decimal.Decimal, error) {
	lines, err := TaxBreakdown(table, taxable)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Tax)
	}
	return total.Round(2), nil
}

// TaxBreakdown walks the bands lowest first, taxing min(width, remaining) in
// each. Per-band amounts are unrounded. Income beyond a bounded last band is
// taxed at that band's rate.
func TaxBreakdown(table BracketTable, taxable decimal.Decimal) ([]TaxLine, error) {
	if taxable.IsNegative() {
		return nil, invalidAmount("taxable income", taxable.String(), "must not be negative")
	}
	var lines []TaxLine
	remaining := taxable
	for i, band := range table.bands {
		if !remaining.IsPositive() {
			break
		}
		last := i == len(table.bands)-1
		portion := remaining
		if !band.Unbounded && !last && band.Width.LessThan(remaining) {
			portion = band.Width
		}
		lines = append(lines, TaxLine{
			Band:   i + 1,
			Rate:   band.Rate,
			Amount: portion,
			Tax:    portion.Mul(band.Rate),
		})
		remaining = remaining.Sub(portion)
	}
	return lines, nil
}
