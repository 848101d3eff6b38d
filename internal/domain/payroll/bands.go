package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxBand is one slice of a progressive schedule. Unbounded marks a top band
// with no width.
type TaxBand struct {
	Width     decimal.Decimal `json:"width"`
	Rate      decimal.Decimal `json:"rate"`
	Unbounded bool            `json:"unbounded,omitempty"`
}

// Threshold is a cumulative upper bound, the legacy way of writing a schedule.
type Threshold struct {
	UpTo      decimal.Decimal
	Rate      decimal.Decimal
	Unbounded bool
}

// BracketTable is the canonical band-width form of a schedule. The zero value
// taxes nothing.
type BracketTable struct {
	bands []TaxBand
}

func NewBracketTable(bands []TaxBand) (BracketTable, error) {
	if len(bands) == 0 {
		return BracketTable{}, fmt.Errorf("%w: at least one band is required", ErrInvalidBands)
	}
	one := decimal.NewFromInt(1)
	out := make([]TaxBand, len(bands))
	for i, band := range bands {
		last := i == len(bands)-1
		if band.Rate.IsNegative() || band.Rate.GreaterThan(one) {
			return BracketTable{}, fmt.Errorf("%w: band %d rate %s outside [0,1]", ErrInvalidBands, i+1, band.Rate)
		}
		if band.Unbounded {
			if !last {
				return BracketTable{}, fmt.Errorf("%w: only the last band may be unbounded", ErrInvalidBands)
			}
			band.Width = decimal.Zero
		} else if !band.Width.IsPositive() {
			return BracketTable{}, fmt.Errorf("%w: band %d width must be positive", ErrInvalidBands, i+1)
		}
		out[i] = band
	}
	return BracketTable{bands: out}, nil
}

// FromThresholds converts a tax-free floor plus cumulative thresholds into
// band widths. The floor becomes a zero-rate first band.
func FromThresholds(taxFree decimal.Decimal, thresholds []Threshold) (BracketTable, error) {
	if taxFree.IsNegative() {
		return BracketTable{}, fmt.Errorf("%w: tax-free amount must not be negative", ErrInvalidBands)
	}
	bands := make([]TaxBand, 0, len(thresholds)+1)
	if taxFree.IsPositive() {
		bands = append(bands, TaxBand{Width: taxFree, Rate: decimal.Zero})
	}
	prev := taxFree
	for i, t := range thresholds {
		if t.Unbounded {
			bands = append(bands, TaxBand{Rate: t.Rate, Unbounded: true})
			continue
		}
		if !t.UpTo.GreaterThan(prev) {
			return BracketTable{}, fmt.Errorf("%w: threshold %d (%s) must exceed %s", ErrInvalidBands, i+1, t.UpTo, prev)
		}
		bands = append(bands, TaxBand{Width: t.UpTo.Sub(prev), Rate: t.Rate})
		prev = t.UpTo
	}
	return NewBracketTable(bands)
}

func (t BracketTable) Bands() []TaxBand {
	out := make([]TaxBand, len(t.bands))
	copy(out, t.bands)
	return out
}

func (t BracketTable) Len() int {
	return len(t.bands)
}

// Boundaries returns the cumulative upper bound of every bounded band.
func (t BracketTable) Boundaries() []decimal.Decimal {
	var out []decimal.Decimal
	sum := decimal.Zero
	for _, band := range t.bands {
		if band.Unbounded {
			break
		}
		sum = sum.Add(band.Width)
		out = append(out, sum)
	}
	return out
}
