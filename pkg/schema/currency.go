package schema

import (
	"fmt"
	"sort"
)

// Currency is one row of the currency table
type Currency struct {
	Code  string  `json:"code" yaml:"code"`
	Index int     `json:"index" yaml:"index"`
	Rate  float64 `json:"rate" yaml:"rate"` // units per USD, fixed snapshot
}

// CurrencyTable maps ISO codes to a stable integer index and a fixed USD exchange rate
type CurrencyTable struct {
	byCode map[string]Currency
}

// NewCurrencyTable builds an immutable table. Indices need not be contiguous.
func NewCurrencyTable(rows []Currency) (*CurrencyTable, error) {
	t := &CurrencyTable{byCode: make(map[string]Currency, len(rows))}
	seen := make(map[int]string, len(rows))
	for _, c := range rows {
		if c.Code == "" {
			return nil, fmt.Errorf("currency with index %d has no code", c.Index)
		}
		if c.Rate <= 0 {
			return nil, fmt.Errorf("currency %s: rate must be positive, got %v", c.Code, c.Rate)
		}
		if other, ok := seen[c.Index]; ok {
			return nil, fmt.Errorf("currency %s: index %d already used by %s", c.Code, c.Index, other)
		}
		if _, ok := t.byCode[c.Code]; ok {
			return nil, fmt.Errorf("duplicate currency %s", c.Code)
		}
		seen[c.Index] = c.Code
		t.byCode[c.Code] = c
	}
	return t, nil
}

// Lookup returns the currency for a code
func (t *CurrencyTable) Lookup(code string) (Currency, bool) {
	c, ok := t.byCode[code]
	return c, ok
}

// Len returns the number of known currencies
func (t *CurrencyTable) Len() int {
	return len(t.byCode)
}

// Rows returns all currencies ordered by index
func (t *CurrencyTable) Rows() []Currency {
	rows := make([]Currency, 0, len(t.byCode))
	for _, c := range t.byCode {
		rows = append(rows, c)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })
	return rows
}

// DefaultCurrencies returns the exchange rate snapshot the corpus was normalized with.
// Index 25 is intentionally unassigned.
func DefaultCurrencies() *CurrencyTable {
	t, err := NewCurrencyTable([]Currency{
		{"USD", 0, 1.0}, {"EUR", 1, 0.93}, {"CAD", 2, 1.37}, {"CNY", 3, 7.24},
		{"IDR", 4, 15865.0}, {"AUD", 5, 1.52}, {"ILS", 6, 3.74}, {"GBP", 7, 0.8},
		{"DKK", 8, 6.97}, {"BRL", 9, 4.95}, {"NOK", 10, 10.85}, {"PHP", 11, 57.68},
		{"SEK", 12, 10.57}, {"TWD", 13, 32.45}, {"CHF", 14, 0.91}, {"TRY", 15, 32.24},
		{"NZD", 16, 1.65}, {"SGD", 17, 1.35}, {"JPY", 18, 151.64}, {"HKD", 19, 7.82},
		{"NGN", 20, 1487.96}, {"ZAR", 21, 18.96}, {"PEN", 22, 3.72}, {"MYR", 23, 4.77},
		{"THB", 24, 36.26}, {"CLP", 26, 971.46}, {"PLN", 27, 4.02}, {"MXN", 28, 17.06},
		{"NIS", 29, 3.74}, {"SAR", 30, 3.75}, {"PGK", 31, 3.8}, {"COP", 32, 3918.96},
		{"INR", 33, 83.5}, {"ARS", 34, 879.65}, {"GEL", 35, 2.68}, {"GHS", 36, 13.89},
		{"CZK", 37, 23.47}, {"EGP", 38, 47.6}, {"RON", 39, 4.64}, {"HUF", 40, 366.1},
		{"RUB", 41, 91.62}, {"KRW", 42, 1334.42}, {"KZT", 43, 450.82}, {"NAD", 44, 18.96},
		{"VND", 45, 24535.0},
	})
	if err != nil {
		panic(err)
	}
	return t
}
