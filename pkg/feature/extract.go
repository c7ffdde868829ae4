package feature

import (
	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

// Extractor turns one raw yearly report into a schema-ordered vector
type Extractor struct {
	Schema     *schema.Schema
	Currencies *schema.CurrencyTable
}

// NewExtractor creates a new statement extractor
func NewExtractor(s *schema.Schema, c *schema.CurrencyTable) *Extractor {
	return &Extractor{Schema: s, Currencies: c}
}

// Violation describes the first field of a report that broke its plausibility bound
type Violation struct {
	Year  int     `json:"year"`
	Field string  `json:"field"`
	Value float64 `json:"value"`
	Bound float64 `json:"bound"`
}

// Extract converts a report whose currency is known. Values are coerced (0 on failure),
// divided by the exchange rate unless the field is a ratio or the year/currency, and
// checked against their bound. A violation stops extraction and the vector is discarded.
func (e *Extractor) Extract(stmt model.RawStatement, cur schema.Currency) (model.NormalizedVector, *Violation) {
	year := int(stmt.CalendarYear())
	n := e.Schema.Len()
	vec := model.NormalizedVector{
		Year:    year,
		Values:  make([]float64, n),
		Missing: make([]float64, n),
	}

	for i := 0; i < n; i++ {
		field := e.Schema.Field(i)

		var value float64
		if field.Name == schema.FieldReportedCurrency {
			value = float64(cur.Index)
		} else {
			v, ok := stmt.Get(field.Name)
			if !ok {
				vec.Missing[i] = 1
			}
			value = v
		}

		if e.Schema.ConvertsCurrency(field.Name) {
			value = value / cur.Rate
		}

		if field.Exceeds(value) {
			return model.NormalizedVector{}, &Violation{
				Year:  year,
				Field: field.Name,
				Value: value,
				Bound: *field.Bound,
			}
		}

		vec.Values[i] = value
	}

	return vec, nil
}
