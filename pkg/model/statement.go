package model

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// RawStatement is one yearly report as it appears in the source JSON.
// Values may be numbers, numeric strings, other strings or absent.
type RawStatement struct {
	raw gjson.Result
}

// NewRawStatement wraps a JSON object
func NewRawStatement(raw gjson.Result) RawStatement {
	return RawStatement{raw: raw}
}

// ParseRawStatement parses a JSON object from text
func ParseRawStatement(doc string) RawStatement {
	return RawStatement{raw: gjson.Parse(doc)}
}

// Has reports whether the field key exists in the record
func (s RawStatement) Has(field string) bool {
	return s.raw.Get(gjson.Escape(field)).Exists()
}

// Get returns the field coerced to float64 and whether it was a usable number.
// Anything that cannot be coerced yields 0.
func (s RawStatement) Get(field string) (float64, bool) {
	return coerce(s.raw.Get(gjson.Escape(field)))
}

// CalendarYear returns the fiscal year of the report, or 0 when it is not numeric
func (s RawStatement) CalendarYear() float64 {
	v, _ := s.Get("calendarYear")
	return v
}

// ReportedCurrency returns the ISO currency code of the report
func (s RawStatement) ReportedCurrency() string {
	return strings.TrimSpace(s.raw.Get("reportedCurrency").String())
}

// Raw returns the JSON text of the record
func (s RawStatement) Raw() string {
	return s.raw.Raw
}

func coerce(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case gjson.True:
		return 1, true
	case gjson.False:
		return 0, true
	default:
		return 0, false
	}
}

// CompanyStatements is the raw report list of one company, oldest first
type CompanyStatements struct {
	CompanyID  string
	Statements []RawStatement
}
