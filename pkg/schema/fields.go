package schema

import (
	"errors"
	"fmt"
)

// Field names with special handling in the normalizer
const (
	FieldCalendarYear     = "calendarYear"
	FieldReportedCurrency = "reportedCurrency"
	FieldNetIncome        = "netIncome"
)

// MinCalendarYear is the oldest fiscal year accepted. Histories stop at the first older record.
const MinCalendarYear = 2000

// ErrUnknownField is returned when a field name is not part of the schema
var ErrUnknownField = errors.New("unknown field")

// FieldSpec is a named financial metric with an optional plausibility bound.
// A nil Bound means the field is never validated but is still a numeric feature.
type FieldSpec struct {
	Name  string   `yaml:"name" json:"name"`
	Bound *float64 `yaml:"bound,omitempty" json:"bound,omitempty"`
}

// HasBound reports whether the field carries a plausibility bound
func (f FieldSpec) HasBound() bool {
	return f.Bound != nil
}

// Exceeds reports whether abs(v) is beyond the field's bound
func (f FieldSpec) Exceeds(v float64) bool {
	if f.Bound == nil {
		return false
	}
	if v < 0 {
		v = -v
	}
	return v > *f.Bound
}

// Schema is the ordered, immutable field table shared by the normalizer and the standardizer
type Schema struct {
	fields []FieldSpec
	index  map[string]int
	exempt map[string]struct{}
}

// ratioFields are already dimensionless and never converted to USD
var ratioFields = []string{
	"grossProfitRatio",
	"ebitdaratio",
	"operatingIncomeRatio",
	"incomeBeforeTaxRatio",
	"netIncomeRatio",
}

// New builds a schema from an ordered field list.
// reportedCurrency must be the last field: it holds a discrete code that is never rescaled.
func New(fields []FieldSpec) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.New("schema has no fields")
	}
	if fields[len(fields)-1].Name != FieldReportedCurrency {
		return nil, fmt.Errorf("last field must be %s, got %s", FieldReportedCurrency, fields[len(fields)-1].Name)
	}

	s := &Schema{
		fields: make([]FieldSpec, len(fields)),
		index:  make(map[string]int, len(fields)),
		exempt: make(map[string]struct{}, len(ratioFields)+2),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %s", f.Name)
		}
		if f.Bound != nil {
			b := *f.Bound
			f.Bound = &b
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}

	for _, name := range ratioFields {
		s.exempt[name] = struct{}{}
	}
	s.exempt[FieldCalendarYear] = struct{}{}
	s.exempt[FieldReportedCurrency] = struct{}{}

	return s, nil
}

// Len returns the number of fields, i.e. the width of every normalized vector
func (s *Schema) Len() int {
	return len(s.fields)
}

// Fields returns a copy of the ordered field list
func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the field at position i
func (s *Schema) Field(i int) FieldSpec {
	return s.fields[i]
}

// Names returns the ordered field names
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of a field
func (s *Schema) Index(name string) (int, error) {
	i, ok := s.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return i, nil
}

// ConvertsCurrency reports whether the field is divided by the exchange rate
func (s *Schema) ConvertsCurrency(name string) bool {
	_, ok := s.exempt[name]
	return !ok
}

func bound(v float64) *float64 {
	return &v
}

// Default returns the income statement and balance sheet table the pipeline was calibrated on
func Default() *Schema {
	s, err := New(defaultFields())
	if err != nil {
		panic(err)
	}
	return s
}

func defaultFields() []FieldSpec {
	return []FieldSpec{
		{Name: "revenue", Bound: bound(1e12)},
		{Name: "costOfRevenue", Bound: bound(8e11)},
		{Name: "grossProfit", Bound: bound(4e11)},
		{Name: "grossProfitRatio", Bound: bound(1.0)},
		{Name: "researchAndDevelopmentExpenses", Bound: bound(5e10)},
		{Name: "generalAndAdministrativeExpenses", Bound: bound(5e10)},
		{Name: "sellingAndMarketingExpenses", Bound: bound(5e10)},
		{Name: "sellingGeneralAndAdministrativeExpenses", Bound: bound(1e11)},
		{Name: "otherExpenses", Bound: bound(5e10)},
		{Name: "operatingExpenses", Bound: bound(2e11)},
		{Name: "costAndExpenses", Bound: bound(9e11)},
		{Name: "interestIncome", Bound: bound(5e10)},
		{Name: "interestExpense", Bound: bound(5e10)},
		{Name: "depreciationAndAmortization", Bound: bound(5e10)},
		{Name: "ebitda", Bound: bound(4e11)},
		{Name: "ebitdaratio", Bound: bound(1.0)},
		{Name: "operatingIncome", Bound: bound(3e11)},
		{Name: "operatingIncomeRatio", Bound: bound(1.0)},
		{Name: "totalOtherIncomeExpensesNet", Bound: bound(5e10)},
		{Name: "incomeBeforeTax", Bound: bound(3e11)},
		{Name: "incomeBeforeTaxRatio", Bound: bound(1.0)},
		{Name: "incomeTaxExpense", Bound: bound(1e11)},
		{Name: "netIncome", Bound: bound(2e11)},
		{Name: "netIncomeRatio", Bound: bound(1.0)},
		{Name: "eps", Bound: bound(1000)},
		{Name: "epsdiluted", Bound: bound(1000)},
		{Name: "weightedAverageShsOut", Bound: bound(2e10)},
		{Name: "weightedAverageShsOutDil", Bound: bound(2e10)},
		{Name: "cashAndCashEquivalents", Bound: bound(3e11)},
		{Name: "shortTermInvestments", Bound: bound(3e11)},
		{Name: "cashAndShortTermInvestments", Bound: bound(4e11)},
		{Name: "netReceivables", Bound: bound(2e11)},
		{Name: "inventory", Bound: bound(2e11)},
		{Name: "otherCurrentAssets", Bound: bound(2e11)},
		{Name: "totalCurrentAssets", Bound: bound(5e11)},
		{Name: "propertyPlantEquipmentNet", Bound: bound(5e11)},
		{Name: "goodwill", Bound: bound(4e11)},
		{Name: "intangibleAssets", Bound: bound(4e11)},
		{Name: "goodwillAndIntangibleAssets", Bound: bound(5e11)},
		{Name: "longTermInvestments", Bound: bound(5e11)},
		{Name: "taxAssets", Bound: bound(1e11)},
		{Name: "otherNonCurrentAssets", Bound: bound(3e11)},
		{Name: "totalNonCurrentAssets", Bound: bound(2e12)},
		{Name: "otherAssets", Bound: bound(3e11)},
		{Name: "totalAssets", Bound: bound(3e12)},
		{Name: "accountPayables", Bound: bound(2e11)},
		{Name: "shortTermDebt", Bound: bound(3e11)},
		{Name: "taxPayables", Bound: bound(1e11)},
		{Name: "deferredRevenue", Bound: bound(1e11)},
		{Name: "otherCurrentLiabilities", Bound: bound(2e11)},
		{Name: "totalCurrentLiabilities", Bound: bound(5e11)},
		{Name: "longTermDebt", Bound: bound(5e11)},
		{Name: "deferredRevenueNonCurrent", Bound: bound(1e11)},
		{Name: "deferredTaxLiabilitiesNonCurrent", Bound: bound(1e11)},
		{Name: "otherNonCurrentLiabilities", Bound: bound(2e11)},
		{Name: "totalNonCurrentLiabilities", Bound: bound(1e12)},
		{Name: "otherLiabilities", Bound: bound(2e11)},
		{Name: "capitalLeaseObligations", Bound: bound(2e11)},
		{Name: "totalLiabilities", Bound: bound(2e12)},
		{Name: "preferredStock", Bound: bound(1e11)},
		{Name: "commonStock", Bound: bound(1e11)},
		{Name: "retainedEarnings", Bound: bound(5e11)},
		{Name: "accumulatedOtherComprehensiveIncomeLoss", Bound: bound(1e11)},
		{Name: "othertotalStockholdersEquity", Bound: bound(2e11)},
		{Name: "totalStockholdersEquity", Bound: bound(1e12)},
		{Name: "totalEquity", Bound: bound(1e12)},
		{Name: "totalLiabilitiesAndStockholdersEquity", Bound: bound(3e12)},
		{Name: "minorityInterest", Bound: bound(2e11)},
		{Name: "totalLiabilitiesAndTotalEquity", Bound: bound(3e12)},
		{Name: "totalInvestments", Bound: bound(1e12)},
		{Name: "totalDebt", Bound: bound(1e12)},
		{Name: "netDebt", Bound: bound(1e12)},
		{Name: FieldCalendarYear},
		{Name: FieldReportedCurrency},
	}
}
