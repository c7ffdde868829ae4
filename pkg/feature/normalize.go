package feature

import (
	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

// VerdictKind is the outcome of validating one company
type VerdictKind int

const (
	VerdictAccepted VerdictKind = iota
	VerdictRejected
	VerdictEmpty
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictAccepted:
		return "accepted"
	case VerdictRejected:
		return "rejected"
	case VerdictEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Verdict is the result of the validation phase for one company
type Verdict struct {
	Kind      VerdictKind
	Kept      []int      // indices of statements that become vectors, oldest first
	Skipped   int        // years dropped for an unknown currency
	Truncated bool       // iteration stopped at a year before the cutoff
	Violation *Violation // set when Kind is VerdictRejected
}

// Report aggregates normalization counters over a corpus
type Report struct {
	Total        int `json:"total"`
	Invalid      int `json:"invalid"`
	Empty        int `json:"empty"`
	Accepted     int `json:"accepted"`
	SkippedYears int `json:"skipped_years"`
	Truncated    int `json:"truncated"`
}

// RejectionRate returns the share of companies rejected for a bound violation.
// Companies left empty by the year and currency filters are not counted as invalid.
func (r Report) RejectionRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Invalid) / float64(r.Total)
}

// Add merges another report into r
func (r *Report) Add(o Report) {
	r.Total += o.Total
	r.Invalid += o.Invalid
	r.Empty += o.Empty
	r.Accepted += o.Accepted
	r.SkippedYears += o.SkippedYears
	r.Truncated += o.Truncated
}

// Normalizer validates companies and materializes their vectors
type Normalizer struct {
	extractor *Extractor
	minYear   float64
}

// NewNormalizer creates a normalizer bound to immutable schema and currency tables
func NewNormalizer(s *schema.Schema, c *schema.CurrencyTable) *Normalizer {
	return &Normalizer{
		extractor: NewExtractor(s, c),
		minYear:   schema.MinCalendarYear,
	}
}

// Validate walks a company's reports oldest first and decides whether it survives.
// A report older than the cutoff ends the walk, an unknown currency skips the report,
// and any bound violation rejects the whole company.
func (n *Normalizer) Validate(c model.CompanyStatements) Verdict {
	var v Verdict
	for i, stmt := range c.Statements {
		if stmt.CalendarYear() < n.minYear {
			v.Truncated = true
			break
		}
		cur, ok := n.extractor.Currencies.Lookup(stmt.ReportedCurrency())
		if !ok {
			v.Skipped++
			continue
		}
		if _, violation := n.extractor.Extract(stmt, cur); violation != nil {
			return Verdict{
				Kind:      VerdictRejected,
				Skipped:   v.Skipped,
				Violation: violation,
			}
		}
		v.Kept = append(v.Kept, i)
	}

	if len(v.Kept) == 0 {
		v.Kind = VerdictEmpty
	}
	return v
}

// Materialize builds the history of an accepted company. Other verdicts yield an empty history.
func (n *Normalizer) Materialize(c model.CompanyStatements, v Verdict) model.CompanyHistory {
	h := model.CompanyHistory{CompanyID: c.CompanyID}
	if v.Kind != VerdictAccepted {
		return h
	}

	h.Vectors = make([]model.NormalizedVector, 0, len(v.Kept))
	for _, i := range v.Kept {
		stmt := c.Statements[i]
		cur, _ := n.extractor.Currencies.Lookup(stmt.ReportedCurrency())
		vec, _ := n.extractor.Extract(stmt, cur)
		h.Vectors = append(h.Vectors, vec)
	}
	return h
}

// Normalize runs both phases over a corpus. Only accepted companies are returned.
func (n *Normalizer) Normalize(companies []model.CompanyStatements) ([]model.CompanyHistory, Report) {
	var report Report
	histories := make([]model.CompanyHistory, 0, len(companies))

	for _, c := range companies {
		report.Total++
		v := n.Validate(c)
		report.SkippedYears += v.Skipped
		if v.Truncated {
			report.Truncated++
		}

		switch v.Kind {
		case VerdictRejected:
			report.Invalid++
		case VerdictEmpty:
			report.Empty++
		default:
			report.Accepted++
			histories = append(histories, n.Materialize(c, v))
		}
	}

	return histories, report
}
