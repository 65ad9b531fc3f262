/*
result.go - Persisted calculation results and the result store boundary

PURPOSE:
  A Result is the persisted outcome of a collector or wage-type
  evaluation for one employee, one period and one job status, carrying
  tags that distinguish coexisting variants. Consolidated results are the
  same records queried across periods for accumulation purposes.

AUTHORITATIVE RESULT INVARIANT:
  For a given (employee, period, job status, identity, tag set) there is
  at most one authoritative result. Stores enforce this by replacing on
  save, never duplicating.

SEE ALSO:
  - cache.go:        Per-pass consolidated result cache
  - store/memory.go: In-memory store for tests and development
  - store/sqlite:    SQLite-backed store
*/
package payroll

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT - Persisted outcome of a collector or wage type evaluation
// =============================================================================

type ResultKind string

const (
	ResultCollector ResultKind = "collector"
	ResultWageType  ResultKind = "wage_type"

	// ResultCustom marks ad-hoc results added by scripts, e.g. per-case-
	// field sub-period breakdowns emitted by the auto-period-results
	// option. Custom results never feed accumulation.
	ResultCustom ResultKind = "custom"
)

type Result struct {
	ID       string
	Employee EmployeeID
	Kind     ResultKind

	// Exactly one of Collector / WageType is set, except for custom
	// results where Name carries a free-form identity.
	Collector CollectorName
	WageType  WageTypeNumber
	Name      string

	Period    Period
	Value     decimal.Decimal
	JobStatus JobStatus

	Tags       Tags
	Attributes Attributes

	Created time.Time
}

// Identity returns the result's identity key within a period: the
// collector name or wage type number, namespaced by kind.
func (r Result) Identity() string {
	switch r.Kind {
	case ResultCollector:
		return "c:" + string(r.Collector)
	case ResultWageType:
		return "w:" + string(r.WageType)
	default:
		return "x:" + r.Name
	}
}

// AuthorityKey returns the uniqueness key of the authoritative-result
// invariant: employee + period + job status + identity + tag set.
func (r Result) AuthorityKey() string {
	tags := r.Tags.Clone()
	sort.Strings(tags)
	return strings.Join([]string{
		string(r.Employee), r.Period.Key(), string(r.JobStatus), r.Identity(), strings.Join(tags, ","),
	}, "|")
}

// =============================================================================
// CONSOLIDATED QUERY - Historical accumulation lookups
// =============================================================================

// ConsolidatedQuery selects historical results for accumulation. Identity
// may name collectors, wage types, or a mix of both.
type ConsolidatedQuery struct {
	Collectors []CollectorName
	WageTypes  []WageTypeNumber

	// SinceStart limits results to periods starting at or after this
	// date. Zero means the whole cycle.
	SinceStart Date

	JobStatus JobStatus

	// Tags filters by containment: a result matches when it carries all
	// of these tags, whatever else it carries.
	Tags Tags
}

func (q ConsolidatedQuery) identities() []string {
	ids := make([]string, 0, len(q.Collectors)+len(q.WageTypes))
	for _, c := range q.Collectors {
		ids = append(ids, "c:"+string(c))
	}
	for _, w := range q.WageTypes {
		ids = append(ids, "w:"+string(w))
	}
	return ids
}

// SumValues adds up the values of consolidated results.
func SumValues(results []Result) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r.Value)
	}
	return total
}

// =============================================================================
// RESULT STORE - Boundary to the (out-of-scope) result store
// =============================================================================

// ResultStore is the narrow persistence interface the calculation core
// consumes. ResultsInCycle is the single bulk read the consolidated
// cache performs; SaveResults is invoked by the payrun job runner after a
// successful pass, never mid-pipeline.
type ResultStore interface {
	// ResultsInCycle returns every result of the employee within the
	// cycle carrying the given job status, ordered by period start.
	ResultsInCycle(ctx context.Context, employee EmployeeID, cycle Cycle, status JobStatus) ([]Result, error)

	// SaveResults persists results atomically, replacing any existing
	// result with the same authority key.
	SaveResults(ctx context.Context, results []Result) error

	// ResultsInPeriod returns the employee's results for a single period
	// and job status.
	ResultsInPeriod(ctx context.Context, employee EmployeeID, p Period, status JobStatus) ([]Result, error)
}

// EmployeeStore resolves calculation employees. Tenant and regulation
// administration own the full employee model; the core needs identity and
// employment dates only.
type EmployeeStore interface {
	Employee(ctx context.Context, id EmployeeID) (*Employee, error)
	SaveEmployee(ctx context.Context, e *Employee) error
	ListEmployees(ctx context.Context) ([]*Employee, error)
}
