/*
script.go - Polymorphic calculation script families

PURPOSE:
  Calculation scripts are the pluggable units of payroll logic. The
  pipeline is polymorphic over six families - Case, CaseRelation,
  Collector, WageType, Payrun and Report - each with the entry points
  appropriate to its stage. The engine depends only on these interfaces,
  never on concrete script identity.

CAPABILITY SURFACE:
  Every entry point receives a fully populated *Runtime scoped to the
  current employee and period. Through it a script may read case values,
  collectors in open state, wage types computed earlier in the same pass,
  and the consolidated result cache; and it may append to the issue,
  custom-result and retro-job sinks. Scripts must not hold the Runtime
  beyond the call.

SEE ALSO:
  - runtime.go:  The capability surface itself
  - pipeline.go: Stage ordering and invocation
  - swiss/:      Concrete script implementations
*/
package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// COLLECTOR SCRIPTS - Start / ApplyValue / End
// =============================================================================

// CollectorScript drives one collector through its lifecycle. Start runs
// before any wage type evaluates and may seed the base value. ApplyValue
// is invoked once per computed wage type value and returns the
// contribution to fold into the collector (zero for none). End runs in
// the terminal stage, always, even after an earlier fault.
type CollectorScript interface {
	CollectorName() CollectorName

	Start(rt *Runtime, c *Collector) error
	ApplyValue(rt *Runtime, c *Collector, wv WageTypeValue) (decimal.Decimal, error)
	End(rt *Runtime, c *Collector) error
}

// =============================================================================
// WAGE TYPE SCRIPTS - GetValue / Result
// =============================================================================

// WageTypeScript computes one wage type. GetValue returns nil when no
// result applies (distinct from an explicit zero). Result runs after the
// Collector-Apply stage and may decorate the value with tags and
// attributes or schedule retro jobs; it must not change the amount.
type WageTypeScript interface {
	WageType() (WageTypeNumber, string)

	GetValue(rt *Runtime) (*decimal.Decimal, error)
	Result(rt *Runtime, wv *WageTypeValue) error
}

// =============================================================================
// CASE SCRIPTS - Build / Validate
// =============================================================================

// CaseScript builds and validates case data. Both entry points report
// findings through the runtime's issue sink and return a validity flag;
// they never abort evaluation of unrelated cases.
type CaseScript interface {
	CaseName() string

	Build(rt *Runtime) (bool, error)
	Validate(rt *Runtime) (bool, error)
}

// CaseRelationScript builds and validates a relation between two cases
// (e.g. employee to insurance).
type CaseRelationScript interface {
	RelationName() string

	BuildRelation(rt *Runtime) (bool, error)
	ValidateRelation(rt *Runtime) (bool, error)
}

// =============================================================================
// PAYRUN SCRIPTS - Run-level hooks
// =============================================================================

// PayrunScript wraps a whole payrun. EmployeeAvailable decides whether an
// employee participates at all; the remaining hooks bracket the run and
// each employee's pass.
type PayrunScript interface {
	Start(rt *Runtime) error
	EmployeeAvailable(rt *Runtime) (bool, error)
	EmployeeStart(rt *Runtime) error
	EmployeeEnd(rt *Runtime) error
	End(rt *Runtime) error
}

// =============================================================================
// REPORT SCRIPTS - Report build hooks
// =============================================================================

// ReportScript brackets report generation. Start returns false to skip
// the report for this run.
type ReportScript interface {
	ReportName() string

	Start(rt *Runtime) (bool, error)
	End(rt *Runtime) error
}
