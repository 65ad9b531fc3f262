/*
casevalue.go - Typed case values and the case store boundary

PURPOSE:
  Case values are the inputs of every calculation: typed values attached
  to a case field, valid over a date range, optionally scoped by a slot
  (a named sub-instance, e.g. one per dependent or per canton). They are
  created and updated by case-change operations outside this core and are
  strictly read-only here.

VALUE TYPES:
  A case value holds exactly one of: a decimal number, a string, a date,
  or a boolean. Calculation scripts mostly consume numbers; the typed
  accessors return (value, ok) so scripts can distinguish "no value" from
  "zero".

SEE ALSO:
  - runtime.go: Script-facing case value access with read tracking
  - store/memory.go, store/sqlite: CaseValueStore implementations
*/
package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CASE VALUE - Typed value on a case field, valid over a range
// =============================================================================

type ValueKind string

const (
	ValueNumber ValueKind = "number"
	ValueString ValueKind = "string"
	ValueDate   ValueKind = "date"
	ValueBool   ValueKind = "bool"
)

type CaseValue struct {
	Field string
	Slot  string // named sub-instance; empty for unscoped values

	// Validity range, inclusive on both ends. A zero End means open-ended.
	Start Date
	End   Date

	Kind   ValueKind
	Number decimal.Decimal
	Text   string
	Day    Date
	Flag   bool

	// Created records when the value was entered. A value created after
	// the period its validity starts in points at a back-dated change,
	// which is what triggers retroactive recalculation.
	Created time.Time
}

// IsBackdatedFor reports whether the value was entered during or after
// the given period while its validity starts before that period.
func (cv CaseValue) IsBackdatedFor(p Period) bool {
	if cv.Created.IsZero() {
		return false
	}
	return cv.Start.Before(p.Start) && !cv.Created.Before(p.Start.Time)
}

// NumberValue returns the decimal payload and whether the value is numeric.
func (cv CaseValue) NumberValue() (decimal.Decimal, bool) {
	if cv.Kind != ValueNumber {
		return decimal.Zero, false
	}
	return cv.Number, true
}

// ValidIn reports whether the value's range overlaps the period.
func (cv CaseValue) ValidIn(p Period) bool {
	if cv.Start.After(p.End) {
		return false
	}
	if !cv.End.IsZero() && cv.End.Before(p.Start) {
		return false
	}
	return true
}

// ClampTo returns the value's validity range intersected with the period.
func (cv CaseValue) ClampTo(p Period) Period {
	start := cv.Start
	if start.Before(p.Start) {
		start = p.Start
	}
	end := cv.End
	if end.IsZero() || end.After(p.End) {
		end = p.End
	}
	return Period{Start: start, End: end}
}

// =============================================================================
// CASE VALUE SET - Lookup helper over fetched values
// =============================================================================

type CaseValueSet struct {
	Values []CaseValue
}

// Field returns all values of a field, every slot included.
func (s CaseValueSet) Field(name string) []CaseValue {
	var out []CaseValue
	for _, cv := range s.Values {
		if cv.Field == name {
			out = append(out, cv)
		}
	}
	return out
}

// Slot returns the values of a field for one named slot.
func (s CaseValueSet) Slot(name, slot string) []CaseValue {
	var out []CaseValue
	for _, cv := range s.Values {
		if cv.Field == name && cv.Slot == slot {
			out = append(out, cv)
		}
	}
	return out
}

// =============================================================================
// CASE VALUE STORE - Boundary to the (out-of-scope) case store
// =============================================================================

// CaseValueStore is the narrow read interface the calculation core
// consumes. Implementations own persistence; the core never writes.
type CaseValueStore interface {
	// CaseValues returns the values of the named fields valid in the
	// period, all slots included, ordered by field then validity start.
	CaseValues(ctx context.Context, employee EmployeeID, p Period, fields []string) (CaseValueSet, error)

	// PeriodCaseValue returns the single value of a field valid in the
	// period, or nil when the field has no value there. When several
	// ranges overlap the period, the latest-starting one wins.
	PeriodCaseValue(ctx context.Context, employee EmployeeID, p Period, field string) (*CaseValue, error)
}
