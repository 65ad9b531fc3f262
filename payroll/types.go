/*
Package payroll provides the payroll calculation runtime.

PURPOSE:
  This package contains the calculation core of the payroll platform: the
  staged script-execution pipeline that evaluates collectors and wage
  types per employee per pay period, the consolidated-result cache for
  historical accumulation queries, the retroactive-recalculation
  scheduler, and the period/cycle calendar arithmetic the calculation
  scripts rely on.

KEY CONCEPTS IN THIS FILE (types.go):
  - Rounding: every persisted monetary amount is rounded to a twentieth
    (the smallest representable increment is 1/20 of the base unit)
  - Tags: free-form strings disambiguating coexisting result variants
  - Attributes: presentation-only annotations on a result
  - JobStatus: approval state of a computed result (draft vs final)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all monetary values
  2. Type Safety: Strong typing for employee, collector and wage type IDs
  3. Determinism: Fixed stage order and explicit per-pass state; no
     ambient globals
  4. Explicit signals: restart requests and retro jobs are return values,
     never hidden control flow

USAGE:
  rt := payroll.NewRuntime(...)
  result, err := controller.Execute(ctx, rt)

SEE ALSO:
  - pipeline.go: The five-stage script controller
  - cache.go:    Consolidated result cache
  - retro.go:    Retro payrun job scheduling
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type CollectorName string

// WageTypeNumber identifies a wage type, e.g. "1000" (monthly salary) or
// "5010" (AHV contribution). Kept as a string: wage type numbers carry
// sub-numbering ("5010.2") and are never used arithmetically.
type WageTypeNumber string

// =============================================================================
// JOB STATUS - Approval state of computed results
// =============================================================================

type JobStatus string

const (
	// JobStatusDraft marks results of an uncommitted calculation run.
	JobStatusDraft JobStatus = "draft"

	// JobStatusFinal marks legally final, committed results. Consolidated
	// accumulation queries for statutory figures use this status.
	JobStatusFinal JobStatus = "final"
)

// =============================================================================
// ROUNDING - Fixed fractional unit for every persisted amount
// =============================================================================

var twenty = decimal.NewFromInt(20)

// RoundTwentieth rounds to the nearest 1/20 of the base unit (0.05).
// Applied at every intermediate persistence point, not only on final
// results: later accumulations consolidate already-rounded prior results.
// Idempotent: rounding a rounded value is a no-op.
func RoundTwentieth(d decimal.Decimal) decimal.Decimal {
	return d.Mul(twenty).Round(0).Div(twenty)
}

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// TAGS - Disambiguate coexisting variants of the same named result
// =============================================================================

// Tags is an ordered set of free-form strings on a result, e.g. a tax
// canton code plus a calculation cycle code. Multiple simultaneously valid
// variants of the same wage type in one period differ by their tags.
type Tags []string

// Well-known cycle tags. Monthly and yearly withholding-tax calculations
// coexist for different tax jurisdictions within the same period.
const (
	TagCycleMonthly = "cycle:monthly"
	TagCycleYearly  = "cycle:yearly"
	TagRetro        = "retro"
)

// ContainsAll reports whether every tag in filter is present. Consolidated
// queries match by containment, never by exact set equality, so narrowing
// filters stay forward-compatible with tags added later.
func (t Tags) ContainsAll(filter Tags) bool {
	for _, want := range filter {
		found := false
		for _, have := range t {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (t Tags) Contains(tag string) bool { return t.ContainsAll(Tags{tag}) }

func (t Tags) Clone() Tags {
	if t == nil {
		return nil
	}
	out := make(Tags, len(t))
	copy(out, t)
	return out
}

// =============================================================================
// ATTRIBUTES - Presentation-only annotations
// =============================================================================

// Attributes carry ancillary key/value annotations on a result (amount,
// percentage, subtotal, total, report membership). They are for
// presentation only and must never influence downstream accumulation.
type Attributes map[string]string

// Well-known attribute names.
const (
	AttrAmount     = "amount"
	AttrPercentage = "percentage"
	AttrSubtotal   = "subtotal"
	AttrTotal      = "total"
	AttrReport     = "report"
)

func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// =============================================================================
// EMPLOYEE AND CONTEXT OBJECTS
// =============================================================================

// Employee is the calculation view of an employee: identity plus the
// employment dates the calendar arithmetic needs. Case values carry the
// rest of the employee's payroll-relevant data.
type Employee struct {
	ID         EmployeeID
	Name       string
	EntryDate  Date
	Withdrawal *Date // nil for open-ended employment
	Attributes map[string]string
}

// ActiveDays returns the employee's statutory days in the period.
func (e *Employee) ActiveDays(p Period) int {
	return StatutoryDays(p, e.EntryDate, e.Withdrawal)
}

// Company is the company-level calculation context.
type Company struct {
	ID         string
	Name       string
	Canton     string
	Attributes map[string]string
}

// National is the national-level calculation context (statutory rates and
// currency conventions shared by all companies of a tenant).
type National struct {
	Currency   string
	Attributes map[string]string
}
