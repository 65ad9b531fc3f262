/*
wagetype.go - Wage type values and the per-pass value table

PURPOSE:
  A wage type is a named, numbered calculation unit producing a decimal
  value (nullable) for one pay period. This file holds the value record a
  wage type script produces and the per-pass lookup table later scripts
  read from.

NULL VERSUS ZERO:
  A nil value means "no applicable result" (e.g. the employee is not
  active in the period) and suppresses result persistence. An explicit
  zero is a valid result and persists a zero-valued record. Downstream
  code must keep the two apart, which is why Value is a pointer.

ORDERING:
  Wage types evaluate in regulation order. A script may read wage types
  already computed earlier in the same pass; reading a later one returns
  not-found, guaranteeing determinism regardless of authoring order.
*/
package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// WAGE TYPE VALUE - Outcome of one wage type evaluation
// =============================================================================

type WageTypeValue struct {
	Number WageTypeNumber
	Name   string

	// Value is nil when the script produced no applicable result.
	Value *decimal.Decimal

	Tags       Tags
	Attributes Attributes

	// ReadFields lists the case fields the script consulted, in read
	// order. Feeds the auto-period-results audit trail.
	ReadFields []string
}

// HasValue reports whether the wage type produced a persistable result.
func (wv WageTypeValue) HasValue() bool { return wv.Value != nil }

// Amount returns the value, or zero when none was produced.
func (wv WageTypeValue) Amount() decimal.Decimal {
	if wv.Value == nil {
		return decimal.Zero
	}
	return *wv.Value
}

// SetTag appends a tag unless already present.
func (wv *WageTypeValue) SetTag(tag string) {
	if !wv.Tags.Contains(tag) {
		wv.Tags = append(wv.Tags, tag)
	}
}

// SetAttribute sets a presentation-only annotation.
func (wv *WageTypeValue) SetAttribute(name, value string) {
	if wv.Attributes == nil {
		wv.Attributes = make(Attributes)
	}
	wv.Attributes[name] = value
}

// Result builds the persisted result record. Callers must only invoke it
// when HasValue() is true.
func (wv WageTypeValue) Result(employee EmployeeID, p Period, status JobStatus) Result {
	return Result{
		Employee:   employee,
		Kind:       ResultWageType,
		WageType:   wv.Number,
		Name:       wv.Name,
		Period:     p,
		Value:      RoundTwentieth(wv.Amount()),
		JobStatus:  status,
		Tags:       wv.Tags.Clone(),
		Attributes: wv.Attributes.Clone(),
	}
}

// =============================================================================
// WAGE TYPE TABLE - Ordered per-pass lookup of computed values
// =============================================================================

// WageTypeTable holds the values computed so far in one pipeline pass, in
// evaluation order. Owned by the evaluation context; never shared across
// passes.
type WageTypeTable struct {
	order  []WageTypeNumber
	values map[WageTypeNumber]WageTypeValue
}

func NewWageTypeTable() *WageTypeTable {
	return &WageTypeTable{values: make(map[WageTypeNumber]WageTypeValue)}
}

func (t *WageTypeTable) add(wv WageTypeValue) {
	if _, exists := t.values[wv.Number]; !exists {
		t.order = append(t.order, wv.Number)
	}
	t.values[wv.Number] = wv
}

// Lookup returns the computed value of a wage type evaluated earlier in
// the pass. Not-found covers both unknown numbers and wage types not yet
// evaluated; nil-valued wage types report found with HasValue() false.
func (t *WageTypeTable) Lookup(number WageTypeNumber) (WageTypeValue, bool) {
	wv, ok := t.values[number]
	return wv, ok
}

// Values returns all computed values in evaluation order.
func (t *WageTypeTable) Values() []WageTypeValue {
	out := make([]WageTypeValue, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.values[n])
	}
	return out
}
