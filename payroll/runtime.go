/*
runtime.go - Per-invocation runtime settings for calculation scripts

PURPOSE:
  The Runtime is the capability surface handed to every script entry
  point: an immutable-per-invocation bundle giving access to the current
  employee, company and national context, the active period and cycle,
  and the mutable per-pass collection surfaces (issues, custom results,
  retro jobs). One Runtime belongs to exactly one pipeline pass - one
  employee, one period - which keeps concurrent per-employee passes
  isolated without locks.

READ TRACKING:
  Case value reads are recorded per wage type evaluation. When the
  auto-period-results option is enabled the pipeline walks the recorded
  fields after each wage type value and emits one custom sub-period
  result per distinct date range a read case value held a decimal - an
  audit trail of which inputs, valid over which sub-intervals,
  contributed to the output.

SEE ALSO:
  - script.go:   The script families consuming this surface
  - pipeline.go: Pass orchestration and sink draining
*/
package payroll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// OPTIONS
// =============================================================================

type Options struct {
	// AutoPeriodResults emits per-case-field sub-period custom results
	// after each wage type value is computed.
	AutoPeriodResults bool

	// MaxRestarts bounds script-requested execution restarts per pass.
	MaxRestarts int
}

const DefaultMaxRestarts = 3

// =============================================================================
// RUNTIME - Capability surface for one pipeline pass
// =============================================================================

type RuntimeConfig struct {
	Employee *Employee
	Company  *Company
	National *National

	Period Period
	Cycle  Cycle     // zero value defaults to the calendar cycle of Period
	Status JobStatus // zero value defaults to JobStatusDraft

	Cases   CaseValueStore
	Results ResultStore

	Options Options
}

type Runtime struct {
	ctx context.Context

	Employee *Employee
	Company  *Company
	National *National

	Period Period
	Cycle  Cycle
	Status JobStatus

	Options Options

	cases CaseValueStore
	cache *ConsolidatedResultCache

	collectors     map[CollectorName]*Collector
	collectorOrder []CollectorName
	wageTypes      *WageTypeTable

	issues  []ValidationIssue
	custom  []Result
	retro   *RetroJobCollector
	restart bool

	readFields []string
	readSeen   map[string]bool
}

// NewRuntime builds the runtime for one pass. The context is scoped to
// the pass and threads through every store access.
func NewRuntime(ctx context.Context, cfg RuntimeConfig) *Runtime {
	cycle := cfg.Cycle
	if cycle.Start.IsZero() {
		cycle = CycleOf(cfg.Period)
	}
	status := cfg.Status
	if status == "" {
		status = JobStatusDraft
	}
	opts := cfg.Options
	if opts.MaxRestarts == 0 {
		opts.MaxRestarts = DefaultMaxRestarts
	}
	return &Runtime{
		ctx:        ctx,
		Employee:   cfg.Employee,
		Company:    cfg.Company,
		National:   cfg.National,
		Period:     cfg.Period,
		Cycle:      cycle,
		Status:     status,
		Options:    opts,
		cases:      cfg.Cases,
		cache:      NewConsolidatedResultCache(cfg.Results, cfg.Employee.ID),
		collectors: make(map[CollectorName]*Collector),
		wageTypes:  NewWageTypeTable(),
		retro:      NewRetroJobCollector(cfg.Period),
		readSeen:   make(map[string]bool),
	}
}

func (rt *Runtime) Context() context.Context { return rt.ctx }

// =============================================================================
// CASE VALUE ACCESS - Read-only, with read tracking
// =============================================================================

// CaseValue returns the single value of a field valid in the current
// period, or nil when absent. The read is recorded for the
// auto-period-results audit trail.
func (rt *Runtime) CaseValue(field string) (*CaseValue, error) {
	rt.recordRead(field)
	return rt.cases.PeriodCaseValue(rt.ctx, rt.Employee.ID, rt.Period, field)
}

// CaseValues returns all values of the named fields valid in the current
// period, slots included.
func (rt *Runtime) CaseValues(fields ...string) (CaseValueSet, error) {
	for _, f := range fields {
		rt.recordRead(f)
	}
	return rt.cases.CaseValues(rt.ctx, rt.Employee.ID, rt.Period, fields)
}

// CaseDecimal returns the numeric value of a field in the current period.
// The second return is false when the field has no numeric value.
func (rt *Runtime) CaseDecimal(field string) (decimal.Decimal, bool, error) {
	cv, err := rt.CaseValue(field)
	if err != nil {
		return decimal.Zero, false, err
	}
	if cv == nil {
		return decimal.Zero, false, nil
	}
	v, ok := cv.NumberValue()
	return v, ok, nil
}

// CaseString returns the string value of a field in the current period.
func (rt *Runtime) CaseString(field string) (string, bool, error) {
	cv, err := rt.CaseValue(field)
	if err != nil {
		return "", false, err
	}
	if cv == nil || cv.Kind != ValueString {
		return "", false, nil
	}
	return cv.Text, true, nil
}

func (rt *Runtime) recordRead(field string) {
	if rt.readSeen[field] {
		return
	}
	rt.readSeen[field] = true
	rt.readFields = append(rt.readFields, field)
}

// beginWageType resets read tracking before a wage type evaluates;
// takeReadFields harvests the reads afterwards.
func (rt *Runtime) beginWageType() {
	rt.readFields = nil
	rt.readSeen = make(map[string]bool)
}

func (rt *Runtime) takeReadFields() []string {
	fields := rt.readFields
	rt.readFields = nil
	rt.readSeen = make(map[string]bool)
	return fields
}

// =============================================================================
// COLLECTOR AND WAGE TYPE ACCESS
// =============================================================================

// Collector returns the named collector of the current pass.
func (rt *Runtime) Collector(name CollectorName) (*Collector, bool) {
	c, ok := rt.collectors[name]
	return c, ok
}

// CollectorValue returns the current value of a collector, zero when the
// collector does not exist in this pass.
func (rt *Runtime) CollectorValue(name CollectorName) (decimal.Decimal, bool) {
	c, ok := rt.collectors[name]
	if !ok {
		return decimal.Zero, false
	}
	return c.Value(), true
}

// WageTypeValue returns the value of a wage type computed earlier in this
// pass. Later wage types are not found, guaranteeing determinism
// regardless of script authoring order.
func (rt *Runtime) WageTypeValue(number WageTypeNumber) (WageTypeValue, bool) {
	return rt.wageTypes.Lookup(number)
}

// WageTypeValues returns every value computed so far, in evaluation order.
func (rt *Runtime) WageTypeValues() []WageTypeValue {
	return rt.wageTypes.Values()
}

func (rt *Runtime) addCollector(c *Collector) {
	rt.collectors[c.Name] = c
	rt.collectorOrder = append(rt.collectorOrder, c.Name)
}

func (rt *Runtime) orderedCollectors() []*Collector {
	out := make([]*Collector, 0, len(rt.collectorOrder))
	for _, name := range rt.collectorOrder {
		out = append(out, rt.collectors[name])
	}
	return out
}

// =============================================================================
// CONSOLIDATED HISTORY ACCESS
// =============================================================================

// Consolidated queries historical results through the pass-owned cache.
// An empty query status defaults to the pass's job status.
func (rt *Runtime) Consolidated(q ConsolidatedQuery) ([]Result, error) {
	if q.JobStatus == "" {
		q.JobStatus = rt.Status
	}
	return rt.cache.Get(rt.ctx, rt.Cycle, q)
}

// ConsolidatedSum sums the values matched by the query.
func (rt *Runtime) ConsolidatedSum(q ConsolidatedQuery) (decimal.Decimal, error) {
	results, err := rt.Consolidated(q)
	if err != nil {
		return decimal.Zero, err
	}
	return SumValues(results), nil
}

// =============================================================================
// SIDE-EFFECT SINKS
// =============================================================================

// AddIssue records a validation finding. Issues are data, not errors.
func (rt *Runtime) AddIssue(source string, severity IssueSeverity, message string) {
	rt.issues = append(rt.issues, ValidationIssue{Source: source, Severity: severity, Message: message})
}

// AddCustomResult records an ad-hoc result (e.g. a per-case-field period
// breakdown). The value is rounded like every persisted amount.
func (rt *Runtime) AddCustomResult(name string, p Period, value decimal.Decimal, tags Tags, attrs Attributes) {
	rt.custom = append(rt.custom, Result{
		ID:         uuid.NewString(),
		Employee:   rt.Employee.ID,
		Kind:       ResultCustom,
		Name:       name,
		Period:     p,
		Value:      RoundTwentieth(value),
		JobStatus:  rt.Status,
		Tags:       tags.Clone(),
		Attributes: attrs.Clone(),
		Created:    time.Now().UTC(),
	})
}

// CustomResults returns every custom result added so far in this pass,
// report-stage additions included.
func (rt *Runtime) CustomResults() []Result { return rt.custom }

// ScheduleRetro requests recomputation of the employee's payroll from the
// target period. Targets at or after the current period are rejected.
func (rt *Runtime) ScheduleRetro(target Period, reason string) error {
	return rt.retro.Add(rt.Employee.ID, target, reason)
}

// RequestRestart asks the caller to discard this pass and re-invoke the
// pipeline, e.g. after the script mutated a shared upstream assumption.
// Cooperative: the pipeline finishes the pass normally and surfaces the
// flag on the execution result.
func (rt *Runtime) RequestRestart() { rt.restart = true }

// =============================================================================
// CALENDAR CONVENIENCE
// =============================================================================

// StatutoryDays returns the employee's SV-days in the current period.
func (rt *Runtime) StatutoryDays() int {
	return rt.Employee.ActiveDays(rt.Period)
}

// AccumulatedStatutoryDays sums SV-days from the cycle start through the
// current period.
func (rt *Runtime) AccumulatedStatutoryDays() int {
	return AccumulatedStatutoryDays(rt.Employee.EntryDate, rt.Employee.Withdrawal, rt.Cycle.Start, rt.Period.End)
}

// IsBackPayment reports whether this pass is a correction paid after the
// employment relationship ended.
func (rt *Runtime) IsBackPayment() bool {
	return IsBackPayment(rt.Employee.Withdrawal, rt.Period, rt.Employee.EntryDate)
}
