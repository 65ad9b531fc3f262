package payroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// STUB SCRIPTS
// =============================================================================

type stubCollector struct {
	name      payroll.CollectorName
	base      decimal.Decimal
	apply     func(wv payroll.WageTypeValue) decimal.Decimal
	endCalled bool
}

func (s *stubCollector) CollectorName() payroll.CollectorName { return s.name }

func (s *stubCollector) Start(_ *payroll.Runtime, c *payroll.Collector) error {
	return c.SetBase(s.base)
}

func (s *stubCollector) ApplyValue(_ *payroll.Runtime, _ *payroll.Collector, wv payroll.WageTypeValue) (decimal.Decimal, error) {
	if s.apply == nil {
		return wv.Amount(), nil
	}
	return s.apply(wv), nil
}

func (s *stubCollector) End(_ *payroll.Runtime, _ *payroll.Collector) error {
	s.endCalled = true
	return nil
}

type stubWageType struct {
	number   payroll.WageTypeNumber
	name     string
	getValue func(rt *payroll.Runtime) (*decimal.Decimal, error)
	result   func(rt *payroll.Runtime, wv *payroll.WageTypeValue) error
}

func (s *stubWageType) WageType() (payroll.WageTypeNumber, string) { return s.number, s.name }

func (s *stubWageType) GetValue(rt *payroll.Runtime) (*decimal.Decimal, error) {
	return s.getValue(rt)
}

func (s *stubWageType) Result(rt *payroll.Runtime, wv *payroll.WageTypeValue) error {
	if s.result == nil {
		return nil
	}
	return s.result(rt, wv)
}

func fixedValue(s string) func(*payroll.Runtime) (*decimal.Decimal, error) {
	return func(*payroll.Runtime) (*decimal.Decimal, error) {
		v := payroll.MustParseDecimal(s)
		return &v, nil
	}
}

func noValue(*payroll.Runtime) (*decimal.Decimal, error) { return nil, nil }

func newTestRuntime(mem *store.Memory, opts payroll.Options) *payroll.Runtime {
	return payroll.NewRuntime(context.Background(), payroll.RuntimeConfig{
		Employee: &payroll.Employee{ID: "emp-1", Name: "Test", EntryDate: payroll.NewDate(2023, time.January, 1)},
		Period:   payroll.MonthPeriod(2024, time.June),
		Cases:    mem,
		Results:  mem,
		Options:  opts,
	})
}

// =============================================================================
// NULL VERSUS ZERO
// =============================================================================

func TestExecuteNilValueSuppressesPersistence(t *testing.T) {
	// GIVEN one wage type with no applicable result and one with an
	// explicit zero
	sc := &payroll.ScriptController{
		WageTypes: []payroll.WageTypeScript{
			&stubWageType{number: "1000", name: "inactive", getValue: noValue},
			&stubWageType{number: "2000", name: "zero", getValue: fixedValue("0")},
		},
	}
	rt := newTestRuntime(store.NewMemory(), payroll.Options{})

	// WHEN executing the pass
	res, err := sc.Execute(rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN both evaluations are visible in the pass
	if len(res.WageTypeValues) != 2 {
		t.Fatalf("expected 2 wage type values, got %d", len(res.WageTypeValues))
	}
	if res.WageTypeValues[0].HasValue() {
		t.Error("nil-valued wage type must report no value")
	}
	if !res.WageTypeValues[1].HasValue() {
		t.Error("zero-valued wage type must report a value")
	}

	// AND only the explicit zero persists
	if len(res.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res.Results))
	}
	if res.Results[0].WageType != "2000" || !res.Results[0].Value.IsZero() {
		t.Errorf("expected zero result for 2000, got %+v", res.Results[0])
	}
}

// =============================================================================
// STAGE ORDER
// =============================================================================

func TestExecuteStageOrderAndCollectorApply(t *testing.T) {
	collector := &stubCollector{name: "gross", base: decimal.NewFromInt(100)}

	var preApplyValue decimal.Decimal
	var laterFound bool

	sc := &payroll.ScriptController{
		Collectors: []payroll.CollectorScript{collector},
		WageTypes: []payroll.WageTypeScript{
			&stubWageType{number: "1000", name: "salary", getValue: fixedValue("50.03")},
			&stubWageType{number: "2000", name: "reader", getValue: func(rt *payroll.Runtime) (*decimal.Decimal, error) {
				// Collectors are read in open (pre-apply) state
				preApplyValue, _ = rt.CollectorValue("gross")
				// Earlier wage types are visible, later ones are not
				earlier, ok := rt.WageTypeValue("1000")
				if !ok || !earlier.HasValue() {
					t.Error("earlier wage type must be visible")
				}
				_, laterFound = rt.WageTypeValue("3000")
				v := earlier.Amount().Mul(decimal.NewFromInt(2))
				return &v, nil
			}},
			&stubWageType{number: "3000", name: "later", getValue: fixedValue("10")},
		},
	}
	rt := newTestRuntime(store.NewMemory(), payroll.Options{})

	res, err := sc.Execute(rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Values round to the twentieth before entering the table
	if !preApplyValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("pre-apply collector read must see the base only, got %s", preApplyValue)
	}
	if laterFound {
		t.Error("later wage type must not be visible during evaluation")
	}

	// 50.03 rounds to 50.05; the reader doubles it to 100.10
	var collectorResult *payroll.Result
	for i := range res.Results {
		if res.Results[i].Kind == payroll.ResultCollector {
			collectorResult = &res.Results[i]
		}
	}
	if collectorResult == nil {
		t.Fatal("expected a collector result")
	}
	want := payroll.MustParseDecimal("260.15") // 100 + 50.05 + 100.10 + 10
	if !collectorResult.Value.Equal(want) {
		t.Errorf("expected collector value %s, got %s", want, collectorResult.Value)
	}
	if res.State != payroll.StateEnded {
		t.Errorf("expected terminal state, got %s", res.State)
	}
}

// =============================================================================
// TERMINAL STAGE ALWAYS RUNS
// =============================================================================

func TestExecuteFaultStillRunsTerminalStage(t *testing.T) {
	collector := &stubCollector{name: "gross"}
	boom := errors.New("division by zero in script")

	sc := &payroll.ScriptController{
		Collectors: []payroll.CollectorScript{collector},
		WageTypes: []payroll.WageTypeScript{
			&stubWageType{number: "1000", name: "faulty", getValue: func(*payroll.Runtime) (*decimal.Decimal, error) {
				return nil, boom
			}},
		},
	}
	rt := newTestRuntime(store.NewMemory(), payroll.Options{})

	res, err := sc.Execute(rt)

	// The fault surfaces as a typed script error
	if !payroll.IsScriptFault(err) {
		t.Fatalf("expected script fault, got %v", err)
	}
	var scriptErr *payroll.ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.Script != "1000" {
		t.Errorf("expected failing script 1000, got %s", scriptErr.Script)
	}
	if !errors.Is(err, boom) {
		t.Error("underlying cause must remain matchable")
	}

	// The terminal stage ran anyway
	if res.State != payroll.StateEnded {
		t.Errorf("expected terminal state after fault, got %s", res.State)
	}
	if !collector.endCalled {
		t.Error("collector End must run even after a fault")
	}

	// And nothing partial can be committed
	if res.Results != nil {
		t.Errorf("expected no results after fault, got %d", len(res.Results))
	}
}

// =============================================================================
// RESTART
// =============================================================================

func TestExecuteRestartIsCooperative(t *testing.T) {
	sc := &payroll.ScriptController{
		WageTypes: []payroll.WageTypeScript{
			&stubWageType{number: "1000", name: "restarter", getValue: func(rt *payroll.Runtime) (*decimal.Decimal, error) {
				rt.RequestRestart()
				v := decimal.NewFromInt(5)
				return &v, nil
			}},
		},
	}
	rt := newTestRuntime(store.NewMemory(), payroll.Options{})

	res, err := sc.Execute(rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The pass completes normally; the flag tells the caller to re-invoke
	if !res.Restart {
		t.Error("expected restart flag")
	}
	if res.State != payroll.StateEnded {
		t.Errorf("expected completed pass, got %s", res.State)
	}
	if len(res.Results) != 1 {
		t.Errorf("expected the pass's results, got %d", len(res.Results))
	}
}

// =============================================================================
// PAYRUN GATING
// =============================================================================

type gatingPayrun struct{ available bool }

func (p *gatingPayrun) Start(*payroll.Runtime) error { return nil }
func (p *gatingPayrun) End(*payroll.Runtime) error   { return nil }
func (p *gatingPayrun) EmployeeAvailable(*payroll.Runtime) (bool, error) {
	return p.available, nil
}
func (p *gatingPayrun) EmployeeStart(*payroll.Runtime) error { return nil }
func (p *gatingPayrun) EmployeeEnd(*payroll.Runtime) error   { return nil }

func TestExecuteExcludedEmployeeSkipsStages(t *testing.T) {
	evaluated := false
	sc := &payroll.ScriptController{
		Payrun: &gatingPayrun{available: false},
		WageTypes: []payroll.WageTypeScript{
			&stubWageType{number: "1000", name: "salary", getValue: func(*payroll.Runtime) (*decimal.Decimal, error) {
				evaluated = true
				v := decimal.NewFromInt(1)
				return &v, nil
			}},
		},
	}
	rt := newTestRuntime(store.NewMemory(), payroll.Options{})

	res, err := sc.Execute(rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Available {
		t.Error("expected employee to be excluded")
	}
	if evaluated {
		t.Error("stages must not run for excluded employees")
	}
	if len(res.Results) != 0 {
		t.Errorf("expected no results, got %d", len(res.Results))
	}
}

// =============================================================================
// AUTO PERIOD RESULTS
// =============================================================================

func TestExecuteAutoPeriodResults(t *testing.T) {
	// GIVEN a rate valid from mid-June onwards
	mem := store.NewMemory()
	mem.SetCaseValues("emp-1", []payroll.CaseValue{{
		Field:  "pay.rate",
		Start:  payroll.NewDate(2024, time.June, 10),
		Kind:   payroll.ValueNumber,
		Number: decimal.NewFromInt(240),
	}})

	sc := &payroll.ScriptController{
		WageTypes: []payroll.WageTypeScript{
			&stubWageType{number: "1000", name: "salary", getValue: func(rt *payroll.Runtime) (*decimal.Decimal, error) {
				v, _, err := rt.CaseDecimal("pay.rate")
				if err != nil {
					return nil, err
				}
				return &v, nil
			}},
		},
	}
	rt := newTestRuntime(mem, payroll.Options{AutoPeriodResults: true})

	res, err := sc.Execute(rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN one custom sub-period result traces the read input, clamped
	// to the period
	if len(res.CustomResults) != 1 {
		t.Fatalf("expected 1 custom result, got %d", len(res.CustomResults))
	}
	custom := res.CustomResults[0]
	if custom.Name != "1000.pay.rate" {
		t.Errorf("expected name 1000.pay.rate, got %s", custom.Name)
	}
	if got := custom.Period.Start.String(); got != "2024-06-10" {
		t.Errorf("expected sub-period start 2024-06-10, got %s", got)
	}
	if got := custom.Period.End.String(); got != "2024-06-30" {
		t.Errorf("expected sub-period end clamped to 2024-06-30, got %s", got)
	}
	if custom.Kind != payroll.ResultCustom {
		t.Errorf("expected custom kind, got %s", custom.Kind)
	}
	if custom.Attributes[payroll.AttrAmount] == "" {
		t.Error("expected amount attribute")
	}
}

// =============================================================================
// RESULT DECORATION
// =============================================================================

func TestExecuteResultStageDecoratesWithoutChangingAmount(t *testing.T) {
	sc := &payroll.ScriptController{
		WageTypes: []payroll.WageTypeScript{
			&stubWageType{
				number:   "5060",
				name:     "withholding",
				getValue: fixedValue("-123.456"),
				result: func(_ *payroll.Runtime, wv *payroll.WageTypeValue) error {
					wv.SetTag("canton:GE")
					wv.SetTag(payroll.TagCycleYearly)
					wv.SetTag("canton:GE") // idempotent
					return nil
				},
			},
		},
	}
	rt := newTestRuntime(store.NewMemory(), payroll.Options{})

	res, err := sc.Execute(rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res.Results))
	}

	r := res.Results[0]
	// -123.456 rounds to -123.45
	if !r.Value.Equal(payroll.MustParseDecimal("-123.45")) {
		t.Errorf("expected rounded value -123.45, got %s", r.Value)
	}
	if len(r.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", r.Tags)
	}
	if !r.Tags.ContainsAll(payroll.Tags{"canton:GE", payroll.TagCycleYearly}) {
		t.Errorf("expected canton and cycle tags, got %v", r.Tags)
	}
}

// =============================================================================
// CASE BUILD / VALIDATE
// =============================================================================

type stubCase struct {
	name  string
	valid bool
	issue *payroll.ValidationIssue
	ran   bool
}

func (s *stubCase) CaseName() string { return s.name }

func (s *stubCase) Build(rt *payroll.Runtime) (bool, error) {
	s.ran = true
	if s.issue != nil {
		rt.AddIssue(s.name, s.issue.Severity, s.issue.Message)
	}
	return s.valid, nil
}

func (s *stubCase) Validate(rt *payroll.Runtime) (bool, error) { return s.Build(rt) }

func TestBuildCasesCollectsIssuesWithoutAborting(t *testing.T) {
	// GIVEN one failing case and one valid case after it
	failing := &stubCase{name: "case.a", valid: false,
		issue: &payroll.ValidationIssue{Severity: payroll.SeverityError, Message: "bad data"}}
	healthy := &stubCase{name: "case.b", valid: true}

	sc := &payroll.ScriptController{Cases: []payroll.CaseScript{failing, healthy}}
	rt := newTestRuntime(store.NewMemory(), payroll.Options{})

	res, err := sc.BuildCases(rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN the failure is data, not an abort: both cases ran
	if !failing.ran || !healthy.ran {
		t.Error("every case must run regardless of earlier failures")
	}
	if res.Valid {
		t.Error("expected invalid result")
	}
	if len(res.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(res.Issues))
	}
	if !payroll.HasErrors(res.Issues) {
		t.Error("expected error-severity issue")
	}
}
