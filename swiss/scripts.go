/*
scripts.go - Swiss calculation script implementations

PURPOSE:
  Concrete scripts for the five pipeline stages:

  MonthlySalaryScript:   wage type 1000, salary pro-rated by SV-days,
                         back-dated change detection scheduling retro
  ChildAllowanceScript:  wage type 3000, one allowance per dependent slot
  AHVDeductionScript:    wage type 5010, employee AHV/IV/EO contribution
  WithholdingTaxScript:  wage type 5060, canton- and cycle-tagged
  AHVBaseCollector:      AHV contribution base across wage types
  TaxBaseCollector:      withholding tax base
  StandardPayrun:        excludes employees without activity or back pay
  SalaryCaseScript:      builds/validates the salary case

NULL VERSUS ZERO:
  Scripts return nil when no result applies (employee inactive, no case
  value); an employee with a contractual salary of 0 gets an explicit
  zero result. The engine persists the zero and suppresses the nil.

SEE ALSO:
  - payroll/pipeline.go: Stage ordering these scripts plug into
  - factory/regulation.go: Declarative wiring of a full regulation
*/
package swiss

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

var hundred = decimal.NewFromInt(100)
var fullMonth = decimal.NewFromInt(payroll.FullMonthDays)

// =============================================================================
// WAGE TYPE 1000 - MONTHLY SALARY
// =============================================================================

// MonthlySalaryScript pro-rates the contractual monthly salary by the
// employee's statutory days in the period: salary * days / 30.
type MonthlySalaryScript struct{}

func (s *MonthlySalaryScript) WageType() (payroll.WageTypeNumber, string) {
	return WageTypeMonthlySalary, "Monthly salary"
}

func (s *MonthlySalaryScript) GetValue(rt *payroll.Runtime) (*decimal.Decimal, error) {
	days := rt.StatutoryDays()
	if days == 0 {
		// Not active in this period: no applicable result.
		return nil, nil
	}

	salary, ok, err := rt.CaseDecimal(FieldMonthlySalary)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	value := salary.Mul(decimal.NewFromInt(int64(days))).Div(fullMonth)
	return &value, nil
}

// Result decorates the persisted value and watches for back-dated salary
// changes: a salary value entered now but valid from an earlier period
// invalidates those committed periods and schedules recomputation from
// the earliest affected one.
func (s *MonthlySalaryScript) Result(rt *payroll.Runtime, wv *payroll.WageTypeValue) error {
	wv.SetAttribute(payroll.AttrAmount, wv.Amount().String())

	set, err := rt.CaseValues(FieldMonthlySalary)
	if err != nil {
		return err
	}
	for _, cv := range set.Values {
		if cv.IsBackdatedFor(rt.Period) {
			target := payroll.PeriodOf(cv.Start)
			if err := rt.ScheduleRetro(target, "back-dated salary change"); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// WAGE TYPE 3000 - CHILD ALLOWANCE
// =============================================================================

// ChildAllowanceScript sums the per-dependent allowance slots valid in
// the period. No dependents means no result, not a zero.
type ChildAllowanceScript struct{}

func (s *ChildAllowanceScript) WageType() (payroll.WageTypeNumber, string) {
	return WageTypeChildAllowance, "Child allowance"
}

func (s *ChildAllowanceScript) GetValue(rt *payroll.Runtime) (*decimal.Decimal, error) {
	if rt.StatutoryDays() == 0 {
		return nil, nil
	}

	set, err := rt.CaseValues(FieldChildAllowance)
	if err != nil {
		return nil, err
	}
	if len(set.Values) == 0 {
		return nil, nil
	}

	total := decimal.Zero
	for _, cv := range set.Values {
		if amount, ok := cv.NumberValue(); ok {
			total = total.Add(amount)
		}
	}
	return &total, nil
}

func (s *ChildAllowanceScript) Result(rt *payroll.Runtime, wv *payroll.WageTypeValue) error {
	wv.SetAttribute(payroll.AttrAmount, wv.Amount().String())
	return nil
}

// =============================================================================
// WAGE TYPE 5010 - AHV/IV/EO DEDUCTION
// =============================================================================

// AHVDeductionScript computes the employee-side AHV contribution from
// wage types evaluated earlier in the pass. Child allowances are exempt.
type AHVDeductionScript struct{}

func (s *AHVDeductionScript) WageType() (payroll.WageTypeNumber, string) {
	return WageTypeAHVDeduction, "AHV/IV/EO contribution"
}

func (s *AHVDeductionScript) GetValue(rt *payroll.Runtime) (*decimal.Decimal, error) {
	salary, ok := rt.WageTypeValue(WageTypeMonthlySalary)
	if !ok || !salary.HasValue() {
		return nil, nil
	}

	deduction := salary.Amount().Mul(AHVRatePercent).Div(hundred).Neg()
	return &deduction, nil
}

func (s *AHVDeductionScript) Result(rt *payroll.Runtime, wv *payroll.WageTypeValue) error {
	wv.SetAttribute(payroll.AttrPercentage, AHVRatePercent.String())
	return nil
}

// =============================================================================
// WAGE TYPE 5060 - WITHHOLDING TAX
// =============================================================================

// WithholdingTaxScript computes withholding tax on the period salary.
// The yearly-model cantons rate-determine on the year-to-date wage (the
// consolidated history plus this pass), the monthly-model cantons on the
// period wage alone. Results carry canton and cycle tags so both models
// can coexist within one period for different jurisdictions.
type WithholdingTaxScript struct{}

func (s *WithholdingTaxScript) WageType() (payroll.WageTypeNumber, string) {
	return WageTypeWithholdingTax, "Withholding tax"
}

func (s *WithholdingTaxScript) GetValue(rt *payroll.Runtime) (*decimal.Decimal, error) {
	canton, ok, err := rt.CaseString(FieldTaxCanton)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Not subject to withholding.
		return nil, nil
	}

	salary, found := rt.WageTypeValue(WageTypeMonthlySalary)
	if !found || !salary.HasValue() {
		return nil, nil
	}

	rate, ok, err := rt.CaseDecimal(FieldWithholdingRate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	base := salary.Amount()
	if CantonCycleTag(canton) == payroll.TagCycleYearly {
		ytd, err := rt.ConsolidatedSum(payroll.ConsolidatedQuery{
			WageTypes: []payroll.WageTypeNumber{WageTypeMonthlySalary},
			JobStatus: payroll.JobStatusFinal,
		})
		if err != nil {
			return nil, err
		}
		// Yearly model: tax the average monthly wage of the year so far.
		months := monthsElapsed(rt.Cycle, rt.Period)
		base = ytd.Add(salary.Amount()).Div(decimal.NewFromInt(int64(months)))
	}

	tax := base.Mul(rate).Div(hundred).Neg()
	return &tax, nil
}

func (s *WithholdingTaxScript) Result(rt *payroll.Runtime, wv *payroll.WageTypeValue) error {
	canton, ok, err := rt.CaseString(FieldTaxCanton)
	if err != nil {
		return err
	}
	if ok {
		wv.SetTag(CantonTag(canton))
		wv.SetTag(CantonCycleTag(canton))
	}
	if rate, ok, err := rt.CaseDecimal(FieldWithholdingRate); err == nil && ok {
		wv.SetAttribute(payroll.AttrPercentage, rate.String())
	}
	return nil
}

// monthsElapsed counts cycle periods up to and including p.
func monthsElapsed(c payroll.Cycle, p payroll.Period) int {
	months := 0
	for _, cp := range c.Periods() {
		months++
		if cp.Equal(p) {
			break
		}
	}
	if months == 0 {
		months = 1
	}
	return months
}

// =============================================================================
// COLLECTORS
// =============================================================================

// AHVBaseCollector accumulates the AHV contribution base. Salary counts;
// child allowances are exempt; deductions never reduce the base.
type AHVBaseCollector struct{}

func (c *AHVBaseCollector) CollectorName() payroll.CollectorName { return CollectorAHVBase }

func (c *AHVBaseCollector) Start(rt *payroll.Runtime, col *payroll.Collector) error {
	return col.SetBase(decimal.Zero)
}

func (c *AHVBaseCollector) ApplyValue(rt *payroll.Runtime, col *payroll.Collector, wv payroll.WageTypeValue) (decimal.Decimal, error) {
	if wv.Number == WageTypeMonthlySalary {
		return wv.Amount(), nil
	}
	return decimal.Zero, nil
}

func (c *AHVBaseCollector) End(rt *payroll.Runtime, col *payroll.Collector) error { return nil }

// TaxBaseCollector accumulates the withholding tax base: every gross
// wage type, allowances included.
type TaxBaseCollector struct{}

func (c *TaxBaseCollector) CollectorName() payroll.CollectorName { return CollectorTaxBase }

func (c *TaxBaseCollector) Start(rt *payroll.Runtime, col *payroll.Collector) error {
	return col.SetBase(decimal.Zero)
}

func (c *TaxBaseCollector) ApplyValue(rt *payroll.Runtime, col *payroll.Collector, wv payroll.WageTypeValue) (decimal.Decimal, error) {
	switch wv.Number {
	case WageTypeMonthlySalary, WageTypeChildAllowance:
		return wv.Amount(), nil
	}
	return decimal.Zero, nil
}

func (c *TaxBaseCollector) End(rt *payroll.Runtime, col *payroll.Collector) error { return nil }

// =============================================================================
// PAYRUN SCRIPT
// =============================================================================

// StandardPayrun participates every employee with activity in the period
// plus back-payment corrections for already-withdrawn employees.
type StandardPayrun struct{}

func (p *StandardPayrun) Start(rt *payroll.Runtime) error { return nil }
func (p *StandardPayrun) End(rt *payroll.Runtime) error   { return nil }

func (p *StandardPayrun) EmployeeAvailable(rt *payroll.Runtime) (bool, error) {
	return rt.StatutoryDays() > 0 || rt.IsBackPayment(), nil
}

func (p *StandardPayrun) EmployeeStart(rt *payroll.Runtime) error { return nil }
func (p *StandardPayrun) EmployeeEnd(rt *payroll.Runtime) error   { return nil }

// =============================================================================
// CASE SCRIPT
// =============================================================================

// SalaryCaseScript validates the salary case. Findings go to the issue
// sink; a negative salary invalidates the case without aborting others.
type SalaryCaseScript struct{}

func (s *SalaryCaseScript) CaseName() string { return "swiss.salary" }

func (s *SalaryCaseScript) Build(rt *payroll.Runtime) (bool, error) {
	salary, ok, err := rt.CaseDecimal(FieldMonthlySalary)
	if err != nil {
		return false, err
	}
	if !ok {
		rt.AddIssue(s.CaseName(), payroll.SeverityWarning, "no monthly salary value in period")
		return true, nil
	}
	if salary.IsNegative() {
		rt.AddIssue(s.CaseName(), payroll.SeverityError,
			fmt.Sprintf("monthly salary must not be negative, got %s", salary))
		return false, nil
	}
	return true, nil
}

func (s *SalaryCaseScript) Validate(rt *payroll.Runtime) (bool, error) {
	return s.Build(rt)
}

// =============================================================================
// REPORT SCRIPT
// =============================================================================

// PayslipReport emits a gross-total custom result for payslip rendering.
type PayslipReport struct{}

func (r *PayslipReport) ReportName() string { return "payslip" }

func (r *PayslipReport) Start(rt *payroll.Runtime) (bool, error) {
	return len(rt.WageTypeValues()) > 0, nil
}

func (r *PayslipReport) End(rt *payroll.Runtime) error {
	total := decimal.Zero
	for _, wv := range rt.WageTypeValues() {
		if wv.HasValue() && !wv.Amount().IsNegative() {
			total = total.Add(wv.Amount())
		}
	}
	rt.AddCustomResult("payslip.gross", rt.Period, total, nil,
		payroll.Attributes{payroll.AttrTotal: total.String(), payroll.AttrReport: r.ReportName()})
	return nil
}
