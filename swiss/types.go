// Package swiss implements Swiss payroll calculation scripts on top of
// the generic payroll engine: statutory-day pro-rated salary, AHV/ALV
// contribution bases and deductions, child allowances per dependent
// slot, and canton-tagged withholding tax.
package swiss

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// CASE FIELDS
// =============================================================================

const (
	// FieldMonthlySalary is the contractual monthly salary.
	FieldMonthlySalary = "swiss.salary.monthly"

	// FieldChildAllowance carries one value per dependent, scoped by a
	// slot named after the child.
	FieldChildAllowance = "swiss.family.childAllowance"

	// FieldTaxCanton is the employee's withholding tax canton code.
	FieldTaxCanton = "swiss.tax.canton"

	// FieldWithholdingRate is the applicable withholding tax rate in
	// percent, resolved by the (out-of-scope) tariff lookup.
	FieldWithholdingRate = "swiss.tax.rate"
)

// =============================================================================
// COLLECTORS
// =============================================================================

const (
	// CollectorAHVBase accumulates the AHV/ALV contribution base.
	CollectorAHVBase payroll.CollectorName = "ahv_base"

	// CollectorTaxBase accumulates the withholding tax base.
	CollectorTaxBase payroll.CollectorName = "tax_base"
)

// =============================================================================
// WAGE TYPES
// =============================================================================

const (
	WageTypeMonthlySalary  payroll.WageTypeNumber = "1000"
	WageTypeChildAllowance payroll.WageTypeNumber = "3000"
	WageTypeAHVDeduction   payroll.WageTypeNumber = "5010"
	WageTypeWithholdingTax payroll.WageTypeNumber = "5060"
)

// =============================================================================
// STATUTORY RATES
// =============================================================================

// Employee-side AHV/IV/EO contribution rate (percent).
var AHVRatePercent = decimal.NewFromFloat(5.3)

// yearlyCantons lists cantons applying the yearly withholding model;
// everything else uses the monthly model.
var yearlyCantons = map[string]bool{
	"FR": true,
	"GE": true,
	"TI": true,
	"VD": true,
	"VS": true,
}

// CantonCycleTag returns the calculation-cycle tag for a tax canton.
func CantonCycleTag(canton string) string {
	if yearlyCantons[canton] {
		return payroll.TagCycleYearly
	}
	return payroll.TagCycleMonthly
}

// CantonTag returns the canton tag carried by withholding results.
func CantonTag(canton string) string { return "canton:" + canton }
