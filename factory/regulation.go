/*
regulation.go - Declarative regulation configuration

PURPOSE:
  Builds a wired ScriptController from a declarative regulation
  description. Tenant administration stores regulations as JSON; this
  factory maps each configured wage type and collector kind to its
  script implementation, in regulation order.

SUPPORTED KINDS:
  Wage types:  monthly_salary, child_allowance, ahv_deduction,
               withholding_tax
  Collectors:  ahv_base, tax_base

EXAMPLE:
  cfg := factory.RegulationConfig{
      Name: "CH 2024",
      WageTypes:  []factory.WageTypeConfig{{Kind: "monthly_salary"}},
      Collectors: []factory.CollectorConfig{{Kind: "ahv_base"}},
      Payrun:     true,
  }
  controller, err := factory.BuildController(cfg)

SEE ALSO:
  - swiss/scripts.go: The script implementations wired here
  - api/handlers.go:  Uses the default Swiss regulation
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/swiss"
)

// =============================================================================
// REGULATION CONFIG
// =============================================================================

type RegulationConfig struct {
	Name       string            `json:"name"`
	WageTypes  []WageTypeConfig  `json:"wageTypes"`
	Collectors []CollectorConfig `json:"collectors"`
	Payrun     bool              `json:"payrun"`
	Reports    []string          `json:"reports"`
}

type WageTypeConfig struct {
	Kind string `json:"kind"`
}

type CollectorConfig struct {
	Kind string `json:"kind"`
}

// ParseRegulation parses a JSON regulation description.
func ParseRegulation(data []byte) (RegulationConfig, error) {
	var cfg RegulationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RegulationConfig{}, fmt.Errorf("invalid regulation config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// CONTROLLER BUILDER
// =============================================================================

// BuildController wires a ScriptController from the configuration.
// Wage types evaluate in configuration order; that order IS the
// dependency order scripts may rely on.
func BuildController(cfg RegulationConfig) (*payroll.ScriptController, error) {
	controller := &payroll.ScriptController{}

	for _, wt := range cfg.WageTypes {
		script, err := wageTypeScript(wt.Kind)
		if err != nil {
			return nil, err
		}
		controller.WageTypes = append(controller.WageTypes, script)
	}

	for _, col := range cfg.Collectors {
		script, err := collectorScript(col.Kind)
		if err != nil {
			return nil, err
		}
		controller.Collectors = append(controller.Collectors, script)
	}

	if cfg.Payrun {
		controller.Payrun = &swiss.StandardPayrun{}
	}

	for _, report := range cfg.Reports {
		switch report {
		case "payslip":
			controller.Reports = append(controller.Reports, &swiss.PayslipReport{})
		default:
			return nil, fmt.Errorf("unknown report %q", report)
		}
	}

	controller.Cases = append(controller.Cases, &swiss.SalaryCaseScript{})

	return controller, nil
}

func wageTypeScript(kind string) (payroll.WageTypeScript, error) {
	switch kind {
	case "monthly_salary":
		return &swiss.MonthlySalaryScript{}, nil
	case "child_allowance":
		return &swiss.ChildAllowanceScript{}, nil
	case "ahv_deduction":
		return &swiss.AHVDeductionScript{}, nil
	case "withholding_tax":
		return &swiss.WithholdingTaxScript{}, nil
	default:
		return nil, fmt.Errorf("unknown wage type kind %q", kind)
	}
}

func collectorScript(kind string) (payroll.CollectorScript, error) {
	switch kind {
	case "ahv_base":
		return &swiss.AHVBaseCollector{}, nil
	case "tax_base":
		return &swiss.TaxBaseCollector{}, nil
	default:
		return nil, fmt.Errorf("unknown collector kind %q", kind)
	}
}

// =============================================================================
// DEFAULT REGULATION
// =============================================================================

// DefaultSwissRegulation is the standard configuration: salary and
// allowances before deductions, both contribution bases, payrun gating
// and the payslip report.
func DefaultSwissRegulation() RegulationConfig {
	return RegulationConfig{
		Name: "CH standard",
		WageTypes: []WageTypeConfig{
			{Kind: "monthly_salary"},
			{Kind: "child_allowance"},
			{Kind: "ahv_deduction"},
			{Kind: "withholding_tax"},
		},
		Collectors: []CollectorConfig{
			{Kind: "ahv_base"},
			{Kind: "tax_base"},
		},
		Payrun:  true,
		Reports: []string{"payslip"},
	}
}
