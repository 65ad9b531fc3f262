/*
pipeline.go - The five-stage evaluation pipeline (script controller)

PURPOSE:
  Executes the payroll calculation for ONE employee and ONE pay period
  with deterministic stage order and side-effect capture:

    Collector-Start -> Wage-Type-Value -> Collector-Apply ->
    Wage-Type-Result -> Collector-End

  Wage type scripts read collectors in open (pre-apply) state, wage types
  computed earlier in the same pass, case values and the consolidated
  cache. The Collector-Apply stage then folds every computed wage type
  value back into the collectors. The terminal Ended state ALWAYS runs,
  even when an earlier stage faults, so open collectors are always
  closed.

STATE MACHINE (per pass):
  NotStarted -> CollectorsStarted -> WageTypesEvaluated ->
  CollectorsApplied -> ResultsCommitted -> Ended

COMMIT SEMANTICS:
  The pipeline never persists anything itself. It returns the computed
  result records; the payrun job runner persists them after a successful
  pass. A faulted pass therefore commits nothing for the employee/period.

RESTART:
  A script may request that the pass be discarded and re-run. The request
  is cooperative: the pass completes normally and the Restart flag on the
  execution result tells the caller to re-invoke, bounded by
  Options.MaxRestarts.

SEE ALSO:
  - script.go:  The script families invoked per stage
  - runtime.go: The per-pass capability surface
  - api/runner.go: The payrun job runner consuming execution results
*/
package payroll

// =============================================================================
// PIPELINE STATE
// =============================================================================

type State int

const (
	StateNotStarted State = iota
	StateCollectorsStarted
	StateWageTypesEvaluated
	StateCollectorsApplied
	StateResultsCommitted
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateCollectorsStarted:
		return "collectors_started"
	case StateWageTypesEvaluated:
		return "wage_types_evaluated"
	case StateCollectorsApplied:
		return "collectors_applied"
	case StateResultsCommitted:
		return "results_committed"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Stage names used in ScriptError.
const (
	stageCollectorStart = "collector-start"
	stageWageTypeValue  = "wage-type-value"
	stageCollectorApply = "collector-apply"
	stageWageTypeResult = "wage-type-result"
	stageCollectorEnd   = "collector-end"
	stageCaseBuild      = "case-build"
	stageCaseValidate   = "case-validate"
	stagePayrun         = "payrun"
	stageReport         = "report"
)

// =============================================================================
// SCRIPT CONTROLLER
// =============================================================================

// ScriptController orchestrates the staged execution of a regulation's
// calculation scripts. It is stateless across passes; all mutable state
// lives in the Runtime.
type ScriptController struct {
	Collectors    []CollectorScript
	WageTypes     []WageTypeScript
	Cases         []CaseScript
	CaseRelations []CaseRelationScript
	Payrun        PayrunScript // optional
	Reports       []ReportScript
}

// ExecutionResult captures everything one pass produced. Results,
// CustomResults, Issues and RetroJobs are for the caller to persist and
// act on; nothing has been committed yet.
type ExecutionResult struct {
	State     State
	Available bool // false when the payrun script excluded the employee

	WageTypeValues []WageTypeValue
	Results        []Result // wage type and collector results, rounded
	CustomResults  []Result
	Issues         []ValidationIssue
	RetroJobs      []RetroPayrunJob
	Restart        bool
}

// Execute runs the five stages for the runtime's employee and period.
// On a script fault the pass aborts with a typed error, but the terminal
// stage still runs and the returned result reflects captured side
// effects; its Results slice stays empty so nothing partial can be
// committed.
func (sc *ScriptController) Execute(rt *Runtime) (res *ExecutionResult, err error) {
	res = &ExecutionResult{State: StateNotStarted, Available: true}

	employeeStarted := false
	defer func() {
		// Terminal stage: always close collectors, even after a fault.
		for _, c := range rt.orderedCollectors() {
			if script := sc.collectorScript(c.Name); script != nil && c.Phase() != CollectorClosed {
				if endErr := script.End(rt, c); endErr != nil && err == nil {
					err = &ScriptError{Stage: stageCollectorEnd, Script: string(c.Name), Err: endErr}
				}
			}
			c.close()
			if err == nil {
				res.Results = append(res.Results, c.Result(rt.Employee.ID, rt.Period, rt.Status, nil))
			}
		}
		if sc.Payrun != nil && employeeStarted {
			if endErr := sc.Payrun.EmployeeEnd(rt); endErr != nil && err == nil {
				err = &ScriptError{Stage: stagePayrun, Script: "employee-end", Err: endErr}
			}
		}
		res.State = StateEnded
		res.CustomResults = rt.custom
		res.Issues = rt.issues
		res.RetroJobs = rt.retro.Jobs()
		res.Restart = rt.restart
		if err != nil {
			res.Results = nil
		}
	}()

	if sc.Payrun != nil {
		available, availErr := sc.Payrun.EmployeeAvailable(rt)
		if availErr != nil {
			return res, &ScriptError{Stage: stagePayrun, Script: "employee-available", Err: availErr}
		}
		if !available {
			res.Available = false
			return res, nil
		}
		if startErr := sc.Payrun.EmployeeStart(rt); startErr != nil {
			return res, &ScriptError{Stage: stagePayrun, Script: "employee-start", Err: startErr}
		}
		employeeStarted = true
	}

	if err = sc.startCollectors(rt); err != nil {
		return res, err
	}
	res.State = StateCollectorsStarted

	if err = sc.evaluateWageTypes(rt); err != nil {
		return res, err
	}
	res.State = StateWageTypesEvaluated
	res.WageTypeValues = rt.wageTypes.Values()

	if err = sc.applyCollectors(rt); err != nil {
		return res, err
	}
	res.State = StateCollectorsApplied

	wageResults, resultErr := sc.wageTypeResults(rt)
	if resultErr != nil {
		return res, resultErr
	}
	res.Results = append(res.Results, wageResults...)
	res.WageTypeValues = rt.wageTypes.Values()
	res.State = StateResultsCommitted

	return res, nil
}

// =============================================================================
// STAGES
// =============================================================================

func (sc *ScriptController) startCollectors(rt *Runtime) error {
	for _, script := range sc.Collectors {
		c := NewCollector(script.CollectorName())
		rt.addCollector(c)
		if err := script.Start(rt, c); err != nil {
			return &ScriptError{Stage: stageCollectorStart, Script: string(c.Name), Err: err}
		}
	}
	return nil
}

func (sc *ScriptController) evaluateWageTypes(rt *Runtime) error {
	for _, script := range sc.WageTypes {
		number, name := script.WageType()
		rt.beginWageType()

		value, err := script.GetValue(rt)
		if err != nil {
			return &ScriptError{Stage: stageWageTypeValue, Script: string(number), Err: err}
		}

		wv := WageTypeValue{Number: number, Name: name}
		if value != nil {
			rounded := RoundTwentieth(*value)
			wv.Value = &rounded
		}
		wv.ReadFields = rt.takeReadFields()
		rt.wageTypes.add(wv)

		if rt.Options.AutoPeriodResults && wv.HasValue() {
			if err := sc.emitPeriodResults(rt, wv); err != nil {
				return &ScriptError{Stage: stageWageTypeValue, Script: string(number), Err: err}
			}
		}
	}
	return nil
}

func (sc *ScriptController) applyCollectors(rt *Runtime) error {
	for _, wv := range rt.wageTypes.Values() {
		if !wv.HasValue() {
			continue
		}
		for _, script := range sc.Collectors {
			c := rt.collectors[script.CollectorName()]
			delta, err := script.ApplyValue(rt, c, wv)
			if err != nil {
				return &ScriptError{Stage: stageCollectorApply, Script: string(c.Name), Err: err}
			}
			if !delta.IsZero() {
				if err := c.Add(delta); err != nil {
					return &ScriptError{Stage: stageCollectorApply, Script: string(c.Name), Err: err}
				}
			}
		}
	}
	for _, c := range rt.orderedCollectors() {
		c.markApplied()
	}
	return nil
}

func (sc *ScriptController) wageTypeResults(rt *Runtime) ([]Result, error) {
	var results []Result
	for _, script := range sc.WageTypes {
		number, _ := script.WageType()
		wv, ok := rt.wageTypes.Lookup(number)
		if !ok || !wv.HasValue() {
			// nil value: persistence suppressed, by contract.
			continue
		}
		if err := script.Result(rt, &wv); err != nil {
			return nil, &ScriptError{Stage: stageWageTypeResult, Script: string(number), Err: err}
		}
		rt.wageTypes.add(wv)
		results = append(results, wv.Result(rt.Employee.ID, rt.Period, rt.Status))
	}
	return results, nil
}

// emitPeriodResults produces the audit trail of the auto-period-results
// option: one custom sub-period result per distinct date range a read
// case field held a decimal value within the period.
func (sc *ScriptController) emitPeriodResults(rt *Runtime, wv WageTypeValue) error {
	for _, field := range wv.ReadFields {
		set, err := rt.cases.CaseValues(rt.ctx, rt.Employee.ID, rt.Period, []string{field})
		if err != nil {
			return err
		}
		for _, cv := range set.Values {
			amount, ok := cv.NumberValue()
			if !ok || !cv.ValidIn(rt.Period) {
				continue
			}
			sub := cv.ClampTo(rt.Period)
			rt.AddCustomResult(
				string(wv.Number)+"."+field,
				sub,
				amount,
				wv.Tags,
				Attributes{AttrAmount: amount.String()},
			)
		}
	}
	return nil
}

func (sc *ScriptController) collectorScript(name CollectorName) CollectorScript {
	for _, script := range sc.Collectors {
		if script.CollectorName() == name {
			return script
		}
	}
	return nil
}

// =============================================================================
// CASE BUILD / VALIDATE - Separate stage group feeding the same sinks
// =============================================================================

// CaseResult reports a case build or validate run: a validity flag plus
// the collected issues, never an exception per finding.
type CaseResult struct {
	Valid     bool
	Issues    []ValidationIssue
	RetroJobs []RetroPayrunJob
}

// BuildCases runs every case and case-relation build script. The result
// is invalid when any script vetoes or reports an error-severity issue;
// remaining scripts still run.
func (sc *ScriptController) BuildCases(rt *Runtime) (*CaseResult, error) {
	valid := true
	for _, script := range sc.Cases {
		ok, err := script.Build(rt)
		if err != nil {
			return nil, &ScriptError{Stage: stageCaseBuild, Script: script.CaseName(), Err: err}
		}
		valid = valid && ok
	}
	for _, script := range sc.CaseRelations {
		ok, err := script.BuildRelation(rt)
		if err != nil {
			return nil, &ScriptError{Stage: stageCaseBuild, Script: script.RelationName(), Err: err}
		}
		valid = valid && ok
	}
	valid = valid && !HasErrors(rt.issues)
	return &CaseResult{Valid: valid, Issues: rt.issues, RetroJobs: rt.retro.Jobs()}, nil
}

// ValidateCases runs every case and case-relation validate script.
func (sc *ScriptController) ValidateCases(rt *Runtime) (*CaseResult, error) {
	valid := true
	for _, script := range sc.Cases {
		ok, err := script.Validate(rt)
		if err != nil {
			return nil, &ScriptError{Stage: stageCaseValidate, Script: script.CaseName(), Err: err}
		}
		valid = valid && ok
	}
	for _, script := range sc.CaseRelations {
		ok, err := script.ValidateRelation(rt)
		if err != nil {
			return nil, &ScriptError{Stage: stageCaseValidate, Script: script.RelationName(), Err: err}
		}
		valid = valid && ok
	}
	valid = valid && !HasErrors(rt.issues)
	return &CaseResult{Valid: valid, Issues: rt.issues, RetroJobs: rt.retro.Jobs()}, nil
}

// =============================================================================
// PAYRUN AND REPORT HOOKS - Run-level bracketing for the job runner
// =============================================================================

// StartRun invokes the payrun script's run-level Start hook.
func (sc *ScriptController) StartRun(rt *Runtime) error {
	if sc.Payrun == nil {
		return nil
	}
	if err := sc.Payrun.Start(rt); err != nil {
		return &ScriptError{Stage: stagePayrun, Script: "start", Err: err}
	}
	return nil
}

// EndRun invokes the payrun script's run-level End hook.
func (sc *ScriptController) EndRun(rt *Runtime) error {
	if sc.Payrun == nil {
		return nil
	}
	if err := sc.Payrun.End(rt); err != nil {
		return &ScriptError{Stage: stagePayrun, Script: "end", Err: err}
	}
	return nil
}

// RunReports brackets every report script. A report whose Start returns
// false is skipped.
func (sc *ScriptController) RunReports(rt *Runtime) error {
	for _, script := range sc.Reports {
		run, err := script.Start(rt)
		if err != nil {
			return &ScriptError{Stage: stageReport, Script: script.ReportName(), Err: err}
		}
		if !run {
			continue
		}
		if err := script.End(rt); err != nil {
			return &ScriptError{Stage: stageReport, Script: script.ReportName(), Err: err}
		}
	}
	return nil
}
