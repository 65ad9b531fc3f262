/*
runner.go - Payrun job runner

PURPOSE:
  Owns everything the calculation pipeline deliberately does not: building
  the per-pass runtime, bounding script-requested restarts, persisting the
  results of successful passes, saving scheduled retro jobs, and draining
  the retro job queue by recomputing every period from a job's target
  through the current period.

COMMIT SEMANTICS:
  A pass that faults persists nothing. A successful pass persists its
  collector, wage type and custom results in one atomic SaveResults call,
  then saves any retro jobs the pass scheduled.

RESTART BOUNDING:
  A script may ask for the pass to be discarded and re-run. The runner
  re-invokes up to Options.MaxRestarts times; a pass still requesting a
  restart after that fails with ErrPipelineRestarted.

BACKGROUND DRAIN:
  Start launches a goroutine that drains pending retro jobs on a
  configurable interval, recomputing up to the current calendar period.

USAGE:
  runner := api.NewRunner(store, controller, company, national)
  outcome := runner.ExecutePass(ctx, employee, period, payroll.JobStatusDraft)

SEE ALSO:
  - payroll/pipeline.go: The pipeline whose results this persists
  - payroll/retro.go:    Retro job semantics
  - handlers.go:         HTTP surface invoking the runner
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/payroll-engine/payroll"
)

// Store bundles the persistence boundaries the runner and handlers need.
type Store interface {
	payroll.ResultStore
	payroll.CaseValueStore
	payroll.EmployeeStore
	payroll.JobStore

	// SaveCaseValues records calculation inputs. Owned by case-change
	// operations; exposed here so the API can seed inputs.
	SaveCaseValues(ctx context.Context, employee payroll.EmployeeID, values []payroll.CaseValue) error
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes calculation passes and owns their persistence.
type Runner struct {
	Store      Store
	Controller *payroll.ScriptController
	Company    *payroll.Company
	National   *payroll.National
	Options    payroll.Options
	Log        *logrus.Logger

	// DrainInterval is how often the background loop drains pending
	// retro jobs. Zero disables the loop.
	DrainInterval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRunner(store Store, controller *payroll.ScriptController, company *payroll.Company, national *payroll.National) *Runner {
	return &Runner{
		Store:         store,
		Controller:    controller,
		Company:       company,
		National:      national,
		Log:           logrus.New(),
		DrainInterval: time.Hour,
		stop:          make(chan struct{}),
	}
}

// PassOutcome is the runner's view of one employee pass: the pipeline's
// execution result plus persistence status and restart count.
type PassOutcome struct {
	Available bool
	State     payroll.State

	WageTypeValues []payroll.WageTypeValue
	Results        []payroll.Result // persisted results, custom included
	Issues         []payroll.ValidationIssue
	RetroJobs      []payroll.RetroPayrunJob
	Restarts       int
	Err            error
}

// ExecutePass runs the pipeline for one employee and period, re-invoking
// on restart requests and persisting on success.
func (r *Runner) ExecutePass(ctx context.Context, employee *payroll.Employee, period payroll.Period, status payroll.JobStatus) PassOutcome {
	outcome := PassOutcome{Available: true}

	for {
		rt := payroll.NewRuntime(ctx, payroll.RuntimeConfig{
			Employee: employee,
			Company:  r.Company,
			National: r.National,
			Period:   period,
			Status:   status,
			Cases:    r.Store,
			Results:  r.Store,
			Options:  r.Options,
		})

		res, err := r.executeOnce(rt)
		outcome.Available = res.Available
		outcome.State = res.State
		outcome.WageTypeValues = res.WageTypeValues
		outcome.Issues = res.Issues
		outcome.RetroJobs = res.RetroJobs

		if err != nil {
			outcome.Err = err
			r.Log.WithFields(logrus.Fields{
				"employee": employee.ID,
				"period":   period.Key(),
			}).WithError(err).Error("calculation pass failed")
			return outcome
		}

		if !res.Restart {
			outcome.Results = append(res.Results, rt.CustomResults()...)
			break
		}

		outcome.Restarts++
		if outcome.Restarts > rt.Options.MaxRestarts {
			outcome.Err = fmt.Errorf("%w: employee %s period %s after %d attempts",
				payroll.ErrPipelineRestarted, employee.ID, period.Key(), outcome.Restarts)
			return outcome
		}
		r.Log.WithFields(logrus.Fields{
			"employee": employee.ID,
			"period":   period.Key(),
			"attempt":  outcome.Restarts,
		}).Info("restarting calculation pass")
	}

	if !outcome.Available {
		return outcome
	}

	if err := r.persistPass(ctx, &outcome); err != nil {
		outcome.Err = err
	}
	return outcome
}

// executeOnce runs one bracketed pass: run-level start, the five stages,
// reports, run-level end.
func (r *Runner) executeOnce(rt *payroll.Runtime) (*payroll.ExecutionResult, error) {
	if err := r.Controller.StartRun(rt); err != nil {
		return &payroll.ExecutionResult{}, err
	}

	res, err := r.Controller.Execute(rt)
	if err != nil {
		return res, err
	}

	if res.Available {
		if err := r.Controller.RunReports(rt); err != nil {
			return res, err
		}
	}

	if err := r.Controller.EndRun(rt); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Runner) persistPass(ctx context.Context, outcome *PassOutcome) error {
	if len(outcome.Results) > 0 {
		if err := r.Store.SaveResults(ctx, outcome.Results); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
	}
	for _, job := range outcome.RetroJobs {
		record := payroll.JobRecord{RetroPayrunJob: job, State: payroll.JobPending}
		if err := r.Store.SaveJob(ctx, record); err != nil {
			return fmt.Errorf("failed to save retro job: %w", err)
		}
		r.Log.WithFields(logrus.Fields{
			"employee": job.Employee,
			"target":   job.Target.Key(),
			"reason":   job.Reason,
		}).Info("retro payrun job scheduled")
	}
	return nil
}

// =============================================================================
// RUN-LEVEL EXECUTION
// =============================================================================

// ExecutePayrun runs the pipeline for a set of employees in one period.
// An empty employee list means every stored employee. Per-employee faults
// are captured in the outcome, not propagated; one bad script does not
// block the rest of the run.
func (r *Runner) ExecutePayrun(ctx context.Context, employees []payroll.EmployeeID, period payroll.Period, status payroll.JobStatus) ([]PassOutcome, []payroll.EmployeeID, error) {
	var targets []*payroll.Employee

	if len(employees) == 0 {
		all, err := r.Store.ListEmployees(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list employees: %w", err)
		}
		targets = all
	} else {
		for _, id := range employees {
			e, err := r.Store.Employee(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			targets = append(targets, e)
		}
	}

	outcomes := make([]PassOutcome, 0, len(targets))
	ids := make([]payroll.EmployeeID, 0, len(targets))
	for _, e := range targets {
		outcomes = append(outcomes, r.ExecutePass(ctx, e, period, status))
		ids = append(ids, e.ID)
	}
	return outcomes, ids, nil
}

// =============================================================================
// RETRO JOB DRAIN
// =============================================================================

// ProcessJobs drains every pending retro job, recomputing each affected
// employee from the job's target period through the current period. The
// job completes even when a pass faults; the fault is recorded on the job.
func (r *Runner) ProcessJobs(ctx context.Context, current payroll.Period, status payroll.JobStatus) (processed, failed int, records []payroll.JobRecord, err error) {
	jobs, err := r.Store.PendingJobs(ctx)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to load pending jobs: %w", err)
	}

	for _, job := range jobs {
		jobErr := r.processJob(ctx, job, current, status)
		if completeErr := r.Store.CompleteJob(ctx, job.ID, jobErr); completeErr != nil {
			return processed, failed, records, completeErr
		}
		if jobErr != nil {
			failed++
			job.State = payroll.JobFailed
			job.Error = jobErr.Error()
		} else {
			processed++
			job.State = payroll.JobCompleted
		}
		records = append(records, job)
	}
	return processed, failed, records, nil
}

func (r *Runner) processJob(ctx context.Context, job payroll.JobRecord, current payroll.Period, status payroll.JobStatus) error {
	employee, err := r.Store.Employee(ctx, job.Employee)
	if err != nil {
		return err
	}

	r.Log.WithFields(logrus.Fields{
		"employee": job.Employee,
		"target":   job.Target.Key(),
		"current":  current.Key(),
	}).Info("processing retro payrun job")

	// Recompute forward from the target: every period after it may
	// depend on the corrected one through consolidated accumulation.
	for p := job.Target; p.Start.BeforeOrEqual(current.Start); p = p.Next() {
		outcome := r.ExecutePass(ctx, employee, p, status)
		if outcome.Err != nil {
			return fmt.Errorf("period %s: %w", p.Key(), outcome.Err)
		}
	}
	return nil
}

// =============================================================================
// BACKGROUND LOOP
// =============================================================================

// Start launches the background retro job drain.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DrainInterval <= 0 {
		r.Log.Info("retro job drain disabled")
		return
	}

	r.ticker = time.NewTicker(r.DrainInterval)
	r.wg.Add(1)
	go r.loop()

	r.Log.WithField("interval", r.DrainInterval).Info("retro job drain started")
}

// Stop stops the background drain and waits for an in-flight drain.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stop)
		r.wg.Wait()
		r.Log.Info("retro job drain stopped")
	}
}

func (r *Runner) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ticker.C:
			r.drainOnce()
		case <-r.stop:
			return
		}
	}
}

func (r *Runner) drainOnce() {
	ctx := context.Background()
	current := payroll.PeriodOf(payroll.DateOf(time.Now().UTC()))

	processed, failed, _, err := r.ProcessJobs(ctx, current, payroll.JobStatusDraft)
	if err != nil {
		r.Log.WithError(err).Error("retro job drain failed")
		return
	}
	if processed > 0 || failed > 0 {
		r.Log.WithFields(logrus.Fields{
			"processed": processed,
			"failed":    failed,
		}).Info("retro job drain completed")
	}
}
