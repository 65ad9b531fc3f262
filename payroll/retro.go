/*
retro.go - Retroactive recalculation scheduling

PURPOSE:
  Converts "this period's calculation implies a prior committed period
  was wrong" signals into a minimal, de-duplicated set of recomputation
  requests. The scheduler only produces the job list; the external payrun
  job runner owns sequencing, job status persistence and re-invoking the
  pipeline.

MERGE RULE:
  Multiple requests for the same employee collapse to a single job
  targeting the EARLIEST requested period - recomputing from there
  forward necessarily covers later requested periods too. This also makes
  scheduling idempotent under at-least-once delivery.

SAFETY INVARIANT:
  A retro job must never target a period at or after the period whose
  evaluation produced the request. A script scheduling recomputation of
  itself or the future is a programming error and is rejected.
*/
package payroll

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RETRO PAYRUN JOB
// =============================================================================

// RetroPayrunJob requests re-execution of the pipeline for an employee
// starting at an earlier period.
type RetroPayrunJob struct {
	ID       string
	Employee EmployeeID
	Target   Period // earliest period to recompute from
	Reason   string
	Created  time.Time
}

// JobState tracks a persisted job through the runner.
type JobState string

const (
	JobPending   JobState = "pending"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobRecord is the persisted form of a retro job, owned by the runner.
type JobRecord struct {
	RetroPayrunJob
	State       JobState
	Error       string
	CompletedAt *time.Time
}

// JobStore persists retro jobs for the payrun job runner.
type JobStore interface {
	// SaveJob upserts a job keyed by (employee, target period start):
	// re-submitting the same job must not create duplicate work.
	SaveJob(ctx context.Context, job JobRecord) error

	PendingJobs(ctx context.Context) ([]JobRecord, error)

	CompleteJob(ctx context.Context, id string, jobErr error) error
}

// =============================================================================
// RETRO JOB COLLECTOR - Per-pass sink with earliest-period merge
// =============================================================================

// RetroJobCollector gathers retro requests during one pipeline pass. It
// validates every target against the triggering period and merges
// requests per employee to the earliest target.
type RetroJobCollector struct {
	current Period
	merged  map[EmployeeID]RetroPayrunJob
}

func NewRetroJobCollector(current Period) *RetroJobCollector {
	return &RetroJobCollector{current: current, merged: make(map[EmployeeID]RetroPayrunJob)}
}

// Add schedules recomputation for the employee from the target period.
// Targets at or after the triggering period are rejected with
// ErrRetroTargetNotEarlier.
func (rc *RetroJobCollector) Add(employee EmployeeID, target Period, reason string) error {
	if !target.Start.Before(rc.current.Start) {
		return &RetroTargetError{Employee: employee, Target: target, Current: rc.current}
	}

	existing, ok := rc.merged[employee]
	if ok && existing.Target.Start.BeforeOrEqual(target.Start) {
		return nil // existing job already covers this target
	}

	job := RetroPayrunJob{
		ID:       uuid.NewString(),
		Employee: employee,
		Target:   target,
		Reason:   reason,
		Created:  time.Now().UTC(),
	}
	if ok {
		job.ID = existing.ID // keep identity stable across merges
	}
	rc.merged[employee] = job
	return nil
}

// Jobs returns the de-duplicated job list, ordered by employee.
func (rc *RetroJobCollector) Jobs() []RetroPayrunJob {
	jobs := make([]RetroPayrunJob, 0, len(rc.merged))
	for _, job := range rc.merged {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Employee < jobs[j].Employee })
	return jobs
}
