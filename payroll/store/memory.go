// Package store provides in-memory implementations of the calculation
// core's storage boundaries, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory ResultStore / CaseValueStore / EmployeeStore / JobStore
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	results    map[payroll.EmployeeID][]payroll.Result
	authority  map[string]int // authority key -> index into results slice
	caseValues map[payroll.EmployeeID][]payroll.CaseValue
	employees  map[payroll.EmployeeID]*payroll.Employee
	jobs       map[string]payroll.JobRecord
}

func NewMemory() *Memory {
	return &Memory{
		results:    make(map[payroll.EmployeeID][]payroll.Result),
		authority:  make(map[string]int),
		caseValues: make(map[payroll.EmployeeID][]payroll.CaseValue),
		employees:  make(map[payroll.EmployeeID]*payroll.Employee),
		jobs:       make(map[string]payroll.JobRecord),
	}
}

// =============================================================================
// RESULT STORE
// =============================================================================

func (m *Memory) ResultsInCycle(_ context.Context, employee payroll.EmployeeID, cycle payroll.Cycle, status payroll.JobStatus) ([]payroll.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []payroll.Result
	for _, r := range m.results[employee] {
		if r.JobStatus != status {
			continue
		}
		if r.Period.Start.Before(cycle.Start) || r.Period.End.After(cycle.End) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Start.Before(out[j].Period.Start) })
	return out, nil
}

func (m *Memory) ResultsInPeriod(_ context.Context, employee payroll.EmployeeID, p payroll.Period, status payroll.JobStatus) ([]payroll.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []payroll.Result
	for _, r := range m.results[employee] {
		if r.JobStatus == status && r.Period.Equal(p) {
			out = append(out, r)
		}
	}
	return out, nil
}

// SaveResults replaces any existing result carrying the same authority
// key: at most one authoritative result per (employee, period, status,
// identity, tag set).
func (m *Memory) SaveResults(_ context.Context, results []payroll.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range results {
		key := r.AuthorityKey()
		if idx, ok := m.authority[key]; ok {
			m.results[r.Employee][idx] = r
			continue
		}
		m.results[r.Employee] = append(m.results[r.Employee], r)
		m.authority[key] = len(m.results[r.Employee]) - 1
	}
	return nil
}

// =============================================================================
// CASE VALUE STORE
// =============================================================================

// SetCaseValues replaces the employee's case values. Case data is owned
// by the (out-of-scope) case-change operations; this is the test seam.
func (m *Memory) SetCaseValues(employee payroll.EmployeeID, values []payroll.CaseValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caseValues[employee] = append([]payroll.CaseValue(nil), values...)
}

// SaveCaseValues appends case values for an employee.
func (m *Memory) SaveCaseValues(_ context.Context, employee payroll.EmployeeID, values []payroll.CaseValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caseValues[employee] = append(m.caseValues[employee], values...)
	return nil
}

func (m *Memory) CaseValues(_ context.Context, employee payroll.EmployeeID, p payroll.Period, fields []string) (payroll.CaseValueSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}

	var out []payroll.CaseValue
	for _, cv := range m.caseValues[employee] {
		if wanted[cv.Field] && cv.ValidIn(p) {
			out = append(out, cv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Start.Before(out[j].Start)
	})
	return payroll.CaseValueSet{Values: out}, nil
}

func (m *Memory) PeriodCaseValue(_ context.Context, employee payroll.EmployeeID, p payroll.Period, field string) (*payroll.CaseValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *payroll.CaseValue
	for i := range m.caseValues[employee] {
		cv := m.caseValues[employee][i]
		if cv.Field != field || !cv.ValidIn(p) {
			continue
		}
		// Latest-starting valid range wins.
		if best == nil || cv.Start.After(best.Start) {
			value := cv
			best = &value
		}
	}
	return best, nil
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

func (m *Memory) Employee(_ context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[id]
	if !ok {
		return nil, payroll.ErrEmployeeNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *Memory) SaveEmployee(_ context.Context, e *payroll.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *e
	m.employees[e.ID] = &copied
	return nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]*payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*payroll.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		copied := *e
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// JOB STORE
// =============================================================================

// SaveJob upserts by (employee, target period start) so re-submitted
// jobs collapse instead of duplicating work.
func (m *Memory) SaveJob(_ context.Context, job payroll.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.jobs {
		if existing.Employee == job.Employee &&
			existing.Target.Start.Equal(job.Target.Start) &&
			existing.State == payroll.JobPending {
			job.ID = id
			m.jobs[id] = job
			return nil
		}
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) PendingJobs(_ context.Context) ([]payroll.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []payroll.JobRecord
	for _, job := range m.jobs {
		if job.State == payroll.JobPending {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Employee != out[j].Employee {
			return out[i].Employee < out[j].Employee
		}
		return out[i].Target.Start.Before(out[j].Target.Start)
	})
	return out, nil
}

func (m *Memory) CompleteJob(_ context.Context, id string, jobErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	job.CompletedAt = &now
	if jobErr != nil {
		job.State = payroll.JobFailed
		job.Error = jobErr.Error()
	} else {
		job.State = payroll.JobCompleted
	}
	m.jobs[id] = job
	return nil
}
