/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - payroll/result.go: The domain records these mirror
*/
package api

import (
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// EMPLOYEE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	EntryDate  string            `json:"entry_date"`
	Withdrawal *string           `json:"withdrawal,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// CreateEmployeeRequest is the request to create or update an employee.
type CreateEmployeeRequest struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	EntryDate  string            `json:"entry_date"`
	Withdrawal *string           `json:"withdrawal,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func employeeDTO(e *payroll.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:         string(e.ID),
		Name:       e.Name,
		EntryDate:  e.EntryDate.String(),
		Attributes: e.Attributes,
	}
	if e.Withdrawal != nil {
		w := e.Withdrawal.String()
		dto.Withdrawal = &w
	}
	return dto
}

// =============================================================================
// CASE VALUE TYPES
// =============================================================================

// CaseValueRequest is one calculation input to record for an employee.
type CaseValueRequest struct {
	Field string `json:"field"`
	Slot  string `json:"slot,omitempty"`
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// SaveCaseValuesRequest records a batch of case values.
type SaveCaseValuesRequest struct {
	Values []CaseValueRequest `json:"values"`
}

// =============================================================================
// RESULT TYPES
// =============================================================================

// ResultDTO represents a persisted calculation result.
type ResultDTO struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Collector  string            `json:"collector,omitempty"`
	WageType   string            `json:"wage_type,omitempty"`
	Name       string            `json:"name,omitempty"`
	Period     string            `json:"period"`
	Value      string            `json:"value"`
	JobStatus  string            `json:"job_status"`
	Tags       []string          `json:"tags,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  string            `json:"created_at,omitempty"`
}

func resultDTO(r payroll.Result) ResultDTO {
	dto := ResultDTO{
		ID:         r.ID,
		Kind:       string(r.Kind),
		Collector:  string(r.Collector),
		WageType:   string(r.WageType),
		Name:       r.Name,
		Period:     r.Period.Key(),
		Value:      r.Value.String(),
		JobStatus:  string(r.JobStatus),
		Tags:       r.Tags,
		Attributes: r.Attributes,
	}
	if !r.Created.IsZero() {
		dto.CreatedAt = r.Created.Format(time.RFC3339)
	}
	return dto
}

// ConsolidatedSumDTO is the response of a consolidated accumulation query.
type ConsolidatedSumDTO struct {
	Employee string      `json:"employee"`
	Cycle    string      `json:"cycle"`
	Sum      string      `json:"sum"`
	Results  []ResultDTO `json:"results"`
}

// =============================================================================
// PAYRUN TYPES
// =============================================================================

// ExecutePayrunRequest triggers a payroll calculation run.
type ExecutePayrunRequest struct {
	Period string `json:"period"` // "2006-01"
	Status string `json:"status,omitempty"`

	// Employees restricts the run; empty means every stored employee.
	Employees []string `json:"employees,omitempty"`
}

// IssueDTO represents a validation finding.
type IssueDTO struct {
	Source   string `json:"source"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// WageTypeValueDTO represents one computed wage type value. Value is
// absent when the wage type produced no value (persistence suppressed).
type WageTypeValueDTO struct {
	Number string   `json:"number"`
	Name   string   `json:"name"`
	Value  *string  `json:"value,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// RetroJobDTO represents a scheduled retroactive recalculation.
type RetroJobDTO struct {
	ID       string `json:"id"`
	Employee string `json:"employee"`
	Target   string `json:"target"` // earliest period to recompute from
	Reason   string `json:"reason,omitempty"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

// EmployeePassDTO is the outcome of one employee's calculation pass.
type EmployeePassDTO struct {
	Employee  string             `json:"employee"`
	Available bool               `json:"available"`
	State     string             `json:"state"`
	Error     string             `json:"error,omitempty"`
	WageTypes []WageTypeValueDTO `json:"wage_types,omitempty"`
	Results   []ResultDTO        `json:"results,omitempty"`
	Issues    []IssueDTO         `json:"issues,omitempty"`
	RetroJobs []RetroJobDTO      `json:"retro_jobs,omitempty"`
	Restarts  int                `json:"restarts,omitempty"`
}

// PayrunResponse is the outcome of a full run.
type PayrunResponse struct {
	Period    string            `json:"period"`
	Status    string            `json:"status"`
	Employees []EmployeePassDTO `json:"employees"`
}

func passDTO(employee payroll.EmployeeID, outcome PassOutcome) EmployeePassDTO {
	dto := EmployeePassDTO{
		Employee:  string(employee),
		Available: outcome.Available,
		State:     outcome.State.String(),
		Restarts:  outcome.Restarts,
	}
	if outcome.Err != nil {
		dto.Error = outcome.Err.Error()
	}
	for _, wv := range outcome.WageTypeValues {
		wdto := WageTypeValueDTO{Number: string(wv.Number), Name: wv.Name, Tags: wv.Tags}
		if wv.HasValue() {
			v := wv.Amount().String()
			wdto.Value = &v
		}
		dto.WageTypes = append(dto.WageTypes, wdto)
	}
	for _, r := range outcome.Results {
		dto.Results = append(dto.Results, resultDTO(r))
	}
	for _, issue := range outcome.Issues {
		dto.Issues = append(dto.Issues, IssueDTO{
			Source:   issue.Source,
			Severity: string(issue.Severity),
			Message:  issue.Message,
		})
	}
	for _, job := range outcome.RetroJobs {
		dto.RetroJobs = append(dto.RetroJobs, RetroJobDTO{
			ID:       job.ID,
			Employee: string(job.Employee),
			Target:   job.Target.Key(),
			Reason:   job.Reason,
		})
	}
	return dto
}

// ProcessJobsRequest drains pending retro jobs up to the given period.
type ProcessJobsRequest struct {
	Period string `json:"period"` // current period; jobs recompute up to here
	Status string `json:"status,omitempty"`
}

// ProcessJobsResponse summarizes a drain of the retro job queue.
type ProcessJobsResponse struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Jobs      []RetroJobDTO `json:"jobs"`
}
