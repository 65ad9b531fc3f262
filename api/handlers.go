/*
handlers.go - HTTP API handlers for the payroll calculation engine

PURPOSE:
  Exposes the calculation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the runner and
  the calculation core.

ENDPOINTS:
  Employees:
    GET    /api/employees                    List all employees
    POST   /api/employees                    Create or update employee
    GET    /api/employees/{id}               Get employee details
    POST   /api/employees/{id}/cases         Record case values (inputs)
    GET    /api/employees/{id}/results       Results for one period
    GET    /api/employees/{id}/consolidated  Cycle-wide accumulation query

  Payruns:
    POST   /api/payruns                      Execute a calculation run

  Retro jobs:
    GET    /api/jobs/pending                 Pending retro payrun jobs
    POST   /api/jobs/process                 Drain the retro job queue

  Admin:
    POST   /api/reset                        Database reset (dev only)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Employee not found
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go:    Request/response data structures
  - runner.go: The payrun job runner handlers delegate to
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Store
	Runner *Runner
	Log    *logrus.Logger
}

// NewHandler creates a new handler around the runner and its store.
func NewHandler(store Store, runner *Runner) *Handler {
	return &Handler{Store: store, Runner: runner, Log: runner.Log}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = employeeDTO(e)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))

	e, err := h.Store.Employee(r.Context(), id)
	if errors.Is(err, payroll.ErrEmployeeNotFound) {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}

	writeJSON(w, http.StatusOK, employeeDTO(e))
}

// CreateEmployee creates or updates an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" || req.EntryDate == "" {
		writeError(w, http.StatusBadRequest, "id, name and entry_date are required", nil)
		return
	}

	entry, err := payroll.ParseDate(req.EntryDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry_date, expected YYYY-MM-DD", err)
		return
	}

	e := &payroll.Employee{
		ID:         payroll.EmployeeID(req.ID),
		Name:       req.Name,
		EntryDate:  entry,
		Attributes: req.Attributes,
	}
	if req.Withdrawal != nil {
		withdrawal, err := payroll.ParseDate(*req.Withdrawal)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid withdrawal, expected YYYY-MM-DD", err)
			return
		}
		e.Withdrawal = &withdrawal
	}

	if err := h.Store.SaveEmployee(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}

	writeJSON(w, http.StatusCreated, employeeDTO(e))
}

// =============================================================================
// CASE VALUE HANDLERS
// =============================================================================

// SaveCaseValues records a batch of calculation inputs for an employee.
func (h *Handler) SaveCaseValues(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))

	if _, err := h.Store.Employee(r.Context(), id); errors.Is(err, payroll.ErrEmployeeNotFound) {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}

	var req SaveCaseValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values must not be empty", nil)
		return
	}

	values := make([]payroll.CaseValue, 0, len(req.Values))
	for _, v := range req.Values {
		cv, err := parseCaseValue(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid case value", err)
			return
		}
		values = append(values, cv)
	}

	if err := h.Store.SaveCaseValues(r.Context(), id, values); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save case values", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int{"saved": len(values)})
}

func parseCaseValue(v CaseValueRequest) (payroll.CaseValue, error) {
	cv := payroll.CaseValue{
		Field:   v.Field,
		Slot:    v.Slot,
		Created: time.Now().UTC(),
	}
	if v.Field == "" {
		return cv, fmt.Errorf("field is required")
	}

	start, err := payroll.ParseDate(v.Start)
	if err != nil {
		return cv, fmt.Errorf("invalid start %q: %w", v.Start, err)
	}
	cv.Start = start
	if v.End != "" {
		end, err := payroll.ParseDate(v.End)
		if err != nil {
			return cv, fmt.Errorf("invalid end %q: %w", v.End, err)
		}
		cv.End = end
	}

	switch payroll.ValueKind(v.Kind) {
	case payroll.ValueNumber:
		number, err := decimal.NewFromString(v.Value)
		if err != nil {
			return cv, fmt.Errorf("invalid number %q: %w", v.Value, err)
		}
		cv.Kind = payroll.ValueNumber
		cv.Number = number
	case payroll.ValueString:
		cv.Kind = payroll.ValueString
		cv.Text = v.Value
	case payroll.ValueDate:
		day, err := payroll.ParseDate(v.Value)
		if err != nil {
			return cv, fmt.Errorf("invalid date %q: %w", v.Value, err)
		}
		cv.Kind = payroll.ValueDate
		cv.Day = day
	case payroll.ValueBool:
		cv.Kind = payroll.ValueBool
		cv.Flag = v.Value == "true"
	default:
		return cv, fmt.Errorf("unknown kind %q", v.Kind)
	}
	return cv, nil
}

// =============================================================================
// RESULT HANDLERS
// =============================================================================

// GetResults returns the employee's results for one period.
// Query params: period (required, "2006-01"), status (default draft).
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))

	period, err := payroll.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing period, expected YYYY-MM", err)
		return
	}
	status := jobStatusParam(r.URL.Query().Get("status"))

	results, err := h.Store.ResultsInPeriod(r.Context(), id, period, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load results", err)
		return
	}

	dtos := make([]ResultDTO, len(results))
	for i, res := range results {
		dtos[i] = resultDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetConsolidated answers a cycle-wide accumulation query.
// Query params: cycle (default: current year), collectors, wage_types,
// tags (comma-separated), since (YYYY-MM-DD), status (default draft).
func (h *Handler) GetConsolidated(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	cycle := payroll.YearCycle(time.Now().UTC().Year())
	if s := q.Get("cycle"); s != "" {
		t, err := time.Parse("2006", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cycle, expected YYYY", err)
			return
		}
		cycle = payroll.YearCycle(t.Year())
	}

	query := payroll.ConsolidatedQuery{
		JobStatus: jobStatusParam(q.Get("status")),
	}
	for _, c := range splitParam(q.Get("collectors")) {
		query.Collectors = append(query.Collectors, payroll.CollectorName(c))
	}
	for _, wt := range splitParam(q.Get("wage_types")) {
		query.WageTypes = append(query.WageTypes, payroll.WageTypeNumber(wt))
	}
	query.Tags = payroll.Tags(splitParam(q.Get("tags")))
	if s := q.Get("since"); s != "" {
		since, err := payroll.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since, expected YYYY-MM-DD", err)
			return
		}
		query.SinceStart = since
	}
	if len(query.Collectors) == 0 && len(query.WageTypes) == 0 {
		writeError(w, http.StatusBadRequest, "collectors or wage_types required", nil)
		return
	}

	cache := payroll.NewConsolidatedResultCache(h.Store, id)
	results, err := cache.Get(r.Context(), cycle, query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Consolidated query failed", err)
		return
	}

	resp := ConsolidatedSumDTO{
		Employee: string(id),
		Cycle:    cycle.Key(),
		Sum:      payroll.SumValues(results).String(),
	}
	for _, res := range results {
		resp.Results = append(resp.Results, resultDTO(res))
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PAYRUN HANDLERS
// =============================================================================

// ExecutePayrun runs the calculation for a period across employees.
func (h *Handler) ExecutePayrun(w http.ResponseWriter, r *http.Request) {
	var req ExecutePayrunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := payroll.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period, expected YYYY-MM", err)
		return
	}
	status := jobStatusParam(req.Status)

	var ids []payroll.EmployeeID
	for _, id := range req.Employees {
		ids = append(ids, payroll.EmployeeID(id))
	}

	outcomes, ran, err := h.Runner.ExecutePayrun(r.Context(), ids, period, status)
	if errors.Is(err, payroll.ErrEmployeeNotFound) {
		writeError(w, http.StatusNotFound, "Employee not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Payrun failed", err)
		return
	}

	resp := PayrunResponse{Period: period.Key(), Status: string(status)}
	for i, outcome := range outcomes {
		resp.Employees = append(resp.Employees, passDTO(ran[i], outcome))
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// RETRO JOB HANDLERS
// =============================================================================

// ListPendingJobs returns pending retro payrun jobs.
func (h *Handler) ListPendingJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Store.PendingJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list jobs", err)
		return
	}

	dtos := make([]RetroJobDTO, len(jobs))
	for i, job := range jobs {
		dtos[i] = jobDTO(job)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ProcessJobs drains the retro job queue, recomputing up to the given
// current period.
func (h *Handler) ProcessJobs(w http.ResponseWriter, r *http.Request) {
	var req ProcessJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	current, err := payroll.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period, expected YYYY-MM", err)
		return
	}
	status := jobStatusParam(req.Status)

	processed, failed, records, err := h.Runner.ProcessJobs(r.Context(), current, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Job processing failed", err)
		return
	}

	resp := ProcessJobsResponse{Processed: processed, Failed: failed}
	for _, record := range records {
		resp.Jobs = append(resp.Jobs, jobDTO(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

func jobDTO(job payroll.JobRecord) RetroJobDTO {
	return RetroJobDTO{
		ID:       job.ID,
		Employee: string(job.Employee),
		Target:   job.Target.Key(),
		Reason:   job.Reason,
		State:    string(job.State),
		Error:    job.Error,
	}
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase clears all data (dev/demo only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	resettable, ok := h.Store.(interface{ Reset(ctx context.Context) error })
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	if err := resettable.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func jobStatusParam(s string) payroll.JobStatus {
	if s == "" {
		return payroll.JobStatusDraft
	}
	return payroll.JobStatus(s)
}

func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
