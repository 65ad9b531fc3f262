/*
errors.go - Centralized error types for the calculation core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (the payrun job runner, the API layer) should match with
  errors.Is / errors.As and never rely on error strings.

ERROR CATEGORIES:
  1. Script faults - a calculation script itself failed
  2. Cache faults  - the consolidated result fetch failed
  3. Scheduling anomalies - a script requested an invalid retro target
  4. Validation issues - business-rule findings (data, not errors)

VALIDATION ISSUES ARE NOT ERRORS:
  A case build/validate script that finds invalid data appends a
  ValidationIssue and returns a validity flag. Issues never abort
  evaluation of unrelated cases; only script runtime faults do.

SEE ALSO:
  - pipeline.go: wraps stage failures in ScriptError
  - retro.go:    rejects invalid retro targets
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrScriptFault is returned when a calculation script fails at
	// runtime. It aborts the current pipeline pass for the employee and
	// period; the terminal Ended stage still runs.
	ErrScriptFault = errors.New("calculation script fault")

	// ErrCacheFetch is returned when the consolidated result bulk fetch
	// fails. Fatal for the current pass: accumulation correctness depends
	// on a complete historical snapshot, so the failure is surfaced once
	// and never retried internally.
	ErrCacheFetch = errors.New("consolidated result fetch failed")

	// ErrRetroTargetNotEarlier is returned when a script requests
	// recomputation of a period at or after the one being evaluated. This
	// is a programming error in the script, not a runtime condition.
	ErrRetroTargetNotEarlier = errors.New("retro target period not earlier than current period")

	// ErrCollectorClosed is returned when a script adds to a collector
	// after the Collector-End stage closed it.
	ErrCollectorClosed = errors.New("collector is closed")

	// ErrPipelineRestarted is returned by the runner when the restart
	// count exceeds the configured maximum.
	ErrPipelineRestarted = errors.New("pipeline restart limit exceeded")

	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ScriptError identifies which script failed in which pipeline stage.
type ScriptError struct {
	Stage  string
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %q failed in stage %s: %v", e.Script, e.Stage, e.Err)
}

// Unwrap exposes both the fault sentinel and the underlying cause, so
// errors.Is(err, ErrCacheFetch) still matches through the wrapper.
func (e *ScriptError) Unwrap() []error { return []error{ErrScriptFault, e.Err} }

// RetroTargetError details an invalid retro scheduling request.
type RetroTargetError struct {
	Employee EmployeeID
	Target   Period
	Current  Period
}

func (e *RetroTargetError) Error() string {
	return fmt.Sprintf("retro target %s for %s is not earlier than current period %s",
		e.Target.Key(), e.Employee, e.Current.Key())
}

func (e *RetroTargetError) Unwrap() error { return ErrRetroTargetNotEarlier }

// =============================================================================
// VALIDATION ISSUES - Findings, collected not thrown
// =============================================================================

type IssueSeverity string

const (
	SeverityInfo    IssueSeverity = "info"
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// ValidationIssue is a business-rule finding reported by a script. Issues
// are collected into a list and returned alongside a validity flag; a
// single case failure must not abort evaluation of unrelated cases.
type ValidationIssue struct {
	Source   string // script or case name that reported the issue
	Message  string
	Severity IssueSeverity
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Source, i.Message)
}

// HasErrors reports whether any issue in the list is error-severity.
func HasErrors(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsScriptFault reports whether the error originates from a calculation
// script rather than the engine or a store.
func IsScriptFault(err error) bool { return errors.Is(err, ErrScriptFault) }

// IsFatalForPass reports whether the error aborts the current pipeline
// pass without committing results.
func IsFatalForPass(err error) bool {
	return errors.Is(err, ErrScriptFault) || errors.Is(err, ErrCacheFetch)
}
