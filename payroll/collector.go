/*
collector.go - Per-period accumulators

PURPOSE:
  A Collector is a named accumulator summing wage type contributions
  within one pay period. It lives inside a single evaluation pass: the
  Collector-Start stage opens it with a base value, the Collector-Apply
  stage folds wage type values into it, and the Collector-End stage
  closes it and emits its persisted Result. The collector itself is
  discarded at period end.

LIFECYCLE:
  Open -> Applied -> Closed

  Wage type scripts read collectors while open (base value plus whatever
  Start seeded). Apply transitions happen collectively in the pipeline's
  Collector-Apply stage. After Closed, any mutation is an error.
*/
package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// COLLECTOR - Named per-period accumulator
// =============================================================================

type CollectorPhase string

const (
	CollectorOpen    CollectorPhase = "open"
	CollectorApplied CollectorPhase = "applied"
	CollectorClosed  CollectorPhase = "closed"
)

type Collector struct {
	Name CollectorName

	base  decimal.Decimal
	total decimal.Decimal
	phase CollectorPhase
}

func NewCollector(name CollectorName) *Collector {
	return &Collector{Name: name, phase: CollectorOpen}
}

func (c *Collector) Phase() CollectorPhase { return c.phase }

// SetBase seeds the collector's base value. Only valid while open.
func (c *Collector) SetBase(v decimal.Decimal) error {
	if c.phase == CollectorClosed {
		return ErrCollectorClosed
	}
	c.base = v
	return nil
}

func (c *Collector) Base() decimal.Decimal { return c.base }

// Add accumulates a contribution. Valid while open or applying.
func (c *Collector) Add(v decimal.Decimal) error {
	if c.phase == CollectorClosed {
		return ErrCollectorClosed
	}
	c.total = c.total.Add(v)
	return nil
}

// Value returns base plus accumulated contributions.
func (c *Collector) Value() decimal.Decimal { return c.base.Add(c.total) }

// markApplied and close are pipeline-internal transitions.
func (c *Collector) markApplied() { c.phase = CollectorApplied }
func (c *Collector) close()       { c.phase = CollectorClosed }

// Result builds the collector's persisted result for the pass. The value
// is rounded to the twentieth like every persisted amount.
func (c *Collector) Result(employee EmployeeID, p Period, status JobStatus, tags Tags) Result {
	return Result{
		Employee:  employee,
		Kind:      ResultCollector,
		Collector: c.Name,
		Period:    p,
		Value:     RoundTwentieth(c.Value()),
		JobStatus: status,
		Tags:      tags.Clone(),
	}
}
