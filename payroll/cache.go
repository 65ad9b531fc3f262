/*
cache.go - Per-pass consolidated result cache

PURPOSE:
  Wage type and collector scripts accumulate historical sums (year-to-
  date wages, prior contributions) many times per pass. Re-querying the
  result store for every lookup would hammer it with near-identical
  reads. The cache performs ONE bulk fetch per (cycle-start, job-status)
  pair, partitions the results by identity in memory, and serves every
  subsequent lookup of that pair from the partition.

SCOPE AND STALENESS:
  The cache belongs to exactly one pipeline run (one employee, one
  triggering period) and is never shared or reused across runs.
  Staleness is acceptable only within that bounded lifetime.

FAILURE MODE:
  If the bulk fetch fails, the failure surfaces to the caller immediately
  and is not retried internally. A silently-empty cache would produce
  silently-wrong accumulated tax and contribution figures. The failed
  slot is not memoized, so a fresh pass re-fetches.

TAG MATCHING:
  Partitioning is by identity only; the tag-subset filter ("contains all
  of these tags") applies at read time. This avoids re-fetching for every
  tag combination while keeping the containment rule correct.
*/
package payroll

import (
	"context"
	"fmt"
)

// =============================================================================
// CONSOLIDATED RESULT CACHE
// =============================================================================

type cacheKey struct {
	CycleStart string
	Status     JobStatus
}

type ConsolidatedResultCache struct {
	store    ResultStore
	employee EmployeeID

	// identity -> results, per (cycle-start, job-status) slot
	partitions map[cacheKey]map[string][]Result
}

// NewConsolidatedResultCache creates a cache owned by a single pipeline
// run for one employee.
func NewConsolidatedResultCache(store ResultStore, employee EmployeeID) *ConsolidatedResultCache {
	return &ConsolidatedResultCache{
		store:      store,
		employee:   employee,
		partitions: make(map[cacheKey]map[string][]Result),
	}
}

// Get returns the consolidated results matching the query within the
// cycle. The first call for a (cycle-start, job-status) pair performs the
// bulk fetch; later calls are served from memory.
func (c *ConsolidatedResultCache) Get(ctx context.Context, cycle Cycle, q ConsolidatedQuery) ([]Result, error) {
	key := cacheKey{CycleStart: cycle.Start.String(), Status: q.JobStatus}

	partition, ok := c.partitions[key]
	if !ok {
		fetched, err := c.store.ResultsInCycle(ctx, c.employee, cycle, q.JobStatus)
		if err != nil {
			return nil, fmt.Errorf("%w: cycle %s status %s: %v", ErrCacheFetch, cycle.Key(), q.JobStatus, err)
		}
		partition = make(map[string][]Result)
		for _, r := range fetched {
			id := r.Identity()
			partition[id] = append(partition[id], r)
		}
		c.partitions[key] = partition
	}

	var out []Result
	for _, id := range q.identities() {
		for _, r := range partition[id] {
			if !q.SinceStart.IsZero() && r.Period.Start.Before(q.SinceStart) {
				continue
			}
			if !r.Tags.ContainsAll(q.Tags) {
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}
