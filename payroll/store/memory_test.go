package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

func TestMemorySaveResultsReplacesByAuthorityKey(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	r := payroll.Result{
		Employee:  "emp-1",
		Kind:      payroll.ResultWageType,
		WageType:  "1000",
		Period:    payroll.MonthPeriod(2024, time.March),
		Value:     payroll.MustParseDecimal("3200"),
		JobStatus: payroll.JobStatusDraft,
	}
	require.NoError(t, mem.SaveResults(ctx, []payroll.Result{r}))

	r.Value = payroll.MustParseDecimal("3500")
	require.NoError(t, mem.SaveResults(ctx, []payroll.Result{r}))

	results, err := mem.ResultsInPeriod(ctx, "emp-1", payroll.MonthPeriod(2024, time.March), payroll.JobStatusDraft)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Value.Equal(payroll.MustParseDecimal("3500")))
}

func TestMemoryPeriodCaseValueLatestStartWins(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	mem.SetCaseValues("emp-1", []payroll.CaseValue{
		{Field: "swiss.salary.monthly", Start: payroll.NewDate(2024, time.January, 1),
			Kind: payroll.ValueNumber, Number: payroll.MustParseDecimal("6000")},
		{Field: "swiss.salary.monthly", Start: payroll.NewDate(2024, time.March, 1),
			Kind: payroll.ValueNumber, Number: payroll.MustParseDecimal("6500")},
	})

	cv, err := mem.PeriodCaseValue(ctx, "emp-1", payroll.MonthPeriod(2024, time.March), "swiss.salary.monthly")
	require.NoError(t, err)
	require.NotNil(t, cv)
	assert.True(t, cv.Number.Equal(payroll.MustParseDecimal("6500")))

	cv, err = mem.PeriodCaseValue(ctx, "emp-1", payroll.MonthPeriod(2024, time.February), "swiss.salary.monthly")
	require.NoError(t, err)
	require.NotNil(t, cv)
	assert.True(t, cv.Number.Equal(payroll.MustParseDecimal("6000")))
}

func TestMemoryJobUpsertAndCompletion(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	target := payroll.MonthPeriod(2024, time.February)

	first := payroll.JobRecord{
		RetroPayrunJob: payroll.RetroPayrunJob{ID: "job-1", Employee: "emp-1", Target: target},
		State:          payroll.JobPending,
	}
	require.NoError(t, mem.SaveJob(ctx, first))

	// Same employee and target collapses onto the pending job
	second := first
	second.ID = "job-2"
	second.Reason = "resubmitted"
	require.NoError(t, mem.SaveJob(ctx, second))

	pending, err := mem.PendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "job-1", pending[0].ID)
	assert.Equal(t, "resubmitted", pending[0].Reason)

	require.NoError(t, mem.CompleteJob(ctx, "job-1", errors.New("script fault")))
	pending, err = mem.PendingJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
