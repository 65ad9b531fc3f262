package payroll_test

import (
	"testing"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// STATUTORY DAYS
// =============================================================================

func TestStatutoryDaysFullMonth(t *testing.T) {
	// GIVEN an employee active through all of February (a 29-day month)
	entry := payroll.NewDate(2023, time.June, 1)
	feb := payroll.MonthPeriod(2024, time.February)

	// WHEN counting statutory days
	days := payroll.StatutoryDays(feb, entry, nil)

	// THEN every full month counts as 30 regardless of calendar length
	if days != payroll.FullMonthDays {
		t.Errorf("expected %d days, got %d", payroll.FullMonthDays, days)
	}
}

func TestStatutoryDaysMidMonthEntry(t *testing.T) {
	// GIVEN an employee entering on January 15
	entry := payroll.NewDate(2024, time.January, 15)
	jan := payroll.MonthPeriod(2024, time.January)

	// WHEN counting statutory days
	days := payroll.StatutoryDays(jan, entry, nil)

	// THEN days = 30 - 15 + 1
	if days != 16 {
		t.Errorf("expected 16 days, got %d", days)
	}
}

func TestStatutoryDaysMidMonthExit(t *testing.T) {
	// GIVEN an employee exiting on March 10
	entry := payroll.NewDate(2023, time.June, 1)
	exit := payroll.NewDate(2024, time.March, 10)
	mar := payroll.MonthPeriod(2024, time.March)

	// WHEN counting statutory days
	days := payroll.StatutoryDays(mar, entry, &exit)

	// THEN days = 10 - 1 + 1
	if days != 10 {
		t.Errorf("expected 10 days, got %d", days)
	}
}

func TestStatutoryDaysMonthEndBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		period payroll.Period
		entry  payroll.Date
		exit   *payroll.Date
		want   int
	}{
		{
			// Exit on Feb 29 rounds to day 30, not 29
			name:   "leap february exit on month end",
			period: payroll.MonthPeriod(2024, time.February),
			entry:  payroll.NewDate(2023, time.June, 1),
			exit:   datePtr(2024, time.February, 29),
			want:   30,
		},
		{
			// Exit on Feb 28 of a non-leap year also rounds to 30
			name:   "february exit on month end",
			period: payroll.MonthPeriod(2023, time.February),
			entry:  payroll.NewDate(2022, time.June, 1),
			exit:   datePtr(2023, time.February, 28),
			want:   30,
		},
		{
			// Entry on January 31 rounds to day 30: one statutory day,
			// never a negative count
			name:   "entry on 31st",
			period: payroll.MonthPeriod(2024, time.January),
			entry:  payroll.NewDate(2024, time.January, 31),
			want:   1,
		},
		{
			// Entry and exit both on Feb 29
			name:   "single day at month end",
			period: payroll.MonthPeriod(2024, time.February),
			entry:  payroll.NewDate(2024, time.February, 29),
			exit:   datePtr(2024, time.February, 29),
			want:   1,
		},
		{
			// Exit on January 30 is NOT month end in a 31-day month but
			// is already day 30
			name:   "exit on day 30 of long month",
			period: payroll.MonthPeriod(2024, time.January),
			entry:  payroll.NewDate(2023, time.June, 1),
			exit:   datePtr(2024, time.January, 30),
			want:   30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := payroll.StatutoryDays(tt.period, tt.entry, tt.exit)
			if got != tt.want {
				t.Errorf("expected %d days, got %d", tt.want, got)
			}
		})
	}
}

func TestStatutoryDaysInactive(t *testing.T) {
	jan := payroll.MonthPeriod(2024, time.January)

	// GIVEN an employee entering after the period
	entry := payroll.NewDate(2024, time.March, 1)
	if days := payroll.StatutoryDays(jan, entry, nil); days != 0 {
		t.Errorf("entry after period: expected 0 days, got %d", days)
	}

	// GIVEN an employee who exited before the period
	entry = payroll.NewDate(2023, time.January, 1)
	exit := payroll.NewDate(2023, time.November, 30)
	if days := payroll.StatutoryDays(jan, entry, &exit); days != 0 {
		t.Errorf("exit before period: expected 0 days, got %d", days)
	}
}

func TestStatutoryDaysReEntryFallsBackToDailyStatus(t *testing.T) {
	// GIVEN an exit on March 10 and a re-entry on March 20 in the same
	// month (entry day 20 > exit day 10)
	mar := payroll.MonthPeriod(2024, time.March)
	entry := payroll.NewDate(2024, time.March, 20)
	exit := payroll.NewDate(2024, time.March, 10)

	// WHEN counting statutory days
	days := payroll.StatutoryDays(mar, entry, &exit)

	// THEN the count sums the two stints day by day:
	// March 1-10 (10 days) plus March 20-31 (12 days)
	if days != 22 {
		t.Errorf("expected 22 days, got %d", days)
	}
}

func TestAccumulatedStatutoryDays(t *testing.T) {
	// GIVEN an employee entering January 15
	entry := payroll.NewDate(2024, time.January, 15)

	// WHEN accumulating from cycle start through end of March
	days := payroll.AccumulatedStatutoryDays(entry, nil,
		payroll.NewDate(2024, time.January, 1), payroll.NewDate(2024, time.March, 31))

	// THEN 16 + 30 + 30
	if days != 76 {
		t.Errorf("expected 76 days, got %d", days)
	}
}

// =============================================================================
// BACK PAYMENT DETECTION
// =============================================================================

func TestIsBackPayment(t *testing.T) {
	entry := payroll.NewDate(2023, time.January, 1)
	mar := payroll.MonthPeriod(2024, time.March)

	// Withdrawn before the period: any calculation is a back payment
	withdrawal := payroll.NewDate(2024, time.January, 31)
	if !payroll.IsBackPayment(&withdrawal, mar, entry) {
		t.Error("expected back payment after withdrawal")
	}

	// Withdrawal inside the period: a normal partial-month calculation
	withdrawal = payroll.NewDate(2024, time.March, 15)
	if payroll.IsBackPayment(&withdrawal, mar, entry) {
		t.Error("withdrawal inside period is not a back payment")
	}

	// Open-ended employment: never a back payment
	if payroll.IsBackPayment(nil, mar, entry) {
		t.Error("open-ended employment is not a back payment")
	}
}

// =============================================================================
// PERIODS AND CYCLES
// =============================================================================

func TestPeriodArithmetic(t *testing.T) {
	jan := payroll.MonthPeriod(2024, time.January)

	if got := jan.Start.String(); got != "2024-01-01" {
		t.Errorf("expected start 2024-01-01, got %s", got)
	}
	if got := jan.End.String(); got != "2024-01-31" {
		t.Errorf("expected end 2024-01-31, got %s", got)
	}
	if got := jan.Next(); !got.Equal(payroll.MonthPeriod(2024, time.February)) {
		t.Errorf("expected next period 2024-02, got %s", got.Key())
	}
	if got := jan.Previous(); !got.Equal(payroll.MonthPeriod(2023, time.December)) {
		t.Errorf("expected previous period 2023-12, got %s", got.Key())
	}
	if !jan.Contains(payroll.NewDate(2024, time.January, 31)) {
		t.Error("period must contain its end date")
	}
	if jan.Contains(payroll.NewDate(2024, time.February, 1)) {
		t.Error("period must not contain the next period's start")
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := payroll.ParsePeriod("2024-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(payroll.MonthPeriod(2024, time.February)) {
		t.Errorf("expected 2024-02, got %s", p.Key())
	}

	if _, err := payroll.ParsePeriod("not-a-period"); err == nil {
		t.Error("expected error for malformed period")
	}
}

func TestCyclePeriods(t *testing.T) {
	cycle := payroll.YearCycle(2024)

	periods := cycle.Periods()
	if len(periods) != 12 {
		t.Fatalf("expected 12 periods, got %d", len(periods))
	}
	if !periods[0].Equal(payroll.MonthPeriod(2024, time.January)) {
		t.Errorf("expected first period 2024-01, got %s", periods[0].Key())
	}
	if !periods[11].Equal(payroll.MonthPeriod(2024, time.December)) {
		t.Errorf("expected last period 2024-12, got %s", periods[11].Key())
	}
	if !cycle.Contains(payroll.MonthPeriod(2024, time.June)) {
		t.Error("cycle must contain its own periods")
	}
	if cycle.Contains(payroll.MonthPeriod(2025, time.January)) {
		t.Error("cycle must not contain next year's periods")
	}
}

func datePtr(year int, month time.Month, day int) *payroll.Date {
	d := payroll.NewDate(year, month, day)
	return &d
}
