/*
calendar.go - Pay period and cycle calendar arithmetic

PURPOSE:
  Pure date arithmetic for payroll calculation: pay periods (calendar
  months), calculation cycles (calendar years of months), statutory day
  counting (SV-days) for partial-month employment, and back-payment
  detection.

KEY CONCEPTS IN THIS FILE:
  - Date:   A calendar day (UTC, day granularity)
  - Period: One pay period, [Start, End] of a calendar month
  - Cycle:  A contiguous run of periods (a calendar year of months)
  - Statutory days: The payroll day-counting unit. Every full month
    counts as 30 days regardless of its calendar length.

STATUTORY DAY RULES:
  An employee active for a whole month gets the full-month constant (30).
  Entry or exit inside the month pro-rates: days = exitDay - entryDay + 1,
  where a day falling on the month's last calendar day (including Feb 28
  or 29) is rounded to 30. The rounding guarantees the count never goes
  negative for a single-day difference at month end.

EXAMPLE:
  jan := payroll.MonthPeriod(2024, time.January)
  days := payroll.StatutoryDays(jan, payroll.NewDate(2024, time.January, 15), nil)
  // days == 16 (30 - 15 + 1)

SEE ALSO:
  - runtime.go: Exposes statutory days to calculation scripts
  - retro.go:   Retro jobs target earlier periods of a cycle
*/
package payroll

import "time"

// =============================================================================
// DATE - Calendar day, UTC, day granularity
// =============================================================================

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{Time: d.Time.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

// IsMonthEnd reports whether the date is the last calendar day of its
// month. February 28 (or 29 in leap years) counts as month end.
func (d Date) IsMonthEnd() bool {
	return d.AddDays(1).Month() != d.Month()
}

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// =============================================================================
// PERIOD - One pay period (a calendar month)
// =============================================================================

// Period is a pay period [Start, End], both inclusive. In this system the
// period granularity is the calendar month; periods within a cycle are
// contiguous and non-overlapping.
type Period struct {
	Start Date
	End   Date
}

// MonthPeriod returns the pay period covering the given calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := NewDate(year, month, 1)
	return Period{Start: start, End: start.AddMonths(1).AddDays(-1)}
}

// PeriodOf returns the pay period containing the given date.
func PeriodOf(d Date) Period {
	return MonthPeriod(d.Year(), d.Month())
}

// ParsePeriod parses "2006-01" into the corresponding month period.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, err
	}
	return MonthPeriod(t.Year(), t.Month()), nil
}

func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Next returns the following pay period.
func (p Period) Next() Period { return PeriodOf(p.End.AddDays(1)) }

// Previous returns the preceding pay period.
func (p Period) Previous() Period { return PeriodOf(p.Start.AddDays(-1)) }

func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

// Key returns a stable identifier for the period, e.g. "2024-01".
func (p Period) Key() string { return p.Start.normalize().Format("2006-01") }

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// CYCLE - A contiguous run of periods (calendar year of months)
// =============================================================================

type Cycle struct {
	Start Date
	End   Date
}

// YearCycle returns the calendar-year cycle for the given year.
func YearCycle(year int) Cycle {
	return Cycle{Start: NewDate(year, time.January, 1), End: NewDate(year, time.December, 31)}
}

// CycleOf returns the calendar-year cycle containing the given period.
func CycleOf(p Period) Cycle { return YearCycle(p.Start.Year()) }

// Periods returns the cycle's pay periods in chronological order.
func (c Cycle) Periods() []Period {
	var periods []Period
	current := PeriodOf(c.Start)
	for current.Start.BeforeOrEqual(c.End) {
		periods = append(periods, current)
		current = current.Next()
	}
	return periods
}

func (c Cycle) Contains(p Period) bool {
	return p.Start.AfterOrEqual(c.Start) && p.End.BeforeOrEqual(c.End)
}

// Key returns a stable identifier for the cycle, e.g. "2024".
func (c Cycle) Key() string { return c.Start.normalize().Format("2006") }

func (c Cycle) String() string {
	return "[" + c.Start.String() + ", " + c.End.String() + "]"
}

// =============================================================================
// STATUTORY DAYS - SV-day counting for partial-month employment
// =============================================================================

// FullMonthDays is the statutory length of every month. Payroll day
// counting treats all months as 30 days.
const FullMonthDays = 30

// StatutoryDays returns the number of statutory days (SV-days) the
// employee is active within the period.
//
// Rules:
//   - 0 when the employee is not active at all in the period (entry after
//     period end, or exit before period start).
//   - FullMonthDays when entry and exit both fall outside the period.
//   - Otherwise exitDay - entryDay + 1, where a boundary day on the last
//     calendar day of the month (Feb 28/29 included) is rounded to the
//     full-month constant.
//   - When both boundaries fall inside the period and the computed entry
//     day exceeds the exit day (multiple entry/exit events in one month),
//     the count falls back to summing per-day active status.
//
// A nil exit means the employment is open-ended.
func StatutoryDays(p Period, entry Date, exit *Date) int {
	if entry.After(p.End) {
		return 0
	}
	if exit != nil && exit.Before(p.Start) {
		return 0
	}

	entryDay := 1
	if entry.AfterOrEqual(p.Start) {
		entryDay = boundaryDay(entry)
	}

	exitDay := FullMonthDays
	if exit != nil && exit.BeforeOrEqual(p.End) {
		exitDay = boundaryDay(*exit)
	}

	if entryDay > exitDay {
		// Exit precedes re-entry inside the same month: count the days of
		// each stint explicitly instead of subtracting day numbers.
		return dailyStatusDays(p, entry, exit)
	}

	return exitDay - entryDay + 1
}

// boundaryDay maps an entry or exit date to its statutory day number. The
// month's last calendar day always counts as day 30, which keeps the
// subtraction arithmetic from ever going negative at month end.
func boundaryDay(d Date) int {
	if d.IsMonthEnd() {
		return FullMonthDays
	}
	return d.Day()
}

// dailyStatusDays counts calendar days in the period on which the employee
// is active: before or on the exit (first stint) or after or on the
// re-entry (second stint). Capped at the full-month constant.
func dailyStatusDays(p Period, entry Date, exit *Date) int {
	count := 0
	for d := p.Start; d.BeforeOrEqual(p.End); d = d.AddDays(1) {
		active := d.AfterOrEqual(entry)
		if exit != nil && d.BeforeOrEqual(*exit) {
			active = true
		}
		if active {
			count++
		}
	}
	if count > FullMonthDays {
		count = FullMonthDays
	}
	return count
}

// AccumulatedStatutoryDays sums StatutoryDays over every calendar month
// touched by [from, to].
func AccumulatedStatutoryDays(entry Date, exit *Date, from, to Date) int {
	total := 0
	current := PeriodOf(from)
	last := PeriodOf(to)
	for current.Start.BeforeOrEqual(last.Start) {
		total += StatutoryDays(current, entry, exit)
		current = current.Next()
	}
	return total
}

// IsBackPayment reports whether a calculation for the period is a
// correction paid after the employment relationship ended: the withdrawal
// date precedes the period and the employee has no statutory days left in
// it.
func IsBackPayment(withdrawal *Date, p Period, entry Date) bool {
	if withdrawal == nil {
		return false
	}
	return withdrawal.Before(p.Start) && StatutoryDays(p, entry, withdrawal) == 0
}
