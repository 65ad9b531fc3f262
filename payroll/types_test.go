package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// ROUNDING
// =============================================================================

func TestRoundTwentieth(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.02", "10"},
		{"10.025", "10.05"},
		{"10.03", "10.05"},
		{"10.07", "10.05"},
		{"10.08", "10.1"},
		{"-3.333", "-3.35"},
		{"0", "0"},
		{"1234.56", "1234.55"},
	}

	for _, tt := range tests {
		got := payroll.RoundTwentieth(payroll.MustParseDecimal(tt.in))
		if !got.Equal(payroll.MustParseDecimal(tt.want)) {
			t.Errorf("RoundTwentieth(%s): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestRoundTwentiethIsIdempotent(t *testing.T) {
	// GIVEN an already-rounded amount
	once := payroll.RoundTwentieth(payroll.MustParseDecimal("7.123"))

	// WHEN rounding again
	twice := payroll.RoundTwentieth(once)

	// THEN nothing changes: accumulations of rounded prior results stay
	// stable under re-rounding
	if !once.Equal(twice) {
		t.Errorf("expected %s, got %s", once, twice)
	}
}

// =============================================================================
// TAGS
// =============================================================================

func TestTagsContainsAll(t *testing.T) {
	tags := payroll.Tags{"canton:GE", payroll.TagCycleYearly, payroll.TagRetro}

	// Containment, not equality: a narrower filter still matches
	if !tags.ContainsAll(payroll.Tags{"canton:GE"}) {
		t.Error("single-tag filter must match")
	}
	if !tags.ContainsAll(payroll.Tags{payroll.TagCycleYearly, "canton:GE"}) {
		t.Error("subset filter must match regardless of order")
	}
	if !tags.ContainsAll(nil) {
		t.Error("empty filter matches everything")
	}
	if tags.ContainsAll(payroll.Tags{"canton:ZH"}) {
		t.Error("missing tag must not match")
	}
	if tags.ContainsAll(payroll.Tags{"canton:GE", "canton:ZH"}) {
		t.Error("partially missing filter must not match")
	}
}

// =============================================================================
// AUTHORITY KEY
// =============================================================================

func TestAuthorityKeyIgnoresTagOrder(t *testing.T) {
	base := payroll.Result{
		Employee:  "emp-1",
		Kind:      payroll.ResultWageType,
		WageType:  "5060",
		Period:    payroll.MonthPeriod(2024, time.March),
		Value:     decimal.NewFromInt(100),
		JobStatus: payroll.JobStatusDraft,
	}

	a := base
	a.Tags = payroll.Tags{"canton:GE", payroll.TagCycleYearly}
	b := base
	b.Tags = payroll.Tags{payroll.TagCycleYearly, "canton:GE"}

	if a.AuthorityKey() != b.AuthorityKey() {
		t.Error("tag order must not change the authority key")
	}

	c := base
	c.Tags = payroll.Tags{"canton:ZH", payroll.TagCycleYearly}
	if a.AuthorityKey() == c.AuthorityKey() {
		t.Error("different tag sets are different authoritative results")
	}
}

func TestAuthorityKeySeparatesKinds(t *testing.T) {
	p := payroll.MonthPeriod(2024, time.March)

	collector := payroll.Result{
		Employee: "emp-1", Kind: payroll.ResultCollector, Collector: "1000",
		Period: p, JobStatus: payroll.JobStatusDraft,
	}
	wageType := payroll.Result{
		Employee: "emp-1", Kind: payroll.ResultWageType, WageType: "1000",
		Period: p, JobStatus: payroll.JobStatusDraft,
	}

	// A collector and a wage type sharing a name never collide
	if collector.AuthorityKey() == wageType.AuthorityKey() {
		t.Error("collector and wage type identities must not collide")
	}
}
