package analysis

import (
	"errors"
	"testing"

	"campuscard/internal/core"
)

// Mondays of three consecutive ISO weeks.
var lowSpendWeeks = []string{"2025-12-01", "2025-12-08", "2025-12-15"}

func TestDetectLowSpendScenario(t *testing.T) {
	var records []core.Record
	for i, amount := range []string{"100", "130", "90"} {
		records = append(records, rec(t, "poor", lowSpendWeeks[i]+" 12:00:00", amount, core.TxConsumption))
	}
	for i, amount := range []string{"150", "160"} {
		records = append(records, rec(t, "rich", lowSpendWeeks[i]+" 12:00:00", amount, core.TxConsumption))
	}
	last := rec(t, "poor", "2025-12-16 09:00:00", "200", core.TxRecharge)
	last.Balance = dec("380.00")
	records = append(records, last)

	got, err := DetectLowSpend(records, dec("140"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one student, got %+v", got)
	}
	s := got[0]
	if s.StudentID != "poor" || s.Name != "name-poor" || s.Major != "cs" || s.Grade != "2025" {
		t.Fatalf("unexpected identity %+v", s)
	}
	assertDecimal(t, "weekly avg", s.WeeklyAverage, "106.67")
	assertDecimal(t, "total", s.TotalAmount, "320")
	assertDecimal(t, "balance", s.CurrentBalance, "380")
	if s.TransactionCount != 3 || s.WeekCount != 3 {
		t.Fatalf("count=%d weeks=%d", s.TransactionCount, s.WeekCount)
	}
}

func TestDetectLowSpendActiveWeeksOnly(t *testing.T) {
	// Two records in week 1, nothing in week 2, one in week 3.
	records := []core.Record{
		rec(t, "s", "2025-12-01 08:00:00", "30", core.TxConsumption),
		rec(t, "s", "2025-12-03 08:00:00", "30", core.TxConsumption),
		rec(t, "s", "2025-12-15 08:00:00", "40", core.TxConsumption),
	}
	got, _ := DetectLowSpend(records, dec("100"))
	if len(got) != 1 {
		t.Fatalf("expected student listed, got %+v", got)
	}
	assertDecimal(t, "weekly avg", got[0].WeeklyAverage, "50")
	if got[0].WeekCount != 2 {
		t.Fatalf("weeks = %d", got[0].WeekCount)
	}
}

func TestDetectLowSpendStrictThreshold(t *testing.T) {
	records := []core.Record{
		rec(t, "s", "2025-12-01 08:00:00", "140", core.TxConsumption),
	}
	got, _ := DetectLowSpend(records, dec("140"))
	if len(got) != 0 {
		t.Fatalf("average equal to threshold must be excluded, got %+v", got)
	}
}

func TestDetectLowSpendIgnoresStudentsWithoutConsumption(t *testing.T) {
	records := []core.Record{
		rec(t, "topup-only", "2025-12-01 08:00:00", "50", core.TxRecharge),
		rec(t, "topup-only", "2025-12-02 08:00:00", "5", core.TxRefund),
	}
	got, err := DetectLowSpend(records, dec("1000"))
	if err != nil || len(got) != 0 {
		t.Fatalf("expected nobody, got %+v err=%v", got, err)
	}
}

func TestDetectLowSpendLatestBalanceTieBreak(t *testing.T) {
	a := rec(t, "s", "2025-12-01 08:00:00", "10", core.TxConsumption)
	b := rec(t, "s", "2025-12-02 08:00:00", "10", core.TxConsumption)
	c := rec(t, "s", "2025-12-02 08:00:00", "5", core.TxRefund)
	a.Balance, b.Balance, c.Balance = dec("490"), dec("480"), dec("485")
	// Present the highest id first to make sure order in the batch does not decide.
	got, _ := DetectLowSpend([]core.Record{c, a, b}, dec("100"))
	if len(got) != 1 {
		t.Fatalf("expected one student, got %+v", got)
	}
	assertDecimal(t, "balance", got[0].CurrentBalance, "485")
}

func TestDetectLowSpendOrderAndErrors(t *testing.T) {
	records := []core.Record{
		rec(t, "b", "2025-12-01 08:00:00", "1", core.TxConsumption),
		rec(t, "a", "2025-12-01 08:00:00", "1", core.TxConsumption),
	}
	got, _ := DetectLowSpend(records, dec("10"))
	if len(got) != 2 || got[0].StudentID != "a" || got[1].StudentID != "b" {
		t.Fatalf("unexpected order %+v", got)
	}
	if _, err := DetectLowSpend(records, dec("-1")); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	empty, err := DetectLowSpend(nil, dec("140"))
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty input: %v %v", empty, err)
	}
}
