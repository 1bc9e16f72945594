package analysis

import (
	"errors"
	"testing"

	"campuscard/internal/core"
)

func TestCollectSuspiciousSingleLargeRecord(t *testing.T) {
	r := rec(t, "s1", "2025-12-10 12:00:00", "800", core.TxConsumption)
	got, err := CollectSuspicious([]core.Record{r}, dec("200"), 10, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one anomaly, got %+v", got)
	}
	a := got[0]
	if a.Kind != AnomalyLargeAmount || a.RecordID != r.ID || a.Reason != "single > 200" {
		t.Fatalf("unexpected anomaly %+v", a)
	}
	counts := CountAnomalies(got)
	if counts.LargeAmount != 1 || counts.HighFrequency != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestCollectSuspiciousMergesAndOrders(t *testing.T) {
	records := []core.Record{
		rec(t, "s1", "2025-12-10 08:00:00", "10", core.TxConsumption),
		rec(t, "s1", "2025-12-10 08:05:00", "12", core.TxConsumption),
		rec(t, "s1", "2025-12-10 08:09:00", "300", core.TxConsumption), // both kinds
		rec(t, "s2", "2025-12-11 10:00:00", "500", core.TxRecharge),    // credit, ignored
		rec(t, "s2", "2025-12-09 10:00:00", "250.5", core.TxConsumption),
	}
	got, err := CollectSuspicious(records, dec("200"), 10, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 anomalies, got %+v", got)
	}
	// Newest first; equal timestamps keep large-amount before high-frequency.
	if got[0].Kind != AnomalyLargeAmount || got[0].RecordID != records[2].ID {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Kind != AnomalyHighFrequency || got[1].RecordID != records[2].ID || got[1].Count != 3 {
		t.Fatalf("second = %+v", got[1])
	}
	if got[1].Reason != "10min window: 3 occurrences" {
		t.Fatalf("reason = %q", got[1].Reason)
	}
	if got[2].RecordID != records[4].ID || got[2].Reason != "single > 200" {
		t.Fatalf("third = %+v", got[2])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("not in descending time order at %d", i)
		}
	}
}

func TestCollectSuspiciousEmptyAndInvalid(t *testing.T) {
	got, err := CollectSuspicious(nil, dec("200"), 10, 3)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("empty input: %v %v", got, err)
	}
	if _, err := CollectSuspicious(nil, dec("0"), 10, 3); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for threshold, got %v", err)
	}
	if _, err := CollectSuspicious(nil, dec("200"), -1, 3); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for window, got %v", err)
	}
}

func TestDetectLargeAmountsStrict(t *testing.T) {
	records := []core.Record{
		rec(t, "s1", "2025-12-10 08:00:00", "200", core.TxConsumption),
		rec(t, "s1", "2025-12-10 08:00:00", "200.01", core.TxConsumption),
	}
	got, err := DetectLargeAmounts(records, dec("200"))
	if err != nil || len(got) != 1 || got[0].ID != records[1].ID {
		t.Fatalf("unexpected large amounts %+v err=%v", got, err)
	}
}
