package analysis

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"campuscard/internal/core"
)

// naiveCounts is the O(n^2) definition the two-pointer scan must match.
func naiveCounts(group []core.Record, window time.Duration) []int {
	counts := make([]int, len(group))
	for i, r := range group {
		for _, o := range group {
			if !o.Timestamp.Before(r.Timestamp.Add(-window)) && !o.Timestamp.After(r.Timestamp) {
				counts[i]++
			}
		}
	}
	return counts
}

func TestDetectFrequencyScenario(t *testing.T) {
	records := []core.Record{
		rec(t, "S", "2025-12-10 08:00:00", "10", core.TxConsumption),
		rec(t, "S", "2025-12-10 08:05:00", "12", core.TxConsumption),
		rec(t, "S", "2025-12-10 08:09:00", "9", core.TxConsumption),
	}
	hits, err := DetectFrequency(records, 10, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(hits))
	}
	if hits[0].Record.ID != records[2].ID || hits[0].Count != 3 {
		t.Fatalf("unexpected trigger %+v", hits[0])
	}

	group := sortedChronological(records)
	counts := windowCounts(group, 10*time.Minute)
	if counts[0] != 1 || counts[1] != 2 || counts[2] != 3 {
		t.Fatalf("counts = %v, want [1 2 3]", counts)
	}
}

func TestDetectFrequencyBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		times []string
		// expected window counts in chronological order
		want []int
	}{
		{
			name:  "left edge inclusive",
			times: []string{"08:00:00", "08:10:00"},
			want:  []int{1, 2},
		},
		{
			name:  "just outside window",
			times: []string{"08:00:00", "08:10:01"},
			want:  []int{1, 1},
		},
		{
			name:  "equal timestamps see each other",
			times: []string{"08:00:00", "08:00:00", "08:00:00"},
			want:  []int{3, 3, 3},
		},
		{
			name:  "burst then gap",
			times: []string{"08:00:00", "08:01:00", "08:02:00", "08:03:00", "09:00:00"},
			want:  []int{1, 2, 3, 4, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var group []core.Record
			for _, ts := range tt.times {
				group = append(group, rec(t, "S", "2025-12-10 "+ts, "1", core.TxConsumption))
			}
			got := windowCounts(sortedChronological(group), 10*time.Minute)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("counts = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDetectFrequencyBurstReportsEveryEvent(t *testing.T) {
	var records []core.Record
	for i := 0; i < 6; i++ {
		ts := time.Date(2025, 12, 10, 12, i, 0, 0, time.UTC).Format(core.TimestampLayout)
		records = append(records, rec(t, "S", ts, "3", core.TxConsumption))
	}
	n, err := CountFrequencyTriggers(records, 10, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 triggers (events 3..6), got %d", n)
	}
}

func TestDetectFrequencyIgnoresCreditsAndSeparatesStudents(t *testing.T) {
	records := []core.Record{
		rec(t, "A", "2025-12-10 08:00:00", "1", core.TxConsumption),
		rec(t, "A", "2025-12-10 08:01:00", "50", core.TxRecharge),
		rec(t, "B", "2025-12-10 08:01:00", "1", core.TxConsumption),
		rec(t, "A", "2025-12-10 08:02:00", "1", core.TxRefund),
		rec(t, "A", "2025-12-10 08:03:00", "1", core.TxConsumption),
	}
	hits, err := DetectFrequency(records, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Record.ID != records[4].ID || hits[0].Count != 2 {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestDetectFrequencyMatchesNaiveAndIsTranslationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2025, 12, 1, 7, 0, 0, 0, time.UTC)
	var records []core.Record
	for i := 0; i < 300; i++ {
		student := []string{"A", "B", "C"}[rng.Intn(3)]
		ts := base.Add(time.Duration(rng.Intn(6*60)) * time.Minute).Format(core.TimestampLayout)
		records = append(records, rec(t, student, ts, "1", core.TxConsumption))
	}

	for _, group := range groupByStudent(records) {
		group = sortedChronological(group)
		fast := windowCounts(group, 7*time.Minute)
		slow := naiveCounts(group, 7*time.Minute)
		for i := range fast {
			if fast[i] != slow[i] {
				t.Fatalf("record %d: two-pointer count %d != naive %d", i, fast[i], slow[i])
			}
		}
	}

	hits, _ := DetectFrequency(records, 7, 3)
	shifted, _ := DetectFrequency(shift(records, 1234*time.Hour+17*time.Second), 7, 3)
	if len(hits) != len(shifted) {
		t.Fatalf("shifting changed trigger count: %d vs %d", len(hits), len(shifted))
	}
	for i := range hits {
		if hits[i].Record.ID != shifted[i].Record.ID || hits[i].Count != shifted[i].Count {
			t.Fatalf("shifting changed trigger %d", i)
		}
	}
}

func TestDetectFrequencyInvalidParameters(t *testing.T) {
	if _, err := DetectFrequency(nil, 0, 3); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("window 0: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := CountFrequencyTriggers(nil, 10, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("count 0: expected ErrInvalidParameter, got %v", err)
	}
	hits, err := DetectFrequency(nil, 10, 3)
	if err != nil || len(hits) != 0 {
		t.Fatalf("empty input: hits=%v err=%v", hits, err)
	}
}
