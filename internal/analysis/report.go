package analysis

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"campuscard/internal/core"
)

// AnomalyCounts tallies suspicious findings per kind.
type AnomalyCounts struct {
	LargeAmount   int `json:"large_count"`
	HighFrequency int `json:"freq_count"`
}

// Report is the composed result of every engine component over one batch.
type Report struct {
	Params      Params            `json:"params"`
	GeneratedAt time.Time         `json:"generated_at"`
	RecordCount int               `json:"record_count"`
	Summary     BucketSummary     `json:"summary"`
	Habits      HabitSummary      `json:"habits"`
	Anomalies   AnomalyCounts     `json:"anomalies"`
	Insights    Insights          `json:"insights"`
	LowSpend    []LowSpendStudent `json:"low_spend"`
	Suspicious  []Anomaly         `json:"suspicious"`
}

// BuildReport validates p and runs every component over records. The
// components are independent and evaluated concurrently; each result is
// deterministic, so the report does not depend on scheduling.
func BuildReport(ctx context.Context, records []core.Record, p Params) (*Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	rep := &Report{
		Params:      p,
		GeneratedAt: start,
		RecordCount: len(records),
	}

	var g errgroup.Group
	g.Go(func() error {
		rep.Summary = AggregateBuckets(records)
		return nil
	})
	g.Go(func() error {
		rep.Habits = SummarizeHabits(records)
		return nil
	})
	g.Go(func() error {
		rep.Insights = DeriveInsights(records)
		return nil
	})
	g.Go(func() error {
		low, err := DetectLowSpend(records, p.WeeklyThreshold)
		if err != nil {
			return err
		}
		rep.LowSpend = low
		return nil
	})
	g.Go(func() error {
		suspicious, err := CollectSuspicious(records, p.SingleThreshold, p.WindowMinutes, p.MinCount)
		if err != nil {
			return err
		}
		rep.Suspicious = suspicious
		rep.Anomalies = CountAnomalies(suspicious)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Report built",
		"records", len(records),
		"low_spend", len(rep.LowSpend),
		"suspicious", len(rep.Suspicious),
		"duration_ms", time.Since(start).Milliseconds())
	return rep, nil
}
