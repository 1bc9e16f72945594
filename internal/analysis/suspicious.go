package analysis

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"campuscard/internal/core"
)

const (
	AnomalyLargeAmount   AnomalyKind = "large-amount"
	AnomalyHighFrequency AnomalyKind = "high-frequency"
)

type (
	AnomalyKind string

	// Anomaly is one suspicious transaction with the reason it was flagged.
	// Count is the window count for high-frequency findings and zero otherwise.
	Anomaly struct {
		Kind      AnomalyKind     `json:"type"`
		RecordID  int64           `json:"record_id"`
		StudentID string          `json:"student_id"`
		Name      string          `json:"name"`
		Major     string          `json:"major"`
		Timestamp time.Time       `json:"timestamp"`
		Amount    decimal.Decimal `json:"amount"`
		TxType    core.TxType     `json:"tx_type"`
		Location  string          `json:"location"`
		Reason    string          `json:"desc"`
		Count     int             `json:"count,omitempty"`
	}
)

// DetectLargeAmounts returns the consumption records whose amount is strictly
// above threshold, in batch order.
func DetectLargeAmounts(records []core.Record, threshold decimal.Decimal) ([]core.Record, error) {
	if err := validateSingleThreshold(threshold); err != nil {
		return nil, err
	}
	return FilterRecords(records, func(r core.Record) bool {
		return r.TxType.IsConsumption() && r.Amount.GreaterThan(threshold)
	}), nil
}

// CollectSuspicious merges large-amount and high-frequency findings into one
// list ordered by timestamp, newest first. A record can appear once per kind.
// For equal timestamps large-amount findings come first, each kind keeping its
// detection order.
func CollectSuspicious(records []core.Record, singleThreshold decimal.Decimal, windowMinutes, minCount int) ([]Anomaly, error) {
	large, err := DetectLargeAmounts(records, singleThreshold)
	if err != nil {
		return nil, err
	}
	hits, err := DetectFrequency(records, windowMinutes, minCount)
	if err != nil {
		return nil, err
	}

	out := make([]Anomaly, 0, len(large)+len(hits))
	largeReason := fmt.Sprintf("single > %s", singleThreshold)
	for _, r := range large {
		out = append(out, newAnomaly(AnomalyLargeAmount, r, largeReason, 0))
	}
	for _, h := range hits {
		reason := fmt.Sprintf("%dmin window: %d occurrences", windowMinutes, h.Count)
		out = append(out, newAnomaly(AnomalyHighFrequency, h.Record, reason, h.Count))
	}

	slices.SortStableFunc(out, func(a, b Anomaly) int { return b.Timestamp.Compare(a.Timestamp) })
	return out, nil
}

func newAnomaly(kind AnomalyKind, r core.Record, reason string, count int) Anomaly {
	return Anomaly{
		Kind:      kind,
		RecordID:  r.ID,
		StudentID: r.StudentID,
		Name:      r.Name,
		Major:     r.Major,
		Timestamp: r.Timestamp,
		Amount:    r.Amount,
		TxType:    r.TxType,
		Location:  r.Location,
		Reason:    reason,
		Count:     count,
	}
}

// CountAnomalies tallies a collected list per kind.
func CountAnomalies(anomalies []Anomaly) AnomalyCounts {
	var c AnomalyCounts
	for _, a := range anomalies {
		switch a.Kind {
		case AnomalyLargeAmount:
			c.LargeAmount++
		case AnomalyHighFrequency:
			c.HighFrequency++
		}
	}
	return c
}
