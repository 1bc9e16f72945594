package analysis

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"campuscard/internal/core"
)

const (
	Daily   BucketKind = "daily"
	Weekly  BucketKind = "weekly"
	Monthly BucketKind = "monthly"
)

type (
	BucketKind string

	// Bucket is the summed amount of one calendar-aligned interval.
	Bucket struct {
		Key   string          `json:"key"`
		Start time.Time       `json:"start"`
		Total decimal.Decimal `json:"total"`
	}

	// BucketSummary holds the day, ISO week and month buckets of a batch,
	// each ordered by bucket start. Buckets whose sum is not positive are
	// left out.
	BucketSummary struct {
		Daily   []Bucket `json:"daily"`
		Weekly  []Bucket `json:"weekly"`
		Monthly []Bucket `json:"monthly"`
	}
)

// AggregateBuckets sums record amounts per calendar day (YYYY-MM-DD), ISO week
// (YYYY-Www, weeks starting Monday) and calendar month (YYYY-MM).
func AggregateBuckets(records []core.Record) BucketSummary {
	return BucketSummary{
		Daily:   aggregate(records, dayBucket),
		Weekly:  aggregate(records, weekBucket),
		Monthly: aggregate(records, monthBucket),
	}
}

// Buckets returns the buckets of the given kind.
func (s BucketSummary) Buckets(kind BucketKind) []Bucket {
	switch kind {
	case Daily:
		return s.Daily
	case Weekly:
		return s.Weekly
	case Monthly:
		return s.Monthly
	default:
		return nil
	}
}

// Lookup returns the total of one bucket and whether it is present.
func (s BucketSummary) Lookup(kind BucketKind, key string) (decimal.Decimal, bool) {
	for _, b := range s.Buckets(kind) {
		if b.Key == key {
			return b.Total, true
		}
	}
	return decimal.Zero, false
}

type bucketFunc func(time.Time) (key string, start time.Time)

func aggregate(records []core.Record, bucketOf bucketFunc) []Bucket {
	index := make(map[string]int)
	var buckets []Bucket
	for _, r := range records {
		key, start := bucketOf(r.Timestamp)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{Key: key, Start: start, Total: decimal.Zero})
		}
		buckets[i].Total = buckets[i].Total.Add(r.Amount)
	}

	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		if b.Total.IsPositive() {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b Bucket) int { return a.Start.Compare(b.Start) })
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayBucket(t time.Time) (string, time.Time) {
	start := startOfDay(t)
	return start.Format("2006-01-02"), start
}

// isoWeekKey formats the ISO-8601 week of t, e.g. 2025-W01.
func isoWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func weekBucket(t time.Time) (string, time.Time) {
	// Monday is day 0 of an ISO week.
	offset := (int(t.Weekday()) + 6) % 7
	return isoWeekKey(t), startOfDay(t).AddDate(0, 0, -offset)
}

func monthBucket(t time.Time) (string, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start.Format("2006-01"), start
}
