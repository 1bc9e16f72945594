package analysis

import (
	"time"

	"campuscard/internal/core"
)

// FrequencyHit is a consumption record whose trailing window holds at least
// the configured number of the same student's consumption records.
type FrequencyHit struct {
	Record core.Record `json:"record"`
	Count  int         `json:"count"`
}

// DetectFrequency reports every trigger record of the sliding-window detector.
//
// Per student, consumption records are ordered by (timestamp, id). For a
// record at time t the window is [t-windowMinutes, t], closed at both ends;
// every record of that student inside it counts, including records sharing
// the timestamp t. A record with count >= minCount is a trigger, so a burst
// produces one hit per event from the point the threshold is reached.
// Hits are ordered by student ID, then chronologically.
func DetectFrequency(records []core.Record, windowMinutes, minCount int) ([]FrequencyHit, error) {
	if err := validateWindow(windowMinutes, minCount); err != nil {
		return nil, err
	}
	window := time.Duration(windowMinutes) * time.Minute

	hits := make([]FrequencyHit, 0)
	for _, group := range groupByStudent(consumptionOnly(records)) {
		group = sortedChronological(group)
		for i, count := range windowCounts(group, window) {
			if count >= minCount {
				hits = append(hits, FrequencyHit{Record: group[i], Count: count})
			}
		}
	}
	return hits, nil
}

// CountFrequencyTriggers returns the number of records DetectFrequency reports.
func CountFrequencyTriggers(records []core.Record, windowMinutes, minCount int) (int, error) {
	hits, err := DetectFrequency(records, windowMinutes, minCount)
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

// windowCounts computes the trailing window count of every record in a
// chronologically sorted group with a two-pointer scan. left is the first
// record not older than t-window; right is the last record sharing t.
// Both only move forward.
func windowCounts(group []core.Record, window time.Duration) []int {
	counts := make([]int, len(group))
	left, right := 0, 0
	for i, r := range group {
		lower := r.Timestamp.Add(-window)
		for group[left].Timestamp.Before(lower) {
			left++
		}
		if right < i {
			right = i
		}
		for right+1 < len(group) && group[right+1].Timestamp.Equal(r.Timestamp) {
			right++
		}
		counts[i] = right - left + 1
	}
	return counts
}
