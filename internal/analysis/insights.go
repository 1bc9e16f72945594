package analysis

import (
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"campuscard/internal/core"
)

const (
	peakHourLimit    = 3
	topLocationLimit = 5
)

type (
	LocationCount struct {
		Location string `json:"location"`
		Count    int    `json:"count"`
	}

	// MealStats counts consumption records by meal slot of the hour of day:
	// breakfast 06-09, lunch 11-13, dinner 17-19, inclusive.
	MealStats struct {
		Breakfast int `json:"breakfast"`
		Lunch     int `json:"lunch"`
		Dinner    int `json:"dinner"`
		Other     int `json:"other"`
	}

	// Insights describes when, where and how much students consume. Only
	// consumption records are considered.
	Insights struct {
		PeakHours    []int           `json:"peak_hours"`
		PeakHour     int             `json:"peak_hour"`
		WeekendAvg   decimal.Decimal `json:"weekend_avg"`
		WeekdayAvg   decimal.Decimal `json:"weekday_avg"`
		TopLocations []LocationCount `json:"top_locations"`
		Meals        MealStats       `json:"meal_stats"`
		AvgCost      decimal.Decimal `json:"avg_meal_cost"`
		MaxCost      decimal.Decimal `json:"most_expensive_meal"`
		StudentCount int             `json:"student_count"`
	}
)

func defaultInsights() Insights {
	return Insights{
		PeakHours:    []int{},
		WeekendAvg:   decimal.Zero,
		WeekdayAvg:   decimal.Zero,
		TopLocations: []LocationCount{},
		AvgCost:      decimal.Zero,
		MaxCost:      decimal.Zero,
	}
}

// DeriveInsights never fails. Each part is computed on its own; a part that
// faults keeps its default and the rest of the result is still returned.
func DeriveInsights(records []core.Record) Insights {
	out := defaultInsights()
	cons := consumptionOnly(records)
	if len(cons) == 0 {
		return out
	}

	bestEffort("student_count", func() {
		out.StudentCount = countStudents(cons)
	})
	bestEffort("peak_hours", func() {
		hours := peakHours(cons, peakHourLimit)
		out.PeakHours = hours
		if len(hours) > 0 {
			out.PeakHour = hours[0]
		}
	})
	bestEffort("meal_stats", func() {
		out.Meals = mealStats(cons)
	})
	bestEffort("weekday_weekend", func() {
		weekend, weekday := weekSplitAverages(cons)
		out.WeekendAvg, out.WeekdayAvg = weekend, weekday
	})
	bestEffort("cost", func() {
		avg, highest := costStats(cons)
		out.AvgCost, out.MaxCost = avg, highest
	})
	bestEffort("top_locations", func() {
		out.TopLocations = topLocations(cons, topLocationLimit)
	})
	return out
}

func bestEffort(part string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Insight computation failed, keeping defaults", "part", part, "panic", r)
		}
	}()
	fn()
}

// MealOf classifies an hour of day into a meal slot.
func MealOf(hour int) string {
	switch {
	case hour >= 6 && hour <= 9:
		return "breakfast"
	case hour >= 11 && hour <= 13:
		return "lunch"
	case hour >= 17 && hour <= 19:
		return "dinner"
	default:
		return "other"
	}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func countStudents(records []core.Record) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.StudentID] = struct{}{}
	}
	return len(seen)
}

// peakHours returns up to limit hours of day with the most records, busiest
// first; equal counts put the earlier hour first.
func peakHours(records []core.Record, limit int) []int {
	var counts [24]int
	for _, r := range records {
		counts[r.Timestamp.Hour()]++
	}
	hours := make([]int, 0, 24)
	for h, c := range counts {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	slices.SortStableFunc(hours, func(a, b int) int { return counts[b] - counts[a] })
	if len(hours) > limit {
		hours = hours[:limit]
	}
	return hours
}

func mealStats(records []core.Record) MealStats {
	var m MealStats
	for _, r := range records {
		switch MealOf(r.Timestamp.Hour()) {
		case "breakfast":
			m.Breakfast++
		case "lunch":
			m.Lunch++
		case "dinner":
			m.Dinner++
		default:
			m.Other++
		}
	}
	return m
}

// weekSplitAverages returns the mean amount per record on weekends and on
// weekdays. An empty side averages to zero.
func weekSplitAverages(records []core.Record) (weekend, weekday decimal.Decimal) {
	var endSum, daySum decimal.Decimal
	var endN, dayN int64
	for _, r := range records {
		if isWeekend(r.Timestamp) {
			endSum = endSum.Add(r.Amount)
			endN++
		} else {
			daySum = daySum.Add(r.Amount)
			dayN++
		}
	}
	return mean(endSum, endN), mean(daySum, dayN)
}

func costStats(records []core.Record) (avg, highest decimal.Decimal) {
	var sum decimal.Decimal
	for i, r := range records {
		sum = sum.Add(r.Amount)
		if i == 0 || r.Amount.GreaterThan(highest) {
			highest = r.Amount
		}
	}
	return mean(sum, int64(len(records))), highest
}

func mean(sum decimal.Decimal, n int64) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return core.RoundMoney(sum.Div(decimal.NewFromInt(n)))
}

// topLocations returns up to limit locations by record count; equal counts
// keep the order in which the locations first appear in the batch.
func topLocations(records []core.Record, limit int) []LocationCount {
	index := make(map[string]int)
	var out []LocationCount
	for _, r := range records {
		i, ok := index[r.Location]
		if !ok {
			i = len(out)
			index[r.Location] = i
			out = append(out, LocationCount{Location: r.Location})
		}
		out[i].Count++
	}
	slices.SortStableFunc(out, func(a, b LocationCount) int { return b.Count - a.Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
