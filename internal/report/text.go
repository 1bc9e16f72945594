// Package report renders analysis reports for people.
package report

import (
	"fmt"
	"strings"

	"campuscard/internal/analysis"
	"campuscard/internal/core"
)

// Text renders rep as a plain-text report: basic counts, habits, peak hour,
// weekend against weekday spending, meal slots, top locations and anomaly
// counts.
func Text(rep *analysis.Report) string {
	if rep == nil || rep.RecordCount == 0 {
		return "No data\n"
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	section := func(title string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		line("=== %s ===", title)
	}

	ins := rep.Insights
	h := rep.Habits

	section("Basic statistics")
	line("Days covered: %d", len(rep.Summary.Daily))
	line("Weeks covered: %d", len(rep.Summary.Weekly))
	line("Students: %d", ins.StudentCount)

	section("Spending habits")
	line("Total amount: %s", core.FormatMoney(h.Total))
	line("Transactions: %d", h.Count)
	line("Average per transaction: %s", core.FormatMoney(h.Mean))
	line("Largest transaction: %s", core.FormatMoney(h.Max))

	line("")
	line("Peak hour: %02d:00 - %02d:00", ins.PeakHour, (ins.PeakHour+1)%24)
	line("Weekend average spend: %s", core.FormatMoney(ins.WeekendAvg))
	line("Weekday average spend: %s", core.FormatMoney(ins.WeekdayAvg))
	if ins.WeekendAvg.GreaterThan(ins.WeekdayAvg) {
		line("  -> weekends cost more")
	} else {
		line("  -> weekdays cost more")
	}

	section("Meal pattern")
	line("Breakfast (06-09): %d", ins.Meals.Breakfast)
	line("Lunch (11-13): %d", ins.Meals.Lunch)
	line("Dinner (17-19): %d", ins.Meals.Dinner)
	line("Other hours: %d", ins.Meals.Other)

	section(fmt.Sprintf("Top locations (top %d)", len(ins.TopLocations)))
	for _, lc := range ins.TopLocations {
		line("  %s: %d", lc.Location, lc.Count)
	}

	section("Anomalies")
	p := rep.Params
	line("Large transactions (> %s): %d", p.SingleThreshold.String(), rep.Anomalies.LargeAmount)
	line("High frequency (%d or more within %dmin): %d", p.MinCount, p.WindowMinutes, rep.Anomalies.HighFrequency)
	if len(rep.LowSpend) > 0 {
		line("Low weekly spend (< %s): %d students", p.WeeklyThreshold.String(), len(rep.LowSpend))
	}

	return b.String()
}
