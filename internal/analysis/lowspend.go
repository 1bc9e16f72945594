package analysis

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"campuscard/internal/core"
)

// LowSpendStudent is a student whose average weekly consumption falls below
// the threshold.
type LowSpendStudent struct {
	StudentID        string          `json:"student_id"`
	Name             string          `json:"name"`
	Major            string          `json:"major"`
	Grade            string          `json:"grade"`
	WeeklyAverage    decimal.Decimal `json:"weekly_avg"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TransactionCount int             `json:"tx_count"`
	WeekCount        int             `json:"weeks_count"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
}

type spendAccumulator struct {
	student core.Student
	weeks   map[string]decimal.Decimal
	total   decimal.Decimal
	count   int
}

// DetectLowSpend flags students whose mean weekly consumption is strictly
// below weeklyThreshold.
//
// Only consumption records are summed, per student and ISO week. The mean is
// taken over active weeks only: a week without consumption does not pull the
// average down. CurrentBalance is the balance of the student's latest record of
// any type in the batch (equal timestamps: highest id, then last in batch).
// WeeklyAverage is reported rounded to two places; the comparison uses the
// exact quotient. Results are ordered by student ID.
func DetectLowSpend(records []core.Record, weeklyThreshold decimal.Decimal) ([]LowSpendStudent, error) {
	if err := validateWeeklyThreshold(weeklyThreshold); err != nil {
		return nil, err
	}

	index := make(map[core.Student]*spendAccumulator)
	var accs []*spendAccumulator
	for _, r := range consumptionOnly(records) {
		st := r.Student()
		acc, ok := index[st]
		if !ok {
			acc = &spendAccumulator{student: st, weeks: make(map[string]decimal.Decimal), total: decimal.Zero}
			index[st] = acc
			accs = append(accs, acc)
		}
		week := isoWeekKey(r.Timestamp)
		acc.weeks[week] = acc.weeks[week].Add(r.Amount)
		acc.total = acc.total.Add(r.Amount)
		acc.count++
	}

	balances := latestBalances(records)
	out := make([]LowSpendStudent, 0)
	for _, acc := range accs {
		sum := decimal.Zero
		for _, v := range acc.weeks {
			sum = sum.Add(v)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(acc.weeks))))
		if !avg.LessThan(weeklyThreshold) {
			continue
		}
		balance, ok := balances[acc.student.ID]
		if !ok {
			balance = decimal.Zero
		}
		out = append(out, LowSpendStudent{
			StudentID:        acc.student.ID,
			Name:             acc.student.Name,
			Major:            acc.student.Major,
			Grade:            acc.student.Grade,
			WeeklyAverage:    core.RoundMoney(avg),
			TotalAmount:      acc.total,
			TransactionCount: acc.count,
			WeekCount:        len(acc.weeks),
			CurrentBalance:   balance,
		})
	}

	slices.SortFunc(out, func(a, b LowSpendStudent) int {
		return cmp.Or(
			cmp.Compare(a.StudentID, b.StudentID),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Major, b.Major),
			cmp.Compare(a.Grade, b.Grade),
		)
	})
	return out, nil
}

// latestBalances returns the balance of each student's most recent record.
func latestBalances(records []core.Record) map[string]decimal.Decimal {
	latest := make(map[string]core.Record)
	for _, r := range records {
		cur, ok := latest[r.StudentID]
		if !ok || compareChronological(r, cur) >= 0 {
			latest[r.StudentID] = r
		}
	}
	out := make(map[string]decimal.Decimal, len(latest))
	for id, r := range latest {
		out[id] = r.Balance
	}
	return out
}
