package analysis

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"campuscard/internal/core"
)

type (
	MerchantStat struct {
		Total decimal.Decimal `json:"total"`
		Count int             `json:"count"`
	}

	// HabitSummary aggregates every record of a batch regardless of type,
	// so recharges count toward the total and the maximum.
	HabitSummary struct {
		Count     int                     `json:"count"`
		Total     decimal.Decimal         `json:"total"`
		Mean      decimal.Decimal         `json:"mean"`
		Max       decimal.Decimal         `json:"max"`
		Merchants map[string]MerchantStat `json:"merchant_breakdown"`
	}

	// MerchantShare is one row of HabitSummary.Ranked.
	MerchantShare struct {
		MerchantType string `json:"merchant_type"`
		MerchantStat
	}
)

// SummarizeHabits computes count, total, mean and max over all records plus a
// per merchant type sum and count. With no records every number is zero.
func SummarizeHabits(records []core.Record) HabitSummary {
	s := HabitSummary{
		Total:     decimal.Zero,
		Mean:      decimal.Zero,
		Max:       decimal.Zero,
		Merchants: make(map[string]MerchantStat),
	}
	for i, r := range records {
		s.Count++
		s.Total = s.Total.Add(r.Amount)
		if i == 0 || r.Amount.GreaterThan(s.Max) {
			s.Max = r.Amount
		}
		m, ok := s.Merchants[r.MerchantType]
		if !ok {
			m.Total = decimal.Zero
		}
		m.Total = m.Total.Add(r.Amount)
		m.Count++
		s.Merchants[r.MerchantType] = m
	}
	if s.Count > 0 {
		s.Mean = core.RoundMoney(s.Total.Div(decimal.NewFromInt(int64(s.Count))))
	}
	return s
}

// Ranked returns the merchant breakdown ordered by total descending, then by
// merchant type.
func (s HabitSummary) Ranked() []MerchantShare {
	out := make([]MerchantShare, 0, len(s.Merchants))
	for name, stat := range s.Merchants {
		out = append(out, MerchantShare{MerchantType: name, MerchantStat: stat})
	}
	slices.SortFunc(out, func(a, b MerchantShare) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.MerchantType, b.MerchantType)
	})
	return out
}
