package analysis

import (
	"github.com/shopspring/decimal"

	"campuscard/internal/core"
)

// BalanceUpdate is the recomputed balance of one persisted record.
type BalanceUpdate struct {
	ID      int64           `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// ReconstructBalances recomputes the running balance of one student's events.
//
// Events are ordered by (timestamp, id) before the walk; credits (recharge,
// refund) add to the balance and every other type subtracts. The balance is
// rounded to two places after each step. The result is in chronological order
// and is a pure function of the input, so applying it twice yields the same
// updates. Persisting the updates is the caller's job.
func ReconstructBalances(events []core.Record, start decimal.Decimal) []BalanceUpdate {
	ordered := sortedChronological(events)
	updates := make([]BalanceUpdate, 0, len(ordered))
	balance := core.RoundMoney(start)
	for _, r := range ordered {
		balance = core.RoundMoney(balance.Add(r.Signed()))
		updates = append(updates, BalanceUpdate{ID: r.ID, Balance: balance})
	}
	return updates
}

// StaleBalances runs ReconstructBalances and keeps only the updates whose
// balance differs from the one currently stored on the record. Writing just
// these leaves the store in the same state as writing the full result.
func StaleBalances(events []core.Record, start decimal.Decimal) []BalanceUpdate {
	stored := make(map[int64]decimal.Decimal, len(events))
	for _, r := range events {
		stored[r.ID] = r.Balance
	}
	all := ReconstructBalances(events, start)
	stale := make([]BalanceUpdate, 0, len(all))
	for _, u := range all {
		if cur, ok := stored[u.ID]; !ok || !cur.Equal(u.Balance) {
			stale = append(stale, u)
		}
	}
	return stale
}
