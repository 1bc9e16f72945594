package analysis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"campuscard/internal/core"
)

var nextID int64

// rec builds a record for student id at "2006-01-02 15:04:05".
func rec(t *testing.T, student, ts, amount string, tx core.TxType) core.Record {
	t.Helper()
	at, err := core.ParseTimestamp(ts)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", ts, err)
	}
	nextID++
	return core.Record{
		ID:           nextID,
		StudentID:    student,
		Name:         "name-" + student,
		Major:        "cs",
		Grade:        "2025",
		Balance:      decimal.Zero,
		Timestamp:    at,
		Amount:       decimal.RequireFromString(amount),
		MerchantType: "canteen",
		Location:     "canteen-1",
		TxType:       tx,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s = %s, want %s", what, got, want)
	}
}

func shift(records []core.Record, d time.Duration) []core.Record {
	out := make([]core.Record, len(records))
	for i, r := range records {
		r.Timestamp = r.Timestamp.Add(d)
		out[i] = r
	}
	return out
}
