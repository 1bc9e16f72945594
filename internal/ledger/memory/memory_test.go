package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"campuscard/internal/analysis"
	"campuscard/internal/core"
	"campuscard/internal/ledger"
)

func record(student, ts, amount string, tx core.TxType) core.Record {
	at, _ := core.ParseTimestamp(ts)
	return core.Record{
		StudentID:    student,
		Name:         "n-" + student,
		Major:        "cs",
		Grade:        "2025",
		Timestamp:    at,
		Amount:       decimal.RequireFromString(amount),
		MerchantType: "canteen",
		Location:     "canteen-1",
		TxType:       tx,
	}
}

func balances(t *testing.T, s *Store, student string) []string {
	t.Helper()
	rs, err := s.ListRecords(context.Background(), ledger.Filter{StudentID: student, TimeAscending: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = core.FormatMoney(r.Balance)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStoreRecomputesOnEveryWrite(t *testing.T) {
	ctx := context.Background()
	s := New()

	late, err := s.AddRecord(ctx, record("s1", "2025-12-10 12:00:00", "10", core.TxConsumption))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := balances(t, s, "s1"); !equal(got, []string{"490.00"}) {
		t.Fatalf("after first add: %v", got)
	}

	// An earlier event shifts every later balance.
	if _, err := s.AddRecord(ctx, record("s1", "2025-12-10 08:00:00", "50", core.TxRecharge)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := balances(t, s, "s1"); !equal(got, []string{"550.00", "540.00"}) {
		t.Fatalf("after back-dated add: %v", got)
	}

	// Moving a record to another student recomputes both.
	moved, _ := s.GetRecord(ctx, late)
	moved.StudentID = "s2"
	if err := s.UpdateRecord(ctx, moved); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := balances(t, s, "s1"); !equal(got, []string{"550.00"}) {
		t.Fatalf("s1 after move: %v", got)
	}
	if got := balances(t, s, "s2"); !equal(got, []string{"490.00"}) {
		t.Fatalf("s2 after move: %v", got)
	}

	if err := s.DeleteRecord(ctx, late); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetRecord(ctx, 42); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if err := s.DeleteRecord(ctx, 42); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("delete: %v", err)
	}
	r := record("s1", "2025-12-10 12:00:00", "1", core.TxConsumption)
	r.ID = 42
	if err := s.UpdateRecord(ctx, r); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("update: %v", err)
	}
	err := s.WriteBalances(ctx, []analysis.BalanceUpdate{{ID: 42, Balance: decimal.Zero}})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("write balances: %v", err)
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	s := New()
	if _, err := s.AddRecord(context.Background(), core.Record{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSeedAndRecalculateAll(t *testing.T) {
	ctx := context.Background()
	a := record("s1", "2025-12-10 08:00:00", "10", core.TxConsumption)
	a.Balance = decimal.NewFromInt(9999) // ignored
	s := New(a, record("s2", "2025-12-10 09:00:00", "5", core.TxConsumption))
	if got := balances(t, s, "s1"); !equal(got, []string{"490.00"}) {
		t.Fatalf("seeded balance: %v", got)
	}
	n, err := s.RecalculateAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("recalculate all: n=%d err=%v", n, err)
	}

	from := time.Date(2025, 12, 10, 8, 30, 0, 0, time.UTC)
	rs, _ := s.ListRecords(ctx, ledger.Filter{From: &from})
	if len(rs) != 1 || rs[0].StudentID != "s2" {
		t.Fatalf("time filter: %+v", rs)
	}
}

func TestAddRecordsBatch(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.AddRecords(ctx, []core.Record{
		record("a", "2024-03-01 10:00:00", "20", core.TxConsumption),
		record("b", "2024-03-01 10:00:00", "30", core.TxConsumption),
		record("a", "2024-03-01 09:00:00", "5", core.TxConsumption),
	})
	if err != nil {
		t.Fatalf("AddRecords: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("ids = %v", ids)
	}
	if got := balances(t, s, "a"); got[0] != "495.00" || got[1] != "475.00" {
		t.Fatalf("a balances = %v", got)
	}

	bad := record("c", "2024-03-01 10:00:00", "1", core.TxConsumption)
	bad.StudentID = ""
	if _, err := s.AddRecords(ctx, []core.Record{record("c", "2024-03-01 10:00:00", "1", core.TxConsumption), bad}); !errors.Is(err, core.ErrEmptyStudentID) {
		t.Fatalf("err = %v, want ErrEmptyStudentID", err)
	}
	if s.Len() != 3 {
		t.Fatalf("a rejected batch must store nothing, Len = %d", s.Len())
	}
}
