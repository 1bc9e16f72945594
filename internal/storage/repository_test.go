package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"campuscard/internal/analysis"
	"campuscard/internal/core"
	"campuscard/internal/ledger"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(t *testing.T, student, ts, amount string, tx core.TxType) core.Record {
	t.Helper()
	when, err := core.ParseTimestamp(ts)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", ts, err)
	}
	return core.Record{
		StudentID:    student,
		Name:         "Name " + student,
		Major:        "Physics",
		Grade:        "2024",
		Timestamp:    when,
		Amount:       decimal.RequireFromString(amount),
		MerchantType: "canteen",
		Location:     "North Hall",
		TxType:       tx,
	}
}

func balances(t *testing.T, repo *SQLiteRepository, student string) []string {
	t.Helper()
	recs, err := repo.ListRecords(context.Background(), ledger.Filter{StudentID: student, TimeAscending: true})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, core.FormatMoney(r.Balance))
	}
	return out
}

func equalStrings(a, b []string) bool {
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

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if v1 != 1 || v2 != 1 {
		t.Fatalf("versions = %d, %d; want 1, 1", v1, v2)
	}
}

func TestAddRecordRecomputesBalances(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	steps := []core.Record{
		record(t, "S1", "2024-03-01 08:00:00", "10.50", core.TxConsumption),
		record(t, "S1", "2024-03-01 12:00:00", "100", core.TxRecharge),
		// Out of order: lands before the recharge.
		record(t, "S1", "2024-03-01 09:00:00", "4.50", core.TxConsumption),
	}
	for _, r := range steps {
		if _, err := repo.AddRecord(ctx, r); err != nil {
			t.Fatalf("AddRecord: %v", err)
		}
	}

	want := []string{"489.50", "485.00", "585.00"}
	if got := balances(t, repo, "S1"); !equalStrings(got, want) {
		t.Fatalf("balances = %v, want %v", got, want)
	}
}

func TestAddRecordRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	r := record(t, "S1", "2024-03-01 08:00:00", "1", core.TxConsumption)
	r.StudentID = ""
	if _, err := repo.AddRecord(context.Background(), r); !errors.Is(err, core.ErrEmptyStudentID) {
		t.Fatalf("err = %v, want ErrEmptyStudentID", err)
	}
}

func TestAddRecordsBatch(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	ids, err := repo.AddRecords(ctx, []core.Record{
		record(t, "S1", "2024-03-01 08:00:00", "20", core.TxConsumption),
		record(t, "S2", "2024-03-01 08:00:00", "30", core.TxConsumption),
		record(t, "S1", "2024-03-02 08:00:00", "5", core.TxRefund),
	})
	if err != nil {
		t.Fatalf("AddRecords: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v", ids)
	}
	if got, want := balances(t, repo, "S1"), []string{"480.00", "485.00"}; !equalStrings(got, want) {
		t.Fatalf("S1 balances = %v, want %v", got, want)
	}
	if got, want := balances(t, repo, "S2"), []string{"470.00"}; !equalStrings(got, want) {
		t.Fatalf("S2 balances = %v, want %v", got, want)
	}
}

func TestUpdateRecordMovesStudent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	id, err := repo.AddRecord(ctx, record(t, "S1", "2024-03-01 08:00:00", "50", core.TxConsumption))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AddRecord(ctx, record(t, "S1", "2024-03-01 09:00:00", "10", core.TxConsumption)); err != nil {
		t.Fatal(err)
	}

	moved, err := repo.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	moved.StudentID = "S2"
	moved.Name = "Name S2"
	if err := repo.UpdateRecord(ctx, moved); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}

	if got, want := balances(t, repo, "S1"), []string{"490.00"}; !equalStrings(got, want) {
		t.Fatalf("S1 balances = %v, want %v", got, want)
	}
	if got, want := balances(t, repo, "S2"), []string{"450.00"}; !equalStrings(got, want) {
		t.Fatalf("S2 balances = %v, want %v", got, want)
	}
}

func TestDeleteRecord(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, _ := repo.AddRecord(ctx, record(t, "S1", "2024-03-01 08:00:00", "50", core.TxConsumption))
	if _, err := repo.AddRecord(ctx, record(t, "S1", "2024-03-01 09:00:00", "10", core.TxConsumption)); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteRecord(ctx, first); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if got, want := balances(t, repo, "S1"), []string{"490.00"}; !equalStrings(got, want) {
		t.Fatalf("balances = %v, want %v", got, want)
	}
	if err := repo.DeleteRecord(ctx, first); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestGetRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	in := record(t, "S9", "2024-05-06 07:08:09", "12.34", core.TxConsumption)
	id, err := repo.AddRecord(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != id || got.StudentID != "S9" || got.Location != "North Hall" || got.TxType != core.TxConsumption {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, in.Timestamp)
	}
	if !got.Amount.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("amount = %s", got.Amount)
	}
	if !got.Balance.Equal(decimal.RequireFromString("487.66")) {
		t.Errorf("balance = %s", got.Balance)
	}

	if _, err := repo.GetRecord(ctx, id+100); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
}

func TestListRecordsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	a := record(t, "A1", "2024-03-01 08:00:00", "1", core.TxConsumption)
	a.Name = "alice"
	a2 := record(t, "A1", "2024-03-03 08:00:00", "1", core.TxConsumption)
	a2.Name = "alice"
	b := record(t, "B1", "2024-03-02 08:00:00", "1", core.TxConsumption)
	b.Name = "bob"
	b.Major = "Math"
	if _, err := repo.AddRecords(ctx, []core.Record{b, a, a2}); err != nil {
		t.Fatal(err)
	}

	all, err := repo.ListRecords(ctx, ledger.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Name != "alice" || !all[0].Timestamp.After(all[1].Timestamp) || all[2].Name != "bob" {
		t.Fatalf("default order wrong: %+v", all)
	}

	math, _ := repo.ListRecords(ctx, ledger.Filter{Major: "Mat"})
	if len(math) != 1 || math[0].StudentID != "B1" {
		t.Fatalf("major filter = %+v", math)
	}

	// Substring filters are case-sensitive.
	if upper, _ := repo.ListRecords(ctx, ledger.Filter{Name: "ALICE"}); len(upper) != 0 {
		t.Fatalf("case-insensitive match leaked: %+v", upper)
	}

	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)
	ranged, _ := repo.ListRecords(ctx, ledger.Filter{From: &from, To: &to})
	if len(ranged) != 2 {
		t.Fatalf("range filter returned %d records", len(ranged))
	}

	if lit, _ := repo.ListRecords(ctx, ledger.Filter{Name: "%"}); len(lit) != 0 {
		t.Fatalf("LIKE wildcard not escaped: %+v", lit)
	}
}

func TestRecalculateAllRepairsDrift(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	ids, err := repo.AddRecords(ctx, []core.Record{
		record(t, "S1", "2024-03-01 08:00:00", "10", core.TxConsumption),
		record(t, "S2", "2024-03-01 08:00:00", "20", core.TxConsumption),
	})
	if err != nil {
		t.Fatal(err)
	}

	drift := []analysis.BalanceUpdate{
		{ID: ids[0], Balance: decimal.NewFromInt(1)},
		{ID: ids[1], Balance: decimal.NewFromInt(2)},
	}
	if err := repo.WriteBalances(ctx, drift); err != nil {
		t.Fatalf("WriteBalances: %v", err)
	}

	n, err := repo.RecalculateAll(ctx)
	if err != nil {
		t.Fatalf("RecalculateAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("students = %d, want 2", n)
	}
	if got := balances(t, repo, "S1"); !equalStrings(got, []string{"490.00"}) {
		t.Fatalf("S1 = %v", got)
	}
	if got := balances(t, repo, "S2"); !equalStrings(got, []string{"480.00"}) {
		t.Fatalf("S2 = %v", got)
	}
}

func TestWriteBalancesUnknownID(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.WriteBalances(context.Background(), []analysis.BalanceUpdate{{ID: 42, Balance: decimal.Zero}})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStudentIDs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	ids, err := repo.StudentIDs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("empty ledger: ids=%v err=%v", ids, err)
	}
	if _, err := repo.AddRecords(ctx, []core.Record{
		record(t, "S2", "2024-03-01 08:00:00", "1", core.TxConsumption),
		record(t, "S1", "2024-03-01 08:00:00", "1", core.TxConsumption),
		record(t, "S2", "2024-03-02 08:00:00", "1", core.TxConsumption),
	}); err != nil {
		t.Fatal(err)
	}
	ids, _ = repo.StudentIDs(ctx)
	if !equalStrings(ids, []string{"S1", "S2"}) {
		t.Fatalf("ids = %v", ids)
	}
}
