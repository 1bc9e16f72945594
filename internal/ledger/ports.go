package ledger

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"campuscard/internal/analysis"
	"campuscard/internal/core"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Ports implemented by the ledger stores.
type (
	// RecordSource returns a finite batch of records matching a filter,
	// ordered by name then timestamp.
	RecordSource interface {
		ListRecords(ctx context.Context, f Filter) ([]core.Record, error)
	}

	// BalanceWriter persists recomputed balances.
	BalanceWriter interface {
		WriteBalances(ctx context.Context, updates []analysis.BalanceUpdate) error
	}

	// RecordWriter mutates the ledger. Every write leaves the balances of the
	// affected students recomputed over their full event sequence.
	RecordWriter interface {
		AddRecord(ctx context.Context, r core.Record) (int64, error)
		UpdateRecord(ctx context.Context, r core.Record) error
		DeleteRecord(ctx context.Context, id int64) error
	}

	// BatchWriter inserts many records and recomputes each touched student
	// once.
	BatchWriter interface {
		AddRecords(ctx context.Context, rs []core.Record) ([]int64, error)
	}

	// BalanceRecalculator recomputes stored balances on demand.
	BalanceRecalculator interface {
		RecalculateBalances(ctx context.Context, studentID string) error
		RecalculateAll(ctx context.Context) (int, error)
	}

	// Store is the full set of ledger operations.
	Store interface {
		RecordSource
		BalanceWriter
		RecordWriter
		BalanceRecalculator
		GetRecord(ctx context.Context, id int64) (core.Record, error)
	}
)

// Filter selects records. String fields are case-sensitive substring matches
// and are ignored when empty; From and To bound the timestamp inclusively.
type Filter struct {
	StudentID     string
	Name          string
	Major         string
	Grade         string
	From          *time.Time
	To            *time.Time
	TimeAscending bool
}

// Match reports whether r passes every set criterion.
func (f Filter) Match(r core.Record) bool {
	if f.StudentID != "" && !strings.Contains(r.StudentID, f.StudentID) {
		return false
	}
	if f.Name != "" && !strings.Contains(r.Name, f.Name) {
		return false
	}
	if f.Major != "" && !strings.Contains(r.Major, f.Major) {
		return false
	}
	if f.Grade != "" && !strings.Contains(r.Grade, f.Grade) {
		return false
	}
	if f.From != nil && r.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// Sort orders records by name ascending, then by timestamp in the filter's
// direction, then by id in the same direction.
func (f Filter) Sort(records []core.Record) {
	slices.SortStableFunc(records, func(a, b core.Record) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		c := a.Timestamp.Compare(b.Timestamp)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if f.TimeAscending {
			return c
		}
		return -c
	})
}
