package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"campuscard/internal/analysis"
	"campuscard/internal/core"
	"campuscard/internal/ledger"

	_ "modernc.org/sqlite"
)

var (
	_ ledger.Store       = (*SQLiteRepository)(nil)
	_ ledger.BatchWriter = (*SQLiteRepository)(nil)
)

const recordColumns = "id, student_id, name, major, grade, balance, timestamp, amount, merchant_type, location, tx_type"

// SQLiteRepository is the ledger store. It owns balance consistency: every
// write recomputes the full event sequence of the students it touched, one
// student at a time.
type SQLiteRepository struct {
	db    *sql.DB
	locks *studentLocks
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// One connection keeps SQLite writers from racing each other for the lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, locks: newStudentLocks()}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListRecords implements ledger.RecordSource.
func (r *SQLiteRepository) ListRecords(ctx context.Context, f ledger.Filter) ([]core.Record, error) {
	var (
		where []string
		args  []any
	)
	like := func(column, value string) {
		if value != "" {
			where = append(where, column+" LIKE ? ESCAPE '\\'")
			args = append(args, "%"+escapeLike(value)+"%")
		}
	}
	like("student_id", f.StudentID)
	like("name", f.Name)
	like("major", f.Major)
	like("grade", f.Grade)
	if f.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, core.FormatTimestamp(*f.From))
	}
	if f.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, core.FormatTimestamp(*f.To))
	}

	query := "SELECT " + recordColumns + " FROM records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	order := "DESC"
	if f.TimeAscending {
		order = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY name ASC, timestamp %s, id %s", order, order)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]core.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if !f.Match(rec) {
			// LIKE is case-insensitive for ASCII; the filter contract is not.
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// GetRecord retrieves a single record by ID.
func (r *SQLiteRepository) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("get record %d: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// AddRecord inserts a record and recomputes the student's balances.
func (r *SQLiteRepository) AddRecord(ctx context.Context, rec core.Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	id, err := insertRecord(ctx, r.db, rec)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Record saved to SQLite",
		"id", id,
		"student_id", rec.StudentID,
		"amount", core.FormatMoney(rec.Amount),
		"tx_type", rec.TxType)

	if err := r.RecalculateBalances(ctx, rec.StudentID); err != nil {
		return id, err
	}
	return id, nil
}

// AddRecords inserts a batch in one transaction and then recomputes each
// touched student once. It returns the IDs of the inserted records.
func (r *SQLiteRepository) AddRecords(ctx context.Context, recs []core.Record) ([]int64, error) {
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		id, err := insertRecord(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit records: %w", err)
	}

	if err := r.recalculateStudents(ctx, studentIDsOf(recs)); err != nil {
		return ids, err
	}
	slog.InfoContext(ctx, "Record batch saved to SQLite", "count", len(ids))
	return ids, nil
}

// UpdateRecord rewrites a record. When the student changes, both the old and
// the new student are recomputed.
func (r *SQLiteRepository) UpdateRecord(ctx context.Context, rec core.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	previous, err := r.GetRecord(ctx, rec.ID)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `UPDATE records
		SET student_id = ?, name = ?, major = ?, grade = ?, timestamp = ?, amount = ?,
		    merchant_type = ?, location = ?, tx_type = ?
		WHERE id = ?`,
		rec.StudentID, rec.Name, rec.Major, rec.Grade, core.FormatTimestamp(rec.Timestamp),
		core.FormatMoney(rec.Amount), rec.MerchantType, rec.Location, string(rec.TxType), rec.ID)
	if err != nil {
		return fmt.Errorf("update record %d: %w", rec.ID, err)
	}

	slog.InfoContext(ctx, "Record updated", "id", rec.ID, "student_id", rec.StudentID)
	return r.recalculateStudents(ctx, []string{rec.StudentID, previous.StudentID})
}

// DeleteRecord removes a record and recomputes its student.
func (r *SQLiteRepository) DeleteRecord(ctx context.Context, id int64) error {
	previous, err := r.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Record deleted", "id", id, "student_id", previous.StudentID)
	return r.RecalculateBalances(ctx, previous.StudentID)
}

// WriteBalances implements ledger.BalanceWriter in a single transaction.
func (r *SQLiteRepository) WriteBalances(ctx context.Context, updates []analysis.BalanceUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeBalances(ctx, tx, updates); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit balances: %w", err)
	}
	return nil
}

// RecalculateBalances recomputes the balance of every record of one student
// from core.StartingBalance. Concurrent calls for the same student are
// serialized; reading the events and writing the balances share one
// transaction. Only balances that changed are written.
func (r *SQLiteRepository) RecalculateBalances(ctx context.Context, studentID string) error {
	unlock := r.locks.Lock(studentID)
	defer unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE student_id = ? ORDER BY timestamp ASC, id ASC", studentID)
	if err != nil {
		return fmt.Errorf("query student %s: %w", studentID, err)
	}
	var events []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return err
		}
		events = append(events, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate student %s: %w", studentID, err)
	}

	stale := analysis.StaleBalances(events, core.StartingBalance)
	if err := writeBalances(ctx, tx, stale); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit balances: %w", err)
	}

	slog.DebugContext(ctx, "Balances recalculated",
		"student_id", studentID,
		"events", len(events),
		"changed", len(stale))
	return nil
}

// RecalculateAll recomputes every student and returns how many there were.
func (r *SQLiteRepository) RecalculateAll(ctx context.Context) (int, error) {
	ids, err := r.StudentIDs(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.recalculateStudents(ctx, ids); err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "All balances recalculated", "students", len(ids))
	return len(ids), nil
}

// StudentIDs returns the distinct student IDs in the ledger, sorted.
func (r *SQLiteRepository) StudentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT student_id FROM records ORDER BY student_id")
	if err != nil {
		return nil, fmt.Errorf("query student ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) recalculateStudents(ctx context.Context, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if err := r.RecalculateBalances(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func insertRecord(ctx context.Context, db execer, rec core.Record) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO records
		(student_id, name, major, grade, balance, timestamp, amount, merchant_type, location, tx_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.StudentID, rec.Name, rec.Major, rec.Grade, core.FormatMoney(rec.Balance),
		core.FormatTimestamp(rec.Timestamp), core.FormatMoney(rec.Amount),
		rec.MerchantType, rec.Location, string(rec.TxType))
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}
	return id, nil
}

func writeBalances(ctx context.Context, tx *sql.Tx, updates []analysis.BalanceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "UPDATE records SET balance = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare balance update: %w", err)
	}
	defer stmt.Close()

	var missing []int64
	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, core.FormatMoney(u.Balance), u.ID)
		if err != nil {
			return fmt.Errorf("update balance of %d: %w", u.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			missing = append(missing, u.ID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("write balances for %v: %w", missing, ledger.ErrNotFound)
	}
	return nil
}

func scanRecord(s scanner) (core.Record, error) {
	var (
		rec                      core.Record
		balance, ts, amount, txn string
	)
	err := s.Scan(&rec.ID, &rec.StudentID, &rec.Name, &rec.Major, &rec.Grade,
		&balance, &ts, &amount, &rec.MerchantType, &rec.Location, &txn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan record: %w", err)
	}
	if rec.Timestamp, err = core.ParseTimestamp(ts); err != nil {
		return rec, fmt.Errorf("record %d timestamp %q: %w", rec.ID, ts, err)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return rec, fmt.Errorf("record %d amount %q: %w", rec.ID, amount, core.ErrInvalidAmount)
	}
	if rec.Balance, err = core.ParseBalance(balance); err != nil {
		return rec, fmt.Errorf("record %d balance %q: %w", rec.ID, balance, err)
	}
	rec.TxType = core.TxType(txn)
	return rec, nil
}

func studentIDsOf(recs []core.Record) []string {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.StudentID)
	}
	return ids
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
