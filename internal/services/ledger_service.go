package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"campuscard/internal/amqp"
	"campuscard/internal/analysis"
	"campuscard/internal/core"
	"campuscard/internal/ledger"
	"campuscard/internal/ledger/csvio"
)

// RecalcPublisher announces that a student's balances should be recomputed.
// *amqp.Client implements it.
type RecalcPublisher interface {
	PublishBalanceRecalc(ctx context.Context, studentID, reason string) error
}

// ImportResult reports how a CSV import went.
type ImportResult struct {
	Imported int               `json:"imported"`
	IDs      []int64           `json:"-"`
	Errors   []csvio.LineError `json:"-"`
}

// ErrorMessages returns the line errors as strings.
func (r ImportResult) ErrorMessages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Error())
	}
	return out
}

// LedgerService orchestrates record writes and analysis. Stores recompute
// balances synchronously on every write; the publisher, when present, lets
// the balance worker re-check them out of band.
type LedgerService struct {
	store     ledger.Store
	publisher RecalcPublisher
}

func NewLedgerService(store ledger.Store, publisher RecalcPublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
	}
}

// ListRecords returns the records matching f.
func (s *LedgerService) ListRecords(ctx context.Context, f ledger.Filter) ([]core.Record, error) {
	return s.store.ListRecords(ctx, f)
}

func (s *LedgerService) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	return s.store.GetRecord(ctx, id)
}

// AddRecord saves r and returns it with its ID and recomputed balance.
func (s *LedgerService) AddRecord(ctx context.Context, r core.Record) (core.Record, error) {
	id, err := s.store.AddRecord(ctx, r)
	if err != nil {
		return core.Record{}, fmt.Errorf("add record: %w", err)
	}
	s.publish(ctx, r.StudentID, amqp.ReasonRecordAdded)

	saved, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return core.Record{}, fmt.Errorf("reload record %d: %w", id, err)
	}
	return saved, nil
}

// UpdateRecord rewrites the record with r.ID.
func (s *LedgerService) UpdateRecord(ctx context.Context, r core.Record) (core.Record, error) {
	previous, err := s.store.GetRecord(ctx, r.ID)
	if err != nil {
		return core.Record{}, err
	}
	if err := s.store.UpdateRecord(ctx, r); err != nil {
		return core.Record{}, fmt.Errorf("update record: %w", err)
	}
	s.publish(ctx, r.StudentID, amqp.ReasonRecordUpdated)
	if previous.StudentID != r.StudentID {
		s.publish(ctx, previous.StudentID, amqp.ReasonRecordUpdated)
	}

	saved, err := s.store.GetRecord(ctx, r.ID)
	if err != nil {
		return core.Record{}, fmt.Errorf("reload record %d: %w", r.ID, err)
	}
	return saved, nil
}

func (s *LedgerService) DeleteRecord(ctx context.Context, id int64) error {
	previous, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	s.publish(ctx, previous.StudentID, amqp.ReasonRecordDeleted)
	return nil
}

// Import loads CSV rows from r. Bad rows are skipped and reported; good rows
// are stored in one batch when the store supports it.
func (s *LedgerService) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	parsed, err := csvio.Read(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read csv: %w", err)
	}
	res := ImportResult{Errors: parsed.Errors}
	if len(parsed.Records) == 0 {
		return res, nil
	}

	if bw, ok := s.store.(ledger.BatchWriter); ok {
		ids, err := bw.AddRecords(ctx, parsed.Records)
		if err != nil {
			return res, fmt.Errorf("store imported records: %w", err)
		}
		res.IDs = ids
	} else {
		for _, rec := range parsed.Records {
			id, err := s.store.AddRecord(ctx, rec)
			if err != nil {
				return res, fmt.Errorf("store imported record: %w", err)
			}
			res.IDs = append(res.IDs, id)
		}
	}
	res.Imported = len(res.IDs)

	seen := make(map[string]struct{})
	for _, rec := range parsed.Records {
		if _, ok := seen[rec.StudentID]; ok {
			continue
		}
		seen[rec.StudentID] = struct{}{}
		s.publish(ctx, rec.StudentID, amqp.ReasonImport)
	}

	slog.InfoContext(ctx, "CSV import finished",
		"imported", res.Imported,
		"rejected", len(res.Errors),
		"students", len(seen))
	return res, nil
}

// Export writes the records matching f as CSV.
func (s *LedgerService) Export(ctx context.Context, w io.Writer, f ledger.Filter) (int, error) {
	records, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}
	if err := csvio.Write(w, records); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	return len(records), nil
}

// Report runs the full analysis over the records matching f.
func (s *LedgerService) Report(ctx context.Context, f ledger.Filter, p analysis.Params) (*analysis.Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	records, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return analysis.BuildReport(ctx, records, p)
}

// RecalculateAll recomputes every student's balances.
func (s *LedgerService) RecalculateAll(ctx context.Context) (int, error) {
	return s.store.RecalculateAll(ctx)
}

func (s *LedgerService) publish(ctx context.Context, studentID, reason string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBalanceRecalc(ctx, studentID, reason); err != nil {
		// Balances were already recomputed in the write path.
		slog.WarnContext(ctx, "Failed to publish balance recalc message",
			"student_id", studentID,
			"reason", reason,
			"error", err)
	}
}

// Close closes the store and publisher when they hold resources.
func (s *LedgerService) Close() error {
	var errs []error

	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}
