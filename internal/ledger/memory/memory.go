package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"campuscard/internal/analysis"
	"campuscard/internal/core"
	"campuscard/internal/ledger"
)

var (
	_ ledger.Store       = (*Store)(nil)
	_ ledger.BatchWriter = (*Store)(nil)
)

// Store keeps the ledger in memory. Writes hold the store lock for the whole
// recompute, so balance updates for a student never interleave.
type Store struct {
	mu     sync.Mutex
	nextID int64
	items  []core.Record
}

func New(seed ...core.Record) *Store {
	s := &Store{}
	for _, r := range seed {
		// Seed records are trusted; balances are recomputed below.
		s.nextID++
		r.ID = s.nextID
		s.items = append(s.items, r)
	}
	s.recalculateAllLocked()
	return s
}

// ListRecords returns copies of the matching records.
func (s *Store) ListRecords(_ context.Context, f ledger.Filter) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Record, 0, len(s.items))
	for _, r := range s.items {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	f.Sort(out)
	return out, nil
}

func (s *Store) GetRecord(_ context.Context, id int64) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Record{}, fmt.Errorf("get record %d: %w", id, ledger.ErrNotFound)
	}
	return s.items[i], nil
}

// AddRecord stores the record and returns its new id.
func (s *Store) AddRecord(_ context.Context, r core.Record) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	s.items = append(s.items, r)
	s.recalculateLocked(r.StudentID)
	return r.ID, nil
}

// AddRecords stores a batch atomically: if any record is invalid nothing is
// stored. Each touched student is recomputed once.
func (s *Store) AddRecords(_ context.Context, recs []core.Record) ([]int64, error) {
	for i, r := range recs {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(recs))
	touched := make(map[string]struct{})
	for _, r := range recs {
		s.nextID++
		r.ID = s.nextID
		s.items = append(s.items, r)
		ids = append(ids, r.ID)
		touched[r.StudentID] = struct{}{}
	}
	for id := range touched {
		s.recalculateLocked(id)
	}
	return ids, nil
}

func (s *Store) UpdateRecord(_ context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(r.ID)
	if i < 0 {
		return fmt.Errorf("update record %d: %w", r.ID, ledger.ErrNotFound)
	}
	previous := s.items[i].StudentID
	s.items[i] = r
	s.recalculateLocked(r.StudentID)
	if previous != r.StudentID {
		s.recalculateLocked(previous)
	}
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete record %d: %w", id, ledger.ErrNotFound)
	}
	studentID := s.items[i].StudentID
	s.items = slices.Delete(s.items, i, i+1)
	s.recalculateLocked(studentID)
	return nil
}

// WriteBalances sets the balance of each listed record. Unknown ids are
// reported as ErrNotFound after the known ones are written.
func (s *Store) WriteBalances(_ context.Context, updates []analysis.BalanceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(updates)
}

func (s *Store) RecalculateBalances(_ context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recalculateLocked(studentID)
}

// RecalculateAll recomputes every student and returns how many there were.
func (s *Store) RecalculateAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recalculateAllLocked()
}

func (s *Store) recalculateAllLocked() (int, error) {
	seen := map[string]struct{}{}
	for _, r := range s.items {
		if _, ok := seen[r.StudentID]; ok {
			continue
		}
		seen[r.StudentID] = struct{}{}
		if err := s.recalculateLocked(r.StudentID); err != nil {
			return len(seen), err
		}
	}
	return len(seen), nil
}

func (s *Store) recalculateLocked(studentID string) error {
	var events []core.Record
	for _, r := range s.items {
		if r.StudentID == studentID {
			events = append(events, r)
		}
	}
	return s.writeLocked(analysis.ReconstructBalances(events, core.StartingBalance))
}

func (s *Store) writeLocked(updates []analysis.BalanceUpdate) error {
	var missing []int64
	for _, u := range updates {
		i := s.indexOf(u.ID)
		if i < 0 {
			missing = append(missing, u.ID)
			continue
		}
		s.items[i].Balance = u.Balance
	}
	if len(missing) > 0 {
		return fmt.Errorf("write balances for %v: %w", missing, ledger.ErrNotFound)
	}
	return nil
}

func (s *Store) indexOf(id int64) int {
	for i, r := range s.items {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
