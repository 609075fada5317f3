package txlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/bankee/internal/apperr"
)

type inMemoryStore struct {
	mu         sync.Mutex
	records    map[string]Record
	failAppend error
	failUpdate error
}

// NewInMemory creates a concurrency-safe in-memory log store for tests and
// local development.
func NewInMemory() Store {
	return &inMemoryStore{records: make(map[string]Record)}
}

func (s *inMemoryStore) Append(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(rec)
	if s.failAppend != nil {
		err := s.failAppend
		s.failAppend = nil
		return err
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("%w: record %s exists", apperr.ErrConflict, rec.ID)
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *inMemoryStore) Find(_ context.Context, f Filter) (Page, error) {
	f = f.Normalize()
	s.mu.Lock()
	var matched []Record
	for _, rec := range s.records {
		if matches(rec, f) {
			matched = append(matched, rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := Page{Total: int64(len(matched)), Page: f.Page, Limit: f.Limit}
	start := f.skip()
	if start < len(matched) {
		end := start + f.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Records = append([]Record(nil), matched[start:end]...)
	}
	return page, nil
}

func (s *inMemoryStore) Due(_ context.Context, q DueQuery) ([]Record, error) {
	s.mu.Lock()
	var due []Record
	for _, rec := range s.records {
		if isDue(rec, q.CreatedBefore, q.ClaimedBefore) {
			due = append(due, rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if q.Limit > 0 && len(due) > q.Limit {
		due = due[:q.Limit]
	}
	return due, nil
}

func (s *inMemoryStore) Claim(_ context.Context, id string, at, staleBefore time.Time) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Type != TypeWalletFund {
		return Record{}, false, nil
	}
	stale := rec.Status == StatusProcessing && rec.ClaimedAt != nil && !rec.ClaimedAt.After(staleBefore)
	if rec.Status != StatusPending && !stale {
		return Record{}, false, nil
	}
	claimedAt := at.UTC()
	rec.Status = StatusProcessing
	rec.ClaimedAt = &claimedAt
	rec.UpdatedAt = claimedAt
	s.records[id] = rec
	return rec, true, nil
}

func (s *inMemoryStore) UpdateStatus(_ context.Context, id string, to Status, reason string) error {
	if to != StatusCompleted && to != StatusFailed {
		return apperr.Invalid("cannot finalize record with status %q", to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		err := s.failUpdate
		s.failUpdate = nil
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, apperr.ErrNotFound)
	}
	if rec.Status == to {
		return nil
	}
	if !rec.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: record %s is %s", apperr.ErrConflict, id, rec.Status)
	}
	rec.Status = to
	rec.FailureReason = reason
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return nil
}

func stamp(rec *Record) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Status == "" {
		rec.Status = StatusSuccessful
	}
}

func matches(rec Record, f Filter) bool {
	if f.UserID != 0 && rec.UserID != f.UserID {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

func isDue(rec Record, createdBefore, claimedBefore time.Time) bool {
	if rec.Type != TypeWalletFund {
		return false
	}
	switch rec.Status {
	case StatusPending:
		return !rec.CreatedAt.After(createdBefore)
	case StatusProcessing:
		return rec.ClaimedAt != nil && !rec.ClaimedAt.After(claimedBefore)
	default:
		return false
	}
}
