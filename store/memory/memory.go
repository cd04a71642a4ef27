// Package memory provides an in-process revision store.
package memory

import (
	"context"
	"sync"

	"github.com/mickamy/revisionable"
)

// Store keeps revisions in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	records []revisionable.Record

	// OnDelete, when set, is called for every deleted revision.
	OnDelete func(ctx context.Context, rec revisionable.Record) error
	// FailInsert, when set, is returned by InsertRevisions before anything is stored.
	FailInsert error
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

var _ revisionable.HistoryStore = (*Store)(nil)

func (s *Store) InsertRevisions(_ context.Context, records []revisionable.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	for _, rec := range records {
		s.nextID++
		rec.ID = s.nextID
		s.records = append(s.records, rec)
	}
	return nil
}

func (s *Store) DeleteOldestRevisions(ctx context.Context, ref revisionable.Ref, keep, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []int
	for i, rec := range s.records {
		if rec.Ref() == ref {
			matched = append(matched, i)
		}
	}
	excess := len(matched) - keep
	if excess <= 0 {
		return 0, nil
	}
	if limit > 0 && excess > limit {
		excess = limit
	}

	drop := make(map[int]struct{}, excess)
	deleted := 0
	for _, i := range matched[:excess] {
		if s.OnDelete != nil {
			if err := s.OnDelete(ctx, s.records[i]); err != nil {
				s.compact(drop)
				return deleted, err
			}
		}
		drop[i] = struct{}{}
		deleted++
	}
	s.compact(drop)
	return deleted, nil
}

func (s *Store) compact(drop map[int]struct{}) {
	if len(drop) == 0 {
		return
	}
	kept := s.records[:0]
	for i, rec := range s.records {
		if _, ok := drop[i]; !ok {
			kept = append(kept, rec)
		}
	}
	s.records = kept
}

func (s *Store) CountRevisions(_ context.Context, ref revisionable.Ref) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if rec.Ref() == ref {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListRevisions(_ context.Context, ref revisionable.Ref) ([]revisionable.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []revisionable.Record
	for _, rec := range s.records {
		if rec.Ref() == ref {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns a copy of every stored revision in insertion order.
func (s *Store) All() []revisionable.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]revisionable.Record, len(s.records))
	copy(out, s.records)
	return out
}
