// Package memstore keeps short-lived per-learner state in memory.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/darslik/core/quiz"
)

const DefaultTTL = 2 * time.Hour

type entry struct {
	sel     quiz.Selection
	expires time.Time
}

// SelectionStore is an in-memory quiz.SelectionStore. Entries expire after ttl.
type SelectionStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

var _ quiz.SelectionStore = (*SelectionStore)(nil) // interface compliance check

func NewSelectionStore(ttl time.Duration) *SelectionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SelectionStore{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (s *SelectionStore) Get(_ context.Context, key string) (quiz.Selection, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return quiz.Selection{}, false
	}
	if s.now().After(e.expires) {
		// a Put may have refreshed the entry since the read lock was released
		s.mu.Lock()
		e, ok = s.entries[key]
		if ok && s.now().After(e.expires) {
			delete(s.entries, key)
			ok = false
		}
		s.mu.Unlock()
		if !ok {
			return quiz.Selection{}, false
		}
	}
	sel := e.sel
	sel.QuestionIDs = append([]int64(nil), sel.QuestionIDs...)
	return sel, true
}

func (s *SelectionStore) Put(_ context.Context, key string, sel quiz.Selection) {
	sel.QuestionIDs = append([]int64(nil), sel.QuestionIDs...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{sel: sel, expires: s.now().Add(s.ttl)}
}

func (s *SelectionStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of stored entries, expired ones included.
func (s *SelectionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Purge drops the expired entries and returns how many were dropped.
func (s *SelectionStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Run purges expired entries every interval until ctx is done.
func (s *SelectionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Purge()
		}
	}
}
