package memory

import (
	"context"
	"sync"

	"quizlive-service/internal/domain"
)

// ResultStore keeps finished-session results in memory. Used when no durable
// history store is configured, and in tests.
type ResultStore struct {
	mu      sync.Mutex
	results []domain.SessionResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) ArchiveResult(_ context.Context, result domain.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Results returns a copy of everything archived so far.
func (s *ResultStore) Results() []domain.SessionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionResult, len(s.results))
	copy(out, s.results)
	return out
}
