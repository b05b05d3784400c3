package store

import (
	"context"
	"sync"

	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// Store persists terminal backtest results keyed by task ID. Results are
// written once, after the run reaches a terminal status, and never updated.
type Store interface {
	Put(ctx context.Context, taskID string, result *types.BacktestResult) error
	Get(ctx context.Context, taskID string) (*types.BacktestResult, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryStore keeps results in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*types.BacktestResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]*types.BacktestResult),
	}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, taskID string, result *types.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[taskID] = result

	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, taskID string) (*types.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[taskID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeRunNotFound, "no result for task %s", taskID)
	}

	return result, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}

	return ids, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
