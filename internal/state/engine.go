package state

import (
	"context"
	"encoding/json"
	"sync"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/repository"
)

// Engine owns the shared store. Every read-decide-write runs as one critical
// section under its mutex; a failed update (including a failed save) leaves
// the in-memory store exactly as it was.
type Engine struct {
	mu   sync.Mutex
	s    *store.Store
	repo repository.StoreRepository
}

func NewEngine(s *store.Store, repo repository.StoreRepository) *Engine {
	if s == nil {
		s = store.NewStore()
	}
	s.Normalize()
	return &Engine{s: s, repo: repo}
}

// Update applies fn to the store and flushes the whole document. When fn
// returns an error, or the flush fails, the store is restored from a
// snapshot so the mutation never becomes observable.
func (e *Engine) Update(ctx context.Context, fn func(s *store.Store) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.s.Clone()
	if err := fn(e.s); err != nil {
		e.s = snapshot
		return err
	}
	if err := e.repo.Save(ctx, e.s); err != nil {
		e.s = snapshot
		return apperrors.NewPersistenceError("save", err)
	}
	return nil
}

// View runs fn with read access under the lock. fn must not retain
// references to store internals past its return.
func (e *Engine) View(fn func(s *store.Store)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.s)
}

// Snapshot serializes the current store document, for the export capability.
func (e *Engine) Snapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return json.MarshalIndent(e.s, "", "  ")
}
