package repository

import (
	"context"

	"anonrelay-bot/internal/domain/store"
)

// StoreRepository is the persistence port. The store is read whole at
// startup and rewritten whole after every mutation; there are no partial
// writes.
type StoreRepository interface {
	Load(ctx context.Context) (*store.Store, error)
	Save(ctx context.Context, s *store.Store) error
}
