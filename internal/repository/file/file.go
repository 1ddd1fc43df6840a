package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/repository"
)

type storeRepository struct {
	path string
}

// NewStoreRepository persists the store document as one JSON file.
func NewStoreRepository(path string) repository.StoreRepository {
	return &storeRepository{path: path}
}

func (r *storeRepository) Load(ctx context.Context) (*store.Store, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return store.NewStore(), nil
		}
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}

	s := store.NewStore()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	s.Normalize()
	return s, nil
}

func (r *storeRepository) Save(ctx context.Context, s *store.Store) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Пишем во временный файл и переименовываем, чтобы не потерять
	// документ при падении посреди записи
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".store-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}
