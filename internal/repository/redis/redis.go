package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/repository"
)

// Open creates a new Redis client and pings it to validate the connection.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

type storeRepository struct {
	client *redis.Client
	key    string
}

// NewStoreRepository persists the store document as one JSON value under a
// single key.
func NewStoreRepository(client *redis.Client, key string) repository.StoreRepository {
	return &storeRepository{client: client, key: key}
}

func (r *storeRepository) Load(ctx context.Context) (*store.Store, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return store.NewStore(), nil
		}
		return nil, err
	}

	s := store.NewStore()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	s.Normalize()
	return s, nil
}

func (r *storeRepository) Save(ctx context.Context, s *store.Store) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, 0).Err()
}
