package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/domain/store"
)

type memRepo struct {
	saved   *store.Store
	saves   int
	failing bool
}

func (r *memRepo) Load(ctx context.Context) (*store.Store, error) {
	if r.saved == nil {
		return store.NewStore(), nil
	}
	return r.saved, nil
}

func (r *memRepo) Save(ctx context.Context, s *store.Store) error {
	if r.failing {
		return errors.New("disk full")
	}
	r.saved = s.Clone()
	r.saves++
	return nil
}

func TestUpdatePersistsMutation(t *testing.T) {
	repo := &memRepo{}
	e := NewEngine(store.NewStore(), repo)

	err := e.Update(context.Background(), func(s *store.Store) error {
		s.MessageCount = 7
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.saves)
	assert.Equal(t, 7, repo.saved.MessageCount)
}

func TestUpdateRollsBackOnSaveFailure(t *testing.T) {
	repo := &memRepo{}
	e := NewEngine(store.NewStore(), repo)

	require.NoError(t, e.Update(context.Background(), func(s *store.Store) error {
		s.Admins = append(s.Admins, "@boss")
		return nil
	}))

	repo.failing = true
	err := e.Update(context.Background(), func(s *store.Store) error {
		s.Admins = append(s.Admins, "@intruder")
		s.MessageCount = 99
		return nil
	})
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.True(t, appErr.IsPersistence())

	// Неудачная запись не должна оставить следов в памяти
	e.View(func(s *store.Store) {
		assert.Equal(t, []string{"@boss"}, s.Admins)
		assert.Equal(t, 0, s.MessageCount)
	})
}

func TestUpdateRollsBackOnFnError(t *testing.T) {
	repo := &memRepo{}
	e := NewEngine(store.NewStore(), repo)

	boom := errors.New("validation failed")
	err := e.Update(context.Background(), func(s *store.Store) error {
		s.Banned = append(s.Banned, "@half-done")
		return boom
	})
	require.ErrorIs(t, err, boom)

	e.View(func(s *store.Store) {
		assert.Empty(t, s.Banned)
	})
	assert.Equal(t, 0, repo.saves)
}

func TestSnapshotIsValidJSON(t *testing.T) {
	e := NewEngine(store.NewStore(), &memRepo{})
	require.NoError(t, e.Update(context.Background(), func(s *store.Store) error {
		s.Users[42] = &store.User{ID: 42, Handle: "@someone", Anon: 1234}
		return nil
	}))

	data, err := e.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"@someone\"")
	assert.Contains(t, string(data), "\"anon\": 1234")
}
