package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/state"
)

type memRepo struct {
	saves int
}

func (r *memRepo) Load(ctx context.Context) (*store.Store, error) { return store.NewStore(), nil }
func (r *memRepo) Save(ctx context.Context, s *store.Store) error {
	r.saves++
	return nil
}

func newService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := &memRepo{}
	return NewService(state.NewEngine(store.NewStore(), repo), 1000, 99999), repo
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, 100, "@alice")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.saves)

	// Повторная регистрация никогда не меняет псевдоним
	for i := 0; i < 5; i++ {
		again, err := svc.Register(ctx, 100, "@alice")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 1, repo.saves)
}

func TestRegisterRefreshesHandleKeepsAnon(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	anon, err := svc.Register(ctx, 100, "@alice")
	require.NoError(t, err)

	renamed, err := svc.Register(ctx, 100, "@alice_new")
	require.NoError(t, err)
	assert.Equal(t, anon, renamed)

	handle, ok := svc.HandleOf(100)
	require.True(t, ok)
	assert.Equal(t, "@alice_new", handle)
}

func TestAnonWithinConfiguredRange(t *testing.T) {
	svc, _ := newService(t)
	for id := int64(1); id <= 50; id++ {
		anon, err := svc.Register(context.Background(), id, "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, anon, 1000)
		assert.LessOrEqual(t, anon, 99999)
	}
}

func TestAnonIsUnique(t *testing.T) {
	repo := &memRepo{}
	// Узкий диапазон заставляет аллокатор разруливать коллизии
	svc := NewService(state.NewEngine(store.NewStore(), repo), 1, 20)

	seen := make(map[int]bool)
	for id := int64(1); id <= 20; id++ {
		anon, err := svc.Register(context.Background(), id, "")
		require.NoError(t, err)
		assert.False(t, seen[anon], "suffix %d allocated twice", anon)
		seen[anon] = true
	}
}

func TestHandleCollisionMostRecentWins(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	anonOld, err := svc.Register(ctx, 1, "@shared")
	require.NoError(t, err)
	_, err = svc.Register(ctx, 2, "@shared")
	require.NoError(t, err)

	id, ok := svc.IDByHandle("@shared")
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	// Старый владелец сохраняет свой псевдоним
	name, ok := svc.PseudonymOf(1)
	require.True(t, ok)
	assert.Equal(t, Pseudonym(anonOld), name)
}

func TestIDByHandleIsCaseSensitive(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Register(context.Background(), 1, "@Alice")
	require.NoError(t, err)

	_, ok := svc.IDByHandle("@alice")
	assert.False(t, ok)
}

func TestIDByAnon(t *testing.T) {
	svc, _ := newService(t)
	anon, err := svc.Register(context.Background(), 77, "@bob")
	require.NoError(t, err)

	id, ok := svc.IDByAnon(anon)
	require.True(t, ok)
	assert.Equal(t, int64(77), id)

	_, ok = svc.IDByAnon(anon + 1234567)
	assert.False(t, ok)
}
