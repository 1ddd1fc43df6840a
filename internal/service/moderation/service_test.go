package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/state"
)

type memRepo struct{}

func (memRepo) Load(ctx context.Context) (*store.Store, error) { return store.NewStore(), nil }
func (memRepo) Save(ctx context.Context, s *store.Store) error { return nil }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newService(t *testing.T) (*Service, *state.Engine, *fakeClock) {
	t.Helper()
	engine := state.NewEngine(store.NewStore(), memRepo{})
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := NewService(engine).WithClock(clock.Now)

	require.NoError(t, engine.Update(context.Background(), func(st *store.Store) error {
		st.Users[1] = &store.User{ID: 1, Handle: "@b", Anon: 1234}
		return nil
	}))
	return svc, engine, clock
}

func TestMuteMonotonicity(t *testing.T) {
	svc, _, clock := newService(t)
	ctx := context.Background()

	require.True(t, svc.IsPostable(1))

	// Мут на 1 минуту: сразу нельзя, через 30с всё ещё нельзя, после — можно
	require.NoError(t, svc.Mute(ctx, 1, 1))
	assert.False(t, svc.IsPostable(1))

	clock.Advance(30 * time.Second)
	assert.False(t, svc.IsPostable(1))

	clock.Advance(31 * time.Second)
	assert.True(t, svc.IsPostable(1))
}

func TestMuteRejectsNegativeDuration(t *testing.T) {
	svc, _, _ := newService(t)

	err := svc.Mute(context.Background(), 1, -5)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.True(t, appErr.IsValidation())
	assert.True(t, svc.IsPostable(1))
}

func TestMuteZeroClears(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Mute(ctx, 1, 60))
	require.False(t, svc.IsPostable(1))

	require.NoError(t, svc.Mute(ctx, 1, 0))
	assert.True(t, svc.IsPostable(1))
}

func TestMuteUnknownUser(t *testing.T) {
	svc, _, _ := newService(t)

	err := svc.Mute(context.Background(), 404, 5)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.True(t, appErr.IsNotFound())
}

func TestBanIsIdempotent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	banned, err := svc.Ban(ctx, "@b")
	require.NoError(t, err)
	assert.True(t, banned)

	again, err := svc.Ban(ctx, "@b")
	require.NoError(t, err)
	assert.False(t, again, "second ban reports already banned")

	assert.False(t, svc.IsPostable(1))
}

func TestUnban(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	removed, err := svc.Unban(ctx, "@b")
	require.NoError(t, err)
	assert.False(t, removed, "unban of a non-banned handle reports not banned")

	_, err = svc.Ban(ctx, "@b")
	require.NoError(t, err)

	removed, err = svc.Unban(ctx, "@b")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, svc.IsPostable(1))
}

func TestBanHasNoExpiry(t *testing.T) {
	svc, _, clock := newService(t)

	_, err := svc.Ban(context.Background(), "@b")
	require.NoError(t, err)

	clock.Advance(1000 * time.Hour)
	assert.False(t, svc.IsPostable(1))
}
