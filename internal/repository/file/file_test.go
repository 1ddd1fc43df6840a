package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonrelay-bot/internal/domain/store"
)

func writeRaw(t *testing.T, path, content string) error {
	t.Helper()
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	repo := NewStoreRepository(filepath.Join(t.TempDir(), "data.json"))

	s, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Users)
	assert.Empty(t, s.Admins)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	repo := NewStoreRepository(path)
	ctx := context.Background()

	s := store.NewStore()
	s.Users[1] = &store.User{ID: 1, Handle: "@alice", Anon: 4242, MutedUntil: 100}
	s.Admins = []string{"@boss"}
	s.Banned = []string{"@troll"}
	s.Permissions["@boss"] = store.Capabilities{store.CapBroadcast: true}
	s.MessageCount = 3
	s.AdminChat = true

	require.NoError(t, repo.Save(ctx, s))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Admins, loaded.Admins)
	assert.Equal(t, s.Banned, loaded.Banned)
	assert.Equal(t, 3, loaded.MessageCount)
	assert.True(t, loaded.AdminChat)
	require.Contains(t, loaded.Users, int64(1))
	assert.Equal(t, 4242, loaded.Users[1].Anon)
	assert.True(t, loaded.Permissions["@boss"][store.CapBroadcast])
}

func TestLoadOldDocumentNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	repo := NewStoreRepository(path)
	ctx := context.Background()

	// Документ старой ревизии без части коллекций
	require.NoError(t, writeRaw(t, path, `{"users": null, "message_count": 1}`))

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, s.Users)
	assert.NotNil(t, s.Permissions)
	assert.Equal(t, 1, s.MessageCount)
}
