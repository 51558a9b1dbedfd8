package redisstate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstate "dormdesign/internal/infra/state/redis"
	"dormdesign/internal/repository"
	"dormdesign/internal/testfixtures"
)

func TestRedisRoomCacheRepository_Lifecycle(t *testing.T) {
	mr, client := testfixtures.NewRedis(t)
	repo := redisstate.NewRedisRoomCacheRepository(client, "test:")
	ctx := context.Background()
	room := testfixtures.Room("r1", "Dorm")

	exists, err := repo.Exists(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Get(ctx, "r1")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)

	require.NoError(t, repo.Set(ctx, room))
	assert.True(t, mr.Exists("test:room:r1"), "key should use the configured prefix")

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, room, got)

	removed, err := repo.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisRoomCacheRepository_SetIfAbsent(t *testing.T) {
	_, client := testfixtures.NewRedis(t)
	repo := redisstate.NewRedisRoomCacheRepository(client, "")
	ctx := context.Background()

	first := testfixtures.Room("r1", "First")
	second := testfixtures.Room("r1", "Second")

	inserted, err := repo.SetIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.SetIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted, "second loader must not overwrite the cached document")

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Data.Name)
}

func TestRedisRoomCacheRepository_CorruptPayload(t *testing.T) {
	mr, client := testfixtures.NewRedis(t)
	repo := redisstate.NewRedisRoomCacheRepository(client, "dd:")
	require.NoError(t, mr.Set("dd:room:bad", "{not json"))

	_, err := repo.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestRedisRoomCacheRepository_StoreUnavailable(t *testing.T) {
	mr, client := testfixtures.NewRedis(t)
	repo := redisstate.NewRedisRoomCacheRepository(client, "dd:")
	mr.Close()

	_, err := repo.Exists(context.Background(), "r1")
	assert.Error(t, err)
}
