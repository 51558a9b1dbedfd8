package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"dormdesign/internal/domain"
	"dormdesign/internal/repository"
)

// RedisRoomCacheRepository 是 RoomCacheRepository 接口的 Redis 实现。
// 每个房间的完整文档以 JSON 字符串存在一个 key 中，不设置过期时间:
// 缓存记录的生命周期由 Hub 的 attach/detach 决定。
type RedisRoomCacheRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRoomCacheRepository 创建 RedisRoomCacheRepository 实例
func NewRedisRoomCacheRepository(client *redis.Client, keyPrefix string) *RedisRoomCacheRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisRoomCacheRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "dd:" // 默认前缀 (dormdesign)
	}
	return &RedisRoomCacheRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisRoomCacheRepository) roomKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s", r.keyPrefix, roomID)
}

// Exists 检查房间是否在缓存中
func (r *RedisRoomCacheRepository) Exists(ctx context.Context, id string) (bool, error) {
	key := r.roomKey(id)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check existence of %s: %w", key, err)
	}
	return n == 1, nil
}

// Get 读取缓存中的房间文档
func (r *RedisRoomCacheRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	key := r.roomKey(id)
	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("redis: failed to get room %s from %s: %w", id, key, err)
	}
	var room domain.Room
	if err := json.Unmarshal(payload, &room); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal room %s from %s: %w", id, key, err)
	}
	return &room, nil
}

// Set 用整个文档覆盖缓存记录
func (r *RedisRoomCacheRepository) Set(ctx context.Context, room *domain.Room) error {
	key := r.roomKey(room.ID)
	payload, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal room %s: %w", room.ID, err)
	}
	if err := r.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: failed to set room %s on %s: %w", room.ID, key, err)
	}
	return nil
}

// SetIfAbsent 使用 SETNX，仅在 key 不存在时写入
func (r *RedisRoomCacheRepository) SetIfAbsent(ctx context.Context, room *domain.Room) (bool, error) {
	key := r.roomKey(room.ID)
	payload, err := json.Marshal(room)
	if err != nil {
		return false, fmt.Errorf("redis: failed to marshal room %s: %w", room.ID, err)
	}
	ok, err := r.client.SetNX(ctx, key, payload, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to setnx room %s on %s: %w", room.ID, key, err)
	}
	return ok, nil
}

// Delete 删除缓存记录
func (r *RedisRoomCacheRepository) Delete(ctx context.Context, id string) (bool, error) {
	key := r.roomKey(id)
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to delete %s: %w", key, err)
	}
	return n > 0, nil
}
