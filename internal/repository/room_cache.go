package repository

import (
	"context"

	"dormdesign/internal/domain"
)

// RoomCacheRepository 定义了房间文档在临时存储 (Redis) 中的操作。
// 一个房间对应一条完整的缓存记录，读写都以整个文档为单位。
type RoomCacheRepository interface {
	// Exists 检查房间是否在缓存中
	Exists(ctx context.Context, id string) (bool, error)

	// Get 读取缓存中的房间文档，不存在时返回 ErrRoomNotFound。
	Get(ctx context.Context, id string) (*domain.Room, error)

	// Set 用整个文档覆盖缓存记录
	Set(ctx context.Context, room *domain.Room) error

	// SetIfAbsent 仅当缓存中没有该房间时写入，返回是否写入成功。
	// 用于首次加载的并发竞争。
	SetIfAbsent(ctx context.Context, room *domain.Room) (bool, error)

	// Delete 删除缓存记录，返回是否真的删除了 key
	Delete(ctx context.Context, id string) (bool, error)
}
