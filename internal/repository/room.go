package repository

import (
	"context"

	"dormdesign/internal/domain"
)

// RoomRepository 定义了房间文档在持久化存储中的操作。
type RoomRepository interface {
	// Create 插入一个新房间。
	// template_id 冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room) error

	// FindByID 根据房间 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id string) (*domain.Room, error)

	// FindByTemplateID 根据模板 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindByTemplateID(ctx context.Context, templateID string) (*domain.Room, error)

	// FindFeatured 返回所有 featured 的房间。
	FindFeatured(ctx context.Context) ([]domain.Room, error)

	// Replace 用缓存中的文档覆盖持久化记录。
	// featured 和 totalClones 由持久化存储维护，不会被覆盖。
	// 记录不存在时返回 ErrRoomNotFound。
	Replace(ctx context.Context, room *domain.Room) error

	// Delete 删除房间，不存在时返回 ErrRoomNotFound。
	Delete(ctx context.Context, id string) error

	// IncrementClones 原子地将房间的克隆计数加一。
	IncrementClones(ctx context.Context, id string) error
}
