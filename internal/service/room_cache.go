package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dormdesign/internal/domain"
	"dormdesign/internal/metrics"
	"dormdesign/internal/repository"
)

// RoomCacheService 负责缓存中房间文档的读-改-写。
// 同一房间的所有修改、加载和刷写都持有该房间的锁，互不交错。
type RoomCacheService struct {
	cache repository.RoomCacheRepository
	rooms *RoomService
	items *ItemService
	locks *roomLocks
	now   func() time.Time

	flushAttempts int
	flushBackoff  time.Duration
}

// CacheOption 配置 RoomCacheService
type CacheOption func(*RoomCacheService)

// WithFlushRetry 设置空房刷写的重试次数和线性退避间隔
func WithFlushRetry(attempts int, backoff time.Duration) CacheOption {
	return func(s *RoomCacheService) {
		if attempts > 0 {
			s.flushAttempts = attempts
		}
		if backoff >= 0 {
			s.flushBackoff = backoff
		}
	}
}

// WithClock 替换用于 lastModified 的时钟
func WithClock(now func() time.Time) CacheOption {
	return func(s *RoomCacheService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRoomCacheService 创建 RoomCacheService 实例。
func NewRoomCacheService(
	cache repository.RoomCacheRepository,
	rooms *RoomService,
	items *ItemService,
	opts ...CacheOption,
) *RoomCacheService {
	if cache == nil || rooms == nil || items == nil {
		panic("RoomCacheRepository, RoomService and ItemService must be non-nil for RoomCacheService")
	}
	s := &RoomCacheService{
		cache:         cache,
		rooms:         rooms,
		items:         items,
		locks:         newRoomLocks(),
		now:           time.Now,
		flushAttempts: 3,
		flushBackoff:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists 报告房间当前是否在缓存中
func (s *RoomCacheService) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.cache.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check cached room %s: %w", id, err)
	}
	return ok, nil
}

// Load 在房间不在缓存中时从持久化存储加载。
// 并发的首次加载只有一个会写入缓存。
func (s *RoomCacheService) Load(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	logCtx := logrus.WithFields(logrus.Fields{"component": "room_cache", "room_id": id})
	if ok, err := s.Exists(ctx, id); err != nil {
		return err
	} else if ok {
		return nil
	}

	room, err := s.rooms.Get(ctx, id)
	if err != nil {
		return err
	}
	inserted, err := s.cache.SetIfAbsent(ctx, room)
	if err != nil {
		return fmt.Errorf("load room %s into cache: %w", id, err)
	}
	if inserted {
		logCtx.Info("Room loaded into cache")
	} else {
		logCtx.Debug("Room already cached by another loader")
	}
	return nil
}

// Evict 从缓存中移除房间，返回是否确实删除了记录
func (s *RoomCacheService) Evict(ctx context.Context, id string) (bool, error) {
	removed, err := s.cache.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("evict room %s: %w", id, err)
	}
	return removed, nil
}

// Lookup 返回房间的最新副本: 房间活跃时取缓存，否则取持久化记录。
func (s *RoomCacheService) Lookup(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.cache.Get(ctx, id)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repository.ErrRoomNotFound) {
		logrus.WithError(err).WithField("room_id", id).Warn("Cache read failed, falling back to durable store")
	}
	return s.rooms.Get(ctx, id)
}

// LookupTemplate 根据模板 ID 返回房间的最新副本
func (s *RoomCacheService) LookupTemplate(ctx context.Context, templateID string) (*domain.Room, error) {
	room, err := s.rooms.GetByTemplateID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	cached, err := s.cache.Get(ctx, room.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrRoomNotFound) {
			logrus.WithError(err).WithField("room_id", room.ID).Warn("Cache read failed, using durable copy")
		}
		return room, nil
	}
	return cached, nil
}

// mutate 在房间锁内执行 读取 -> 修改 -> 更新 lastModified -> 写回。
// fn 返回错误时不写回。
func (s *RoomCacheService) mutate(ctx context.Context, id string, fn func(room *domain.Room) error) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	room, err := s.cache.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
		}
		return fmt.Errorf("read cached room %s: %w", id, err)
	}
	if err := fn(room); err != nil {
		return err
	}

	// lastModified 单调不减，即使时钟回拨
	now := s.now().UnixMilli()
	if now < room.MetaData.LastModified {
		now = room.MetaData.LastModified
	}
	room.MetaData.LastModified = now

	if err := s.cache.Set(ctx, room); err != nil {
		return fmt.Errorf("write cached room %s: %w", id, err)
	}
	return nil
}

// AddItem 创建物品并追加到房间
func (s *RoomCacheService) AddItem(ctx context.Context, id string, input domain.NewItem) (domain.Item, error) {
	item, err := s.items.Create(input)
	if err != nil {
		return domain.Item{}, err
	}
	err = s.mutate(ctx, id, func(room *domain.Room) error {
		room.Data.Items = append(room.Data.Items, item.Clone())
		return nil
	})
	if err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

// UpdateItems 把每个更新合并到对应物品上，未知 ID 被忽略。
// 任何一个更新不合法时整个请求失败，文档不变。
func (s *RoomCacheService) UpdateItems(ctx context.Context, id string, updates []domain.ItemUpdate) ([]domain.ItemUpdate, error) {
	if updates == nil {
		return nil, NewValidationError("Array 'items' is undefined")
	}
	for i, u := range updates {
		if u.ID == "" {
			return nil, NewValidationError("'items[%d].id' is required", i)
		}
		if err := s.items.ValidatePatch(u.Updated); err != nil {
			return nil, err
		}
	}
	err := s.mutate(ctx, id, func(room *domain.Room) error {
		for _, u := range updates {
			if idx := room.Data.FindItem(u.ID); idx >= 0 {
				if err := s.items.Update(&room.Data.Items[idx], u.Updated); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// RemoveItem 删除物品，物品不存在时返回 ErrItemNotFound
func (s *RoomCacheService) RemoveItem(ctx context.Context, id, itemID string) error {
	if itemID == "" {
		return NewValidationError("Item ID is undefined")
	}
	return s.mutate(ctx, id, func(room *domain.Room) error {
		idx := room.Data.FindItem(itemID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		room.Data.Items = append(room.Data.Items[:idx], room.Data.Items[idx+1:]...)
		return nil
	})
}

type layoutInput struct {
	Vertices []domain.Position `json:"vertices" validate:"required,min=3,dive"`
}

// UpdateVertices 替换房间边界，至少需要 3 个顶点
func (s *RoomCacheService) UpdateVertices(ctx context.Context, id string, vertices []domain.Position) error {
	if err := validateStruct(layoutInput{Vertices: vertices}); err != nil {
		return err
	}
	copied := make([]domain.Position, len(vertices))
	copy(copied, vertices)
	return s.mutate(ctx, id, func(room *domain.Room) error {
		room.Data.Vertices = copied
		return nil
	})
}

// UpdateName 修改房间名称，返回去掉首尾空白后的名称
func (s *RoomCacheService) UpdateName(ctx context.Context, id, name string) (string, error) {
	normalized, err := NormalizeRoomName(name)
	if err != nil {
		return "", err
	}
	err = s.mutate(ctx, id, func(room *domain.Room) error {
		room.Data.Name = normalized
		return nil
	})
	if err != nil {
		return "", err
	}
	return normalized, nil
}

// CloneFrom 用模板房间的 data 替换房间的 data，并增加模板的克隆计数。
func (s *RoomCacheService) CloneFrom(ctx context.Context, id, templateID string) (domain.RoomData, error) {
	if templateID == "" {
		return domain.RoomData{}, NewValidationError("'templateId' is undefined")
	}
	logCtx := logrus.WithFields(logrus.Fields{"component": "room_cache", "room_id": id, "template_id": templateID})

	// 模板在加锁前读取，模板房间可能就是当前房间
	source, err := s.LookupTemplate(ctx, templateID)
	if err != nil {
		return domain.RoomData{}, err
	}
	data := source.Data.Clone()

	err = s.mutate(ctx, id, func(room *domain.Room) error {
		room.Data = data.Clone()
		return nil
	})
	if err != nil {
		return domain.RoomData{}, err
	}

	if err := s.rooms.IncrementClones(ctx, source.ID); err != nil {
		logCtx.WithError(err).Warn("Failed to increment clone counter of template room")
	}
	logCtx.Info("Room cloned from template")
	return data, nil
}

// DeleteRoom 删除房间的持久化记录和缓存记录。
// 已连接的会话不会被断开，后续事件会在分发时被拒绝。
func (s *RoomCacheService) DeleteRoom(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	logCtx := logrus.WithFields(logrus.Fields{"component": "room_cache", "room_id": id})
	if err := s.rooms.Delete(ctx, id); err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			return err
		}
		logCtx.Warn("Durable record already gone while deleting room")
	}
	if _, err := s.Evict(ctx, id); err != nil {
		return err
	}
	logCtx.Info("Room deleted")
	return nil
}

// Flush 把缓存记录写回持久化存储而不移除缓存。
// 房间不在缓存中时返回 false 且不报错。
func (s *RoomCacheService) Flush(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.flushLocked(ctx, id)
}

func (s *RoomCacheService) flushLocked(ctx context.Context, id string) (bool, error) {
	room, err := s.cache.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			metrics.RoomFlushes.WithLabelValues(metrics.FlushNoop).Inc()
			return false, nil
		}
		metrics.RoomFlushes.WithLabelValues(metrics.FlushError).Inc()
		return false, fmt.Errorf("read cached room %s: %w", id, err)
	}
	if err := s.rooms.Replace(ctx, room); err != nil {
		metrics.RoomFlushes.WithLabelValues(metrics.FlushError).Inc()
		return false, err
	}
	metrics.RoomFlushes.WithLabelValues(metrics.FlushOK).Inc()
	return true, nil
}

// Vacate 在房间变空后刷写并移除缓存记录。
// vacant 在锁内再次确认房间仍然为空；期间有新会话加入时什么也不做。
// 刷写按配置重试，最终失败只记录日志，不返回错误。
func (s *RoomCacheService) Vacate(ctx context.Context, id string, vacant func() bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	logCtx := logrus.WithFields(logrus.Fields{"component": "room_cache", "room_id": id})
	if vacant != nil && !vacant() {
		logCtx.Debug("Room reoccupied before vacancy flush, keeping cache")
		return nil
	}

	var err error
	for attempt := 1; attempt <= s.flushAttempts; attempt++ {
		var flushed bool
		flushed, err = s.flushLocked(ctx, id)
		if err == nil {
			if flushed {
				logCtx.Debug("Room flushed to durable store")
			}
			break
		}
		logCtx.WithError(err).WithField("attempt", attempt).Warn("Vacancy flush failed")
		if attempt < s.flushAttempts && !sleepCtx(ctx, time.Duration(attempt)*s.flushBackoff) {
			break
		}
	}
	if err != nil {
		metrics.RoomFlushes.WithLabelValues(metrics.FlushDropped).Inc()
		logCtx.WithError(err).Error("Giving up vacancy flush, cached changes are lost")
	}

	if _, err := s.Evict(ctx, id); err != nil {
		return err
	}
	logCtx.Info("Room evicted from cache")
	return nil
}

// sleepCtx 等待 d 或 ctx 结束，ctx 先结束时返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
