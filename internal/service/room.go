package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dormdesign/internal/domain"
	"dormdesign/internal/repository"
)

// createAttempts 是分配 ID 冲突时的最大尝试次数
const createAttempts = 3

// RoomService 负责房间在持久化存储中的创建、查询和删除。
// 它也是 RoomCacheService 的加载来源和刷写目标。
type RoomService struct {
	roomRepo repository.RoomRepository
	newID    func() string
	now      func() time.Time
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	return &RoomService{
		roomRepo: roomRepo,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Create 创建一个新房间。
// templateID 非空时复制该模板的 data，未指定名称时命名为 "Copy of <模板名>"。
func (s *RoomService) Create(ctx context.Context, name *string, templateID *string) (*domain.Room, error) {
	logCtx := logrus.WithField("component", "room_service")

	data := domain.RoomData{
		Name:     domain.DefaultRoomName,
		Items:    []domain.Item{},
		Vertices: domain.DefaultVertices(),
	}
	if name != nil {
		normalized, err := NormalizeRoomName(*name)
		if err != nil {
			return nil, err
		}
		data.Name = normalized
	}

	var source *domain.Room
	if templateID != nil {
		logCtx = logCtx.WithField("template_id", *templateID)
		var err error
		source, err = s.GetByTemplateID(ctx, *templateID)
		if err != nil {
			return nil, err
		}
		copied := source.Data.Clone()
		copied.Name = data.Name
		if name == nil {
			copied.Name = truncateRunes("Copy of "+source.Data.Name, MaxRoomNameLength)
		}
		data = copied
	}

	room := &domain.Room{
		Data: data,
		MetaData: domain.RoomMetaData{
			LastModified: s.now().UnixMilli(),
		},
	}

	var err error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		room.ID = s.newID()
		room.TemplateID = s.newID()
		err = s.roomRepo.Create(ctx, room)
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			break
		}
		logCtx.WithField("attempt", attempt).Warn("Room identifier collision, retrying")
	}
	if err != nil {
		logCtx.WithError(err).Error("Failed to create room")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	if source != nil {
		if err := s.roomRepo.IncrementClones(ctx, source.ID); err != nil {
			logCtx.WithError(err).Warn("Failed to increment clone counter of source room")
		}
	}

	logCtx.Info("Room created")
	return room, nil
}

// Get 根据房间 ID 从持久化存储读取房间
func (s *RoomService) Get(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapFindError(err, ErrRoomNotFound, "room_id", id)
	}
	return room, nil
}

// GetByTemplateID 根据模板 ID 从持久化存储读取房间
func (s *RoomService) GetByTemplateID(ctx context.Context, templateID string) (*domain.Room, error) {
	room, err := s.roomRepo.FindByTemplateID(ctx, templateID)
	if err != nil {
		return nil, s.mapFindError(err, ErrTemplateNotFound, "template_id", templateID)
	}
	return room, nil
}

// ListFeatured 返回精选房间的名称和元数据，不包含房间 ID 和完整的 data。
func (s *RoomService) ListFeatured(ctx context.Context) ([]domain.TemplateSummary, error) {
	rooms, err := s.roomRepo.FindFeatured(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list featured rooms")
		return nil, ErrInternalServer
	}
	summaries := make([]domain.TemplateSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, domain.TemplateSummary{
			TemplateID: room.TemplateID,
			Name:       room.Data.Name,
			MetaData:   room.MetaData,
		})
	}
	return summaries, nil
}

// Delete 删除持久化记录
func (s *RoomService) Delete(ctx context.Context, id string) error {
	if err := s.roomRepo.Delete(ctx, id); err != nil {
		return s.mapFindError(err, ErrRoomNotFound, "room_id", id)
	}
	return nil
}

// Replace 用 room 覆盖持久化记录 (featured 和 totalClones 除外)
func (s *RoomService) Replace(ctx context.Context, room *domain.Room) error {
	if err := s.roomRepo.Replace(ctx, room); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, room.ID)
		}
		return fmt.Errorf("replace room %s: %w", room.ID, err)
	}
	return nil
}

// IncrementClones 把房间的克隆计数加一
func (s *RoomService) IncrementClones(ctx context.Context, id string) error {
	if err := s.roomRepo.IncrementClones(ctx, id); err != nil {
		return s.mapFindError(err, ErrRoomNotFound, "room_id", id)
	}
	return nil
}

func (s *RoomService) mapFindError(err, notFound error, key, value string) error {
	if errors.Is(err, repository.ErrRoomNotFound) {
		return fmt.Errorf("%w: %s", notFound, value)
	}
	logrus.WithError(err).WithField(key, value).Error("Room repository error")
	return ErrInternalServer
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
