package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dormdesign/internal/domain"
	"dormdesign/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// Create 插入新房间，ID 或 TemplateID 冲突时返回 ErrDuplicateEntry
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Create(toRecord(room)).Error; err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (id: %s, template_id: %s): %w", room.ID, room.TemplateID, err)
	}
	return nil
}

// FindByID 根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByTemplateID 根据模板 ID 查找房间
func (r *GormRoomRepository) FindByTemplateID(ctx context.Context, templateID string) (*domain.Room, error) {
	return r.findOne(ctx, "template_id = ?", templateID)
}

func (r *GormRoomRepository) findOne(ctx context.Context, query string, arg string) (*domain.Room, error) {
	var record RoomRecord
	err := r.db.WithContext(ctx).Where(query, arg).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room where %s %s: %w", query, arg, err)
	}
	return record.toDomain(), nil
}

// FindFeatured 返回所有精选房间。只查询名称和元数据列，返回的 Room 中 Items 和 Vertices 为空。
func (r *GormRoomRepository) FindFeatured(ctx context.Context) ([]domain.Room, error) {
	var records []RoomRecord
	err := r.db.WithContext(ctx).
		Select("id", "template_id", "name", "featured", "total_clones", "last_modified").
		Where("featured = ?", true).
		Order("total_clones DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find featured rooms: %w", err)
	}
	rooms := make([]domain.Room, 0, len(records))
	for _, rec := range records {
		rooms = append(rooms, domain.Room{
			ID:         rec.ID,
			TemplateID: rec.TemplateID,
			Data:       domain.RoomData{Name: rec.Name},
			MetaData: domain.RoomMetaData{
				Featured:     rec.Featured,
				TotalClones:  rec.TotalClones,
				LastModified: rec.LastModified,
			},
		})
	}
	return rooms, nil
}

// Replace 用缓存中的文档覆盖持久化记录。
// featured 和 totalClones 由持久层维护，不会被覆盖。
func (r *GormRoomRepository) Replace(ctx context.Context, room *domain.Room) error {
	result := r.db.WithContext(ctx).Model(&RoomRecord{}).
		Where("id = ?", room.ID).
		Updates(map[string]interface{}{
			"name":          room.Data.Name,
			"data":          datatypes.NewJSONType(room.Data),
			"last_modified": room.MetaData.LastModified,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: replace room %s: %w", room.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL 在值未变化时 RowsAffected 也为 0，需要区分
		return r.ensureExists(ctx, room.ID)
	}
	return nil
}

// Delete 删除房间
func (r *GormRoomRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&RoomRecord{})
	if result.Error != nil {
		return fmt.Errorf("gorm: delete room %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

// IncrementClones 原子地将房间的 total_clones 加一
func (r *GormRoomRepository) IncrementClones(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&RoomRecord{}).
		Where("id = ?", id).
		UpdateColumn("total_clones", gorm.Expr("total_clones + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("gorm: increment clones of room %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

func (r *GormRoomRepository) ensureExists(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&RoomRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("gorm: count room %s: %w", id, err)
	}
	if count == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	// 开启 TranslateError 后各驱动的唯一约束错误统一为 ErrDuplicatedKey
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
