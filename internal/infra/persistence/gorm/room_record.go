package gormpersistence

import (
	"time"

	"gorm.io/datatypes"

	"dormdesign/internal/domain"
)

// RoomRecord 是 rooms 表的一行。
// data 块整体存为 JSON 列，name 冗余一份用于精选列表查询。
type RoomRecord struct {
	ID           string                              `gorm:"primaryKey;size:36"`
	TemplateID   string                              `gorm:"uniqueIndex;size:36;not null"`
	Name         string                              `gorm:"size:191;not null"`
	Data         datatypes.JSONType[domain.RoomData] `gorm:"not null"`
	Featured     bool                                `gorm:"index;not null"`
	TotalClones  int                                 `gorm:"not null"`
	LastModified int64                               `gorm:"not null"` // Unix 毫秒
	CreatedAt    time.Time                           `gorm:"autoCreateTime"`
	UpdatedAt    time.Time                           `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (RoomRecord) TableName() string { return "rooms" }

func toRecord(room *domain.Room) *RoomRecord {
	return &RoomRecord{
		ID:           room.ID,
		TemplateID:   room.TemplateID,
		Name:         room.Data.Name,
		Data:         datatypes.NewJSONType(room.Data),
		Featured:     room.MetaData.Featured,
		TotalClones:  room.MetaData.TotalClones,
		LastModified: room.MetaData.LastModified,
	}
}

func (r *RoomRecord) toDomain() *domain.Room {
	data := r.Data.Data()
	if data.Items == nil {
		data.Items = []domain.Item{}
	}
	return &domain.Room{
		ID:         r.ID,
		TemplateID: r.TemplateID,
		Data:       data,
		MetaData: domain.RoomMetaData{
			Featured:     r.Featured,
			TotalClones:  r.TotalClones,
			LastModified: r.LastModified,
		},
	}
}
