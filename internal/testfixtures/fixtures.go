// Package testfixtures 提供测试用的 Redis、数据库和时钟。
package testfixtures

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dormdesign/internal/domain"
	"dormdesign/internal/infra/setup"
)

// NewRedis 启动一个 miniredis 并返回连接它的客户端，测试结束时自动关闭。
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// NewDB 创建一个独立的内存 SQLite 数据库并执行迁移。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// 单连接避免共享缓存下的表锁冲突
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := setup.MigrateDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Clock 是可以手动推进的时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock 创建从 start 开始的时钟
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now 返回当前时间
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 把时钟推进 d (可以为负)
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Room 返回一个带默认边界、没有物品的房间
func Room(id, name string) *domain.Room {
	return &domain.Room{
		ID:         id,
		TemplateID: "tpl-" + id,
		Data: domain.RoomData{
			Name:     name,
			Items:    []domain.Item{},
			Vertices: domain.DefaultVertices(),
		},
		MetaData: domain.RoomMetaData{LastModified: 1000},
	}
}

// StrPtr 返回 s 的指针
func StrPtr(s string) *string { return &s }
