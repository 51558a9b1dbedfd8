package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeRoomCheckpoint = "room:checkpoint" // 把活跃房间的缓存记录写回持久化存储
)

// RoomCheckpointPayload 定义了检查点任务的数据结构。
// RoomIDs 为空时处理所有活跃房间。
type RoomCheckpointPayload struct {
	RoomIDs []string `json:"room_ids,omitempty"`
}

// NewRoomCheckpointTask 创建检查点任务
func NewRoomCheckpointTask(roomIDs ...string) (*asynq.Task, error) {
	payload, err := json.Marshal(RoomCheckpointPayload{RoomIDs: roomIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRoomCheckpoint, payload), nil
}
