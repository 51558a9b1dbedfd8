package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"dormdesign/internal/tasks"
)

// ActiveRoomLister 返回当前有会话的房间
type ActiveRoomLister interface {
	ActiveRoomIDs() []string
}

// RoomFlusher 把房间的缓存记录写回持久化存储 (不移除缓存)
type RoomFlusher interface {
	Flush(ctx context.Context, roomID string) (bool, error)
}

// CheckpointHandler 处理周期性的房间检查点任务
type CheckpointHandler struct {
	rooms   ActiveRoomLister
	flusher RoomFlusher
	timeout time.Duration
}

// NewCheckpointHandler 创建 Handler 实例
func NewCheckpointHandler(rooms ActiveRoomLister, flusher RoomFlusher) *CheckpointHandler {
	if rooms == nil {
		panic("ActiveRoomLister cannot be nil for CheckpointHandler")
	}
	if flusher == nil {
		panic("RoomFlusher cannot be nil for CheckpointHandler")
	}
	return &CheckpointHandler{rooms: rooms, flusher: flusher, timeout: 30 * time.Second}
}

// CheckpointResult 写入任务结果
type CheckpointResult struct {
	Flushed int `json:"flushed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ProcessTask 实现 asynq.Handler 接口
func (h *CheckpointHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
	})

	var payload tasks.RoomCheckpointPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	roomIDs := payload.RoomIDs
	if len(roomIDs) == 0 {
		roomIDs = h.rooms.ActiveRoomIDs()
	}
	if len(roomIDs) == 0 {
		logCtx.Debug("No active rooms, skipping checkpoint")
		return nil
	}

	var result CheckpointResult
	var errs []error
	for _, roomID := range roomIDs {
		flushCtx, cancel := context.WithTimeout(ctx, h.timeout)
		flushed, err := h.flusher.Flush(flushCtx, roomID)
		cancel()
		switch {
		case err != nil:
			result.Failed++
			errs = append(errs, fmt.Errorf("room %s: %w", roomID, err))
			logCtx.WithError(err).WithField("room_id", roomID).Warn("Checkpoint flush failed")
		case flushed:
			result.Flushed++
		default:
			result.Skipped++
		}
	}

	if rw := t.ResultWriter(); rw != nil {
		if data, err := json.Marshal(result); err == nil {
			_, _ = rw.Write(data)
		}
	}
	logCtx.WithFields(logrus.Fields{
		"flushed": result.Flushed,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Info("Room checkpoint completed")

	if len(errs) > 0 {
		return fmt.Errorf("checkpoint failed for %d of %d rooms: %w", result.Failed, len(roomIDs), errors.Join(errs...))
	}
	return nil
}
