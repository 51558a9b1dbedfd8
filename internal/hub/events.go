package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"dormdesign/internal/domain"
	"dormdesign/internal/service"
)

// 客户端发送的事件
const (
	EventAddItem        = "add-item"
	EventUpdateItems    = "update-items"
	EventDeleteItem     = "delete-item"
	EventUpdateLayout   = "update-layout"
	EventCloneRoom      = "clone-room"
	EventUpdateRoomName = "update-room-name"
	EventUpdateNickname = "update-nickname"
	EventDeleteRoom     = "delete-room"
)

// 服务端广播的事件
const (
	EventItemAdded        = "item-added"
	EventItemsUpdated     = "items-updated"
	EventItemDeleted      = "item-deleted"
	EventLayoutUpdated    = "layout-updated"
	EventRoomCloned       = "room-cloned"
	EventRoomNameUpdated  = "room-name-updated"
	EventRoomDeleted      = "room-deleted"
	EventNicknamesUpdated = "nicknamesUpdated"
	EventActionFailed     = "actionFailed"
)

var errUnknownEvent = errors.New("unknown event")

// Envelope 是服务端发送的消息
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// inboundMessage 是客户端发送的消息
type inboundMessage struct {
	Event        string          `json:"event"`
	SendResponse bool            `json:"sendResponse"`
	Data         json.RawMessage `json:"data"`
}

// Event 是客户端事件的封闭集合，每种事件自带载荷类型和处理逻辑。
type Event interface {
	EventName() string
	handle(ctx context.Context, h *Hub, s *Session, sendResponse bool) error
}

type AddItemEvent struct {
	Item domain.NewItem
}

type UpdateItemsEvent struct {
	Items []domain.ItemUpdate `json:"items"`
}

type DeleteItemEvent struct {
	ID string `json:"id"`
}

type UpdateLayoutEvent struct {
	Vertices []domain.Position `json:"vertices"`
}

type CloneRoomEvent struct {
	TemplateID string `json:"templateId"`
}

type UpdateRoomNameEvent struct {
	Name *string `json:"name"`
}

type UpdateNicknameEvent struct {
	UserName *string `json:"userName"`
}

type DeleteRoomEvent struct{}

func (AddItemEvent) EventName() string { return EventAddItem }
func (UpdateItemsEvent) EventName() string { return EventUpdateItems }
func (DeleteItemEvent) EventName() string { return EventDeleteItem }
func (UpdateLayoutEvent) EventName() string { return EventUpdateLayout }
func (CloneRoomEvent) EventName() string { return EventCloneRoom }
func (UpdateRoomNameEvent) EventName() string { return EventUpdateRoomName }
func (UpdateNicknameEvent) EventName() string { return EventUpdateNickname }
func (DeleteRoomEvent) EventName() string { return EventDeleteRoom }

// decodeEvent 根据事件名解析载荷
func decodeEvent(name string, data json.RawMessage) (Event, error) {
	switch name {
	case EventAddItem:
		if isEmpty(data) {
			return nil, service.NewValidationError("Item data is undefined")
		}
		var e AddItemEvent
		if err := decodeData(data, &e.Item); err != nil {
			return nil, err
		}
		return e, nil
	case EventUpdateItems:
		return decodeAs[UpdateItemsEvent](data)
	case EventDeleteItem:
		return decodeAs[DeleteItemEvent](data)
	case EventUpdateLayout:
		return decodeAs[UpdateLayoutEvent](data)
	case EventCloneRoom:
		return decodeAs[CloneRoomEvent](data)
	case EventUpdateRoomName:
		return decodeAs[UpdateRoomNameEvent](data)
	case EventUpdateNickname:
		return decodeAs[UpdateNicknameEvent](data)
	case EventDeleteRoom:
		return DeleteRoomEvent{}, nil
	default:
		return nil, errUnknownEvent
	}
}

func decodeAs[E Event](data json.RawMessage) (Event, error) {
	var e E
	if err := decodeData(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// decodeData 解析载荷，缺失的载荷按空对象处理
func decodeData(data json.RawMessage, v interface{}) error {
	if isEmpty(data) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return service.NewValidationError("malformed event data: %v", err)
	}
	return nil
}

func isEmpty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (e AddItemEvent) handle(ctx context.Context, h *Hub, s *Session, sendResponse bool) error {
	item, err := h.rooms.AddItem(ctx, s.RoomID(), e.Item)
	if err != nil {
		return err
	}
	h.broadcast(s, sendResponse, EventItemAdded, item)
	return nil
}

func (e UpdateItemsEvent) handle(ctx context.Context, h *Hub, s *Session, sendResponse bool) error {
	updates, err := h.rooms.UpdateItems(ctx, s.RoomID(), e.Items)
	if err != nil {
		return err
	}
	h.broadcast(s, sendResponse, EventItemsUpdated, UpdateItemsEvent{Items: updates})
	return nil
}

func (e DeleteItemEvent) handle(ctx context.Context, h *Hub, s *Session, sendResponse bool) error {
	if err := h.rooms.RemoveItem(ctx, s.RoomID(), e.ID); err != nil {
		return err
	}
	h.broadcast(s, sendResponse, EventItemDeleted, e)
	return nil
}

func (e UpdateLayoutEvent) handle(ctx context.Context, h *Hub, s *Session, sendResponse bool) error {
	if err := h.rooms.UpdateVertices(ctx, s.RoomID(), e.Vertices); err != nil {
		return err
	}
	h.broadcast(s, sendResponse, EventLayoutUpdated, e)
	return nil
}

type roomClonedData struct {
	TemplateID string          `json:"templateId"`
	Data       domain.RoomData `json:"data"`
}

func (e CloneRoomEvent) handle(ctx context.Context, h *Hub, s *Session, sendResponse bool) error {
	data, err := h.rooms.CloneFrom(ctx, s.RoomID(), e.TemplateID)
	if err != nil {
		return err
	}
	h.broadcast(s, sendResponse, EventRoomCloned, roomClonedData{TemplateID: e.TemplateID, Data: data})
	return nil
}

func (e UpdateRoomNameEvent) handle(ctx context.Context, h *Hub, s *Session, sendResponse bool) error {
	if e.Name == nil {
		return service.NewValidationError("'name' string is empty or undefined")
	}
	name, err := h.rooms.UpdateName(ctx, s.RoomID(), *e.Name)
	if err != nil {
		return err
	}
	h.broadcast(s, sendResponse, EventRoomNameUpdated, UpdateRoomNameEvent{Name: &name})
	return nil
}

func (e UpdateNicknameEvent) handle(_ context.Context, h *Hub, s *Session, sendResponse bool) error {
	if e.UserName == nil {
		return service.NewValidationError("'userName' string is empty or undefined")
	}
	name, err := service.NormalizeNickname(*e.UserName)
	if err != nil {
		return err
	}
	s.SetName(name)
	h.broadcastRoster(s.ID(), s.RoomID(), sendResponse)
	return nil
}

func (e DeleteRoomEvent) handle(ctx context.Context, h *Hub, s *Session, sendResponse bool) error {
	if err := h.rooms.DeleteRoom(ctx, s.RoomID()); err != nil {
		return err
	}
	h.broadcast(s, sendResponse, EventRoomDeleted, struct{}{})
	return nil
}
