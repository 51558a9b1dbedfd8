package domain

import (
	"bytes"
	"encoding/json"
)

// Item 表示房间中一个可认领的物品。
type Item struct {
	ID              string     `json:"id"`              // 服务端分配，在房间内唯一
	Name            string     `json:"name"`            // 1~30 个字符
	Quantity        int        `json:"quantity"`        // >= 1
	VisibleInEditor bool       `json:"visibleInEditor"` // 是否在编辑器画布中显示
	ClaimedBy       *string    `json:"claimedBy"`       // 认领人，nil 表示未认领
	Dimensions      Dimensions `json:"dimensions"`      // 宽/高/长
	EditorPosition  Position   `json:"editorPosition"`  // 编辑器中的位置
	EditorZIndex    int        `json:"editorZIndex"`    // 绘制层级
	EditorRotation  float64    `json:"editorRotation"`  // 旋转角度 (0~360)
	EditorLocked    bool       `json:"editorLocked"`    // 是否锁定移动
}

// Clone 返回物品的深拷贝
func (i Item) Clone() Item {
	c := i
	if i.ClaimedBy != nil {
		claimant := *i.ClaimedBy
		c.ClaimedBy = &claimant
	}
	c.Dimensions = i.Dimensions.Clone()
	return c
}

// NewItem 是 add-item 事件携带的创建参数。
// 除 Name 外所有字段都可省略，由 ItemService 填充默认值。
type NewItem struct {
	Name            *string     `json:"name" validate:"required,min=1,max=30"`
	Quantity        *int        `json:"quantity" validate:"omitempty,min=1"`
	VisibleInEditor *bool       `json:"visibleInEditor"`
	ClaimedBy       *string     `json:"claimedBy" validate:"omitempty,min=1,max=30"`
	Dimensions      *Dimensions `json:"dimensions"`
	EditorPosition  *Position   `json:"editorPosition"`
	EditorZIndex    *int        `json:"editorZIndex"`
	EditorRotation  *float64    `json:"editorRotation" validate:"omitempty,min=0,max=360"`
	EditorLocked    *bool       `json:"editorLocked"`
}

// ItemPatch 是对单个物品的部分更新，所有字段都可省略。
// ClaimedBy 需要区分 "未提供" 和 "显式置空"，因此使用 OptionalString。
type ItemPatch struct {
	Name            *string        `json:"name,omitempty" validate:"omitempty,min=1,max=30"`
	Quantity        *int           `json:"quantity,omitempty" validate:"omitempty,min=1"`
	VisibleInEditor *bool          `json:"visibleInEditor,omitempty"`
	ClaimedBy       OptionalString `json:"claimedBy,omitzero" validate:"-"`
	Dimensions      *Dimensions    `json:"dimensions,omitempty"`
	EditorPosition  *Position      `json:"editorPosition,omitempty"`
	EditorZIndex    *int           `json:"editorZIndex,omitempty"`
	EditorRotation  *float64       `json:"editorRotation,omitempty" validate:"omitempty,min=0,max=360"`
	EditorLocked    *bool          `json:"editorLocked,omitempty"`
}

// ItemUpdate 是 update-items 事件中的一项: 目标物品 ID 和更新内容
type ItemUpdate struct {
	ID      string    `json:"id" validate:"required"`
	Updated ItemPatch `json:"updated"`
}

// OptionalString 记录一个可为 null 的字符串字段是否出现在 JSON 中。
//   - 字段缺失:      Set=false
//   - "field": null: Set=true, Value=nil
//   - "field": "x":  Set=true, Value="x"
type OptionalString struct {
	Set   bool
	Value *string
}

// Some 构造一个已设置的非空值
func Some(v string) OptionalString {
	return OptionalString{Set: true, Value: &v}
}

// Null 构造一个显式置空的值
func Null() OptionalString {
	return OptionalString{Set: true}
}

// IsZero 供 omitzero 使用，未设置的字段不会被序列化
func (o OptionalString) IsZero() bool { return !o.Set }

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}
