package service

import (
	"github.com/google/uuid"

	"dormdesign/internal/domain"
)

// ItemService 负责创建、校验物品并把部分更新合并到物品上。
type ItemService struct {
	newID func() string
}

// NewItemService 创建 ItemService 实例
func NewItemService() *ItemService {
	return &ItemService{newID: uuid.NewString}
}

// Create 校验创建参数，填充默认值并分配新 ID。
func (s *ItemService) Create(input domain.NewItem) (domain.Item, error) {
	if err := validateStruct(input); err != nil {
		return domain.Item{}, err
	}

	item := domain.Item{
		ID:       s.newID(),
		Name:     *input.Name,
		Quantity: 1,
	}
	if input.Quantity != nil {
		item.Quantity = *input.Quantity
	}
	if input.VisibleInEditor != nil {
		item.VisibleInEditor = *input.VisibleInEditor
	}
	if input.ClaimedBy != nil {
		claimant := *input.ClaimedBy
		item.ClaimedBy = &claimant
	}
	if input.Dimensions != nil {
		item.Dimensions = input.Dimensions.Clone()
	}
	if input.EditorPosition != nil {
		item.EditorPosition = *input.EditorPosition
	}
	if input.EditorZIndex != nil {
		item.EditorZIndex = *input.EditorZIndex
	}
	if input.EditorRotation != nil {
		item.EditorRotation = *input.EditorRotation
	}
	if input.EditorLocked != nil {
		item.EditorLocked = *input.EditorLocked
	}
	return item, nil
}

// ValidatePatch 校验部分更新，所有字段都可省略。
func (s *ItemService) ValidatePatch(patch domain.ItemPatch) error {
	if err := validateStruct(patch); err != nil {
		return err
	}
	// claimedBy 允许显式置空，非空时与创建规则相同
	if patch.ClaimedBy.Set && patch.ClaimedBy.Value != nil {
		if err := validate.Var(*patch.ClaimedBy.Value, "min=1,max=30"); err != nil {
			return NewValidationError("'claimedBy' must contain between 1 and 30 characters")
		}
	}
	return nil
}

// Update 校验 patch 后浅合并到 item 上。
// dimensions 和 editorPosition 作为整体替换。
func (s *ItemService) Update(item *domain.Item, patch domain.ItemPatch) error {
	if err := s.ValidatePatch(patch); err != nil {
		return err
	}
	applyPatch(item, patch)
	return nil
}

func applyPatch(item *domain.Item, patch domain.ItemPatch) {
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.VisibleInEditor != nil {
		item.VisibleInEditor = *patch.VisibleInEditor
	}
	if patch.ClaimedBy.Set {
		if patch.ClaimedBy.Value == nil {
			item.ClaimedBy = nil
		} else {
			claimant := *patch.ClaimedBy.Value
			item.ClaimedBy = &claimant
		}
	}
	if patch.Dimensions != nil {
		item.Dimensions = patch.Dimensions.Clone()
	}
	if patch.EditorPosition != nil {
		item.EditorPosition = *patch.EditorPosition
	}
	if patch.EditorZIndex != nil {
		item.EditorZIndex = *patch.EditorZIndex
	}
	if patch.EditorRotation != nil {
		item.EditorRotation = *patch.EditorRotation
	}
	if patch.EditorLocked != nil {
		item.EditorLocked = *patch.EditorLocked
	}
}
