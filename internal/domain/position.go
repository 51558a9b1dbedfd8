package domain

// Position 表示编辑器坐标系中的一个二维点。
// 房间边界顶点和物品位置都使用它，坐标范围为 [-50, 50]。
type Position struct {
	X float64 `json:"x" validate:"min=-50,max=50"`
	Y float64 `json:"y" validate:"min=-50,max=50"`
}

// Dimensions 表示物品的尺寸，每个维度可以为空 (未知) 或 0~100。
type Dimensions struct {
	Width  *float64 `json:"width" validate:"omitempty,min=0,max=100"`
	Height *float64 `json:"height" validate:"omitempty,min=0,max=100"`
	Length *float64 `json:"length" validate:"omitempty,min=0,max=100"`
}

// Clone 返回一份不共享指针的副本
func (d Dimensions) Clone() Dimensions {
	return Dimensions{
		Width:  cloneFloat(d.Width),
		Height: cloneFloat(d.Height),
		Length: cloneFloat(d.Length),
	}
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
