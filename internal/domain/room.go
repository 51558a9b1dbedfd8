package domain

// Room 表示一个可协作编辑的房间文档。
// 缓存记录和持久化记录使用相同的结构。
type Room struct {
	ID         string       `json:"id"`         // 主键
	TemplateID string       `json:"templateId"` // 只读分享/克隆使用的二级 ID
	Data       RoomData     `json:"data"`
	MetaData   RoomMetaData `json:"metaData"`
}

// RoomData 是房间中可编辑的部分
type RoomData struct {
	Name     string     `json:"name"`
	Items    []Item     `json:"items"`
	Vertices []Position `json:"vertices"` // 边界多边形，至少 3 个顶点
}

// RoomMetaData 是房间的元数据
type RoomMetaData struct {
	Featured     bool  `json:"featured"`
	TotalClones  int   `json:"totalClones"`
	LastModified int64 `json:"lastModified"` // Unix 毫秒，单调不减
}

// Clone 返回 RoomData 的深拷贝，克隆房间时使用，避免两个文档共享切片。
func (d RoomData) Clone() RoomData {
	c := RoomData{
		Name:     d.Name,
		Items:    make([]Item, 0, len(d.Items)),
		Vertices: make([]Position, len(d.Vertices)),
	}
	for _, item := range d.Items {
		c.Items = append(c.Items, item.Clone())
	}
	copy(c.Vertices, d.Vertices)
	return c
}

// FindItem 返回指定 ID 物品的下标，不存在时返回 -1
func (d *RoomData) FindItem(id string) int {
	for i := range d.Items {
		if d.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Template 是房间的只读视图 (不包含房间主键)
type Template struct {
	TemplateID string       `json:"templateId"`
	Data       RoomData     `json:"data"`
	MetaData   RoomMetaData `json:"metaData"`
}

// AsTemplate 去掉房间主键
func (r *Room) AsTemplate() Template {
	return Template{TemplateID: r.TemplateID, Data: r.Data, MetaData: r.MetaData}
}

// TemplateSummary 是精选模板列表中的一项，只保留名称和元数据
type TemplateSummary struct {
	TemplateID string       `json:"templateId"`
	Name       string       `json:"name"`
	MetaData   RoomMetaData `json:"metaData"`
}

// DefaultRoomName 未指定名称时的新房间名
const DefaultRoomName = "New Room"

// DefaultVertices 返回新房间的初始边界: 10 x 10 的正方形
func DefaultVertices() []Position {
	return []Position{
		{X: -5, Y: -5},
		{X: 5, Y: -5},
		{X: 5, Y: 5},
		{X: -5, Y: 5},
	}
}
