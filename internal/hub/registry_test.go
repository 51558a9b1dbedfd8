package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Membership(t *testing.T) {
	r := NewRegistry()
	a := NewSession("room", &fakeTransport{})
	b := NewSession("room", &fakeTransport{})

	assert.True(t, r.Add(a), "第一个会话创建房间条目")
	assert.False(t, r.Add(b))
	assert.False(t, r.Add(b), "重复登记不应重复加入")
	assert.Equal(t, 2, r.RoomSize("room"))

	b.SetName("Bob")
	assert.Equal(t, []string{"User", "Bob"}, r.Roster("room"))

	roomID, ok := r.Leave(a.ID())
	assert.True(t, ok)
	assert.Equal(t, "room", roomID)
	assert.False(t, r.DeleteIfEmpty("room"))

	_, ok = r.Leave(a.ID())
	assert.False(t, ok, "已离开的会话不能再次离开")
	r.Forget(a.ID())
	_, ok = r.Session(a.ID())
	assert.False(t, ok)

	r.Leave(b.ID())
	r.Forget(b.ID())
	assert.Empty(t, r.RoomIDs(), "空房间不计入活跃房间")
	assert.True(t, r.DeleteIfEmpty("room"))
	assert.False(t, r.DeleteIfEmpty("room"))
}

func TestSession_Probe(t *testing.T) {
	s := NewSession("room", &fakeTransport{})
	assert.True(t, s.probe(), "新会话处于存活状态")
	assert.False(t, s.probe(), "未收到 pong 时第二次探测失败")
	s.MarkAlive()
	assert.True(t, s.probe())
}
