package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dormdesign/internal/domain"
	gormpersistence "dormdesign/internal/infra/persistence/gorm"
	redisstate "dormdesign/internal/infra/state/redis"
	"dormdesign/internal/repository"
	"dormdesign/internal/service"
	"dormdesign/internal/testfixtures"
)

// fakeTransport 记录发送的消息、ping 次数和关闭状态
type fakeTransport struct {
	mu         sync.Mutex
	frames     [][]byte
	pings      int
	terminated bool
}

func (f *fakeTransport) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), msg...))
	return nil
}

func (f *fakeTransport) Ping() error {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Terminate() {
	f.mu.Lock()
	f.terminated = true
	f.mu.Unlock()
}

func (f *fakeTransport) isTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// received 返回指定事件的所有消息
func (f *fakeTransport) received(t *testing.T, event string) []frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []frame
	for _, raw := range f.frames {
		var fr frame
		require.NoError(t, json.Unmarshal(raw, &fr))
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) last(t *testing.T, event string) frame {
	t.Helper()
	frames := f.received(t, event)
	require.NotEmpty(t, frames, "expected at least one %q frame", event)
	return frames[len(frames)-1]
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

type hubFixture struct {
	hub   *Hub
	rooms *service.RoomService
	cache *service.RoomCacheService
	mr    *miniredis.Miniredis
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	mr, client := testfixtures.NewRedis(t)
	db := testfixtures.NewDB(t)
	rooms := service.NewRoomService(gormpersistence.NewGormRoomRepository(db))
	cache := service.NewRoomCacheService(
		redisstate.NewRedisRoomCacheRepository(client, "dd:"),
		rooms,
		service.NewItemService(),
		service.WithFlushRetry(1, 0),
	)
	return &hubFixture{
		hub:   NewHub(NewRegistry(), cache, time.Hour),
		rooms: rooms,
		cache: cache,
		mr:    mr,
	}
}

func (f *hubFixture) newRoom(t *testing.T) *domain.Room {
	t.Helper()
	room, err := f.rooms.Create(context.Background(), testfixtures.StrPtr("Dorm"), nil)
	require.NoError(t, err)
	return room
}

func (f *hubFixture) join(t *testing.T, roomID string) (*Session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	s := NewSession(roomID, tr)
	require.NoError(t, f.hub.Attach(context.Background(), s))
	return s, tr
}

func (f *hubFixture) send(t *testing.T, s *Session, event string, sendResponse bool, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"event": event, "sendResponse": sendResponse, "data": data})
	require.NoError(t, err)
	f.hub.Dispatch(context.Background(), s, raw)
}

func roster(t *testing.T, fr frame) []string {
	t.Helper()
	var payload struct {
		Users []string `json:"users"`
	}
	require.NoError(t, json.Unmarshal(fr.Data, &payload))
	return payload.Users
}

func TestHub_ClaimSurvivesVacancyFlush(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	room := f.newRoom(t)

	a, ta := f.join(t, room.ID)
	assert.Equal(t, []string{"User"}, roster(t, ta.last(t, EventNicknamesUpdated)))
	b, tb := f.join(t, room.ID)
	assert.Equal(t, []string{"User", "User"}, roster(t, ta.last(t, EventNicknamesUpdated)))
	assert.Equal(t, []string{"User", "User"}, roster(t, tb.last(t, EventNicknamesUpdated)))
	assert.True(t, f.mr.Exists("dd:room:"+room.ID), "加入后房间应在缓存中")

	// A 添加物品，不需要回显
	f.send(t, a, EventAddItem, false, map[string]interface{}{"name": "Bed"})
	assert.Empty(t, ta.received(t, EventItemAdded), "sendResponse=false 时发送者不应收到广播")
	var added domain.Item
	require.NoError(t, json.Unmarshal(tb.last(t, EventItemAdded).Data, &added))
	assert.Equal(t, "Bed", added.Name)
	assert.Equal(t, 1, added.Quantity)

	// B 认领
	f.send(t, b, EventUpdateItems, true, map[string]interface{}{
		"items": []map[string]interface{}{{"id": added.ID, "updated": map[string]interface{}{"claimedBy": "B"}}},
	})
	assert.Len(t, ta.received(t, EventItemsUpdated), 1)
	assert.Len(t, tb.received(t, EventItemsUpdated), 1)

	f.hub.Detach(ctx, a.ID())
	assert.Equal(t, []string{"User"}, roster(t, tb.last(t, EventNicknamesUpdated)))
	assert.True(t, f.mr.Exists("dd:room:"+room.ID), "仍有会话时不应刷写移除")

	f.hub.Detach(ctx, b.ID())
	assert.False(t, f.mr.Exists("dd:room:"+room.ID), "房间变空后缓存应被移除")
	assert.Empty(t, f.hub.ActiveRoomIDs())

	durable, err := f.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, durable.Data.Items, 1)
	require.NotNil(t, durable.Data.Items[0].ClaimedBy)
	assert.Equal(t, "B", *durable.Data.Items[0].ClaimedBy)
}

func TestHub_RejectedEventOnlyReachesSender(t *testing.T) {
	f := newHubFixture(t)
	room := f.newRoom(t)
	a, ta := f.join(t, room.ID)
	_, tb := f.join(t, room.ID)
	before, err := f.cache.Lookup(context.Background(), room.ID)
	require.NoError(t, err)
	tb.reset()

	f.send(t, a, EventUpdateLayout, true, map[string]interface{}{
		"vertices": []map[string]float64{{"x": 0, "y": 0}, {"x": 1, "y": 1}},
	})

	var failure struct {
		Action  string `json:"action"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(ta.last(t, EventActionFailed).Data, &failure))
	assert.Equal(t, EventUpdateLayout, failure.Action)
	assert.Equal(t, "'vertices' must contain at least 3 elements", failure.Message)
	assert.Empty(t, ta.received(t, EventLayoutUpdated))
	assert.Empty(t, tb.frames, "其他会话不应收到任何消息")

	after, err := f.cache.Lookup(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDecodeEvent_NamesMatchWireEvents(t *testing.T) {
	for _, name := range []string{
		EventAddItem, EventUpdateItems, EventDeleteItem, EventUpdateLayout,
		EventCloneRoom, EventUpdateRoomName, EventUpdateNickname, EventDeleteRoom,
	} {
		event, err := decodeEvent(name, json.RawMessage(`{"name":"x"}`))
		require.NoError(t, err, name)
		assert.Equal(t, name, event.EventName())
	}

	event, err := decodeEvent(EventUpdateRoomName, json.RawMessage(`{"name":"Dorm"}`))
	require.NoError(t, err)
	rename, ok := event.(UpdateRoomNameEvent)
	require.True(t, ok)
	require.NotNil(t, rename.Name)
	assert.Equal(t, "Dorm", *rename.Name)
}

func TestHub_UnknownAndMalformedMessages(t *testing.T) {
	f := newHubFixture(t)
	room := f.newRoom(t)
	a, ta := f.join(t, room.ID)

	f.send(t, a, "bogus", true, nil)
	assert.JSONEq(t, `{"action":"bogus","message":"unknown event 'bogus'"}`, string(ta.last(t, EventActionFailed).Data))

	f.hub.Dispatch(context.Background(), a, []byte("{not json"))
	assert.JSONEq(t, `{"action":"","message":"malformed message"}`, string(ta.last(t, EventActionFailed).Data))

	f.send(t, a, EventAddItem, true, nil)
	assert.JSONEq(t, `{"action":"add-item","message":"Item data is undefined"}`, string(ta.last(t, EventActionFailed).Data))

	f.send(t, a, EventDeleteItem, true, map[string]string{"id": "missing"})
	assert.JSONEq(t, `{"action":"delete-item","message":"item not found: missing"}`, string(ta.last(t, EventActionFailed).Data))
}

func TestHub_NicknameAndRoomName(t *testing.T) {
	f := newHubFixture(t)
	room := f.newRoom(t)
	a, ta := f.join(t, room.ID)
	_, tb := f.join(t, room.ID)

	f.send(t, a, EventUpdateNickname, false, map[string]string{"userName": "  Alice "})
	assert.Equal(t, []string{"Alice", "User"}, roster(t, tb.last(t, EventNicknamesUpdated)), "名单按加入顺序")
	assert.Equal(t, []string{"User", "User"}, roster(t, ta.last(t, EventNicknamesUpdated)), "发送者未请求回显")

	f.send(t, a, EventUpdateRoomName, true, map[string]string{"name": "  Room 7 "})
	assert.JSONEq(t, `{"name":"Room 7"}`, string(ta.last(t, EventRoomNameUpdated).Data))
	assert.JSONEq(t, `{"name":"Room 7"}`, string(tb.last(t, EventRoomNameUpdated).Data))

	f.send(t, a, EventUpdateRoomName, true, map[string]interface{}{})
	assert.JSONEq(t, `{"action":"update-room-name","message":"'name' string is empty or undefined"}`, string(ta.last(t, EventActionFailed).Data))
}

func TestHub_CloneRoom(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	template := f.newRoom(t)
	require.NoError(t, f.cache.Load(ctx, template.ID))
	_, err := f.cache.AddItem(ctx, template.ID, domain.NewItem{Name: testfixtures.StrPtr("Desk")})
	require.NoError(t, err)

	room := f.newRoom(t)
	a, ta := f.join(t, room.ID)
	f.send(t, a, EventCloneRoom, true, map[string]string{"templateId": template.TemplateID})

	var cloned struct {
		TemplateID string          `json:"templateId"`
		Data       domain.RoomData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ta.last(t, EventRoomCloned).Data, &cloned))
	assert.Equal(t, template.TemplateID, cloned.TemplateID)
	require.Len(t, cloned.Data.Items, 1)
	assert.Equal(t, "Desk", cloned.Data.Items[0].Name)
}

func TestHub_DeletedRoomTerminatesStaleSessions(t *testing.T) {
	f := newHubFixture(t)
	room := f.newRoom(t)
	a, ta := f.join(t, room.ID)
	b, tb := f.join(t, room.ID)

	f.send(t, a, EventDeleteRoom, true, nil)
	assert.Len(t, ta.received(t, EventRoomDeleted), 1)
	assert.Len(t, tb.received(t, EventRoomDeleted), 1)
	assert.False(t, ta.isTerminated(), "删除房间不主动断开会话")

	f.send(t, b, EventAddItem, true, map[string]string{"name": "Bed"})
	assert.True(t, tb.isTerminated(), "缓存缺失时应强制断开")
	assert.Empty(t, tb.received(t, EventItemAdded))
	_, ok := f.hub.registry.Session(b.ID())
	assert.False(t, ok)

	_, err := f.rooms.Get(context.Background(), room.ID)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestHub_StaleCacheAfterEviction(t *testing.T) {
	f := newHubFixture(t)
	room := f.newRoom(t)
	a, ta := f.join(t, room.ID)

	_, err := f.cache.Evict(context.Background(), room.ID)
	require.NoError(t, err)

	f.send(t, a, EventUpdateNickname, true, map[string]string{"userName": "A"})
	assert.True(t, ta.isTerminated())
	assert.Zero(t, f.hub.registry.RoomSize(room.ID))
}

func TestHub_AttachUnknownRoom(t *testing.T) {
	f := newHubFixture(t)
	tr := &fakeTransport{}
	s := NewSession("missing", tr)

	err := f.hub.Attach(context.Background(), s)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	_, ok := f.hub.registry.Session(s.ID())
	assert.False(t, ok, "加载失败时应撤销登记")
	assert.Empty(t, f.hub.ActiveRoomIDs())
}

func TestHub_SweepTerminatesUnresponsiveSessions(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	room := f.newRoom(t)
	quiet, tq := f.join(t, room.ID)
	lively, tl := f.join(t, room.ID)

	f.hub.sweep(ctx)
	assert.Equal(t, 1, tq.pings)
	assert.Equal(t, 1, tl.pings)

	lively.MarkAlive()
	f.hub.sweep(ctx)

	assert.True(t, tq.isTerminated(), "两轮未回复 pong 应被断开")
	assert.False(t, tl.isTerminated())
	assert.Equal(t, 2, tl.pings)
	assert.Eventually(t, func() bool {
		_, ok := f.hub.registry.Session(quiet.ID())
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		frames := tl.received(t, EventNicknamesUpdated)
		return len(roster(t, frames[len(frames)-1])) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// gatedCache 在 armed 后对指定房间的 Get 阻塞，直到 release 被关闭
type gatedCache struct {
	repository.RoomCacheRepository
	roomID  string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCache) Get(ctx context.Context, id string) (*domain.Room, error) {
	if id == g.roomID && g.armed.Load() {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.RoomCacheRepository.Get(ctx, id)
}

func TestHub_SweepIsNotBlockedByBusyRoom(t *testing.T) {
	_, client := testfixtures.NewRedis(t)
	db := testfixtures.NewDB(t)
	rooms := service.NewRoomService(gormpersistence.NewGormRoomRepository(db))
	ctx := context.Background()

	busy, err := rooms.Create(ctx, nil, nil)
	require.NoError(t, err)
	gate := &gatedCache{
		RoomCacheRepository: redisstate.NewRedisRoomCacheRepository(client, "dd:"),
		roomID:              busy.ID,
		entered:             make(chan struct{}),
		release:             make(chan struct{}),
	}
	cache := service.NewRoomCacheService(gate, rooms, service.NewItemService(), service.WithFlushRetry(1, 0))
	h := NewHub(NewRegistry(), cache, time.Hour)

	join := func(roomID string) (*Session, *fakeTransport) {
		tr := &fakeTransport{}
		s := NewSession(roomID, tr)
		require.NoError(t, h.Attach(ctx, s))
		return s, tr
	}

	stuck, stuckTr := join(busy.ID)
	var others []*fakeTransport
	for i := 0; i < 10; i++ {
		room, err := rooms.Create(ctx, nil, nil)
		require.NoError(t, err)
		_, tr := join(room.ID)
		others = append(others, tr)
	}

	// 一个卡在存储调用中的修改持有 busy 房间的锁
	gate.armed.Store(true)
	raw, err := json.Marshal(map[string]interface{}{
		"event": EventUpdateLayout,
		"data":  map[string]interface{}{"vertices": []map[string]float64{{"x": 0, "y": 0}, {"x": 1, "y": 0}, {"x": 0, "y": 1}}},
	})
	require.NoError(t, err)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		h.Dispatch(ctx, stuck, raw)
	}()
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("mutation never reached the cache")
	}

	// stuck 错过上一轮 pong
	stuck.probe()

	swept := make(chan struct{})
	go func() {
		defer close(swept)
		h.sweep(ctx)
	}()
	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("sweep blocked on a busy room")
	}
	for i, tr := range others {
		tr.mu.Lock()
		pings := tr.pings
		tr.mu.Unlock()
		assert.Equal(t, 1, pings, "其他房间的会话 %d 应收到 ping", i)
	}
	assert.True(t, stuckTr.isTerminated())

	close(gate.release)
	<-dispatched
	assert.Eventually(t, func() bool {
		_, ok := h.registry.Session(stuck.ID())
		cached, err := gate.Exists(ctx, busy.ID)
		return !ok && err == nil && !cached
	}, 2*time.Second, 10*time.Millisecond, "锁释放后应完成 Detach 和空房刷写")
}

func TestHub_ShutdownFlushesRooms(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	room := f.newRoom(t)
	a, ta := f.join(t, room.ID)
	f.send(t, a, EventUpdateRoomName, false, map[string]string{"name": "Final"})

	f.hub.Shutdown(ctx)

	assert.True(t, ta.isTerminated())
	assert.False(t, f.mr.Exists("dd:room:"+room.ID))
	durable, err := f.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", durable.Data.Name)
}
