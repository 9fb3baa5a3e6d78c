package service_test

import (
	"CampusLink/internal/api/dto"
	"CampusLink/internal/model"
	redispkg "CampusLink/internal/pkg/redis"
	"CampusLink/internal/service"
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// fakeRoomRepo 内存实现，pair_key 唯一约束按真实表行为模拟
type fakeRoomRepo struct {
	nextID  uint64
	rooms   map[uint64]*model.Room
	members map[uint64][]*model.RoomMember

	// createHook 在 CreateRoom 执行前触发，用于模拟并发竞争
	createHook func()
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		nextID:  1,
		rooms:   make(map[uint64]*model.Room),
		members: make(map[uint64][]*model.RoomMember),
	}
}

func (f *fakeRoomRepo) CreateRoom(_ context.Context, room *model.Room, members []*model.RoomMember) error {
	if f.createHook != nil {
		hook := f.createHook
		f.createHook = nil
		hook()
	}
	if room.PairKey != nil {
		for _, r := range f.rooms {
			if r.PairKey != nil && *r.PairKey == *room.PairKey {
				return errors.New("Duplicate entry for key 'pair_key'")
			}
		}
	}
	room.ID = f.nextID
	f.nextID++
	room.CreatedAt = time.Now()
	f.rooms[room.ID] = room
	for _, m := range members {
		m.RoomID = room.ID
		m.JoinedAt = time.Now()
		f.members[room.ID] = append(f.members[room.ID], m)
	}
	return nil
}

func (f *fakeRoomRepo) GetRoom(_ context.Context, roomID uint64) (*model.Room, error) {
	room, ok := f.rooms[roomID]
	if !ok {
		return &model.Room{}, gorm.ErrRecordNotFound
	}
	return room, nil
}

func (f *fakeRoomRepo) GetRoomWithMembers(ctx context.Context, roomID uint64) (*model.Room, error) {
	room, err := f.GetRoom(ctx, roomID)
	if err != nil {
		return room, err
	}
	cp := *room
	cp.Members = nil
	for _, m := range f.members[roomID] {
		cp.Members = append(cp.Members, *m)
	}
	return &cp, nil
}

func (f *fakeRoomRepo) GetDirectRoomByPairKey(_ context.Context, pairKey string) (*model.Room, error) {
	for _, r := range f.rooms {
		if r.PairKey != nil && *r.PairKey == pairKey {
			return r, nil
		}
	}
	return &model.Room{}, gorm.ErrRecordNotFound
}

func (f *fakeRoomRepo) AddMembers(_ context.Context, roomID uint64, members []*model.RoomMember) error {
	for _, m := range members {
		m.RoomID = roomID
		m.JoinedAt = time.Now()
		f.members[roomID] = append(f.members[roomID], m)
	}
	return nil
}

func (f *fakeRoomRepo) IsMember(_ context.Context, roomID uint64, userID uint64) (bool, error) {
	for _, m := range f.members[roomID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRoomRepo) TouchLastMessage(_ context.Context, roomID uint64, content string, msgType string, senderID uint64, at time.Time) error {
	room, ok := f.rooms[roomID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	room.LastMsgContent = content
	room.LastMsgType = msgType
	room.LastSenderID = senderID
	room.LastMessageAt = at
	return nil
}

func (f *fakeRoomRepo) GetUserRoomList(_ context.Context, userID uint64) ([]*model.RoomMember, error) {
	var res []*model.RoomMember
	for roomID, list := range f.members {
		for _, m := range list {
			if m.UserID != userID {
				continue
			}
			cp := *m
			cp.Room = *f.rooms[roomID]
			res = append(res, &cp)
		}
	}
	return res, nil
}

// fakeMessageRepo 内存消息表，按 (created_at, id) 追加序存储
type fakeMessageRepo struct {
	messages []*model.Message
}

func (f *fakeMessageRepo) SaveMessage(_ context.Context, msg *model.Message) error {
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMessageRepo) GetMessageByID(_ context.Context, id string) (*model.Message, error) {
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return &model.Message{}, gorm.ErrRecordNotFound
}

func (f *fakeMessageRepo) GetHistory(_ context.Context, roomID uint64, before time.Time, pageSize int) ([]*model.Message, error) {
	var res []*model.Message
	for i := len(f.messages) - 1; i >= 0 && len(res) < pageSize; i-- {
		m := f.messages[i]
		if m.RoomID != roomID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		res = append(res, m)
	}
	return res, nil
}

func (f *fakeMessageRepo) MarkRoomRead(_ context.Context, roomID uint64, readerID uint64) (int64, error) {
	var affected int64
	for _, m := range f.messages {
		if m.RoomID == roomID && m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			affected++
		}
	}
	return affected, nil
}

func (f *fakeMessageRepo) UnreadCount(_ context.Context, roomID uint64, userID uint64) (int64, error) {
	var count int64
	for _, m := range f.messages {
		if m.RoomID == roomID && m.SenderID != userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageRepo) TotalUnreadCount(_ context.Context, userID uint64) (int64, error) {
	var count int64
	for _, m := range f.messages {
		if m.SenderID != userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func newChatService(t *testing.T) (service.ChatService, *fakeRoomRepo, *fakeMessageRepo) {
	t.Helper()
	// 事件发布失败只记日志不影响主流程，测试里给个不可达的客户端即可
	if redispkg.Rdb == nil {
		redispkg.Rdb = goredis.NewClient(&goredis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 10 * time.Millisecond,
		})
	}
	roomRepo := newFakeRoomRepo()
	messageRepo := &fakeMessageRepo{}
	return service.NewChatService(roomRepo, messageRepo), roomRepo, messageRepo
}

func TestPairKeyOrderIndependent(t *testing.T) {
	if service.PairKey(7, 3) != service.PairKey(3, 7) {
		t.Fatalf("pair key should not depend on argument order")
	}
	if service.PairKey(3, 7) != "3_7" {
		t.Fatalf("expected 3_7, got %s", service.PairKey(3, 7))
	}
}

func TestResolveDirectRoomIdempotent(t *testing.T) {
	svc, _, _ := newChatService(t)
	ctx := context.Background()

	first, err := svc.ResolveDirectRoom(ctx, 1, 2)
	if err != nil {
		t.Fatalf("first resolve error: %v", err)
	}
	if first.IsGroup {
		t.Fatalf("direct room should not be group")
	}
	if len(first.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(first.Members))
	}

	// 同一对用户从任一端再次解析必须命中同一房间
	second, err := svc.ResolveDirectRoom(ctx, 1, 2)
	if err != nil {
		t.Fatalf("second resolve error: %v", err)
	}
	reversed, err := svc.ResolveDirectRoom(ctx, 2, 1)
	if err != nil {
		t.Fatalf("reversed resolve error: %v", err)
	}
	if first.ID != second.ID || first.ID != reversed.ID {
		t.Fatalf("expected one room, got %d/%d/%d", first.ID, second.ID, reversed.ID)
	}
}

func TestResolveDirectRoomRejectsInvalidTarget(t *testing.T) {
	svc, _, _ := newChatService(t)
	ctx := context.Background()

	if _, err := svc.ResolveDirectRoom(ctx, 0, 2); !errors.Is(err, service.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := svc.ResolveDirectRoom(ctx, 1, 0); !errors.Is(err, service.ErrTargetUserInvalid) {
		t.Fatalf("expected ErrTargetUserInvalid for zero target, got %v", err)
	}
	if _, err := svc.ResolveDirectRoom(ctx, 1, 1); !errors.Is(err, service.ErrTargetUserInvalid) {
		t.Fatalf("expected ErrTargetUserInvalid for self target, got %v", err)
	}
}

func TestResolveDirectRoomCreateRace(t *testing.T) {
	svc, roomRepo, _ := newChatService(t)
	ctx := context.Background()

	// 模拟对端抢先建房：本端插入撞唯一索引后应回退重查
	var racedID uint64
	roomRepo.createHook = func() {
		pairKey := service.PairKey(1, 2)
		room := &model.Room{IsGroup: false, PairKey: &pairKey, CreatedBy: 2}
		_ = roomRepo.CreateRoom(ctx, room, []*model.RoomMember{{UserID: 2}, {UserID: 1}})
		racedID = room.ID
	}

	res, err := svc.ResolveDirectRoom(ctx, 1, 2)
	if err != nil {
		t.Fatalf("resolve under race error: %v", err)
	}
	if res.ID != racedID {
		t.Fatalf("expected reuse of raced room %d, got %d", racedID, res.ID)
	}
}

func TestCreateGroupRoom(t *testing.T) {
	svc, _, _ := newChatService(t)
	ctx := context.Background()

	// 成员去重，创建者隐式入群
	room, err := svc.CreateGroupRoom(ctx, 1, "周末球局", []uint64{2, 3, 3, 1})
	if err != nil {
		t.Fatalf("create group error: %v", err)
	}
	if !room.IsGroup {
		t.Fatalf("expected group room")
	}
	if len(room.Members) != 3 {
		t.Fatalf("expected 3 members after dedupe, got %d", len(room.Members))
	}

	if _, err = svc.CreateGroupRoom(ctx, 1, "", []uint64{2}); !errors.Is(err, service.ErrParamInvalid) {
		t.Fatalf("expected ErrParamInvalid for empty name, got %v", err)
	}
	if _, err = svc.CreateGroupRoom(ctx, 1, "solo", []uint64{1}); !errors.Is(err, service.ErrTargetUserInvalid) {
		t.Fatalf("expected ErrTargetUserInvalid for creator-only group, got %v", err)
	}
}

func TestAddGroupMembers(t *testing.T) {
	svc, roomRepo, _ := newChatService(t)
	ctx := context.Background()

	group, err := svc.CreateGroupRoom(ctx, 1, "社团群", []uint64{2})
	if err != nil {
		t.Fatalf("create group error: %v", err)
	}
	direct, err := svc.ResolveDirectRoom(ctx, 1, 2)
	if err != nil {
		t.Fatalf("resolve direct error: %v", err)
	}

	// 单聊成员集合不可变更
	if err = svc.AddGroupMembers(ctx, 1, direct.ID, []uint64{3}); !errors.Is(err, service.ErrNotGroupRoom) {
		t.Fatalf("expected ErrNotGroupRoom, got %v", err)
	}
	// 非成员不能拉人
	if err = svc.AddGroupMembers(ctx, 9, group.ID, []uint64{3}); !errors.Is(err, service.ErrNotRoomMember) {
		t.Fatalf("expected ErrNotRoomMember, got %v", err)
	}

	// 已在群内的成员静默跳过，新成员正常入群
	if err = svc.AddGroupMembers(ctx, 1, group.ID, []uint64{2, 3}); err != nil {
		t.Fatalf("add members error: %v", err)
	}
	full, err := roomRepo.GetRoomWithMembers(ctx, group.ID)
	if err != nil {
		t.Fatalf("load group error: %v", err)
	}
	if len(full.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(full.Members))
	}
}

func TestSendMessageAndHistory(t *testing.T) {
	svc, _, _ := newChatService(t)
	ctx := context.Background()

	room, err := svc.ResolveDirectRoom(ctx, 1, 2)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}

	// 非成员禁止发送
	if _, err = svc.SendMessage(ctx, 9, &dto.SendMessageReq{RoomID: room.ID, Content: "hi"}); !errors.Is(err, service.ErrNotRoomMember) {
		t.Fatalf("expected ErrNotRoomMember, got %v", err)
	}
	// 非法消息类型
	if _, err = svc.SendMessage(ctx, 1, &dto.SendMessageReq{RoomID: room.ID, Content: "hi", MessageType: "voice"}); !errors.Is(err, service.ErrMsgTypeInvalid) {
		t.Fatalf("expected ErrMsgTypeInvalid, got %v", err)
	}

	var ids []string
	for _, content := range []string{"第一条", "第二条", "第三条"} {
		msg, err := svc.SendMessage(ctx, 1, &dto.SendMessageReq{RoomID: room.ID, Content: content})
		if err != nil {
			t.Fatalf("send %q error: %v", content, err)
		}
		if msg.ID == "" {
			t.Fatalf("expected server-generated message id")
		}
		if msg.MessageType != model.MsgTypeText {
			t.Fatalf("expected default type text, got %s", msg.MessageType)
		}
		ids = append(ids, msg.ID)
	}

	// 历史按最旧在前返回
	history, err := svc.GetHistory(ctx, 2, room.ID, time.Time{}, 10)
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	for i, m := range history {
		if m.ID != ids[i] {
			t.Fatalf("history out of order at %d: got %s want %s", i, m.ID, ids[i])
		}
	}

	// 非成员拉不到历史
	if _, err = svc.GetHistory(ctx, 9, room.ID, time.Time{}, 10); !errors.Is(err, service.ErrNotRoomMember) {
		t.Fatalf("expected ErrNotRoomMember, got %v", err)
	}
}

func TestMarkRoomReadIdempotentAndScoped(t *testing.T) {
	svc, _, messageRepo := newChatService(t)
	ctx := context.Background()

	roomA, err := svc.ResolveDirectRoom(ctx, 1, 2)
	if err != nil {
		t.Fatalf("resolve roomA error: %v", err)
	}
	roomB, err := svc.ResolveDirectRoom(ctx, 1, 3)
	if err != nil {
		t.Fatalf("resolve roomB error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err = svc.SendMessage(ctx, 2, &dto.SendMessageReq{RoomID: roomA.ID, Content: "a"}); err != nil {
			t.Fatalf("send to roomA error: %v", err)
		}
	}
	if _, err = svc.SendMessage(ctx, 3, &dto.SendMessageReq{RoomID: roomB.ID, Content: "b"}); err != nil {
		t.Fatalf("send to roomB error: %v", err)
	}

	total, err := svc.GetTotalUnreadCount(ctx, 1)
	if err != nil {
		t.Fatalf("total unread error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 total unread, got %d", total)
	}

	// 已读只影响本房间，且对发送方自己的消息无感
	if err = svc.MarkRoomRead(ctx, 1, roomA.ID); err != nil {
		t.Fatalf("mark read error: %v", err)
	}
	unreadA, err := svc.GetUnreadCount(ctx, 1, roomA.ID)
	if err != nil {
		t.Fatalf("unreadA error: %v", err)
	}
	if unreadA != 0 {
		t.Fatalf("expected roomA unread 0, got %d", unreadA)
	}
	unreadB, err := svc.GetUnreadCount(ctx, 1, roomB.ID)
	if err != nil {
		t.Fatalf("unreadB error: %v", err)
	}
	if unreadB != 1 {
		t.Fatalf("expected roomB unread 1, got %d", unreadB)
	}

	// 重复标记是幂等操作
	if err = svc.MarkRoomRead(ctx, 1, roomA.ID); err != nil {
		t.Fatalf("second mark read error: %v", err)
	}
	affected, err := messageRepo.MarkRoomRead(ctx, roomA.ID, 1)
	if err != nil {
		t.Fatalf("direct mark read error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected no rows affected on repeat, got %d", affected)
	}
}
