package service

import (
	"CampusLink/internal/api/dto"
	"CampusLink/internal/model"
	"CampusLink/internal/pkg/consts"
	"CampusLink/internal/pkg/minio"
	"CampusLink/internal/pkg/redis"
	"CampusLink/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// ChatService 消息核心服务接口定义
// 调用方身份一律显式传参，不读任何全局登录态
type ChatService interface {
	ResolveDirectRoom(ctx context.Context, selfID, targetID uint64) (*dto.RoomDTO, error)
	CreateGroupRoom(ctx context.Context, selfID uint64, name string, memberIDs []uint64) (*dto.RoomDTO, error)
	AddGroupMembers(ctx context.Context, selfID, roomID uint64, memberIDs []uint64) error

	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	GetHistory(ctx context.Context, userID uint64, roomID uint64, before time.Time, pageSize int) ([]*dto.MessageDTO, error)
	GetRoomList(ctx context.Context, userID uint64) ([]*dto.RoomListItemDTO, error)

	MarkRoomRead(ctx context.Context, userID uint64, roomID uint64) error
	GetUnreadCount(ctx context.Context, userID uint64, roomID uint64) (int64, error)
	GetTotalUnreadCount(ctx context.Context, userID uint64) (int64, error)
}

type chatServiceImpl struct {
	roomRepo    repository.RoomRepo
	messageRepo repository.MessageRepo
}

func NewChatService(roomRepo repository.RoomRepo, messageRepo repository.MessageRepo) ChatService {
	return &chatServiceImpl{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
	}
}

// PairKey 单聊房间的无序用户对标识
func PairKey(userID, targetID uint64) string {
	if userID < targetID {
		return fmt.Sprintf("%d_%d", userID, targetID)
	}
	return fmt.Sprintf("%d_%d", targetID, userID)
}

// ResolveDirectRoom 针对单聊：获取或创建房间
// pair_key 唯一索引兜底并发：插入冲突视为"房间已存在"，回退重查
func (s *chatServiceImpl) ResolveDirectRoom(ctx context.Context, selfID, targetID uint64) (*dto.RoomDTO, error) {
	if selfID == 0 {
		return nil, ErrUnauthenticated
	}
	if targetID == 0 || targetID == selfID {
		return nil, ErrTargetUserInvalid
	}

	pairKey := PairKey(selfID, targetID)

	room, err := s.roomRepo.GetDirectRoomByPairKey(ctx, pairKey)
	if err == nil {
		return s.loadRoomDTO(ctx, room.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	newRoom := &model.Room{
		IsGroup:       false,
		PairKey:       &pairKey,
		CreatedBy:     selfID,
		LastMessageAt: time.Now(),
	}
	members := []*model.RoomMember{
		{UserID: selfID},
		{UserID: targetID},
	}

	if err = s.roomRepo.CreateRoom(ctx, newRoom, members); err != nil {
		// 对端同时发起时本端插入会撞唯一索引，重查即可
		if existing, qerr := s.roomRepo.GetDirectRoomByPairKey(ctx, pairKey); qerr == nil {
			log.InfoContext(ctx, "direct room create raced, reusing existing", "pairKey", pairKey, "roomID", existing.ID)
			return s.loadRoomDTO(ctx, existing.ID)
		}
		return nil, err
	}
	return s.loadRoomDTO(ctx, newRoom.ID)
}

// CreateGroupRoom 创建群聊：总是新建，创建者隐式入群
func (s *chatServiceImpl) CreateGroupRoom(ctx context.Context, selfID uint64, name string, memberIDs []uint64) (*dto.RoomDTO, error) {
	if selfID == 0 {
		return nil, ErrUnauthenticated
	}
	if name == "" {
		return nil, ErrParamInvalid
	}

	// 去重并保证创建者在成员集合内
	seen := map[uint64]struct{}{selfID: {}}
	members := []*model.RoomMember{{UserID: selfID}}
	for _, id := range memberIDs {
		if id == 0 {
			return nil, ErrTargetUserInvalid
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, &model.RoomMember{UserID: id})
	}
	if len(members) < 2 {
		return nil, ErrTargetUserInvalid
	}

	newRoom := &model.Room{
		Name:          name,
		IsGroup:       true,
		CreatedBy:     selfID,
		LastMessageAt: time.Now(),
	}
	if err := s.roomRepo.CreateRoom(ctx, newRoom, members); err != nil {
		return nil, err
	}
	return s.loadRoomDTO(ctx, newRoom.ID)
}

// AddGroupMembers 添加群成员，单聊房间成员集合不可变更
func (s *chatServiceImpl) AddGroupMembers(ctx context.Context, selfID, roomID uint64, memberIDs []uint64) error {
	if selfID == 0 {
		return ErrUnauthenticated
	}

	room, err := s.roomRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	if !room.IsGroup {
		return ErrNotGroupRoom
	}

	isMember, err := s.roomRepo.IsMember(ctx, roomID, selfID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotRoomMember
	}

	var members []*model.RoomMember
	for _, id := range memberIDs {
		if id == 0 {
			return ErrTargetUserInvalid
		}
		exists, err := s.roomRepo.IsMember(ctx, roomID, id)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		members = append(members, &model.RoomMember{UserID: id})
	}
	if len(members) == 0 {
		return nil
	}
	return s.roomRepo.AddMembers(ctx, roomID, members)
}

// SendMessage 发送消息：落库、刷新房间预览、向房间频道发布插入事件
// 返回的完整行同时充当发送端的乐观插入，与推送到达按消息 ID 去重
func (s *chatServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if senderID == 0 {
		return nil, ErrUnauthenticated
	}

	msgType := req.MessageType
	if msgType == "" {
		msgType = model.MsgTypeText
	}
	if !model.ValidMsgType(msgType) {
		return nil, ErrMsgTypeInvalid
	}

	isMember, err := s.roomRepo.IsMember(ctx, req.RoomID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotRoomMember
	}

	msg := &model.Message{
		ID:          uuid.NewString(),
		RoomID:      req.RoomID,
		SenderID:    senderID,
		Content:     req.Content,
		MessageType: msgType,
		FileURL:     req.FileURL,
		CreatedAt:   time.Now(),
	}
	if err = s.messageRepo.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err = s.roomRepo.TouchLastMessage(ctx, req.RoomID, msg.Content, msg.MessageType, senderID, msg.CreatedAt); err != nil {
		log.WarnContext(ctx, "failed to touch room preview", "roomID", req.RoomID, "err", err)
	}

	// 附件被消息引用后不再算孤儿，摘掉临时标记
	if req.FileURL != "" {
		if key := minio.ObjectNameFromURL(req.FileURL); key != "" {
			_ = redis.HDel(ctx, consts.MediaTempKey, key)
		}
	}

	s.publishInsertEvent(ctx, msg)

	full, err := s.messageRepo.GetMessageByID(ctx, msg.ID)
	if err != nil {
		// 行已落库，资料装配失败就退回裸行
		full = msg
	}
	return toMessageDTO(full), nil
}

// GetHistory 拉取历史：存储侧最新在前，返回给调用方最旧在前
func (s *chatServiceImpl) GetHistory(ctx context.Context, userID uint64, roomID uint64, before time.Time, pageSize int) ([]*dto.MessageDTO, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	isMember, err := s.roomRepo.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotRoomMember
	}

	if pageSize <= 0 {
		pageSize = consts.DefaultPageSize
	}
	if pageSize > consts.MaxPageSize {
		pageSize = consts.MaxPageSize
	}

	messages, err := s.messageRepo.GetHistory(ctx, roomID, before, pageSize)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.MessageDTO, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		res = append(res, toMessageDTO(messages[i]))
	}
	return res, nil
}

// GetRoomList 获取房间列表，按最近活跃降序
func (s *chatServiceImpl) GetRoomList(ctx context.Context, userID uint64) ([]*dto.RoomListItemDTO, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}

	members, err := s.roomRepo.GetUserRoomList(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.RoomListItemDTO, 0, len(members))
	for _, m := range members {
		d := &dto.RoomListItemDTO{
			RoomID:         m.RoomID,
			Name:           m.Room.Name,
			IsGroup:        m.Room.IsGroup,
			LastMsgContent: m.Room.LastMsgContent,
			LastMsgType:    m.Room.LastMsgType,
			LastSenderID:   m.Room.LastSenderID,
			LastMessageAt:  m.Room.LastMessageAt,
			UnreadCount:    m.UnreadCount,
		}
		res = append(res, d)
	}
	return res, nil
}

// MarkRoomRead 批量已读，幂等
func (s *chatServiceImpl) MarkRoomRead(ctx context.Context, userID uint64, roomID uint64) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	isMember, err := s.roomRepo.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotRoomMember
	}

	affected, err := s.messageRepo.MarkRoomRead(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if affected > 0 {
		log.InfoContext(ctx, "room marked read", "roomID", roomID, "userID", userID, "affected", affected)
	}
	return nil
}

// GetUnreadCount 单房间未读数
func (s *chatServiceImpl) GetUnreadCount(ctx context.Context, userID uint64, roomID uint64) (int64, error) {
	if userID == 0 {
		return 0, ErrUnauthenticated
	}
	return s.messageRepo.UnreadCount(ctx, roomID, userID)
}

// GetTotalUnreadCount 全局未读数
func (s *chatServiceImpl) GetTotalUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	if userID == 0 {
		return 0, ErrUnauthenticated
	}
	return s.messageRepo.TotalUnreadCount(ctx, userID)
}

// publishInsertEvent 向房间频道发布插入事件
// CDC 链路也会投递同一事件，消费侧按消息 ID 去重
func (s *chatServiceImpl) publishInsertEvent(ctx context.Context, msg *model.Message) {
	ev := &dto.MessageEventDTO{
		Type:      "INSERT",
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	channel := consts.ChatRoomKey + strconv.FormatUint(msg.RoomID, 10)
	if err = redis.Publish(ctx, channel, data); err != nil {
		log.ErrorContext(ctx, "failed to publish insert event", "roomID", msg.RoomID, "err", err)
	}
}

func (s *chatServiceImpl) loadRoomDTO(ctx context.Context, roomID uint64) (*dto.RoomDTO, error) {
	room, err := s.roomRepo.GetRoomWithMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return toRoomDTO(room), nil
}

func toRoomDTO(room *model.Room) *dto.RoomDTO {
	d := &dto.RoomDTO{
		ID:        room.ID,
		Name:      room.Name,
		IsGroup:   room.IsGroup,
		CreatedBy: room.CreatedBy,
		CreatedAt: room.CreatedAt,
	}
	for _, m := range room.Members {
		d.Members = append(d.Members, dto.ParticipantDTO{UserID: m.UserID, JoinedAt: m.JoinedAt})
	}
	return d
}

func toMessageDTO(m *model.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	if err := copier.Copy(d, m); err != nil {
		return &dto.MessageDTO{
			ID: m.ID, RoomID: m.RoomID, SenderID: m.SenderID,
			Content: m.Content, MessageType: m.MessageType,
			FileURL: m.FileURL, IsRead: m.IsRead, CreatedAt: m.CreatedAt,
		}
	}
	return d
}
