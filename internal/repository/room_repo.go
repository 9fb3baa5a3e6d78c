package repository

import (
	"CampusLink/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type RoomRepo interface {
	CreateRoom(ctx context.Context, room *model.Room, members []*model.RoomMember) error
	GetRoom(ctx context.Context, roomID uint64) (*model.Room, error)
	GetRoomWithMembers(ctx context.Context, roomID uint64) (*model.Room, error)
	GetDirectRoomByPairKey(ctx context.Context, pairKey string) (*model.Room, error)
	AddMembers(ctx context.Context, roomID uint64, members []*model.RoomMember) error
	IsMember(ctx context.Context, roomID uint64, userID uint64) (bool, error)

	TouchLastMessage(ctx context.Context, roomID uint64, content string, msgType string, senderID uint64, at time.Time) error
	GetUserRoomList(ctx context.Context, userID uint64) ([]*model.RoomMember, error)
}

type roomRepoImpl struct {
	db *gorm.DB
}

func NewRoomRepo(db *gorm.DB) RoomRepo {
	return &roomRepoImpl{db: db}
}

// CreateRoom 开启事务创建房间及初始成员
func (s *roomRepoImpl) CreateRoom(ctx context.Context, room *model.Room, members []*model.RoomMember) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		for _, m := range members {
			m.RoomID = room.ID
			m.JoinedAt = time.Now()
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRoom 根据房间 ID 获取房间
func (s *roomRepoImpl) GetRoom(ctx context.Context, roomID uint64) (*model.Room, error) {
	var room model.Room
	err := s.db.WithContext(ctx).First(&room, roomID).Error
	return &room, err
}

// GetRoomWithMembers 获取房间并装配全部成员
func (s *roomRepoImpl) GetRoomWithMembers(ctx context.Context, roomID uint64) (*model.Room, error) {
	var room model.Room
	err := s.db.WithContext(ctx).Preload("Members").First(&room, roomID).Error
	return &room, err
}

// GetDirectRoomByPairKey 根据无序用户对标识获取单聊房间
func (s *roomRepoImpl) GetDirectRoomByPairKey(ctx context.Context, pairKey string) (*model.Room, error) {
	var room model.Room
	err := s.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&room).Error
	return &room, err
}

// AddMembers 添加群成员，依赖 (room_id, user_id) 唯一索引兜底防重
func (s *roomRepoImpl) AddMembers(ctx context.Context, roomID uint64, members []*model.RoomMember) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range members {
			m.RoomID = roomID
			m.JoinedAt = time.Now()
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// IsMember 检查用户是否是房间成员
func (s *roomRepoImpl) IsMember(ctx context.Context, roomID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

// TouchLastMessage 刷新房间的最新消息预览与活跃时间
func (s *roomRepoImpl) TouchLastMessage(ctx context.Context, roomID uint64, content string, msgType string, senderID uint64, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.Room{}).Where("id = ?", roomID).
		Updates(map[string]interface{}{
			"last_msg_content": content,
			"last_msg_type":    msgType,
			"last_sender_id":   senderID,
			"last_message_at":  at,
		}).Error
}

// GetUserRoomList 联表查询房间列表，利用嵌套 Model 自动装配
// 未读数定义：房间内非本人发送且未读的消息条数
func (s *roomRepoImpl) GetUserRoomList(ctx context.Context, userID uint64) ([]*model.RoomMember, error) {
	var members []*model.RoomMember
	// 使用 Room__ 别名配合 GORM 的嵌套填充特性
	err := s.db.WithContext(ctx).Table("room_members m").
		Select("m.*, "+
			"r.id AS `Room__id`, r.name AS `Room__name`, "+
			"r.is_group AS `Room__is_group`, r.created_by AS `Room__created_by`, "+
			"r.last_msg_content AS `Room__last_msg_content`, "+
			"r.last_msg_type AS `Room__last_msg_type`, "+
			"r.last_sender_id AS `Room__last_sender_id`, "+
			"r.last_message_at AS `Room__last_message_at`, "+
			"(SELECT COUNT(*) FROM messages msg "+
			" WHERE msg.room_id = m.room_id AND msg.sender_id <> m.user_id AND msg.is_read = 0) AS unread_count").
		Joins("JOIN rooms r ON m.room_id = r.id").
		Where("m.user_id = ?", userID).
		Order("r.last_message_at DESC").
		Find(&members).Error
	return members, err
}
