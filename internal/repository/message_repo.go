package repository

import (
	"CampusLink/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type MessageRepo interface {
	SaveMessage(ctx context.Context, msg *model.Message) error
	GetMessageByID(ctx context.Context, id string) (*model.Message, error)
	GetHistory(ctx context.Context, roomID uint64, before time.Time, pageSize int) ([]*model.Message, error)

	MarkRoomRead(ctx context.Context, roomID uint64, readerID uint64) (int64, error)
	UnreadCount(ctx context.Context, roomID uint64, userID uint64) (int64, error)
	TotalUnreadCount(ctx context.Context, userID uint64) (int64, error)
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// SaveMessage 落库一条消息
func (s *messageRepoImpl) SaveMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// GetMessageByID 按 ID 精确查询，联表装配发送者资料
// 推送事件只携带裸行，消费侧统一走这里回读
func (s *messageRepoImpl) GetMessageByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).Preload("Sender").Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetHistory 历史消息查询逻辑
// before 为当前页面最旧一条消息的时间。如果是第一页，传零值。
// 返回按 (created_at, id) 降序排列（最新的在前）
func (s *messageRepoImpl) GetHistory(ctx context.Context, roomID uint64, before time.Time, pageSize int) ([]*model.Message, error) {
	query := s.db.WithContext(ctx).Preload("Sender").Where("room_id = ?", roomID)

	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []*model.Message
	err := query.Order("created_at DESC, id DESC").Limit(pageSize).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRoomRead 批量已读：翻转房间内非本人发送的全部未读消息
// 幂等操作，无新消息可标记时影响行数为 0
func (s *messageRepoImpl) MarkRoomRead(ctx context.Context, roomID uint64, readerID uint64) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("room_id = ? AND sender_id <> ? AND is_read = 0", roomID, readerID).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// UnreadCount 单房间未读数
func (s *messageRepoImpl) UnreadCount(ctx context.Context, roomID uint64, userID uint64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("room_id = ? AND sender_id <> ? AND is_read = 0", roomID, userID).
		Count(&count).Error
	return count, err
}

// TotalUnreadCount 计算全局未读数（角标用）
func (s *messageRepoImpl) TotalUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Table("messages msg").
		Joins("JOIN room_members m ON m.room_id = msg.room_id AND m.user_id = ?", userID).
		Where("msg.sender_id <> ? AND msg.is_read = 0", userID).
		Count(&total).Error
	return total, err
}
