package model

import "time"

const (
	MsgTypeText  = "text"
	MsgTypeImage = "image"
	MsgTypeFile  = "file"
	MsgTypeVideo = "video"
)

// Message 消息明细表
// 消息只追加不修改；排序键为 (created_at, id)
type Message struct {
	ID          string    `gorm:"primaryKey;type:char(36)" json:"id"` // 服务端生成的 UUID
	RoomID      uint64    `gorm:"not null;index:idx_room_created" json:"roomId"`
	SenderID    uint64    `gorm:"not null;index" json:"senderId"`
	Content     string    `gorm:"type:text" json:"content"`
	MessageType string    `gorm:"type:varchar(16);not null;default:text" json:"messageType"`
	FileURL     string    `gorm:"type:varchar(512)" json:"fileUrl"`
	IsRead      bool      `gorm:"not null;default:0" json:"isRead"` // 由接收方置位，发送方不关心
	CreatedAt   time.Time `gorm:"index:idx_room_created" json:"createdAt"`

	Sender *User `gorm:"foreignKey:SenderID;references:ID" json:"sender,omitempty"`
}

func (Message) TableName() string { return "messages" }

// ValidMsgType 校验消息类型枚举
func ValidMsgType(t string) bool {
	switch t {
	case MsgTypeText, MsgTypeImage, MsgTypeFile, MsgTypeVideo:
		return true
	}
	return false
}
