package model

import "time"

// Room 聊天房间主表
// 单聊房间成员恒为 2 人；群聊房间成员 ≥2 且只增不减
type Room struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(64)" json:"name"`            // 群聊名称，单聊为空
	IsGroup        bool      `gorm:"not null;default:0;index" json:"isGroup"` // false-单聊, true-群聊
	PairKey        *string   `gorm:"uniqueIndex;type:varchar(64)" json:"-"`   // uid小_uid大，仅单聊；群聊为 NULL
	CreatedBy      uint64    `gorm:"not null" json:"createdBy"`
	LastMsgContent string    `gorm:"type:varchar(255)" json:"lastMsgContent"`
	LastMsgType    string    `gorm:"type:varchar(16);not null;default:text" json:"lastMsgType"`
	LastSenderID   uint64    `gorm:"not null;default:0" json:"lastSenderId"`
	LastMessageAt  time.Time `gorm:"index" json:"lastMessageAt"`
	CreatedAt      time.Time `json:"createdAt"`

	Members []RoomMember `gorm:"foreignKey:RoomID;references:ID" json:"members"`
}

func (Room) TableName() string { return "rooms" }

// RoomMember 房间成员表
type RoomMember struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID   uint64    `gorm:"uniqueIndex:idx_room_user" json:"roomId"`
	UserID   uint64    `gorm:"uniqueIndex:idx_room_user;index" json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`

	Room Room `gorm:"foreignKey:RoomID;references:ID" json:"room"`

	// 虚拟字段：仅读不写，存储 SQL 计算结果
	UnreadCount int64 `gorm:"->" json:"unreadCount"`
}

func (RoomMember) TableName() string { return "room_members" }
