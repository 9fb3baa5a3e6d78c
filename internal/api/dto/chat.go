package dto

import "time"

// ResolveDirectReq 解析单聊房间请求体
type ResolveDirectReq struct {
	TargetUserID uint64 `json:"target_user_id" binding:"required"`
}

// CreateGroupReq 创建群聊请求体
type CreateGroupReq struct {
	Name      string   `json:"name" binding:"required,max=64"`
	MemberIDs []uint64 `json:"member_ids" binding:"required,min=1"`
}

// AddGroupMembersReq 添加群成员请求体
type AddGroupMembersReq struct {
	RoomID    uint64   `json:"room_id" binding:"required"`
	MemberIDs []uint64 `json:"member_ids" binding:"required,min=1"`
}

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	RoomID      uint64 `json:"room_id" binding:"required"`
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"message_type"` // text/image/file/video，缺省 text
	FileURL     string `json:"file_url"`     // 附件消息引用的对象地址
}

// MarkReadReq 标记已读请求体
type MarkReadReq struct {
	RoomID uint64 `json:"room_id" binding:"required"`
}

// SenderDTO 发送者资料投影
type SenderDTO struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID          string     `json:"id"`
	RoomID      uint64     `json:"room_id"`
	SenderID    uint64     `json:"sender_id"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	FileURL     string     `json:"file_url,omitempty"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
	Sender      *SenderDTO `json:"sender,omitempty"`
}

// ParticipantDTO 房间成员
type ParticipantDTO struct {
	UserID   uint64    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomDTO 房间明细响应
type RoomDTO struct {
	ID        uint64           `json:"id"`
	Name      string           `json:"name,omitempty"`
	IsGroup   bool             `json:"is_group"`
	CreatedBy uint64           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
	Members   []ParticipantDTO `json:"members"`
}

// RoomListItemDTO 房间列表项响应
type RoomListItemDTO struct {
	RoomID         uint64    `json:"room_id"`
	Name           string    `json:"name,omitempty"`
	IsGroup        bool      `json:"is_group"`
	PeerID         uint64    `json:"peer_id,omitempty"` // 对手方ID (单聊有效)
	LastMsgContent string    `json:"last_msg_content"`
	LastMsgType    string    `json:"last_msg_type"`
	LastSenderID   uint64    `json:"last_sender_id"`
	LastMessageAt  time.Time `json:"last_message_at"`
	UnreadCount    int64     `json:"unread_count"`
}

// MessageEventDTO 房间频道上的插入事件
// 消费侧不信任事件载荷，一律按 message_id 回读完整行
type MessageEventDTO struct {
	Type      string `json:"type"` // INSERT
	RoomID    uint64 `json:"room_id"`
	MessageID string `json:"message_id"`
}
