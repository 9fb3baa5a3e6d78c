package handler

import (
	"CampusLink/internal/api/dto"
	"CampusLink/internal/pkg/response"
	"CampusLink/internal/service"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ResolveDirectRoom 获取或创建单聊房间
func (s *ChatHandler) ResolveDirectRoom(c *gin.Context) {
	var req dto.ResolveDirectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	selfID := c.GetUint64("user_id")

	res, err := s.chatService.ResolveDirectRoom(c, selfID, req.TargetUserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// CreateGroupRoom 创建群聊房间
func (s *ChatHandler) CreateGroupRoom(c *gin.Context) {
	var req dto.CreateGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	selfID := c.GetUint64("user_id")

	res, err := s.chatService.CreateGroupRoom(c, selfID, req.Name, req.MemberIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// AddGroupMembers 添加群成员
func (s *ChatHandler) AddGroupMembers(c *gin.Context) {
	var req dto.AddGroupMembersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	selfID := c.GetUint64("user_id")

	if err := s.chatService.AddGroupMembers(c, selfID, req.RoomID, req.MemberIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SendMessage 发送消息接口
func (s *ChatHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	senderID := c.GetUint64("user_id")

	res, err := s.chatService.SendMessage(c, senderID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetHistory 获取历史消息，before 传上一页最旧一条的时间戳
func (s *ChatHandler) GetHistory(c *gin.Context) {
	roomID, _ := strconv.ParseUint(c.Query("room_id"), 10, 64)
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.Error(c, service.ErrParamInvalid)
			return
		}
		before = t
	}

	userID := c.GetUint64("user_id")

	res, err := s.chatService.GetHistory(c, userID, roomID, before, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetRoomList 获取房间列表
func (s *ChatHandler) GetRoomList(c *gin.Context) {
	userID := c.GetUint64("user_id")
	res, err := s.chatService.GetRoomList(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkRoomRead 标记已读接口
func (s *ChatHandler) MarkRoomRead(c *gin.Context) {
	var req dto.MarkReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	if err := s.chatService.MarkRoomRead(c, userID, req.RoomID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetUnreadCount 未读数查询：带 room_id 查单房间，不带查全局
func (s *ChatHandler) GetUnreadCount(c *gin.Context) {
	userID := c.GetUint64("user_id")

	if raw := c.Query("room_id"); raw != "" {
		roomID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.Error(c, service.ErrParamInvalid)
			return
		}
		count, err := s.chatService.GetUnreadCount(c, userID, roomID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, gin.H{"unread_count": count})
		return
	}

	count, err := s.chatService.GetTotalUnreadCount(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"unread_count": count})
}
