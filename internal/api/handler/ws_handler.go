package handler

import (
	"CampusLink/internal/pkg/response"
	"CampusLink/internal/pkg/security"
	"CampusLink/internal/repository"
	"CampusLink/internal/service"
	"CampusLink/internal/session"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsCommand 客户端下行指令帧
type wsCommand struct {
	Action string `json:"action"` // open / close / retry
	RoomID uint64 `json:"room_id"`
}

type WsHandler struct {
	messageRepo repository.MessageRepo
}

func NewWsHandler(messageRepo repository.MessageRepo) *WsHandler {
	return &WsHandler{messageRepo: messageRepo}
}

// Connect 聊天长连接入口
// 每条连接持有一个会话控制器，同一时刻至多打开一个房间。
func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.ErrUnauthenticated)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.ErrUnauthenticated)
		return
	}
	userID := claims.UserID

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	sess := session.NewSession(userID, s.messageRepo, func() session.Stream {
		return session.NewRoomFeed(session.NewRedisEventSource(), s.messageRepo)
	})
	defer sess.Dispose()

	log.Info("用户 WS 连接已建立", "userID", userID)

	stopChan := make(chan struct{})

	// 读循环：处理客户端指令，连接断开时退出
	go func() {
		defer close(stopChan)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd wsCommand
			if err := json.Unmarshal(payload, &cmd); err != nil {
				log.Warn("WS 指令帧解析失败", "userID", userID, "err", err)
				continue
			}
			switch cmd.Action {
			case "open":
				if cmd.RoomID == 0 {
					continue
				}
				sess.Open(cmd.RoomID)
			case "close":
				sess.CloseRoom()
			case "retry":
				sess.Retry()
			default:
				log.Warn("WS 未知指令", "userID", userID, "action", cmd.Action)
			}
		}
	}()

	// 写循环：推送会话快照至客户端
	for {
		select {
		case snap, ok := <-sess.Watch():
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				log.Error("WS 快照序列化失败", "userID", userID, "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error("WS 推送失败", "userID", userID, "err", err)
				return
			}
		case <-stopChan:
			log.Info("用户 WS 连接已断开", "userID", userID)
			return
		}
	}
}
