package api

import (
	"CampusLink/internal/api/middleware"
	"CampusLink/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		chatGroup := apiGroup.Group("/chat")
		chatGroup.Use(middleware.AuthMiddleware())
		{
			chatGroup.POST("/direct", group.ChatHandler.ResolveDirectRoom)
			chatGroup.POST("/group", group.ChatHandler.CreateGroupRoom)
			chatGroup.POST("/group/members", group.ChatHandler.AddGroupMembers)
			chatGroup.GET("/rooms", group.ChatHandler.GetRoomList)

			chatGroup.POST("/send", group.ChatHandler.SendMessage)
			chatGroup.GET("/history", group.ChatHandler.GetHistory)
			chatGroup.POST("/read", group.ChatHandler.MarkRoomRead)
			chatGroup.GET("/unread", group.ChatHandler.GetUnreadCount)
		}

		imGroup := apiGroup.Group("/im")
		{
			// 长连接在握手参数里鉴权，不走 Auth 中间件
			imGroup.GET("", group.WSHandler.Connect)
		}

		mediaGroup := apiGroup.Group("/media")
		{
			mediaGroup.Use(middleware.AuthMiddleware())
			mediaGroup.POST("/upload", group.MediaHandler.Upload)
		}
	}

	return r
}
