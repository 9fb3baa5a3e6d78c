package wire

import (
	"CampusLink/internal/api"
	"CampusLink/internal/api/config"
	"CampusLink/internal/api/handler"
	"CampusLink/internal/job"
	"CampusLink/internal/pkg/cron"
	"CampusLink/internal/pkg/kafka"
	"CampusLink/internal/repository"
	"CampusLink/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager
}

func BuildApplication(db *gorm.DB, cfg *config.Config) (*ApplicationContainer, error) {
	roomRepo := repository.NewRoomRepo(db)
	messageRepo := repository.NewMessageRepo(db)

	chatService := service.NewChatService(roomRepo, messageRepo)

	handlers := &api.HandlersGroup{
		ChatHandler:  handler.NewChatHandler(chatService),
		WSHandler:    handler.NewWsHandler(messageRepo),
		MediaHandler: handler.NewMediaHandler(),
	}

	router := api.SetupRouter(handlers)

	kafkaMgr, err := kafka.NewConsumerManager(cfg)
	if err != nil {
		return nil, err
	}

	cronMgr := cron.NewCronManager(job.NewMediaCleanupJob())

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
	}, nil
}
