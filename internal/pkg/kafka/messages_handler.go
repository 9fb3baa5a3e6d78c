package kafka

import (
	"CampusLink/internal/api/dto"
	"CampusLink/internal/pkg/consts"
	"CampusLink/internal/pkg/redis"
	"context"
	log "log/slog"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// MessagesHandler 消费 messages 表的 Canal 变更流
// 插入事件转投到对应房间频道，构成推送链路的权威来源。
// 发送服务自己也会就地发布一次同样的事件，消费侧按消息 ID 去重，
// 所以双投不破坏"至多渲染一次"。
type MessagesHandler struct{}

func NewMessagesHandler() *MessagesHandler {
	return &MessagesHandler{}
}

func (s *MessagesHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("messages consumer setup")
	return nil
}

func (s *MessagesHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("messages consumer cleanup")
	return nil
}

func (s *MessagesHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-messages consume claim")
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("topic-messages process batch error", "err", err)
		return err
	}
	return nil
}

func (s *MessagesHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, "messages")
	if err != nil {
		return err
	}

	// 消息只追加不修改，UPDATE 只有批量已读，无需推送
	if canalMsg.Type != INSERT {
		return nil
	}

	for _, row := range canalMsg.Data {
		roomID := StrToUint64(row["room_id"])
		messageID := StrVal(row["id"])
		if roomID == 0 || messageID == "" {
			log.WarnContext(ctx, "skip malformed message row", "row", row)
			continue
		}

		ev := &dto.MessageEventDTO{
			Type:      INSERT,
			RoomID:    roomID,
			MessageID: messageID,
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "marshal message event")
		}

		channel := consts.ChatRoomKey + strconv.FormatUint(roomID, 10)
		if err = redis.Publish(ctx, channel, data); err != nil {
			return errors.Wrapf(err, "publish insert event to %s", channel)
		}

		log.InfoContext(ctx, "message insert fanned out", "roomID", roomID, "messageID", messageID)
	}
	return nil
}
