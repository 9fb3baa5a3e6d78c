package kafka

import (
	"CampusLink/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	messagesConsumer sarama.ConsumerGroup
	messagesHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	messagesConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaMessageConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		messagesConsumer: messagesConsumer,
		messagesHandler:  NewMessagesHandler(),
	}, nil
}

// Start 启动所有消费者
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	go func() {
		topic := cfg.KafkaMessageConsumer.Topic
		log.Info("Messages consumer started", "topic", topic)
		for {
			if err := m.messagesConsumer.Consume(ctx, []string{topic}, m.messagesHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.messagesConsumer.Close(); err != nil {
		log.Error("Failed to close messages consumer", "err", err)
	}

	return nil
}
