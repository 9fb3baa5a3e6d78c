package session

import (
	"CampusLink/internal/pkg/redis"
	"context"
)

// redisEventSource 基于 Redis Pub/Sub 的房间事件源
type redisEventSource struct{}

// NewRedisEventSource 生产环境事件源，复用全局 Redis 连接
func NewRedisEventSource() EventSource {
	return &redisEventSource{}
}

func (s *redisEventSource) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	pubsub := redis.Subscribe(ctx, channel)

	// 确认订阅建立，失败立刻暴露给调用方
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, feedBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()

	return out, pubsub.Close, nil
}
