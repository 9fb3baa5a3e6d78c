package session

import (
	"CampusLink/internal/api/dto"
	"CampusLink/internal/model"
	"CampusLink/internal/pkg/consts"
	"context"
	log "log/slog"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
)

const (
	// feedBuffer 输出通道容量，超出后丢最旧
	feedBuffer = 128
	// pendingLimit 首页加载完成前的暂存上限
	pendingLimit = 256
)

// EventSource 房间事件源
// 生产实现走 Redis Pub/Sub，抽象出来便于测试替换
type EventSource interface {
	// Subscribe 订阅频道，返回载荷通道与关闭函数；关闭后通道必须被 close
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

// MessageFetcher 按 ID 回读完整消息行（含发送者资料）
type MessageFetcher interface {
	GetMessageByID(ctx context.Context, id string) (*model.Message, error)
}

// RoomFeed 单个房间的消息流
// 推送事件只携带裸行，这里一律按 ID 回读后再投递；
// 首页加载完成（Prime）之前到达的消息顺序暂存，Prime 后原序补发，绝不丢弃。
// 同一条消息每个订阅周期内至多投递一次。
type RoomFeed struct {
	source EventSource
	store  MessageFetcher

	out chan *model.Message

	mu      sync.Mutex
	primed  bool
	pending []*model.Message
	seen    map[string]struct{}

	cancel func() error
	once   sync.Once
}

func NewRoomFeed(source EventSource, store MessageFetcher) *RoomFeed {
	return &RoomFeed{
		source: source,
		store:  store,
		out:    make(chan *model.Message, feedBuffer),
		seen:   make(map[string]struct{}),
	}
}

// Subscribe 打开房间频道并启动泵协程
// 每个房间每个会话至多一条频道，由调用方（Session）保证
func (f *RoomFeed) Subscribe(ctx context.Context, roomID uint64) error {
	channel := consts.ChatRoomKey + strconv.FormatUint(roomID, 10)
	events, cancel, err := f.source.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	f.cancel = cancel

	go f.pump(ctx, events)
	return nil
}

// C 消息到达通道，取消订阅后关闭
func (f *RoomFeed) C() <-chan *model.Message {
	return f.out
}

// Prime 标记首页已加载完成，补发暂存的到达
func (f *RoomFeed) Prime() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primed = true
	for _, m := range f.pending {
		f.push(m)
	}
	f.pending = nil
}

// Unsubscribe 释放频道订阅，幂等，未订阅时调用安全
func (f *RoomFeed) Unsubscribe() {
	f.once.Do(func() {
		if f.cancel != nil {
			if err := f.cancel(); err != nil {
				log.Warn("failed to close feed subscription", "err", err)
			}
		}
	})
}

// pump 事件泵：解析事件、回读完整行、投递
func (f *RoomFeed) pump(ctx context.Context, events <-chan []byte) {
	defer close(f.out)

	for payload := range events {
		var ev dto.MessageEventDTO
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.WarnContext(ctx, "invalid feed event payload", "err", err)
			continue
		}
		if ev.MessageID == "" || ev.Type != "INSERT" {
			continue
		}

		msg, err := f.store.GetMessageByID(ctx, ev.MessageID)
		if err != nil {
			log.WarnContext(ctx, "failed to refetch pushed message", "messageID", ev.MessageID, "err", err)
			continue
		}
		f.deliver(msg)
	}
}

func (f *RoomFeed) deliver(msg *model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.seen[msg.ID]; dup {
		return
	}
	f.seen[msg.ID] = struct{}{}

	if !f.primed {
		if len(f.pending) >= pendingLimit {
			f.pending = f.pending[1:]
		}
		f.pending = append(f.pending, msg)
		return
	}
	f.push(msg)
}

// push 非阻塞投递，通道满时丢最旧
func (f *RoomFeed) push(msg *model.Message) {
	for {
		select {
		case f.out <- msg:
			return
		default:
			select {
			case dropped := <-f.out:
				log.Warn("feed buffer overflow, dropping oldest", "messageID", dropped.ID)
			default:
			}
		}
	}
}
