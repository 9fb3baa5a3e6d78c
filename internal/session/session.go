package session

import (
	"CampusLink/internal/api/dto"
	"CampusLink/internal/model"
	"context"
	log "log/slog"
	"sync"
	"time"
)

// State 会话状态机：idle → loading → ready ↔ error
type State int8

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Snapshot 对外暴露的只读会话状态
type Snapshot struct {
	State    State             `json:"-"`
	StateStr string            `json:"state"`
	RoomID   uint64            `json:"room_id,omitempty"`
	Messages []*dto.MessageDTO `json:"messages"`
	// Unread 当前房间的未读数；房间在前台即读，ready 态恒为 0
	Unread int64  `json:"unread"`
	Err    string `json:"error,omitempty"`
}

// Stream 房间消息流的生命周期抽象，RoomFeed 是生产实现
type Stream interface {
	Subscribe(ctx context.Context, roomID uint64) error
	Prime()
	C() <-chan *model.Message
	Unsubscribe()
}

// StreamFactory 每次打开房间构造一条新流
type StreamFactory func() Stream

// Loader 会话所需的存储操作子集
type Loader interface {
	GetHistory(ctx context.Context, roomID uint64, before time.Time, pageSize int) ([]*model.Message, error)
	MarkRoomRead(ctx context.Context, roomID uint64, readerID uint64) (int64, error)
}

const (
	sessionPageSize = 50
	watchBuffer     = 8
)

// Session 会话控制器
// 同一实例至多一个活跃房间订阅；打开新房间先退订旧房间。
// 全部状态变更串行在 run 协程内执行，消息列表单写多读。
type Session struct {
	userID    uint64
	store     Loader
	newStream StreamFactory

	cmds  chan func()
	watch chan Snapshot
	done  chan struct{}
	once  sync.Once

	// 以下字段仅 run 协程读写
	state    State
	roomID   uint64
	messages []*dto.MessageDTO
	seen     map[string]struct{}
	errMsg   string
	stream   Stream
	arrivals <-chan *model.Message
}

func NewSession(userID uint64, store Loader, newStream StreamFactory) *Session {
	s := &Session{
		userID:    userID,
		store:     store,
		newStream: newStream,
		cmds:      make(chan func(), 16),
		watch:     make(chan Snapshot, watchBuffer),
		done:      make(chan struct{}),
		state:     StateIdle,
		seen:      make(map[string]struct{}),
	}
	go s.run()
	return s
}

// Open 打开房间：隐式关闭已打开的房间
func (s *Session) Open(roomID uint64) {
	s.enqueue(func() { s.openRoom(roomID) })
}

// Retry 从 error 状态重新进入 loading
func (s *Session) Retry() {
	s.enqueue(func() {
		if s.state == StateError && s.roomID != 0 {
			s.openRoom(s.roomID)
		}
	})
}

// CloseRoom 关闭当前房间，回到 idle
func (s *Session) CloseRoom() {
	s.enqueue(func() {
		s.teardown()
		s.reset()
		s.notify()
	})
}

// Watch 状态快照通道，会话销毁后关闭
// 消费不及时只保留最新快照
func (s *Session) Watch() <-chan Snapshot {
	return s.watch
}

// Dispose 销毁会话并同步释放订阅
func (s *Session) Dispose() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) enqueue(cmd func()) {
	select {
	case s.cmds <- cmd:
	case <-s.done:
	}
}

// run 会话事件环：命令与流到达串行处理，无需内部加锁
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			s.teardown()
			close(s.watch)
			return
		case cmd := <-s.cmds:
			cmd()
		case m, ok := <-s.arrivals:
			if !ok {
				s.arrivals = nil
				continue
			}
			s.onArrival(m)
		}
	}
}

func (s *Session) openRoom(roomID uint64) {
	// 退订先于一切后续事件处理
	s.teardown()

	s.roomID = roomID
	s.state = StateLoading
	s.errMsg = ""
	s.notify()

	ctx := context.Background()

	// 先订阅后拉首页：加载期间的推送由流暂存，Prime 后补发
	st := s.newStream()
	if err := st.Subscribe(ctx, roomID); err != nil {
		s.fail(err)
		return
	}

	page, err := s.store.GetHistory(ctx, roomID, time.Time{}, sessionPageSize)
	if err != nil {
		st.Unsubscribe()
		s.fail(err)
		return
	}

	// 存储侧最新在前，这里反转为最旧在前
	msgs := make([]*dto.MessageDTO, 0, len(page))
	seen := make(map[string]struct{}, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		msgs = append(msgs, toSessionDTO(page[i]))
		seen[page[i].ID] = struct{}{}
	}
	s.messages = msgs
	s.seen = seen

	// 打开即已读
	if _, err = s.store.MarkRoomRead(ctx, roomID, s.userID); err != nil {
		log.WarnContext(ctx, "failed to mark room read on open", "roomID", roomID, "err", err)
	}

	s.stream = st
	s.arrivals = st.C()
	st.Prime()

	s.state = StateReady
	s.notify()
}

// onArrival 合并流到达：按消息 ID 去重，只追加不插入不重排
func (s *Session) onArrival(m *model.Message) {
	if s.state != StateReady || m.RoomID != s.roomID {
		return
	}
	if _, dup := s.seen[m.ID]; dup {
		return
	}
	s.seen[m.ID] = struct{}{}

	// 房间处于前台，对方的新消息立即置已读
	if m.SenderID != s.userID {
		if _, err := s.store.MarkRoomRead(context.Background(), s.roomID, s.userID); err != nil {
			log.Warn("failed to mark arrival read", "roomID", s.roomID, "err", err)
		}
	}
	d := toSessionDTO(m)
	d.IsRead = true
	s.messages = append(s.messages, d)
	s.notify()
}

// fail 进入 error 态，保留已加载的消息供展示
func (s *Session) fail(err error) {
	s.state = StateError
	s.errMsg = err.Error()
	log.Warn("session fault", "roomID", s.roomID, "err", err)
	s.notify()
}

func (s *Session) teardown() {
	if s.stream != nil {
		s.stream.Unsubscribe()
		s.stream = nil
		s.arrivals = nil
	}
}

func (s *Session) reset() {
	s.state = StateIdle
	s.roomID = 0
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.errMsg = ""
}

// notify 投递最新快照，消费不及时则挤掉旧的
func (s *Session) notify() {
	snap := s.snapshot()
	for {
		select {
		case s.watch <- snap:
			return
		default:
			select {
			case <-s.watch:
			default:
			}
		}
	}
}

func (s *Session) snapshot() Snapshot {
	msgs := make([]*dto.MessageDTO, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		State:    s.state,
		StateStr: s.state.String(),
		RoomID:   s.roomID,
		Messages: msgs,
		Err:      s.errMsg,
	}
}

func toSessionDTO(m *model.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		MessageType: m.MessageType,
		FileURL:     m.FileURL,
		IsRead:      m.IsRead,
		CreatedAt:   m.CreatedAt,
	}
	if m.Sender != nil {
		d.Sender = &dto.SenderDTO{
			ID:       m.Sender.ID,
			Username: m.Sender.Username,
			Nickname: m.Sender.Nickname,
			Avatar:   m.Sender.Avatar,
		}
	}
	return d
}
