package session_test

import (
	"CampusLink/internal/api/dto"
	"CampusLink/internal/model"
	"CampusLink/internal/session"
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

// stubEventSource 手动驱动的事件源
type stubEventSource struct {
	events  chan []byte
	closed  int
	channel string
}

func newStubEventSource() *stubEventSource {
	return &stubEventSource{events: make(chan []byte, 16)}
}

func (s *stubEventSource) Subscribe(_ context.Context, channel string) (<-chan []byte, func() error, error) {
	s.channel = channel
	return s.events, func() error {
		s.closed++
		close(s.events)
		return nil
	}, nil
}

func (s *stubEventSource) emit(t *testing.T, ev dto.MessageEventDTO) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	s.events <- data
}

// stubFetcher 只认登记过的消息 ID
type stubFetcher struct {
	rows map[string]*model.Message
}

func (s *stubFetcher) GetMessageByID(_ context.Context, id string) (*model.Message, error) {
	row, ok := s.rows[id]
	if !ok {
		return &model.Message{}, gorm.ErrRecordNotFound
	}
	return row, nil
}

func newFeedFixture(t *testing.T, roomID uint64, rows ...*model.Message) (*session.RoomFeed, *stubEventSource) {
	t.Helper()
	source := newStubEventSource()
	fetcher := &stubFetcher{rows: make(map[string]*model.Message)}
	for _, r := range rows {
		fetcher.rows[r.ID] = r
	}
	feed := session.NewRoomFeed(source, fetcher)
	if err := feed.Subscribe(context.Background(), roomID); err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	return feed, source
}

func recvMessage(t *testing.T, ch <-chan *model.Message) *model.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("feed channel closed unexpectedly")
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return nil
}

func assertNoMessage(t *testing.T, ch <-chan *model.Message) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected message %s", m.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFeedBuffersUntilPrimed(t *testing.T) {
	m1 := &model.Message{ID: "m1", RoomID: 1, SenderID: 2, Content: "one"}
	m2 := &model.Message{ID: "m2", RoomID: 1, SenderID: 2, Content: "two"}
	feed, source := newFeedFixture(t, 1, m1, m2)
	defer feed.Unsubscribe()

	source.emit(t, dto.MessageEventDTO{Type: "INSERT", RoomID: 1, MessageID: "m1"})
	source.emit(t, dto.MessageEventDTO{Type: "INSERT", RoomID: 1, MessageID: "m2"})

	// Prime 之前不得有任何投递
	assertNoMessage(t, feed.C())

	feed.Prime()
	if got := recvMessage(t, feed.C()); got.ID != "m1" {
		t.Fatalf("expected m1 first, got %s", got.ID)
	}
	if got := recvMessage(t, feed.C()); got.ID != "m2" {
		t.Fatalf("expected m2 second, got %s", got.ID)
	}
}

func TestFeedDeliversExactlyOnce(t *testing.T) {
	m1 := &model.Message{ID: "m1", RoomID: 1, SenderID: 2}
	feed, source := newFeedFixture(t, 1, m1)
	defer feed.Unsubscribe()
	feed.Prime()

	// 双链路会把同一事件投两次，消费侧按 ID 去重
	source.emit(t, dto.MessageEventDTO{Type: "INSERT", RoomID: 1, MessageID: "m1"})
	source.emit(t, dto.MessageEventDTO{Type: "INSERT", RoomID: 1, MessageID: "m1"})

	if got := recvMessage(t, feed.C()); got.ID != "m1" {
		t.Fatalf("expected m1, got %s", got.ID)
	}
	assertNoMessage(t, feed.C())
}

func TestFeedRefetchesFullRow(t *testing.T) {
	full := &model.Message{
		ID: "m1", RoomID: 1, SenderID: 2, Content: "完整行",
		Sender: &model.User{ID: 2, Nickname: "林同学"},
	}
	feed, source := newFeedFixture(t, 1, full)
	defer feed.Unsubscribe()
	feed.Prime()

	source.emit(t, dto.MessageEventDTO{Type: "INSERT", RoomID: 1, MessageID: "m1"})

	got := recvMessage(t, feed.C())
	if got.Content != "完整行" || got.Sender == nil || got.Sender.Nickname != "林同学" {
		t.Fatalf("expected refetched row with sender, got %+v", got)
	}
}

func TestFeedIgnoresIrrelevantEvents(t *testing.T) {
	m1 := &model.Message{ID: "m1", RoomID: 1, SenderID: 2}
	feed, source := newFeedFixture(t, 1, m1)
	defer feed.Unsubscribe()
	feed.Prime()

	// 非插入事件、空 ID、回读不到的行都静默丢弃
	source.emit(t, dto.MessageEventDTO{Type: "UPDATE", RoomID: 1, MessageID: "m1"})
	source.emit(t, dto.MessageEventDTO{Type: "INSERT", RoomID: 1})
	source.emit(t, dto.MessageEventDTO{Type: "INSERT", RoomID: 1, MessageID: "ghost"})
	source.events <- []byte("not-json")

	assertNoMessage(t, feed.C())

	source.emit(t, dto.MessageEventDTO{Type: "INSERT", RoomID: 1, MessageID: "m1"})
	if got := recvMessage(t, feed.C()); got.ID != "m1" {
		t.Fatalf("expected m1 after noise, got %s", got.ID)
	}
}

func TestFeedUnsubscribeIdempotent(t *testing.T) {
	feed, source := newFeedFixture(t, 1)
	feed.Prime()

	feed.Unsubscribe()
	feed.Unsubscribe()
	if source.closed != 1 {
		t.Fatalf("expected single close, got %d", source.closed)
	}

	// 事件源关闭后输出通道随之关闭
	select {
	case _, ok := <-feed.C():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for channel close")
	}
}
