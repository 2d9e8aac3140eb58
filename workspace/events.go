package workspace

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/types"
)

// EventType 工作区事件类型
type EventType string

const (
	EventSessionLoaded     EventType = "session_loaded"
	EventSessionReset      EventType = "session_reset"
	EventSceneReset        EventType = "scene_reset"
	EventPointsChanged     EventType = "points_changed"
	EventMaskChanged       EventType = "mask_changed"
	EventSegmentingChanged EventType = "segmenting_changed"
	EventObjectAdded       EventType = "object_added"
	EventObjectRemoved     EventType = "object_removed"
	EventObjectUpdated     EventType = "object_updated"
	EventStatusChanged     EventType = "status_changed"
	EventSelectionChanged  EventType = "selection_changed"
	EventTransformChanged  EventType = "transform_changed"
	EventErrorChanged      EventType = "error_changed"
)

// Event 工作区状态变更通知。通知只携带标识和摘要，
// 订阅方通过 Snapshot 读取完整状态。
type Event struct {
	Seq       uint64             `json:"seq"`
	Type      EventType          `json:"type"`
	ObjectID  string             `json:"object_id,omitempty"`
	Status    types.ObjectStatus `json:"status,omitempty"`
	Message   string             `json:"message,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

var subscriptionCounter int64

// Subscription 一个事件订阅
type Subscription struct {
	ID string
	C  <-chan Event

	ch chan Event
}

// EventBus 有序的扇出事件总线。每个订阅者拥有独立缓冲通道，
// 通道满时丢弃事件并计数。
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	seq     atomic.Uint64
	dropped atomic.Uint64
	closed  bool
	logger  *zap.Logger
}

// NewEventBus 创建事件总线
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe 订阅全部事件，buffer <= 0 时使用 64
func (b *EventBus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{
		ID: fmt.Sprintf("sub-%d", atomic.AddInt64(&subscriptionCounter, 1)),
		C:  ch,
		ch: ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.ID] = sub
	return sub
}

// Unsubscribe 取消订阅并关闭其通道
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish 发布事件，不阻塞
func (b *EventBus) Publish(ev Event) {
	ev.Seq = b.seq.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// 订阅方消费过慢，丢弃
			b.dropped.Add(1)
			b.logger.Debug("event dropped",
				zap.String("subscription", sub.ID),
				zap.String("type", string(ev.Type)))
		}
	}
}

// Subscribers 返回当前订阅数
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped 返回累计丢弃的事件数
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close 关闭总线和所有订阅通道
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
