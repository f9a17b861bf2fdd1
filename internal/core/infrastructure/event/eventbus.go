// Package event 基于 asaskevich/EventBus 的事件总线
//
// 在底层总线之上增加启用开关、按主题的定长历史与发布计数。
package event

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	eventconfig "github.com/weisyn/sandbox/internal/config/event"
	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

// EventBus 总线实现；禁用时所有操作为空操作
type EventBus struct {
	bus     evbus.Bus
	enabled bool
	keep    int
	logger  log.Logger

	mu      sync.RWMutex
	history map[event.Topic]*ring

	published atomic.Uint64
}

var _ event.EventBus = (*EventBus)(nil)

func New(cfg *eventconfig.Config, logger log.Logger) *EventBus {
	if cfg == nil {
		cfg = eventconfig.New(nil)
	}
	o := cfg.GetOptions()
	return &EventBus{
		bus:     evbus.New(),
		enabled: o.Enabled,
		keep:    o.HistorySize,
		logger:  logimpl.OrNop(logger),
		history: make(map[event.Topic]*ring),
	}
}

func (b *EventBus) Subscribe(topic event.Topic, handler interface{}) error {
	if !b.enabled {
		return nil
	}
	return b.bus.Subscribe(string(topic), handler)
}

func (b *EventBus) Unsubscribe(topic event.Topic, handler interface{}) error {
	if !b.enabled {
		return nil
	}
	return b.bus.Unsubscribe(string(topic), handler)
}

// Publish 先记历史再分发，订阅者在回调中读取 History 可以看到本条
func (b *EventBus) Publish(topic event.Topic, payload interface{}) {
	if !b.enabled {
		return
	}
	b.remember(topic, payload)
	b.published.Add(1)
	if b.bus.HasCallback(string(topic)) {
		b.bus.Publish(string(topic), payload)
	}
}

func (b *EventBus) History(topic event.Topic) []interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if r := b.history[topic]; r != nil {
		return r.items()
	}
	return nil
}

// Published 已发布事件总数
func (b *EventBus) Published() uint64 { return b.published.Load() }

func (b *EventBus) remember(topic event.Topic, payload interface{}) {
	if b.keep <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.history[topic]
	if r == nil {
		r = &ring{buf: make([]interface{}, b.keep)}
		b.history[topic] = r
	}
	r.push(payload)
}

// ring 定长环形缓冲，满后覆盖最旧的一条
type ring struct {
	buf  []interface{}
	next int
	full bool
}

func (r *ring) push(v interface{}) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) items() []interface{} {
	if !r.full {
		return append([]interface{}(nil), r.buf[:r.next]...)
	}
	out := make([]interface{}, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
