package websocket

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	wstypes "github.com/weisyn/sandbox/internal/api/websocket/types"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/event"
)

// ErrUnknownSubscriptionType 不支持的订阅类型
var ErrUnknownSubscriptionType = errors.New("unknown subscription type")

// sink 订阅的投递目标，投递不得阻塞
type sink interface {
	deliver(n *wstypes.Notification) bool
}

// Subscription 订阅信息
type Subscription struct {
	ID   string
	Type string
	out  sink
}

// SubscriptionManager 订阅管理器
//
// 每种事件只在事件总线上订阅一次，再按订阅类型分发给各连接。
// 事件在账本提交路径上同步发布，投递只做非阻塞入队。
type SubscriptionManager struct {
	logger        *zap.Logger
	eventBus      event.EventBus
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	dropped       uint64
}

// NewSubscriptionManager 创建订阅管理器并挂接事件总线
func NewSubscriptionManager(logger *zap.Logger, eventBus event.EventBus) (*SubscriptionManager, error) {
	m := &SubscriptionManager{
		logger:        logger,
		eventBus:      eventBus,
		subscriptions: make(map[string]*Subscription),
	}
	if eventBus == nil {
		return m, nil
	}
	if err := eventBus.Subscribe(sandbox.EventLedgerCommitted, m.onCommit); err != nil {
		return nil, fmt.Errorf("订阅提交事件失败: %w", err)
	}
	if err := eventBus.Subscribe(sandbox.EventInvocationCompleted, m.onInvocation); err != nil {
		return nil, fmt.Errorf("订阅调用事件失败: %w", err)
	}
	return m, nil
}

// Close 解除事件总线订阅
func (m *SubscriptionManager) Close() {
	if m.eventBus == nil {
		return
	}
	_ = m.eventBus.Unsubscribe(sandbox.EventLedgerCommitted, m.onCommit)
	_ = m.eventBus.Unsubscribe(sandbox.EventInvocationCompleted, m.onInvocation)
}

// Subscribe 创建新订阅
//
// commits 订阅可携带 resumeToken（最后收到的账本版本），
// 事件总线历史中更新的提交会先被补发。
func (m *SubscriptionManager) Subscribe(out sink, subType, resumeToken string) (string, error) {
	if subType != wstypes.SubscriptionCommits && subType != wstypes.SubscriptionInvocations {
		return "", fmt.Errorf("%w: %s", ErrUnknownSubscriptionType, subType)
	}
	var after uint64
	if resumeToken != "" {
		if subType != wstypes.SubscriptionCommits {
			return "", errors.New("resumeToken is only supported for commits")
		}
		v, err := strconv.ParseUint(resumeToken, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid resumeToken: %w", err)
		}
		after = v
	}

	sub := &Subscription{ID: fmt.Sprintf("0x%s", uuid.New().String()[:8]), Type: subType, out: out}
	m.mu.Lock()
	m.subscriptions[sub.ID] = sub
	m.mu.Unlock()

	if resumeToken != "" {
		m.replay(sub, after)
	}
	m.logger.Debug("Subscription created", zap.String("id", sub.ID), zap.String("type", subType), zap.Bool("resumed", resumeToken != ""))
	return sub.ID, nil
}

// Unsubscribe 取消订阅，返回订阅是否存在
func (m *SubscriptionManager) Unsubscribe(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[id]; !ok {
		return false
	}
	delete(m.subscriptions, id)
	return true
}

// CleanupBySink 清理某个连接的全部订阅
func (m *SubscriptionManager) CleanupBySink(out sink) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, sub := range m.subscriptions {
		if sub.out == out {
			delete(m.subscriptions, id)
			n++
		}
	}
	return n
}

// Count 当前订阅数
func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

func (m *SubscriptionManager) replay(sub *Subscription, after uint64) {
	for _, item := range m.eventBus.History(sandbox.EventLedgerCommitted) {
		ev, ok := item.(*sandbox.CommitEvent)
		if !ok || ev.Version <= after {
			continue
		}
		m.send(sub, ev, strconv.FormatUint(ev.Version, 10))
	}
}

func (m *SubscriptionManager) onCommit(ev *sandbox.CommitEvent) {
	m.broadcast(wstypes.SubscriptionCommits, ev, strconv.FormatUint(ev.Version, 10))
}

func (m *SubscriptionManager) onInvocation(ev *sandbox.InvocationEvent) {
	m.broadcast(wstypes.SubscriptionInvocations, ev, "")
}

func (m *SubscriptionManager) broadcast(subType string, payload interface{}, token string) {
	m.mu.RLock()
	targets := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.Type == subType {
			targets = append(targets, sub)
		}
	}
	m.mu.RUnlock()
	for _, sub := range targets {
		m.send(sub, payload, token)
	}
}

func (m *SubscriptionManager) send(sub *Subscription, payload interface{}, token string) {
	n := &wstypes.Notification{
		JSONRPC: "2.0",
		Method:  wstypes.NotificationMethod,
		Params:  &wstypes.SubscriptionEvent{Subscription: sub.ID, Result: payload, ResumeToken: token},
	}
	if !sub.out.deliver(n) {
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		m.logger.Warn("订阅推送队列已满，事件被丢弃", zap.String("id", sub.ID), zap.String("type", sub.Type))
	}
}
