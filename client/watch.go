package client

import (
	"context"

	"github.com/weisyn/sandbox/client/core/transport"
)

// Watcher 事件订阅，持有一条 WebSocket 连接
type Watcher struct {
	conn *transport.WebSocketClient
	sub  *transport.Subscription
}

// Watch 订阅 commits 或 invocations 事件，resumeToken 非空时先补发其后的历史事件
func Watch(ctx context.Context, wsURL, subType, resumeToken string) (*Watcher, error) {
	conn, err := transport.NewWebSocketClient(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(ctx, subType, resumeToken)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Watcher{conn: conn, sub: sub}, nil
}

// Events 事件通道，连接断开后关闭
func (w *Watcher) Events() <-chan *transport.Event {
	return w.sub.Events()
}

// Err 连接断开的原因
func (w *Watcher) Err() error {
	return w.conn.Err()
}

// Close 取消订阅并关闭连接
func (w *Watcher) Close(ctx context.Context) error {
	_ = w.sub.Unsubscribe(ctx)
	return w.conn.Close()
}
