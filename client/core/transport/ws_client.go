package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed 连接已关闭
var ErrClosed = errors.New("websocket client closed")

const (
	subscriptionBuffer = 256
	maxOrphans         = 4096
)

// Event 订阅推送
type Event struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
	ResumeToken  string          `json:"resumeToken,omitempty"`
}

// WebSocketClient WebSocket客户端实现(用于订阅)
type WebSocketClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *wsMessage
	subs    map[string]*Subscription
	// orphans 订阅响应到达前推送的事件，补发时先于响应到达
	orphans map[string][]*Event
	err     error

	closeOnce sync.Once
}

// NewWebSocketClient 连接 ws://host/ws
func NewWebSocketClient(ctx context.Context, endpoint string) (*WebSocketClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	c := &WebSocketClient{
		conn:    conn,
		pending: make(map[uint64]chan *wsMessage),
		subs:    make(map[string]*Subscription),
		orphans: make(map[string][]*Event),
	}
	go c.readLoop()
	return c, nil
}

// wsMessage WebSocket消息
type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Subscription 一个服务端订阅
type Subscription struct {
	ID     string
	client *WebSocketClient
	events chan *Event
}

// Events 推送通道；连接断开或取消订阅后关闭
func (s *Subscription) Events() <-chan *Event { return s.events }

// Unsubscribe 取消订阅
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.client.unsubscribe(ctx, s.ID)
}

// Err 连接断开的原因
func (c *WebSocketClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// readLoop 消息读取循环
func (c *WebSocketClient) readLoop() {
	var readErr error
	defer func() {
		c.mu.Lock()
		if c.err == nil {
			c.err = readErr
		}
		for id, sub := range c.subs {
			close(sub.events)
			delete(c.subs, id)
		}
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}()

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			readErr = fmt.Errorf("websocket read: %w", err)
			return
		}
		if msg.Method != "" {
			c.dispatch(&msg)
			continue
		}
		if msg.ID == nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- &msg
		}
	}
}

// dispatch 分发订阅推送；消费方过慢时丢弃
func (c *WebSocketClient) dispatch(msg *wsMessage) {
	var ev Event
	if err := json.Unmarshal(msg.Params, &ev); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[ev.Subscription]
	if !ok {
		if len(c.orphans[ev.Subscription]) < maxOrphans {
			c.orphans[ev.Subscription] = append(c.orphans[ev.Subscription], &ev)
		}
		return
	}
	select {
	case sub.events <- &ev:
	default:
	}
}

// Call 在 WebSocket 连接上调用 JSON-RPC 方法
func (c *WebSocketClient) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *wsMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	c.writeMu.Lock()
	err = c.conn.WriteJSON(&wsMessage{JSONRPC: "2.0", Method: method, Params: raw, ID: &id})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("websocket write: %w", err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if msg.Error != nil {
			return msg.Error
		}
		if result != nil && len(msg.Result) > 0 {
			return json.Unmarshal(msg.Result, result)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Subscribe 订阅 commits 或 invocations；resumeToken 为上次收到的版本号，从其后补发
func (c *WebSocketClient) Subscribe(ctx context.Context, subType, resumeToken string) (*Subscription, error) {
	params := []interface{}{subType}
	if resumeToken != "" {
		params = append(params, resumeToken)
	}
	var id string
	if err := c.Call(ctx, "sandbox_subscribe", params, &id); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	early := c.orphans[id]
	delete(c.orphans, id)
	sub := &Subscription{ID: id, client: c, events: make(chan *Event, subscriptionBuffer+len(early))}
	for _, ev := range early {
		sub.events <- ev
	}
	c.subs[id] = sub
	return sub, nil
}

func (c *WebSocketClient) unsubscribe(ctx context.Context, id string) error {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	close(sub.events)
	var removed bool
	return c.Call(ctx, "sandbox_unsubscribe", []interface{}{id}, &removed)
}

// Close 关闭WebSocket连接
func (c *WebSocketClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.err == nil {
			c.err = ErrClosed
		}
		c.mu.Unlock()
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
