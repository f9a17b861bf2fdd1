// Package websocket WebSocket 订阅与 JSON-RPC
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/weisyn/sandbox/internal/api/jsonrpc"
	"github.com/weisyn/sandbox/internal/api/jsonrpc/types"
	wstypes "github.com/weisyn/sandbox/internal/api/websocket/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	sendQueueLen = 256
)

// Options WebSocket 服务配置
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	// MaxConnections 0 表示不限制
	MaxConnections int
}

// Server WebSocket服务器
//
// 同一连接上既可以订阅事件，也可以发送普通 JSON-RPC 请求。
type Server struct {
	logger              *zap.Logger
	subscriptionManager *SubscriptionManager
	rpc                 *jsonrpc.Server
	upgrader            websocket.Upgrader
	maxConns            int
	active              atomic.Int64
}

// NewServer 创建WebSocket服务器
func NewServer(logger *zap.Logger, subs *SubscriptionManager, rpc *jsonrpc.Server, opts Options) *Server {
	return &Server{
		logger:              logger,
		subscriptionManager: subs,
		rpc:                 rpc,
		maxConns:            opts.MaxConnections,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
		},
	}
}

// Connections 当前连接数
func (s *Server) Connections() int64 { return s.active.Load() }

// conn 单个连接；所有写操作都经由 writer 协程
type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func (c *conn) deliver(n *wstypes.Notification) bool {
	data, err := json.Marshal(n)
	if err != nil {
		c.logger.Error("Failed to marshal notification", zap.Error(err))
		return true
	}
	return c.enqueue(data)
}

func (c *conn) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *conn) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// HandleWebSocket 处理WebSocket连接（Gin Handler）
func (s *Server) HandleWebSocket(c *gin.Context) {
	if s.maxConns > 0 && s.active.Load() >= int64(s.maxConns) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "too many websocket connections"})
		return
	}
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	s.active.Add(1)
	cn := &conn{ws: ws, send: make(chan []byte, sendQueueLen), closed: make(chan struct{}), logger: s.logger}
	go cn.writer()

	defer func() {
		n := s.subscriptionManager.CleanupBySink(cn)
		cn.close()
		_ = ws.Close()
		s.active.Add(-1)
		s.logger.Info("WebSocket connection closed",
			zap.String("remote_addr", ws.RemoteAddr().String()),
			zap.Int("subscriptions", n))
	}()

	s.logger.Info("WebSocket connection established", zap.String("remote_addr", ws.RemoteAddr().String()))
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })

	// 连接上的请求不随 HTTP 请求上下文取消
	ctx := context.WithoutCancel(c.Request.Context())
	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleMessage(ctx, cn, message)
	}
}

// handleMessage 订阅方法在本地处理，其余转交 JSON-RPC 服务器
func (s *Server) handleMessage(ctx context.Context, cn *conn, message []byte) {
	var request types.Request
	if err := json.Unmarshal(message, &request); err != nil {
		s.reply(cn, errorResponse(nil, types.CodeParseError, "", nil))
		return
	}
	switch request.Method {
	case "sandbox_subscribe":
		s.reply(cn, s.handleSubscribe(cn, &request))
	case "sandbox_unsubscribe":
		s.reply(cn, s.handleUnsubscribe(&request))
	default:
		if s.rpc == nil {
			s.reply(cn, errorResponse(request.ID, types.CodeMethodNotFound, "", request.Method))
			return
		}
		s.reply(cn, s.rpc.Handle(ctx, message))
	}
}

// handleSubscribe 参数：[subscriptionType, resumeToken(可选)]
func (s *Server) handleSubscribe(cn *conn, request *types.Request) *types.Response {
	var params []string
	if err := json.Unmarshal(request.Params, &params); err != nil || len(params) == 0 {
		return errorResponse(request.ID, types.CodeInvalidParams, "", "expected [subscriptionType, resumeToken?]")
	}
	var resumeToken string
	if len(params) > 1 {
		resumeToken = params[1]
	}
	id, err := s.subscriptionManager.Subscribe(cn, params[0], resumeToken)
	if err != nil {
		return errorResponse(request.ID, types.CodeInvalidParams, "", err.Error())
	}
	return types.Success(request.ID, id)
}

// handleUnsubscribe 参数：[subscriptionID]
func (s *Server) handleUnsubscribe(request *types.Request) *types.Response {
	var params []string
	if err := json.Unmarshal(request.Params, &params); err != nil || len(params) == 0 {
		return errorResponse(request.ID, types.CodeInvalidParams, "", "missing subscription id")
	}
	return types.Success(request.ID, s.subscriptionManager.Unsubscribe(params[0]))
}

func (s *Server) reply(cn *conn, resp *types.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to marshal response", zap.Error(err))
		return
	}
	if !cn.enqueue(data) {
		s.logger.Warn("WebSocket send queue full, response dropped")
	}
}

func errorResponse(id interface{}, code int, message string, data interface{}) *types.Response {
	return types.Failure(id, types.NewError(code, message, data))
}

// RegisterRoutes 注册WebSocket路由到Gin
func (s *Server) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws", s.HandleWebSocket)
}
