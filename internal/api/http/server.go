// Package http 沙箱 HTTP 入口
//
// POST /rpc JSON-RPC 2.0，GET /ws WebSocket 订阅，GET /metrics Prometheus，GET /health 健康检查。
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weisyn/sandbox/internal/api/http/handlers"
	"github.com/weisyn/sandbox/internal/api/http/middleware"
	"github.com/weisyn/sandbox/internal/api/jsonrpc"
	"github.com/weisyn/sandbox/internal/api/jsonrpc/methods"
	"github.com/weisyn/sandbox/internal/api/websocket"
	apiconfig "github.com/weisyn/sandbox/internal/config/api"
	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

// Server HTTP服务器
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	opts       *apiconfig.APIOptions
	logger     log.Logger

	rpc  *jsonrpc.Server
	subs *websocket.SubscriptionManager
	ws   *websocket.Server

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// Deps 服务器依赖，EventBus 与 Metrics 可为 nil
type Deps struct {
	Options  *apiconfig.APIOptions
	Service  *sandbox.Service
	EventBus event.EventBus
	Metrics  *metrics.Metrics
	Engines  []string
	Logger   log.Logger
}

// NewServer 创建HTTP服务器并注册路由
func NewServer(deps Deps) (*Server, error) {
	if deps.Options == nil {
		deps.Options = apiconfig.New(nil).GetOptions()
	}
	logger := logimpl.OrNop(deps.Logger)
	zl := logger.GetZapLogger()
	if zl == nil {
		zl = zap.NewNop()
	}

	s := &Server{
		opts:   deps.Options,
		logger: logger,
		rpc:    jsonrpc.NewServer(logger.With("component", "jsonrpc"), int64(deps.Options.MaxRequestSize)),
	}
	for name, h := range methods.NewSandboxMethods(deps.Service, logger).Handlers() {
		s.rpc.RegisterMethod(name, h)
	}

	router := gin.New()
	router.Use(
		middleware.Recovery(zl),
		middleware.RequestID(),
		middleware.AccessLog(zl),
		middleware.CORS(deps.Options.CORSOrigins),
	)
	if deps.Metrics != nil {
		router.Use(middleware.NewMetrics(deps.Metrics.Registry()).Middleware())
	}
	router.Use(middleware.ErrorHandler(zl))

	router.POST("/rpc", gin.WrapH(s.rpc))
	handlers.NewHealthHandler(deps.Service, deps.Engines).RegisterRoutes(router)

	if deps.Options.EnableWebSocket {
		subs, err := websocket.NewSubscriptionManager(zl.With(zap.String("component", "websocket")), deps.EventBus)
		if err != nil {
			return nil, err
		}
		s.subs = subs
		s.ws = websocket.NewServer(zl.With(zap.String("component", "websocket")), subs, s.rpc, websocket.Options{
			ReadBufferSize:  deps.Options.WSReadBufferSize,
			WriteBufferSize: deps.Options.WSWriteBufferSize,
			MaxConnections:  deps.Options.WSMaxConnections,
		})
		s.ws.RegisterRoutes(router)
	}
	if deps.Options.EnableMetrics && deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Gatherer(), promhttp.HandlerOpts{})))
	}

	s.router = router
	s.httpServer = &http.Server{
		Handler:      router,
		ReadTimeout:  deps.Options.ReadTimeout,
		WriteTimeout: deps.Options.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler 路由处理器
func (s *Server) Handler() http.Handler { return s.router }

// Start 监听配置的地址并在后台提供服务；端口被占用时直接失败
func (s *Server) Start() error {
	addr := s.opts.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("HTTP服务器监听 %s 失败: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("HTTP服务器运行失败: %v", err)
		}
	}()
	s.logger.Infof("HTTP服务器已启动: http://%s/rpc", ln.Addr())
	return nil
}

// Addr 实际监听地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop 优雅关闭，等待进行中的请求完成
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.listener != nil
	done := s.done
	s.mu.Unlock()
	if s.subs != nil {
		s.subs.Close()
	}
	if !started {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(stopCtx); err != nil {
		s.logger.Errorf("HTTP服务器关闭出错: %v", err)
		return err
	}
	<-done
	s.logger.Info("HTTP服务器已关闭")
	return nil
}
