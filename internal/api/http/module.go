package http

import (
	"context"
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

// ModuleParams HTTP 模块依赖
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Provider  config.Provider
	Service   *sandbox.Service
	Engine    enginepkg.Engine
	EventBus  event.EventBus   `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
	Logger    log.Logger
}

// initializeGinMode 默认以 release 模式运行，SANDBOX_GIN_DEBUG=true 时打开 gin 调试输出
func initializeGinMode() {
	if os.Getenv("SANDBOX_GIN_DEBUG") == "true" {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard
}

// Module 返回HTTP服务模块
func Module() fx.Option {
	return fx.Module("http",
		fx.Invoke(initializeGinMode),
		fx.Provide(ProvideServer),
		fx.Invoke(func(*Server) {}),
	)
}

// ProvideServer 创建服务器并挂接生命周期
func ProvideServer(params ModuleParams) (*Server, error) {
	var engines []string
	if lister, ok := params.Engine.(interface{ Engines() []string }); ok {
		engines = lister.Engines()
	}
	server, err := NewServer(Deps{
		Options:  params.Provider.GetAPI(),
		Service:  params.Service,
		EventBus: params.EventBus,
		Metrics:  params.Metrics,
		Engines:  engines,
		Logger:   params.Logger.With("module", "api"),
	})
	if err != nil {
		return nil, err
	}
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error { return server.Start() },
		OnStop:  server.Stop,
	})
	return server, nil
}
