// Package app 沙箱应用装配与生命周期
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weisyn/sandbox/internal/core/sandbox"
)

// 启停超时；停止时需要等待进行中的提交落盘
const (
	startTimeout = 30 * time.Second
	stopTimeout  = 60 * time.Second
)

// App 沙箱应用的对外接口
type App interface {
	// Stop 停止应用
	Stop() error

	// Wait 阻塞直到收到退出信号，然后停止应用
	Wait() error

	// Service 沙箱服务
	Service() *sandbox.Service

	// APIAddr API 实际监听地址，未启用 API 时为空
	APIAddr() string
}

type internalApp struct {
	bootstrap *Bootstrap
}

// Stop 停止应用
func (a *internalApp) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}

// Wait 等待退出信号
func (a *internalApp) Wait() error {
	WaitForSignal()
	return a.Stop()
}

func (a *internalApp) Service() *sandbox.Service { return a.bootstrap.service }

func (a *internalApp) APIAddr() string {
	if a.bootstrap.server == nil {
		return ""
	}
	return a.bootstrap.server.Addr()
}

// Start 加载配置并启动沙箱应用
func Start(appOptions ...Option) (App, error) {
	opts := newOptions(appOptions...)
	if err := opts.resolve(); err != nil {
		return nil, err
	}

	bootstrap := NewBootstrap(opts)
	if err := bootstrap.CreateFxApp(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := bootstrap.StartApp(ctx); err != nil {
		return nil, err
	}
	return &internalApp{bootstrap: bootstrap}, nil
}

// WaitForSignal 等待退出信号
func WaitForSignal() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	return <-signals
}
