// Package api 沙箱对外接口：JSON-RPC over HTTP 与 WebSocket 订阅
package api

import (
	"go.uber.org/fx"

	"github.com/weisyn/sandbox/internal/api/http"
)

// Module 返回API模块
func Module() fx.Option {
	return fx.Module("api",
		http.Module(),
	)
}
