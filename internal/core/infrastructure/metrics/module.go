// Package metrics 提供沙箱指标的 fx 模块
package metrics

import (
	"go.uber.org/fx"
)

// Module 返回 metrics 模块的 fx.Option
//
// 提供：
// - *Metrics: 应用级注册表与沙箱采集器
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(New),
	)
}
