// Package writegate 写门闸的 fx 装配
package writegate

import (
	"go.uber.org/fx"

	sandboxconfig "github.com/weisyn/sandbox/internal/config/sandbox"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	wgif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
)

// ReasonConfigured 配置为只读启动时登记的原因
const ReasonConfigured = "configured read-only"

type ModuleInput struct {
	fx.In

	Options *sandboxconfig.SandboxOptions
	Clock   clock.Clock `optional:"true"`
	Logger  log.Logger  `optional:"true"`
}

type ModuleOutput struct {
	fx.Out

	WriteGate wgif.WriteGate
}

func Module() fx.Option {
	return fx.Module("writegate", fx.Provide(ProvideWriteGate))
}

// ProvideWriteGate 创建门闸，配置为只读时登记 ReasonConfigured
func ProvideWriteGate(in ModuleInput) ModuleOutput {
	g := New(in.Clock)
	if in.Options != nil && in.Options.ReadOnly {
		g.EnterReadOnly(ReasonConfigured)
		if in.Logger != nil {
			in.Logger.Warn("沙箱以只读模式启动，所有提交将被拒绝")
		}
	}
	return ModuleOutput{WriteGate: g}
}
