// Package engines 按字节码格式把执行请求分派给具体引擎
package engines

import (
	"context"
	"errors"
	"fmt"

	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/types"
)

// Selectable 能识别自身字节码格式的引擎
type Selectable interface {
	enginepkg.Engine
	Accepts(code []byte) bool
}

// Router 引擎路由
type Router struct {
	engines []Selectable
}

var _ enginepkg.Engine = (*Router)(nil)

// NewRouter 创建路由，按给定顺序匹配，nil 引擎被忽略
func NewRouter(engines ...Selectable) *Router {
	r := &Router{}
	for _, e := range engines {
		if e != nil {
			r.engines = append(r.engines, e)
		}
	}
	return r
}

// Name 引擎名称
func (r *Router) Name() string { return "router" }

// Engines 已启用引擎的名称
func (r *Router) Engines() []string {
	names := make([]string, 0, len(r.engines))
	for _, e := range r.engines {
		names = append(names, e.Name())
	}
	return names
}

// EngineFor 字节码对应的引擎名称，无匹配时返回 unknown
func (r *Router) EngineFor(code []byte) string {
	if e, err := r.pick(code); err == nil {
		return e.Name()
	}
	return "unknown"
}

func (r *Router) pick(code []byte) (Selectable, error) {
	for _, e := range r.engines {
		if e.Accepts(code) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: no enabled engine accepts this code", enginepkg.ErrInvalidCode)
}

// ResolveSpec 交给匹配的引擎解析合约描述
func (r *Router) ResolveSpec(ctx context.Context, code []byte) (*types.ContractSpec, error) {
	e, err := r.pick(code)
	if err != nil {
		return nil, err
	}
	return e.ResolveSpec(ctx, code)
}

// Execute 交给匹配的引擎执行
func (r *Router) Execute(ctx context.Context, req *enginepkg.ExecutionRequest) (*enginepkg.ExecutionOutcome, error) {
	e, err := r.pick(req.Code)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, req)
}

// Close 关闭全部引擎
func (r *Router) Close(ctx context.Context) error {
	var errs []error
	for _, e := range r.engines {
		if err := e.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("关闭引擎 %s 失败: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
