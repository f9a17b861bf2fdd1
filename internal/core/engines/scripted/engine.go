// Package scripted 以 Go 函数实现合约的执行引擎
//
// 字节码为 "scripted:<name>"，name 指向注册表中的脚本。足迹、预算与结果分类
// 与 WASM 引擎共用 host.State，因此行为一致，适合测试与演示。
package scripted

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/weisyn/sandbox/internal/core/engines/host"
	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/types"
)

// CodePrefix 脚本合约字节码前缀
const CodePrefix = "scripted:"

// Func 脚本函数
type Func func(env host.Env, args []types.TypedValue) (types.TypedValue, error)

// Script 一个脚本合约
type Script struct {
	Spec  types.ContractSpec
	Funcs map[string]Func
}

// Code 脚本名对应的字节码
func Code(name string) []byte {
	return []byte(CodePrefix + name)
}

// Engine 脚本引擎
type Engine struct {
	logger log.Logger

	mu      sync.RWMutex
	scripts map[string]*Script
}

var _ enginepkg.Engine = (*Engine)(nil)

// New 创建脚本引擎并注册内置合约
func New(logger log.Logger) *Engine {
	e := &Engine{logger: logimpl.OrNop(logger), scripts: make(map[string]*Script)}
	for name, s := range Builtins() {
		e.scripts[name] = s
	}
	return e
}

// Register 注册或替换脚本，描述非法时拒绝
func (e *Engine) Register(name string, s *Script) error {
	if name == "" || s == nil {
		return fmt.Errorf("%w: empty script", enginepkg.ErrInvalidCode)
	}
	if err := s.Spec.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", enginepkg.ErrInvalidCode, name, err)
	}
	for _, fn := range s.Spec.Functions {
		if s.Funcs[fn.Name] == nil {
			return fmt.Errorf("%w: %s: function %s has no implementation", enginepkg.ErrInvalidCode, name, fn.Name)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[name] = s
	return nil
}

// Names 已注册脚本名
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.scripts))
	for n := range e.scripts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Name 引擎名称
func (e *Engine) Name() string { return "scripted" }

// Accepts 是否为脚本字节码
func (e *Engine) Accepts(code []byte) bool {
	return bytes.HasPrefix(code, []byte(CodePrefix))
}

func (e *Engine) lookup(code []byte) (string, *Script, error) {
	if !e.Accepts(code) {
		return "", nil, fmt.Errorf("%w: not a scripted contract", enginepkg.ErrInvalidCode)
	}
	name := strings.TrimPrefix(string(code), CodePrefix)
	e.mu.RLock()
	s, ok := e.scripts[name]
	e.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown script %q", enginepkg.ErrInvalidCode, name)
	}
	return name, s, nil
}

// ResolveSpec 返回脚本的合约描述
func (e *Engine) ResolveSpec(_ context.Context, code []byte) (*types.ContractSpec, error) {
	_, s, err := e.lookup(code)
	if err != nil {
		return nil, err
	}
	spec := s.Spec
	spec.Functions = append([]types.FunctionSpec(nil), s.Spec.Functions...)
	return &spec, nil
}

// Execute 执行脚本函数
func (e *Engine) Execute(ctx context.Context, req *enginepkg.ExecutionRequest) (*enginepkg.ExecutionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, s, err := e.lookup(req.Code)
	if err != nil {
		return nil, err
	}
	st := host.NewState(req)
	st.Record(types.DiagFunctionCall, name+"."+req.Function)

	fn := s.Funcs[req.Function]
	if fn == nil {
		return st.Outcome(types.Void(), fmt.Errorf("function %s not exported by %s", req.Function, name)), nil
	}
	if err := st.Charge(1); err != nil {
		return st.Outcome(types.Void(), err), nil
	}

	value, err := call(fn, st, req.Args)
	out := st.Outcome(value, err)
	e.logger.Debugf("脚本合约执行完成: script=%s fn=%s status=%s", name, req.Function, out.Status)
	return out, nil
}

// call 执行脚本函数，panic 视为陷入
func call(fn Func, env host.Env, args []types.TypedValue) (v types.TypedValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(env, args)
}

// Close 无资源需要释放
func (e *Engine) Close(context.Context) error { return nil }
