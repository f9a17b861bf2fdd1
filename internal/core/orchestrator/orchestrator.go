// Package orchestrator 驱动一次合约调用
//
// 调用分两段：Execute 在某个快照版本上完成参数个数校验、足迹计算、引擎执行
// 与结果分类，不产生任何持久化副作用；Commit 只对成功结果以执行时的快照版本
// 提交变更，版本冲突报告为可重试的 ErrStateChanged。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	sandboxconfig "github.com/weisyn/sandbox/internal/config/sandbox"
	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/ledger"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/sandbox/pkg/types"
)

// Request 调用请求，参数已按函数描述转换
type Request struct {
	Contract types.Address
	Function string
	Args     []types.TypedValue
	Invoker  types.Address
	// Budget 零值字段使用配置的默认预算
	Budget types.Budget
	// ReadOnly / ReadWrite 调用方显式声明的足迹
	ReadOnly  []types.LedgerKey
	ReadWrite []types.LedgerKey
}

// Execution 一次执行的结果及其上下文
type Execution struct {
	Result   *types.InvocationResult
	Contract *Contract
	Function *types.FunctionSpec
	// Engine 实际执行的引擎名称
	Engine string
}

// engineNamer 能报告字节码由哪个引擎执行的路由
type engineNamer interface {
	EngineFor(code []byte) string
}

// Orchestrator 调用编排器
type Orchestrator struct {
	store   *ledger.Store
	engine  enginepkg.Engine
	specs   storage.MemoryStore
	opts    *sandboxconfig.SandboxOptions
	metrics *metrics.Metrics
	logger  log.Logger
	hints   *hintSet
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithSpecCache 合约描述缓存
func WithSpecCache(c storage.MemoryStore) Option {
	return func(o *Orchestrator) { o.specs = c }
}

// WithSandboxOptions 预算与足迹学习配置
func WithSandboxOptions(opts *sandboxconfig.SandboxOptions) Option {
	return func(o *Orchestrator) {
		if opts != nil {
			o.opts = opts
		}
	}
}

// WithMetrics 指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger 日志
func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logimpl.OrNop(l) }
}

// New 创建编排器
func New(store *ledger.Store, engine enginepkg.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		engine: engine,
		opts:   sandboxconfig.New(nil).GetOptions(),
		logger: logimpl.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.hints = newHintSet(o.opts.HintFunctions, o.opts.HintKeysPerFunction)
	return o
}

// CheckArity 校验参数个数，必须先于任何引擎执行
func CheckArity(fn *types.FunctionSpec, n int) error {
	if n != len(fn.Params) {
		return &ArityMismatchError{Function: fn.Name, Expected: len(fn.Params), Actual: n}
	}
	return nil
}

// LookupFunction 在合约描述中查找函数
func LookupFunction(c *Contract, name string) (*types.FunctionSpec, error) {
	fn, ok := c.Spec.Function(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no function %q", ErrFunctionNotFound, c.Address, name)
	}
	return fn, nil
}

// Invoke 执行并在成功时提交
func (o *Orchestrator) Invoke(ctx context.Context, req *Request) (*Execution, error) {
	exec, err := o.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := o.Commit(ctx, exec); err != nil {
		return exec, err
	}
	return exec, nil
}

// DryRun 在当前快照上执行但不提交
func (o *Orchestrator) DryRun(ctx context.Context, req *Request) (*Execution, error) {
	return o.Execute(ctx, req)
}

// Execute 在当前快照上执行调用，不修改账本
func (o *Orchestrator) Execute(ctx context.Context, req *Request) (*Execution, error) {
	return o.ExecuteOn(ctx, o.store.Snapshot(), req)
}

// ExecuteOn 在指定快照上执行调用
func (o *Orchestrator) ExecuteOn(ctx context.Context, snap *ledger.Snapshot, req *Request) (*Execution, error) {
	start := time.Now()

	c, err := o.resolveContract(ctx, snap, req.Contract)
	if err != nil {
		return nil, err
	}
	fn, err := LookupFunction(c, req.Function)
	if err != nil {
		return nil, err
	}
	if err := CheckArity(fn, len(req.Args)); err != nil {
		return nil, err
	}

	budget := o.opts.ResolveBudget(req.Budget)
	fp := o.candidates(snap, req)

	outcome, err := o.run(ctx, snap, c, req, fp, budget)
	if err != nil {
		return nil, err
	}

	retried := false
	var retryEvent *types.DiagnosticEvent
	if outcome.Status == types.StatusFootprintViolation {
		expanded := fp.Clone()
		for _, v := range outcome.Violations {
			if v.Write || writableOnRetry(req.Contract, fn, v.Key) {
				expanded.AddReadWrite(v.Key)
			} else {
				expanded.AddReadOnly(v.Key)
			}
		}
		o.metrics.IncFootprintRetry()
		o.logger.Debugf("足迹不足，扩展后重试: contract=%s fn=%s added=%d", req.Contract, req.Function, len(outcome.Violations))
		retryEvent = &types.DiagnosticEvent{
			Type:     types.DiagRetry,
			Contract: req.Contract,
			Message:  fmt.Sprintf("footprint expanded by %d keys", len(outcome.Violations)),
		}

		fp, retried = expanded, true
		outcome, err = o.run(ctx, snap, c, req, fp, budget)
		if err != nil {
			return nil, err
		}
	}

	result := &types.InvocationResult{
		Status:      outcome.Status,
		Value:       outcome.Value,
		Diagnostics: withRetryEvent(retryEvent, outcome.Diagnostics),
		Resources:   outcome.Resources,
		Deltas:      outcome.Deltas,
		Footprint:   fp,
		Retried:     retried,
		Violations:  outcome.Violations,
		TrapReason:  outcome.TrapReason,
		BaseVersion: snap.Version(),
	}
	if result.Status != types.StatusSuccess {
		result.Value = types.Void()
		result.Deltas = nil
	}

	engineName := o.engine.Name()
	if n, ok := o.engine.(engineNamer); ok {
		engineName = n.EngineFor(c.Code)
	}
	o.metrics.ObserveInvocation(engineName, string(result.Status), time.Since(start))
	return &Execution{Result: result, Contract: c, Function: fn, Engine: engineName}, nil
}

// writableOnRetry 读越界的键在重试时是否放入读写集合
//
// 越界读会立即中止执行，之后对同一键的写入在首轮不可见。非只读函数读到的
// 账户条目与本合约数据条目都是合约可写的，重试时直接给读写权限，
// 否则先读后写的调用会在重试中再次越界。
func writableOnRetry(contract types.Address, fn *types.FunctionSpec, key types.LedgerKey) bool {
	if fn.ReadOnly {
		return false
	}
	switch key.Kind {
	case types.EntryAccount:
		return true
	case types.EntryContractData:
		return key.Contract == contract
	}
	return false
}

// candidates 计算候选足迹：快照推导 + 显式声明 + 已学习提示
func (o *Orchestrator) candidates(snap *ledger.Snapshot, req *Request) types.Footprint {
	freq := ledger.FootprintRequest{
		Contract:  req.Contract,
		Invoker:   req.Invoker,
		ReadOnly:  req.ReadOnly,
		ReadWrite: req.ReadWrite,
	}
	if o.opts.LearnFootprint {
		hint := o.hints.get(req.Contract, req.Function)
		freq.ReadOnly = append(append([]types.LedgerKey(nil), freq.ReadOnly...), hint.ReadOnly()...)
		freq.ReadWrite = append(append([]types.LedgerKey(nil), freq.ReadWrite...), hint.ReadWrite()...)
	}
	return snap.ComputeFootprintCandidates(freq)
}

// run 调用引擎一次，并校验变更都落在读写集合内
func (o *Orchestrator) run(ctx context.Context, snap *ledger.Snapshot, c *Contract, req *Request, fp types.Footprint, budget types.Budget) (*enginepkg.ExecutionOutcome, error) {
	out, err := o.engine.Execute(ctx, &enginepkg.ExecutionRequest{
		Contract:          c.Address,
		CodeHash:          c.CodeHash,
		Code:              c.Code,
		Function:          req.Function,
		Args:              req.Args,
		Invoker:           req.Invoker,
		Footprint:         fp,
		Budget:            budget,
		Entries:           snap.Select(fp),
		Version:           snap.Version(),
		TemporaryLifetime: o.opts.TemporaryEntryLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("引擎执行失败: %w", err)
	}

	if out.Status == types.StatusSuccess {
		for _, d := range out.Deltas {
			if !fp.CanWrite(d.Key) {
				out.Status = types.StatusFootprintViolation
				out.Violations = append(out.Violations, types.FootprintAccess{Key: d.Key, Write: true})
				out.TrapReason = "write of " + d.Key.String() + " outside footprint"
			}
		}
	}
	if out.Status != types.StatusSuccess {
		out.Deltas = nil
	}
	return out, nil
}

func withRetryEvent(ev *types.DiagnosticEvent, diags []types.DiagnosticEvent) []types.DiagnosticEvent {
	if ev == nil {
		return diags
	}
	out := make([]types.DiagnosticEvent, 0, len(diags)+1)
	out = append(out, *ev)
	for _, d := range diags {
		d.Seq = len(out)
		out = append(out, d)
	}
	return out
}

// Commit 提交成功执行的变更
//
// 非成功结果不做任何事。提交版本为执行时的快照版本，冲突时返回 *StateChangedError。
func (o *Orchestrator) Commit(ctx context.Context, exec *Execution) error {
	res := exec.Result
	if !res.Succeeded() {
		return nil
	}
	version, err := o.store.Commit(ctx, res.Deltas, res.BaseVersion)
	if err != nil {
		var conflict *ledger.ConflictError
		if errors.As(err, &conflict) {
			return &StateChangedError{Conflict: conflict}
		}
		return err
	}
	res.CommittedVersion = version
	if o.opts.LearnFootprint {
		o.hints.learn(exec.Contract.Address, exec.Function.Name, res.Diagnostics)
	}
	return nil
}

// ResetHints 清空已学习的足迹提示
func (o *Orchestrator) ResetHints() {
	o.hints.reset()
}

// Store 底层账本
func (o *Orchestrator) Store() *ledger.Store { return o.store }
