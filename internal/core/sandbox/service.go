// Package sandbox 沙箱服务：并发调用与读取的前端
//
// 读取与模拟调用直接在不可变快照上进行，从不阻塞；会修改状态的调用
// 按到达顺序排队获取唯一的写者锁，在最新快照上执行并以乐观版本校验提交。
// 获得写者锁之后的执行与提交不受调用方取消影响，结果在提交后被丢弃。
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/google/uuid"

	sandboxconfig "github.com/weisyn/sandbox/internal/config/sandbox"
	"github.com/weisyn/sandbox/internal/core/conversion"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/ledger"
	"github.com/weisyn/sandbox/internal/core/orchestrator"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
	"github.com/weisyn/sandbox/pkg/types"
)

var (
	// ErrStopped 服务已停止接受写请求
	ErrStopped = errors.New("sandbox stopped")
	// ErrNoInvoker 未指定调用者且没有配置默认调用者
	ErrNoInvoker = errors.New("invoker not specified")
	// ErrContractExists 目标地址已有合约实例
	ErrContractExists = errors.New("contract already exists")
)

// InvokeRequest 调用请求
type InvokeRequest struct {
	Contract types.Address
	Function string
	// Args 参数的 JSON 表示：按位置的数组或以参数名为键的对象
	Args json.RawMessage
	// EncodedArgs 参数 Vec 的规范编码，非空时优先于 Args
	EncodedArgs []byte
	// Invoker 零值时使用配置的默认调用者
	Invoker   types.Address
	Budget    types.Budget
	ReadOnly  []types.LedgerKey
	ReadWrite []types.LedgerKey
	// Simulate 只执行不提交；只读函数总是模拟执行
	Simulate bool
}

// InvokeResponse 调用结果
type InvokeResponse struct {
	RequestID string
	Function  *types.FunctionSpec
	Result    *types.InvocationResult
	// Value 结果值的 JSON 表示，非成功时为 nil
	Value     any
	Engine    string
	Simulated bool
}

// DeployResult 部署结果
type DeployResult struct {
	Address  types.Address
	CodeHash types.Hash
	Spec     *types.ContractSpec
	Version  uint64
}

// LedgerInfo 账本概况
type LedgerInfo struct {
	Version      uint64 `json:"version"`
	Entries      int    `json:"entries"`
	ReadOnly     bool   `json:"read_only"`
	WriteWaiting int    `json:"write_waiting"`
	// ReadOnlyReasons 只读原因，按登记先后
	ReadOnlyReasons []string `json:"read_only_reasons,omitempty"`
}

// Service 沙箱服务
type Service struct {
	orch    *orchestrator.Orchestrator
	store   *ledger.Store
	gate    writegate.WriteGate
	bus     event.EventBus
	opts    *sandboxconfig.SandboxOptions
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  log.Logger

	lane     *writeLane
	requests *tracker
	stopped  atomic.Bool

	defaultInvoker types.Address
}

// Option 服务选项
type Option func(*Service)

// WithEventBus 事件总线
func WithEventBus(b event.EventBus) Option { return func(s *Service) { s.bus = b } }

// WithWriteGate 写门闸
func WithWriteGate(g writegate.WriteGate) Option { return func(s *Service) { s.gate = g } }

// WithMetrics 指标
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock 请求时间戳的时间源
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithLogger 日志
func WithLogger(l log.Logger) Option { return func(s *Service) { s.logger = logimpl.OrNop(l) } }

// New 创建沙箱服务
func New(orch *orchestrator.Orchestrator, opts *sandboxconfig.SandboxOptions, options ...Option) (*Service, error) {
	if opts == nil {
		opts = sandboxconfig.New(nil).GetOptions()
	}
	s := &Service{
		orch:   orch,
		store:  orch.Store(),
		opts:   opts,
		logger: logimpl.NewNopLogger(),
		lane:   newWriteLane(),
	}
	for _, o := range options {
		o(s)
	}
	if opts.DefaultInvoker != "" {
		a, err := address.Parse(opts.DefaultInvoker)
		if err != nil {
			return nil, fmt.Errorf("默认调用者地址无效: %w", err)
		}
		s.defaultInvoker = a
	}
	s.requests = newTracker(opts.RequestHistory, s.clock, s.metrics, s.logger)
	s.store.OnCommit(s.publishCommit)
	if opts.ReadOnly && s.gate != nil {
		s.gate.EnterReadOnly("configured read-only")
	}
	return s, nil
}

// OnRequestState 注册请求状态迁移回调
func (s *Service) OnRequestState(h StateHook) { s.requests.onTransition(h) }

// Requests 进行中与最近完成的请求
func (s *Service) Requests() (active, recent []RequestInfo) { return s.requests.list() }

// Invoke 调用合约函数
func (s *Service) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	id := uuid.NewString()
	r := s.requests.begin(id, "invoke", address.Encode(req.Contract), req.Function)

	resp, err := s.invoke(ctx, id, r, req)
	outcome := outcomeOf(resp, err)
	r.respond(outcome, err)
	s.publishInvocation(id, req, resp, err)
	if err != nil {
		s.logger.Debugf("调用失败: id=%s fn=%s err=%v", id, req.Function, err)
	}
	return resp, err
}

func (s *Service) invoke(ctx context.Context, id string, r *request, req *InvokeRequest) (*InvokeResponse, error) {
	r.to(StateValidating)
	oreq, fn, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &InvokeResponse{RequestID: id, Function: fn, Simulated: req.Simulate || fn.ReadOnly}
	if resp.Simulated {
		r.to(StateExecuting)
		exec, err := s.orch.Execute(ctx, oreq)
		if err != nil {
			return nil, err
		}
		return s.fill(resp, exec), nil
	}

	if s.stopped.Load() {
		return nil, ErrStopped
	}
	if s.gate != nil {
		if err := s.gate.AssertWriteAllowed(ctx, "sandbox.invoke"); err != nil {
			return nil, err
		}
	}

	r.to(StateAwaitingWriteLock)
	s.metrics.AddWriteQueue(1)
	err = s.lane.Lock(ctx)
	s.metrics.AddWriteQueue(-1)
	if err != nil {
		return nil, err
	}
	defer s.lane.Unlock()

	// 持锁之后不再响应调用方取消
	detached := context.WithoutCancel(ctx)
	r.to(StateExecuting)
	exec, err := s.orch.Execute(detached, oreq)
	if err != nil {
		return nil, err
	}
	r.to(StateCommitting)
	if err := s.orch.Commit(detached, exec); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		s.logger.Infof("调用方已断开，结果已提交后丢弃: id=%s version=%d", id, exec.Result.CommittedVersion)
	}
	return s.fill(resp, exec), nil
}

// validate 解析合约与函数、校验参数个数并转换参数
func (s *Service) validate(ctx context.Context, req *InvokeRequest) (*orchestrator.Request, *types.FunctionSpec, error) {
	c, err := s.orch.ResolveContract(ctx, req.Contract)
	if err != nil {
		return nil, nil, err
	}
	fn, err := orchestrator.LookupFunction(c, req.Function)
	if err != nil {
		return nil, nil, err
	}

	var args []types.TypedValue
	if len(req.EncodedArgs) > 0 {
		args, err = conversion.ArgsFromEncoded(fn, req.EncodedArgs)
		if err != nil {
			return nil, nil, err
		}
		if err := orchestrator.CheckArity(fn, len(args)); err != nil {
			return nil, nil, err
		}
	} else {
		n, err := conversion.ArgCount(req.Args)
		if err != nil {
			return nil, nil, err
		}
		if err := orchestrator.CheckArity(fn, n); err != nil {
			return nil, nil, err
		}
		if args, err = conversion.EncodeArgs(fn, req.Args); err != nil {
			return nil, nil, err
		}
	}

	invoker := req.Invoker
	if invoker.IsZero() {
		invoker = s.defaultInvoker
	}
	if invoker.IsZero() && !fn.ReadOnly && !req.Simulate {
		return nil, nil, ErrNoInvoker
	}
	return &orchestrator.Request{
		Contract:  req.Contract,
		Function:  req.Function,
		Args:      args,
		Invoker:   invoker,
		Budget:    req.Budget,
		ReadOnly:  req.ReadOnly,
		ReadWrite: req.ReadWrite,
	}, fn, nil
}

func (s *Service) fill(resp *InvokeResponse, exec *orchestrator.Execution) *InvokeResponse {
	resp.Result = exec.Result
	resp.Engine = exec.Engine
	if exec.Result.Succeeded() {
		v, err := conversion.DecodeResult(exec.Function, exec.Result.Value)
		if err != nil {
			// 返回值与描述不符时退回带标签的形式
			s.logger.Warnf("返回值与函数描述不符: fn=%s err=%v", exec.Function.Name, err)
			v = conversion.DecodeTagged(exec.Result.Value)
		}
		resp.Value = v
	}
	return resp
}

// ReadEntry 在最新快照上读取条目，从不阻塞
func (s *Service) ReadEntry(_ context.Context, key types.LedgerKey) (*types.LedgerEntry, uint64, bool) {
	snap := s.store.Snapshot()
	e, ok := snap.Get(key)
	return e, snap.Version(), ok
}

// ContractSpec 合约描述
func (s *Service) ContractSpec(ctx context.Context, addr types.Address) (*types.ContractSpec, error) {
	c, err := s.orch.ResolveContract(ctx, addr)
	if err != nil {
		return nil, err
	}
	return c.Spec, nil
}

// InspectCode 解析代码的合约描述，不写账本
func (s *Service) InspectCode(ctx context.Context, code []byte) (*types.ContractSpec, error) {
	return s.orch.ResolveCodeSpec(ctx, code)
}

// LedgerInfo 账本概况
func (s *Service) LedgerInfo() LedgerInfo {
	snap := s.store.Snapshot()
	info := LedgerInfo{Version: snap.Version(), Entries: snap.Len(), WriteWaiting: s.lane.Waiting()}
	if s.gate != nil {
		for _, h := range s.gate.Holds() {
			info.ReadOnlyReasons = append(info.ReadOnlyReasons, h.Reason)
		}
		info.ReadOnly = len(info.ReadOnlyReasons) > 0
	}
	return info
}

// Deploy 安装代码并创建合约实例
//
// 合约地址由代码哈希与盐值派生；代码在提交前由引擎解析描述，非法代码被拒绝。
func (s *Service) Deploy(ctx context.Context, code, salt []byte) (*DeployResult, error) {
	spec, err := s.orch.ResolveCodeSpec(ctx, code)
	if err != nil {
		return nil, err
	}
	hash := types.HashBytes(code)
	addr := types.ContractAddress(hash, salt)

	version, err := s.write(ctx, "sandbox.deploy", func(snap *ledger.Snapshot) ([]types.Delta, error) {
		instKey := types.InstanceKey(addr)
		if _, exists := snap.Get(instKey); exists {
			return nil, fmt.Errorf("%w: %s", ErrContractExists, address.Encode(addr))
		}
		var deltas []types.Delta
		codeKey := types.CodeKey(hash)
		if _, exists := snap.Get(codeKey); !exists {
			deltas = append(deltas, types.Delta{Key: codeKey, Entry: &types.LedgerEntry{Key: codeKey, Value: types.Bytes(code)}})
		}
		return append(deltas, types.Delta{Key: instKey, Entry: &types.LedgerEntry{
			Key:   instKey,
			Value: types.InstanceValue(types.ContractInstance{CodeHash: hash}),
		}}), nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("合约已部署: address=%s code=%s version=%d", address.Encode(addr), hash.Hex(), version)
	return &DeployResult{Address: addr, CodeHash: hash, Spec: spec, Version: version}, nil
}

// SetAccount 设置账户余额，保留已有序号
func (s *Service) SetAccount(ctx context.Context, a types.Address, balance *big.Int) (uint64, error) {
	if a.Kind != types.AddressAccount {
		return 0, fmt.Errorf("不是账户地址: %s", address.Encode(a))
	}
	return s.write(ctx, "sandbox.set_account", func(snap *ledger.Snapshot) ([]types.Delta, error) {
		key := types.AccountKey(a)
		var seq uint64
		if e, ok := snap.Get(key); ok {
			_, seq, _ = types.AccountBalance(e.Value)
		}
		v, err := types.AccountValue(balance, seq)
		if err != nil {
			return nil, err
		}
		return []types.Delta{{Key: key, Entry: &types.LedgerEntry{Key: key, Value: v}}}, nil
	})
}

// write 在写者锁内基于最新快照构造变更并提交
func (s *Service) write(ctx context.Context, op string, build func(*ledger.Snapshot) ([]types.Delta, error)) (uint64, error) {
	if s.stopped.Load() {
		return 0, ErrStopped
	}
	if s.gate != nil {
		if err := s.gate.AssertWriteAllowed(ctx, op); err != nil {
			return 0, err
		}
	}
	s.metrics.AddWriteQueue(1)
	err := s.lane.Lock(ctx)
	s.metrics.AddWriteQueue(-1)
	if err != nil {
		return 0, err
	}
	defer s.lane.Unlock()

	detached := context.WithoutCancel(ctx)
	snap := s.store.Snapshot()
	deltas, err := build(snap)
	if err != nil {
		return 0, err
	}
	return s.store.Commit(detached, deltas, snap.Version())
}

// Stop 停止接受写请求，等待排队中的写者完成后进入只读模式
func (s *Service) Stop(ctx context.Context) error {
	if s.stopped.Swap(true) {
		return nil
	}
	if err := s.lane.Lock(ctx); err != nil {
		return fmt.Errorf("等待写队列排空失败: %w", err)
	}
	s.lane.Unlock()
	if s.gate != nil {
		s.gate.EnterReadOnly("sandbox stopped")
	}
	s.logger.Info("沙箱服务已停止，账本进入只读模式")
	return nil
}

func (s *Service) publishCommit(info ledger.CommitInfo) {
	if s.bus == nil {
		return
	}
	ev := &CommitEvent{Version: info.Version, Previous: info.Previous}
	for _, d := range info.Deltas {
		ev.Keys = append(ev.Keys, d.Key)
		ev.KeyIDs = append(ev.KeyIDs, d.Key.String())
	}
	s.bus.Publish(EventLedgerCommitted, ev)
}

func (s *Service) publishInvocation(id string, req *InvokeRequest, resp *InvokeResponse, err error) {
	if s.bus == nil {
		return
	}
	ev := &InvocationEvent{
		RequestID: id,
		Contract:  address.Encode(req.Contract),
		Function:  req.Function,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if resp != nil && resp.Result != nil {
		ev.Status = resp.Result.Status
		ev.Simulated = resp.Simulated
		ev.Retried = resp.Result.Retried
		ev.BaseVersion = resp.Result.BaseVersion
		ev.CommittedVersion = resp.Result.CommittedVersion
	}
	s.bus.Publish(EventInvocationCompleted, ev)
}

// outcomeOf 请求终态的结果分类
func outcomeOf(resp *InvokeResponse, err error) string {
	switch {
	case err == nil && resp != nil && resp.Result != nil:
		return string(resp.Result.Status)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case orchestrator.IsRetryable(err):
		return "state_changed"
	case errors.Is(err, orchestrator.ErrArityMismatch):
		return "arity_mismatch"
	case errors.Is(err, orchestrator.ErrContractNotFound):
		return "contract_not_found"
	case errors.Is(err, orchestrator.ErrFunctionNotFound):
		return "function_not_found"
	case errors.Is(err, writegate.ErrReadOnly), errors.Is(err, ErrStopped):
		return "read_only"
	}
	if ce, ok := conversion.AsConversionError(err); ok {
		return string(ce.Kind)
	}
	return "error"
}
