// Package host 引擎共用的宿主状态
//
// 每次执行构造一个 State：持有足迹内条目的私有副本、本次写入、
// 诊断事件与资源计数。越出足迹的访问与预算耗尽都会使执行中止，
// 中止原因是粘滞的，引擎据此对结果分类。
package host

import (
	"errors"
	"fmt"
	"sync"

	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/types"
)

var (
	// ErrFootprintViolation 访问了足迹之外的条目
	ErrFootprintViolation = errors.New("footprint violation")
	// ErrBudgetExceeded 资源预算耗尽
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrTrap 合约主动中止或非法访问
	ErrTrap = errors.New("contract trapped")
)

// Env 合约可见的宿主能力
type Env interface {
	// Contract 当前合约地址
	Contract() types.Address
	// Invoker 调用者账户
	Invoker() types.Address
	// Get 读取条目，不存在时 ok 为 false
	Get(key types.LedgerKey) (types.TypedValue, bool, error)
	// Put 写入条目
	Put(key types.LedgerKey, value types.TypedValue) error
	// Delete 删除条目
	Delete(key types.LedgerKey) error
	// Emit 发出合约事件
	Emit(topic string, data types.TypedValue) error
	// Charge 计量 units 步
	Charge(units uint64) error
	// Fail 以给定原因中止执行
	Fail(reason string) error
}

// State 单次执行的宿主状态，实现 Env
//
// WASM 宿主函数与监听器可能在不同 goroutine 中访问，内部加锁。
type State struct {
	mu sync.Mutex

	contract  types.Address
	invoker   types.Address
	footprint types.Footprint
	version   uint64
	lifetime  uint64
	budget    types.Budget

	entries map[string]*types.LedgerEntry
	writes  map[string]types.Delta

	diagnostics []types.DiagnosticEvent
	usage       types.ResourceUsage

	violations []types.FootprintAccess
	violated   map[string]bool

	aborted    bool
	status     types.InvocationStatus
	trapReason string

	onAbort func()
}

// NewState 由执行请求构造宿主状态
func NewState(req *enginepkg.ExecutionRequest) *State {
	entries := make(map[string]*types.LedgerEntry, len(req.Entries))
	for id, e := range req.Entries {
		cp := *e
		entries[id] = &cp
	}
	return &State{
		contract:  req.Contract,
		invoker:   req.Invoker,
		footprint: req.Footprint,
		version:   req.Version,
		lifetime:  req.TemporaryLifetime,
		budget:    req.Budget,
		entries:   entries,
		writes:    make(map[string]types.Delta),
		violated:  make(map[string]bool),
		status:    types.StatusSuccess,
	}
}

// OnAbort 注册中止回调（WASM 引擎用它取消调用上下文）
func (s *State) OnAbort(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAbort = fn
}

// Contract 当前合约
func (s *State) Contract() types.Address { return s.contract }

// Invoker 调用者
func (s *State) Invoker() types.Address { return s.invoker }

// Get 读取条目，优先返回本次执行已写入的值
func (s *State) Get(key types.LedgerKey) (types.TypedValue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return types.TypedValue{}, false, err
	}
	if !s.footprint.CanRead(key) {
		return types.TypedValue{}, false, s.violate(key, false)
	}
	s.recordLocked(types.DiagStorageRead, key.String(), &key, nil)

	id := key.ID()
	if d, ok := s.writes[id]; ok {
		if d.IsTombstone() {
			return types.TypedValue{}, false, nil
		}
		return d.Entry.Value, true, nil
	}
	e, ok := s.entries[id]
	if !ok || e.Expired(s.version) {
		return types.TypedValue{}, false, nil
	}
	return e.Value, true, nil
}

// Put 写入条目
//
// 代码条目不可由合约写入；合约数据只能写入调用合约自己的命名空间。
func (s *State) Put(key types.LedgerKey, value types.TypedValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	if err := s.checkWritable(key); err != nil {
		return err
	}
	e := &types.LedgerEntry{Key: key, Value: value}
	if key.Kind == types.EntryContractData && key.Durability == types.DurabilityTemporary && s.lifetime > 0 {
		e.LiveUntil = s.version + 1 + s.lifetime
	}
	s.writes[key.ID()] = types.Delta{Key: key, Entry: e}
	v := value
	s.recordLocked(types.DiagStorageWrite, key.String(), &key, &v)
	return nil
}

// Delete 删除条目
func (s *State) Delete(key types.LedgerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	if err := s.checkWritable(key); err != nil {
		return err
	}
	s.writes[key.ID()] = types.Delta{Key: key}
	s.recordLocked(types.DiagStorageWrite, "delete "+key.String(), &key, nil)
	return nil
}

// Emit 记录合约事件
func (s *State) Emit(topic string, data types.TypedValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	d := data
	s.recordLocked(types.DiagContractEvent, topic, nil, &d)
	return nil
}

// Charge 计量指令步数，超出预算时中止
func (s *State) Charge(units uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return s.abortErr()
	}
	s.usage.Instructions += units
	if s.budget.InstructionLimit > 0 && s.usage.Instructions > s.budget.InstructionLimit {
		s.abortLocked(types.StatusBudgetExceeded, fmt.Sprintf("instruction limit %d exceeded", s.budget.InstructionLimit))
		s.recordLocked(types.DiagBudget, s.trapReason, nil, nil)
		return s.abortErr()
	}
	return nil
}

// ObserveMemory 记录线性内存高水位，超出预算时中止
func (s *State) ObserveMemory(bytes uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes > s.usage.MemoryHighWater {
		s.usage.MemoryHighWater = bytes
	}
	if s.aborted {
		return s.abortErr()
	}
	if s.budget.MemoryLimitBytes > 0 && bytes > s.budget.MemoryLimitBytes {
		s.abortLocked(types.StatusBudgetExceeded, fmt.Sprintf("memory limit %d bytes exceeded (%d)", s.budget.MemoryLimitBytes, bytes))
		s.recordLocked(types.DiagBudget, s.trapReason, nil, nil)
		return s.abortErr()
	}
	return nil
}

// Fail 合约主动中止
func (s *State) Fail(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return s.abortErr()
	}
	s.abortLocked(types.StatusTrapped, reason)
	s.recordLocked(types.DiagTrap, reason, nil, nil)
	return s.abortErr()
}

// Record 追加诊断事件
func (s *State) Record(typ types.DiagnosticType, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(typ, msg, nil, nil)
}

// Aborted 执行是否已被中止
func (s *State) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Outcome 构造执行结果
//
// 已中止时以中止原因分类；否则 execErr 非空视为陷入。非成功结果不携带变更。
// 写入了读写集合之外的键同样归类为越界访问。
func (s *State) Outcome(value types.TypedValue, execErr error) *enginepkg.ExecutionOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.aborted && execErr != nil {
		s.abortLocked(types.StatusTrapped, execErr.Error())
		s.recordLocked(types.DiagTrap, s.trapReason, nil, nil)
	}
	if !s.aborted {
		for _, d := range s.writes {
			if !s.footprint.CanWrite(d.Key) {
				_ = s.violate(d.Key, true)
			}
		}
	}

	out := &enginepkg.ExecutionOutcome{
		Status:      s.status,
		Diagnostics: append([]types.DiagnosticEvent(nil), s.diagnostics...),
		Resources:   s.usage,
		Violations:  append([]types.FootprintAccess(nil), s.violations...),
		TrapReason:  s.trapReason,
	}
	if s.status != types.StatusSuccess {
		return out
	}
	out.Value = value
	out.Deltas = make([]types.Delta, 0, len(s.writes))
	for _, d := range s.writes {
		out.Deltas = append(out.Deltas, d)
	}
	types.SortDeltas(out.Deltas)
	s.recordLocked(types.DiagFunctionReturn, value.String(), nil, &value)
	out.Diagnostics = append([]types.DiagnosticEvent(nil), s.diagnostics...)
	return out
}

// enter 每次宿主调用计一步
func (s *State) enter() error {
	if s.aborted {
		return s.abortErr()
	}
	s.usage.HostCalls++
	s.usage.Instructions++
	if s.budget.InstructionLimit > 0 && s.usage.Instructions > s.budget.InstructionLimit {
		s.abortLocked(types.StatusBudgetExceeded, fmt.Sprintf("instruction limit %d exceeded", s.budget.InstructionLimit))
		s.recordLocked(types.DiagBudget, s.trapReason, nil, nil)
		return s.abortErr()
	}
	return nil
}

func (s *State) checkWritable(key types.LedgerKey) error {
	switch key.Kind {
	case types.EntryContractCode:
		s.abortLocked(types.StatusTrapped, "contract code entries are immutable")
		return s.abortErr()
	case types.EntryContractData:
		if key.Contract != s.contract {
			s.abortLocked(types.StatusTrapped, "write to foreign contract data "+key.String())
			return s.abortErr()
		}
	}
	if !s.footprint.CanWrite(key) {
		return s.violate(key, true)
	}
	return nil
}

// violate 记录越界访问并中止执行
func (s *State) violate(key types.LedgerKey, write bool) error {
	id := key.ID()
	if !s.violated[id] {
		s.violated[id] = true
		s.violations = append(s.violations, types.FootprintAccess{Key: key, Write: write})
	}
	mode := "read"
	if write {
		mode = "write"
	}
	s.recordLocked(types.DiagFootprint, fmt.Sprintf("%s outside footprint: %s", mode, key), &key, nil)
	if !s.aborted {
		s.abortLocked(types.StatusFootprintViolation, fmt.Sprintf("%s of %s outside footprint", mode, key))
	}
	return s.abortErr()
}

func (s *State) abortLocked(status types.InvocationStatus, reason string) {
	if s.aborted {
		return
	}
	s.aborted = true
	s.status = status
	s.trapReason = reason
	if s.onAbort != nil {
		s.onAbort()
	}
}

func (s *State) abortErr() error {
	switch s.status {
	case types.StatusFootprintViolation:
		return fmt.Errorf("%w: %s", ErrFootprintViolation, s.trapReason)
	case types.StatusBudgetExceeded:
		return fmt.Errorf("%w: %s", ErrBudgetExceeded, s.trapReason)
	default:
		return fmt.Errorf("%w: %s", ErrTrap, s.trapReason)
	}
}

func (s *State) recordLocked(typ types.DiagnosticType, msg string, key *types.LedgerKey, data *types.TypedValue) {
	s.diagnostics = append(s.diagnostics, types.DiagnosticEvent{
		Seq:      len(s.diagnostics),
		Type:     typ,
		Contract: s.contract,
		Message:  msg,
		Key:      key,
		Data:     data,
	})
}
