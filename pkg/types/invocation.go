package types

// Budget 单次调用的资源上限
type Budget struct {
	// InstructionLimit 可执行的计量步数上限
	InstructionLimit uint64 `json:"instructions"`
	// MemoryLimitBytes 线性内存上限（字节）
	MemoryLimitBytes uint64 `json:"memory_bytes"`
}

// ResourceUsage 资源消耗计数
type ResourceUsage struct {
	Instructions    uint64 `json:"instructions"`
	MemoryHighWater uint64 `json:"memory_high_water"`
	HostCalls       uint64 `json:"host_calls"`
}

// DiagnosticType 诊断事件类型
type DiagnosticType string

const (
	DiagFunctionCall   DiagnosticType = "fn_call"
	DiagFunctionReturn DiagnosticType = "fn_return"
	DiagContractEvent  DiagnosticType = "contract_event"
	DiagStorageRead    DiagnosticType = "storage_read"
	DiagStorageWrite   DiagnosticType = "storage_write"
	DiagFootprint      DiagnosticType = "footprint"
	DiagBudget         DiagnosticType = "budget"
	DiagTrap           DiagnosticType = "trap"
	DiagRetry          DiagnosticType = "retry"
)

// DiagnosticEvent 执行过程中产生的结构化诊断记录，不属于返回值
type DiagnosticEvent struct {
	Seq      int            `json:"seq"`
	Type     DiagnosticType `json:"type"`
	Contract Address        `json:"-"`
	Message  string         `json:"message,omitempty"`
	Key      *LedgerKey     `json:"-"`
	Data     *TypedValue    `json:"-"`
}

// InvocationStatus 调用结果分类
type InvocationStatus string

const (
	StatusSuccess            InvocationStatus = "success"
	StatusTrapped            InvocationStatus = "trapped"
	StatusBudgetExceeded     InvocationStatus = "budget_exceeded"
	StatusFootprintViolation InvocationStatus = "footprint_violation"
)

// FootprintAccess 一次越界访问
type FootprintAccess struct {
	Key   LedgerKey
	Write bool
}

// InvocationResult 调用结果
//
// 非 Success 时 Deltas 恒为空。
type InvocationResult struct {
	Status      InvocationStatus
	Value       TypedValue
	Diagnostics []DiagnosticEvent
	Resources   ResourceUsage
	Deltas      []Delta
	// Footprint 最终使用的足迹（重试后为扩展后的足迹）
	Footprint Footprint
	// Retried 是否发生过一次足迹扩展重试
	Retried bool
	// Violations 最后一次执行的越界访问
	Violations []FootprintAccess
	// TrapReason 陷入原因
	TrapReason string
	// BaseVersion 执行所基于的快照版本
	BaseVersion uint64
	// CommittedVersion 提交后的版本，未提交为 0
	CommittedVersion uint64
}

// Succeeded 是否成功
func (r *InvocationResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}
