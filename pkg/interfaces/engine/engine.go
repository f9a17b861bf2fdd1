// Package engine 定义合约执行引擎的边界
//
// 编排器只通过本接口与引擎交互：引擎拿到代码、函数、参数、足迹与预算，
// 返回分类后的结果与待提交的变更。引擎从不直接接触账本存储，
// 它看到的只是请求中足迹范围内条目的私有副本。
package engine

import (
	"context"
	"errors"

	"github.com/weisyn/sandbox/pkg/types"
)

var (
	// ErrInvalidCode 字节码无法加载（编译失败、缺少导出、描述段非法）
	ErrInvalidCode = errors.New("invalid contract code")
	// ErrEngineClosed 引擎已关闭
	ErrEngineClosed = errors.New("engine closed")
)

// ExecutionRequest 单次执行请求
type ExecutionRequest struct {
	// Contract 被调用合约地址
	Contract types.Address
	// CodeHash 代码内容地址
	CodeHash types.Hash
	// Code 合约字节码
	Code []byte
	// Function 函数名
	Function string
	// Args 已按函数描述转换好的参数
	Args []types.TypedValue
	// Invoker 调用者账户
	Invoker types.Address
	// Footprint 允许访问的条目集合
	Footprint types.Footprint
	// Budget 资源预算
	Budget types.Budget
	// Entries 足迹内已存在条目的私有副本，以 LedgerKey.ID() 为键
	Entries map[string]*types.LedgerEntry
	// Version 执行所基于的快照版本
	Version uint64
	// TemporaryLifetime 临时条目写入后的存活版本数，0 表示不过期
	TemporaryLifetime uint64
}

// ExecutionOutcome 引擎对一次执行的分类结果
//
// Status 不是 Success 时 Deltas 为空。
type ExecutionOutcome struct {
	Status      types.InvocationStatus
	Value       types.TypedValue
	Diagnostics []types.DiagnosticEvent
	Resources   types.ResourceUsage
	Deltas      []types.Delta
	// Violations 越出足迹的访问（Status 为 FootprintViolation 时非空）
	Violations []types.FootprintAccess
	TrapReason string
}

// Engine 执行引擎
type Engine interface {
	// Name 引擎名称（wasm / scripted）
	Name() string

	// ResolveSpec 从字节码派生合约描述，描述非法时返回 ErrInvalidCode
	ResolveSpec(ctx context.Context, code []byte) (*types.ContractSpec, error)

	// Execute 执行一次调用
	//
	// 陷入、预算耗尽与越界访问都通过 ExecutionOutcome.Status 表达，
	// 只有代码无法加载或引擎自身故障时才返回 error。
	Execute(ctx context.Context, req *ExecutionRequest) (*ExecutionOutcome, error)

	// Close 释放引擎资源
	Close(ctx context.Context) error
}
