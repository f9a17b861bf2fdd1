package orchestrator

import (
	"errors"
	"fmt"

	"github.com/weisyn/sandbox/internal/core/ledger"
)

var (
	// ErrArityMismatch 参数个数与函数描述不符
	ErrArityMismatch = errors.New("arity mismatch")
	// ErrContractNotFound 合约实例或代码不存在
	ErrContractNotFound = errors.New("contract not found")
	// ErrFunctionNotFound 合约描述中没有该函数
	ErrFunctionNotFound = errors.New("function not found")
	// ErrStateChanged 执行期间账本已被其他写入者推进，可整体重试
	ErrStateChanged = errors.New("state changed concurrently")
)

// ArityMismatchError 参数个数错误
type ArityMismatchError struct {
	Function string
	Expected int
	Actual   int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("arity mismatch: %s expects %d arguments, got %d", e.Function, e.Expected, e.Actual)
}

func (e *ArityMismatchError) Unwrap() error { return ErrArityMismatch }

// StateChangedError 提交时版本冲突
type StateChangedError struct {
	Conflict *ledger.ConflictError
}

func (e *StateChangedError) Error() string {
	return fmt.Sprintf("%v: snapshot %d superseded by %d", ErrStateChanged, e.Conflict.Expected, e.Conflict.Actual)
}

func (e *StateChangedError) Unwrap() []error { return []error{ErrStateChanged, e.Conflict} }

// IsRetryable 错误是否可以通过重新执行整个调用来恢复
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStateChanged)
}
