package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict 提交时快照版本与预期不符
	ErrConflict = errors.New("ledger version conflict")
	// ErrCorrupt 持久化快照未通过完整性校验
	ErrCorrupt = errors.New("ledger snapshot corrupt")
	// ErrInvalidDelta 变更集合非法（键不一致、重复键、代码哈希不符）
	ErrInvalidDelta = errors.New("invalid ledger delta")
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("ledger store closed")
)

// ConflictError 版本冲突详情
type ConflictError struct {
	Expected uint64
	Actual   uint64
}

// Error 实现 error
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: expected version %d, current version %d", ErrConflict, e.Expected, e.Actual)
}

// Unwrap 支持 errors.Is(err, ErrConflict)
func (e *ConflictError) Unwrap() error { return ErrConflict }

// corruptf 构造包装 ErrCorrupt 的错误
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
