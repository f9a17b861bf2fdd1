package ledger

import (
	"context"

	"github.com/weisyn/sandbox/pkg/types"
)

// Persister 快照持久化后端
//
// Save 返回 nil 即表示新快照已经持久（落盘并同步），此后才会对读者可见。
// Save 失败时磁盘上保留的必须仍是上一版本。
type Persister interface {
	// Name 后端名称
	Name() string

	// Load 读取持久化的快照；不存在时返回版本 0 的空快照，完整性校验失败返回 ErrCorrupt
	Load(ctx context.Context) (uint64, []*types.LedgerEntry, error)

	// Save 持久化一次提交。next 为提交后的完整快照，deltas 为本次变更（已排序）
	Save(ctx context.Context, next *Snapshot, deltas []types.Delta) error

	// Close 释放资源
	Close() error
}
