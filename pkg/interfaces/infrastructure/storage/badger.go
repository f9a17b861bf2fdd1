package storage

import (
	"context"
)

// BadgerStore 有序键值存储
//
// 账本的 badger 后端用它保存条目与版本记录。Update 内的写入原子生效。
type BadgerStore interface {
	// Get 读取单个键，不存在时返回 nil, nil
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Scan 按键升序遍历 prefix 下的全部键值，fn 返回错误时停止遍历
	//
	// 传给 fn 的切片在回调返回后失效，需要保留时自行拷贝。
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error

	// Update 在一个写事务内执行 fn，fn 出错或 ctx 取消时不写入任何内容
	Update(ctx context.Context, fn func(w BatchWriter) error) error

	Close() error
}

// BatchWriter Update 回调内可用的写操作
type BatchWriter interface {
	Set(key, value []byte) error
	Delete(key []byte) error
}
