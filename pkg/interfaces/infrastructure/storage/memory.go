// Package storage 沙箱使用的存储接口
package storage

import "context"

// MemoryStore 进程内缓存
//
// 存放可由合约字节码重新派生的数据。条目可能随时被淘汰，调用方在未命中时重新计算。
type MemoryStore interface {
	// Get exists=false 表示未命中
	Get(ctx context.Context, key string) (value []byte, exists bool, err error)

	// Set 写入或覆盖，条目在缓存生命周期结束后淘汰
	Set(ctx context.Context, key string, value []byte) error

	// Delete 键不存在不报错
	Delete(ctx context.Context, key string) error

	Stats() CacheStats

	Clear(ctx context.Context) error

	Close() error
}

// CacheStats 缓存命中统计
type CacheStats struct {
	Entries    int   `json:"entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Collisions int64 `json:"collisions"`
}
