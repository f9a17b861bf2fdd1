// Package compiler 已编译合约模块的缓存
package compiler

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/weisyn/sandbox/pkg/types"
)

// CacheStats 缓存统计信息
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Handle 对缓存条目的一次引用，用完必须 Release
type Handle struct {
	entry *entry
	cache *ModuleCache
}

// Value 缓存的模块
func (h *Handle) Value() any { return h.entry.value }

// Release 归还引用；条目已被淘汰且无人引用时释放
func (h *Handle) Release() {
	if h == nil || h.cache == nil {
		return
	}
	c := h.cache
	h.cache = nil
	c.mu.Lock()
	h.entry.refs--
	release := h.entry.evicted && h.entry.refs == 0
	c.mu.Unlock()
	if release {
		c.onEvict(h.entry.value)
	}
}

type entry struct {
	value   any
	refs    int
	evicted bool
}

// ModuleCache 按代码哈希缓存编译结果，超过容量时淘汰最久未用的条目
//
// 被淘汰的条目在最后一个引用归还后才交给 onEvict 释放，
// 因此正在执行的调用不会看到已关闭的模块。
type ModuleCache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[types.Hash, *entry]
	onEvict func(any)
	stats   CacheStats

	// 以下两个字段只在持锁期间由淘汰回调使用
	purging bool
	victims []any
}

// NewModuleCache 创建模块缓存，maxSize 不大于 0 时按 1 处理
func NewModuleCache(maxSize int, onEvict func(any)) *ModuleCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	if onEvict == nil {
		onEvict = func(any) {}
	}
	c := &ModuleCache{onEvict: onEvict}
	// size 已保证为正，NewLRU 不会失败
	c.lru, _ = simplelru.NewLRU[types.Hash, *entry](maxSize, c.evicted)
	return c
}

func (c *ModuleCache) evicted(_ types.Hash, e *entry) {
	e.evicted = true
	if !c.purging {
		c.stats.Evictions++
	}
	if e.refs == 0 {
		c.victims = append(c.victims, e.value)
	}
}

// drainLocked 取走本次操作中可立即释放的模块
func (c *ModuleCache) drainLocked() []any {
	v := c.victims
	c.victims = nil
	return v
}

func (c *ModuleCache) release(victims []any) {
	for _, v := range victims {
		c.onEvict(v)
	}
}

// Acquire 取得已缓存的模块
func (c *ModuleCache) Acquire(key types.Hash) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	e.refs++
	return &Handle{entry: e, cache: c}, true
}

// Add 放入模块并返回其引用；同键已存在时返回已有条目，loaded 为 true，调用方自行释放传入的 value
func (c *ModuleCache) Add(key types.Hash, value any) (h *Handle, loaded bool) {
	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok {
		e.refs++
		c.mu.Unlock()
		return &Handle{entry: e, cache: c}, true
	}
	e := &entry{value: value, refs: 1}
	c.lru.Add(key, e)
	victims := c.drainLocked()
	c.mu.Unlock()

	c.release(victims)
	return &Handle{entry: e, cache: c}, false
}

// Clear 清空缓存，返回被移除的条目数
func (c *ModuleCache) Clear() int {
	c.mu.Lock()
	n := c.lru.Len()
	c.purging = true
	c.lru.Purge()
	c.purging = false
	victims := c.drainLocked()
	c.mu.Unlock()

	c.release(victims)
	return n
}

// Stats 缓存统计
func (c *ModuleCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	return s
}
