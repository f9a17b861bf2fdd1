// Package memory 基于 bigcache 的进程内缓存
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/allegro/bigcache/v3"

	memoryconfig "github.com/weisyn/sandbox/internal/config/storage/memory"
	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/storage"
)

// ErrStoreClosed 缓存已关闭
var ErrStoreClosed = errors.New("memory store closed")

// Store MemoryStore 的实现
//
// bigcache 自身并发安全，mu 只保护 closed 与 Close 的先后关系。
type Store struct {
	cache  *bigcache.BigCache
	logger log.Logger

	mu     sync.RWMutex
	closed bool
}

var _ storage.MemoryStore = (*Store)(nil)

// New 按配置创建缓存，cfg 为 nil 时使用默认值
func New(cfg *memoryconfig.Config, logger log.Logger) (*Store, error) {
	if cfg == nil {
		cfg = memoryconfig.New()
	}
	o := cfg.GetOptions()
	bc := bigcache.DefaultConfig(o.LifeWindow)
	bc.CleanWindow = o.CleanWindow
	bc.MaxEntriesInWindow = o.MaxEntriesInWindow
	bc.MaxEntrySize = o.MaxEntrySize
	bc.Shards = o.Shards
	bc.HardMaxCacheSize = o.HardMaxMB
	bc.Verbose = false

	cache, err := bigcache.New(context.Background(), bc)
	if err != nil {
		return nil, fmt.Errorf("创建内存缓存失败: %w", err)
	}
	return &Store{cache: cache, logger: logimpl.OrNop(logger)}, nil
}

func (s *Store) open() (func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	return s.mu.RUnlock, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	done, err := s.open()
	if err != nil {
		return nil, false, err
	}
	defer done()

	v, err := s.cache.Get(key)
	switch {
	case errors.Is(err, bigcache.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("读取缓存 %s 失败: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	done, err := s.open()
	if err != nil {
		return err
	}
	defer done()
	if err := s.cache.Set(key, value); err != nil {
		return fmt.Errorf("写入缓存 %s 失败: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	done, err := s.open()
	if err != nil {
		return err
	}
	defer done()
	if err := s.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return fmt.Errorf("删除缓存 %s 失败: %w", key, err)
	}
	return nil
}

// Stats 关闭后返回零值
func (s *Store) Stats() storage.CacheStats {
	done, err := s.open()
	if err != nil {
		return storage.CacheStats{}
	}
	defer done()
	st := s.cache.Stats()
	return storage.CacheStats{
		Entries:    s.cache.Len(),
		Hits:       st.Hits,
		Misses:     st.Misses,
		Collisions: st.Collisions,
	}
}

func (s *Store) Clear(_ context.Context) error {
	done, err := s.open()
	if err != nil {
		return err
	}
	defer done()
	return s.cache.Reset()
}

// Close 重复调用无副作用
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.cache.Close(); err != nil {
		return fmt.Errorf("关闭内存缓存失败: %w", err)
	}
	s.logger.Debug("内存缓存已关闭")
	return nil
}
