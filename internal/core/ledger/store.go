// Package ledger 版本化的账本快照存储
//
// 读者通过原子指针拿到已发布的不可变快照，从不阻塞；
// 写者由单一互斥锁串行化，并以乐观版本校验拒绝基于过期版本的提交。
// 新快照只有在持久化后端确认落盘后才发布。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
	"github.com/weisyn/sandbox/pkg/types"
)

// CommitInfo 一次成功提交的摘要
type CommitInfo struct {
	Version  uint64
	Previous uint64
	Deltas   []types.Delta
}

// Store 账本快照存储
type Store struct {
	persister Persister
	gate      writegate.WriteGate
	metrics   *metrics.Metrics
	logger    log.Logger

	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	closed  atomic.Bool

	hookMu   sync.RWMutex
	onCommit []func(CommitInfo)
}

// Option 存储选项
type Option func(*Store)

// WithWriteGate 提交前校验写门闸
func WithWriteGate(g writegate.WriteGate) Option {
	return func(s *Store) { s.gate = g }
}

// WithMetrics 记录提交指标并暴露快照版本与条目数
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger 设置日志记录器
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open 加载快照并创建存储
//
// 持久化数据不存在时得到版本 0 的空快照；完整性校验失败返回 ErrCorrupt，
// 调用方应拒绝继续启动。
func Open(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	if p == nil {
		return nil, errors.New("ledger persister is nil")
	}
	s := &Store{persister: p}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logimpl.OrNop(s.logger)

	version, entries, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载账本快照失败(%s): %w", p.Name(), err)
	}
	snap, err := newSnapshot(version, entries)
	if err != nil {
		return nil, fmt.Errorf("加载账本快照失败(%s): %w", p.Name(), err)
	}
	s.current.Store(snap)

	if s.metrics != nil {
		if err := s.metrics.RegisterLedgerCollector(func() (uint64, int) {
			cur := s.current.Load()
			return cur.Version(), cur.Len()
		}); err != nil {
			s.logger.Warnf("注册账本指标采集器失败: %v", err)
		}
	}
	s.logger.Infof("账本快照已加载: backend=%s version=%d entries=%d", p.Name(), version, snap.Len())
	return s, nil
}

// Snapshot 当前已发布的快照
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Version 当前版本
func (s *Store) Version() uint64 {
	return s.current.Load().Version()
}

// Get 在当前快照上点查询
func (s *Store) Get(key types.LedgerKey) (*types.LedgerEntry, bool) {
	return s.current.Load().Get(key)
}

// OnCommit 注册提交成功后的回调，回调在写锁内同步执行，不应阻塞
func (s *Store) OnCommit(fn func(CommitInfo)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onCommit = append(s.onCommit, fn)
}

// Commit 原子地应用一组变更
//
// expectedVersion 必须等于当前版本，否则返回 *ConflictError（errors.Is ErrConflict）。
// 成功时版本加一并返回新版本；任何失败都不改变已发布的快照与磁盘内容。
// 空变更集合不产生新版本，只做版本校验。
func (s *Store) Commit(ctx context.Context, deltas []types.Delta, expectedVersion uint64) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if s.gate != nil {
		if err := s.gate.AssertWriteAllowed(ctx, "ledger.commit"); err != nil {
			s.metrics.ObserveCommit("rejected", 0)
			return 0, err
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.current.Load()
	if cur.Version() != expectedVersion {
		s.metrics.ObserveCommit("conflict", 0)
		s.logger.Debugf("提交版本冲突: expected=%d actual=%d", expectedVersion, cur.Version())
		return 0, &ConflictError{Expected: expectedVersion, Actual: cur.Version()}
	}
	if len(deltas) == 0 {
		return cur.Version(), nil
	}

	newVersion := cur.Version() + 1
	normalized, err := validateDeltas(deltas, newVersion)
	if err != nil {
		s.metrics.ObserveCommit("rejected", 0)
		return 0, err
	}

	start := time.Now()
	next := cur.apply(normalized, newVersion)
	if err := s.persister.Save(ctx, next, normalized); err != nil {
		s.metrics.ObserveCommit("failed", time.Since(start))
		s.logger.Errorf("持久化账本快照失败: version=%d err=%v", newVersion, err)
		return 0, fmt.Errorf("持久化账本快照失败: %w", err)
	}
	s.current.Store(next)
	s.metrics.ObserveCommit("committed", time.Since(start))
	s.logger.Debugf("账本已提交: version=%d deltas=%d", newVersion, len(normalized))

	s.hookMu.RLock()
	hooks := s.onCommit
	s.hookMu.RUnlock()
	info := CommitInfo{Version: newVersion, Previous: cur.Version(), Deltas: normalized}
	for _, fn := range hooks {
		fn(info)
	}
	return newVersion, nil
}

// Close 关闭存储，等待进行中的提交结束
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.persister.Close()
}
