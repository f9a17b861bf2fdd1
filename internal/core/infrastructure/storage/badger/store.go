// Package badger 账本 badger 后端使用的有序键值存储
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v3"

	badgerconfig "github.com/weisyn/sandbox/internal/config/storage/badger"
	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/storage"
)

// ErrClosed 存储已关闭
var ErrClosed = errors.New("badger store closed")

// Store BadgerStore 的实现
//
// 读写操作持有 mu 的读锁，Close 取写锁，因此 Close 会等进行中的操作结束后才关库。
type Store struct {
	db     *badgerdb.DB
	logger log.Logger

	mu     sync.RWMutex
	closed bool

	stopGC context.CancelFunc
	gcDone chan struct{}
}

var _ storage.BadgerStore = (*Store)(nil)

// New 打开数据库，磁盘模式下按配置启动值日志回收
func New(cfg *badgerconfig.Config, logger log.Logger) (*Store, error) {
	logger = logimpl.OrNop(logger)
	if cfg == nil {
		cfg = badgerconfig.New(nil)
	}

	opts, err := openOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.Logger = badgerLogger{logger.With("component", "badgerdb")}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开BadgerDB失败: %w", err)
	}
	s := &Store{db: db, logger: logger}

	if interval, ratio := cfg.GCSchedule(); interval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopGC = cancel
		s.gcDone = make(chan struct{})
		go s.gcLoop(ctx, interval, ratio)
	}
	if cfg.IsInMemory() {
		logger.Info("BadgerDB以内存模式打开")
	} else {
		logger.Infof("BadgerDB已打开: %s", cfg.GetPath())
	}
	return s, nil
}

func openOptions(cfg *badgerconfig.Config) (badgerdb.Options, error) {
	if cfg.IsInMemory() {
		return badgerdb.DefaultOptions("").WithInMemory(true), nil
	}
	dir := cfg.GetPath()
	if dir == "" {
		return badgerdb.Options{}, errors.New("BadgerDB数据目录未配置")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return badgerdb.Options{}, fmt.Errorf("创建BadgerDB数据目录失败: %w", err)
	}
	// 账本体量很小，收紧缓存与 vlog 文件
	memTable := cfg.GetMemTableSize()
	return badgerdb.DefaultOptions(dir).
		WithSyncWrites(cfg.IsSyncWritesEnabled()).
		WithMemTableSize(memTable).
		WithValueThreshold(valueThreshold(memTable)).
		WithNumMemtables(2).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumCompactors(2), nil
}

// maxValueThreshold badger 默认的值内联阈值
const maxValueThreshold = 1 << 20

// valueThreshold badger 要求值阈值不超过单批上限，即 memtable 的 15%
func valueThreshold(memTable int64) int64 {
	t := memTable * 15 / 100 / 2
	if t > maxValueThreshold {
		t = maxValueThreshold
	}
	return t
}

func (s *Store) enter() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (s *Store) leave() { s.mu.RUnlock() }

// Get 读取单个键
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	var out []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("读取键 %q 失败: %w", key, err)
	}
	return out, nil
}

// Scan 在同一个只读事务内按键序遍历前缀
func (s *Store) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	return s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if err := item.Value(func(v []byte) error {
				return fn(item.Key(), v)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update 执行一个写事务
func (s *Store) Update(ctx context.Context, fn func(w storage.BatchWriter) error) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txnWriter{txn}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("提交前上下文已取消: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("提交BadgerDB事务失败: %w", err)
	}
	return nil
}

// Close 等待进行中的操作结束后停止回收并关库，重复调用无副作用
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.stopGC != nil {
		s.stopGC()
		<-s.gcDone
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("关闭BadgerDB失败: %w", err)
	}
	s.logger.Info("BadgerDB已关闭")
	return nil
}

// txnWriter 把 badger 事务适配为 BatchWriter
type txnWriter struct {
	txn *badgerdb.Txn
}

func (w txnWriter) Set(key, value []byte) error { return w.txn.Set(key, value) }

func (w txnWriter) Delete(key []byte) error { return w.txn.Delete(key) }

// badgerLogger 把 badger 内部日志转给沙箱日志
type badgerLogger struct {
	log.Logger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) { l.Warnf(format, args...) }
