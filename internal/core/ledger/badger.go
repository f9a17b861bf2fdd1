package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/sandbox/pkg/types"
)

var (
	badgerMetaKey     = []byte("ledger:meta")
	badgerEntryPrefix = []byte("ledger:entry:")
)

// BadgerPersister 基于 BadgerDB 的增量持久化
//
// 每次提交只写本次变更与版本记录，全部在一个事务中完成。
// 每个值前缀其内容的 sha256，加载时逐条校验。
type BadgerPersister struct {
	store  storage.BadgerStore
	logger log.Logger
}

// NewBadgerPersister 创建 badger 持久化后端
func NewBadgerPersister(store storage.BadgerStore, logger log.Logger) *BadgerPersister {
	return &BadgerPersister{store: store, logger: logimpl.OrNop(logger)}
}

// Name 后端名称
func (p *BadgerPersister) Name() string { return "badger" }

// Load 按键序读取全部条目并逐条校验
func (p *BadgerPersister) Load(ctx context.Context) (uint64, []*types.LedgerEntry, error) {
	meta, err := p.store.Get(ctx, badgerMetaKey)
	if err != nil {
		return 0, nil, fmt.Errorf("读取账本元数据失败: %w", err)
	}

	var entries []*types.LedgerEntry
	err = p.store.Scan(ctx, badgerEntryPrefix, func(k, v []byte) error {
		e, err := decodeStored(k, v)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			return 0, nil, err
		}
		return 0, nil, fmt.Errorf("扫描账本条目失败: %w", err)
	}

	if meta == nil {
		if len(entries) > 0 {
			return 0, nil, corruptf("badger: %d entries without version record", len(entries))
		}
		return 0, nil, nil
	}
	if len(meta) != 16 {
		return 0, nil, corruptf("badger: version record has %d bytes", len(meta))
	}
	version := binary.BigEndian.Uint64(meta[:8])
	if count := binary.BigEndian.Uint64(meta[8:]); uint64(len(entries)) != count {
		return 0, nil, corruptf("badger: %d entries, version record says %d", len(entries), count)
	}
	return version, entries, nil
}

// decodeStored 校验摘要并确认条目存放在自己的键下
func decodeStored(k, v []byte) (*types.LedgerEntry, error) {
	if len(v) < sha256.Size {
		return nil, corruptf("badger: short value for %x", k)
	}
	sum := sha256.Sum256(v[sha256.Size:])
	if !bytes.Equal(sum[:], v[:sha256.Size]) {
		return nil, corruptf("badger: digest mismatch for %x", k)
	}
	e, err := types.DecodeEntry(v[sha256.Size:])
	if err != nil {
		return nil, corruptf("badger: %v", err)
	}
	if !bytes.Equal(entryKey(e.Key), k) {
		return nil, corruptf("badger: entry %s stored under foreign key", e.Key)
	}
	return e, nil
}

// Save 在一个事务中写入变更与新版本
func (p *BadgerPersister) Save(ctx context.Context, next *Snapshot, deltas []types.Delta) error {
	meta := make([]byte, 16)
	binary.BigEndian.PutUint64(meta[:8], next.Version())
	binary.BigEndian.PutUint64(meta[8:], uint64(next.Len()))

	return p.store.Update(ctx, func(w storage.BatchWriter) error {
		for _, d := range deltas {
			k := entryKey(d.Key)
			if d.IsTombstone() {
				if err := w.Delete(k); err != nil {
					return fmt.Errorf("删除条目 %s 失败: %w", d.Key, err)
				}
				continue
			}
			enc := types.EncodeEntry(d.Entry)
			sum := sha256.Sum256(enc)
			if err := w.Set(k, append(sum[:], enc...)); err != nil {
				return fmt.Errorf("写入条目 %s 失败: %w", d.Key, err)
			}
		}
		return w.Set(badgerMetaKey, meta)
	})
}

// Close 底层存储由 storage 模块持有并关闭
func (p *BadgerPersister) Close() error { return nil }

func entryKey(k types.LedgerKey) []byte {
	enc := types.EncodeKey(k)
	out := make([]byte, 0, len(badgerEntryPrefix)+len(enc))
	out = append(out, badgerEntryPrefix...)
	return append(out, enc...)
}
