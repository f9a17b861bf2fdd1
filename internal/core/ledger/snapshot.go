package ledger

import (
	"fmt"
	"sort"

	"github.com/weisyn/sandbox/pkg/types"
)

// Snapshot 某一版本的账本状态
//
// 快照一经发布不再修改，提交时复制出新快照（copy-on-commit），
// 读者持有的旧快照始终保持一致。
type Snapshot struct {
	version uint64
	entries map[string]*types.LedgerEntry
}

func emptySnapshot() *Snapshot {
	return &Snapshot{entries: make(map[string]*types.LedgerEntry)}
}

// newSnapshot 由加载得到的条目构造快照，重复键视为损坏
func newSnapshot(version uint64, entries []*types.LedgerEntry) (*Snapshot, error) {
	s := &Snapshot{version: version, entries: make(map[string]*types.LedgerEntry, len(entries))}
	for _, e := range entries {
		id := e.Key.ID()
		if _, dup := s.entries[id]; dup {
			return nil, corruptf("duplicate entry %s", e.Key)
		}
		s.entries[id] = e
	}
	return s, nil
}

// Version 快照版本
func (s *Snapshot) Version() uint64 { return s.version }

// Len 条目数（含已过期但尚未清理的临时条目）
func (s *Snapshot) Len() int { return len(s.entries) }

// Get 点查询，过期的临时条目视为不存在
//
// 返回条目的副本，调用方修改不会影响快照。
func (s *Snapshot) Get(key types.LedgerKey) (*types.LedgerEntry, bool) {
	e, ok := s.entries[key.ID()]
	if !ok || e.Expired(s.version) {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Entries 全部未过期条目，按键的规范编码排序
func (s *Snapshot) Entries() []*types.LedgerEntry {
	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if !e.Expired(s.version) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]*types.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		cp := *s.entries[id]
		out = append(out, &cp)
	}
	return out
}

// Select 读取足迹内已存在的条目，返回以 LedgerKey.ID() 为键的私有副本
func (s *Snapshot) Select(fp types.Footprint) map[string]*types.LedgerEntry {
	out := make(map[string]*types.LedgerEntry, fp.Len())
	for _, k := range fp.Keys() {
		if e, ok := s.Get(k); ok {
			out[k.ID()] = e
		}
	}
	return out
}

// apply 在副本上应用变更，生成下一版本快照
func (s *Snapshot) apply(deltas []types.Delta, version uint64) *Snapshot {
	next := &Snapshot{version: version, entries: make(map[string]*types.LedgerEntry, len(s.entries)+len(deltas))}
	for id, e := range s.entries {
		next.entries[id] = e
	}
	for _, d := range deltas {
		id := d.Key.ID()
		if d.IsTombstone() {
			delete(next.entries, id)
			continue
		}
		next.entries[id] = d.Entry
	}
	return next
}

// validateDeltas 校验并规范化一组变更
//
// 返回按键排序的副本，LastModified 置为新版本。
func validateDeltas(deltas []types.Delta, version uint64) ([]types.Delta, error) {
	out := make([]types.Delta, 0, len(deltas))
	seen := make(map[string]bool, len(deltas))
	for _, d := range deltas {
		id := d.Key.ID()
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate key %s", ErrInvalidDelta, d.Key)
		}
		seen[id] = true
		if d.IsTombstone() {
			out = append(out, types.Delta{Key: d.Key})
			continue
		}
		if !d.Entry.Key.Equal(d.Key) {
			return nil, fmt.Errorf("%w: entry key %s does not match delta key %s", ErrInvalidDelta, d.Entry.Key, d.Key)
		}
		if d.Key.Kind == types.EntryContractCode {
			code, ok := d.Entry.Value.AsBytes()
			if !ok {
				return nil, fmt.Errorf("%w: code entry %s must hold bytes", ErrInvalidDelta, d.Key)
			}
			if types.HashBytes(code) != d.Key.CodeHash {
				return nil, fmt.Errorf("%w: code hash mismatch for %s", ErrInvalidDelta, d.Key)
			}
		}
		e := *d.Entry
		e.LastModified = version
		out = append(out, types.Delta{Key: d.Key, Entry: &e})
	}
	types.SortDeltas(out)
	return out, nil
}
