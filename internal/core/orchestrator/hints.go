package orchestrator

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/weisyn/sandbox/pkg/types"
)

type hintEntry struct {
	key   types.LedgerKey
	write bool
}

type keyLRU = simplelru.LRU[string, hintEntry]

// hintSet 按 (合约, 函数) 记录成功调用实际访问过的键
//
// 后续调用把这些键并入候选足迹，减少足迹扩展重试。函数数与每个函数的键数
// 都有上限，超出时淘汰最久未被成功调用访问的一项。
type hintSet struct {
	mu          sync.Mutex
	perFunction int
	fns         *simplelru.LRU[string, *keyLRU]
}

func newHintSet(functions, perFunction int) *hintSet {
	if functions <= 0 {
		functions = 1
	}
	if perFunction <= 0 {
		perFunction = 1
	}
	fns, _ := simplelru.NewLRU[string, *keyLRU](functions, nil)
	return &hintSet{perFunction: perFunction, fns: fns}
}

func hintKey(contract types.Address, fn string) string {
	return contract.String() + "/" + fn
}

// get 返回提示足迹
func (h *hintSet) get(contract types.Address, fn string) types.Footprint {
	h.mu.Lock()
	defer h.mu.Unlock()
	var fp types.Footprint
	keys, ok := h.fns.Get(hintKey(contract, fn))
	if !ok {
		return fp
	}
	for _, e := range keys.Values() {
		if e.write {
			fp.AddReadWrite(e.key)
		} else {
			fp.AddReadOnly(e.key)
		}
	}
	return fp
}

// learn 从诊断事件中收集读写过的键
//
// 实例与代码条目每次都会重新计算，不计入提示。
func (h *hintSet) learn(contract types.Address, fn string, diags []types.DiagnosticEvent) {
	var learned []hintEntry
	for _, ev := range diags {
		if ev.Key == nil || ev.Key.Kind == types.EntryContractCode || ev.Key.Equal(types.InstanceKey(contract)) {
			continue
		}
		switch ev.Type {
		case types.DiagStorageRead:
			learned = append(learned, hintEntry{key: *ev.Key})
		case types.DiagStorageWrite:
			learned = append(learned, hintEntry{key: *ev.Key, write: true})
		}
	}
	if len(learned) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	k := hintKey(contract, fn)
	keys, ok := h.fns.Get(k)
	if !ok {
		keys, _ = simplelru.NewLRU[string, hintEntry](h.perFunction, nil)
		h.fns.Add(k, keys)
	}
	for _, e := range learned {
		id := e.key.ID()
		if prev, ok := keys.Peek(id); ok && prev.write {
			e.write = true
		}
		keys.Add(id, e)
	}
}

// size 某个函数当前保留的提示键数
func (h *hintSet) size(contract types.Address, fn string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys, ok := h.fns.Peek(hintKey(contract, fn))
	if !ok {
		return 0
	}
	return keys.Len()
}

// reset 清空全部提示
func (h *hintSet) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns.Purge()
}
