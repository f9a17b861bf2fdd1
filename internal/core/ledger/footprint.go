package ledger

import (
	"github.com/weisyn/sandbox/pkg/types"
)

// FootprintRequest 计算候选足迹的输入
type FootprintRequest struct {
	// Contract 被调用合约
	Contract types.Address
	// Invoker 调用者账户，零值表示无调用者
	Invoker types.Address
	// ReadOnly 显式声明或已学习到的只读键
	ReadOnly []types.LedgerKey
	// ReadWrite 显式声明或已学习到的读写键
	ReadWrite []types.LedgerKey
}

// ComputeFootprintCandidates 在当前快照上计算候选足迹
func (s *Store) ComputeFootprintCandidates(req FootprintRequest) types.Footprint {
	return s.Snapshot().ComputeFootprintCandidates(req)
}

// ComputeFootprintCandidates 由快照计算调用的候选足迹
//
// 只读集合：合约实例条目、实例引用的代码条目、声明的只读键；
// 读写集合：调用者账户、声明的读写键。同一键同时出现时读写优先。
func (s *Snapshot) ComputeFootprintCandidates(req FootprintRequest) types.Footprint {
	var fp types.Footprint

	instKey := types.InstanceKey(req.Contract)
	fp.AddReadOnly(instKey)
	if inst, ok := s.Get(instKey); ok {
		if ci, ok := inst.Value.AsInstance(); ok {
			fp.AddReadOnly(types.CodeKey(ci.CodeHash))
		}
	}
	for _, k := range req.ReadOnly {
		fp.AddReadOnly(k)
	}

	if !req.Invoker.IsZero() {
		fp.AddReadWrite(types.AccountKey(req.Invoker))
	}
	for _, k := range req.ReadWrite {
		fp.AddReadWrite(k)
	}
	return fp
}
