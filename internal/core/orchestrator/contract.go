package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weisyn/sandbox/internal/core/ledger"
	"github.com/weisyn/sandbox/pkg/types"
)

// specCachePrefix 合约描述缓存键前缀，键为代码哈希
const specCachePrefix = "contractspec:"

// Contract 已解析的合约
type Contract struct {
	Address  types.Address
	CodeHash types.Hash
	Code     []byte
	Spec     *types.ContractSpec
}

// ResolveContract 在当前快照上解析合约
func (o *Orchestrator) ResolveContract(ctx context.Context, addr types.Address) (*Contract, error) {
	return o.resolveContract(ctx, o.store.Snapshot(), addr)
}

// resolveContract 实例条目 -> 代码条目 -> 合约描述
func (o *Orchestrator) resolveContract(ctx context.Context, snap *ledger.Snapshot, addr types.Address) (*Contract, error) {
	inst, ok := snap.Get(types.InstanceKey(addr))
	if !ok {
		return nil, fmt.Errorf("%w: no instance at %s", ErrContractNotFound, addr)
	}
	ci, ok := inst.Value.AsInstance()
	if !ok {
		return nil, fmt.Errorf("%w: instance entry of %s is %s", ErrContractNotFound, addr, inst.Value.Kind())
	}
	codeEntry, ok := snap.Get(types.CodeKey(ci.CodeHash))
	if !ok {
		return nil, fmt.Errorf("%w: code %s of %s missing", ErrContractNotFound, ci.CodeHash.Hex(), addr)
	}
	code, ok := codeEntry.Value.AsBytes()
	if !ok {
		return nil, fmt.Errorf("%w: code entry %s is not bytes", ErrContractNotFound, ci.CodeHash.Hex())
	}

	spec, err := o.contractSpec(ctx, ci.CodeHash, code)
	if err != nil {
		return nil, err
	}
	return &Contract{Address: addr, CodeHash: ci.CodeHash, Code: code, Spec: spec}, nil
}

// ResolveCodeSpec 解析尚未部署的字节码的合约描述
func (o *Orchestrator) ResolveCodeSpec(ctx context.Context, code []byte) (*types.ContractSpec, error) {
	return o.contractSpec(ctx, types.HashBytes(code), code)
}

// contractSpec 先查缓存，未命中时交给引擎解析并回填
//
// 代码按内容寻址，同一哈希的描述永远相同，缓存不需要失效。
func (o *Orchestrator) contractSpec(ctx context.Context, hash types.Hash, code []byte) (*types.ContractSpec, error) {
	key := specCachePrefix + hash.Hex()
	if o.specs != nil {
		if b, ok, err := o.specs.Get(ctx, key); err == nil && ok {
			spec, err := types.ParseContractSpec(b)
			if err == nil {
				return spec, nil
			}
			o.logger.Warnf("合约描述缓存损坏，重新解析: code=%s err=%v", hash.Hex(), err)
		}
	}

	spec, err := o.engine.ResolveSpec(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("解析合约描述失败: %w", err)
	}
	if o.specs != nil {
		if b, err := json.Marshal(spec); err == nil {
			if err := o.specs.Set(ctx, key, b); err != nil {
				o.logger.Debugf("写入合约描述缓存失败: %v", err)
			}
		}
	}
	return spec, nil
}
