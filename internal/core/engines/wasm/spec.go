package wasm

import (
	"fmt"

	"github.com/tetratelabs/wazero"

	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/types"
)

// SpecSection 存放合约描述（JSON）的自定义段名
const SpecSection = "contractspec"

// specFromModule 读取并校验合约描述，缺失或多于一个均视为非法代码
func specFromModule(mod wazero.CompiledModule) (*types.ContractSpec, error) {
	var found []byte
	count := 0
	for _, s := range mod.CustomSections() {
		if s.Name() == SpecSection {
			found = s.Data()
			count++
		}
	}
	switch count {
	case 0:
		return nil, fmt.Errorf("%w: missing %q custom section", enginepkg.ErrInvalidCode, SpecSection)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d %q custom sections", enginepkg.ErrInvalidCode, count, SpecSection)
	}
	spec, err := types.ParseContractSpec(found)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", enginepkg.ErrInvalidCode, err)
	}
	return spec, nil
}
