package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weisyn/sandbox/pkg/types"
)

func TestNewAppliesUserOverrides(t *testing.T) {
	engine := EngineScripted
	learn := false
	maxInstr := uint64(10)
	opts := New(&types.UserSandboxConfig{
		Engine:          &engine,
		LearnFootprint:  &learn,
		MaxInstructions: &maxInstr,
	}).GetOptions()

	assert.Equal(t, EngineScripted, opts.Engine)
	assert.False(t, opts.LearnFootprint)
	// 上限被抬到默认值
	assert.Equal(t, opts.DefaultInstructions, opts.MaxInstructions)
}

func TestResolveBudget(t *testing.T) {
	opts := New(nil).GetOptions()

	b := opts.ResolveBudget(types.Budget{})
	assert.Equal(t, opts.DefaultInstructions, b.InstructionLimit)
	assert.Equal(t, opts.DefaultMemoryBytes, b.MemoryLimitBytes)

	b = opts.ResolveBudget(types.Budget{InstructionLimit: opts.MaxInstructions + 1, MemoryLimitBytes: 1})
	assert.Equal(t, opts.MaxInstructions, b.InstructionLimit)
	assert.Equal(t, uint64(1), b.MemoryLimitBytes)
}
